package session

import (
	"sort"

	"github.com/chathaven/haven-client/types"
	"github.com/chathaven/haven-client/ws"
)

// RoomPhase is the room lifecycle state of the session.
type RoomPhase int

const (
	PhaseNoRoom RoomPhase = iota
	PhasePending
	PhaseActive
)

func (p RoomPhase) String() string {
	switch p {
	case PhasePending:
		return "pending"
	case PhaseActive:
		return "active"
	}
	return "no room"
}

// Store holds the authoritative local view of the session: connection status,
// room, message log, presence, typing set and the user-visible error/notice
// conditions. It is not safe for concurrent use on its own; every access goes
// through the session mutex.
type Store struct {
	connState   ws.ConnState
	phase       RoomPhase
	pendingCode string
	room        types.Room
	messages    []types.ChatMessage
	presence    []string
	typing      map[string]struct{}
	lastError   string
	notice      string
}

// Snapshot is a copy of the session state handed out to the caller/UI.
type Snapshot struct {
	ConnState ws.ConnState
	Phase     RoomPhase
	Room      types.Room
	Messages  []types.ChatMessage
	Presence  []string
	Typing    []string
	LastError string
	Notice    string
}

func newStore() *Store {
	return &Store{typing: make(map[string]struct{})}
}

// roomCode returns the code the session is bound to, pending or active.
func (st *Store) roomCode() string {
	if st.phase == PhaseActive {
		return st.room.Code
	}
	return st.pendingCode
}

func (st *Store) appendMessage(msg types.ChatMessage) {
	st.messages = append(st.messages, msg)
}

// replaceMessages installs a history snapshot wholesale. No merging against
// the existing log, no deduplication.
func (st *Store) replaceMessages(msgs []types.ChatMessage) {
	st.messages = msgs
}

// replacePresence installs a presence broadcast wholesale, last writer wins.
func (st *Store) replacePresence(users []string) {
	st.presence = users
}

func (st *Store) addTyping(name string) {
	st.typing[name] = struct{}{}
}

func (st *Store) removeTyping(name string) {
	delete(st.typing, name)
}

// clearRoom discards all room-scoped state. The connection state and the
// error/notice conditions survive a room change.
func (st *Store) clearRoom() {
	st.phase = PhaseNoRoom
	st.pendingCode = ""
	st.room = types.Room{}
	st.messages = nil
	st.presence = nil
	st.typing = make(map[string]struct{})
}

func (st *Store) snapshot() Snapshot {
	snap := Snapshot{
		ConnState: st.connState,
		Phase:     st.phase,
		Room:      st.room,
		LastError: st.lastError,
		Notice:    st.notice,
	}
	if st.phase == PhasePending {
		snap.Room = types.Room{Code: st.pendingCode}
	}
	snap.Messages = append([]types.ChatMessage(nil), st.messages...)
	snap.Presence = append([]string(nil), st.presence...)
	snap.Typing = make([]string, 0, len(st.typing))
	for name := range st.typing {
		snap.Typing = append(snap.Typing, name)
	}
	sort.Strings(snap.Typing)
	return snap
}
