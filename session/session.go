package session

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/chathaven/haven-client/config"
	"github.com/chathaven/haven-client/filter"
	"github.com/chathaven/haven-client/globals"
	"github.com/chathaven/haven-client/persistence"
	"github.com/chathaven/haven-client/types"
	"github.com/chathaven/haven-client/ws"
	"github.com/folkengine/goname"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"
	"github.com/mitchellh/mapstructure"
)

// Guard errors for invalid local actions. These are rejected at the call
// site and never reach the server.
var (
	ErrNotConnected = ws.ErrNotConnected
	ErrNoRoom       = fmt.Errorf("no active room")
	ErrRoomPending  = fmt.Errorf("room negotiation in progress")
	ErrInRoom       = fmt.Errorf("already in a room")
	ErrNotAdmin     = fmt.Errorf("admin role required")
	ErrSpecialRoom  = fmt.Errorf("the assistant room cannot be deleted")
	ErrEmptyMessage = fmt.Errorf("empty message")
	ErrEmptyCode    = fmt.Errorf("empty room code")
)

const (
	roomCodeLength = 6
	roomCodeChars  = "0123456789abcdefghijklmnopqrstuvwxyz"

	// evictionFactor bounds how long a remote typing entry survives without a
	// refresh. Stop signals are not guaranteed to arrive, so silence is
	// treated as an implicit stop.
	evictionFactor = 3

	errRoomExists   = "Room already exists."
	errRoomNotFound = "Room not found."
	noticeDeleted   = "Room deleted by admin."
)

// transport is the slice of ws.Conn the orchestrator drives. It exists so the
// state machine can be exercised against a fake in tests.
type transport interface {
	Connect(ctx context.Context) error
	Disconnect()
	Emit(event string, payload interface{}) error
	On(event string, h ws.Handler)
	OnStateChange(func(ws.ConnState))
	OnFatal(func(error))
	State() ws.ConnState
}

// Session wires one authenticated transport connection to the room lifecycle,
// the message stream, the typing debouncer and the durable session record.
// The connection and its handler table are exclusively owned by the session;
// handlers are bound once per connection lifetime, and every state transition
// is serialized behind one mutex.
type Session struct {
	id          string
	displayName string
	debounce    time.Duration
	conn        transport
	persister   persistence.Persister
	recent      *lru.ARCCache
	filters     []*filter.MessageFilter
	typer       *typingDebouncer

	mu           sync.Mutex
	store        *Store
	typingTimers map[string]*time.Timer
	rejoining    bool
	bound        bool
}

// New builds a session from the configuration. Display name resolution order:
// configuration, persisted session record, generated guest name. The identity
// is immutable for the session's lifetime.
func New(cfg *config.Config, conn transport, persister persistence.Persister) (*Session, error) {
	filters, err := filter.Compile(cfg.FilterConfigs)
	if err != nil {
		return nil, err
	}
	name := cfg.UserConfig.DisplayName
	if name == "" && persister != nil {
		rec := types.SessionRecord{}
		if err := persister.GetSession(&rec); err == nil {
			name = rec.Username
		}
	}
	if name == "" {
		name = goname.New(goname.FantasyMap).FirstLast() + " (guest)"
	}
	recent, err := lru.NewARC(cfg.RecentRoomsConfig.CacheSize())
	if err != nil {
		return nil, err
	}
	s := &Session{
		id:           uuid.New().String(),
		displayName:  name,
		debounce:     cfg.TypingConfig.Debounce(),
		conn:         conn,
		persister:    persister,
		recent:       recent,
		filters:      filters,
		store:        newStore(),
		typingTimers: make(map[string]*time.Timer),
	}
	s.typer = newTypingDebouncer(s.debounce,
		func() { s.emitTypingSignal(types.EventTyping) },
		func() { s.emitTypingSignal(types.EventStopTyping) })
	s.seedRecentRooms()
	return s, nil
}

// DisplayName returns the identity resolved for this session.
func (s *Session) DisplayName() string {
	return s.displayName
}

// Id returns the opaque session id used in logs.
func (s *Session) Id() string {
	return s.id
}

// State returns a copy of the current session state.
func (s *Session) State() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.snapshot()
}

// Start binds the inbound handlers, connects and, when a durable session
// record exists, attempts the silent rejoin. An authentication failure is
// fatal for this session attempt and is returned to the caller.
func (s *Session) Start(ctx context.Context) error {
	s.conn.OnStateChange(s.onConnState)
	s.conn.OnFatal(s.onFatal)
	s.bindHandlers()
	if err := s.conn.Connect(ctx); err != nil {
		s.mu.Lock()
		s.store.lastError = err.Error()
		s.mu.Unlock()
		return err
	}
	globals.AppLogger.Info("session started", "session", s.id, "name", s.displayName)
	s.restoreSession()
	return nil
}

// Close leaves any active room state behind and tears the connection down
// synchronously, releasing all handler registrations.
func (s *Session) Close() {
	s.typer.Reset()
	s.mu.Lock()
	s.stopEvictionTimers()
	s.mu.Unlock()
	s.conn.Disconnect()
}

// CreateRoom generates a short random room code and asks the server to
// create it. The code is returned so the caller can display it while the
// request is pending; the server remains the authority on collisions.
func (s *Session) CreateRoom() (string, error) {
	code := newRoomCode()
	if err := s.requestRoom(types.EventCreateRoom, code); err != nil {
		return "", err
	}
	return code, nil
}

// JoinRoom asks the server to join the given room.
func (s *Session) JoinRoom(code string) error {
	if code == "" {
		return ErrEmptyCode
	}
	return s.requestRoom(types.EventJoinRoom, code)
}

// JoinAssistant joins the reserved assistant room, which is created
// implicitly by joining.
func (s *Session) JoinAssistant() error {
	return s.requestRoom(types.EventJoinRoom, types.SpecialRoomAI)
}

func (s *Session) requestRoom(event, code string) error {
	s.mu.Lock()
	if s.store.connState != ws.StateConnected {
		s.mu.Unlock()
		return ErrNotConnected
	}
	switch s.store.phase {
	case PhasePending:
		s.mu.Unlock()
		return ErrRoomPending
	case PhaseActive:
		s.mu.Unlock()
		return ErrInRoom
	}
	s.store.phase = PhasePending
	s.store.pendingCode = code
	s.store.lastError = ""
	s.store.notice = ""
	s.mu.Unlock()
	err := s.conn.Emit(event, types.RoomRequest{RoomCode: code, Username: s.displayName})
	if err != nil {
		s.mu.Lock()
		if s.store.phase == PhasePending && s.store.pendingCode == code {
			s.store.clearRoom()
		}
		s.mu.Unlock()
	}
	return err
}

// DeleteRoom asks the server to delete the active room. The request is only
// ever emitted for an admin of a regular room; everything else is refused
// client-side, the server is still the authority and will also refuse.
func (s *Session) DeleteRoom() error {
	s.mu.Lock()
	if s.store.connState != ws.StateConnected {
		s.mu.Unlock()
		return ErrNotConnected
	}
	if s.store.phase != PhaseActive {
		s.mu.Unlock()
		return ErrNoRoom
	}
	room := s.store.room
	s.mu.Unlock()
	if room.IsSpecial() {
		return ErrSpecialRoom
	}
	if room.Role != types.RoleAdmin {
		return ErrNotAdmin
	}
	// state stays Active until the server broadcasts room_deleted
	return s.conn.Emit(types.EventDeleteRoom, room.Code)
}

// LeaveRoom discards all room-scoped state locally and erases the durable
// session record. Leaving is always allowed, any role.
func (s *Session) LeaveRoom() error {
	s.typer.Flush()
	s.mu.Lock()
	if s.store.phase == PhaseNoRoom {
		s.mu.Unlock()
		return ErrNoRoom
	}
	s.clearRoomLocked()
	s.mu.Unlock()
	s.eraseRecord()
	return nil
}

// SendMessage emits one chat message. Empty and whitespace-only messages are
// rejected without touching the wire, and an in-flight typing burst is
// stopped before the send so stop_typing never trails the message.
func (s *Session) SendMessage(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}
	s.mu.Lock()
	if s.store.connState != ws.StateConnected {
		s.mu.Unlock()
		return ErrNotConnected
	}
	if s.store.phase != PhaseActive {
		s.mu.Unlock()
		return ErrNoRoom
	}
	room := s.store.room.Code
	s.mu.Unlock()
	s.typer.Flush()
	return s.conn.Emit(types.EventSendMessage, types.OutboundMessage{
		Message:  text,
		Room:     room,
		Username: s.displayName,
	})
}

// TypingInput records one local composition change. It is a no-op outside an
// active, connected room.
func (s *Session) TypingInput() {
	s.mu.Lock()
	ok := s.store.connState == ws.StateConnected && s.store.phase == PhaseActive
	s.mu.Unlock()
	if ok {
		s.typer.Input()
	}
}

// RecentRooms lists recently joined room codes, most recent first.
func (s *Session) RecentRooms() []string {
	if s.persister != nil {
		rooms, err := s.persister.GetRecentRooms()
		if err == nil {
			codes := make([]string, 0, len(rooms))
			for _, r := range rooms {
				codes = append(codes, r.Code)
			}
			return codes
		}
		globals.AppLogger.Error("could not list recent rooms", "error", err)
	}
	keys := s.recent.Keys()
	codes := make([]string, 0, len(keys))
	for _, k := range keys {
		if code, ok := k.(string); ok {
			codes = append(codes, code)
		}
	}
	return codes
}

func (s *Session) emitTypingSignal(event string) {
	s.mu.Lock()
	if s.store.connState != ws.StateConnected || s.store.phase != PhaseActive {
		s.mu.Unlock()
		return
	}
	room := s.store.room.Code
	s.mu.Unlock()
	if err := s.conn.Emit(event, types.TypingSignal{Room: room, Username: s.displayName}); err != nil {
		globals.AppLogger.Debug("could not emit typing signal", "event", event, "error", err)
	}
}

// bindHandlers registers every inbound handler exactly once for the lifetime
// of the connection.
func (s *Session) bindHandlers() {
	s.mu.Lock()
	if s.bound {
		s.mu.Unlock()
		return
	}
	s.bound = true
	s.mu.Unlock()

	s.conn.On(types.EventPreviousMessages, s.onPreviousMessages)
	s.conn.On(types.EventReceiveMessage, s.onReceiveMessage)
	s.conn.On(types.EventRoomCreated, s.onRoomCreated)
	s.conn.On(types.EventJoinedRoom, s.onJoinedRoom)
	s.conn.On(types.EventRoomExists, func(json.RawMessage) { s.onRoomRejected(errRoomExists) })
	s.conn.On(types.EventRoomNotFound, func(json.RawMessage) { s.onRoomRejected(errRoomNotFound) })
	s.conn.On(types.EventRoomDeleted, s.onRoomDeleted)
	s.conn.On(types.EventUpdateUsers, s.onUpdateUsers)
	s.conn.On(types.EventUserTyping, s.onUserTyping)
	s.conn.On(types.EventUserStoppedTyping, s.onUserStoppedTyping)
}

func (s *Session) onPreviousMessages(data json.RawMessage) {
	var rawMsgs []interface{}
	if err := json.Unmarshal(data, &rawMsgs); err != nil {
		globals.AppLogger.Error("could not unmarshal message history", "error", err)
		return
	}
	msgs := make([]types.ChatMessage, 0, len(rawMsgs))
	if err := mapstructure.WeakDecode(rawMsgs, &msgs); err != nil {
		globals.AppLogger.Error("could not decode message history", "error", err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store.phase == PhaseNoRoom {
		return // stale event for an abandoned room
	}
	room := s.store.roomCode()
	kept := make([]types.ChatMessage, 0, len(msgs))
	for i := range msgs {
		if filter.Apply(s.filters, &msgs[i], room, s.displayName) {
			kept = append(kept, msgs[i])
		}
	}
	s.store.replaceMessages(kept)
}

func (s *Session) onReceiveMessage(data json.RawMessage) {
	msg := types.ChatMessage{}
	if err := decode(data, &msg); err != nil {
		globals.AppLogger.Error("could not decode chat message", "error", err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store.phase == PhaseNoRoom {
		return
	}
	if !filter.Apply(s.filters, &msg, s.store.roomCode(), s.displayName) {
		return
	}
	s.store.appendMessage(msg)
}

func (s *Session) onRoomCreated(data json.RawMessage) {
	ack := types.RoomCreated{}
	if err := decode(data, &ack); err != nil {
		globals.AppLogger.Error("could not decode room_created", "error", err)
		return
	}
	s.mu.Lock()
	if s.store.phase == PhaseActive {
		s.mu.Unlock()
		return
	}
	role := types.RoleMember
	if ack.IsAdmin {
		role = types.RoleAdmin
	}
	s.enterRoomLocked(types.Room{Code: ack.RoomCode, Role: role})
	s.mu.Unlock()
	s.recordRoom(ack.RoomCode)
}

func (s *Session) onJoinedRoom(data json.RawMessage) {
	ack := types.JoinedRoom{}
	if err := decode(data, &ack); err != nil {
		globals.AppLogger.Error("could not decode joined_room", "error", err)
		return
	}
	s.mu.Lock()
	if s.store.phase != PhasePending {
		// the acknowledgement carries no room code, without a pending
		// request there is nothing to bind it to
		s.mu.Unlock()
		return
	}
	code := s.store.pendingCode
	role := types.RoleMember
	if ack.IsAdmin {
		role = types.RoleAdmin
	}
	s.enterRoomLocked(types.Room{Code: code, Role: role})
	s.mu.Unlock()
	s.recordRoom(code)
}

func (s *Session) onRoomRejected(reason string) {
	s.mu.Lock()
	if s.store.phase != PhasePending {
		s.mu.Unlock()
		return
	}
	quiet := s.rejoining
	s.rejoining = false
	s.store.clearRoom()
	if !quiet {
		s.store.lastError = reason
	}
	s.mu.Unlock()
	if quiet {
		// best-effort rejoin of a room that no longer exists: fall back to
		// the unjoined state without surfacing an error
		globals.AppLogger.Info("silent rejoin failed, clearing session record", "reason", reason)
		s.eraseRecord()
	}
}

func (s *Session) onRoomDeleted(json.RawMessage) {
	s.typer.Reset()
	s.mu.Lock()
	if s.store.phase == PhaseNoRoom {
		s.mu.Unlock()
		return
	}
	code := s.store.roomCode()
	s.clearRoomLocked()
	s.store.notice = noticeDeleted
	s.mu.Unlock()
	globals.AppLogger.Info("room deleted by server", "room", code)
	s.eraseRecord()
}

func (s *Session) onUpdateUsers(data json.RawMessage) {
	users := make([]string, 0)
	if err := json.Unmarshal(data, &users); err != nil {
		globals.AppLogger.Error("could not unmarshal presence broadcast", "error", err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store.phase == PhaseNoRoom {
		return
	}
	s.store.replacePresence(users)
}

func (s *Session) onUserTyping(data json.RawMessage) {
	sig := types.TypingUser{}
	if err := decode(data, &sig); err != nil || sig.Username == "" {
		return
	}
	if sig.Username == s.displayName {
		return // ignore the echo of our own signal
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store.phase != PhaseActive {
		return
	}
	s.store.addTyping(sig.Username)
	s.armEvictionLocked(sig.Username)
}

func (s *Session) onUserStoppedTyping(data json.RawMessage) {
	sig := types.TypingUser{}
	if err := decode(data, &sig); err != nil || sig.Username == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store.removeTyping(sig.Username)
	if t, ok := s.typingTimers[sig.Username]; ok {
		t.Stop()
		delete(s.typingTimers, sig.Username)
	}
}

// armEvictionLocked (re)arms the liveness timer for a remote typing entry.
// If no refresh or stop arrives within a small multiple of the debounce
// window, the entry is dropped so the indicator can never stick.
func (s *Session) armEvictionLocked(name string) {
	if t, ok := s.typingTimers[name]; ok {
		t.Stop()
	}
	s.typingTimers[name] = time.AfterFunc(evictionFactor*s.debounce, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.store.removeTyping(name)
		delete(s.typingTimers, name)
	})
}

func (s *Session) onConnState(st ws.ConnState) {
	s.mu.Lock()
	s.store.connState = st
	var rejoinCode string
	switch st {
	case ws.StateConnected:
		if code := s.store.roomCode(); code != "" {
			// events across a reconnect boundary are unordered; the local
			// room state is stale until the server confirms it again
			s.store.phase = PhasePending
			s.store.pendingCode = code
			s.store.room = types.Room{}
			s.rejoining = true
			rejoinCode = code
		}
	case ws.StateReconnecting, ws.StateDisconnected:
		s.stopEvictionTimers()
		s.store.typing = make(map[string]struct{})
	}
	s.mu.Unlock()
	if st == ws.StateReconnecting || st == ws.StateDisconnected {
		s.typer.Reset()
	}
	if rejoinCode != "" {
		globals.AppLogger.Info("re-deriving room state after reconnect", "room", rejoinCode)
		err := s.conn.Emit(types.EventJoinRoom, types.RoomRequest{RoomCode: rejoinCode, Username: s.displayName})
		if err != nil {
			globals.AppLogger.Warn("could not re-join after reconnect", "error", err)
		}
	}
}

func (s *Session) onFatal(err error) {
	s.mu.Lock()
	s.store.lastError = err.Error()
	s.mu.Unlock()
}

// restoreSession attempts the silent rejoin from the durable session record.
func (s *Session) restoreSession() {
	if s.persister == nil {
		return
	}
	rec := types.SessionRecord{}
	if err := s.persister.GetSession(&rec); err != nil {
		if err != persistence.ErrNotFound {
			globals.AppLogger.Error("could not read session record", "error", err)
		}
		return
	}
	if rec.Room == "" {
		return
	}
	s.mu.Lock()
	if s.store.phase != PhaseNoRoom || s.store.connState != ws.StateConnected {
		s.mu.Unlock()
		return
	}
	s.store.phase = PhasePending
	s.store.pendingCode = rec.Room
	s.rejoining = true
	s.mu.Unlock()
	globals.AppLogger.Info("attempting silent rejoin", "room", rec.Room)
	err := s.conn.Emit(types.EventJoinRoom, types.RoomRequest{RoomCode: rec.Room, Username: s.displayName})
	if err != nil {
		s.mu.Lock()
		s.rejoining = false
		s.store.clearRoom()
		s.mu.Unlock()
	}
}

// enterRoomLocked performs the Pending -> Active transition. Message log and
// presence stay empty until the server's history and presence events arrive.
func (s *Session) enterRoomLocked(room types.Room) {
	s.store.phase = PhaseActive
	s.store.pendingCode = ""
	s.store.room = room
	s.store.lastError = ""
	s.rejoining = false
	globals.AppLogger.Info("entered room", "room", room.Code, "role", room.Role.String())
}

func (s *Session) clearRoomLocked() {
	s.stopEvictionTimers()
	s.store.clearRoom()
}

func (s *Session) stopEvictionTimers() {
	for name, t := range s.typingTimers {
		t.Stop()
		delete(s.typingTimers, name)
	}
}

// recordRoom updates the durable session record and the recent-rooms list
// after a successful room entry.
func (s *Session) recordRoom(code string) {
	s.recent.Add(code, time.Now())
	if s.persister == nil {
		return
	}
	rec := types.SessionRecord{
		Room:     code,
		Username: s.displayName,
		Tags:     types.JSONStringMap{"session": s.id},
	}
	if err := s.persister.StoreSession(rec); err != nil {
		globals.AppLogger.Error("could not store session record", "error", err)
	}
	if err := s.persister.TouchRecentRoom(code); err != nil {
		globals.AppLogger.Error("could not update recent rooms", "error", err)
	}
}

func (s *Session) eraseRecord() {
	if s.persister == nil {
		return
	}
	if err := s.persister.DeleteSession(); err != nil {
		globals.AppLogger.Error("could not erase session record", "error", err)
	}
}

func (s *Session) seedRecentRooms() {
	if s.persister == nil {
		return
	}
	rooms, err := s.persister.GetRecentRooms()
	if err != nil {
		globals.AppLogger.Error("could not seed recent rooms", "error", err)
		return
	}
	for i := len(rooms) - 1; i >= 0; i-- {
		s.recent.Add(rooms[i].Code, rooms[i].LastSeen)
	}
}

// decode unmarshals a wire payload into out, weakly typed. Servers are not
// uniform about number/string types, the weak decode smooths that over.
func decode(data json.RawMessage, out interface{}) error {
	if len(data) == 0 {
		return nil
	}
	m := make(map[string]interface{})
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	return mapstructure.WeakDecode(m, out)
}

// newRoomCode generates a short opaque room code. Collisions are handled by
// the server rejecting the create request.
func newRoomCode() string {
	b := make([]byte, roomCodeLength)
	for i := range b {
		b[i] = roomCodeChars[rand.Intn(len(roomCodeChars))]
	}
	return string(b)
}
