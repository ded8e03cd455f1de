package types

import "encoding/json"

// Client -> server event names.
const (
	EventCreateRoom  = "create_room"
	EventJoinRoom    = "join_room"
	EventDeleteRoom  = "delete_room"
	EventSendMessage = "send_message"
	EventTyping      = "typing"
	EventStopTyping  = "stop_typing"
)

// Server -> client event names.
const (
	EventPreviousMessages  = "previous_messages"
	EventReceiveMessage    = "receive_message"
	EventRoomCreated       = "room_created"
	EventJoinedRoom        = "joined_room"
	EventRoomExists        = "room_exists"
	EventRoomNotFound      = "room_not_found"
	EventRoomDeleted       = "room_deleted"
	EventUpdateUsers       = "update_users"
	EventUserTyping        = "user_typing"
	EventUserStoppedTyping = "user_stopped_typing"
)

// JSON-serialized WebsocketMessage is what is actually sent via the websocket connection
type WebsocketMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// NewWireMessage wraps a payload in the wire envelope. A nil payload produces
// an event with no data (room_deleted, room_exists etc. carry none).
func NewWireMessage(event string, payload interface{}) ([]byte, error) {
	msg := WebsocketMessage{Event: event}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		msg.Data = data
	}
	return json.Marshal(msg)
}

// RoomRequest is the payload of create_room and join_room.
type RoomRequest struct {
	RoomCode string `json:"roomCode" mapstructure:"roomCode"`
	Username string `json:"username" mapstructure:"username"`
}

// RoomCreated is the payload of the room_created acknowledgement.
type RoomCreated struct {
	RoomCode string `json:"roomCode" mapstructure:"roomCode"`
	IsAdmin  bool   `json:"isAdmin" mapstructure:"isAdmin"`
}

// JoinedRoom is the payload of the joined_room acknowledgement. The room code
// is not echoed back, the pending local code is authoritative.
type JoinedRoom struct {
	IsAdmin bool `json:"isAdmin" mapstructure:"isAdmin"`
}

// OutboundMessage is the payload of send_message.
type OutboundMessage struct {
	Message  string `json:"message" mapstructure:"message"`
	Room     string `json:"room" mapstructure:"room"`
	Username string `json:"username" mapstructure:"username"`
}

// TypingSignal is the payload of typing and stop_typing.
type TypingSignal struct {
	Room     string `json:"room" mapstructure:"room"`
	Username string `json:"username" mapstructure:"username"`
}

// TypingUser is the payload of user_typing and user_stopped_typing.
type TypingUser struct {
	Username string `json:"username" mapstructure:"username"`
}
