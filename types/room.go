package types

const (
	// SpecialRoomAI is the reserved room code routed to the automated
	// assistant. It is created implicitly by joining and cannot be deleted.
	SpecialRoomAI = "ai-assistant"

	// BotUsername is the synthetic author of assistant messages.
	BotUsername = "AI Bot"
)

// Role is the caller's membership role inside a room.
type Role int

const (
	RoleMember Role = iota
	RoleAdmin
)

func (r Role) String() string {
	if r == RoleAdmin {
		return "admin"
	}
	return "member"
}

// Room is the active room of a session. Codes are opaque and compared
// case-sensitively.
type Room struct {
	Code string `json:"code"`
	Role Role   `json:"role"`
}

func (r Room) IsSpecial() bool {
	return r.Code == SpecialRoomAI
}
