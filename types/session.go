package types

import "time"

// SessionRecord is the durable snapshot of the last successfully joined room,
// used for the silent rejoin on restart.
type SessionRecord struct {
	Id        string        `json:"id" gorm:"primaryKey"`
	Room      string        `json:"room"`
	Username  string        `json:"username"`
	Tags      JSONStringMap `json:"tags"`
	UpdatedAt time.Time     `json:"-"`
}

// RecentRoom is one entry of the recently-joined-rooms list.
type RecentRoom struct {
	Code     string    `json:"code" gorm:"primaryKey"`
	LastSeen time.Time `json:"last_seen"`
}
