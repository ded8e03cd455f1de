package types

// ChatMessage is a single entry of the room's message log. The server is the
// ordering authority, the Time field is an opaque server-formatted string.
type ChatMessage struct {
	Username string `json:"username" mapstructure:"username"`
	Message  string `json:"message" mapstructure:"message"`
	Time     string `json:"time" mapstructure:"time"`

	// Highlight is set locally by the message filters, it never goes on the wire.
	Highlight bool `json:"-" mapstructure:"-"`
}

// FromBot reports whether the message carries the synthetic bot identity used
// in the AI room.
func (m ChatMessage) FromBot() bool {
	return m.Username == BotUsername
}
