package domain

// Role identifies the author of a chat turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// WelcomeTurnID is the fixed id of the synthesized greeting turn.
const WelcomeTurnID = "welcome"

// ChatTurn is one entry of the assistant transcript.
type ChatTurn struct {
	ID      string `json:"id"`
	Role    Role   `json:"role"`
	Text    string `json:"text"`
	IsError bool   `json:"isError,omitempty"`
}

// IsWelcome reports whether the turn is the synthesized greeting.
func (t ChatTurn) IsWelcome() bool {
	return t.ID == WelcomeTurnID
}
