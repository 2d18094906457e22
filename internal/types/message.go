package types

import (
	"time"
)

// Role is who spoke a history entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one history entry. A conversation turn is a user Turn followed
// by an assistant Turn.
type Turn struct {
	Role      Role      `json:"role" example:"user"`
	Text      string    `json:"text" example:"Cześć, jak się masz?"`
	Timestamp time.Time `json:"timestamp"`
}

func NewTurn(role Role, text string) Turn {
	return Turn{Role: role, Text: text, Timestamp: time.Now()}
}
