package session

import (
	"maps"
	"time"

	"github.com/xpanvictor/avatarchat/internal/types"
)

type Status string

const (
	StatusCreated Status = "created"
	StatusActive  Status = "active"
	StatusEnded   Status = "ended"
)

type CreateOptions struct {
	Name     string
	Language string
	VoiceID  string
}

// Session is a snapshot; the store owns the live value.
type Session struct {
	ID           string
	Name         string
	Language     string
	VoiceID      string
	CreatedAt    time.Time
	LastActivity time.Time
	Status       Status
	History      []types.Turn
	MessageCount int
	Config       map[string]any
	// IdleCursor is the position in the avatar idle loop.
	IdleCursor int
	// CameraFrame is the latest client camera image, if any.
	CameraFrame []byte
	CameraMIME  string
	CameraAt    time.Time
}

func (s *Session) snapshot() Session {
	cp := *s
	cp.History = append([]types.Turn(nil), s.History...)
	cp.Config = maps.Clone(s.Config)
	if s.CameraFrame != nil {
		cp.CameraFrame = append([]byte(nil), s.CameraFrame...)
	}
	return cp
}

func (s *Session) appendTurn(t types.Turn, limit int) {
	s.History = append(s.History, t)
	if over := len(s.History) - limit; over > 0 {
		// copy down so the backing array does not grow forever
		s.History = append(s.History[:0], s.History[over:]...)
	}
	s.MessageCount++
}

// Summary is the public view served by the HTTP layer.
type Summary struct {
	SessionID     string    `json:"session_id"`
	SessionName   string    `json:"session_name,omitempty"`
	Language      string    `json:"language"`
	CreatedAt     time.Time `json:"created_at"`
	LastActivity  time.Time `json:"last_activity"`
	Status        Status    `json:"status"`
	MessageCount  int       `json:"message_count"`
	HistoryLength int       `json:"history_length"`
}

func (s Session) Summary() Summary {
	return Summary{
		SessionID:     s.ID,
		SessionName:   s.Name,
		Language:      s.Language,
		CreatedAt:     s.CreatedAt,
		LastActivity:  s.LastActivity,
		Status:        s.Status,
		MessageCount:  s.MessageCount,
		HistoryLength: len(s.History),
	}
}
