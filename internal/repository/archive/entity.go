package archive

import (
	"fmt"
	"time"

	"github.com/xpanvictor/avatarchat/internal/types"
)

type TurnEntity struct {
	SessionID string `json:"session_id"`
	Role      string `json:"role"`
	Text      string `json:"text"`
	// unix millis
	Timestamp int64 `json:"ts"`
}

func (e *TurnEntity) FromDomain(sessionID string, t types.Turn) {
	e.SessionID = sessionID
	e.Role = string(t.Role)
	e.Text = t.Text
	e.Timestamp = t.Timestamp.UnixMilli()
}

func (e *TurnEntity) ToDomain() types.Turn {
	return types.Turn{
		Role:      types.Role(e.Role),
		Text:      e.Text,
		Timestamp: time.UnixMilli(e.Timestamp),
	}
}

func SessionTurnsKey(sessionID string) string {
	return fmt.Sprintf("session:%s:turns", sessionID)
}

const archivedSessionsKey = "sessions:archived"
