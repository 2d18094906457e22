package sys_manager

import (
	"context"
	"time"

	"github.com/xpanvictor/avatarchat/internal/domains/session"
	"github.com/xpanvictor/avatarchat/pkg/Logger"
)

const defaultSweepInterval = 5 * time.Minute

// SessionSweepTask expires idle chat sessions.
type SessionSweepTask struct {
	store    session.Store
	logger   *Logger.Logger
	interval time.Duration
	now      func() time.Time
}

func NewSessionSweepTask(store session.Store, logger *Logger.Logger, interval time.Duration) *SessionSweepTask {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	return &SessionSweepTask{
		store:    store,
		logger:   logger,
		interval: interval,
		now:      time.Now,
	}
}

func (t *SessionSweepTask) Execute(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if n := t.store.Sweep(t.now()); n > 0 {
		t.logger.Infof("session sweep expired %d sessions (active: %d)", n, t.store.Stats().ActiveSessions)
	}
	return nil
}

func (t *SessionSweepTask) GetName() string { return "SessionSweepTask" }

func (t *SessionSweepTask) GetInterval() time.Duration { return t.interval }
