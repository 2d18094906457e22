package session

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xpanvictor/avatarchat/internal/config"
	"github.com/xpanvictor/avatarchat/internal/types"
	"github.com/xpanvictor/avatarchat/pkg/Logger"
)

const (
	DefaultHistoryLimit = 20
	defaultHistoryCap   = 50
	defaultTimeout      = time.Hour
)

type StoreStats struct {
	TotalCreated          int     `json:"total_created"`
	ActiveSessions        int     `json:"active_sessions"`
	AvgMessagesPerSession float64 `json:"avg_messages_per_session"`
	MaxSessions           int     `json:"max_sessions"`
	TimeoutSeconds        float64 `json:"session_timeout"`
}

type Store interface {
	Create(opts CreateOptions) (Session, error)
	// Get returns a snapshot and slides the expiry forward.
	Get(id string) (Session, error)
	End(id string) bool
	EndAll() int
	AppendHistory(id string, role types.Role, text string) bool
	// History returns the most recent limit turns, oldest first.
	History(id string, limit int) ([]types.Turn, error)
	UpdateConfig(id string, overrides map[string]any) bool
	SetCameraFrame(id string, frame []byte, mime string) bool
	SetIdleCursor(id string, cursor int) bool
	Stats() StoreStats
	// Sweep ends every session idle for longer than the timeout.
	Sweep(now time.Time) int
	// AcquireTurn serializes pipeline runs of one session. The returned
	// release func is safe to call more than once.
	AcquireTurn(ctx context.Context, id string) (func(), error)
}

type entry struct {
	sess Session
	turn chan struct{}
}

type memoryStore struct {
	mu           sync.RWMutex
	sessions     map[string]*entry
	totalCreated int

	maxSessions     int
	timeout         time.Duration
	historyCap      int
	defaultLanguage string
	now             func() time.Time
	logger          *Logger.Logger
}

type Option func(*memoryStore)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *memoryStore) { s.now = now }
}

func NewStore(cfg config.SessionConfig, logger *Logger.Logger, opts ...Option) Store {
	s := &memoryStore{
		sessions:        make(map[string]*entry),
		maxSessions:     cfg.MaxSessions,
		timeout:         cfg.Timeout,
		historyCap:      cfg.HistoryCap,
		defaultLanguage: cfg.DefaultLanguage,
		now:             time.Now,
		logger:          logger,
	}
	if s.timeout <= 0 {
		s.timeout = defaultTimeout
	}
	if s.historyCap <= 0 {
		s.historyCap = defaultHistoryCap
	}
	if s.defaultLanguage == "" {
		s.defaultLanguage = "pl"
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *memoryStore) Create(opts CreateOptions) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.maxSessions > 0 && len(s.sessions) >= s.maxSessions {
		if n := s.sweepLocked(now); n > 0 {
			s.logger.Infof("session store at capacity, expired %d sessions", n)
		}
		if len(s.sessions) >= s.maxSessions {
			return Session{}, ErrCapacityExceeded
		}
	}

	lang := opts.Language
	if lang == "" {
		lang = s.defaultLanguage
	}
	sess := Session{
		ID:           uuid.NewString(),
		Name:         opts.Name,
		Language:     lang,
		VoiceID:      opts.VoiceID,
		CreatedAt:    now,
		LastActivity: now,
		Status:       StatusCreated,
		History:      make([]types.Turn, 0, 8),
		Config:       map[string]any{},
	}
	s.sessions[sess.ID] = &entry{sess: sess, turn: make(chan struct{}, 1)}
	s.totalCreated++
	s.logger.Infof("Created session %s (active: %d)", sess.ID, len(s.sessions))
	return sess.snapshot(), nil
}

func (s *memoryStore) Get(id string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[id]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	s.touchLocked(e)
	return e.sess.snapshot(), nil
}

func (s *memoryStore) End(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endLocked(id)
}

func (s *memoryStore) EndAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id := range s.sessions {
		if s.endLocked(id) {
			n++
		}
	}
	return n
}

func (s *memoryStore) AppendHistory(id string, role types.Role, text string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[id]
	if !ok {
		return false
	}
	e.sess.appendTurn(types.Turn{Role: role, Text: text, Timestamp: s.now()}, s.historyCap)
	s.touchLocked(e)
	return true
}

func (s *memoryStore) History(id string, limit int) ([]types.Turn, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	h := e.sess.History
	if len(h) > limit {
		h = h[len(h)-limit:]
	}
	return append([]types.Turn(nil), h...), nil
}

func (s *memoryStore) UpdateConfig(id string, overrides map[string]any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[id]
	if !ok {
		return false
	}
	if e.sess.Config == nil {
		e.sess.Config = make(map[string]any, len(overrides))
	}
	maps.Copy(e.sess.Config, overrides)
	s.touchLocked(e)
	return true
}

func (s *memoryStore) SetCameraFrame(id string, frame []byte, mime string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[id]
	if !ok {
		return false
	}
	e.sess.CameraFrame = append([]byte(nil), frame...)
	e.sess.CameraMIME = mime
	e.sess.CameraAt = s.now()
	return true
}

func (s *memoryStore) SetIdleCursor(id string, cursor int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[id]
	if !ok {
		return false
	}
	e.sess.IdleCursor = cursor
	return true
}

func (s *memoryStore) Stats() StoreStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := StoreStats{
		TotalCreated:   s.totalCreated,
		ActiveSessions: len(s.sessions),
		MaxSessions:    s.maxSessions,
		TimeoutSeconds: s.timeout.Seconds(),
	}
	if len(s.sessions) > 0 {
		msgs := 0
		for _, e := range s.sessions {
			msgs += e.sess.MessageCount
		}
		st.AvgMessagesPerSession = float64(msgs) / float64(len(s.sessions))
	}
	return st
}

func (s *memoryStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked(now)
}

func (s *memoryStore) AcquireTurn(ctx context.Context, id string) (func(), error) {
	s.mu.RLock()
	e, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}

	select {
	case e.turn <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	var once sync.Once
	return func() { once.Do(func() { <-e.turn }) }, nil
}

func (s *memoryStore) sweepLocked(now time.Time) int {
	expired := 0
	for id, e := range s.sessions {
		if now.Sub(e.sess.LastActivity) > s.timeout {
			s.endLocked(id)
			expired++
		}
	}
	if expired > 0 {
		s.logger.Infof("Cleaned up %d expired sessions", expired)
	}
	return expired
}

func (s *memoryStore) endLocked(id string) bool {
	e, ok := s.sessions[id]
	if !ok {
		return false
	}
	e.sess.Status = StatusEnded
	delete(s.sessions, id)
	s.logger.Infof("Ended session %s", id)
	return true
}

// touchLocked keeps last activity monotonic even if the clock steps back.
func (s *memoryStore) touchLocked(e *entry) {
	if now := s.now(); now.After(e.sess.LastActivity) {
		e.sess.LastActivity = now
	}
	if e.sess.Status == StatusCreated {
		e.sess.Status = StatusActive
	}
}
