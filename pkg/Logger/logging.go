package Logger

import (
	"go.uber.org/zap"
)

type Logger struct {
	*zap.SugaredLogger
}

func BuildLogger(debug bool) *Logger {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.TimeKey = "time"
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.Encoding = "json"
	}
	cfg.EncoderConfig.LevelKey = "level"
	cfg.EncoderConfig.MessageKey = "msg"
	cfg.EncoderConfig.CallerKey = "caller"

	logger, err := cfg.Build(zap.AddCaller())
	if err != nil {
		return NewNop()
	}
	return &Logger{logger.Sugar()}
}

func New(debug bool) *Logger {
	return BuildLogger(debug)
}

// NewNop discards everything; used by tests and as a build fallback.
func NewNop() *Logger {
	return &Logger{zap.NewNop().Sugar()}
}

// ForSession scopes log lines to one chat session.
func (l *Logger) ForSession(sessionID string) *Logger {
	return &Logger{l.With("session_id", sessionID)}
}

// Named scopes log lines to a component.
func (l *Logger) Named(component string) *Logger {
	return &Logger{l.SugaredLogger.Named(component)}
}

// Sync flushes buffered entries, ignoring the EINVAL stderr returns on some platforms.
func (l *Logger) Sync() {
	_ = l.SugaredLogger.Sync()
}
