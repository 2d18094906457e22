package pipeline

import (
	"errors"
	"fmt"

	"github.com/xpanvictor/avatarchat/internal/domains/sys_manager/runtime"
)

var (
	ErrHandlerFailure  = errors.New("pipeline handler failed")
	ErrNoSpeech        = errors.New("no speech detected")
	ErrEmptyTranscript = errors.New("empty transcript")
)

// HandlerError is a hard failure of a required stage (ASR or LLM).
type HandlerError struct {
	Stage runtime.Stage
	Err   error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("%s handler failed: %v", e.Stage, e.Err)
}

// Unwrap matches both ErrHandlerFailure and the cause.
func (e *HandlerError) Unwrap() []error {
	return []error{ErrHandlerFailure, e.Err}
}

func handlerFailure(stage runtime.Stage, err error) error {
	return &HandlerError{Stage: stage, Err: err}
}

var errEmptyAudio = errors.New("synthesizer returned no audio")
