package runtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/looplab/fsm"
)

// RequestRuntime tracks one pipeline request as an FSM:
//
//	received -> (vad) -> (asr) -> llm -> (tts) -> (avatar) -> complete
//
// Parenthesised stages may be skipped. vad and asr may finish early
// (no speech, empty transcript) and any live stage may fail.
type RequestRuntime struct {
	ID           string
	SessionID    string
	StateMachine *fsm.FSM

	mu      sync.Mutex
	entered time.Time
	started time.Time
	timings map[Stage]time.Duration
	failure error
}

func NewRequestRuntime(sessionID string) *RequestRuntime {
	now := time.Now()
	r := &RequestRuntime{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		entered:   now,
		started:   now,
		timings:   make(map[Stage]time.Duration),
	}
	live := []string{string(RECEIVED), string(VAD), string(ASR), string(LLM), string(TTS), string(AVATAR)}
	r.StateMachine = fsm.NewFSM(
		string(RECEIVED),
		fsm.Events{
			{Name: string(DETECT), Src: []string{string(RECEIVED)}, Dst: string(VAD)},
			{Name: string(TRANSCRIBE), Src: []string{string(RECEIVED), string(VAD)}, Dst: string(ASR)},
			{Name: string(GENERATE), Src: []string{string(RECEIVED), string(VAD), string(ASR)}, Dst: string(LLM)},
			{Name: string(SYNTHESIZE), Src: []string{string(LLM)}, Dst: string(TTS)},
			{Name: string(RENDER), Src: []string{string(TTS)}, Dst: string(AVATAR)},
			{Name: string(FINISH), Src: []string{string(VAD), string(ASR), string(LLM), string(TTS), string(AVATAR)}, Dst: string(COMPLETE)},
			{Name: string(FAIL), Src: live, Dst: string(FAILED)},
		},
		fsm.Callbacks{
			"leave_state": func(_ context.Context, e *fsm.Event) {
				r.mu.Lock()
				defer r.mu.Unlock()
				now := time.Now()
				r.timings[Stage(e.Src)] += now.Sub(r.entered)
				r.entered = now
			},
		},
	)
	return r
}

// Enter moves the request into stage.
func (r *RequestRuntime) Enter(ctx context.Context, stage Stage) error {
	ev, ok := stageEvents[stage]
	if !ok {
		return fmt.Errorf("runtime: no transition into %q", stage)
	}
	if err := r.StateMachine.Event(ctx, string(ev)); err != nil {
		return fmt.Errorf("runtime: %s -> %s: %w", r.Current(), stage, err)
	}
	return nil
}

func (r *RequestRuntime) Complete(ctx context.Context) error {
	return r.Enter(ctx, COMPLETE)
}

// Fail records cause and moves to failed. Failing a finished request is a no-op.
func (r *RequestRuntime) Fail(ctx context.Context, cause error) error {
	if r.Current().Terminal() {
		return nil
	}
	r.mu.Lock()
	r.failure = cause
	r.mu.Unlock()
	return r.Enter(ctx, FAILED)
}

func (r *RequestRuntime) Current() Stage {
	return Stage(r.StateMachine.Current())
}

func (r *RequestRuntime) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failure
}

// Timings returns how long each visited stage took.
func (r *RequestRuntime) Timings() map[Stage]time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[Stage]time.Duration, len(r.timings))
	for k, v := range r.timings {
		out[k] = v
	}
	return out
}

func (r *RequestRuntime) Elapsed() time.Duration {
	return time.Since(r.started)
}
