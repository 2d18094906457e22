package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xpanvictor/avatarchat/internal/config"
	"github.com/xpanvictor/avatarchat/internal/domains/session"
	"github.com/xpanvictor/avatarchat/pkg/Logger"
	"github.com/xpanvictor/avatarchat/pkg/assistant"
	"github.com/xpanvictor/avatarchat/pkg/io/audio"
	"github.com/xpanvictor/avatarchat/pkg/io/avatar"
	"github.com/xpanvictor/avatarchat/pkg/io/stt"
	audioring "github.com/xpanvictor/avatarchat/pkg/io/stt/audioRing"
	"github.com/xpanvictor/avatarchat/pkg/io/stt/vad"
)

type fakeVAD struct {
	calls    atomic.Int32
	hasVoice bool
	err      error
}

func (f *fakeVAD) DetectVoice(ctx context.Context, in audioring.AudioInput) (vad.VADResult, error) {
	f.calls.Add(1)
	return vad.VADResult{HasVoice: f.hasVoice}, f.err
}
func (f *fakeVAD) Available() bool { return true }
func (f *fakeVAD) Close() error    { return nil }

type fakeASR struct {
	calls atomic.Int32
	text  string
	err   error
}

func (f *fakeASR) Transcribe(ctx context.Context, in audioring.AudioInput) (stt.Transcript, error) {
	f.calls.Add(1)
	return stt.Transcript{Text: f.text}, f.err
}
func (f *fakeASR) Available() bool { return true }
func (f *fakeASR) Close() error    { return nil }

type fakeLLM struct {
	calls    atomic.Int32
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	delay    time.Duration
	err      error
	tokens   []string
	tokenGap time.Duration
	// block waits for the caller to give up instead of answering.
	block bool

	mu     sync.Mutex
	inputs []assistant.AssistantInput
}

func (f *fakeLLM) enter(input assistant.AssistantInput) func() {
	f.calls.Add(1)
	n := f.inFlight.Add(1)
	for {
		m := f.maxSeen.Load()
		if n <= m || f.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	f.mu.Lock()
	f.inputs = append(f.inputs, input)
	f.mu.Unlock()
	return func() { f.inFlight.Add(-1) }
}

func (f *fakeLLM) lastInput() assistant.AssistantInput {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inputs[len(f.inputs)-1]
}

func (f *fakeLLM) ProcessPrompt(ctx context.Context, input assistant.AssistantInput) (*assistant.AssistantOutput, error) {
	defer f.enter(input)()
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return nil, f.err
	}
	last := input.Msgs[len(input.Msgs)-1]
	return assistant.NewReply("r", "echo: "+last.Content), nil
}

func (f *fakeLLM) StreamPrompt(ctx context.Context, input assistant.AssistantInput, fn assistant.DeltaFunc) (*assistant.AssistantOutput, error) {
	defer f.enter(input)()
	if f.err != nil {
		return nil, f.err
	}
	full := ""
	for i, tok := range f.tokens {
		if i > 0 && f.tokenGap > 0 {
			time.Sleep(f.tokenGap)
		}
		if err := fn(tok); err != nil {
			return nil, err
		}
		full += tok
	}
	return assistant.NewReply("r", full), nil
}
func (f *fakeLLM) Available() bool { return true }
func (f *fakeLLM) Close() error    { return nil }

type fakeTTS struct {
	calls atomic.Int32
	hang  bool
	err   error
}

func (f *fakeTTS) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	f.calls.Add(1)
	if f.hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return audio.PCMToWAV([]byte{1, 0, 2, 0}, 24000, 1), nil
}
func (f *fakeTTS) Available() bool { return true }
func (f *fakeTTS) Close() error    { return nil }

type fakeAvatar struct {
	calls atomic.Int32
	err   error
}

func (f *fakeAvatar) Render(ctx context.Context, text string, wav []byte) ([][]byte, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return [][]byte{{0xff, 0xd8}, {0xff, 0xd9}}, nil
}

func (f *fakeAvatar) IdleFrames(ctx context.Context, cursor, count int) ([][]byte, int, error) {
	frames := make([][]byte, count)
	for i := range frames {
		frames[i] = []byte{byte(cursor + i)}
	}
	return frames, (cursor + count) % 10, nil
}
func (f *fakeAvatar) Available() bool { return true }
func (f *fakeAvatar) Close() error    { return nil }

type rig struct {
	vad    *fakeVAD
	asr    *fakeASR
	llm    *fakeLLM
	tts    *fakeTTS
	avatar *fakeAvatar
	store  session.Store
	orch   *Orchestrator
	// workers sizes the orchestrator's pool.
	workers int
}

func newRig(mutate func(*rig, *Config)) *rig {
	r := &rig{
		vad:    &fakeVAD{hasVoice: true},
		asr:    &fakeASR{text: "dzień dobry"},
		llm:    &fakeLLM{},
		tts:    &fakeTTS{},
		avatar: &fakeAvatar{},
		store: session.NewStore(config.SessionConfig{
			MaxSessions: 100,
			Timeout:     time.Hour,
			HistoryCap:  50,
		}, Logger.NewNop()),
		workers: 10,
	}
	cfg := Config{
		SystemPrompt:   "You are a friendly avatar.",
		HistoryTurns:   10,
		ASRTimeout:     time.Second,
		LLMTimeout:     time.Second,
		TTSTimeout:     time.Second,
		AvatarTimeout:  time.Second,
		StreamDebounce: time.Hour,
		TTSSampleRate:  24000,
	}
	if mutate != nil {
		mutate(r, &cfg)
	}
	r.orch = New(Handlers{
		VAD:    r.vad,
		ASR:    r.asr,
		LLM:    r.llm,
		TTS:    r.tts,
		Avatar: r.avatar,
		Policy: assistant.NewKeywordPolicy([]string{"what do you see"}),
	}, r.store, cfg, Logger.NewNop(), WithPool(NewPool(r.workers)))
	return r
}

func (r *rig) newSession() string {
	s, err := r.store.Create(session.CreateOptions{})
	if err != nil {
		panic(err)
	}
	return s.ID
}

var errBackend = errors.New("backend down")

var _ avatar.Renderer = (*fakeAvatar)(nil)
