package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/xpanvictor/avatarchat/internal/config"
	"github.com/xpanvictor/avatarchat/internal/domains/session"
	"github.com/xpanvictor/avatarchat/internal/domains/sys_manager/runtime"
	"github.com/xpanvictor/avatarchat/internal/types"
	"github.com/xpanvictor/avatarchat/pkg/Logger"
	"github.com/xpanvictor/avatarchat/pkg/assistant"
	"github.com/xpanvictor/avatarchat/pkg/io/avatar"
	"github.com/xpanvictor/avatarchat/pkg/io/stt"
	audioring "github.com/xpanvictor/avatarchat/pkg/io/stt/audioRing"
	"github.com/xpanvictor/avatarchat/pkg/io/stt/vad"
	"github.com/xpanvictor/avatarchat/pkg/io/tts"
)

// Handlers are the model backends. Every field must be set; use the
// package level Unavailable() variants for missing capabilities.
type Handlers struct {
	VAD    vad.VAD
	ASR    stt.Transcriber
	LLM    assistant.Assistant
	TTS    tts.Synthesizer
	Avatar avatar.Renderer
	Policy assistant.VisualPolicy
}

type Config struct {
	SystemPrompt    string
	HistoryTurns    int
	Voice           string
	ASRTimeout      time.Duration
	LLMTimeout      time.Duration
	TTSTimeout      time.Duration
	AvatarTimeout   time.Duration
	StreamDebounce  time.Duration
	TTSSampleRate   int
	SilenceDuration time.Duration
}

func ConfigFromSettings(s *config.Settings, systemPrompt string) Config {
	return Config{
		SystemPrompt:    systemPrompt,
		HistoryTurns:    s.Pipeline.HistoryTurns,
		Voice:           s.TTS.Voice,
		ASRTimeout:      s.Pipeline.ASRTimeout,
		LLMTimeout:      s.Pipeline.LLMTimeout,
		TTSTimeout:      s.Pipeline.TTSTimeout,
		AvatarTimeout:   s.Pipeline.AvatarTimeout,
		StreamDebounce:  s.Pipeline.StreamDebounce,
		TTSSampleRate:   s.Audio.TTSSampleRate,
		SilenceDuration: s.Audio.SilenceDuration,
	}
}

// TurnRecorder mirrors completed turns somewhere outside the process.
type TurnRecorder interface {
	RecordTurn(ctx context.Context, sessionID string, turns ...types.Turn) error
}

type Option func(*Orchestrator)

func WithRecorder(r TurnRecorder) Option { return func(o *Orchestrator) { o.recorder = r } }

func WithPool(p *Pool) Option { return func(o *Orchestrator) { o.pool = p } }

type Orchestrator struct {
	h         Handlers
	cfg       Config
	store     session.Store
	pool      *Pool
	stats     Stats
	recorder  TurnRecorder
	logger    *Logger.Logger
	startedAt time.Time
}

func New(h Handlers, store session.Store, cfg Config, logger *Logger.Logger, opts ...Option) *Orchestrator {
	if cfg.TTSSampleRate <= 0 {
		cfg.TTSSampleRate = 24000
	}
	if cfg.SilenceDuration <= 0 {
		cfg.SilenceDuration = time.Second
	}
	if cfg.TTSTimeout <= 0 {
		cfg.TTSTimeout = 5 * time.Second
	}
	if cfg.AvatarTimeout <= 0 {
		cfg.AvatarTimeout = 10 * time.Second
	}
	o := &Orchestrator{
		h:         h,
		cfg:       cfg,
		store:     store,
		logger:    logger.Named("pipeline"),
		startedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.pool == nil {
		o.pool = NewPool(10)
	}
	return o
}

func (o *Orchestrator) ProcessText(ctx context.Context, sessionID, text string) (*Result, error) {
	return o.process(ctx, sessionID, text, nil)
}

// ProcessAudio runs VAD and ASR before the text stages. A no speech or
// empty transcript run returns a Result whose Terminal() is non-nil.
func (o *Orchestrator) ProcessAudio(ctx context.Context, sessionID string, in audioring.AudioInput) (*Result, error) {
	return o.process(ctx, sessionID, "", &in)
}

func (o *Orchestrator) process(ctx context.Context, sessionID, text string, in *audioring.AudioInput) (*Result, error) {
	release, err := o.store.AcquireTurn(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	sess, err := o.store.Get(sessionID)
	if err != nil {
		return nil, err
	}

	o.stats.Begin()
	rt := runtime.NewRequestRuntime(sessionID)
	log := o.logger.ForSession(sessionID)
	res := &Result{
		SessionID:   sessionID,
		InputText:   text,
		VideoFrames: [][]byte{},
		Outcome:     OutcomeCompleted,
	}

	if in != nil {
		if o.h.VAD.Available() {
			o.advance(ctx, rt, runtime.VAD)
			if vo := o.detectSpeech(ctx, *in); vo.kind == stageTerminal {
				return o.finishEarly(ctx, rt, res, OutcomeNoSpeech), nil
			}
		}

		o.advance(ctx, rt, runtime.ASR)
		ao := o.transcribe(ctx, *in)
		switch ao.kind {
		case stageFailed:
			return nil, o.fail(ctx, rt, runtime.ASR, ao.err)
		case stageTerminal:
			return o.finishEarly(ctx, rt, res, OutcomeEmptyTranscript), nil
		}
		text = ao.value
		res.TranscribedText = text
		log.Debugf("transcribed %q", text)
	}

	o.advance(ctx, rt, runtime.LLM)
	input := o.buildInput(sess, text)
	userTurn := types.NewTurn(types.RoleUser, text)
	o.store.AppendHistory(sessionID, userTurn.Role, userTurn.Text)

	lo := o.generate(ctx, input)
	if lo.kind == stageFailed {
		return nil, o.fail(ctx, rt, runtime.LLM, lo.err)
	}
	res.ResponseText = lo.value
	replyTurn := types.NewTurn(types.RoleAssistant, lo.value)
	o.store.AppendHistory(sessionID, replyTurn.Role, replyTurn.Text)
	o.record(ctx, sessionID, userTurn, replyTurn)

	if res.ResponseText != "" {
		o.advance(ctx, rt, runtime.TTS)
		to := o.synthesize(ctx, res.ResponseText, o.voiceFor(sess))
		res.AudioData = to.value
		if to.kind == stageDegraded {
			res.degrade(string(runtime.TTS))
		} else {
			o.advance(ctx, rt, runtime.AVATAR)
			fo := o.render(ctx, res.ResponseText, res.AudioData)
			res.VideoFrames = fo.value
			if fo.kind == stageDegraded {
				res.degrade(string(runtime.AVATAR))
			}
		}
	}

	return o.complete(ctx, rt, res), nil
}

func (o *Orchestrator) complete(ctx context.Context, rt *runtime.RequestRuntime, res *Result) *Result {
	o.advance(ctx, rt, runtime.COMPLETE)
	elapsed := rt.Elapsed()
	res.ProcessingTime = elapsed.Seconds()
	res.StageTimings = stageTimings(rt)
	res.Timestamp = time.Now().UTC()
	avg := o.stats.Success(elapsed)
	o.logger.ForSession(res.SessionID).Infof("request %s %s in %s (avg %.3fs) stages=%v",
		rt.ID, res.Outcome, elapsed, avg, res.StageTimings)
	return res
}

// finishEarly ends an audio run that found nothing to answer. Only the
// total counter moves.
func (o *Orchestrator) finishEarly(ctx context.Context, rt *runtime.RequestRuntime, res *Result, outcome Outcome) *Result {
	o.advance(ctx, rt, runtime.COMPLETE)
	res.Outcome = outcome
	res.ProcessingTime = rt.Elapsed().Seconds()
	res.StageTimings = stageTimings(rt)
	res.Timestamp = time.Now().UTC()
	o.logger.ForSession(res.SessionID).Infof("request %s ended early: %s stages=%v", rt.ID, outcome, res.StageTimings)
	return res
}

// fail ends the request at stage. A cancelled caller is not a backend
// failure and stays out of the failure count.
func (o *Orchestrator) fail(ctx context.Context, rt *runtime.RequestRuntime, stage runtime.Stage, cause error) error {
	log := o.logger.ForSession(rt.SessionID)
	err := handlerFailure(stage, cause)
	if ferr := rt.Fail(context.WithoutCancel(ctx), err); ferr != nil {
		log.Errorf("request %s: %v", rt.ID, ferr)
	}
	if errors.Is(cause, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		log.Debugf("request %s cancelled during %s", rt.ID, stage)
		return err
	}
	o.stats.Failure()
	log.Errorf("request %s failed: %v", rt.ID, err)
	return err
}

// advance moves rt into stage. An illegal transition is a bug in the
// orchestrator; it is logged and the request carries on.
func (o *Orchestrator) advance(ctx context.Context, rt *runtime.RequestRuntime, stage runtime.Stage) {
	if err := rt.Enter(ctx, stage); err != nil {
		o.logger.ForSession(rt.SessionID).Errorf("request %s: %v", rt.ID, err)
	}
}

// stageTimings reports seconds spent in each visited stage.
func stageTimings(rt *runtime.RequestRuntime) map[string]float64 {
	timings := rt.Timings()
	out := make(map[string]float64, len(timings))
	for stage, d := range timings {
		if stage == runtime.RECEIVED {
			continue
		}
		out[string(stage)] = d.Seconds()
	}
	return out
}

// record hands the turn to the recorder without holding up the reply.
func (o *Orchestrator) record(ctx context.Context, sessionID string, turns ...types.Turn) {
	if o.recorder == nil {
		return
	}
	go func() {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := o.recorder.RecordTurn(rctx, sessionID, turns...); err != nil {
			o.logger.Warnf("archiving turn for session %s: %v", sessionID, err)
		}
	}()
}

// IdleFrames returns count idle avatar frames and advances the session's
// cursor. A missing renderer yields no frames.
func (o *Orchestrator) IdleFrames(ctx context.Context, sessionID string, count int) ([][]byte, error) {
	sess, err := o.store.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if count <= 0 || !o.h.Avatar.Available() {
		return [][]byte{}, nil
	}

	var (
		frames [][]byte
		next   int
	)
	err = o.call(ctx, o.cfg.AvatarTimeout, func(ctx context.Context) error {
		var err error
		frames, next, err = o.h.Avatar.IdleFrames(ctx, sess.IdleCursor, count)
		return err
	})
	if err != nil {
		o.logger.Warnf("idle frames for session %s: %v", sessionID, err)
		return [][]byte{}, nil
	}
	o.store.SetIdleCursor(sessionID, next)
	return frames, nil
}

func (o *Orchestrator) Stats() StatsSnapshot { return o.stats.Snapshot() }

type ComponentStatus struct {
	Status    string `json:"status"`
	Available bool   `json:"available"`
}

type Status struct {
	OverallStatus string                     `json:"overall_status"`
	Healthy       bool                       `json:"healthy"`
	Components    map[string]ComponentStatus `json:"components"`
	Stats         StatsSnapshot              `json:"stats"`
	Workers       PoolStats                  `json:"workers"`
	StartedAt     time.Time                  `json:"started_at"`
	Uptime        float64                    `json:"uptime"`
}

// Status is healthy when ASR, LLM and TTS are all available.
func (o *Orchestrator) Status() Status {
	comps := map[string]bool{
		"vad":    o.h.VAD.Available(),
		"asr":    o.h.ASR.Available(),
		"llm":    o.h.LLM.Available(),
		"tts":    o.h.TTS.Available(),
		"avatar": o.h.Avatar.Available(),
	}
	st := Status{
		Components: make(map[string]ComponentStatus, len(comps)),
		Stats:      o.stats.Snapshot(),
		Workers:    o.pool.Stats(),
		StartedAt:  o.startedAt,
		Uptime:     time.Since(o.startedAt).Seconds(),
	}
	for name, up := range comps {
		cs := ComponentStatus{Status: "unavailable", Available: up}
		if up {
			cs.Status = "healthy"
		}
		st.Components[name] = cs
	}
	st.Healthy = comps["asr"] && comps["llm"] && comps["tts"]
	st.OverallStatus = "unhealthy"
	if st.Healthy {
		st.OverallStatus = "healthy"
	}
	return st
}

// IsHandlerFailure is a convenience for transports.
func IsHandlerFailure(err error) bool { return errors.Is(err, ErrHandlerFailure) }
