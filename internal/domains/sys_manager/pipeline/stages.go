package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/xpanvictor/avatarchat/internal/domains/session"
	"github.com/xpanvictor/avatarchat/internal/types"
	"github.com/xpanvictor/avatarchat/pkg/assistant"
	"github.com/xpanvictor/avatarchat/pkg/io/audio"
	audioring "github.com/xpanvictor/avatarchat/pkg/io/stt/audioRing"
)

type outcomeKind int

const (
	stageOK outcomeKind = iota
	stageDegraded
	stageTerminal
	stageFailed
)

// stageOutcome is what every stage hands back; the orchestrator alone
// decides whether it ends the request.
type stageOutcome[T any] struct {
	kind  outcomeKind
	value T
	err   error
}

func succeeded[T any](v T) stageOutcome[T] { return stageOutcome[T]{kind: stageOK, value: v} }

func degradedTo[T any](v T, err error) stageOutcome[T] {
	return stageOutcome[T]{kind: stageDegraded, value: v, err: err}
}

func terminated[T any]() stageOutcome[T] { return stageOutcome[T]{kind: stageTerminal} }

func failedWith[T any](err error) stageOutcome[T] { return stageOutcome[T]{kind: stageFailed, err: err} }

// call runs fn on the worker pool. The timeout starts once a slot is held,
// so time spent queueing for a worker is not charged to the backend.
func (o *Orchestrator) call(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	return o.pool.Do(ctx, func(ctx context.Context) error {
		return withTimeout(ctx, timeout, fn)
	})
}

func withTimeout(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return fn(ctx)
}

// detectSpeech never fails the request: a broken VAD counts as speech.
func (o *Orchestrator) detectSpeech(ctx context.Context, in audioring.AudioInput) stageOutcome[bool] {
	var hasVoice bool
	err := o.call(ctx, o.cfg.ASRTimeout, func(ctx context.Context) error {
		res, err := o.h.VAD.DetectVoice(ctx, in)
		hasVoice = res.HasVoice
		return err
	})
	if err != nil {
		o.logger.Warnf("vad failed, assuming speech: %v", err)
		return degradedTo(true, err)
	}
	if !hasVoice {
		return terminated[bool]()
	}
	return succeeded(true)
}

func (o *Orchestrator) transcribe(ctx context.Context, in audioring.AudioInput) stageOutcome[string] {
	var text string
	err := o.call(ctx, o.cfg.ASRTimeout, func(ctx context.Context) error {
		tr, err := o.h.ASR.Transcribe(ctx, in)
		text = tr.Text
		return err
	})
	if err != nil {
		return failedWith[string](err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return terminated[string]()
	}
	return succeeded(text)
}

func (o *Orchestrator) generate(ctx context.Context, input assistant.AssistantInput) stageOutcome[string] {
	var reply string
	err := o.call(ctx, o.cfg.LLMTimeout, func(ctx context.Context) error {
		out, err := o.h.LLM.ProcessPrompt(ctx, input)
		if err != nil {
			return err
		}
		reply = out.Response.Content
		return nil
	})
	if err != nil {
		return failedWith[string](err)
	}
	return succeeded(strings.TrimSpace(reply))
}

// synthesize substitutes silence on error or timeout.
func (o *Orchestrator) synthesize(ctx context.Context, text, voice string) stageOutcome[[]byte] {
	var wav []byte
	err := o.call(ctx, o.cfg.TTSTimeout, func(ctx context.Context) error {
		var err error
		wav, err = o.h.TTS.Synthesize(ctx, text, voice)
		return err
	})
	if err == nil && len(wav) == 0 {
		err = errEmptyAudio
	}
	if err != nil {
		o.logger.Warnf("tts degraded to silence: %v", err)
		return degradedTo(audio.Silence(o.cfg.TTSSampleRate, o.cfg.SilenceDuration), err)
	}
	return succeeded(wav)
}

// render degrades to no frames.
func (o *Orchestrator) render(ctx context.Context, text string, wav []byte) stageOutcome[[][]byte] {
	if !o.h.Avatar.Available() {
		return succeeded([][]byte{})
	}
	var frames [][]byte
	err := o.call(ctx, o.cfg.AvatarTimeout, func(ctx context.Context) error {
		var err error
		frames, err = o.h.Avatar.Render(ctx, text, wav)
		return err
	})
	if err != nil {
		o.logger.Warnf("avatar degraded to no frames: %v", err)
		return degradedTo([][]byte{}, err)
	}
	if frames == nil {
		frames = [][]byte{}
	}
	return succeeded(frames)
}

// buildInput assembles system prompt, recent history and the new user message.
func (o *Orchestrator) buildInput(sess session.Session, text string) assistant.AssistantInput {
	history := recentTurns(sess.History, o.cfg.HistoryTurns)
	msgs := make([]assistant.AssistantMessage, 0, len(history)+2)
	if o.cfg.SystemPrompt != "" {
		msgs = append(msgs, assistant.AssistantMessage{
			Content: o.cfg.SystemPrompt,
			MsgRole: assistant.SYSTEM,
		})
	}
	for _, t := range history {
		msgs = append(msgs, assistant.AssistantMessage{
			Content:   t.Text,
			CreatedAt: t.Timestamp,
			MsgRole:   assistant.Role(t.Role),
		})
	}

	user := assistant.AssistantMessage{
		Content:   text,
		CreatedAt: time.Now(),
		MsgRole:   assistant.USER,
	}
	if len(sess.CameraFrame) > 0 && o.h.Policy != nil && o.h.Policy.WantsImage(text) {
		user.Image = sess.CameraFrame
		user.ImageMIME = sess.CameraMIME
		o.logger.Debugf("attaching camera frame (%d bytes) to visual question", len(sess.CameraFrame))
	}
	return assistant.NewAssistantInput(append(msgs, user), sess.ID)
}

// recentTurns keeps the last n conversation turns. A turn is a user entry
// plus the assistant reply, so that is 2n history entries.
func recentTurns(history []types.Turn, n int) []types.Turn {
	if n > 0 && len(history) > 2*n {
		return history[len(history)-2*n:]
	}
	return history
}

// voiceFor prefers a config_update override over the session's voice.
func (o *Orchestrator) voiceFor(sess session.Session) string {
	if v, ok := sess.Config["voice_id"].(string); ok && v != "" {
		return v
	}
	if sess.VoiceID != "" {
		return sess.VoiceID
	}
	return o.cfg.Voice
}

// joinClips concatenates streamed clips. Clips whose format differs from
// the first one (silence placeholders, usually) are dropped. If even that
// fails the first clip is returned on its own.
func (o *Orchestrator) joinClips(clips [][]byte) []byte {
	if len(clips) == 0 {
		return nil
	}
	wav, err := audio.Concat(clips)
	if err == nil {
		return wav
	}
	first, _, derr := audio.Decode(clips[0])
	if derr != nil {
		o.logger.Warnf("joining %d clips: %v; first clip undecodable: %v", len(clips), err, derr)
		return clips[0]
	}
	keep := make([][]byte, 0, len(clips))
	for _, c := range clips {
		if f, _, err := audio.Decode(c); err == nil && f.SampleRate == first.SampleRate && f.Channels == first.Channels {
			keep = append(keep, c)
		}
	}
	wav, err = audio.Concat(keep)
	if err != nil {
		o.logger.Warnf("joining %d matching clips: %v", len(keep), err)
		return clips[0]
	}
	if len(keep) < len(clips) {
		o.logger.Debugf("dropped %d clips with a different format", len(clips)-len(keep))
	}
	return wav
}
