package pipeline

import (
	"context"
	"strings"
	"sync"

	"github.com/xpanvictor/avatarchat/internal/domains/sys_manager/runtime"
	"github.com/xpanvictor/avatarchat/internal/types"
	"github.com/xpanvictor/avatarchat/pkg/io/tts/stream"
)

// streamUnits bounds how many segmented units may queue between the LLM
// stream and per-unit synthesis.
const streamUnits = 256

// Sink receives streamed units in order. A failing sink does not stop the run.
type Sink interface {
	Chunk(ctx context.Context, c Chunk) error
}

type SinkFunc func(ctx context.Context, c Chunk) error

func (f SinkFunc) Chunk(ctx context.Context, c Chunk) error { return f(ctx, c) }

// ProcessTextStream streams the LLM reply through the segmenting buffer,
// synthesizes and renders each unit as it is cut and hands it to sink.
// The returned Result aggregates every unit.
func (o *Orchestrator) ProcessTextStream(ctx context.Context, sessionID, text string, sink Sink) (*Result, error) {
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

	o.advance(ctx, rt, runtime.LLM)
	input := o.buildInput(sess, text)
	userTurn := types.NewTurn(types.RoleUser, text)
	o.store.AppendHistory(sessionID, userTurn.Role, userTurn.Text)

	buf := stream.NewBuffer(o.cfg.StreamDebounce, streamUnits)
	voice := o.voiceFor(sess)

	var (
		wg       sync.WaitGroup
		clips    [][]byte
		ttsLost  bool
		avLost   bool
		rendered bool
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		idx := 0
		for unit := range buf.Units() {
			to := o.synthesize(ctx, unit, voice)
			frames := [][]byte{}
			if to.kind == stageDegraded {
				ttsLost = true
			} else {
				fo := o.render(ctx, unit, to.value)
				frames = fo.value
				avLost = avLost || fo.kind == stageDegraded
				rendered = true
			}
			clips = append(clips, to.value)
			res.VideoFrames = append(res.VideoFrames, frames...)

			if sink != nil {
				c := Chunk{Index: idx, Text: unit, AudioData: to.value, VideoFrames: frames}
				if err := sink.Chunk(ctx, c); err != nil {
					log.Debugf("stream sink dropped chunk %d: %v", idx, err)
				}
			}
			idx++
		}
	}()

	// The stream holds no worker slot: per-unit synthesis needs the pool
	// while tokens are still arriving.
	var reply string
	err = withTimeout(ctx, o.cfg.LLMTimeout, func(ctx context.Context) error {
		out, err := o.h.LLM.StreamPrompt(ctx, input, buf.Push)
		if out != nil {
			reply = out.Response.Content
		}
		return err
	})
	buf.Close()
	wg.Wait()

	if err != nil {
		return nil, o.fail(ctx, rt, runtime.LLM, err)
	}

	res.ResponseText = strings.TrimSpace(reply)
	replyTurn := types.NewTurn(types.RoleAssistant, res.ResponseText)
	o.store.AppendHistory(sessionID, replyTurn.Role, replyTurn.Text)
	o.record(ctx, sessionID, userTurn, replyTurn)

	if len(clips) > 0 {
		o.advance(ctx, rt, runtime.TTS)
		res.AudioData = o.joinClips(clips)
		if ttsLost {
			res.degrade(string(runtime.TTS))
		}
		if rendered {
			o.advance(ctx, rt, runtime.AVATAR)
		}
		if avLost {
			res.degrade(string(runtime.AVATAR))
		}
	}
	return o.complete(ctx, rt, res), nil
}
