package io

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/xpanvictor/avatarchat/pkg/Logger"
	"github.com/xpanvictor/avatarchat/pkg/io/device"
)

// Event is a flat JSON frame. Publisher fills in type, session_id and timestamp.
type Event map[string]any

// Publisher writes events for one session to its endpoint and numbers
// streamed chunks.
type Publisher struct {
	ep     device.Endpoint
	seq    atomic.Int64
	logger *Logger.Logger
}

func New(ep device.Endpoint, logger *Logger.Logger) *Publisher {
	return &Publisher{ep: ep, logger: logger}
}

func (p *Publisher) SendEvent(ctx context.Context, msgType string, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ev == nil {
		ev = Event{}
	}
	ev["type"] = msgType
	if _, ok := ev["session_id"]; !ok && p.ep.SessionID() != "" {
		ev["session_id"] = p.ep.SessionID()
	}
	if _, ok := ev["timestamp"]; !ok {
		ev["timestamp"] = time.Now().UTC()
	}
	if err := p.ep.SendJSON(ev); err != nil {
		p.logger.Debugf("publisher: dropping %s for endpoint %s: %v", msgType, p.ep.ID(), err)
		return err
	}
	return nil
}

// SendChunk emits one streamed reply unit. Audio and frames are base64
// encoded by encoding/json.
func (p *Publisher) SendChunk(ctx context.Context, text string, audio []byte, frames [][]byte) error {
	seq := p.seq.Add(1) - 1
	if frames == nil {
		frames = [][]byte{}
	}
	return p.SendEvent(ctx, "response_chunk", Event{
		"index":        seq,
		"text":         text,
		"audio_data":   audio,
		"video_frames": frames,
	})
}

// SendError emits the generic error frame.
func (p *Publisher) SendError(ctx context.Context, code, message string) error {
	return p.SendEvent(ctx, "error", Event{"error": code, "message": message})
}

func (p *Publisher) Sent() int64 { return p.seq.Load() }
