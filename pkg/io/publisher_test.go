package io

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xpanvictor/avatarchat/pkg/Logger"
	"github.com/xpanvictor/avatarchat/pkg/io/device"
)

type recordingEndpoint struct {
	mu     sync.Mutex
	frames []map[string]any
	dead   bool
}

func (r *recordingEndpoint) ID() device.EndpointID { return device.EndpointID(uuid.Nil) }
func (r *recordingEndpoint) SessionID() string { return "sess-1" }
func (r *recordingEndpoint) Transport() device.Transport { return device.TransportWS }
func (r *recordingEndpoint) Touch() {}
func (r *recordingEndpoint) IsAlive() bool { return !r.dead }
func (r *recordingEndpoint) Close() error { r.dead = true; return nil }
func (r *recordingEndpoint) LastActive() time.Time { return time.Time{} }

func (r *recordingEndpoint) SendJSON(v any) error {
	if r.dead {
		return device.ErrEndpointClosed
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	r.mu.Lock()
	r.frames = append(r.frames, m)
	r.mu.Unlock()
	return nil
}

func TestPublisherEnvelope(t *testing.T) {
	ep := &recordingEndpoint{}
	p := New(ep, Logger.NewNop())

	require.NoError(t, p.SendEvent(context.Background(), "pong", nil))
	require.Len(t, ep.frames, 1)
	assert.Equal(t, "pong", ep.frames[0]["type"])
	assert.Equal(t, "sess-1", ep.frames[0]["session_id"])
	assert.NotEmpty(t, ep.frames[0]["timestamp"])
}

func TestPublisherChunksAreNumbered(t *testing.T) {
	ep := &recordingEndpoint{}
	p := New(ep, Logger.NewNop())

	require.NoError(t, p.SendChunk(context.Background(), "Hello.", []byte{1, 2}, nil))
	require.NoError(t, p.SendChunk(context.Background(), "How are you", nil, [][]byte{{3}}))

	require.Len(t, ep.frames, 2)
	assert.EqualValues(t, 0, ep.frames[0]["index"])
	assert.EqualValues(t, 1, ep.frames[1]["index"])
	assert.Equal(t, "AQI=", ep.frames[0]["audio_data"])
	assert.Equal(t, []any{}, ep.frames[0]["video_frames"])
	assert.Equal(t, []any{"Aw=="}, ep.frames[1]["video_frames"])
	assert.EqualValues(t, 2, p.Sent())
}

func TestPublisherClosedEndpoint(t *testing.T) {
	ep := &recordingEndpoint{dead: true}
	p := New(ep, Logger.NewNop())
	assert.ErrorIs(t, p.SendError(context.Background(), "x", "y"), device.ErrEndpointClosed)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, New(&recordingEndpoint{}, Logger.NewNop()).SendEvent(ctx, "pong", nil), context.Canceled)
}
