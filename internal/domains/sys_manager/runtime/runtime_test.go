package runtime

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuntimePaths(t *testing.T) {
	tests := []struct {
		name   string
		stages []Stage
	}{
		{name: "full audio", stages: []Stage{VAD, ASR, LLM, TTS, AVATAR, COMPLETE}},
		{name: "text", stages: []Stage{LLM, TTS, AVATAR, COMPLETE}},
		{name: "no vad", stages: []Stage{ASR, LLM, TTS, COMPLETE}},
		{name: "no speech", stages: []Stage{VAD, COMPLETE}},
		{name: "empty transcript", stages: []Stage{VAD, ASR, COMPLETE}},
		{name: "empty reply", stages: []Stage{LLM, COMPLETE}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRequestRuntime("s1")
			assert.Equal(t, RECEIVED, r.Current())
			for _, s := range tt.stages {
				require.NoError(t, r.Enter(context.Background(), s))
				assert.Equal(t, s, r.Current())
			}
			assert.True(t, r.Current().Terminal())
			assert.Contains(t, r.Timings(), tt.stages[len(tt.stages)-2])
		})
	}
}

func TestRuntimeRejectsIllegalTransitions(t *testing.T) {
	r := NewRequestRuntime("s1")
	assert.Error(t, r.Enter(context.Background(), TTS))
	assert.Error(t, r.Enter(context.Background(), COMPLETE))
	assert.Error(t, r.Enter(context.Background(), RECEIVED))

	require.NoError(t, r.Enter(context.Background(), LLM))
	assert.Error(t, r.Enter(context.Background(), ASR))
}

func TestRuntimeFail(t *testing.T) {
	r := NewRequestRuntime("s1")
	require.NoError(t, r.Enter(context.Background(), ASR))

	cause := errors.New("asr down")
	require.NoError(t, r.Fail(context.Background(), cause))
	assert.Equal(t, FAILED, r.Current())
	assert.Equal(t, cause, r.Err())

	// already terminal
	assert.NoError(t, r.Fail(context.Background(), errors.New("again")))
	assert.Equal(t, cause, r.Err())
	assert.Error(t, r.Enter(context.Background(), LLM))
}
