package vad

import (
	"context"

	audioring "github.com/xpanvictor/avatarchat/pkg/io/stt/audioRing"
)

// VADResult represents the result of voice activity detection
type VADResult struct {
	HasVoice   bool    `json:"hasVoice"`
	Confidence float32 `json:"confidence"`
	StartTime  int64   `json:"startTime,omitempty"` // Start time in samples
	EndTime    int64   `json:"endTime,omitempty"`   // End time in samples
}

// VAD interface for voice activity detection. Audio is 16-bit mono PCM.
type VAD interface {
	DetectVoice(ctx context.Context, audio audioring.AudioInput) (VADResult, error)
	Available() bool
	Close() error
}

// VADConfig contains configuration for VAD
type VADConfig struct {
	SampleRate      int32   `json:"sampleRate"`
	Threshold       float32 `json:"threshold"`       // speech probability threshold (0.0-1.0)
	EnergyThreshold float32 `json:"energyThreshold"` // normalized mean square for the fallback
	MinSpeechMs     int     `json:"minSpeechMs"`
	MinSilenceMs    int     `json:"minSilenceMs"`
}

// DefaultVADConfig returns default VAD configuration optimized for speech
func DefaultVADConfig() VADConfig {
	return VADConfig{
		SampleRate:      16000,
		Threshold:       0.3,
		EnergyThreshold: 0.0005,
		MinSpeechMs:     100,
		MinSilenceMs:    200,
	}
}

type unavailable struct{}

// Unavailable reports speech for everything so audio still reaches ASR.
func Unavailable() VAD { return unavailable{} }

func (unavailable) DetectVoice(ctx context.Context, audio audioring.AudioInput) (VADResult, error) {
	return VADResult{HasVoice: true, Confidence: 0}, nil
}
func (unavailable) Available() bool { return false }
func (unavailable) Close() error    { return nil }
