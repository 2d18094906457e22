package vad

import (
	"context"
	"fmt"
	"sync"

	audioring "github.com/xpanvictor/avatarchat/pkg/io/stt/audioRing"
)

// EnergyVAD is an RMS gate. It needs no model and serves as the fallback for Silero.
type EnergyVAD struct {
	config VADConfig
	mutex  sync.RWMutex
	closed bool
}

func NewEnergyVAD(config VADConfig) *EnergyVAD {
	return &EnergyVAD{config: config}
}

func (e *EnergyVAD) DetectVoice(ctx context.Context, audio audioring.AudioInput) (VADResult, error) {
	e.mutex.RLock()
	defer e.mutex.RUnlock()
	if e.closed {
		return VADResult{}, fmt.Errorf("VAD is closed")
	}
	if tooShort(e.config, audio) {
		return VADResult{}, nil
	}
	return energyResult(e.config, audio), nil
}

func (e *EnergyVAD) Available() bool { return true }

func (e *EnergyVAD) Close() error {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.closed = true
	return nil
}

// tooShort drops clips under MinSpeechMs.
func tooShort(cfg VADConfig, audio audioring.AudioInput) bool {
	rate := audio.SampleRate
	if rate == 0 {
		rate = cfg.SampleRate
	}
	minSamples := int(rate) * cfg.MinSpeechMs / 1000
	return len(audio.Data)/2 < minSamples || len(audio.Data) < 2
}

func energyResult(cfg VADConfig, audio audioring.AudioInput) VADResult {
	var sum int64
	n := len(audio.Data) / 2
	for i := 0; i+1 < len(audio.Data); i += 2 {
		sample := int16(uint16(audio.Data[i]) | uint16(audio.Data[i+1])<<8)
		sum += int64(sample) * int64(sample)
	}
	if n == 0 {
		return VADResult{}
	}
	energy := float32(float64(sum) / float64(n) / (32768.0 * 32768.0))

	confidence := float32(1.0)
	if cfg.EnergyThreshold > 0 {
		confidence = energy / cfg.EnergyThreshold
	}
	if confidence > 1.0 {
		confidence = 1.0
	}
	return VADResult{
		HasVoice:   energy > cfg.EnergyThreshold,
		Confidence: confidence,
	}
}
