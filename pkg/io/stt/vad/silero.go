package vad

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/xpanvictor/avatarchat/pkg/Logger"
	"github.com/xpanvictor/avatarchat/pkg/io/audio"
	audioring "github.com/xpanvictor/avatarchat/pkg/io/stt/audioRing"
)

// VADSegment represents a voice activity segment from Silero API
type VADSegment struct {
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Confidence float64 `json:"confidence"`
}

// SileroAPIResponse represents the response from Silero VAD service
type SileroAPIResponse struct {
	HasVoice         bool         `json:"has_voice"`
	Confidence       float32      `json:"confidence"`
	Segments         []VADSegment `json:"segments"`
	ProcessingTimeMs float64      `json:"processing_time_ms"`
	AudioDurationMs  float64      `json:"audio_duration_ms"`
}

// SileroVAD calls a Silero VAD HTTP service and falls back to the energy gate when it is down.
type SileroVAD struct {
	config     VADConfig
	logger     *Logger.Logger
	mutex      sync.RWMutex
	closed     bool
	httpClient *http.Client
	serviceURL string
}

func NewSileroVAD(config VADConfig, logger *Logger.Logger, serviceURL string) *SileroVAD {
	return &SileroVAD{
		config:     config,
		logger:     logger,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		serviceURL: serviceURL,
	}
}

// DetectVoice analyzes audio data using Silero VAD service
func (s *SileroVAD) DetectVoice(ctx context.Context, in audioring.AudioInput) (VADResult, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if s.closed {
		return VADResult{}, fmt.Errorf("VAD is closed")
	}
	if tooShort(s.config, in) {
		return VADResult{HasVoice: false, Confidence: 0.0}, nil
	}

	result, err := s.callSileroVADService(ctx, in)
	if err != nil {
		s.logger.Warnf("Silero VAD service failed, falling back to energy-based VAD: %v", err)
		return energyResult(s.config, in), nil
	}
	return result, nil
}

func (s *SileroVAD) Available() bool { return true }

// callSileroVADService calls the Silero VAD HTTP service
func (s *SileroVAD) callSileroVADService(ctx context.Context, in audioring.AudioInput) (VADResult, error) {
	rate := int(in.SampleRate)
	if rate == 0 {
		rate = int(s.config.SampleRate)
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "audio.wav")
	if err != nil {
		return VADResult{}, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(audio.PCMToWAV(in.Data, rate, 1)); err != nil {
		return VADResult{}, fmt.Errorf("failed to write audio data: %w", err)
	}

	_ = writer.WriteField("threshold", fmt.Sprintf("%.3f", s.config.Threshold))
	_ = writer.WriteField("min_speech_duration_ms", strconv.Itoa(s.config.MinSpeechMs))
	_ = writer.WriteField("min_silence_duration_ms", strconv.Itoa(s.config.MinSilenceMs))
	_ = writer.WriteField("sampling_rate", strconv.Itoa(rate))
	if err := writer.Close(); err != nil {
		return VADResult{}, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.serviceURL+"/vad", body)
	if err != nil {
		return VADResult{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return VADResult{}, fmt.Errorf("failed to call VAD service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return VADResult{}, fmt.Errorf("VAD service returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var sileroResp SileroAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&sileroResp); err != nil {
		return VADResult{}, fmt.Errorf("failed to decode response: %w", err)
	}

	s.logger.Debugf("Silero VAD: hasVoice=%v, confidence=%.3f, segments=%d, processing_time=%.1fms",
		sileroResp.HasVoice, sileroResp.Confidence, len(sileroResp.Segments), sileroResp.ProcessingTimeMs)

	result := VADResult{
		HasVoice:   sileroResp.HasVoice,
		Confidence: sileroResp.Confidence,
	}
	if len(sileroResp.Segments) > 0 {
		first := sileroResp.Segments[0]
		result.StartTime = int64(first.Start * float64(rate))
		result.EndTime = int64(first.End * float64(rate))
	}
	return result, nil
}

// Close releases resources
func (s *SileroVAD) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.closed = true
	s.httpClient.CloseIdleConnections()
	s.logger.Debugf("Silero VAD closed")
	return nil
}
