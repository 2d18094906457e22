package pipeline

import (
	"time"
)

type Outcome string

const (
	OutcomeCompleted       Outcome = "completed"
	OutcomeDegraded        Outcome = "degraded"
	OutcomeNoSpeech        Outcome = "no_speech"
	OutcomeEmptyTranscript Outcome = "empty_transcript"
)

// Result of one pipeline run. Byte fields are base64 encoded by encoding/json.
type Result struct {
	SessionID       string    `json:"session_id"`
	InputText       string    `json:"input_text,omitempty"`
	TranscribedText string    `json:"transcribed_text,omitempty"`
	ResponseText    string    `json:"response_text"`
	AudioData       []byte    `json:"audio_data"`
	VideoFrames     [][]byte  `json:"video_frames"`
	ProcessingTime  float64   `json:"processing_time"`
	Outcome         Outcome   `json:"outcome"`
	Degraded        []string  `json:"degraded_stages,omitempty"`
	// StageTimings is seconds spent per stage, keyed by stage name.
	StageTimings map[string]float64 `json:"stage_timings,omitempty"`
	Timestamp    time.Time          `json:"timestamp"`
}

// Terminal reports the early-exit condition of an audio run, or nil.
func (r *Result) Terminal() error {
	switch r.Outcome {
	case OutcomeNoSpeech:
		return ErrNoSpeech
	case OutcomeEmptyTranscript:
		return ErrEmptyTranscript
	}
	return nil
}

func (r *Result) degrade(stage string) {
	r.Degraded = append(r.Degraded, stage)
	r.Outcome = OutcomeDegraded
}

// Chunk is one streamed reply unit.
type Chunk struct {
	Index       int
	Text        string
	AudioData   []byte
	VideoFrames [][]byte
}
