package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/xpanvictor/avatarchat/pkg/Logger"
	"github.com/xpanvictor/avatarchat/pkg/io/audio"
	"github.com/xpanvictor/avatarchat/pkg/io/stt"
	audioring "github.com/xpanvictor/avatarchat/pkg/io/stt/audioRing"
)

// TranscriptionResponse represents the response from Whisper STT service
type TranscriptionResponse struct {
	Text        string                 `json:"text"`
	Language    string                 `json:"language"`
	Segments    []TranscriptionSegment `json:"segments,omitempty"`
	GeneratedAt time.Time
}

// TranscriptionSegment represents a timed segment of transcription
type TranscriptionSegment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	ID    int     `json:"id"`
}

// WhisperClient talks to a whisper-asr-webservice compatible /asr endpoint.
type WhisperClient struct {
	baseURL       string
	language      string
	initialPrompt string
	sampleRate    int
	httpClient    *http.Client
	logger        *Logger.Logger
}

type Option func(*WhisperClient)

func WithLanguage(lang string) Option { return func(w *WhisperClient) { w.language = lang } }

func WithInitialPrompt(p string) Option { return func(w *WhisperClient) { w.initialPrompt = p } }

func WithHTTPClient(c *http.Client) Option { return func(w *WhisperClient) { w.httpClient = c } }

func NewWhisperClient(baseURL string, sampleRate int, logger *Logger.Logger, opts ...Option) *WhisperClient {
	w := &WhisperClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		sampleRate: sampleRate,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Transcribe implements stt.Transcriber.
func (w *WhisperClient) Transcribe(ctx context.Context, in audioring.AudioInput) (stt.Transcript, error) {
	resp, err := w.TranscribeAudio(ctx, []audioring.AudioInput{in})
	if err != nil {
		return stt.Transcript{}, err
	}
	return stt.Transcript{
		Text:        strings.TrimSpace(resp.Text),
		Language:    resp.Language,
		GeneratedAt: resp.GeneratedAt,
	}, nil
}

func (w *WhisperClient) Available() bool { return true }

func (w *WhisperClient) Close() error {
	w.httpClient.CloseIdleConnections()
	return nil
}

// TranscribeAudio sends audio frames to Whisper service and returns transcription
func (w *WhisperClient) TranscribeAudio(ctx context.Context, audioFrames []audioring.AudioInput) (*TranscriptionResponse, error) {
	if len(audioFrames) == 0 {
		return nil, fmt.Errorf("no audio frames provided")
	}

	rate := int(audioFrames[0].SampleRate)
	if rate == 0 {
		rate = w.sampleRate
	}
	wavData := audio.PCMToWAV(audioring.Join(audioFrames), rate, 1)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("audio_file", "audio.wav")
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(wavData); err != nil {
		return nil, fmt.Errorf("failed to write audio data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	q := url.Values{}
	q.Set("encode", "true")
	q.Set("task", "transcribe")
	q.Set("output", "json")
	if w.language != "" {
		q.Set("language", w.language)
	}
	if w.initialPrompt != "" {
		q.Set("initial_prompt", w.initialPrompt)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.baseURL+"/asr?"+q.Encode(), &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("whisper service returned status %d: %s", resp.StatusCode, string(responseBody))
	}

	var transcription TranscriptionResponse
	if err := json.Unmarshal(responseBody, &transcription); err != nil {
		// some deployments ignore output=json and answer with plain text
		w.logger.Debugf("whisper: treating non-json response as plain text (%d bytes)", len(responseBody))
		return &TranscriptionResponse{
			Text:        string(responseBody),
			Language:    w.language,
			GeneratedAt: time.Now(),
		}, nil
	}
	transcription.GeneratedAt = time.Now()

	w.logger.Debugf("Whisper transcription: %q (language: %s)", transcription.Text, transcription.Language)
	return &transcription, nil
}
