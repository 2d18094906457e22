package openai

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"
	"github.com/xpanvictor/avatarchat/pkg/io/audio"
	"github.com/xpanvictor/avatarchat/pkg/io/stt"
	audioring "github.com/xpanvictor/avatarchat/pkg/io/stt/audioRing"
)

type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	Language   string
	Prompt     string
	SampleRate int
}

// Transcriber uses an OpenAI-compatible /audio/transcriptions endpoint
// (OpenAI, faster-whisper-server, LocalAI).
type Transcriber struct {
	client *goopenai.Client
	cfg    Config
}

func New(cfg Config) *Transcriber {
	clientCfg := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.Model == "" {
		cfg.Model = goopenai.Whisper1
	}
	return &Transcriber{
		client: goopenai.NewClientWithConfig(clientCfg),
		cfg:    cfg,
	}
}

func (t *Transcriber) Transcribe(ctx context.Context, in audioring.AudioInput) (stt.Transcript, error) {
	rate := int(in.SampleRate)
	if rate == 0 {
		rate = t.cfg.SampleRate
	}
	resp, err := t.client.CreateTranscription(ctx, goopenai.AudioRequest{
		Model:    t.cfg.Model,
		FilePath: "audio.wav",
		Reader:   bytes.NewReader(audio.PCMToWAV(in.Data, rate, 1)),
		Language: t.cfg.Language,
		Prompt:   t.cfg.Prompt,
		Format:   goopenai.AudioResponseFormatJSON,
	})
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("openai transcription failed: %w", err)
	}
	return stt.Transcript{
		Text:        strings.TrimSpace(resp.Text),
		Language:    resp.Language,
		GeneratedAt: time.Now(),
	}, nil
}

func (t *Transcriber) Available() bool { return true }

func (t *Transcriber) Close() error { return nil }
