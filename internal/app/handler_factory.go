package app

import (
	"context"
	"io"

	"github.com/xpanvictor/avatarchat/internal/config"
	"github.com/xpanvictor/avatarchat/internal/domains/sys_manager/pipeline"
	"github.com/xpanvictor/avatarchat/pkg/Logger"
	"github.com/xpanvictor/avatarchat/pkg/assistant"
	"github.com/xpanvictor/avatarchat/pkg/assistant/providers/gemini"
	"github.com/xpanvictor/avatarchat/pkg/assistant/providers/ollama"
	"github.com/xpanvictor/avatarchat/pkg/io/avatar"
	"github.com/xpanvictor/avatarchat/pkg/io/avatar/renderer"
	"github.com/xpanvictor/avatarchat/pkg/io/stt"
	sttopenai "github.com/xpanvictor/avatarchat/pkg/io/stt/openai"
	"github.com/xpanvictor/avatarchat/pkg/io/stt/vad"
	"github.com/xpanvictor/avatarchat/pkg/io/stt/whisper"
	"github.com/xpanvictor/avatarchat/pkg/io/tts"
	"github.com/xpanvictor/avatarchat/pkg/io/tts/piper"
)

// HandlerFactory builds one handler per pipeline stage from settings. A
// backend that is disabled or fails to initialise becomes the stage's
// Unavailable variant so the orchestrator never has to check for nil.
type HandlerFactory struct {
	cfg    *config.Settings
	logger *Logger.Logger
}

func NewHandlerFactory(cfg *config.Settings, logger *Logger.Logger) *HandlerFactory {
	return &HandlerFactory{
		cfg:    cfg,
		logger: logger.Named("handlers"),
	}
}

// Build returns the handlers plus the closers to release on shutdown, in
// creation order.
func (f *HandlerFactory) Build(ctx context.Context) (pipeline.Handlers, []io.Closer) {
	h := pipeline.Handlers{
		VAD:    f.createVAD(),
		ASR:    f.createASR(),
		LLM:    f.createLLM(ctx),
		TTS:    f.createTTS(),
		Avatar: f.createAvatar(),
		Policy: assistant.NewKeywordPolicy(f.cfg.LLM.VisualKeywords),
	}
	f.logger.Infof("handlers ready: vad=%t asr=%t llm=%t tts=%t avatar=%t",
		h.VAD.Available(), h.ASR.Available(), h.LLM.Available(), h.TTS.Available(), h.Avatar.Available())

	return h, []io.Closer{h.VAD, h.ASR, h.LLM, h.TTS, h.Avatar}
}

func (f *HandlerFactory) createVAD() vad.VAD {
	c := f.cfg.VAD
	if !c.Enabled {
		return vad.Unavailable()
	}
	vc := vad.DefaultVADConfig()
	vc.SampleRate = int32(f.cfg.Audio.SampleRate)
	if c.Threshold > 0 {
		vc.Threshold = c.Threshold
	}
	if c.MinSpeechMs > 0 {
		vc.MinSpeechMs = c.MinSpeechMs
	}
	if c.MinSilenceMs > 0 {
		vc.MinSilenceMs = c.MinSilenceMs
	}
	if c.URL == "" {
		return vad.NewEnergyVAD(vc)
	}
	return vad.NewSileroVAD(vc, f.logger.Named("vad"), c.URL)
}

func (f *HandlerFactory) createASR() stt.Transcriber {
	c := f.cfg.ASR
	switch c.Provider {
	case "whisper":
		if c.URL == "" {
			f.logger.Warn("asr: whisper selected without url, ASR disabled")
			return stt.Unavailable()
		}
		return whisper.NewWhisperClient(c.URL, f.cfg.Audio.SampleRate, f.logger.Named("asr"),
			whisper.WithLanguage(c.Language),
			whisper.WithInitialPrompt(c.InitialPrompt),
		)
	case "openai":
		return sttopenai.New(sttopenai.Config{
			BaseURL:    c.URL,
			APIKey:     c.APIKey,
			Model:      c.Model,
			Language:   c.Language,
			Prompt:     c.InitialPrompt,
			SampleRate: f.cfg.Audio.SampleRate,
		})
	case "", "none":
		return stt.Unavailable()
	default:
		f.logger.Warnf("asr: unknown provider %q, ASR disabled", c.Provider)
		return stt.Unavailable()
	}
}

func (f *HandlerFactory) createLLM(ctx context.Context) assistant.Assistant {
	c := f.cfg.LLM
	switch c.Provider {
	case "openai":
		return assistant.NewOpenAI(assistant.OpenAIConfig{
			APIBase:     c.APIBase,
			APIKey:      c.APIKey,
			Model:       c.Model,
			MaxTokens:   c.MaxTokens,
			Temperature: c.Temperature,
		})
	case "ollama":
		servers := make([]ollama.Server, 0, len(c.OllamaServers))
		for _, s := range c.OllamaServers {
			servers = append(servers, ollama.Server{URL: s.URL, Group: s.Group})
		}
		p, err := ollama.New(ollama.Config{
			Servers:     servers,
			Model:       c.Model,
			MaxTokens:   c.MaxTokens,
			Temperature: c.Temperature,
		}, f.logger.Named("ollama"))
		return f.orUnavailable(p, err)
	case "gemini":
		p, err := gemini.New(ctx, gemini.Config{
			APIKey:      c.APIKey,
			Model:       c.Model,
			MaxTokens:   c.MaxTokens,
			Temperature: c.Temperature,
		})
		return f.orUnavailable(p, err)
	case "", "none":
		return assistant.Unavailable()
	default:
		f.logger.Warnf("llm: unknown provider %q, LLM disabled", c.Provider)
		return assistant.Unavailable()
	}
}

func (f *HandlerFactory) orUnavailable(a assistant.Assistant, err error) assistant.Assistant {
	if err != nil {
		f.logger.Errorf("llm: %s init failed, LLM disabled: %v", f.cfg.LLM.Provider, err)
		return assistant.Unavailable()
	}
	return a
}

func (f *HandlerFactory) createTTS() tts.Synthesizer {
	c := f.cfg.TTS
	switch c.Provider {
	case "piper_http":
		p := piper.New(c.URL)
		p.Voice = c.Voice
		p.Rate = f.cfg.Audio.TTSSampleRate
		p.Timeout = f.cfg.Pipeline.TTSTimeout
		return p
	case "piper_process":
		p, err := piper.NewProcess(c.BinaryPath, c.ModelPath, f.logger.Named("piper"))
		if err != nil {
			f.logger.Errorf("tts: piper process init failed, TTS disabled: %v", err)
			return tts.Unavailable()
		}
		return p
	case "", "none":
		return tts.Unavailable()
	default:
		f.logger.Warnf("tts: unknown provider %q, TTS disabled", c.Provider)
		return tts.Unavailable()
	}
}

func (f *HandlerFactory) createAvatar() avatar.Renderer {
	c := f.cfg.Avatar
	if !c.Enabled || c.URL == "" {
		return avatar.Unavailable()
	}
	return renderer.New(renderer.Config{
		URL:    c.URL,
		FPS:    c.FPS,
		Width:  c.Width,
		Height: c.Height,
	}, f.logger.Named("avatar"))
}
