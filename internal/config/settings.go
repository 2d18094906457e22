package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const EnvPrefix = "AVATARCHAT"

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	APIPrefix    string        `mapstructure:"api_prefix"`
	CORSOrigins  []string      `mapstructure:"cors_origins"`
	EnableSSL    bool          `mapstructure:"enable_ssl"`
	SSLCertPath  string        `mapstructure:"ssl_cert_path"`
	SSLKeyPath   string        `mapstructure:"ssl_key_path"`
	ShutdownWait time.Duration `mapstructure:"shutdown_wait"`
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type SessionConfig struct {
	MaxSessions     int           `mapstructure:"max_sessions"`
	Timeout         time.Duration `mapstructure:"timeout"`
	SweepInterval   time.Duration `mapstructure:"sweep_interval"`
	HistoryCap      int           `mapstructure:"history_cap"`
	DefaultLanguage string        `mapstructure:"default_language"`
}

type PipelineConfig struct {
	Workers          int           `mapstructure:"workers"`
	HistoryTurns     int           `mapstructure:"history_turns"`
	MaxTextLength    int           `mapstructure:"max_text_length"`
	MaxAudioDuration time.Duration `mapstructure:"max_audio_duration"`
	MaxUploadBytes   int64         `mapstructure:"max_upload_bytes"`
	ASRTimeout       time.Duration `mapstructure:"asr_timeout"`
	LLMTimeout       time.Duration `mapstructure:"llm_timeout"`
	TTSTimeout       time.Duration `mapstructure:"tts_timeout"`
	AvatarTimeout    time.Duration `mapstructure:"avatar_timeout"`
	StreamDebounce   time.Duration `mapstructure:"stream_debounce"`
}

type AudioConfig struct {
	SampleRate      int           `mapstructure:"sample_rate"`
	TTSSampleRate   int           `mapstructure:"tts_sample_rate"`
	SilenceDuration time.Duration `mapstructure:"silence_duration"`
	RingBufferBytes int           `mapstructure:"ring_buffer_bytes"`
}

type VADConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	URL          string  `mapstructure:"url"`
	Threshold    float32 `mapstructure:"threshold"`
	MinSpeechMs  int     `mapstructure:"min_speech_ms"`
	MinSilenceMs int     `mapstructure:"min_silence_ms"`
}

type ASRConfig struct {
	// Provider is one of whisper, openai or none.
	Provider      string `mapstructure:"provider"`
	URL           string `mapstructure:"url"`
	Language      string `mapstructure:"language"`
	Model         string `mapstructure:"model"`
	APIKey        string `mapstructure:"api_key"`
	InitialPrompt string `mapstructure:"initial_prompt"`
}

type OllamaServer struct {
	URL   string `mapstructure:"url"`
	Group string `mapstructure:"group"`
}

type LLMConfig struct {
	// Provider is one of openai, ollama, gemini or none.
	Provider       string         `mapstructure:"provider"`
	APIBase        string         `mapstructure:"api_base"`
	APIKey         string         `mapstructure:"api_key"`
	Model          string         `mapstructure:"model"`
	MaxTokens      int            `mapstructure:"max_tokens"`
	Temperature    float64        `mapstructure:"temperature"`
	SystemPrompt   string         `mapstructure:"system_prompt"`
	VisualKeywords []string       `mapstructure:"visual_keywords"`
	OllamaServers  []OllamaServer `mapstructure:"ollama_servers"`
}

type TTSConfig struct {
	// Provider is one of piper_http, piper_process or none.
	Provider   string `mapstructure:"provider"`
	URL        string `mapstructure:"url"`
	Voice      string `mapstructure:"voice"`
	BinaryPath string `mapstructure:"binary_path"`
	ModelPath  string `mapstructure:"model_path"`
}

type AvatarConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	FPS     int    `mapstructure:"fps"`
	Width   int    `mapstructure:"width"`
	Height  int    `mapstructure:"height"`
}

type RedisConfig struct {
	Addr string        `mapstructure:"addr"`
	Pass string        `mapstructure:"pass"`
	DB   int           `mapstructure:"db"`
	TTL  time.Duration `mapstructure:"ttl"`
}

type ArchiveConfig struct {
	Enabled bool        `mapstructure:"enabled"`
	Redis   RedisConfig `mapstructure:"redis"`
}

type Settings struct {
	Server   ServerConfig   `mapstructure:"server"`
	Session  SessionConfig  `mapstructure:"session"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Audio    AudioConfig    `mapstructure:"audio"`
	VAD      VADConfig      `mapstructure:"vad"`
	ASR      ASRConfig      `mapstructure:"asr"`
	LLM      LLMConfig      `mapstructure:"llm"`
	TTS      TTSConfig      `mapstructure:"tts"`
	Avatar   AvatarConfig   `mapstructure:"avatar"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	Version  string         `mapstructure:"version"`
	Env      string         `mapstructure:"env"`
	Debug    bool           `mapstructure:"debug"`
}

// Load reads .env, then config_<env>.yaml from the working directory, then
// AVATARCHAT_* environment overrides. A missing yaml file is not an error.
func Load() (*Settings, error) {
	_ = godotenv.Load()
	return LoadFrom(viper.New(), ".")
}

func LoadFrom(v *viper.Viper, paths ...string) (*Settings, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config_" + genEnv(v))
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	return &settings, nil
}

func (s *Settings) Validate() error {
	if s.Session.MaxSessions <= 0 {
		return fmt.Errorf("session.max_sessions must be positive, got %d", s.Session.MaxSessions)
	}
	if s.Pipeline.Workers <= 0 {
		return fmt.Errorf("pipeline.workers must be positive, got %d", s.Pipeline.Workers)
	}
	if s.Server.EnableSSL && (s.Server.SSLCertPath == "" || s.Server.SSLKeyPath == "") {
		return errors.New("server.enable_ssl requires ssl_cert_path and ssl_key_path")
	}
	return nil
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("env", "dev")
	v.SetDefault("version", "1.0.0")
	v.SetDefault("debug", false)

	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.api_prefix", "/api/v1")
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000", "http://127.0.0.1:3000"})
	v.SetDefault("server.shutdown_wait", 5*time.Second)

	v.SetDefault("session.max_sessions", 100)
	v.SetDefault("session.timeout", time.Hour)
	v.SetDefault("session.sweep_interval", 5*time.Minute)
	v.SetDefault("session.history_cap", 50)
	v.SetDefault("session.default_language", "pl")

	v.SetDefault("pipeline.workers", 10)
	v.SetDefault("pipeline.history_turns", 10)
	v.SetDefault("pipeline.max_text_length", 1000)
	v.SetDefault("pipeline.max_audio_duration", 30*time.Second)
	v.SetDefault("pipeline.max_upload_bytes", 10<<20)
	v.SetDefault("pipeline.asr_timeout", 30*time.Second)
	v.SetDefault("pipeline.llm_timeout", 30*time.Second)
	v.SetDefault("pipeline.tts_timeout", 5*time.Second)
	v.SetDefault("pipeline.avatar_timeout", 10*time.Second)
	v.SetDefault("pipeline.stream_debounce", 500*time.Millisecond)

	v.SetDefault("audio.sample_rate", 16000)
	v.SetDefault("audio.tts_sample_rate", 24000)
	v.SetDefault("audio.silence_duration", time.Second)
	v.SetDefault("audio.ring_buffer_bytes", 2*1024*1024)

	v.SetDefault("vad.enabled", true)
	v.SetDefault("vad.url", "http://localhost:8001")
	v.SetDefault("vad.threshold", 0.3)
	v.SetDefault("vad.min_speech_ms", 100)
	v.SetDefault("vad.min_silence_ms", 200)

	v.SetDefault("asr.provider", "whisper")
	v.SetDefault("asr.url", "http://localhost:9000")
	v.SetDefault("asr.language", "pl")
	v.SetDefault("asr.model", "whisper-1")

	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.api_base", "http://localhost:11434/v1")
	v.SetDefault("llm.api_key", "ollama")
	v.SetDefault("llm.model", "qwen2.5:7b")
	v.SetDefault("llm.max_tokens", 150)
	v.SetDefault("llm.temperature", 0.7)

	v.SetDefault("tts.provider", "piper_http")
	v.SetDefault("tts.url", "http://localhost:5000")
	v.SetDefault("tts.binary_path", "piper")

	v.SetDefault("avatar.enabled", true)
	v.SetDefault("avatar.url", "http://localhost:8002")
	v.SetDefault("avatar.fps", 25)
	v.SetDefault("avatar.width", 512)
	v.SetDefault("avatar.height", 512)

	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.redis.addr", "localhost:6379")
	v.SetDefault("archive.redis.ttl", 24*time.Hour)
}

func genEnv(v *viper.Viper) string {
	env := v.GetString("ENV")
	if env == "" {
		return "dev"
	}
	return env
}
