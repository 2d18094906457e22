package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := LoadFrom(viper.New(), t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 100, cfg.Session.MaxSessions)
	assert.Equal(t, time.Hour, cfg.Session.Timeout)
	assert.Equal(t, 5*time.Minute, cfg.Session.SweepInterval)
	assert.Equal(t, 5*time.Second, cfg.Pipeline.TTSTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Pipeline.StreamDebounce)
	assert.Equal(t, 10, cfg.Pipeline.HistoryTurns)
	assert.Equal(t, int64(10<<20), cfg.Pipeline.MaxUploadBytes)
	assert.Equal(t, "/api/v1", cfg.Server.APIPrefix)
	assert.Equal(t, "qwen2.5:7b", cfg.LLM.Model)
	assert.Equal(t, 24000, cfg.Audio.TTSSampleRate)
}

func TestLoadYamlAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	yaml := `
session:
  max_sessions: 3
  timeout: 90s
llm:
  provider: ollama
  ollama_servers:
    - url: http://gpu-1:11434
      group: a
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config_qa.yaml"), []byte(yaml), 0o600))
	t.Setenv("AVATARCHAT_ENV", "qa")
	t.Setenv("AVATARCHAT_PIPELINE_WORKERS", "4")

	cfg, err := LoadFrom(viper.New(), dir)
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Session.MaxSessions)
	assert.Equal(t, 90*time.Second, cfg.Session.Timeout)
	assert.Equal(t, 4, cfg.Pipeline.Workers)
	assert.Equal(t, "ollama", cfg.LLM.Provider)
	require.Len(t, cfg.LLM.OllamaServers, 1)
	assert.Equal(t, "http://gpu-1:11434", cfg.LLM.OllamaServers[0].URL)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr bool
	}{
		{name: "ok", mutate: func(*Settings) {}},
		{name: "no sessions", mutate: func(s *Settings) { s.Session.MaxSessions = 0 }, wantErr: true},
		{name: "no workers", mutate: func(s *Settings) { s.Pipeline.Workers = 0 }, wantErr: true},
		{name: "ssl without cert", mutate: func(s *Settings) { s.Server.EnableSSL = true }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadFrom(viper.New(), t.TempDir())
			require.NoError(t, err)
			tt.mutate(cfg)
			if tt.wantErr {
				assert.Error(t, cfg.Validate())
			} else {
				assert.NoError(t, cfg.Validate())
			}
		})
	}
}
