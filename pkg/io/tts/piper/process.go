package piper

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/xpanvictor/avatarchat/pkg/Logger"
	"github.com/xpanvictor/avatarchat/pkg/io/audio"
	"github.com/xpanvictor/avatarchat/pkg/io/tts"
)

// Process runs the piper CLI once per utterance.
type Process struct {
	Binary      string
	ModelPath   string
	LengthScale float64
	TempDir     string
	logger      *Logger.Logger
}

// NewProcess resolves the binary on PATH; a missing binary or model is a startup error.
func NewProcess(binary, modelPath string, logger *Logger.Logger) (*Process, error) {
	resolved, err := exec.LookPath(binary)
	if err != nil {
		return nil, fmt.Errorf("piper executable %q not found: %w", binary, err)
	}
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("piper model %q: %w", modelPath, err)
	}
	return &Process{
		Binary:      resolved,
		ModelPath:   modelPath,
		LengthScale: 1.0,
		logger:      logger,
	}, nil
}

// Synthesize implements tts.Synthesizer. Voice is ignored; the model fixes it.
func (p *Process) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	text = tts.CleanText(text)
	if text == "" {
		return nil, fmt.Errorf("piper: nothing speakable in input")
	}

	out, err := os.CreateTemp(p.TempDir, "piper-*.wav")
	if err != nil {
		return nil, fmt.Errorf("piper: temp file: %w", err)
	}
	outPath := out.Name()
	out.Close()
	defer os.Remove(outPath)

	cmd := exec.CommandContext(ctx, p.Binary, p.args(outPath)...)
	cmd.Stdin = strings.NewReader(text)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("piper: %w", ctx.Err())
		}
		return nil, fmt.Errorf("piper exited: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("piper: reading output: %w", err)
	}
	if !audio.IsWAV(data) {
		return nil, fmt.Errorf("piper: output is not a wav file (%d bytes)", len(data))
	}
	return data, nil
}

func (p *Process) args(outPath string) []string {
	args := []string{"--model", p.ModelPath, "--output_file", outPath}
	if p.LengthScale > 0 && p.LengthScale != 1.0 {
		args = append(args, "--length_scale", strconv.FormatFloat(p.LengthScale, 'f', 2, 64))
	}
	return args
}

func (p *Process) Available() bool { return true }

func (p *Process) Close() error { return nil }
