package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

var ErrUnsupportedFormat = errors.New("audio: unsupported format")

// Normalize turns an uploaded clip into mono 16-bit PCM and returns the
// payload with its sample rate. WAV is decoded in process, raw PCM passes
// through at defaultRate and compressed formats go through ffmpeg.
func Normalize(ctx context.Context, data []byte, contentType string, defaultRate int) ([]byte, int, error) {
	if len(data) == 0 {
		return nil, 0, errors.New("audio: empty payload")
	}
	if IsWAV(data) {
		f, pcm, err := Decode(data)
		if err != nil {
			return nil, 0, err
		}
		if f.BitsPerSample != bitsPerSample {
			return convert(ctx, data, "wav", defaultRate)
		}
		if f.Channels > 1 {
			pcm = downmix(pcm, f.Channels)
		}
		return pcm, f.SampleRate, nil
	}

	ct := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	switch {
	case ct == "", ct == "application/octet-stream", ct == "audio/l16", ct == "audio/pcm":
		return data, defaultRate, nil
	case strings.HasPrefix(ct, "audio/"), strings.HasPrefix(ct, "video/webm"):
		return convert(ctx, data, "", defaultRate)
	}
	return nil, 0, fmt.Errorf("%w: %s", ErrUnsupportedFormat, contentType)
}

// convert pipes the clip through ffmpeg, letting it probe the container
// unless inFmt pins it.
func convert(ctx context.Context, data []byte, inFmt string, rate int) ([]byte, int, error) {
	args := []string{"-hide_banner", "-loglevel", "error"}
	if inFmt != "" {
		args = append(args, "-f", inFmt)
	}
	args = append(args,
		"-i", "pipe:0",
		"-f", "s16le",
		"-ac", "1",
		"-ar", strconv.Itoa(rate),
		"pipe:1",
	)

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	var out, stderr bytes.Buffer
	cmd.Stdin = bytes.NewReader(data)
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, 0, fmt.Errorf("ffmpeg conversion failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	if out.Len() == 0 {
		return nil, 0, errors.New("ffmpeg produced no audio")
	}
	return out.Bytes(), rate, nil
}

// downmix averages interleaved 16-bit channels into mono.
func downmix(pcm []byte, channels int) []byte {
	frame := 2 * channels
	out := make([]byte, 0, len(pcm)/channels)
	for i := 0; i+frame <= len(pcm); i += frame {
		var sum int32
		for c := 0; c < channels; c++ {
			j := i + 2*c
			sum += int32(int16(uint16(pcm[j]) | uint16(pcm[j+1])<<8))
		}
		s := uint16(int16(sum / int32(channels)))
		out = append(out, byte(s), byte(s>>8))
	}
	return out
}
