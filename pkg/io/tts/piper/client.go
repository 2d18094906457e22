package piper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/xpanvictor/avatarchat/pkg/io/audio"
	"github.com/xpanvictor/avatarchat/pkg/io/tts"
)

// Piper is a client for a piper HTTP server (rhasspy/wyoming-piper style).
type Piper struct {
	BaseURL  string        // e.g. "http://tts:5000"
	Client   *http.Client  // inject; default if nil
	Voice    string        // default voice (override per-call)
	Rate     int           // sample rate used when the server answers with raw PCM
	Timeout  time.Duration // request timeout per call
}

func New(bu string) *Piper {
	return &Piper{BaseURL: strings.TrimRight(bu, "/")}
}

// DoTTS issues GET /api/text-to-speech and hands back the body; caller must Close it.
func (p *Piper) DoTTS(ctx context.Context, text string, optVoice string) (io.ReadCloser, string, error) {
	if text == "" {
		return nil, "", fmt.Errorf("empty text")
	}
	voice := p.Voice
	if optVoice != "" {
		voice = optVoice
	}

	u, err := url.Parse(p.BaseURL + "/api/text-to-speech")
	if err != nil {
		return nil, "", err
	}
	q := u.Query()
	q.Set("text", text)
	if voice != "" {
		q.Set("voice", voice)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Accept", "audio/wav")

	start := time.Now()
	resp, err := p.httpClient().Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("tts http request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, "", fmt.Errorf("tts http %d: %s (dur=%s)", resp.StatusCode, string(b), time.Since(start))
	}
	return resp.Body, resp.Header.Get("Content-Type"), nil
}

// Synthesize implements tts.Synthesizer.
func (p *Piper) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	text = tts.CleanText(text)
	if text == "" {
		return nil, fmt.Errorf("piper: nothing speakable in input")
	}
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	body, _, err := p.DoTTS(ctx, text, voice)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("piper: reading audio: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("piper: empty audio")
	}
	if !audio.IsWAV(data) {
		data = audio.PCMToWAV(data, ifZero(p.Rate, 22050), 1)
	}
	return data, nil
}

func (p *Piper) Available() bool { return true }

func (p *Piper) Close() error {
	p.httpClient().CloseIdleConnections()
	return nil
}

func (p *Piper) httpClient() *http.Client {
	if p.Client == nil {
		p.Client = &http.Client{}
	}
	return p.Client
}

func ifZero(n, d int) int {
	if n == 0 {
		return d
	}
	return n
}
