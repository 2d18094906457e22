package renderer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/xpanvictor/avatarchat/pkg/Logger"
)

// FramesResponse is what the avatar service answers on both endpoints.
// Frames arrive base64 encoded.
type FramesResponse struct {
	Frames      [][]byte `json:"frames"`
	CycleLength int      `json:"cycle_length,omitempty"`
}

type Config struct {
	URL    string
	FPS    int
	Width  int
	Height int
}

// Client drives an avatar service exposing POST /render and GET /idle.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *Logger.Logger
}

func New(cfg Config, logger *Logger.Logger) *Client {
	cfg.URL = strings.TrimRight(cfg.URL, "/")
	if cfg.FPS <= 0 {
		cfg.FPS = 25
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{},
		logger:     logger,
	}
}

func (c *Client) Render(ctx context.Context, text string, wav []byte) ([][]byte, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("audio", "speech.wav")
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(wav); err != nil {
		return nil, fmt.Errorf("failed to write audio data: %w", err)
	}
	_ = writer.WriteField("text", text)
	_ = writer.WriteField("fps", strconv.Itoa(c.cfg.FPS))
	if c.cfg.Width > 0 && c.cfg.Height > 0 {
		_ = writer.WriteField("width", strconv.Itoa(c.cfg.Width))
		_ = writer.WriteField("height", strconv.Itoa(c.cfg.Height))
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL+"/render", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	out, err := c.do(req)
	if err != nil {
		return nil, err
	}
	c.logger.Debugf("avatar: rendered %d frames for %d audio bytes", len(out.Frames), len(wav))
	return out.Frames, nil
}

func (c *Client) IdleFrames(ctx context.Context, cursor, count int) ([][]byte, int, error) {
	q := url.Values{}
	q.Set("offset", strconv.Itoa(cursor))
	q.Set("count", strconv.Itoa(count))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.URL+"/idle?"+q.Encode(), nil)
	if err != nil {
		return nil, cursor, err
	}

	out, err := c.do(req)
	if err != nil {
		return nil, cursor, err
	}
	next := cursor + len(out.Frames)
	if out.CycleLength > 0 {
		next %= out.CycleLength
	}
	return out.Frames, next, nil
}

func (c *Client) Available() bool { return true }

func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func (c *Client) do(req *http.Request) (*FramesResponse, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("avatar request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("avatar service returned status %d: %s", resp.StatusCode, string(b))
	}
	var out FramesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("avatar: decoding frames: %w", err)
	}
	return &out, nil
}
