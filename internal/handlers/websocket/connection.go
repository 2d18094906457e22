package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/xpanvictor/avatarchat/internal/domains/session"
	"github.com/xpanvictor/avatarchat/internal/domains/sys_manager/pipeline"
	"github.com/xpanvictor/avatarchat/internal/handlers"
	"github.com/xpanvictor/avatarchat/pkg/Logger"
	pubio "github.com/xpanvictor/avatarchat/pkg/io"
	"github.com/xpanvictor/avatarchat/pkg/io/audio"
	wsdevice "github.com/xpanvictor/avatarchat/pkg/io/device/websocket"
	audioring "github.com/xpanvictor/avatarchat/pkg/io/stt/audioRing"
)

// pending pipeline runs per connection before the client is told to back off
const jobQueueSize = 8

type job struct {
	name string
	run  func(ctx context.Context)
}

// Connection serves one websocket for one chat session. Control frames are
// answered inline by the read loop; pipeline runs go through a single worker
// so replies come back in request order.
type Connection struct {
	sessionID string
	conn      *websocket.Conn
	ep        wsdevice.Endpoint
	pub       *pubio.Publisher
	ring      audioring.AudioRingBuffer
	store     session.Store
	pipeline  handlers.Pipeline
	cfg       Config
	logger    *Logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	jobs   chan job
	wg     sync.WaitGroup
	// ring evictions already reported
	evicted int

	ConnectedAt time.Time
}

func newConnection(
	parent context.Context,
	conn *websocket.Conn,
	sessionID string,
	store session.Store,
	p handlers.Pipeline,
	cfg Config,
	logger *Logger.Logger,
) *Connection {
	ctx, cancel := context.WithCancel(parent)
	ep := wsdevice.New(conn, sessionID)
	return &Connection{
		sessionID:   sessionID,
		conn:        conn,
		ep:          ep,
		pub:         pubio.New(ep, logger),
		ring:        audioring.New(cfg.RingBufferBytes),
		store:       store,
		pipeline:    p,
		cfg:         cfg,
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
		jobs:        make(chan job, jobQueueSize),
		ConnectedAt: time.Now(),
	}
}

func (c *Connection) SessionID() string { return c.sessionID }

func (c *Connection) Close() error {
	c.cancel()
	return c.ep.Close()
}

func (c *Connection) CloseWithCode(code int, reason string) error {
	c.cancel()
	return c.ep.CloseWithCode(code, reason)
}

// run blocks until the client goes away, then waits for the worker.
func (c *Connection) run() {
	c.wg.Add(2)
	go c.worker()
	go c.keepAlive()

	c.conn.SetReadLimit(c.cfg.MaxMessageBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.pongWait()))
	c.conn.SetPongHandler(func(string) error {
		c.ep.Touch()
		return c.conn.SetReadDeadline(time.Now().Add(c.cfg.pongWait()))
	})

	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.logger.Warnf("websocket read error: %v", err)
			} else {
				c.logger.Debugf("websocket closed: %v", err)
			}
			break
		}
		c.ep.Touch()
		_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.pongWait()))

		switch mt {
		case websocket.TextMessage:
			c.handle(data)
		case websocket.BinaryMessage:
			// bare binary frames are one complete PCM clip
			c.onAudio(IncomingMessage{Type: MessageTypeAudioChunk, AudioData: data})
		}
	}

	c.cancel()
	close(c.jobs)
	c.wg.Wait()
	c.ep.Close()
}

func (c *Connection) worker() {
	defer c.wg.Done()
	for j := range c.jobs {
		if c.ctx.Err() != nil {
			c.logger.Debugf("dropping %s, connection gone", j.name)
			continue
		}
		j.run(c.ctx)
	}
}

func (c *Connection) keepAlive() {
	defer c.wg.Done()
	t := time.NewTicker(c.cfg.PingInterval)
	defer t.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-t.C:
			if err := c.ep.Ping(); err != nil {
				c.logger.Debugf("ping failed: %v", err)
				return
			}
		}
	}
}

func (c *Connection) handle(data []byte) {
	var msg IncomingMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError(ErrCodeInvalidMessage, "Invalid message format")
		return
	}

	switch msg.Type {
	case MessageTypeText:
		c.onText(msg)
	case MessageTypeAudioChunk:
		c.onAudio(msg)
	case MessageTypePing:
		c.send(MessageTypePong, nil)
	case MessageTypeConfigUpdate:
		c.onConfigUpdate(msg)
	case MessageTypeCameraFrame:
		c.onCameraFrame(msg)
	default:
		c.logger.Warnf("Unknown message type: %s", msg.Type)
		c.sendError(ErrCodeUnknownType, "Unknown message type: "+string(msg.Type))
	}
}

func (c *Connection) onText(msg IncomingMessage) {
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		c.sendError(ErrCodeMissingText, "Text is required")
		return
	}
	if c.cfg.MaxTextLength > 0 && len([]rune(text)) > c.cfg.MaxTextLength {
		c.sendError(ErrCodeTextTooLong, "Text is too long")
		return
	}

	c.enqueue("text_message", func(ctx context.Context) {
		c.send(MessageTypeProcessingStarted, pubio.Event{"input_type": "text"})

		var (
			res *pipeline.Result
			err error
		)
		if msg.Stream {
			res, err = c.pipeline.ProcessTextStream(ctx, c.sessionID, text, pipeline.SinkFunc(
				func(ctx context.Context, ch pipeline.Chunk) error {
					return c.pub.SendChunk(ctx, ch.Text, ch.AudioData, ch.VideoFrames)
				}))
		} else {
			res, err = c.pipeline.ProcessText(ctx, c.sessionID, text)
		}
		if err != nil {
			c.fail(ErrCodeTextProcessing, err)
			return
		}
		ev := resultEvent(res)
		ev["streamed"] = msg.Stream
		c.send(MessageTypeTextProcessed, ev)
	})
}

func (c *Connection) onAudio(msg IncomingMessage) {
	if len(msg.AudioData) > 0 {
		pcm, rate, err := audio.Normalize(c.ctx, msg.AudioData, "", c.sampleRate(msg))
		if err != nil {
			c.sendError(ErrCodeInvalidAudio, "Could not decode audio data")
			return
		}
		err = c.ring.Enqueue(audioring.AudioInput{
			Data:       pcm,
			Timestamp:  time.Now(),
			SampleRate: int32(rate),
			Channels:   1,
		})
		if err != nil {
			c.ring.Reset()
			c.sendError(ErrCodeAudioTooLarge, "Audio chunk exceeds the buffer")
			return
		}
	}
	if !msg.IsFinal() {
		return
	}

	chunks := c.ring.Drain()
	if len(chunks) == 0 {
		c.sendError(ErrCodeMissingAudio, "Audio data is required")
		return
	}
	if n := c.ring.Evicted(); n > c.evicted {
		c.logger.Warnf("audio ring evicted %d chunks, utterance is truncated", n-c.evicted)
		c.evicted = n
	}
	in := audioring.AudioInput{
		Data:       audioring.Join(chunks),
		Timestamp:  chunks[0].Timestamp,
		SampleRate: chunks[0].SampleRate,
		Channels:   1,
	}

	c.enqueue("audio_chunk", func(ctx context.Context) {
		c.send(MessageTypeProcessingStarted, pubio.Event{"input_type": "audio"})
		res, err := c.pipeline.ProcessAudio(ctx, c.sessionID, in)
		if err != nil {
			c.fail(ErrCodeAudioProcessing, err)
			return
		}
		switch {
		case errors.Is(res.Terminal(), pipeline.ErrNoSpeech):
			c.sendError(ErrCodeNoSpeech, "No speech detected in audio")
			return
		case errors.Is(res.Terminal(), pipeline.ErrEmptyTranscript):
			c.sendError(ErrCodeEmptyTranscript, "Speech could not be transcribed")
			return
		}
		c.send(MessageTypeAudioProcessed, resultEvent(res))
	})
}

func (c *Connection) onConfigUpdate(msg IncomingMessage) {
	if len(msg.Config) == 0 {
		c.sendError(ErrCodeConfigUpdate, "config is required")
		return
	}
	if !c.store.UpdateConfig(c.sessionID, msg.Config) {
		c.sessionGone()
		return
	}
	c.send(MessageTypeConfigUpdated, pubio.Event{
		"message": "Configuration updated successfully",
		"config":  msg.Config,
	})
}

func (c *Connection) onCameraFrame(msg IncomingMessage) {
	frame, mime, err := decodeImage(msg.ImageData)
	if err != nil {
		c.sendError(ErrCodeInvalidImage, "Invalid image data")
		return
	}
	if !c.store.SetCameraFrame(c.sessionID, frame, mime) {
		c.sessionGone()
	}
}

func (c *Connection) enqueue(name string, run func(ctx context.Context)) {
	select {
	case c.jobs <- job{name: name, run: run}:
	default:
		c.sendError(ErrCodeBusy, "Too many pending requests")
	}
}

func (c *Connection) fail(code string, err error) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		c.sessionGone()
	case errors.Is(err, context.Canceled):
		c.logger.Debugf("request cancelled: %v", err)
	default:
		c.logger.Errorf("pipeline failed: %v", err)
		c.sendError(code, "Failed to process request")
	}
}

// sessionGone reports the missing session and closes the socket.
func (c *Connection) sessionGone() {
	c.sendError(ErrCodeSessionNotFound, "Session not found")
	c.CloseWithCode(closeCodeSessionMissing, "Session not found")
}

func (c *Connection) send(t MessageType, ev pubio.Event) {
	_ = c.pub.SendEvent(c.ctx, string(t), ev)
}

func (c *Connection) sendError(code, message string) {
	_ = c.pub.SendError(c.ctx, code, message)
}

func (c *Connection) sampleRate(msg IncomingMessage) int {
	if msg.SampleRate > 0 {
		return msg.SampleRate
	}
	return c.cfg.SampleRate
}

func resultEvent(res *pipeline.Result) pubio.Event {
	frames := res.VideoFrames
	if frames == nil {
		frames = [][]byte{}
	}
	ev := pubio.Event{
		"session_id":      res.SessionID,
		"response_text":   res.ResponseText,
		"audio_data":      res.AudioData,
		"video_frames":    frames,
		"processing_time": res.ProcessingTime,
		"outcome":         res.Outcome,
	}
	if res.InputText != "" {
		ev["input_text"] = res.InputText
	}
	if res.TranscribedText != "" {
		ev["transcribed_text"] = res.TranscribedText
	}
	if len(res.Degraded) > 0 {
		ev["degraded_stages"] = res.Degraded
	}
	if len(res.StageTimings) > 0 {
		ev["stage_timings"] = res.StageTimings
	}
	return ev
}
