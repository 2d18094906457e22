package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xpanvictor/avatarchat/internal/config"
	"github.com/xpanvictor/avatarchat/internal/domains/session"
	"github.com/xpanvictor/avatarchat/internal/domains/sys_manager/pipeline"
	"github.com/xpanvictor/avatarchat/internal/repository/archive"
	"github.com/xpanvictor/avatarchat/pkg/Logger"
	"github.com/xpanvictor/avatarchat/pkg/io/audio"
	audioring "github.com/xpanvictor/avatarchat/pkg/io/stt/audioRing"
)

type fakePipeline struct {
	mu        sync.Mutex
	store     session.Store
	err       error
	outcome   pipeline.Outcome
	healthy   bool
	lastAudio audioring.AudioInput
	lastText  string
}

func (f *fakePipeline) result(id string) (*pipeline.Result, error) {
	if _, err := f.store.Get(id); err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	out := f.outcome
	if out == "" {
		out = pipeline.OutcomeCompleted
	}
	return &pipeline.Result{
		SessionID:    id,
		ResponseText: "Dzień dobry!",
		AudioData:    audio.Silence(16000, 10*time.Millisecond),
		VideoFrames:  [][]byte{{0xff, 0xd8}},
		Outcome:      out,
		Timestamp:    time.Now(),
	}, nil
}

func (f *fakePipeline) ProcessText(ctx context.Context, id, text string) (*pipeline.Result, error) {
	f.mu.Lock()
	f.lastText = text
	f.mu.Unlock()
	res, err := f.result(id)
	if res != nil {
		res.InputText = text
	}
	return res, err
}

func (f *fakePipeline) ProcessAudio(ctx context.Context, id string, in audioring.AudioInput) (*pipeline.Result, error) {
	f.mu.Lock()
	f.lastAudio = in
	f.mu.Unlock()
	res, err := f.result(id)
	if res != nil {
		res.TranscribedText = "dzień dobry"
	}
	return res, err
}

func (f *fakePipeline) ProcessTextStream(ctx context.Context, id, text string, sink pipeline.Sink) (*pipeline.Result, error) {
	return f.ProcessText(ctx, id, text)
}

func (f *fakePipeline) IdleFrames(ctx context.Context, id string, count int) ([][]byte, error) {
	if _, err := f.store.Get(id); err != nil {
		return nil, err
	}
	frames := make([][]byte, count)
	for i := range frames {
		frames[i] = []byte{byte(i)}
	}
	return frames, nil
}

func (f *fakePipeline) Status() pipeline.Status {
	st := pipeline.Status{Healthy: f.healthy, OverallStatus: "unhealthy", Uptime: 12}
	if f.healthy {
		st.OverallStatus = "healthy"
	}
	return st
}

type fixture struct {
	router   *gin.Engine
	store    session.Store
	pipeline *fakePipeline
	sessions *SessionHandler
}

func newFixture(t *testing.T, maxSessions int) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := session.NewStore(config.SessionConfig{MaxSessions: maxSessions, Timeout: time.Hour}, Logger.NewNop())
	fp := &fakePipeline{store: store, healthy: true}
	sh := NewSessionHandler(store, fp, archive.NewNop(), Limits{
		MaxTextLength:    20,
		MaxAudioDuration: time.Second,
		MaxUploadBytes:   100_000,
		SampleRate:       16000,
	}, Logger.NewNop())
	hh := NewHealthHandler(fp, store, "test", Logger.NewNop())
	hh.hostMetrics = func() (*HostMetrics, error) { return &HostMetrics{CPUPercent: 1}, nil }

	r := gin.New()
	r.Use(ErrorHandlerMiddleware(Logger.NewNop()))
	r.GET("/health", hh.Health)
	r.GET("/pipeline/status", hh.PipelineStatus)
	r.POST("/sessions", sh.CreateSession)
	r.GET("/sessions", sh.ListSessions)
	r.GET("/sessions/:id", sh.GetSession)
	r.DELETE("/sessions/:id", sh.EndSession)
	r.GET("/sessions/:id/history", sh.History)
	r.GET("/sessions/:id/transcript", sh.Transcript)
	r.POST("/sessions/:id/text", sh.ProcessText)
	r.POST("/sessions/:id/audio", sh.ProcessAudio)

	return &fixture{router: r, store: store, pipeline: fp, sessions: sh}
}

func (f *fixture) do(t *testing.T, method, path string, body []byte, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestCreateAndGetSession(t *testing.T) {
	f := newFixture(t, 10)

	w := f.do(t, http.MethodPost, "/sessions", []byte(`{"session_name":"kiosk","voice_id":"gosia"}`), "application/json")
	require.Equal(t, http.StatusCreated, w.Code)
	created := decode[CreateSessionResponse](t, w)
	assert.NotEmpty(t, created.SessionID)
	assert.Equal(t, "kiosk", created.SessionName)
	assert.Equal(t, "pl", created.Language)
	assert.Equal(t, session.StatusCreated, created.Status)

	w = f.do(t, http.MethodGet, "/sessions/"+created.SessionID, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	sum := decode[session.Summary](t, w)
	assert.Equal(t, created.SessionID, sum.SessionID)
	assert.Equal(t, 0, sum.HistoryLength)

	w = f.do(t, http.MethodGet, "/sessions", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decode[session.StoreStats](t, w).ActiveSessions)
}

func TestCreateSessionWithoutBody(t *testing.T) {
	f := newFixture(t, 10)
	w := f.do(t, http.MethodPost, "/sessions", nil, "")
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestCreateSessionAtCapacity(t *testing.T) {
	f := newFixture(t, 1)
	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/sessions", nil, "").Code)

	w := f.do(t, http.MethodPost, "/sessions", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	er := decode[ErrorResponse](t, w)
	assert.Equal(t, "capacity_exceeded", er.Error)
	assert.Equal(t, http.StatusServiceUnavailable, er.StatusCode)
}

func TestSessionNotFound(t *testing.T) {
	f := newFixture(t, 10)
	tests := []struct {
		method, path string
		body         string
	}{
		{http.MethodGet, "/sessions/nope", ""},
		{http.MethodDelete, "/sessions/nope", ""},
		{http.MethodGet, "/sessions/nope/history", ""},
		{http.MethodPost, "/sessions/nope/text", `{"text":"hej"}`},
		{http.MethodPost, "/sessions/nope/text", `{"get_idle_frames":true}`},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := f.do(t, tt.method, tt.path, []byte(tt.body), "application/json")
			assert.Equal(t, http.StatusNotFound, w.Code)
			assert.Equal(t, "session_not_found", decode[ErrorResponse](t, w).Error)
		})
	}
}

func TestEndSessionIsIdempotent(t *testing.T) {
	f := newFixture(t, 10)
	sess, err := f.store.Create(session.CreateOptions{})
	require.NoError(t, err)
	var ended []string
	f.sessions.OnSessionEnded(func(id string) { ended = append(ended, id) })

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodDelete, "/sessions/"+sess.ID, nil, "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodDelete, "/sessions/"+sess.ID, nil, "").Code)
	assert.Equal(t, []string{sess.ID}, ended)
}

func TestProcessText(t *testing.T) {
	f := newFixture(t, 10)
	sess, err := f.store.Create(session.CreateOptions{})
	require.NoError(t, err)

	w := f.do(t, http.MethodPost, "/sessions/"+sess.ID+"/text", []byte(`{"text":"  Cześć  "}`), "application/json")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Text processed successfully", body["message"])
	assert.Equal(t, "Cześć", body["input_text"])
	assert.Equal(t, "Dzień dobry!", body["response_text"])
	assert.IsType(t, "", body["audio_data"])
	assert.Len(t, body["video_frames"], 1)
	assert.Contains(t, body, "processing_time")
	assert.Contains(t, body, "timestamp")
}

func TestProcessTextValidation(t *testing.T) {
	f := newFixture(t, 10)
	sess, err := f.store.Create(session.CreateOptions{})
	require.NoError(t, err)
	path := "/sessions/" + sess.ID + "/text"

	tests := []struct {
		name, body, code string
		status           int
	}{
		{"malformed", `{"text":`, "invalid_request", http.StatusBadRequest},
		{"blank", `{"text":"   "}`, "invalid_request", http.StatusBadRequest},
		{"too long", `{"text":"` + strings.Repeat("ż", 21) + `"}`, "text_too_long", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(t, http.MethodPost, path, []byte(tt.body), "application/json")
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, decode[ErrorResponse](t, w).Error)
		})
	}
}

func TestProcessTextHandlerFailure(t *testing.T) {
	f := newFixture(t, 10)
	sess, err := f.store.Create(session.CreateOptions{})
	require.NoError(t, err)
	f.pipeline.err = &pipeline.HandlerError{Stage: "LLM", Err: errors.New("connection refused")}

	w := f.do(t, http.MethodPost, "/sessions/"+sess.ID+"/text", []byte(`{"text":"hej"}`), "application/json")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	er := decode[ErrorResponse](t, w)
	assert.Equal(t, "processing_failed", er.Error)
	assert.NotContains(t, w.Body.String(), "connection refused")
}

func TestIdleFrames(t *testing.T) {
	f := newFixture(t, 10)
	sess, err := f.store.Create(session.CreateOptions{})
	require.NoError(t, err)

	w := f.do(t, http.MethodPost, "/sessions/"+sess.ID+"/text", []byte(`{"get_idle_frames":true,"frame_count":5}`), "application/json")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[IdleFramesResponse](t, w).VideoFrames, 5)

	w = f.do(t, http.MethodPost, "/sessions/"+sess.ID+"/text", []byte(`{"get_idle_frames":true}`), "application/json")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[IdleFramesResponse](t, w).VideoFrames, defaultIdleFrameCount)
	assert.Empty(t, f.pipeline.lastText)
}

func TestProcessAudioRawWAV(t *testing.T) {
	f := newFixture(t, 10)
	sess, err := f.store.Create(session.CreateOptions{})
	require.NoError(t, err)

	clip := audio.PCMToWAV(make([]byte, 3200), 8000, 1)
	w := f.do(t, http.MethodPost, "/sessions/"+sess.ID+"/audio", clip, "audio/wav")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "dzień dobry", body["transcribed_text"])
	assert.Equal(t, int32(8000), f.pipeline.lastAudio.SampleRate)
	assert.Len(t, f.pipeline.lastAudio.Data, 3200)
}

func TestProcessAudioMultipart(t *testing.T) {
	f := newFixture(t, 10)
	sess, err := f.store.Create(session.CreateOptions{})
	require.NoError(t, err)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("audio_file", "clip.wav")
	require.NoError(t, err)
	_, err = part.Write(audio.PCMToWAV(make([]byte, 1600), 16000, 1))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	w := f.do(t, http.MethodPost, "/sessions/"+sess.ID+"/audio", buf.Bytes(), mw.FormDataContentType())
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int32(16000), f.pipeline.lastAudio.SampleRate)
}

func TestProcessAudioRejections(t *testing.T) {
	tests := []struct {
		name        string
		body        []byte
		contentType string
		outcome     pipeline.Outcome
		status      int
		code        string
	}{
		{"empty", nil, "audio/wav", "", http.StatusBadRequest, "invalid_request"},
		{"unsupported", []byte("hello"), "text/plain", "", http.StatusUnsupportedMediaType, "unsupported_audio"},
		{"too long", make([]byte, 2*16000*2), "application/octet-stream", "", http.StatusRequestEntityTooLarge, "audio_too_long"},
		{"over upload cap", make([]byte, 100_001), "application/octet-stream", "", http.StatusRequestEntityTooLarge, "audio_too_large"},
		{"no speech", make([]byte, 320), "application/octet-stream", pipeline.OutcomeNoSpeech, http.StatusUnprocessableEntity, "no_speech_detected"},
		{"empty transcript", make([]byte, 320), "application/octet-stream", pipeline.OutcomeEmptyTranscript, http.StatusUnprocessableEntity, "empty_transcript"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 10)
			sess, err := f.store.Create(session.CreateOptions{})
			require.NoError(t, err)
			f.pipeline.outcome = tt.outcome

			w := f.do(t, http.MethodPost, "/sessions/"+sess.ID+"/audio", tt.body, tt.contentType)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, decode[ErrorResponse](t, w).Error)
		})
	}
}

func TestProcessAudioUploadCapWithoutContentLength(t *testing.T) {
	tests := []struct {
		name string
		body func(t *testing.T) ([]byte, string)
	}{
		{"raw", func(t *testing.T) ([]byte, string) {
			return make([]byte, 200_000), "application/octet-stream"
		}},
		{"multipart", func(t *testing.T) ([]byte, string) {
			var buf bytes.Buffer
			mw := multipart.NewWriter(&buf)
			part, err := mw.CreateFormFile("audio_file", "clip.wav")
			require.NoError(t, err)
			_, err = part.Write(audio.PCMToWAV(make([]byte, 200_000), 16000, 1))
			require.NoError(t, err)
			require.NoError(t, mw.Close())
			return buf.Bytes(), mw.FormDataContentType()
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 10)
			sess, err := f.store.Create(session.CreateOptions{})
			require.NoError(t, err)

			body, contentType := tt.body(t)
			req := httptest.NewRequest(http.MethodPost, "/sessions/"+sess.ID+"/audio", io.NopCloser(bytes.NewReader(body)))
			req.ContentLength = -1
			req.Header.Set("Content-Type", contentType)
			w := httptest.NewRecorder()
			f.router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
			assert.Equal(t, "audio_too_large", decode[ErrorResponse](t, w).Error)
			assert.Empty(t, f.pipeline.lastAudio.Data)
		})
	}
}

func TestHistoryAndTranscript(t *testing.T) {
	f := newFixture(t, 10)
	sess, err := f.store.Create(session.CreateOptions{})
	require.NoError(t, err)
	f.store.AppendHistory(sess.ID, "user", "a")
	f.store.AppendHistory(sess.ID, "assistant", "b")
	f.store.AppendHistory(sess.ID, "user", "c")

	w := f.do(t, http.MethodGet, "/sessions/"+sess.ID+"/history?limit=2", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	h := decode[HistoryResponse](t, w)
	require.Len(t, h.History, 2)
	assert.Equal(t, "b", h.History[0].Text)
	assert.Equal(t, "c", h.History[1].Text)

	w = f.do(t, http.MethodGet, "/sessions/"+sess.ID+"/transcript", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "archive_disabled", decode[ErrorResponse](t, w).Error)
}

func TestHealth(t *testing.T) {
	f := newFixture(t, 10)

	w := f.do(t, http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	hr := decode[HealthResponse](t, w)
	assert.Equal(t, "healthy", hr.Status)
	assert.Equal(t, "test", hr.Version)

	f.pipeline.healthy = false
	w = f.do(t, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "unhealthy", decode[HealthResponse](t, w).PipelineStatus)
}

func TestPipelineStatus(t *testing.T) {
	f := newFixture(t, 10)
	w := f.do(t, http.MethodGet, "/pipeline/status", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, true, body["healthy"])
	assert.Contains(t, body, "sessions")
	assert.Contains(t, body, "host")
}

func TestCORSMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORSMiddleware([]string{"http://localhost:3000"}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
