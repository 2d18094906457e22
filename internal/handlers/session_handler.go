package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xpanvictor/avatarchat/internal/domains/session"
	"github.com/xpanvictor/avatarchat/internal/domains/sys_manager/pipeline"
	"github.com/xpanvictor/avatarchat/internal/repository/archive"
	"github.com/xpanvictor/avatarchat/pkg/Logger"
	"github.com/xpanvictor/avatarchat/pkg/io/audio"
	audioring "github.com/xpanvictor/avatarchat/pkg/io/stt/audioRing"
)

const (
	defaultIdleFrameCount = 30
	defaultMaxUploadBytes = 10 << 20
)

// Pipeline is the slice of the orchestrator the transports use.
type Pipeline interface {
	ProcessText(ctx context.Context, sessionID, text string) (*pipeline.Result, error)
	ProcessAudio(ctx context.Context, sessionID string, in audioring.AudioInput) (*pipeline.Result, error)
	ProcessTextStream(ctx context.Context, sessionID, text string, sink pipeline.Sink) (*pipeline.Result, error)
	IdleFrames(ctx context.Context, sessionID string, count int) ([][]byte, error)
	Status() pipeline.Status
}

type Limits struct {
	MaxTextLength    int
	MaxAudioDuration time.Duration
	// MaxUploadBytes caps the request body of an audio upload.
	MaxUploadBytes int64
	SampleRate     int
}

func (l Limits) uploadBytes() int64 {
	if l.MaxUploadBytes > 0 {
		return l.MaxUploadBytes
	}
	return defaultMaxUploadBytes
}

type SessionHandler struct {
	store    session.Store
	pipeline Pipeline
	archive  archive.Repository
	limits   Limits
	logger   *Logger.Logger
	onEnd    []func(sessionID string)
}

func NewSessionHandler(
	store session.Store,
	p Pipeline,
	archive archive.Repository,
	limits Limits,
	logger *Logger.Logger,
) *SessionHandler {
	return &SessionHandler{
		store:    store,
		pipeline: p,
		archive:  archive,
		limits:   limits,
		logger:   logger,
	}
}

// OnSessionEnded registers fn to run after a session is ended over HTTP.
func (h *SessionHandler) OnSessionEnded(fn func(sessionID string)) {
	h.onEnd = append(h.onEnd, fn)
}

// CreateSession opens a chat session
// @Summary Create session
// @Tags Sessions
// @Accept json
// @Produce json
// @Param request body CreateSessionRequest false "Session options"
// @Success 201 {object} CreateSessionResponse
// @Failure 503 {object} ErrorResponse "Session capacity exceeded"
// @Router /sessions [post]
func (h *SessionHandler) CreateSession(c *gin.Context) {
	var req CreateSessionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			abortWith(c, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
	}

	sess, err := h.store.Create(session.CreateOptions{
		Name:     req.SessionName,
		Language: req.Language,
		VoiceID:  req.VoiceID,
	})
	if err != nil {
		if errors.Is(err, session.ErrCapacityExceeded) {
			abortWith(c, http.StatusServiceUnavailable, "capacity_exceeded", "Maximum number of sessions reached")
			return
		}
		h.logger.Errorf("create session: %v", err)
		abortWith(c, http.StatusInternalServerError, "internal_error", "Failed to create session")
		return
	}

	c.JSON(http.StatusCreated, CreateSessionResponse{
		SessionID:   sess.ID,
		SessionName: sess.Name,
		Language:    sess.Language,
		CreatedAt:   sess.CreatedAt,
		Status:      sess.Status,
	})
}

// GetSession returns the session summary
// @Summary Get session
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} session.Summary
// @Failure 404 {object} ErrorResponse
// @Router /sessions/{id} [get]
func (h *SessionHandler) GetSession(c *gin.Context) {
	sess, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, sess.Summary())
}

// EndSession ends and removes a session
// @Summary End session
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} SuccessResponse
// @Failure 404 {object} ErrorResponse
// @Router /sessions/{id} [delete]
func (h *SessionHandler) EndSession(c *gin.Context) {
	id := c.Param("id")
	if !h.store.End(id) {
		abortWith(c, http.StatusNotFound, "session_not_found", "Session not found")
		return
	}
	for _, fn := range h.onEnd {
		fn(id)
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "Session ended successfully"})
}

// ListSessions reports store statistics
// @Summary Session statistics
// @Tags Sessions
// @Produce json
// @Success 200 {object} session.StoreStats
// @Router /sessions [get]
func (h *SessionHandler) ListSessions(c *gin.Context) {
	c.JSON(http.StatusOK, h.store.Stats())
}

// @Summary Conversation history
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Param limit query int false "Most recent entries" default(20)
// @Success 200 {object} HistoryResponse
// @Failure 404 {object} ErrorResponse
// @Router /sessions/{id}/history [get]
func (h *SessionHandler) History(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	id := c.Param("id")
	turns, err := h.store.History(id, limit)
	if err != nil {
		abortWith(c, http.StatusNotFound, "session_not_found", "Session not found")
		return
	}
	c.JSON(http.StatusOK, HistoryResponse{SessionID: id, History: turns})
}

// Transcript reads the archived turns, which outlive the session.
// @Summary Archived transcript
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} TranscriptResponse
// @Failure 404 {object} ErrorResponse "Archive disabled"
// @Router /sessions/{id}/transcript [get]
func (h *SessionHandler) Transcript(c *gin.Context) {
	id := c.Param("id")
	turns, err := h.archive.Transcript(c.Request.Context(), id, 0, -1)
	if err != nil {
		if errors.Is(err, archive.ErrArchiveDisabled) {
			abortWith(c, http.StatusNotFound, "archive_disabled", "Transcript archive is not enabled")
			return
		}
		h.logger.Errorf("transcript %s: %v", id, err)
		abortWith(c, http.StatusInternalServerError, "internal_error", "Failed to read transcript")
		return
	}
	c.JSON(http.StatusOK, TranscriptResponse{SessionID: id, Turns: turns})
}

// ProcessText runs one text turn through the pipeline
// @Summary Send text
// @Description With get_idle_frames set, returns idle avatar frames instead of running the pipeline.
// @Tags Pipeline
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param request body TextMessageRequest true "Text message"
// @Success 200 {object} ProcessResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /sessions/{id}/text [post]
func (h *SessionHandler) ProcessText(c *gin.Context) {
	var req TextMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWith(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	id := c.Param("id")

	if req.GetIdleFrames {
		count := req.FrameCount
		if count <= 0 {
			count = defaultIdleFrameCount
		}
		frames, err := h.pipeline.IdleFrames(c.Request.Context(), id, count)
		if err != nil {
			h.fail(c, id, err)
			return
		}
		c.JSON(http.StatusOK, IdleFramesResponse{
			Message:     "Idle frames generated successfully",
			SessionID:   id,
			VideoFrames: frames,
		})
		return
	}

	text := strings.TrimSpace(req.Text)
	if text == "" {
		abortWith(c, http.StatusBadRequest, "invalid_request", "text is required")
		return
	}
	if h.limits.MaxTextLength > 0 && len([]rune(text)) > h.limits.MaxTextLength {
		abortWith(c, http.StatusBadRequest, "text_too_long",
			"text exceeds "+strconv.Itoa(h.limits.MaxTextLength)+" characters")
		return
	}

	res, err := h.pipeline.ProcessText(c.Request.Context(), id, text)
	if err != nil {
		h.fail(c, id, err)
		return
	}
	c.JSON(http.StatusOK, ProcessResponse{Message: "Text processed successfully", Result: res})
}

// ProcessAudio runs one audio turn through the pipeline
// @Summary Send audio
// @Description Accepts a raw body (WAV, PCM16 or any ffmpeg readable format) or a multipart audio_file field.
// @Tags Pipeline
// @Accept multipart/form-data
// @Accept octet-stream
// @Produce json
// @Param id path string true "Session ID"
// @Param audio_file formData file false "Audio clip"
// @Success 200 {object} ProcessResponse
// @Failure 404 {object} ErrorResponse
// @Failure 413 {object} ErrorResponse "audio_too_large or audio_too_long"
// @Failure 415 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse "no_speech_detected or empty_transcript"
// @Router /sessions/{id}/audio [post]
func (h *SessionHandler) ProcessAudio(c *gin.Context) {
	id := c.Param("id")
	limit := h.limits.uploadBytes()
	if c.Request.ContentLength > limit {
		abortWith(c, http.StatusRequestEntityTooLarge, "audio_too_large", "upload exceeds "+strconv.FormatInt(limit, 10)+" bytes")
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)

	data, contentType, err := readAudio(c)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			abortWith(c, http.StatusRequestEntityTooLarge, "audio_too_large", "upload exceeds "+strconv.FormatInt(limit, 10)+" bytes")
			return
		}
		abortWith(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	pcm, rate, err := audio.Normalize(c.Request.Context(), data, contentType, h.limits.SampleRate)
	if err != nil {
		if errors.Is(err, audio.ErrUnsupportedFormat) {
			abortWith(c, http.StatusUnsupportedMediaType, "unsupported_audio", err.Error())
			return
		}
		h.logger.Warnf("normalize audio for %s: %v", id, err)
		abortWith(c, http.StatusBadRequest, "invalid_audio", "Could not decode audio")
		return
	}
	if limit := h.limits.MaxAudioDuration; limit > 0 && audio.Duration(len(pcm), rate, 1) > limit {
		abortWith(c, http.StatusRequestEntityTooLarge, "audio_too_long", "audio exceeds "+limit.String())
		return
	}

	res, err := h.pipeline.ProcessAudio(c.Request.Context(), id, audioring.AudioInput{
		Data:       pcm,
		Timestamp:  time.Now(),
		SampleRate: int32(rate),
		Channels:   1,
	})
	if err != nil {
		h.fail(c, id, err)
		return
	}

	switch {
	case errors.Is(res.Terminal(), pipeline.ErrNoSpeech):
		abortWith(c, http.StatusUnprocessableEntity, "no_speech_detected", "No speech detected in audio")
		return
	case errors.Is(res.Terminal(), pipeline.ErrEmptyTranscript):
		abortWith(c, http.StatusUnprocessableEntity, "empty_transcript", "Speech could not be transcribed")
		return
	}
	c.JSON(http.StatusOK, ProcessResponse{Message: "Audio processed successfully", Result: res})
}

func (h *SessionHandler) lookup(c *gin.Context) (session.Session, bool) {
	sess, err := h.store.Get(c.Param("id"))
	if err != nil {
		abortWith(c, http.StatusNotFound, "session_not_found", "Session not found")
		return session.Session{}, false
	}
	return sess, true
}

func (h *SessionHandler) fail(c *gin.Context, id string, err error) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		abortWith(c, http.StatusNotFound, "session_not_found", "Session not found")
	case errors.Is(err, context.Canceled):
		// client went away; nobody is listening
		c.Abort()
	case pipeline.IsHandlerFailure(err):
		h.logger.Errorf("pipeline failed for session %s: %v", id, err)
		abortWith(c, http.StatusInternalServerError, "processing_failed", "Failed to process request")
	default:
		h.logger.Errorf("pipeline error for session %s: %v", id, err)
		abortWith(c, http.StatusInternalServerError, "internal_error", "Internal server error")
	}
}

// readAudio takes the multipart audio_file field when present, the raw body
// otherwise. A body over the cap surfaces as *http.MaxBytesError.
func readAudio(c *gin.Context) ([]byte, string, error) {
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		fh, err := c.FormFile("audio_file")
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return nil, "", err
			}
			return nil, "", errors.New("audio_file is required")
		}
		f, err := fh.Open()
		if err != nil {
			return nil, "", err
		}
		defer f.Close()
		data, err := io.ReadAll(f)
		return data, fh.Header.Get("Content-Type"), err
	}
	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return nil, "", err
	}
	if len(data) == 0 {
		return nil, "", errors.New("empty audio body")
	}
	return data, c.ContentType(), nil
}
