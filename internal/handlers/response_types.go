package handlers

import (
	"time"

	"github.com/xpanvictor/avatarchat/internal/domains/session"
	"github.com/xpanvictor/avatarchat/internal/domains/sys_manager/pipeline"
	"github.com/xpanvictor/avatarchat/internal/types"
)

// Request and response types, annotated for swag.

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error      string `json:"error" example:"session_not_found"`
	Details    string `json:"details,omitempty" example:"Session not found"`
	StatusCode int    `json:"status_code,omitempty" example:"404"`
}

// SuccessResponse represents a generic success response
type SuccessResponse struct {
	Message string `json:"message" example:"Session ended successfully"`
}

type CreateSessionRequest struct {
	SessionName string `json:"session_name" example:"kiosk-1"`
	Language    string `json:"language" example:"pl"`
	VoiceID     string `json:"voice_id" example:"pl_PL-gosia-medium"`
}

// CreateSessionResponse represents the response for session creation
type CreateSessionResponse struct {
	SessionID   string         `json:"session_id"`
	SessionName string         `json:"session_name,omitempty"`
	Language    string         `json:"language" example:"pl"`
	CreatedAt   time.Time      `json:"created_at"`
	Status      session.Status `json:"status" example:"created"`
}

type HistoryResponse struct {
	SessionID string       `json:"session_id"`
	History   []types.Turn `json:"history"`
}

type TranscriptResponse struct {
	SessionID string       `json:"session_id"`
	Turns     []types.Turn `json:"turns"`
}

type TextMessageRequest struct {
	Text          string `json:"text" example:"Cześć, co słychać?"`
	GetIdleFrames bool   `json:"get_idle_frames"`
	FrameCount    int    `json:"frame_count" example:"30"`
}

// ProcessResponse wraps a pipeline result with a human readable message.
type ProcessResponse struct {
	Message string `json:"message" example:"Text processed successfully"`
	*pipeline.Result
}

type IdleFramesResponse struct {
	Message     string   `json:"message" example:"Idle frames generated successfully"`
	SessionID   string   `json:"session_id"`
	VideoFrames [][]byte `json:"video_frames"`
}

// HealthResponse represents the response for /health
type HealthResponse struct {
	Status         string  `json:"status" example:"healthy"`
	Version        string  `json:"version" example:"1.0.0"`
	PipelineStatus string  `json:"pipeline_status" example:"healthy"`
	Uptime         float64 `json:"uptime"`
}

type HostMetrics struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	MemoryUsedMB  uint64  `json:"memory_used_mb"`
	DiskPercent   float64 `json:"disk_percent"`
}

type PipelineStatusResponse struct {
	pipeline.Status
	Sessions session.StoreStats `json:"sessions"`
	Host     *HostMetrics       `json:"host,omitempty"`
}
