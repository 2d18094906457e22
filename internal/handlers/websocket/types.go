package websocket

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
)

// MessageType defines the type of WebSocket message
type MessageType string

// client -> server
const (
	MessageTypeText         MessageType = "text_message"
	MessageTypeAudioChunk   MessageType = "audio_chunk"
	MessageTypePing         MessageType = "ping"
	MessageTypeConfigUpdate MessageType = "config_update"
	MessageTypeCameraFrame  MessageType = "camera_frame"
)

// server -> client
const (
	MessageTypeConnected         MessageType = "connection_established"
	MessageTypeProcessingStarted MessageType = "processing_started"
	MessageTypeTextProcessed     MessageType = "text_processed"
	MessageTypeAudioProcessed    MessageType = "audio_processed"
	MessageTypePong              MessageType = "pong"
	MessageTypeConfigUpdated     MessageType = "config_updated"
	MessageTypeError             MessageType = "error"
)

// Error codes carried in the error frame.
const (
	ErrCodeSessionNotFound  = "session_not_found"
	ErrCodeInvalidMessage   = "invalid_message"
	ErrCodeUnknownType      = "unknown_message_type"
	ErrCodeMissingText      = "missing_text"
	ErrCodeTextTooLong      = "text_too_long"
	ErrCodeMissingAudio     = "missing_audio_data"
	ErrCodeInvalidAudio     = "invalid_audio_data"
	ErrCodeAudioTooLarge    = "audio_too_large"
	ErrCodeNoSpeech         = "no_speech_detected"
	ErrCodeEmptyTranscript  = "empty_transcript"
	ErrCodeTextProcessing   = "text_processing_error"
	ErrCodeAudioProcessing  = "audio_processing_error"
	ErrCodeConfigUpdate     = "config_update_failed"
	ErrCodeInvalidImage     = "invalid_image_data"
	ErrCodeBusy             = "busy"
	closeCodeSessionMissing = 4004
	closeCodeReplaced       = 4000
)

// IncomingMessage is the union of every client frame. Byte fields arrive
// base64 encoded.
type IncomingMessage struct {
	Type       MessageType    `json:"type"`
	Text       string         `json:"text,omitempty"`
	Stream     bool           `json:"stream,omitempty"`
	AudioData  []byte         `json:"audio_data,omitempty"`
	SampleRate int            `json:"sample_rate,omitempty"`
	Final      *bool          `json:"final,omitempty"`
	Config     map[string]any `json:"config,omitempty"`
	ImageData  string         `json:"image_data,omitempty"`
}

// IsFinal: only an explicit final:false keeps accumulating.
func (m IncomingMessage) IsFinal() bool {
	return m.Final == nil || *m.Final
}

var errEmptyImage = errors.New("empty image")

// decodeImage accepts plain base64 or a data URL and sniffs the MIME type
// when the URL does not carry one.
func decodeImage(s string) ([]byte, string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, "", errEmptyImage
	}
	mime := ""
	if rest, ok := strings.CutPrefix(s, "data:"); ok {
		meta, payload, found := strings.Cut(rest, ",")
		if !found {
			return nil, "", errors.New("malformed data url")
		}
		mime, _, _ = strings.Cut(meta, ";")
		s = payload
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, "", err
	}
	if len(data) == 0 {
		return nil, "", errEmptyImage
	}
	if mime == "" {
		mime = http.DetectContentType(data)
	}
	return data, mime, nil
}
