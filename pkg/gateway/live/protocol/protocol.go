// Package protocol defines the wire messages exchanged over a live
// voice session. All control messages are JSON text frames with a
// "type" envelope; raw audio travels as binary frames in both
// directions, with a base64 JSON fallback for inbound chunks.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Error codes surfaced to clients.
const (
	CodeSessionStartError    = "SESSION_START_ERROR"
	CodeAudioProcessingError = "AUDIO_PROCESSING_ERROR"
	CodeProcessingError      = "PROCESSING_ERROR"

	// CodeServerDraining is sent as a warning on every live session
	// when the gateway begins shutting down. The session stays open
	// until the client disconnects or the drain deadline passes.
	CodeServerDraining = "SERVER_DRAINING"
)

type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badRequest(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_request", Message: message, Param: param}
}

// ClientStartSession opens a new conversation session on this connection.
// A repeated start_session supersedes the previous session mapping.
type ClientStartSession struct {
	Type     string `json:"type"`
	DeviceID string `json:"device_id"`
}

// ClientAudioChunk carries microphone audio as base64 for clients that
// cannot send binary frames. Binary websocket frames are the preferred
// transport and are equivalent to this message.
type ClientAudioChunk struct {
	Type    string `json:"type"`
	DataB64 string `json:"data_b64"`
}

// ClientEndOfSpeech forces a drain and pipeline run regardless of the
// accumulator's low watermark.
type ClientEndOfSpeech struct {
	Type string `json:"type"`
}

func DecodeClientMessage(data []byte) (any, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, badRequest("invalid json frame", "")
	}
	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		return nil, badRequest("missing type", "type")
	}

	switch typ {
	case "start_session":
		var msg ClientStartSession
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid start_session frame", "")
		}
		if strings.TrimSpace(msg.DeviceID) == "" {
			return nil, badRequest("start_session.device_id is required", "device_id")
		}
		return msg, nil
	case "audio_chunk":
		var msg ClientAudioChunk
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid audio_chunk frame", "")
		}
		if strings.TrimSpace(msg.DataB64) == "" {
			return nil, badRequest("audio_chunk.data_b64 is required", "data_b64")
		}
		return msg, nil
	case "end_of_speech":
		var msg ClientEndOfSpeech
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid end_of_speech frame", "")
		}
		return msg, nil
	default:
		return nil, badRequest("unsupported message type", "type")
	}
}

// ServerSessionStarted acknowledges a start_session request.
type ServerSessionStarted struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

// ServerUserTranscript delivers the recognized user utterance.
type ServerUserTranscript struct {
	Type       string `json:"type"`
	Transcript string `json:"transcript"`
	IsFinal    bool   `json:"is_final"`
}

// ServerSpeakingText delivers the assistant reply text. The reply is
// sent as one chunk per pipeline run.
type ServerSpeakingText struct {
	Type      string `json:"type"`
	TextChunk string `json:"text_chunk"`
}

// ServerError reports a session-scoped failure. The session stays
// usable after receiving one.
type ServerError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

func SessionStarted(sessionID string) ServerSessionStarted {
	return ServerSessionStarted{Type: "session_started", SessionID: sessionID}
}

func UserTranscript(transcript string) ServerUserTranscript {
	return ServerUserTranscript{Type: "user_transcript", Transcript: transcript, IsFinal: true}
}

func SpeakingText(text string) ServerSpeakingText {
	return ServerSpeakingText{Type: "hanna_speaking_text", TextChunk: text}
}

func Error(code, message string) ServerError {
	return ServerError{Type: "error", Code: code, Message: message}
}
