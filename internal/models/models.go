// Package models defines the core data structures for PrimeBot.
//
// It includes the session and transcript types used by the orchestrator, the fitness
// domain records owned by collaborators, and the JSON envelopes of the HTTP API.
package models

import (
	"errors"
	"strings"
	"time"
)

// Validation constants for input validation
const (
	// MaxMessageLength defines the maximum allowed length of a user message
	MaxMessageLength = 4096
	// MaxUserIDLength defines the maximum allowed length of a user identifier
	MaxUserIDLength = 128
)

// Error variables for better error handling and testability
var (
	ErrEmptyUserID      = errors.New("user_id is required")
	ErrUserIDTooLong    = errors.New("user_id exceeds maximum length")
	ErrEmptyText        = errors.New("text is required")
	ErrMessageTooLong   = errors.New("text exceeds maximum length")
	ErrInvalidFieldName = errors.New("unknown preference field")
)

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	UserID    string `json:"user_id"`
	Text      string `json:"text"`
	MessageID string `json:"message_id,omitempty"`
}

// Validate checks a chat request before it reaches the session runner.
func (r *ChatRequest) Validate() error {
	r.UserID = strings.TrimSpace(r.UserID)
	if r.UserID == "" {
		return ErrEmptyUserID
	}
	if len(r.UserID) > MaxUserIDLength {
		return ErrUserIDTooLong
	}
	if strings.TrimSpace(r.Text) == "" {
		return ErrEmptyText
	}
	if len(r.Text) > MaxMessageLength {
		return ErrMessageTooLong
	}
	return nil
}

// ChatResponse is the result of one turn as returned by the API.
type ChatResponse struct {
	SessionID string    `json:"session_id"`
	Messages  []Message `json:"messages"`
	Mode      string    `json:"mode"`
}

// RespondRequest is what the language-model responder receives for one turn.
// History holds the transcript before the current message.
type RespondRequest struct {
	UserID    string
	SessionID string
	Text      string
	History   []Message
}

// InboundMessage is a user message received from a messaging transport.
type InboundMessage struct {
	ID   string    `json:"id"`
	From string    `json:"from"`
	Body string    `json:"body"`
	Time time.Time `json:"time"`
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`            // status of the API response
	Message string      `json:"message,omitempty"` // optional message for error responses or additional info
	Result  interface{} `json:"result,omitempty"`  // optional result data for successful responses
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Result: result}
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Message: message, Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}
