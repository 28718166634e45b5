package transcription

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/jayesh4work/audio-assistant-extension/internal/apperr"
)

const (
	msgInvalidInput       = "Invalid audio data or parameters"
	msgAuthentication     = "Authentication required. Please sign in."
	msgAccessDenied       = "Access denied. Check your API keys."
	msgNotFound           = "Transcription service not found"
	msgPayloadTooLarge    = "Audio file is too large"
	msgRateLimited        = "Rate limit exceeded. Please try again later."
	msgServerError        = "Server error during transcription. Please try again."
	msgServiceUnavailable = "Transcription service temporarily unavailable"
	msgTimeout            = "Transcription timeout. The audio file may be too long."
	msgNetwork            = "Network error. Please check your connection."
)

// errorBody is the optional JSON body of an error response.
type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

func bodyMessage(body []byte) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		return ""
	}
	if eb.Message != "" {
		return eb.Message
	}
	return eb.Error
}

// classifyStatus maps a non-2xx response to a classified error.
func classifyStatus(status int, body []byte) *apperr.Error {
	message := bodyMessage(body)

	var kind apperr.Kind
	var text string
	switch status {
	case http.StatusBadRequest:
		kind, text = apperr.InvalidInput, msgInvalidInput
		if message != "" {
			text = message
		}
	case http.StatusUnauthorized:
		kind, text = apperr.AuthenticationRequired, msgAuthentication
	case http.StatusForbidden:
		kind, text = apperr.AccessDenied, msgAccessDenied
	case http.StatusNotFound:
		kind, text = apperr.ServiceNotFound, msgNotFound
	case http.StatusRequestEntityTooLarge:
		kind, text = apperr.PayloadTooLarge, msgPayloadTooLarge
	case http.StatusTooManyRequests:
		kind, text = apperr.RateLimited, msgRateLimited
	case http.StatusInternalServerError:
		kind, text = apperr.ServerError, msgServerError
	case http.StatusServiceUnavailable:
		kind, text = apperr.ServiceUnavailable, msgServiceUnavailable
	default:
		if status >= 500 {
			kind = apperr.ServerError
		} else {
			kind = apperr.UnknownError
		}
		text = message
		if text == "" {
			text = fmt.Sprintf("Transcription failed with status %d", status)
		}
	}

	e := apperr.New(kind, text)
	e.Status = status
	if detail := strings.TrimSpace(string(body)); detail != "" {
		e.Err = fmt.Errorf("HTTP %d: %s", status, truncate(detail, 256))
	}
	return e
}

// classifyTransportError maps a request that produced no response.
func classifyTransportError(err error) *apperr.Error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &apperr.Error{Kind: apperr.TimeoutError, Message: msgTimeout, Err: err}
	}
	return &apperr.Error{Kind: apperr.NetworkError, Message: msgNetwork, Err: err}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
