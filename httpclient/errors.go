package httpclient

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// User-facing messages for the centralized error mapping. Components get
// the raw StatusError; the notifier gets one of these.
const (
	MsgDefault         = "Something went wrong. Please try again."
	MsgUnauthorized    = "You are not authorized to access this resource."
	MsgSessionExpired  = "Your session has expired. Please sign in again."
	MsgConnection      = "Connection error. Check your network connection."
	MsgNotFound        = "The requested resource is not available."
	MsgServerError     = "Server error. Please try again later."
	MsgValidation      = "The provided data is not valid."
	MsgTooManyRequests = "Too many requests. Please wait a moment and try again."
)

// StatusError carries the HTTP status and the mapped user message for a
// failed request. A Status of 0 means the request never reached the server.
type StatusError struct {
	Status  int
	Message string
	Body    []byte
}

func (e *StatusError) Error() string {
	if e.Status == 0 {
		return "request failed: no response"
	}
	return fmt.Sprintf("request failed: status %d", e.Status)
}

// ErrorBody is the error payload shape the backend returns.
type ErrorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Path      string `json:"path"`
	Timestamp string `json:"timestamp"`
}

// IsStatus reports whether err is a StatusError with the given status.
func IsStatus(err error, status int) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status == status
	}
	return false
}

// messageForStatus maps an HTTP status (plus any server-provided message)
// to the text shown to the user.
func messageForStatus(status int, serverMessage string) string {
	switch status {
	case 0:
		return MsgConnection
	case http.StatusUnauthorized:
		return MsgUnauthorized
	case http.StatusNotFound:
		return MsgNotFound
	case http.StatusInternalServerError:
		return MsgServerError
	case http.StatusBadRequest:
		if serverMessage != "" {
			return serverMessage
		}
		return MsgValidation
	case http.StatusTooManyRequests:
		return MsgTooManyRequests
	default:
		if serverMessage != "" {
			return serverMessage
		}
		return MsgDefault
	}
}
