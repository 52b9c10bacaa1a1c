package irma

import (
	"fmt"

	"github.com/go-errors/errors"
)

// ErrorType are session errors.
type ErrorType string

// SessionError is an error that occurred while starting or managing an IRMA session.
type SessionError struct {
	Err       error
	ErrorType ErrorType
	Info      string

	// Status of the session when the error occurred, if known
	Status ServerStatus

	// Set when the IRMA server returned an error response
	RemoteError  *RemoteError
	RemoteStatus int
}

// RemoteError is an error message returned by the IRMA server on errors.
type RemoteError struct {
	Status      int    `json:"status,omitempty"`
	ErrorName   string `json:"error,omitempty"`
	Description string `json:"description,omitempty"`
	Message     string `json:"message,omitempty"`
	Stacktrace  string `json:"stacktrace,omitempty"`
}

const (
	// The server URL could not be parsed
	ErrorInvalidURL = ErrorType("invalidUrl")
	// Error in HTTP communication
	ErrorTransport = ErrorType("transport")
	// Server returned an unexpected status code or an unparseable body
	ErrorServerResponse = ErrorType("serverResponse")
	// Server returned an error message
	ErrorApi = ErrorType("api")
	// The session was cancelled
	ErrorSessionCancelled = ErrorType("sessionCancelled")
	// The session timed out
	ErrorSessionTimedOut = ErrorType("sessionTimedOut")
	// The session has not yet finished; try again later
	ErrorSessionNotFinished = ErrorType("sessionNotFinished")
	// A session request violates its construction invariants
	ErrorInvalidRequest = ErrorType("invalidRequest")
)

func (e *SessionError) Error() string {
	var buf string
	switch {
	case e.ErrorType == ErrorSessionNotFinished && e.Status != "":
		buf = fmt.Sprintf("%s (status %s)", e.ErrorType, e.Status)
	case e.RemoteStatus != 0:
		buf = fmt.Sprintf("%s: server responded with %d", e.ErrorType, e.RemoteStatus)
	default:
		buf = string(e.ErrorType)
	}
	if e.Info != "" {
		buf += ": " + e.Info
	}
	if e.RemoteError != nil {
		buf += ": " + e.RemoteError.Error()
	}
	if e.Err != nil {
		buf += ": " + e.Err.Error()
	}
	return buf
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

// Network reports whether the error concerns the communication with the IRMA server, as opposed
// to the state of the session or the construction of a request.
func (e *SessionError) Network() bool {
	switch e.ErrorType {
	case ErrorTransport, ErrorServerResponse, ErrorApi:
		return true
	default:
		return false
	}
}

// Retryable reports whether the same call may succeed when repeated later. This is only the case
// for sessions that have not finished yet.
func (e *SessionError) Retryable() bool {
	return e.ErrorType == ErrorSessionNotFinished
}

func (re *RemoteError) Error() string {
	var msg string
	if re.Message != "" {
		msg = fmt.Sprintf(" (%s)", re.Message)
	}
	return fmt.Sprintf("%s%s: %s", re.ErrorName, msg, re.Description)
}

// ErrorTypeOf returns the ErrorType of err if it is or wraps a *SessionError, and "" otherwise.
func ErrorTypeOf(err error) ErrorType {
	var serr *SessionError
	if errors.As(err, &serr) {
		return serr.ErrorType
	}
	return ""
}

// IsNotFinished reports whether err indicates that the session is still running,
// in which case the caller should try again after a delay.
func IsNotFinished(err error) bool {
	return ErrorTypeOf(err) == ErrorSessionNotFinished
}

// IsNetworkError reports whether err is a failure to communicate with the IRMA server.
func IsNetworkError(err error) bool {
	var serr *SessionError
	return errors.As(err, &serr) && serr.Network()
}
