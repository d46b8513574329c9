package domain

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrConfig            = errors.New("configuration error")
	ErrPrecondition      = errors.New("precondition failed")
	ErrRaceResolved      = errors.New("already resolved by a concurrent path")
	ErrMalformedResponse = errors.New("malformed exchange response")
	ErrNoTicker          = errors.New("no ticker set")
)

// TransportError is returned for every non-2xx exchange response. The core
// never retries these; the caller decides.
type TransportError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
	Code       string
	Message    string
}

func (e *TransportError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Body
	}
	if e.Code != "" {
		return fmt.Sprintf("%s %s: HTTP %d: %s (%s)", e.Method, e.Path, e.StatusCode, msg, e.Code)
	}
	return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.Path, e.StatusCode, msg)
}

// IsNotFound reports whether the exchange answered 404.
func (e *TransportError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// CancelAlreadyResolved reports whether a cancel failed only because the
// order is already gone: a 404, or an already_canceled error code.
func CancelAlreadyResolved(err error) bool {
	var te *TransportError
	if !errors.As(err, &te) {
		return false
	}
	if te.IsNotFound() {
		return true
	}
	text := strings.ToLower(te.Code + " " + te.Message)
	return strings.Contains(text, "already_canceled") || strings.Contains(text, "already canceled")
}

// FailureKind tags a failure crossing the engine boundary.
type FailureKind string

const (
	FailureConfig       FailureKind = "config"
	FailureTransport    FailureKind = "transport"
	FailurePrecondition FailureKind = "precondition"
	FailureRaceResolved FailureKind = "race_resolved"
	FailureInternal     FailureKind = "internal"
)

// Failure is the structured form of an error handed to the outer layer.
type Failure struct {
	Kind       FailureKind `json:"kind"`
	Message    string      `json:"message"`
	StatusCode int         `json:"status_code,omitempty"`
}

// Classify maps an error onto the failure taxonomy.
func Classify(err error) FailureKind {
	var te *TransportError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConfig):
		return FailureConfig
	case errors.Is(err, ErrPrecondition), errors.Is(err, ErrNoTicker):
		return FailurePrecondition
	case errors.Is(err, ErrRaceResolved):
		return FailureRaceResolved
	case errors.As(err, &te), errors.Is(err, ErrMalformedResponse):
		return FailureTransport
	default:
		return FailureInternal
	}
}

// FailureOf converts err into a Failure. It returns nil for a nil error.
func FailureOf(err error) *Failure {
	if err == nil {
		return nil
	}
	f := &Failure{Kind: Classify(err), Message: err.Error()}
	var te *TransportError
	if errors.As(err, &te) {
		f.StatusCode = te.StatusCode
	}
	return f
}
