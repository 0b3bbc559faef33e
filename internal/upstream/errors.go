package upstream

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/openai/openai-go/v3"
)

// Service names the remote call that failed.
type Service string

const (
	ServiceChat   Service = "chat"
	ServiceSpeech Service = "tts"
)

// Kind classifies an adapter failure.
type Kind string

const (
	KindTimeout   Kind = "timeout"
	KindStatus    Kind = "status"
	KindMalformed Kind = "malformed"
	KindTransport Kind = "transport"
)

// Error is the typed failure returned by both adapters. Its message never
// carries upstream response bodies or credentials; for non-2xx responses
// only the status code survives.
type Error struct {
	Service Service
	Kind    Kind
	Status  int
	cause   error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindTimeout:
		return fmt.Sprintf("%s request timed out", e.Service)
	case KindStatus:
		return fmt.Sprintf("%s request failed with status %d", e.Service, e.Status)
	case KindMalformed:
		return fmt.Sprintf("%s response had unexpected shape", e.Service)
	default:
		return fmt.Sprintf("%s request failed", e.Service)
	}
}

func (e *Error) Unwrap() error { return e.cause }

func classify(service Service, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Service: service, Kind: KindTimeout, cause: err}
	}
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		return &Error{Service: service, Kind: KindStatus, Status: apierr.StatusCode, cause: err}
	}
	return &Error{Service: service, Kind: KindTransport, cause: err}
}
