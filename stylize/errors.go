package stylize

import (
	"context"
	"errors"
	"fmt"

	"ghibli_backend/sdruntime"
	"ghibli_backend/vision"
)

// Kind classifies a stylization failure. The HTTP layer maps kinds to
// status codes; nothing else in this package knows about HTTP.
type Kind string

const (
	KindBadRequest       Kind = "bad_request"
	KindTooLarge         Kind = "too_large"
	KindInvalidImage     Kind = "invalid_image"
	KindModelUnavailable Kind = "model_unavailable"
	KindBusy             Kind = "busy"
	KindTimeout          Kind = "timeout"
	KindCanceled         Kind = "canceled"
	KindInternal         Kind = "internal"
)

// Sentinel errors raised by the service itself.
var (
	ErrModelUnavailable = errors.New("model is not loaded")
	ErrMissingFile      = errors.New("field 'file' is required")
	ErrUploadTooLarge   = errors.New("upload exceeds size limit")
)

// Error is a failure tagged with its Kind.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError tags err with kind.
func NewError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// KindOf returns the Kind carried by err, or KindInternal for untagged errors.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindInternal
}

// classify tags an error coming back from a Pipeline.
func classify(err error) *Error {
	var se *Error
	if errors.As(err, &se) {
		return se
	}

	switch {
	case errors.Is(err, ErrModelUnavailable),
		errors.Is(err, sdruntime.ErrModelNotFound),
		errors.Is(err, sdruntime.ErrModelLoadFailed),
		errors.Is(err, sdruntime.ErrModelCorrupted):
		return NewError(KindModelUnavailable, err)
	case errors.Is(err, sdruntime.ErrAcquireTimeout),
		errors.Is(err, sdruntime.ErrContextPoolClosed):
		return NewError(KindBusy, err)
	case errors.Is(err, sdruntime.ErrGenerationTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return NewError(KindTimeout, err)
	case errors.Is(err, context.Canceled):
		return NewError(KindCanceled, err)
	default:
		return NewError(KindInternal, err)
	}
}

// invalidImage keeps the decoder's message as the client-facing detail.
func invalidImage(err error) *Error {
	if errors.Is(err, vision.ErrEmptyImage) {
		return NewError(KindInvalidImage, fmt.Errorf("cannot identify image file: %w", err))
	}
	return NewError(KindInvalidImage, err)
}
