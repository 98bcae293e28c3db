package whisper

import (
	"errors"
	"fmt"

	"github.com/whispercppkit/whispercppkit/internal/audio"
)

var (
	// ErrClosed is returned when a Context is used after Close.
	ErrClosed = errors.New("whisper: context is closed")
	// ErrNativeUnavailable means the binary was built without the whispercpp tag.
	ErrNativeUnavailable = errors.New("whisper: native engine not compiled in (rebuild with -tags whispercpp)")

	errNativeInit = errors.New("whisper: native initializer returned no context")
)

// InitError reports that the engine could not load a model. Retrying with the same
// inputs will fail again.
type InitError struct {
	ModelPath string
	Err       error
}

func (e *InitError) Error() string {
	msg := "failed to init whisper context from model: " + e.ModelPath
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *InitError) Unwrap() error {
	return e.Err
}

// InferenceError carries the non-zero status returned by the engine's inference
// call.
type InferenceError struct {
	Code int
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("whisper: inference failed with code %d", e.Code)
}

// AudioDecodeError is the audio collaborator's failure, passed through unchanged.
type AudioDecodeError = audio.DecodeError
