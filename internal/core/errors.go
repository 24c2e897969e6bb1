package core

import (
	"errors"

	"github.com/vovakirdan/streamchat/internal/proto"
)

// Error codes for domain errors.
const (
	ErrCodeNameTaken        = "name_taken"
	ErrCodeTargetNotFound   = "target_not_found"
	ErrCodeMalformed        = "malformed"
	ErrCodeStreamClosed     = "stream_closed"
	ErrCodeArtifactNotFound = "artifact_not_found"
	ErrCodeSizeMismatch     = "size_mismatch"
	ErrCodeTooLarge         = "too_large"
	ErrCodeRateLimited      = "rate_limited"
)

var (
	ErrNameTaken        = errors.New("name taken")
	ErrTargetNotFound   = errors.New("target not found")
	ErrMalformed        = errors.New("malformed command")
	ErrArtifactNotFound = errors.New("artifact not found")
	ErrSizeMismatch     = errors.New("size mismatch")
	ErrTooLarge         = errors.New("payload too large")
	ErrRateLimited      = errors.New("rate limited")
	ErrNotRegistered    = errors.New("session not registered")

	// ErrStreamClosed is shared with the framer so read and write failures
	// compare equal regardless of which layer saw them.
	ErrStreamClosed = proto.ErrStreamClosed
)

// CoreError wraps a code and the human-readable text sent back to the client.
type CoreError struct {
	Code    string
	Message string
	Err     error
}

func (e *CoreError) Error() string {
	return e.Message
}

func (e *CoreError) Unwrap() error {
	return e.Err
}

func coreError(code, msg string, err error) *CoreError {
	return &CoreError{Code: code, Message: msg, Err: err}
}

func malformed(msg string) *CoreError {
	return coreError(ErrCodeMalformed, msg, ErrMalformed)
}
