package peer

import (
	"errors"
	"fmt"
	"net/http"
)

// Handshake failure reasons. A *HandshakeError unwraps to one of these.
var (
	ErrUnauthorized     = errors.New("pin required or invalid pin")
	ErrForbidden        = errors.New("rejected by sender")
	ErrRateLimited      = errors.New("too many requests")
	ErrPeer             = errors.New("unknown error by sender")
	ErrUnexpectedStatus = errors.New("unexpected response status")
	ErrInvalidManifest  = errors.New("invalid prepare-download response")
)

// HandshakeError reports a prepare-download response that was not a success.
type HandshakeError struct {
	StatusCode int
	Err        error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("prepare-download failed with status %d: %v", e.StatusCode, e.Err)
}

func (e *HandshakeError) Unwrap() error { return e.Err }

// handshakeStatus maps a prepare-download status code to an error; 2xx is nil.
func handshakeStatus(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusUnauthorized:
		return &HandshakeError{StatusCode: code, Err: ErrUnauthorized}
	case code == http.StatusForbidden:
		return &HandshakeError{StatusCode: code, Err: ErrForbidden}
	case code == http.StatusTooManyRequests:
		return &HandshakeError{StatusCode: code, Err: ErrRateLimited}
	case code >= 500 && code < 600:
		return &HandshakeError{StatusCode: code, Err: ErrPeer}
	default:
		return &HandshakeError{StatusCode: code, Err: ErrUnexpectedStatus}
	}
}

// FailureKind classifies why a single file could not be fetched.
type FailureKind int

const (
	NetworkFailure FailureKind = iota + 1
	StatusFailure
	IoFailure
	ChecksumFailure
)

func (k FailureKind) String() string {
	switch k {
	case NetworkFailure:
		return "network"
	case StatusFailure:
		return "status"
	case IoFailure:
		return "io"
	case ChecksumFailure:
		return "checksum"
	default:
		return "unknown"
	}
}

// FileError describes the failure of one file in a batch.
type FileError struct {
	FileID     string
	FileName   string
	Kind       FailureKind
	StatusCode int
	Err        error
}

func (e *FileError) Error() string {
	if e.Kind == StatusFailure {
		return fmt.Sprintf("%s: %s failure: status %d", e.FileName, e.Kind, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s failure: %v", e.FileName, e.Kind, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }
