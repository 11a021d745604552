package homgar

import (
	"errors"
	"fmt"
)

var (
	// ErrAuth means the vendor rejected the credentials or a session could not be re-established.
	// It is not retried without new credentials.
	ErrAuth = errors.New("homgar: authentication failed")
	// ErrAPI matches every *APIError.
	ErrAPI = errors.New("homgar: api error")
	// ErrNetwork matches every *NetworkError.
	ErrNetwork = errors.New("homgar: network error")
	// ErrNotFound means the referenced home or hub is unknown to the vendor.
	ErrNotFound = errors.New("homgar: not found")

	// errUnauthenticated marks a response that rejected the current token.
	errUnauthenticated = errors.New("homgar: session rejected")
)

// vendor result codes
const (
	codeSuccess       = 0
	codeTokenInvalid  = 1004
	codeTokenExpired  = 1005
	codeNotFound      = 4004
	codeHomeNotExists = 4005
)

// APIError is a well-formed error answer from the vendor, or an answer whose shape
// could not be recognised. Body holds the raw payload.
type APIError struct {
	Path       string
	StatusCode int
	Code       int
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	if e.Code != codeSuccess || e.Message != "" {
		return fmt.Sprintf("homgar: %s: code %d: %s", e.Path, e.Code, e.Message)
	}
	return fmt.Sprintf("homgar: %s: unexpected response (status %d): %s", e.Path, e.StatusCode, truncate(e.Body, 256))
}

func (e *APIError) Is(target error) bool {
	return target == ErrAPI
}

// NetworkError is a transport level failure: timeout, DNS, connection reset.
type NetworkError struct {
	Path string
	Err  error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("homgar: %s: %v", e.Path, e.Err)
}

func (e *NetworkError) Is(target error) bool {
	return target == ErrNetwork
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
