package completion

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyResponse       = errors.New("completion response has no content")
	ErrUndecodableResponse = errors.New("completion response could not be decoded")
)

// StatusError is a non-success answer from the backend.
type StatusError struct {
	Provider   string
	StatusCode int
	Detail     string
}

func (e *StatusError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s status %d", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("%s status %d: %s", e.Provider, e.StatusCode, e.Detail)
}
