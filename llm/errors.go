package llm

import (
	"errors"
	"fmt"
)

// ErrUpstream matches every failure of the language-model call.
var ErrUpstream = errors.New("upstream failure")

// UpstreamError is returned when the language-model call did not produce a
// usable response.
type UpstreamError struct {
	Client string
	Err    error
}

func (e *UpstreamError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Client, ErrUpstream)
	}
	return fmt.Sprintf("%s: %s: %v", e.Client, ErrUpstream, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstream
}

func upstream(client string, err error) error {
	return &UpstreamError{Client: client, Err: err}
}
