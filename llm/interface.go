package llm

import "context"

type Request struct {
	Message string
}

type Response struct {
	Text  string
	Model string
}

// Client sends one prompt to a language model and returns its text.
// Implementations make a single attempt per call.
type Client interface {
	ID() string
	Send(ctx context.Context, req Request) (Response, error)
}
