package taskqueue

import (
	"context"
	"encoding/json"
)

type (
	// Handler executes the business logic for one task type. The engine treats
	// it as an opaque collaborator: it either returns a result payload with
	// optional metadata, or an error.
	Handler interface {
		Handle(ctx context.Context, payload json.RawMessage) (HandlerResult, error)
	}

	// HandlerResult is the output of a successful handler invocation.
	HandlerResult struct {
		Result   json.RawMessage
		Metadata json.RawMessage
	}

	// HandlerFunc adapts a plain function to the Handler interface.
	HandlerFunc func(ctx context.Context, payload json.RawMessage) (HandlerResult, error)

	// TypedHandlerFunc is a Handler with a decoded payload and encoded result.
	TypedHandlerFunc[In, Out any] func(ctx context.Context, payload In) (Out, error)
)

func (f HandlerFunc) Handle(ctx context.Context, payload json.RawMessage) (HandlerResult, error) {
	return f(ctx, payload)
}

// NewTypedHandler wraps a typed function into a Handler, unmarshaling the
// payload and marshaling the result.
func NewTypedHandler[In, Out any](fn TypedHandlerFunc[In, Out]) Handler {
	return HandlerFunc(func(ctx context.Context, payload json.RawMessage) (HandlerResult, error) {
		var in In
		if err := json.Unmarshal(payload, &in); err != nil {
			return HandlerResult{}, err
		}
		out, err := fn(ctx, in)
		if err != nil {
			return HandlerResult{}, err
		}
		raw, err := json.Marshal(out)
		if err != nil {
			return HandlerResult{}, err
		}
		return HandlerResult{Result: raw}, nil
	})
}
