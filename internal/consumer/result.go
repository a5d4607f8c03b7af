package consumer

import (
	"context"

	"github.com/printdeck/fulfillment/internal/queue"
)

// Disposition is a handler's verdict on one delivery.
type Disposition int

const (
	// DispositionAck acknowledges the message: success, or a permanent
	// failure the handler has already logged and reported.
	DispositionAck Disposition = iota
	// DispositionRetry requests redelivery with backoff.
	DispositionRetry
	// DispositionDead gives up on the message without retrying.
	DispositionDead
)

func (d Disposition) String() string {
	switch d {
	case DispositionAck:
		return "ack"
	case DispositionRetry:
		return "retry"
	case DispositionDead:
		return "dead"
	default:
		return "unknown"
	}
}

// Result is the tagged outcome every handler returns; the dispatcher owns
// translating it into a queue action.
type Result struct {
	Disposition Disposition
	Reason      string // stable label for metrics/DLQ, e.g. "provider_5xx"
	Err         error  // underlying cause, reported when present
}

func Ack() Result {
	return Result{Disposition: DispositionAck}
}

func Retry(reason string, err error) Result {
	return Result{Disposition: DispositionRetry, Reason: reason, Err: err}
}

func Dead(reason string, err error) Result {
	return Result{Disposition: DispositionDead, Reason: reason, Err: err}
}

// Handler processes one fulfillment message.
type Handler interface {
	Handle(ctx context.Context, env queue.Envelope) Result
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, env queue.Envelope) Result

func (f HandlerFunc) Handle(ctx context.Context, env queue.Envelope) Result {
	return f(ctx, env)
}
