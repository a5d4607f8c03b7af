package consumer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/printdeck/fulfillment/internal/logging"
	"github.com/printdeck/fulfillment/internal/metrics"
	"github.com/printdeck/fulfillment/internal/queue"
	"github.com/printdeck/fulfillment/internal/report"
	"github.com/printdeck/fulfillment/internal/tracing"
)

// Action is what the queue runtime should do with the message.
type Action int

const (
	ActionFinish Action = iota
	ActionRequeue
)

// DeadLetterSink receives messages the pipeline has given up on.
type DeadLetterSink interface {
	Publish(dl queue.DeadLetter) error
}

type route struct {
	prefix  string
	handler Handler
}

// Dispatcher routes deliveries to type-specific handlers by queue-name prefix
// and applies one retry policy to every tagged result.
type Dispatcher struct {
	routes      []route
	reporter    report.Reporter
	dlq         DeadLetterSink // nil disables DLQ publishing
	maxAttempts int
	backoffBase time.Duration
	log         *logging.Logger
}

func NewDispatcher(reporter report.Reporter, dlq DeadLetterSink, maxAttempts int, backoffBase time.Duration) *Dispatcher {
	return &Dispatcher{
		reporter:    reporter,
		dlq:         dlq,
		maxAttempts: maxAttempts,
		backoffBase: backoffBase,
		log:         logging.New("fulfillment-consumer"),
	}
}

// Register binds a handler to every queue whose name starts with prefix.
func (d *Dispatcher) Register(prefix string, h Handler) {
	d.routes = append(d.routes, route{prefix: prefix, handler: h})
}

// Dispatch processes one delivery and returns the queue action plus the
// redelivery delay when the action is requeue.
func (d *Dispatcher) Dispatch(ctx context.Context, env queue.Envelope) (Action, time.Duration) {
	ctx = tracing.ExtractTraceFromQueue(ctx, env.TraceHeaders())
	ctx, span := tracing.StartSpan(ctx, "consumer.dispatch",
		attribute.String("queue", env.Queue),
		attribute.String("message_id", env.ID),
		attribute.Int("attempt", env.Attempt),
	)
	defer span.End()

	d.log.WithContext(ctx).WithQueue(env.Queue).WithMessage(env.ID).
		WithField("attempt", env.Attempt).Info("processing message")

	h := d.lookup(env.Queue)
	if h == nil {
		// Deployment/config mismatch, not a transient fault: ack so the
		// message does not spin forever.
		err := fmt.Errorf("no handler for queue %q", env.Queue)
		tracing.SetSpanError(ctx, err)
		d.log.WithContext(ctx).WithQueue(env.Queue).WithMessage(env.ID).Error("unknown queue, acknowledging")
		d.reporter.Report(ctx, err, d.tags(env))
		metrics.RecordMessage(env.Queue, "ack")
		return ActionFinish, 0
	}

	res := d.invoke(ctx, h, env)

	if res.Err != nil {
		tracing.SetSpanError(ctx, res.Err)
		d.reporter.Report(ctx, res.Err, d.tags(env))
	}

	switch res.Disposition {
	case DispositionAck:
		metrics.RecordMessage(env.Queue, "ack")
		return ActionFinish, 0

	case DispositionRetry:
		if env.Attempt < d.maxAttempts {
			delay := Backoff(d.backoffBase, env.Attempt)
			metrics.RecordMessage(env.Queue, "retry")
			metrics.RecordRetry(res.Reason)
			tracing.AddSpanEvent(ctx, "message.requeue",
				attribute.Int("attempt", env.Attempt),
				attribute.String("delay", delay.String()),
			)
			d.log.WithContext(ctx).WithQueue(env.Queue).WithMessage(env.ID).WithFields(map[string]any{
				"attempt": env.Attempt,
				"delay":   delay.String(),
				"reason":  res.Reason,
			}).Info("requeue message")
			return ActionRequeue, delay
		}
		res.Reason = fmt.Sprintf("max attempts reached (%d), last: %s", env.Attempt, res.Reason)
		fallthrough

	default: // DispositionDead, or retries exhausted
		metrics.RecordMessage(env.Queue, "dead")
		metrics.RecordDLQ()
		d.log.WithContext(ctx).WithQueue(env.Queue).WithMessage(env.ID).WithFields(map[string]any{
			"attempt": env.Attempt,
			"reason":  res.Reason,
		}).Error("giving up on message")
		d.publishDeadLetter(ctx, env, res)
		return ActionFinish, 0
	}
}

// invoke runs the handler, converting a panic into a retryable result — the
// same treatment the loop gives a thrown error.
func (d *Dispatcher) invoke(ctx context.Context, h Handler, env queue.Envelope) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Retry("handler_panic", fmt.Errorf("handler panic: %v", r))
		}
	}()
	return h.Handle(ctx, env)
}

func (d *Dispatcher) publishDeadLetter(ctx context.Context, env queue.Envelope, res Result) {
	if d.dlq == nil {
		return
	}
	dl := queue.NewDeadLetter(env, res.Reason, errString(res.Err))
	if err := d.dlq.Publish(dl); err != nil {
		tracing.SetSpanError(ctx, err)
		d.log.WithContext(ctx).WithMessage(env.ID).WithError(err).Error("dlq publish failed")
	}
}

func (d *Dispatcher) lookup(queueName string) Handler {
	for _, r := range d.routes {
		if strings.HasPrefix(queueName, r.prefix) {
			return r.handler
		}
	}
	return nil
}

func (d *Dispatcher) tags(env queue.Envelope) map[string]string {
	return map[string]string{
		"queue":      env.Queue,
		"message_id": env.ID,
		"attempt":    fmt.Sprintf("%d", env.Attempt),
	}
}

// Backoff returns the redelivery delay for a zero-based attempt count:
// base, 2*base, 4*base, ...
func Backoff(base time.Duration, attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	return base * time.Duration(1<<uint(attempt))
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
