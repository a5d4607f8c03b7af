package printorder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"go.opentelemetry.io/otel/attribute"

	"github.com/printdeck/fulfillment/internal/analytics"
	"github.com/printdeck/fulfillment/internal/consumer"
	"github.com/printdeck/fulfillment/internal/kv"
	"github.com/printdeck/fulfillment/internal/logging"
	"github.com/printdeck/fulfillment/internal/metrics"
	"github.com/printdeck/fulfillment/internal/notify"
	"github.com/printdeck/fulfillment/internal/queue"
	"github.com/printdeck/fulfillment/internal/report"
	"github.com/printdeck/fulfillment/internal/tracing"
)

// Handler turns one staged order into a confirmed order at the print
// provider, then notifies and cleans up the staged state.
type Handler struct {
	store    kv.Store
	client   *Client
	mailer   notify.Mailer
	events   analytics.Capturer
	reporter report.Reporter
	log      *logging.Logger
}

func NewHandler(store kv.Store, client *Client, mailer notify.Mailer, events analytics.Capturer, reporter report.Reporter) *Handler {
	return &Handler{
		store:    store,
		client:   client,
		mailer:   mailer,
		events:   events,
		reporter: reporter,
		log:      logging.New("print-order"),
	}
}

func (h *Handler) Handle(ctx context.Context, env queue.Envelope) consumer.Result {
	var msg queue.OrderFulfillment
	if err := json.Unmarshal(env.Body, &msg); err != nil {
		return consumer.Dead("bad payload", fmt.Errorf("decode order fulfillment: %w", err))
	}

	ctx, span := tracing.StartSpan(ctx, "printorder.submit",
		attribute.String("payment_ref", msg.PaymentRef),
	)
	defer span.End()

	log := h.log.WithContext(ctx).WithPayment(msg.PaymentRef).WithMessage(env.ID)

	// A missing credential or store binding never self-heals without a
	// deploy; retrying would only burn attempts.
	if h.client == nil || h.store == nil {
		err := errors.New("print order handler missing provider or KV configuration")
		log.WithError(err).Error("fatal configuration error")
		h.reporter.Report(ctx, err, map[string]string{"payment_ref": msg.PaymentRef})
		return consumer.Ack()
	}

	stagedKey := kv.StagedOrderKey(msg.PaymentRef)
	raw, err := h.store.Get(ctx, stagedKey)
	if errors.Is(err, kv.ErrNotFound) {
		// TTL expired or the producer never wrote it; nothing to submit.
		log.Error("staged order not found")
		h.failureEvent(ctx, msg.PaymentRef, "order details not found", 0)
		return consumer.Ack()
	}
	if err != nil {
		return consumer.Retry("kv_error", fmt.Errorf("read staged order %s: %w", stagedKey, err))
	}

	var staged StagedOrder
	if err := json.Unmarshal(raw, &staged); err != nil {
		err = fmt.Errorf("decode staged order %s: %w", stagedKey, err)
		log.WithError(err).Error("unretryable staged order")
		h.reporter.Report(ctx, err, map[string]string{"payment_ref": msg.PaymentRef})
		h.failureEvent(ctx, msg.PaymentRef, "invalid staged order", 0)
		return consumer.Ack()
	}

	tracing.AddSpanEvent(ctx, "provider.create_draft")
	orderID, err := h.client.CreateDraft(ctx, msg.PaymentRef, staged.ShippingAddress)
	if err != nil {
		h.reporter.Report(ctx, err, map[string]string{"payment_ref": msg.PaymentRef, "stage": "create_draft"})
		if Retryable(err) {
			return consumer.Retry("provider_5xx", err)
		}
		log.WithError(err).Error("draft creation rejected")
		h.failureEvent(ctx, msg.PaymentRef, "create draft failed", 0)
		metrics.RecordPrintOrder("failed")
		return consumer.Ack()
	}
	span.SetAttributes(attribute.Int64("provider_order_id", orderID))

	// Dependent calls are sequenced: items and confirm need the draft id.
	for i, item := range staged.Items {
		tracing.AddSpanEvent(ctx, "provider.add_item", attribute.Int("index", i))
		if err := h.client.AddItem(ctx, orderID, item); err != nil {
			// A half-built draft is not retried as a whole: redelivery
			// would draft a second order. Flag it for manual
			// reconciliation instead.
			err = fmt.Errorf("add item %d (variant %d): %w", i, item.CatalogVariantID, err)
			log.WithError(err).Error("item attach failed, abandoning draft")
			h.reporter.Report(ctx, err, map[string]string{
				"payment_ref":       msg.PaymentRef,
				"stage":             "add_item",
				"provider_order_id": strconv.FormatInt(orderID, 10),
			})
			h.failureEvent(ctx, msg.PaymentRef, "item attach failed", orderID)
			metrics.RecordPrintOrder("failed")
			return consumer.Ack()
		}
	}

	tracing.AddSpanEvent(ctx, "provider.confirm")
	if err := h.client.Confirm(ctx, orderID); err != nil {
		h.reporter.Report(ctx, err, map[string]string{
			"payment_ref":       msg.PaymentRef,
			"stage":             "confirm",
			"provider_order_id": strconv.FormatInt(orderID, 10),
		})
		if Retryable(err) {
			return consumer.Retry("provider_5xx", err)
		}
		log.WithError(err).Error("order confirmation rejected")
		h.failureEvent(ctx, msg.PaymentRef, "confirm failed", orderID)
		metrics.RecordPrintOrder("failed")
		return consumer.Ack()
	}

	metrics.RecordPrintOrder("confirmed")
	log.WithFields(map[string]any{
		"provider_order_id": orderID,
		"items":             len(staged.Items),
		"country":           staged.ShippingAddress.CountryCode,
	}).Info("order confirmed")

	h.events.Capture(ctx, msg.PaymentRef, "print_order_submitted", map[string]any{
		"payment_ref":        msg.PaymentRef,
		"provider_order_id":  orderID,
		"country":            staged.ShippingAddress.CountryCode,
		"total_amount_cents": staged.TotalAmountCents,
	})

	subject, html := notify.OrderConfirmation(msg.PaymentRef, orderID)
	if err := h.mailer.Send(ctx, msg.Email, subject, html); err != nil {
		log.WithError(err).Error("confirmation email failed")
		h.reporter.Report(ctx, err, map[string]string{"payment_ref": msg.PaymentRef, "stage": "email"})
	}

	// An orphaned staged entry just expires via its TTL.
	if err := h.store.Delete(ctx, stagedKey); err != nil {
		log.WithError(err).Warn("staged order cleanup failed")
		h.reporter.Report(ctx, err, map[string]string{"payment_ref": msg.PaymentRef, "stage": "cleanup"})
	}

	return consumer.Ack()
}

// failureEvent is the operator's signal that an order may need manual
// reconciliation in the provider dashboard: it carries the partial order id
// when a draft was created but never confirmed.
func (h *Handler) failureEvent(ctx context.Context, paymentRef, reason string, orderID int64) {
	props := map[string]any{
		"payment_ref": paymentRef,
		"reason":      reason,
	}
	if orderID != 0 {
		props["provider_order_id"] = orderID
	}
	h.events.Capture(ctx, paymentRef, "print_order_failed", props)
}
