package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

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

// Entry is the token balance record stored under a grant id. The balance is
// additive here and decremented by the design generator when a token is spent.
// LastMessageID records the delivery that produced the current balance, so a
// taken-over redelivery can never credit the same purchase twice.
type Entry struct {
	TokensRemaining     int     `json:"tokens_remaining"`
	Email               string  `json:"email"`
	PaymentCustomerRef  *string `json:"payment_customer_ref"`
	LastUpdated         string  `json:"last_updated"`
	LastBundlePurchased string  `json:"last_bundle_purchased"`
	LastMessageID       string  `json:"last_message_id,omitempty"`
}

const (
	markerPending = "pending"
	markerApplied = "applied"
)

// marker is the processed-message record. It starts pending when a delivery is
// claimed and flips to applied once the grant is in the ledger; a marker stuck
// at pending means the claiming attempt died mid-flight and the redelivery
// must take the grant over rather than ack it away.
type marker struct {
	State string `json:"state"`
	Queue string `json:"queue"`
}

// Handler applies token purchase messages to the ledger exactly once in
// effect, then notifies the purchaser.
type Handler struct {
	store     kv.Store
	mailer    notify.Mailer
	events    analytics.Capturer
	reporter  report.Reporter
	markerTTL time.Duration
	log       *logging.Logger
}

func NewHandler(store kv.Store, mailer notify.Mailer, events analytics.Capturer, reporter report.Reporter, markerTTL time.Duration) *Handler {
	return &Handler{
		store:     store,
		mailer:    mailer,
		events:    events,
		reporter:  reporter,
		markerTTL: markerTTL,
		log:       logging.New("token-ledger"),
	}
}

func (h *Handler) Handle(ctx context.Context, env queue.Envelope) consumer.Result {
	var msg queue.TokenFulfillment
	if err := json.Unmarshal(env.Body, &msg); err != nil {
		return consumer.Dead("bad payload", fmt.Errorf("decode token fulfillment: %w", err))
	}

	ctx, span := tracing.StartSpan(ctx, "ledger.grant",
		attribute.String("grant_id", msg.GrantID),
		attribute.String("bundle_id", msg.BundleID),
	)
	defer span.End()

	log := h.log.WithContext(ctx).WithGrant(msg.GrantID).WithMessage(env.ID)

	tokens, ok := TokensForBundle(msg.BundleID)
	if !ok {
		// Malformed or out-of-date bundle data will never succeed on retry.
		err := fmt.Errorf("unknown bundle id %q", msg.BundleID)
		log.WithError(err).Error("unretryable token fulfillment")
		h.reporter.Report(ctx, err, map[string]string{"grant_id": msg.GrantID, "bundle_id": msg.BundleID})
		return consumer.Ack()
	}

	// Claim the processed marker before mutating so a redelivered message
	// after a lost ack does not double-credit.
	markerKey := kv.ProcessedKey(env.ID)
	pendingMarker, _ := json.Marshal(marker{State: markerPending, Queue: env.Queue})
	claimed, err := h.store.SetNX(ctx, markerKey, pendingMarker, h.markerTTL)
	if err != nil {
		return consumer.Retry("kv_error", fmt.Errorf("claim processed marker: %w", err))
	}
	if !claimed {
		raw, err := h.store.Get(ctx, markerKey)
		if err != nil && !errors.Is(err, kv.ErrNotFound) {
			return consumer.Retry("kv_error", fmt.Errorf("read processed marker: %w", err))
		}
		var m marker
		if raw != nil {
			_ = json.Unmarshal(raw, &m)
		}
		if m.State == markerApplied {
			log.Info("duplicate delivery, already applied")
			tracing.AddSpanEvent(ctx, "ledger.duplicate_delivery")
			return consumer.Ack()
		}
		// A pending marker means the claiming attempt died before the grant
		// landed. The message id check in the update makes taking over safe.
		log.Info("taking over unapplied delivery")
		tracing.AddSpanEvent(ctx, "ledger.delivery_takeover")
	}

	var newBalance int
	var alreadyApplied bool
	err = h.store.Update(ctx, kv.LedgerKey(msg.GrantID), 0, func(old []byte) ([]byte, error) {
		var entry Entry
		if old != nil {
			if err := json.Unmarshal(old, &entry); err != nil {
				return nil, fmt.Errorf("decode ledger entry: %w", err)
			}
		}
		if entry.LastMessageID != "" && entry.LastMessageID == env.ID {
			alreadyApplied = true
			newBalance = entry.TokensRemaining
			return old, nil
		}
		alreadyApplied = false
		entry.TokensRemaining += tokens
		entry.Email = msg.Email
		entry.PaymentCustomerRef = msg.PaymentCustomerRef
		entry.LastUpdated = time.Now().UTC().Format(time.RFC3339)
		entry.LastBundlePurchased = msg.BundleID
		entry.LastMessageID = env.ID
		newBalance = entry.TokensRemaining
		return json.Marshal(entry)
	})
	if err != nil {
		// The marker stays pending, so the redelivery takes the grant over
		// instead of acking an uncredited purchase.
		return consumer.Retry("kv_error", fmt.Errorf("update ledger for grant %s: %w", msg.GrantID, err))
	}

	appliedMarker, _ := json.Marshal(marker{State: markerApplied, Queue: env.Queue})
	if err := h.store.Put(ctx, markerKey, appliedMarker, h.markerTTL); err != nil {
		// The ledger's message id still blocks a double credit.
		log.WithError(err).Warn("failed to mark delivery applied")
	}

	if alreadyApplied {
		log.Info("grant already in ledger, skipping notifications")
		return consumer.Ack()
	}

	metrics.RecordTokensGranted(msg.BundleID, tokens)
	span.SetAttributes(attribute.Int("new_balance", newBalance))
	log.WithFields(map[string]any{
		"bundle":      msg.BundleID,
		"tokens":      tokens,
		"new_balance": newBalance,
	}).Info("tokens granted")

	h.events.Capture(ctx, msg.GrantID, "tokens_granted", map[string]any{
		"bundle":       msg.BundleID,
		"tokens_added": tokens,
		"new_balance":  newBalance,
	})

	// Tokens are already granted; a lost email must not re-credit them.
	subject, html := notify.TokenConfirmation(newBalance, msg.GrantID)
	if err := h.mailer.Send(ctx, msg.Email, subject, html); err != nil {
		log.WithError(err).Error("confirmation email failed")
		h.reporter.Report(ctx, err, map[string]string{"grant_id": msg.GrantID, "stage": "email"})
	}

	return consumer.Ack()
}
