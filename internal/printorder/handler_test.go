package printorder

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/printdeck/fulfillment/internal/consumer"
	"github.com/printdeck/fulfillment/internal/kv"
	"github.com/printdeck/fulfillment/internal/queue"
)

type fakeMailer struct {
	sent []string
	fail error
}

func (m *fakeMailer) Send(_ context.Context, to, _, _ string) error {
	if m.fail != nil {
		return m.fail
	}
	m.sent = append(m.sent, to)
	return nil
}

type fakeCapturer struct {
	events []string
	props  []map[string]any
}

func (c *fakeCapturer) Capture(_ context.Context, _, event string, props map[string]any) {
	c.events = append(c.events, event)
	c.props = append(c.props, props)
}

type fakeReporter struct {
	errs []error
}

func (r *fakeReporter) Report(_ context.Context, err error, _ map[string]string) {
	r.errs = append(r.errs, err)
}

// fakeProvider is a scriptable stand-in for the print provider's order API.
type fakeProvider struct {
	mu            sync.Mutex
	draftStatus   int // non-zero forces this status on POST /orders
	itemStatus    int
	confirmStatus int
	drafts        int
	items         int
	confirms      int
}

func (p *fakeProvider) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /orders", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.draftStatus != 0 {
			http.Error(w, "draft rejected", p.draftStatus)
			return
		}
		p.drafts++
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"id": 4242})
	})
	mux.HandleFunc("POST /orders/{id}/order-items", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.itemStatus != 0 {
			http.Error(w, "bad item", p.itemStatus)
			return
		}
		p.items++
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST /orders/{id}/confirm", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.confirmStatus != 0 {
			http.Error(w, "not confirmable", p.confirmStatus)
			return
		}
		p.confirms++
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func orderEnvelope(t *testing.T, paymentRef string) queue.Envelope {
	t.Helper()
	body, err := json.Marshal(queue.OrderFulfillment{PaymentRef: paymentRef, Email: "a@b.com"})
	if err != nil {
		t.Fatalf("marshal message: %v", err)
	}
	return queue.Envelope{ID: "msg-1", Queue: "order-fulfillment", Body: body}
}

func stageOrder(t *testing.T, store kv.Store, paymentRef string, order StagedOrder) {
	t.Helper()
	raw, err := json.Marshal(order)
	if err != nil {
		t.Fatalf("marshal staged order: %v", err)
	}
	if err := store.Put(context.Background(), kv.StagedOrderKey(paymentRef), raw, time.Hour); err != nil {
		t.Fatalf("stage order: %v", err)
	}
}

func testOrder() StagedOrder {
	return StagedOrder{
		TotalAmountCents: 2999,
		Currency:         "eur",
		Items: []Item{
			{CatalogVariantID: 71, Quantity: 1, DesignURL: "https://cdn.example.com/d1.png"},
			{CatalogVariantID: 19, Quantity: 2, DesignURL: "https://cdn.example.com/d2.png"},
		},
		ShippingAddress: Address{
			Name: "Ada L", Email: "a@b.com", Address1: "1 Main St",
			City: "Springfield", CountryCode: "US", Zip: "01101",
		},
	}
}

func newTestHandler(t *testing.T, provider *fakeProvider) (*Handler, kv.Store, *fakeMailer, *fakeCapturer, *fakeReporter) {
	t.Helper()
	srv := httptest.NewServer(provider.handler())
	t.Cleanup(srv.Close)

	store := kv.NewMemory()
	mailer := &fakeMailer{}
	events := &fakeCapturer{}
	rep := &fakeReporter{}
	client := NewClient(srv.URL, "test-key", 5*time.Second)
	return NewHandler(store, client, mailer, events, rep), store, mailer, events, rep
}

func TestSubmitConfirmsAndCleansUp(t *testing.T) {
	provider := &fakeProvider{}
	h, store, mailer, events, _ := newTestHandler(t, provider)
	stageOrder(t, store, "pi_1", testOrder())

	res := h.Handle(context.Background(), orderEnvelope(t, "pi_1"))

	if res.Disposition != consumer.DispositionAck {
		t.Fatalf("disposition = %v, want ack", res.Disposition)
	}
	if provider.drafts != 1 || provider.items != 2 || provider.confirms != 1 {
		t.Errorf("provider calls = %d drafts, %d items, %d confirms; want 1/2/1",
			provider.drafts, provider.items, provider.confirms)
	}
	if _, err := store.Get(context.Background(), kv.StagedOrderKey("pi_1")); !errors.Is(err, kv.ErrNotFound) {
		t.Error("staged order should be deleted after confirmation")
	}
	if len(mailer.sent) != 1 || mailer.sent[0] != "a@b.com" {
		t.Errorf("mailer.sent = %v, want one send to a@b.com", mailer.sent)
	}
	if len(events.events) != 1 || events.events[0] != "print_order_submitted" {
		t.Fatalf("events = %v, want [print_order_submitted]", events.events)
	}
	props := events.props[0]
	if props["provider_order_id"] != int64(4242) {
		t.Errorf("provider_order_id property = %v, want 4242", props["provider_order_id"])
	}
	if props["country"] != "US" {
		t.Errorf("country property = %v, want US", props["country"])
	}
	if props["total_amount_cents"] != 2999 {
		t.Errorf("total_amount_cents property = %v, want 2999", props["total_amount_cents"])
	}
}

func TestMissingProviderConfigIsTerminal(t *testing.T) {
	store := kv.NewMemory()
	rep := &fakeReporter{}
	events := &fakeCapturer{}
	// an unconfigured deploy wires a nil provider client
	h := NewHandler(store, nil, &fakeMailer{}, events, rep)
	stageOrder(t, store, "pi_1", testOrder())

	res := h.Handle(context.Background(), orderEnvelope(t, "pi_1"))

	if res.Disposition != consumer.DispositionAck {
		t.Errorf("disposition = %v, want ack (config errors never self-heal)", res.Disposition)
	}
	if len(rep.errs) != 1 {
		t.Errorf("reported errors = %d, want 1", len(rep.errs))
	}
	// staged order survives until the deploy is fixed
	if _, err := store.Get(context.Background(), kv.StagedOrderKey("pi_1")); err != nil {
		t.Errorf("staged order should remain: %v", err)
	}
}

func TestMissingStagedOrderIsTerminal(t *testing.T) {
	provider := &fakeProvider{}
	h, _, _, events, _ := newTestHandler(t, provider)

	res := h.Handle(context.Background(), orderEnvelope(t, "pi_missing"))

	if res.Disposition != consumer.DispositionAck {
		t.Errorf("disposition = %v, want ack (unretryable)", res.Disposition)
	}
	if provider.drafts != 0 {
		t.Errorf("drafts created = %d, want 0", provider.drafts)
	}
	if len(events.events) != 1 || events.events[0] != "print_order_failed" {
		t.Fatalf("events = %v, want [print_order_failed]", events.events)
	}
	if got := events.props[0]["reason"]; got != "order details not found" {
		t.Errorf("failure reason = %v, want %q", got, "order details not found")
	}
}

func TestProviderOutageIsRetryable(t *testing.T) {
	provider := &fakeProvider{draftStatus: http.StatusServiceUnavailable}
	h, store, _, events, _ := newTestHandler(t, provider)
	stageOrder(t, store, "pi_1", testOrder())

	res := h.Handle(context.Background(), orderEnvelope(t, "pi_1"))

	if res.Disposition != consumer.DispositionRetry {
		t.Fatalf("disposition = %v, want retry", res.Disposition)
	}
	if res.Reason != "provider_5xx" {
		t.Errorf("reason = %q, want %q", res.Reason, "provider_5xx")
	}
	// staged order survives for the redelivery
	if _, err := store.Get(context.Background(), kv.StagedOrderKey("pi_1")); err != nil {
		t.Errorf("staged order should remain: %v", err)
	}
	if len(events.events) != 0 {
		t.Errorf("events = %v, want none before the final attempt", events.events)
	}
}

func TestProviderRejectionIsTerminal(t *testing.T) {
	provider := &fakeProvider{draftStatus: http.StatusUnprocessableEntity}
	h, store, _, events, rep := newTestHandler(t, provider)
	stageOrder(t, store, "pi_1", testOrder())

	res := h.Handle(context.Background(), orderEnvelope(t, "pi_1"))

	if res.Disposition != consumer.DispositionAck {
		t.Errorf("disposition = %v, want ack (unretryable)", res.Disposition)
	}
	if len(rep.errs) != 1 {
		t.Errorf("reported errors = %d, want 1", len(rep.errs))
	}
	if len(events.events) != 1 || events.events[0] != "print_order_failed" {
		t.Fatalf("events = %v, want [print_order_failed]", events.events)
	}
	if _, ok := events.props[0]["provider_order_id"]; ok {
		t.Error("failure event should not carry an order id when no draft was created")
	}
}

func TestItemFailureAbandonsDraft(t *testing.T) {
	provider := &fakeProvider{itemStatus: http.StatusBadRequest}
	h, store, _, events, _ := newTestHandler(t, provider)
	stageOrder(t, store, "pi_1", testOrder())

	res := h.Handle(context.Background(), orderEnvelope(t, "pi_1"))

	if res.Disposition != consumer.DispositionAck {
		t.Errorf("disposition = %v, want ack (no whole-order retry after a partial draft)", res.Disposition)
	}
	if provider.confirms != 0 {
		t.Errorf("confirms = %d, want 0", provider.confirms)
	}
	if len(events.events) != 1 || events.events[0] != "print_order_failed" {
		t.Fatalf("events = %v, want [print_order_failed]", events.events)
	}
	if got := events.props[0]["provider_order_id"]; got != int64(4242) {
		t.Errorf("failure event order id = %v, want 4242 for reconciliation", got)
	}
}

func TestConfirmOutageIsRetryable(t *testing.T) {
	provider := &fakeProvider{confirmStatus: http.StatusBadGateway}
	h, store, _, _, _ := newTestHandler(t, provider)
	stageOrder(t, store, "pi_1", testOrder())

	res := h.Handle(context.Background(), orderEnvelope(t, "pi_1"))

	if res.Disposition != consumer.DispositionRetry {
		t.Fatalf("disposition = %v, want retry", res.Disposition)
	}
}

func TestEmailFailureDoesNotRetry(t *testing.T) {
	provider := &fakeProvider{}
	h, store, mailer, _, rep := newTestHandler(t, provider)
	mailer.fail = errors.New("smtp down")
	stageOrder(t, store, "pi_1", testOrder())

	res := h.Handle(context.Background(), orderEnvelope(t, "pi_1"))

	if res.Disposition != consumer.DispositionAck {
		t.Errorf("disposition = %v, want ack despite email failure", res.Disposition)
	}
	if len(rep.errs) != 1 {
		t.Errorf("reported errors = %d, want 1", len(rep.errs))
	}
	if _, err := store.Get(context.Background(), kv.StagedOrderKey("pi_1")); !errors.Is(err, kv.ErrNotFound) {
		t.Error("staged order should still be deleted")
	}
}

func TestCorruptStagedOrderIsTerminal(t *testing.T) {
	provider := &fakeProvider{}
	h, store, _, events, _ := newTestHandler(t, provider)
	if err := store.Put(context.Background(), kv.StagedOrderKey("pi_1"), []byte(`{"items":`), time.Hour); err != nil {
		t.Fatalf("stage order: %v", err)
	}

	res := h.Handle(context.Background(), orderEnvelope(t, "pi_1"))

	if res.Disposition != consumer.DispositionAck {
		t.Errorf("disposition = %v, want ack (unretryable)", res.Disposition)
	}
	if len(events.events) != 1 || events.events[0] != "print_order_failed" {
		t.Errorf("events = %v, want [print_order_failed]", events.events)
	}
}

func TestBadPayloadIsDead(t *testing.T) {
	h, _, _, _, _ := newTestHandler(t, &fakeProvider{})

	env := queue.Envelope{ID: "msg-1", Queue: "order-fulfillment", Body: []byte(`{"payment_ref":`)}
	res := h.Handle(context.Background(), env)

	if res.Disposition != consumer.DispositionDead {
		t.Errorf("disposition = %v, want dead", res.Disposition)
	}
	if !strings.Contains(res.Reason, "bad payload") {
		t.Errorf("reason = %q, want bad payload", res.Reason)
	}
}
