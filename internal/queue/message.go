package queue

import "encoding/json"

// Topic prefixes used for dispatch routing. Deployments append an environment
// suffix (e.g. token-fulfillment-staging); routing matches on the prefix.
const (
	TokenTopicPrefix = "token-fulfillment"
	OrderTopicPrefix = "order-fulfillment"
)

// TokenFulfillment is produced once per completed token bundle purchase.
type TokenFulfillment struct {
	GrantID            string  `json:"grant_id"`
	BundleID           string  `json:"bundle_id"`
	Email              string  `json:"email"`
	PaymentCustomerRef *string `json:"payment_customer_ref"`
}

// OrderFulfillment is produced once per completed print order payment. The
// payment reference doubles as the KV staging key suffix and the provider's
// external order id.
type OrderFulfillment struct {
	PaymentRef string `json:"payment_ref"`
	Email      string `json:"email"`
}

// Envelope is the dispatcher's view of one delivery: the raw body plus the
// routing and redelivery metadata carried by the queue runtime. Attempt is
// zero-based: 0 on the first delivery.
type Envelope struct {
	ID      string
	Queue   string
	Attempt int
	Body    json.RawMessage
}

// TraceHeaders pulls the optional trace_headers object a producer may attach
// to any message body for trace propagation across the queue hop.
func (e Envelope) TraceHeaders() map[string]string {
	var carrier struct {
		TraceHeaders map[string]string `json:"trace_headers"`
	}
	if err := json.Unmarshal(e.Body, &carrier); err != nil {
		return nil
	}
	return carrier.TraceHeaders
}
