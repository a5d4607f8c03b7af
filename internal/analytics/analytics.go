package analytics

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/printdeck/fulfillment/internal/logging"
)

// Capturer records domain events (grants, order submissions, failures) with
// the product analytics service. Capture is best-effort: it never returns an
// error and never blocks beyond its request timeout.
type Capturer interface {
	Capture(ctx context.Context, distinctID, event string, properties map[string]any)
}

// Client captures events against a PostHog-compatible endpoint.
type Client struct {
	http     *resty.Client
	endpoint string
	apiKey   string
	log      *logging.Logger
}

func NewClient(endpoint, apiKey string, timeout time.Duration) *Client {
	return &Client{
		http:     resty.New().SetTimeout(timeout),
		endpoint: endpoint,
		apiKey:   apiKey,
		log:      logging.New("analytics"),
	}
}

type captureBody struct {
	APIKey     string         `json:"api_key"`
	Event      string         `json:"event"`
	DistinctID string         `json:"distinct_id"`
	Properties map[string]any `json:"properties,omitempty"`
	Timestamp  string         `json:"timestamp"`
}

func (c *Client) Capture(ctx context.Context, distinctID, event string, properties map[string]any) {
	if c.apiKey == "" {
		c.log.Plain().WithField("event", event).Debug("analytics disabled, dropping event")
		return
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(captureBody{
			APIKey:     c.apiKey,
			Event:      event,
			DistinctID: distinctID,
			Properties: properties,
			Timestamp:  time.Now().UTC().Format(time.RFC3339),
		}).
		Post(c.endpoint)
	if err != nil {
		c.log.Plain().WithError(err).WithField("event", event).Debug("analytics capture failed")
		return
	}
	if resp.StatusCode() >= 300 {
		c.log.Plain().WithFields(map[string]any{
			"event":  event,
			"status": resp.StatusCode(),
		}).Debug("analytics capture rejected")
	}
}

// Noop drops all events; used when analytics is not wired up.
type Noop struct{}

func (Noop) Capture(context.Context, string, string, map[string]any) {}
