package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// ErrNotConfigured is returned by Send when no API key is present. Callers
// treat notification failure as non-fatal, so a missing key degrades to a
// logged error rather than a crash.
var ErrNotConfigured = errors.New("notify: email API key not configured")

// Mailer sends transactional email. Failures must not cause message
// redelivery: by the time a confirmation goes out the fulfillment side
// effects have already been committed.
type Mailer interface {
	Send(ctx context.Context, to, subject, html string) error
}

// Resend sends mail through a Resend-compatible HTTP API.
type Resend struct {
	client *resty.Client
	apiKey string
	from   string
}

func NewResend(baseURL, apiKey, from string, timeout time.Duration) *Resend {
	return &Resend{
		client: resty.New().SetBaseURL(baseURL).SetTimeout(timeout),
		apiKey: apiKey,
		from:   from,
	}
}

type sendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

type sendResponse struct {
	ID string `json:"id"`
}

func (r *Resend) Send(ctx context.Context, to, subject, html string) error {
	if r.apiKey == "" {
		return ErrNotConfigured
	}
	var out sendResponse
	resp, err := r.client.R().
		SetContext(ctx).
		SetAuthToken(r.apiKey).
		SetBody(sendRequest{
			From:    r.from,
			To:      []string{to},
			Subject: subject,
			HTML:    html,
		}).
		SetResult(&out).
		Post("/emails")
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return fmt.Errorf("send email: status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}
