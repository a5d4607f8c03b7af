package report

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/printdeck/fulfillment/internal/logging"
)

// Reporter delivers handler failures to the error tracker with enough context
// to find the offending message. Reporting never fails the caller.
type Reporter interface {
	Report(ctx context.Context, err error, tags map[string]string)
}

// New returns an HTTP reporter when a sink URL is configured, otherwise a
// log-only reporter.
func New(url, service string, timeout time.Duration) Reporter {
	if url == "" {
		return &logReporter{log: logging.New(service)}
	}
	return &httpReporter{
		client:  resty.New().SetTimeout(timeout),
		url:     url,
		service: service,
		log:     logging.New(service),
	}
}

type httpReporter struct {
	client  *resty.Client
	url     string
	service string
	log     *logging.Logger
}

type event struct {
	Service string            `json:"service"`
	Error   string            `json:"error"`
	Tags    map[string]string `json:"tags,omitempty"`
	At      string            `json:"at"`
}

func (r *httpReporter) Report(ctx context.Context, err error, tags map[string]string) {
	if err == nil {
		return
	}
	resp, postErr := r.client.R().
		SetContext(ctx).
		SetBody(event{
			Service: r.service,
			Error:   err.Error(),
			Tags:    tags,
			At:      time.Now().UTC().Format(time.RFC3339),
		}).
		Post(r.url)
	if postErr != nil {
		r.log.Plain().WithError(postErr).Warn("error report delivery failed")
		return
	}
	if resp.StatusCode() >= 300 {
		r.log.Plain().WithField("status", resp.StatusCode()).Warn("error report rejected")
	}
}

type logReporter struct {
	log *logging.Logger
}

func (r *logReporter) Report(_ context.Context, err error, tags map[string]string) {
	if err == nil {
		return
	}
	entry := r.log.Plain().WithError(err)
	for k, v := range tags {
		entry = entry.WithField(k, v)
	}
	entry.Error("handler failure")
}
