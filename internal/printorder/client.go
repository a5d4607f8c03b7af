package printorder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// StatusError is a non-2xx provider response. The status drives the
// retryable/terminal split: 5xx is worth retrying, 4xx never is.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("provider status %d: %s", e.Status, e.Body)
}

// Retryable classifies a provider call failure. Transport-level errors
// (timeouts, refused connections) have no status and are always retryable.
func Retryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status >= 500
	}
	return true
}

// Client drives the provider's three-step order protocol.
type Client struct {
	http *resty.Client
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetAuthToken(apiKey).
			SetTimeout(timeout),
	}
}

type draftRequest struct {
	ExternalID string  `json:"external_id"`
	Recipient  Address `json:"recipient"`
}

// orderResponse tolerates both a bare order object and a data-wrapped one.
type orderResponse struct {
	ID   int64 `json:"id"`
	Data struct {
		ID int64 `json:"id"`
	} `json:"data"`
}

// CreateDraft submits a draft order and returns the provider's order id.
func (c *Client) CreateDraft(ctx context.Context, externalID string, recipient Address) (int64, error) {
	var out orderResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(draftRequest{ExternalID: externalID, Recipient: recipient}).
		SetResult(&out).
		Post("/orders")
	if err != nil {
		return 0, fmt.Errorf("create draft: %w", err)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return 0, &StatusError{Status: resp.StatusCode(), Body: resp.String()}
	}
	id := out.ID
	if id == 0 {
		id = out.Data.ID
	}
	if id == 0 {
		return 0, fmt.Errorf("create draft: no order id in response")
	}
	return id, nil
}

type placementLayer struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

type placement struct {
	Placement string           `json:"placement"`
	Layers    []placementLayer `json:"layers"`
}

type itemRequest struct {
	Source           string      `json:"source"`
	CatalogVariantID int         `json:"catalog_variant_id"`
	Quantity         int         `json:"quantity"`
	Placements       []placement `json:"placements"`
}

// AddItem attaches one line item with a single front placement referencing
// the customer's design file.
func (c *Client) AddItem(ctx context.Context, orderID int64, item Item) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(itemRequest{
			Source:           "catalog",
			CatalogVariantID: item.CatalogVariantID,
			Quantity:         item.Quantity,
			Placements: []placement{{
				Placement: "front",
				Layers:    []placementLayer{{Type: "file", URL: item.DesignURL}},
			}},
		}).
		Post(fmt.Sprintf("/orders/%d/order-items", orderID))
	if err != nil {
		return fmt.Errorf("add item: %w", err)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return &StatusError{Status: resp.StatusCode(), Body: resp.String()}
	}
	return nil
}

// Confirm commits the draft order for production.
func (c *Client) Confirm(ctx context.Context, orderID int64) error {
	resp, err := c.http.R().
		SetContext(ctx).
		Post(fmt.Sprintf("/orders/%d/confirm", orderID))
	if err != nil {
		return fmt.Errorf("confirm order: %w", err)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return &StatusError{Status: resp.StatusCode(), Body: resp.String()}
	}
	return nil
}
