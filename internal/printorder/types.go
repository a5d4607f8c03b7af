package printorder

// Address is the recipient block the producer stages and the provider
// expects on a draft order.
type Address struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Address1    string `json:"address1"`
	Address2    string `json:"address2,omitempty"`
	City        string `json:"city"`
	StateCode   string `json:"state_code,omitempty"`
	CountryCode string `json:"country_code"` // ISO 3166-1 alpha-2
	Zip         string `json:"zip"`
}

// Item is one line of a staged order: a catalog variant printed with the
// customer's design.
type Item struct {
	CatalogVariantID int    `json:"catalog_variant_id"`
	Quantity         int    `json:"quantity"`
	DesignURL        string `json:"design_url"`
}

// StagedOrder is the full order payload the producer parks in the KV store at
// payment-intent time, keyed by order:<payment_ref> with a TTL. Read once by
// the order handler and deleted after the provider confirms.
type StagedOrder struct {
	TotalAmountCents int     `json:"total_amount_cents"`
	Currency         string  `json:"currency"`
	Items            []Item  `json:"items"`
	ShippingAddress  Address `json:"shipping_address"`
	ShippingOptionID string  `json:"shipping_option_id,omitempty"`
}
