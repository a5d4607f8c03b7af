package ledger

// bundleTokens maps the storefront's purchasable bundles to the number of
// design tokens they grant. Must stay in sync with the pricing table the
// payment intent endpoint uses.
var bundleTokens = map[string]int{
	"tokens_10":  10,
	"tokens_25":  25,
	"tokens_60":  60,
	"tokens_150": 150,
}

// TokensForBundle resolves a bundle id to its token quantity.
func TokensForBundle(bundleID string) (int, bool) {
	n, ok := bundleTokens[bundleID]
	return n, ok
}
