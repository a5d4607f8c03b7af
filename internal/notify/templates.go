package notify

import "fmt"

// TokenConfirmation builds the email sent after a token bundle is credited.
// The grant id is the customer's access credential, so it is repeated
// prominently.
func TokenConfirmation(balance int, grantID string) (subject, html string) {
	subject = "Your Printdeck design tokens are ready"
	html = fmt.Sprintf(`<h2>Thanks for your purchase!</h2>
<p>Your design tokens have been added. Current balance: <strong>%d tokens</strong>.</p>
<p>Your access key (keep this safe, it is how you use your tokens):</p>
<p><code>%s</code></p>
<p>Head back to the designer and paste your access key to continue creating.</p>`, balance, grantID)
	return subject, html
}

// OrderConfirmation builds the email sent after the print provider confirms
// an order.
func OrderConfirmation(paymentRef string, providerOrderID int64) (subject, html string) {
	subject = "Your Printdeck order is in production"
	html = fmt.Sprintf(`<h2>Your order is confirmed!</h2>
<p>Your custom apparel order has been sent to production.</p>
<p>Order reference: <code>%s</code> (production id %d)</p>
<p>You will receive shipping updates from our print partner as your order progresses.</p>`, paymentRef, providerOrderID)
	return subject, html
}
