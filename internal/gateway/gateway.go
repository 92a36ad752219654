// Package gateway is the contract between the ledger and the external payment
// processor: coin checkout, settlement lookup, connected payout accounts and
// transfers out of the platform.
package gateway

import (
	"context"
	"errors"

	"coin_ledger/internal/domain"
)

// Webhook event types the ledger reacts to
const (
	EventCheckoutCompleted   = "checkout.session.completed"
	EventAccountDeauthorized = "account.application.deauthorized"
)

// PaymentStatusPaid is the checkout payment status that credits coins
const PaymentStatusPaid = "paid"

// ErrInvalidWebhook is returned when a webhook payload fails verification
var ErrInvalidWebhook = errors.New("invalid webhook payload or signature")

// ErrTransferDeclined marks a transfer the processor definitively refused.
// Any other TransferFunds error leaves the outcome unknown.
var ErrTransferDeclined = errors.New("transfer declined")

// ErrBelowMinimumPurchase is returned for checkouts under the coin minimum
var ErrBelowMinimumPurchase = domain.ErrBelowMinimumPurchase

// Payer is the profile a checkout or connected account is created for
type Payer struct {
	ProfileID uint
	Email     string
}

// CheckoutSession is a hosted payment page for buying coins
type CheckoutSession struct {
	ID  string
	URL string
}

// AccountStatus is the processor's view of a connected payout account
type AccountStatus struct {
	ChargesEnabled bool
	Email          string
}

// TransferRequest moves AmountCents to a connected account. Retrying with the
// same IdempotencyKey never pays twice.
type TransferRequest struct {
	AccountID      string
	AmountCents    int64
	Metadata       map[string]string
	IdempotencyKey string
}

// CheckoutCompleted is the payload of a checkout.session.completed event
type CheckoutCompleted struct {
	SessionID       string `json:"session_id"`
	PaymentStatus   string `json:"payment_status"`
	PaymentIntentID string `json:"payment_intent_id"`
	ProfileID       uint   `json:"profile_id"` // From the session's client reference
}

// Paid reports whether the session should credit coins
func (c *CheckoutCompleted) Paid() bool {
	return c.PaymentStatus == PaymentStatusPaid
}

// WebhookEvent is a verified processor notification
type WebhookEvent struct {
	ID       string             `json:"id"`
	Type     string             `json:"type"`
	Account  string             `json:"account,omitempty"` // Connected account the event is about
	Checkout *CheckoutCompleted `json:"checkout,omitempty"`
}

// Gateway is implemented by stripegw.Client and Fake
type Gateway interface {
	// CreateCheckoutSession returns ErrBelowMinimumPurchase below the minimum
	CreateCheckoutSession(ctx context.Context, payer Payer, coins int64, successURL, cancelURL string) (*CheckoutSession, error)
	// ResolveSettlement returns the charged and net-of-fees cents of a payment
	ResolveSettlement(ctx context.Context, paymentIntentID string) (nominal, net int64, err error)
	CreateConnectAccount(ctx context.Context, payer Payer) (string, error)
	CreateOnboardingLink(ctx context.Context, accountID, refreshURL, returnURL string) (string, error)
	GetAccountStatus(ctx context.Context, accountID string) (*AccountStatus, error)
	// TransferFunds wraps ErrTransferDeclined when no money moved
	TransferFunds(ctx context.Context, req TransferRequest) error
	ParseWebhook(payload []byte, signature string) (*WebhookEvent, error)
}
