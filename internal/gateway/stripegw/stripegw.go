// Package stripegw implements gateway.Gateway on Stripe Checkout and Connect
package stripegw

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"coin_ledger/internal/domain"
	"coin_ledger/internal/gateway"

	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

// Client talks to Stripe with its own API handle, no package globals
type Client struct {
	api              *client.API
	webhookSecret    string
	minCheckoutCoins int64
	log              *logrus.Entry
}

var _ gateway.Gateway = (*Client)(nil)

// New returns a Client for the live Stripe API
func New(apiKey, webhookSecret string, minCheckoutCoins int64) *Client {
	return NewWithBackends(apiKey, webhookSecret, minCheckoutCoins, nil)
}

// NewWithBackends lets tests point the client at a local server
func NewWithBackends(apiKey, webhookSecret string, minCheckoutCoins int64, backends *stripe.Backends) *Client {
	return &Client{
		api:              client.New(apiKey, backends),
		webhookSecret:    webhookSecret,
		minCheckoutCoins: minCheckoutCoins,
		log:              logrus.WithField("component", "stripe"),
	}
}

func (c *Client) CreateCheckoutSession(ctx context.Context, payer gateway.Payer, coins int64, successURL, cancelURL string) (*gateway.CheckoutSession, error) {
	if coins < c.minCheckoutCoins {
		return nil, gateway.ErrBelowMinimumPurchase
	}
	params := &stripe.CheckoutSessionParams{
		ClientReferenceID: stripe.String(strconv.FormatUint(uint64(payer.ProfileID), 10)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(string(stripe.CurrencyUSD)),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name:        stripe.String(fmt.Sprintf("%d coins", coins)),
					Description: stripe.String(fmt.Sprintf("%d coins.", coins)),
				},
				TaxBehavior: stripe.String("exclusive"),
				UnitAmount:  stripe.Int64(coins * domain.CentsPerCoin),
			},
			Quantity: stripe.Int64(1),
		}},
		Mode:         stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:   stripe.String(successURL),
		CancelURL:    stripe.String(cancelURL),
		AutomaticTax: &stripe.CheckoutSessionAutomaticTaxParams{Enabled: stripe.Bool(true)},
	}
	if payer.Email != "" {
		params.CustomerEmail = stripe.String(payer.Email)
	}
	params.AddMetadata("coins", strconv.FormatInt(coins, 10))
	params.Context = ctx

	s, err := c.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	return &gateway.CheckoutSession{ID: s.ID, URL: s.URL}, nil
}

func (c *Client) ResolveSettlement(ctx context.Context, paymentIntentID string) (int64, int64, error) {
	params := &stripe.PaymentIntentParams{}
	params.AddExpand("latest_charge.balance_transaction")
	params.Context = ctx

	pi, err := c.api.PaymentIntents.Get(paymentIntentID, params)
	if err != nil {
		return 0, 0, fmt.Errorf("retrieve payment intent %s: %w", paymentIntentID, err)
	}
	if pi.LatestCharge == nil || pi.LatestCharge.BalanceTransaction == nil {
		return 0, 0, fmt.Errorf("payment intent %s has no settled charge", paymentIntentID)
	}
	bt := pi.LatestCharge.BalanceTransaction
	return bt.Amount, bt.Net, nil
}

func (c *Client) CreateConnectAccount(ctx context.Context, payer gateway.Payer) (string, error) {
	params := &stripe.AccountParams{Type: stripe.String(string(stripe.AccountTypeStandard))}
	if payer.Email != "" {
		params.Email = stripe.String(payer.Email)
	}
	params.AddMetadata("profile_id", strconv.FormatUint(uint64(payer.ProfileID), 10))
	params.Context = ctx

	acct, err := c.api.Accounts.New(params)
	if err != nil {
		return "", fmt.Errorf("create connect account: %w", err)
	}
	return acct.ID, nil
}

func (c *Client) CreateOnboardingLink(ctx context.Context, accountID, refreshURL, returnURL string) (string, error) {
	params := &stripe.AccountLinkParams{
		Account:    stripe.String(accountID),
		RefreshURL: stripe.String(refreshURL),
		ReturnURL:  stripe.String(returnURL),
		Type:       stripe.String("account_onboarding"),
	}
	params.Context = ctx

	link, err := c.api.AccountLinks.New(params)
	if err != nil {
		return "", fmt.Errorf("create onboarding link: %w", err)
	}
	return link.URL, nil
}

func (c *Client) GetAccountStatus(ctx context.Context, accountID string) (*gateway.AccountStatus, error) {
	params := &stripe.AccountParams{}
	params.Context = ctx

	acct, err := c.api.Accounts.GetByID(accountID, params)
	if err != nil {
		return nil, fmt.Errorf("retrieve account %s: %w", accountID, err)
	}
	return &gateway.AccountStatus{ChargesEnabled: acct.ChargesEnabled, Email: acct.Email}, nil
}

func (c *Client) TransferFunds(ctx context.Context, req gateway.TransferRequest) error {
	params := &stripe.TransferParams{
		Amount:      stripe.Int64(req.AmountCents),
		Currency:    stripe.String(string(stripe.CurrencyUSD)),
		Destination: stripe.String(req.AccountID),
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	params.Context = ctx

	tr, err := c.api.Transfers.New(params)
	if err != nil {
		if declined(err) {
			return fmt.Errorf("%w: transfer to %s: %v", gateway.ErrTransferDeclined, req.AccountID, err)
		}
		return fmt.Errorf("transfer to %s: %w", req.AccountID, err)
	}
	c.log.WithFields(logrus.Fields{
		"transfer_id": tr.ID,
		"account_id":  req.AccountID,
		"amount":      req.AmountCents,
	}).Info("Stripe transfer created")
	return nil
}

// declined reports whether Stripe answered with a client error that a retry
// under the same idempotency key would not change
func declined(err error) bool {
	var se *stripe.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.HTTPStatusCode {
	case http.StatusConflict, http.StatusTooManyRequests:
		return false
	}
	return se.HTTPStatusCode >= 400 && se.HTTPStatusCode < 500
}

func (c *Client) ParseWebhook(payload []byte, signature string) (*gateway.WebhookEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, c.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", gateway.ErrInvalidWebhook, err)
	}

	out := &gateway.WebhookEvent{ID: event.ID, Type: string(event.Type), Account: event.Account}
	if out.Type != gateway.EventCheckoutCompleted {
		return out, nil
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return nil, fmt.Errorf("%w: decode checkout session: %v", gateway.ErrInvalidWebhook, err)
	}
	co := &gateway.CheckoutCompleted{
		SessionID:     sess.ID,
		PaymentStatus: string(sess.PaymentStatus),
	}
	if sess.PaymentIntent != nil {
		co.PaymentIntentID = sess.PaymentIntent.ID
	}
	if sess.ClientReferenceID != "" {
		id, err := strconv.ParseUint(sess.ClientReferenceID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: client reference %q", gateway.ErrInvalidWebhook, sess.ClientReferenceID)
		}
		co.ProfileID = uint(id)
	}
	out.Checkout = co
	return out, nil
}
