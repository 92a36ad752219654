package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Fake is an in-memory Gateway for tests and local runs. Webhooks are plain
// JSON encoded WebhookEvents signed with the literal secret.
type Fake struct {
	mu sync.Mutex

	MinCheckoutCoins int64
	WebhookSecret    string

	accounts     map[string]*AccountStatus
	settlements  map[string][2]int64
	transfers    map[string]TransferRequest // By idempotency key
	transferErrs map[string]error           // By account, one shot
	sessions     []CheckoutSession
	nextID       int
}

var _ Gateway = (*Fake)(nil)

// NewFake returns a Fake with the given checkout minimum and webhook secret
func NewFake(minCheckoutCoins int64, webhookSecret string) *Fake {
	return &Fake{
		MinCheckoutCoins: minCheckoutCoins,
		WebhookSecret:    webhookSecret,
		accounts:         map[string]*AccountStatus{},
		settlements:      map[string][2]int64{},
		transfers:        map[string]TransferRequest{},
		transferErrs:     map[string]error{},
	}
}

func (f *Fake) id(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s_fake_%d", prefix, f.nextID)
}

// SetAccount registers or updates a connected account
func (f *Fake) SetAccount(accountID string, status AccountStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts[accountID] = &status
}

// SetSettlement records what a payment intent charged and netted
func (f *Fake) SetSettlement(paymentIntentID string, nominal, net int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settlements[paymentIntentID] = [2]int64{nominal, net}
}

// FailNextTransfer makes the next transfer to accountID fail with err. Wrap
// ErrTransferDeclined for a definitive refusal.
func (f *Fake) FailNextTransfer(accountID string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transferErrs[accountID] = err
}

// Transfers returns the accepted transfers, at most one per idempotency key
func (f *Fake) Transfers() []TransferRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]TransferRequest, 0, len(f.transfers))
	for _, t := range f.transfers {
		out = append(out, t)
	}
	return out
}

// Sessions returns the checkout sessions created so far
func (f *Fake) Sessions() []CheckoutSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]CheckoutSession(nil), f.sessions...)
}

func (f *Fake) CreateCheckoutSession(_ context.Context, payer Payer, coins int64, successURL, _ string) (*CheckoutSession, error) {
	if coins < f.MinCheckoutCoins {
		return nil, ErrBelowMinimumPurchase
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.id("cs")
	s := CheckoutSession{ID: id, URL: fmt.Sprintf("https://checkout.fake/%s?profile=%d&coins=%d&return=%s", id, payer.ProfileID, coins, successURL)}
	f.sessions = append(f.sessions, s)
	return &s, nil
}

func (f *Fake) ResolveSettlement(_ context.Context, paymentIntentID string) (int64, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.settlements[paymentIntentID]
	if !ok {
		return 0, 0, fmt.Errorf("payment intent %s not found", paymentIntentID)
	}
	return s[0], s[1], nil
}

func (f *Fake) CreateConnectAccount(_ context.Context, payer Payer) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.id("acct")
	f.accounts[id] = &AccountStatus{Email: payer.Email}
	return id, nil
}

func (f *Fake) CreateOnboardingLink(_ context.Context, accountID, _, returnURL string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.accounts[accountID]; !ok {
		return "", fmt.Errorf("account %s not found", accountID)
	}
	return fmt.Sprintf("https://connect.fake/onboard/%s?return=%s", accountID, returnURL), nil
}

func (f *Fake) GetAccountStatus(_ context.Context, accountID string) (*AccountStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[accountID]
	if !ok {
		return nil, fmt.Errorf("account %s not found", accountID)
	}
	c := *a
	return &c, nil
}

func (f *Fake) TransferFunds(_ context.Context, req TransferRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.transfers[req.IdempotencyKey]; ok && req.IdempotencyKey != "" {
		return nil
	}
	if err, ok := f.transferErrs[req.AccountID]; ok {
		delete(f.transferErrs, req.AccountID)
		return err
	}
	if _, ok := f.accounts[req.AccountID]; !ok {
		return fmt.Errorf("%w: account %s not found", ErrTransferDeclined, req.AccountID)
	}
	key := req.IdempotencyKey
	if key == "" {
		key = f.id("tr")
	}
	f.transfers[key] = req
	return nil
}

func (f *Fake) ParseWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	if signature != f.WebhookSecret {
		return nil, ErrInvalidWebhook
	}
	var ev WebhookEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWebhook, err)
	}
	return &ev, nil
}
