// Package money is the reader and creator facing side of the coin ledger:
// buying coins through checkout, fulfilling processor webhooks, managing the
// payout account and reading wallet state. Coin movements themselves are
// delegated to the ledger package.
package money

import (
	"context"
	"errors"
	"fmt"
	"time"

	"coin_ledger/internal/domain"
	"coin_ledger/internal/gateway"
	"coin_ledger/internal/ledger"
	"coin_ledger/internal/store"
	"coin_ledger/internal/utils"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Request errors of the money surface
var (
	ErrNoTipTarget            = errors.New("no profile_id or episode_id is provided")
	ErrUnknownTransactionType = errors.New("unknown transaction type")
)

// Service wires the ledger to the payment gateway and the cache
type Service struct {
	store   store.Store
	ledger  *ledger.Ledger
	gateway gateway.Gateway
	rdb     *redis.Client // nil disables caching and webhook dedup
	now     func() time.Time
	log     *logrus.Entry
}

// NewService returns a money Service. rdb may be nil in tests.
func NewService(st store.Store, l *ledger.Ledger, gw gateway.Gateway, rdb *redis.Client) *Service {
	return &Service{
		store:   st,
		ledger:  l,
		gateway: gw,
		rdb:     rdb,
		now:     func() time.Time { return time.Now().UTC() },
		log:     logrus.WithField("component", "money"),
	}
}

// CreateDepositSession opens a checkout page for coins. The reader comes
// back to currentPath whether they pay or cancel.
func (s *Service) CreateDepositSession(ctx context.Context, profileID uint, coins int64, currentPath string) (*gateway.CheckoutSession, error) {
	profile, err := s.store.GetProfile(ctx, profileID)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.EnsureWallet(ctx, profileID); err != nil {
		return nil, fmt.Errorf("ensure wallet: %w", err)
	}
	session, err := s.gateway.CreateCheckoutSession(ctx, gateway.Payer{ProfileID: profile.ID, Email: profile.Email}, coins, currentPath, currentPath)
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{
		"profile_id": profileID,
		"coins":      coins,
		"session_id": session.ID,
	}).Info("Checkout session created")
	return session, nil
}

// HandleWebhook verifies a processor notification and applies it. An error
// makes the processor retry the delivery later.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	ev, err := s.gateway.ParseWebhook(payload, signature)
	if err != nil {
		return err
	}
	entry := s.log.WithFields(logrus.Fields{"event_id": ev.ID, "event_type": ev.Type})

	switch ev.Type {
	case gateway.EventCheckoutCompleted:
		if ev.Checkout == nil {
			return fmt.Errorf("%w: checkout event without session", gateway.ErrInvalidWebhook)
		}
		if err := s.fulfillCheckout(ctx, ev.Checkout); err != nil {
			entry.WithFields(logrus.Fields{
				"profile_id": ev.Checkout.ProfileID,
				"session_id": ev.Checkout.SessionID,
			}).WithError(err).Error("Checkout fulfillment failed")
			return err
		}
	case gateway.EventAccountDeauthorized:
		if err := s.ledger.RemoveConnectAccount(ctx, ev.Account); err != nil {
			entry.WithField("account_id", ev.Account).WithError(err).Error("Deauthorization failed")
			return err
		}
	default:
		entry.Debug("Unhandled webhook event")
	}
	return nil
}

// fulfillCheckout credits a paid session exactly once per session id. The
// session id is stored on the DEPOSIT row under a unique index; Redis only
// remembers sessions already credited so redeliveries skip the processor call.
func (s *Service) fulfillCheckout(ctx context.Context, co *gateway.CheckoutCompleted) error {
	entry := s.log.WithFields(logrus.Fields{"profile_id": co.ProfileID, "session_id": co.SessionID})
	if !co.Paid() {
		entry.WithField("payment_status", co.PaymentStatus).Info("Checkout not paid yet")
		return nil
	}
	if co.ProfileID == 0 || co.PaymentIntentID == "" || co.SessionID == "" {
		return fmt.Errorf("%w: paid checkout without profile, session or payment intent", gateway.ErrInvalidWebhook)
	}

	key := utils.CheckoutFulfilledKey(co.SessionID)
	var done bool
	if hit, err := utils.GetCache(ctx, s.rdb, key, &done); err == nil && hit {
		entry.Info("Checkout already fulfilled")
		return nil
	}

	nominal, net, err := s.gateway.ResolveSettlement(ctx, co.PaymentIntentID)
	if err != nil {
		return err
	}
	_, err = s.ledger.DepositPayment(ctx, co.ProfileID, nominal/domain.CentsPerCoin, decimal.NewFromInt(net), co.SessionID)
	switch {
	case errors.Is(err, domain.ErrAlreadyCredited):
		entry.Info("Checkout already fulfilled")
	case err != nil:
		return err
	default:
		s.Invalidate(ctx, co.ProfileID)
	}
	if err := utils.SetCache(ctx, s.rdb, key, true, utils.CheckoutFulfilledTTL); err != nil {
		entry.WithError(err).Warn("Checkout marker write failed")
	}
	return nil
}

// SetupPayoutAccount creates the creator's connected account on first use
// and returns an onboarding link for it
func (s *Service) SetupPayoutAccount(ctx context.Context, profileID uint, refreshURL, returnURL string) (string, error) {
	profile, err := s.store.GetProfile(ctx, profileID)
	if err != nil {
		return "", err
	}
	w, err := s.store.EnsureWallet(ctx, profileID)
	if err != nil {
		return "", fmt.Errorf("ensure wallet: %w", err)
	}

	accountID := ""
	if w.HasConnectAccount() {
		accountID = *w.StripeConnectAccount
	} else {
		created, err := s.gateway.CreateConnectAccount(ctx, gateway.Payer{ProfileID: profile.ID, Email: profile.Email})
		if err != nil {
			return "", err
		}
		// A concurrent request may have linked one first; keep that one
		if accountID, err = s.ledger.LinkConnectAccount(ctx, profileID, created); err != nil {
			return "", err
		}
		s.Invalidate(ctx, profileID)
	}
	return s.gateway.CreateOnboardingLink(ctx, accountID, refreshURL, returnURL)
}

// UnlinkPayoutAccount forgets the creator's connected account
func (s *Service) UnlinkPayoutAccount(ctx context.Context, profileID uint) error {
	if err := s.ledger.UnlinkConnectAccount(ctx, profileID); err != nil {
		return err
	}
	s.Invalidate(ctx, profileID)
	return nil
}

// PurchaseEpisode buys access to an episode for profileID
func (s *Service) PurchaseEpisode(ctx context.Context, profileID, episodeID uint) error {
	episode, err := s.store.GetEpisode(ctx, episodeID)
	if err != nil {
		return err
	}
	if _, err := s.ledger.PurchaseEpisode(ctx, profileID, episode); err != nil {
		return err
	}
	s.Invalidate(ctx, profileID, episode.OwnerID)
	return nil
}

// TipTarget names who receives a tip, directly or as an episode's owner
type TipTarget struct {
	ProfileID *uint
	EpisodeID *uint
}

// Tip sends amount coins from profileID to the target
func (s *Service) Tip(ctx context.Context, profileID uint, target TipTarget, amount int64) error {
	var recipientID uint
	switch {
	case target.ProfileID != nil:
		recipientID = *target.ProfileID
	case target.EpisodeID != nil:
		episode, err := s.store.GetEpisode(ctx, *target.EpisodeID)
		if err != nil {
			return err
		}
		recipientID = episode.OwnerID
	default:
		return ErrNoTipTarget
	}
	if _, err := s.ledger.SendTip(ctx, recipientID, profileID, amount); err != nil {
		return err
	}
	s.Invalidate(ctx, profileID, recipientID)
	return nil
}

// Invalidate drops cached wallet state of the given profiles. Failures only
// cost a stale read until the TTL runs out.
func (s *Service) Invalidate(ctx context.Context, profileIDs ...uint) {
	if err := utils.InvalidateWallets(ctx, s.rdb, profileIDs...); err != nil {
		s.log.WithError(err).WithField("profile_ids", profileIDs).Warn("Cache invalidation failed")
	}
}
