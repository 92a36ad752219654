// Package ledger is the transfer engine: every coin movement between wallets
// goes through here, inside one locked store transaction.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"coin_ledger/internal/config"
	"coin_ledger/internal/domain"
	"coin_ledger/internal/metrics"
	"coin_ledger/internal/store"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Ledger moves coins and their USD cost basis between wallets
type Ledger struct {
	store store.Store
	cfg   config.Ledger
	log   *logrus.Entry
}

// New returns a Ledger over st
func New(st store.Store, cfg config.Ledger) *Ledger {
	return &Ledger{
		store: st,
		cfg:   cfg,
		log:   logrus.WithField("component", "ledger"),
	}
}

// Deposit credits coins bought through the payment processor. usd is the net
// amount the platform received, in cents. Callers dedupe fulfillment.
func (l *Ledger) Deposit(ctx context.Context, ownerID uint, coins int64, usd decimal.Decimal) (*domain.Transaction, error) {
	return l.deposit(ctx, ownerID, coins, usd, nil)
}

// DepositPayment is Deposit keyed by the processor's payment reference. The
// record and the credit commit together, so a reference is credited at most
// once; a repeat returns domain.ErrAlreadyCredited and changes nothing.
func (l *Ledger) DepositPayment(ctx context.Context, ownerID uint, coins int64, usd decimal.Decimal, paymentRef string) (*domain.Transaction, error) {
	if paymentRef == "" {
		return nil, errors.New("deposit: empty payment reference")
	}
	return l.deposit(ctx, ownerID, coins, usd, &paymentRef)
}

func (l *Ledger) deposit(ctx context.Context, ownerID uint, coins int64, usd decimal.Decimal, ref *string) (*domain.Transaction, error) {
	if coins < 0 || usd.IsNegative() {
		return nil, domain.ErrNegativeAmount
	}

	var rec *domain.Transaction
	err := l.store.InTx(ctx, func(tx store.Tx) error {
		wallets, err := tx.LockWallets(ownerID)
		if err != nil {
			return err
		}
		w := wallets[ownerID]
		w.Balance += coins
		w.USDValue = w.USDValue.Add(usd)
		if err := tx.SaveWallets(w); err != nil {
			return err
		}
		rec = domain.NewTransaction(domain.TransactionDeposit, ownerID, ownerID, coins, usd)
		rec.PaymentRef = ref
		return tx.CreateTransaction(rec)
	})
	metrics.ObserveOperation("deposit", coins, err)
	fields := logrus.Fields{
		"owner_id": ownerID,
		"coins":    coins,
		"usd":      usd.String(),
	}
	if ref != nil {
		fields["payment_ref"] = *ref
	}
	if errors.Is(err, domain.ErrAlreadyCredited) {
		l.log.WithFields(fields).Info("Payment already credited")
		return nil, err
	}
	if err != nil {
		l.log.WithFields(fields).WithError(err).Error("Deposit failed")
		return nil, fmt.Errorf("deposit: %w", err)
	}

	l.log.WithFields(fields).Info("Deposit successful")
	return rec, nil
}

// Transfer moves amount coins from sender's spendable balance into
// recipient's monthly profit. A zero amount does nothing and returns a nil
// transaction.
func (l *Ledger) Transfer(ctx context.Context, recipientID, senderID uint, amount int64) (*domain.Transaction, error) {
	return l.move(ctx, "transfer", recipientID, senderID, amount)
}

// SendTip is a Transfer initiated by the reader
func (l *Ledger) SendTip(ctx context.Context, recipientID, senderID uint, amount int64) (*domain.Transaction, error) {
	return l.move(ctx, "tip", recipientID, senderID, amount)
}

func (l *Ledger) move(ctx context.Context, op string, recipientID, senderID uint, amount int64) (*domain.Transaction, error) {
	if err := l.validate(recipientID, senderID, amount); err != nil {
		l.logRejected(op, recipientID, senderID, amount, err)
		metrics.ObserveOperation(op, amount, err)
		return nil, err
	}
	if amount == 0 {
		return nil, nil
	}

	var rec *domain.Transaction
	err := l.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		rec, err = transfer(tx, recipientID, senderID, amount)
		return err
	})
	metrics.ObserveOperation(op, amount, err)
	if err != nil {
		l.logRejected(op, recipientID, senderID, amount, err)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	l.logMoved(op, rec)
	return rec, nil
}

// PurchaseEpisode pays the episode's owner its price and grants buyer access.
// Both happen or neither does.
func (l *Ledger) PurchaseEpisode(ctx context.Context, buyerID uint, episode *domain.Episode) (*domain.EpisodePurchase, error) {
	if err := episode.CheckPurchasable(); err != nil {
		return nil, err
	}
	if err := l.validate(episode.OwnerID, buyerID, episode.Price); err != nil {
		l.logRejected("purchase_episode", episode.OwnerID, buyerID, episode.Price, err)
		metrics.ObserveOperation("purchase_episode", episode.Price, err)
		return nil, err
	}

	purchase := &domain.EpisodePurchase{EpisodeID: episode.ID, ProfileID: buyerID}
	var rec *domain.Transaction
	err := l.store.InTx(ctx, func(tx store.Tx) error {
		bought, err := tx.HasPurchased(buyerID, episode.ID)
		if err != nil {
			return err
		}
		if bought {
			return domain.ErrAlreadyPurchased
		}
		if episode.Price > 0 {
			if rec, err = transfer(tx, episode.OwnerID, buyerID, episode.Price); err != nil {
				return err
			}
		}
		return tx.CreateEpisodePurchase(purchase)
	})
	metrics.ObserveOperation("purchase_episode", episode.Price, err)
	if err != nil {
		l.log.WithFields(logrus.Fields{
			"buyer_id":   buyerID,
			"episode_id": episode.ID,
			"price":      episode.Price,
		}).WithError(err).Warn("Episode purchase rejected")
		return nil, fmt.Errorf("purchase episode: %w", err)
	}
	if rec != nil {
		l.logMoved("purchase_episode", rec)
	}
	return purchase, nil
}

// validate runs the checks that happen before any wallet is touched
func (l *Ledger) validate(recipientID, senderID uint, amount int64) error {
	if amount < 0 {
		return domain.ErrNegativeAmount
	}
	if amount > l.cfg.MaxTransferCoins {
		return domain.ErrOverMaximumAmount
	}
	if recipientID == senderID {
		return domain.ErrSelfTransfer
	}
	return nil
}

// transfer is the locked primitive shared by tips and purchases. amount is
// validated and positive.
func transfer(tx store.Tx, recipientID, senderID uint, amount int64) (*domain.Transaction, error) {
	wallets, err := tx.LockWallets(recipientID, senderID)
	if err != nil {
		return nil, err
	}
	sender, recipient := wallets[senderID], wallets[recipientID]
	if sender.Balance < amount {
		return nil, domain.ErrNotEnoughBalance
	}

	usd := domain.ProportionalUSD(sender.USDValue, sender.Balance, amount)

	sender.Balance -= amount
	sender.USDValue = sender.USDValue.Sub(usd)
	recipient.MonthlyProfitBalance += amount
	recipient.MonthlyProfitUSDValue = recipient.MonthlyProfitUSDValue.Add(usd)

	if err := tx.SaveWallets(sender, recipient); err != nil {
		return nil, err
	}
	rec := domain.NewTransaction(domain.TransactionPurchase, senderID, recipientID, amount, usd)
	if err := tx.CreateTransaction(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (l *Ledger) logMoved(op string, rec *domain.Transaction) {
	l.log.WithFields(logrus.Fields{
		"operation":    op,
		"sender_id":    *rec.SenderID,
		"recipient_id": *rec.RecipientID,
		"coins":        rec.CoinAmount,
		"usd":          rec.USDValue.String(),
	}).Info("Coins moved")
}

func (l *Ledger) logRejected(op string, recipientID, senderID uint, amount int64, err error) {
	entry := l.log.WithFields(logrus.Fields{
		"operation":    op,
		"sender_id":    senderID,
		"recipient_id": recipientID,
		"amount":       amount,
	})
	switch {
	case errors.Is(err, domain.ErrOverMaximumAmount):
		entry.Warn("Suspicious transfer amount")
	case errors.Is(err, domain.ErrNotEnoughBalance),
		errors.Is(err, domain.ErrNegativeAmount),
		errors.Is(err, domain.ErrSelfTransfer):
		entry.WithError(err).Debug("Transfer rejected")
	default:
		entry.WithError(err).Error("Transfer failed")
	}
}
