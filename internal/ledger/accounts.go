package ledger

import (
	"context"
	"errors"
	"fmt"

	"coin_ledger/internal/domain"
	"coin_ledger/internal/store"

	"github.com/sirupsen/logrus"
)

// LinkConnectAccount stores the payout account of owner unless one is
// already linked. It returns the account that ends up stored.
func (l *Ledger) LinkConnectAccount(ctx context.Context, ownerID uint, accountID string) (string, error) {
	stored := accountID
	err := l.store.InTx(ctx, func(tx store.Tx) error {
		wallets, err := tx.LockWallets(ownerID)
		if err != nil {
			return err
		}
		w := wallets[ownerID]
		if w.HasConnectAccount() {
			stored = *w.StripeConnectAccount
			return nil
		}
		w.StripeConnectAccount = &accountID
		return tx.SaveWallets(w)
	})
	if err != nil {
		return "", fmt.Errorf("link connect account: %w", err)
	}
	l.log.WithFields(logrus.Fields{"owner_id": ownerID, "account_id": stored}).Info("Connect account linked")
	return stored, nil
}

// UnlinkConnectAccount clears the payout account of owner
func (l *Ledger) UnlinkConnectAccount(ctx context.Context, ownerID uint) error {
	err := l.store.InTx(ctx, func(tx store.Tx) error {
		wallets, err := tx.LockWallets(ownerID)
		if err != nil {
			return err
		}
		w := wallets[ownerID]
		if !w.HasConnectAccount() {
			return nil
		}
		w.StripeConnectAccount = nil
		return tx.SaveWallets(w)
	})
	if err != nil {
		return fmt.Errorf("unlink connect account: %w", err)
	}
	l.log.WithField("owner_id", ownerID).Info("Connect account unlinked")
	return nil
}

// RemoveConnectAccount clears accountID from whichever wallet stores it. The
// processor sends this when a creator revokes the platform's access; an
// unknown account is not an error.
func (l *Ledger) RemoveConnectAccount(ctx context.Context, accountID string) error {
	var ownerID uint
	err := l.store.InTx(ctx, func(tx store.Tx) error {
		w, err := tx.LockWalletByAccount(accountID)
		if err != nil {
			return err
		}
		ownerID = w.OwnerID
		w.StripeConnectAccount = nil
		return tx.SaveWallets(w)
	})
	if errors.Is(err, domain.ErrWalletNotFound) {
		l.log.WithField("account_id", accountID).Warn("Deauthorized account not linked to any wallet")
		return nil
	}
	if err != nil {
		return fmt.Errorf("remove connect account: %w", err)
	}
	l.log.WithFields(logrus.Fields{"owner_id": ownerID, "account_id": accountID}).Info("Connect account removed")
	return nil
}
