// Package memstore is an in-memory store.Store. Transactions run one at a time
// against a private copy of the state that replaces the shared state only when
// the callback succeeds, so a failed unit leaves nothing behind.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"coin_ledger/internal/domain"
	"coin_ledger/internal/store"

	"github.com/shopspring/decimal"
)

type state struct {
	profiles     map[uint]*domain.Profile
	wallets      map[uint]*domain.Wallet // By owner
	episodes     map[uint]*domain.Episode
	transactions []*domain.Transaction
	purchases    []*domain.EpisodePurchase
	attempts     map[string]*domain.PayoutAttempt

	nextProfile, nextWallet, nextEpisode, nextTransaction, nextPurchase uint
}

func newState() *state {
	return &state{
		profiles: make(map[uint]*domain.Profile),
		wallets:  make(map[uint]*domain.Wallet),
		episodes: make(map[uint]*domain.Episode),
		attempts: make(map[string]*domain.PayoutAttempt),
	}
}

func (s *state) clone() *state {
	c := *s
	c.profiles = make(map[uint]*domain.Profile, len(s.profiles))
	for k, v := range s.profiles {
		p := *v
		c.profiles[k] = &p
	}
	c.wallets = make(map[uint]*domain.Wallet, len(s.wallets))
	for k, v := range s.wallets {
		c.wallets[k] = v.Clone()
	}
	c.episodes = make(map[uint]*domain.Episode, len(s.episodes))
	for k, v := range s.episodes {
		e := *v
		c.episodes[k] = &e
	}
	// Ledger rows are append-only, sharing them is safe
	c.transactions = append([]*domain.Transaction(nil), s.transactions...)
	c.purchases = append([]*domain.EpisodePurchase(nil), s.purchases...)
	c.attempts = make(map[string]*domain.PayoutAttempt, len(s.attempts))
	for k, v := range s.attempts {
		a := *v
		c.attempts[k] = &a
	}
	return &c
}

// Store is a store.Store kept in process memory
type Store struct {
	mu       sync.Mutex
	st       *state
	now      func() time.Time
	failures map[string]error
}

var _ store.Store = (*Store)(nil)

// New returns an empty store
func New() *Store {
	return &Store{st: newState(), now: func() time.Time { return time.Now().UTC() }, failures: map[string]error{}}
}

// SetClock overrides the time source used for CreatedAt stamps
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// FailNext makes the next call of the named Tx method return err. It lets
// tests break a unit of work halfway through.
func (s *Store) FailNext(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method] = err
}

// AddEpisode seeds an episode
func (s *Store) AddEpisode(e *domain.Episode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == 0 {
		s.st.nextEpisode++
		e.ID = s.st.nextEpisode
	}
	c := *e
	s.st.episodes[e.ID] = &c
}

// SetPayoutStatus changes the fee tier of a profile
func (s *Store) SetPayoutStatus(profileID uint, status domain.PayoutStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.st.profiles[profileID]
	if !ok {
		return domain.ErrProfileNotFound
	}
	p.PayoutStatus = status
	return nil
}

// PutWallet overwrites the wallet of an existing profile
func (s *Store) PutWallet(w *domain.Wallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.profiles[w.OwnerID]; !ok {
		return domain.ErrProfileNotFound
	}
	c := w.Clone()
	if existing, ok := s.st.wallets[w.OwnerID]; ok {
		c.ID = existing.ID
	} else {
		s.st.nextWallet++
		c.ID = s.st.nextWallet
	}
	s.st.wallets[w.OwnerID] = c
	return nil
}

// Purchases returns every episode purchase, oldest first
func (s *Store) Purchases() []domain.EpisodePurchase {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.EpisodePurchase, 0, len(s.st.purchases))
	for _, p := range s.st.purchases {
		out = append(out, *p)
	}
	return out
}

// PayoutAttempts returns every attempt regardless of status
func (s *Store) PayoutAttempts() []domain.PayoutAttempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.PayoutAttempt, 0, len(s.st.attempts))
	for _, a := range s.st.attempts {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *Store) InTx(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(&memTx{s: s, st: work}); err != nil {
		return err
	}
	s.st = work
	return nil
}

func (s *Store) CreateProfile(_ context.Context, p *domain.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.st.profiles {
		if existing.Username == p.Username {
			return fmt.Errorf("profile %q already exists", p.Username)
		}
	}
	if p.ID == 0 {
		s.st.nextProfile++
		p.ID = s.st.nextProfile
	} else if _, ok := s.st.profiles[p.ID]; ok {
		return fmt.Errorf("profile %d already exists", p.ID)
	} else if p.ID > s.st.nextProfile {
		s.st.nextProfile = p.ID
	}
	if p.Role == "" {
		p.Role = domain.RoleUser
	}
	if p.PayoutStatus == "" {
		p.PayoutStatus = domain.PayoutStatusRegular
	}
	c := *p
	c.Wallet = nil
	s.st.profiles[p.ID] = &c
	return nil
}

func (s *Store) GetProfile(_ context.Context, id uint) (*domain.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.st.profiles[id]
	if !ok {
		return nil, domain.ErrProfileNotFound
	}
	c := *p
	return &c, nil
}

func (s *Store) GetProfileByUsername(_ context.Context, username string) (*domain.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.st.profiles {
		if p.Username == username {
			c := *p
			return &c, nil
		}
	}
	return nil, domain.ErrProfileNotFound
}

func (s *Store) GetEpisode(_ context.Context, id uint) (*domain.Episode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.st.episodes[id]
	if !ok {
		return nil, domain.ErrEpisodeNotFound
	}
	c := *e
	return &c, nil
}

func (s *Store) GetWallet(_ context.Context, ownerID uint) (*domain.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.st.wallets[ownerID]
	if !ok {
		return nil, domain.ErrWalletNotFound
	}
	return w.Clone(), nil
}

func (s *Store) EnsureWallet(ctx context.Context, ownerID uint) (*domain.Wallet, error) {
	var out *domain.Wallet
	err := s.InTx(ctx, func(tx store.Tx) error {
		ws, err := tx.LockWallets(ownerID)
		if err != nil {
			return err
		}
		out = ws[ownerID].Clone()
		return nil
	})
	return out, err
}

func (s *Store) ListTransactions(_ context.Context, f store.TransactionFilter) ([]domain.Transaction, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []domain.Transaction
	for i := len(s.st.transactions) - 1; i >= 0; i-- { // Newest first
		t := s.st.transactions[i]
		if f.ProfileID != 0 && !involves(t, f.ProfileID) {
			continue
		}
		if f.Type != "" && t.Type != f.Type {
			continue
		}
		if !f.Since.IsZero() && t.CreatedAt.Before(f.Since) {
			continue
		}
		if !f.Until.IsZero() && t.CreatedAt.After(f.Until) {
			continue
		}
		c := *t
		c.Sender = s.profileRef(t.SenderID)
		c.Recipient = s.profileRef(t.RecipientID)
		matched = append(matched, c)
	}
	total := int64(len(matched))
	if f.Offset >= len(matched) {
		return []domain.Transaction{}, total, nil
	}
	matched = matched[f.Offset:]
	if f.Limit > 0 && f.Limit < len(matched) {
		matched = matched[:f.Limit]
	}
	return matched, total, nil
}

// profileRef mirrors the relation preload of the SQL store
func (s *Store) profileRef(id *uint) *domain.Profile {
	if id == nil {
		return nil
	}
	p, ok := s.st.profiles[*id]
	if !ok {
		return nil
	}
	c := *p
	return &c
}

func involves(t *domain.Transaction, profileID uint) bool {
	return (t.SenderID != nil && *t.SenderID == profileID) || (t.RecipientID != nil && *t.RecipientID == profileID)
}

func (s *Store) RecentIncome(_ context.Context, recipientID uint, since time.Time) (store.Income, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := store.Income{USDValue: decimal.Zero}
	for _, t := range s.st.transactions {
		if t.Type != domain.TransactionPurchase || t.RecipientID == nil || *t.RecipientID != recipientID {
			continue
		}
		if t.CreatedAt.Before(since) {
			continue
		}
		out.Coins += t.CoinAmount
		out.USDValue = out.USDValue.Add(t.USDValue)
	}
	return out, nil
}

func (s *Store) PayoutCandidates(_ context.Context, minCoins int64) ([]domain.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Wallet
	for _, w := range s.st.wallets {
		if w.HasConnectAccount() && w.PayoutBalance > 0 && w.PayoutBalance >= minCoins {
			out = append(out, *w.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OwnerID < out[j].OwnerID })
	return out, nil
}

func (s *Store) PendingPayoutAttempts(_ context.Context) ([]domain.PayoutAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.PayoutAttempt
	for _, a := range s.st.attempts {
		if a.Status == domain.PayoutPending {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) LedgerTotals(_ context.Context) (*store.Totals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &store.Totals{
		WalletUSD:   decimal.Zero,
		PendingUSD:  decimal.Zero,
		DepositUSD:  decimal.Zero,
		WithdrawUSD: decimal.Zero,
	}
	for _, w := range s.st.wallets {
		t.WalletCoins += w.TotalCoins()
		t.WalletUSD = t.WalletUSD.Add(w.USDValue).Add(w.MonthlyProfitUSDValue).Add(w.PayoutUSDValue)
	}
	for _, a := range s.st.attempts {
		if a.Status == domain.PayoutPending {
			t.PendingCoins += a.CoinAmount
			t.PendingUSD = t.PendingUSD.Add(a.USDValue)
		}
	}
	for _, tr := range s.st.transactions {
		switch tr.Type {
		case domain.TransactionDeposit:
			t.DepositCoins += tr.CoinAmount
			t.DepositUSD = t.DepositUSD.Add(tr.USDValue)
		case domain.TransactionWithdraw:
			t.WithdrawCoins += tr.CoinAmount
			t.WithdrawUSD = t.WithdrawUSD.Add(tr.USDValue)
		}
	}
	return t, nil
}

type memTx struct {
	s  *Store
	st *state
}

// fail pops an injected failure. Callers hold s.mu through InTx.
func (t *memTx) fail(method string) error {
	err, ok := t.s.failures[method]
	if !ok {
		return nil
	}
	delete(t.s.failures, method)
	return err
}

func (t *memTx) LockWallets(ownerIDs ...uint) (map[uint]*domain.Wallet, error) {
	if err := t.fail("LockWallets"); err != nil {
		return nil, err
	}
	out := make(map[uint]*domain.Wallet, len(ownerIDs))
	for _, id := range store.SortedOwners(ownerIDs) {
		if _, ok := t.st.profiles[id]; !ok {
			return nil, domain.ErrProfileNotFound
		}
		w, ok := t.st.wallets[id]
		if !ok {
			t.st.nextWallet++
			w = domain.NewWallet(id)
			w.ID = t.st.nextWallet
			t.st.wallets[id] = w
		}
		out[id] = w.Clone()
	}
	return out, nil
}

func (t *memTx) LockWalletByAccount(accountID string) (*domain.Wallet, error) {
	for _, w := range t.st.wallets {
		if w.StripeConnectAccount != nil && *w.StripeConnectAccount == accountID {
			return w.Clone(), nil
		}
	}
	return nil, domain.ErrWalletNotFound
}

func (t *memTx) LockProfitableWallets() ([]*domain.Wallet, error) {
	var out []*domain.Wallet
	for _, w := range t.st.wallets {
		if w.MonthlyProfitBalance > 0 {
			out = append(out, w.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OwnerID < out[j].OwnerID })
	return out, nil
}

func (t *memTx) SaveWallets(wallets ...*domain.Wallet) error {
	if err := t.fail("SaveWallets"); err != nil {
		return err
	}
	for _, w := range wallets {
		if _, ok := t.st.wallets[w.OwnerID]; !ok {
			return domain.ErrWalletNotFound
		}
		t.st.wallets[w.OwnerID] = w.Clone()
	}
	return nil
}

func (t *memTx) CreateTransaction(tr *domain.Transaction) error {
	if err := t.fail("CreateTransaction"); err != nil {
		return err
	}
	if tr.PaymentRef != nil {
		for _, existing := range t.st.transactions {
			if existing.PaymentRef != nil && *existing.PaymentRef == *tr.PaymentRef {
				return domain.ErrAlreadyCredited
			}
		}
	}
	t.st.nextTransaction++
	tr.ID = t.st.nextTransaction
	if tr.CreatedAt.IsZero() {
		tr.CreatedAt = t.s.now()
	}
	c := *tr
	t.st.transactions = append(t.st.transactions, &c)
	return nil
}

func (t *memTx) HasPurchased(profileID, episodeID uint) (bool, error) {
	for _, p := range t.st.purchases {
		if p.ProfileID == profileID && p.EpisodeID == episodeID {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) CreateEpisodePurchase(p *domain.EpisodePurchase) error {
	if err := t.fail("CreateEpisodePurchase"); err != nil {
		return err
	}
	if ok, _ := t.HasPurchased(p.ProfileID, p.EpisodeID); ok {
		return domain.ErrAlreadyPurchased
	}
	t.st.nextPurchase++
	p.ID = t.st.nextPurchase
	if p.CreatedAt.IsZero() {
		p.CreatedAt = t.s.now()
	}
	c := *p
	t.st.purchases = append(t.st.purchases, &c)
	return nil
}

func (t *memTx) CreatePayoutAttempt(a *domain.PayoutAttempt) error {
	if err := t.fail("CreatePayoutAttempt"); err != nil {
		return err
	}
	if _, ok := t.st.attempts[a.ID]; ok {
		return fmt.Errorf("payout attempt %s already exists", a.ID)
	}
	now := t.s.now()
	a.CreatedAt, a.UpdatedAt = now, now
	c := *a
	t.st.attempts[a.ID] = &c
	return nil
}

func (t *memTx) LockPayoutAttempt(id string) (*domain.PayoutAttempt, error) {
	a, ok := t.st.attempts[id]
	if !ok {
		return nil, fmt.Errorf("payout attempt %s not found", id)
	}
	c := *a
	return &c, nil
}

func (t *memTx) SavePayoutAttempt(a *domain.PayoutAttempt) error {
	if err := t.fail("SavePayoutAttempt"); err != nil {
		return err
	}
	if _, ok := t.st.attempts[a.ID]; !ok {
		return fmt.Errorf("payout attempt %s not found", a.ID)
	}
	a.UpdatedAt = t.s.now()
	c := *a
	t.st.attempts[a.ID] = &c
	return nil
}
