package domain

import "errors"

// Ledger validation errors, surfaced to clients as rejected requests
var (
	ErrNegativeAmount        = errors.New("amount must not be negative")
	ErrOverMaximumAmount     = errors.New("amount exceeds the transfer ceiling")
	ErrNotEnoughBalance      = errors.New("not enough balance")
	ErrSelfTransfer          = errors.New("cannot transfer coins to yourself")
	ErrAlreadyPurchased      = errors.New("episode already purchased")
	ErrEpisodeNotPurchasable = errors.New("episode is not eligible for a purchase")
	ErrNonPositivePayout     = errors.New("platform fee must be applied on a positive value")
	ErrBelowMinimumPurchase  = errors.New("coin purchase below minimum")
	ErrAlreadyCredited       = errors.New("payment already credited")
)

// Lookup errors
var (
	ErrProfileNotFound = errors.New("profile not found")
	ErrWalletNotFound  = errors.New("wallet not found")
	ErrEpisodeNotFound = errors.New("episode not found")
)
