package models

import "time"

// WalletAccount - баланс в минимальных единицах валюты.
type WalletAccount struct {
	AccountID string    `json:"account_id"`
	Currency  string    `json:"currency"`
	Balance   int64     `json:"balance"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LedgerOperation identifies why a ledger entry was written.
type LedgerOperation string

const (
	OpEscrow  LedgerOperation = "escrow"
	OpRefund  LedgerOperation = "refund"
	OpPayout  LedgerOperation = "payout"
	OpFee     LedgerOperation = "fee"
	OpDeposit LedgerOperation = "deposit"
)

// LedgerEntry is the immutable record of one applied balance adjustment.
type LedgerEntry struct {
	ID             string    `json:"id"`
	AccountID      string    `json:"account_id"`
	Delta          int64     `json:"delta"`
	IdempotencyKey string    `json:"idempotency_key"`
	BalanceAfter   int64     `json:"balance_after"`
	CreatedAt      time.Time `json:"created_at"`
}
