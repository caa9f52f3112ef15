package repositories

import (
	"context"
	"errors"
	"sync"

	"github.com/Dosada05/wager-match/models"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

type memoryWalletLedger struct {
	clock clockwork.Clock

	mu       sync.Mutex
	accounts map[string]*models.WalletAccount
	entries  map[string]*models.LedgerEntry
}

func NewMemoryWalletLedger(clock clockwork.Clock) WalletLedger {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &memoryWalletLedger{
		clock:    clock,
		accounts: make(map[string]*models.WalletAccount),
		entries:  make(map[string]*models.LedgerEntry),
	}
}

func (l *memoryWalletLedger) CreateAccount(ctx context.Context, accountID, currency string) (*models.WalletAccount, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.accounts[accountID]; ok {
		return nil, ErrWalletConflict
	}
	acc := &models.WalletAccount{AccountID: accountID, Currency: currency, UpdatedAt: l.clock.Now()}
	l.accounts[accountID] = acc
	copied := *acc
	return &copied, nil
}

func (l *memoryWalletLedger) GetAccount(ctx context.Context, accountID string) (*models.WalletAccount, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	acc, ok := l.accounts[accountID]
	if !ok {
		return nil, ErrWalletNotFound
	}
	copied := *acc
	return &copied, nil
}

func (l *memoryWalletLedger) GetBalance(ctx context.Context, accountID string) (int64, error) {
	acc, err := l.GetAccount(ctx, accountID)
	if err != nil {
		return 0, err
	}
	return acc.Balance, nil
}

func (l *memoryWalletLedger) AdjustBalance(ctx context.Context, accountID string, delta int64, idempotencyKey string) (*models.LedgerEntry, bool, error) {
	if idempotencyKey == "" {
		return nil, false, errors.New("idempotency key is required")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if existing, ok := l.entries[idempotencyKey]; ok {
		copied := *existing
		return &copied, false, sameAdjustment(existing, accountID, delta)
	}

	acc, ok := l.accounts[accountID]
	if !ok {
		return nil, false, ErrWalletNotFound
	}
	if acc.Balance+delta < 0 {
		return nil, false, ErrInsufficientBalance
	}

	now := l.clock.Now()
	acc.Balance += delta
	acc.UpdatedAt = now

	entry := &models.LedgerEntry{
		ID:             uuid.NewString(),
		AccountID:      accountID,
		Delta:          delta,
		IdempotencyKey: idempotencyKey,
		BalanceAfter:   acc.Balance,
		CreatedAt:      now,
	}
	l.entries[idempotencyKey] = entry
	copied := *entry
	return &copied, true, nil
}

func (l *memoryWalletLedger) EntryByKey(ctx context.Context, idempotencyKey string) (*models.LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[idempotencyKey]
	if !ok {
		return nil, ErrLedgerEntryNotFound
	}
	copied := *entry
	return &copied, nil
}
