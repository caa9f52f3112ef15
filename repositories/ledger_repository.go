package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Dosada05/wager-match/models"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

var (
	ErrWalletNotFound       = errors.New("wallet account not found")
	ErrWalletConflict       = errors.New("wallet account already exists")
	ErrInsufficientBalance  = errors.New("insufficient wallet balance")
	ErrLedgerEntryNotFound  = errors.New("ledger entry not found")
	ErrIdempotencyKeyReused = errors.New("idempotency key reused with different parameters")
)

// WalletLedger is the per-account balance store. AdjustBalance is atomic and keyed:
// replaying the same idempotency key returns the original entry and applied=false.
type WalletLedger interface {
	CreateAccount(ctx context.Context, accountID, currency string) (*models.WalletAccount, error)
	GetAccount(ctx context.Context, accountID string) (*models.WalletAccount, error)
	GetBalance(ctx context.Context, accountID string) (int64, error)
	AdjustBalance(ctx context.Context, accountID string, delta int64, idempotencyKey string) (entry *models.LedgerEntry, applied bool, err error)
	EntryByKey(ctx context.Context, idempotencyKey string) (*models.LedgerEntry, error)
}

type postgresWalletLedger struct {
	db *sql.DB
}

func NewPostgresWalletLedger(db *sql.DB) WalletLedger {
	return &postgresWalletLedger{db: db}
}

func (l *postgresWalletLedger) CreateAccount(ctx context.Context, accountID, currency string) (*models.WalletAccount, error) {
	query := `
		INSERT INTO wallets (account_id, currency, balance, updated_at)
		VALUES ($1, $2, 0, now())
		RETURNING account_id, currency, balance, updated_at`

	acc := &models.WalletAccount{}
	err := l.db.QueryRowContext(ctx, query, accountID, currency).
		Scan(&acc.AccountID, &acc.Currency, &acc.Balance, &acc.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, ErrWalletConflict
		}
		return nil, fmt.Errorf("failed to create wallet %s: %w", accountID, err)
	}
	return acc, nil
}

func (l *postgresWalletLedger) GetAccount(ctx context.Context, accountID string) (*models.WalletAccount, error) {
	query := `SELECT account_id, currency, balance, updated_at FROM wallets WHERE account_id = $1`

	acc := &models.WalletAccount{}
	err := l.db.QueryRowContext(ctx, query, accountID).
		Scan(&acc.AccountID, &acc.Currency, &acc.Balance, &acc.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to get wallet %s: %w", accountID, err)
	}
	return acc, nil
}

func (l *postgresWalletLedger) GetBalance(ctx context.Context, accountID string) (int64, error) {
	acc, err := l.GetAccount(ctx, accountID)
	if err != nil {
		return 0, err
	}
	return acc.Balance, nil
}

func (l *postgresWalletLedger) AdjustBalance(ctx context.Context, accountID string, delta int64, idempotencyKey string) (*models.LedgerEntry, bool, error) {
	if idempotencyKey == "" {
		return nil, false, errors.New("idempotency key is required")
	}

	existing, err := entryByKey(ctx, l.db, idempotencyKey)
	if err == nil {
		return existing, false, sameAdjustment(existing, accountID, delta)
	}
	if !errors.Is(err, ErrLedgerEntryNotFound) {
		return nil, false, err
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() // no-op after Commit
	}()

	var balanceAfter int64
	err = tx.QueryRowContext(ctx, `
		UPDATE wallets SET balance = balance + $1, updated_at = now()
		WHERE account_id = $2 AND balance + $1 >= 0
		RETURNING balance`, delta, accountID).Scan(&balanceAfter)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			var exists bool
			if exErr := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM wallets WHERE account_id = $1)`, accountID).Scan(&exists); exErr != nil {
				return nil, false, fmt.Errorf("failed to check wallet %s existence: %w", accountID, exErr)
			}
			if !exists {
				return nil, false, ErrWalletNotFound
			}
			return nil, false, ErrInsufficientBalance
		}
		return nil, false, fmt.Errorf("failed to adjust wallet %s: %w", accountID, err)
	}

	entry := &models.LedgerEntry{
		ID:             uuid.NewString(),
		AccountID:      accountID,
		Delta:          delta,
		IdempotencyKey: idempotencyKey,
		BalanceAfter:   balanceAfter,
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO ledger_entries (id, account_id, delta, idempotency_key, balance_after, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		RETURNING created_at`,
		entry.ID, entry.AccountID, entry.Delta, entry.IdempotencyKey, entry.BalanceAfter,
	).Scan(&entry.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			// Параллельный запрос с тем же ключом успел первым: наш UPDATE откатится.
			_ = tx.Rollback()
			winner, lookupErr := entryByKey(ctx, l.db, idempotencyKey)
			if lookupErr != nil {
				return nil, false, lookupErr
			}
			return winner, false, sameAdjustment(winner, accountID, delta)
		}
		return nil, false, fmt.Errorf("failed to insert ledger entry %s: %w", idempotencyKey, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit ledger entry %s: %w", idempotencyKey, err)
	}
	return entry, true, nil
}

func (l *postgresWalletLedger) EntryByKey(ctx context.Context, idempotencyKey string) (*models.LedgerEntry, error) {
	return entryByKey(ctx, l.db, idempotencyKey)
}

func entryByKey(ctx context.Context, exec SQLExecutor, key string) (*models.LedgerEntry, error) {
	query := `
		SELECT id, account_id, delta, idempotency_key, balance_after, created_at
		FROM ledger_entries WHERE idempotency_key = $1`

	e := &models.LedgerEntry{}
	err := exec.QueryRowContext(ctx, query, key).
		Scan(&e.ID, &e.AccountID, &e.Delta, &e.IdempotencyKey, &e.BalanceAfter, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrLedgerEntryNotFound
		}
		return nil, fmt.Errorf("failed to get ledger entry %s: %w", key, err)
	}
	return e, nil
}

func sameAdjustment(e *models.LedgerEntry, accountID string, delta int64) error {
	if e.AccountID != accountID || e.Delta != delta {
		return fmt.Errorf("%w: %s", ErrIdempotencyKeyReused, e.IdempotencyKey)
	}
	return nil
}
