package repositories

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryWalletLedger_AdjustBalance(t *testing.T) {
	ledger := NewMemoryWalletLedger(nil)
	ctx := context.Background()

	_, err := ledger.CreateAccount(ctx, "w-1", "COIN")
	require.NoError(t, err)
	_, err = ledger.CreateAccount(ctx, "w-1", "COIN")
	assert.ErrorIs(t, err, ErrWalletConflict)

	entry, applied, err := ledger.AdjustBalance(ctx, "w-1", 1000, "deposit:w-1:a")
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, int64(1000), entry.BalanceAfter)

	replay, applied, err := ledger.AdjustBalance(ctx, "w-1", 1000, "deposit:w-1:a")
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, entry.ID, replay.ID)

	_, _, err = ledger.AdjustBalance(ctx, "w-1", 5, "deposit:w-1:a")
	assert.ErrorIs(t, err, ErrIdempotencyKeyReused)

	_, _, err = ledger.AdjustBalance(ctx, "w-1", -1001, "m:escrow:p")
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	_, err = ledger.EntryByKey(ctx, "m:escrow:p")
	assert.ErrorIs(t, err, ErrLedgerEntryNotFound, "failed debit leaves no entry")

	_, _, err = ledger.AdjustBalance(ctx, "w-missing", 1, "k")
	assert.ErrorIs(t, err, ErrWalletNotFound)
	_, _, err = ledger.AdjustBalance(ctx, "w-1", 1, "")
	assert.Error(t, err)

	balance, err := ledger.GetBalance(ctx, "w-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), balance)
}

func TestMemoryWalletLedger_ConcurrentSameKey(t *testing.T) {
	ledger := NewMemoryWalletLedger(nil)
	ctx := context.Background()
	_, err := ledger.CreateAccount(ctx, "w-1", "COIN")
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := ledger.AdjustBalance(ctx, "w-1", 50, "deposit:w-1:once")
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, applied)
	balance, err := ledger.GetBalance(ctx, "w-1")
	require.NoError(t, err)
	assert.Equal(t, int64(50), balance)
}
