package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/Dosada05/wager-match/models"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWaitingMatch(code string) *models.MatchRecord {
	return &models.MatchRecord{
		Code:            code,
		Phase:           models.PhaseWaiting,
		GameType:        models.GameReaction,
		StakeAmount:     100,
		StakeCurrency:   "COIN",
		InitiatorID:     "alice",
		SettlementState: models.SettlementNone,
	}
}

func TestMemoryMatchRepository_CreateAndGet(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	repo := NewMemoryMatchRepository(clock)
	ctx := context.Background()

	match := newWaitingMatch("12345678")
	require.NoError(t, repo.Create(ctx, match))
	assert.Equal(t, clock.Now(), match.CreatedAt)
	assert.Equal(t, clock.Now(), match.LastTransitionAt)

	assert.ErrorIs(t, repo.Create(ctx, newWaitingMatch("12345678")), ErrMatchCodeConflict)

	got, err := repo.GetByCode(ctx, "12345678")
	require.NoError(t, err)
	assert.Equal(t, match, got)

	// Возвращается копия: изменения вызывающего не попадают в хранилище.
	got.Phase = models.PhaseCompleted
	again, err := repo.GetByCode(ctx, "12345678")
	require.NoError(t, err)
	assert.Equal(t, models.PhaseWaiting, again.Phase)

	_, err = repo.GetByCode(ctx, "00000000")
	assert.ErrorIs(t, err, ErrMatchNotFound)
}

func TestMemoryMatchRepository_ConditionalUpdate(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	repo := NewMemoryMatchRepository(clock)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, newWaitingMatch("12345678")))

	claim := MatchUpdate{
		Where: []Condition{Equals(FieldPhase, models.PhaseWaiting), Absent(FieldJoinerID)},
		Set:   map[MatchField]any{FieldJoinerID: "bob"},
	}
	updated, err := repo.Update(ctx, "12345678", claim)
	require.NoError(t, err)
	require.NotNil(t, updated.JoinerID)
	assert.Equal(t, "bob", *updated.JoinerID)

	_, err = repo.Update(ctx, "12345678", claim)
	assert.ErrorIs(t, err, ErrConditionFailed, "slot already claimed")

	_, err = repo.Update(ctx, "missing", claim)
	assert.ErrorIs(t, err, ErrMatchNotFound)

	clock.Advance(time.Minute)
	updated, err = repo.Update(ctx, "12345678", MatchUpdate{
		Where: []Condition{
			OneOf(FieldPhase, models.PhaseWaiting, models.PhaseConnecting),
			Equals(FieldStakeAmount, 100),
			Equals(FieldJoinerEscrow, false),
		},
		Set: map[MatchField]any{
			FieldPhase:           models.PhaseConnecting,
			FieldPot:             int64(200),
			FieldSettlementState: models.SettlementEscrowed,
		},
		Transition: true,
	})
	require.NoError(t, err)
	assert.Equal(t, models.PhaseConnecting, updated.Phase)
	assert.Equal(t, int64(200), *updated.Pot)
	assert.Equal(t, clock.Now(), updated.LastTransitionAt)

	// Поле можно очистить, передав nil.
	updated, err = repo.Update(ctx, "12345678", MatchUpdate{
		Where: []Condition{Equals(FieldLastTransitionAt, clock.Now())},
		Set:   map[MatchField]any{FieldJoinerID: nil, FieldInitiatorScoreAt: StoreNow, FieldInitiatorScore: 1.5},
	})
	require.NoError(t, err)
	assert.Nil(t, updated.JoinerID)
	require.NotNil(t, updated.InitiatorScoreAt)
	assert.Equal(t, clock.Now(), *updated.InitiatorScoreAt)
	assert.Equal(t, 1.5, *updated.InitiatorScore)

	_, err = repo.Update(ctx, "12345678", MatchUpdate{Set: map[MatchField]any{"nope": 1}})
	assert.ErrorIs(t, err, ErrUnknownMatchField)
	_, err = repo.Update(ctx, "12345678", MatchUpdate{Set: map[MatchField]any{FieldPot: "lots"}})
	assert.Error(t, err)
	_, err = repo.Update(ctx, "12345678", MatchUpdate{})
	assert.Error(t, err)
}

func TestMemoryMatchRepository_ListStaleAndPendingRefunds(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	repo := NewMemoryMatchRepository(clock)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newWaitingMatch("00000001")))
	clock.Advance(time.Minute)
	require.NoError(t, repo.Create(ctx, newWaitingMatch("00000002")))
	clock.Advance(time.Minute)

	stale, err := repo.ListStale(ctx, []models.MatchPhase{models.PhaseWaiting}, clock.Now().Add(-30*time.Second))
	require.NoError(t, err)
	require.Len(t, stale, 2)
	assert.Equal(t, "00000001", stale[0].Code)

	stale, err = repo.ListStale(ctx, []models.MatchPhase{models.PhasePlaying}, clock.Now())
	require.NoError(t, err)
	assert.Empty(t, stale)

	_, err = repo.Update(ctx, "00000002", MatchUpdate{
		Set: map[MatchField]any{FieldPhase: models.PhaseAbandoned, FieldSettlementState: models.SettlementEscrowed},
	})
	require.NoError(t, err)

	pending, err := repo.ListPendingRefunds(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "00000002", pending[0].Code)
}

func TestMemoryMatchRepository_SubscribeDeliversLatest(t *testing.T) {
	repo := NewMemoryMatchRepository(nil)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, repo.Create(ctx, newWaitingMatch("12345678")))

	updates, err := repo.Subscribe(ctx, "12345678")
	require.NoError(t, err)

	for _, stake := range []int64{200, 300, 400} {
		_, err := repo.Update(ctx, "12345678", MatchUpdate{Set: map[MatchField]any{FieldStakeAmount: stake}})
		require.NoError(t, err)
	}

	select {
	case m := <-updates:
		assert.Equal(t, int64(400), m.StakeAmount, "older versions are replaced")
	case <-time.After(time.Second):
		t.Fatal("no update delivered")
	}

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-updates:
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}
