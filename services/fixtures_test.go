package services

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/Dosada05/wager-match/games"
	"github.com/Dosada05/wager-match/models"
	"github.com/Dosada05/wager-match/repositories"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const (
	testCurrency = "COIN"
	platformID   = "platform"
)

type testEnv struct {
	clock        *clockwork.FakeClock
	matches      repositories.MatchRepository
	ledger       repositories.WalletLedger
	participants repositories.ParticipantRepository
	escrow       EscrowService
	match        MatchService
	scores       ScoreService
	logger       *slog.Logger
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	env := &testEnv{
		clock:        clock,
		matches:      repositories.NewMemoryMatchRepository(clock),
		ledger:       repositories.NewMemoryWalletLedger(clock),
		participants: repositories.NewMemoryParticipantRepository(),
		logger:       discardLogger(),
	}
	_, err := env.ledger.CreateAccount(context.Background(), platformID, testCurrency)
	require.NoError(t, err)

	registry := games.DefaultRegistry()
	codes, err := NewCodeGenerator(DefaultCodeLength)
	require.NoError(t, err)

	env.escrow = NewEscrowService(EscrowServiceDeps{
		Matches:           env.matches,
		Ledger:            env.ledger,
		Participants:      env.participants,
		Games:             registry,
		PlatformAccountID: platformID,
		Clock:             clock,
		Logger:            env.logger,
	})
	env.match = NewMatchService(env.matches, env.ledger, env.participants, env.escrow, registry, codes,
		MatchSettings{
			DefaultStake:    100,
			DefaultCurrency: testCurrency,
			PayoutFraction:  decimal.RequireFromString("0.8"),
		}, env.logger)
	env.scores = NewScoreService(env.matches, env.escrow, env.logger)
	return env
}

// addParticipant registers id with a funded wallet "w-<id>".
func (e *testEnv) addParticipant(t *testing.T, id string, balance int64) {
	t.Helper()
	ctx := context.Background()

	walletID := "w-" + id
	_, err := e.ledger.CreateAccount(ctx, walletID, testCurrency)
	require.NoError(t, err)
	if balance > 0 {
		_, _, err = e.ledger.AdjustBalance(ctx, walletID, balance, "seed:"+id)
		require.NoError(t, err)
	}
	require.NoError(t, e.participants.Create(ctx, &models.Participant{ID: id, DisplayName: id, WalletAccountID: walletID}))
}

func (e *testEnv) balance(t *testing.T, id string) int64 {
	t.Helper()
	accountID := "w-" + id
	if id == platformID {
		accountID = platformID
	}
	b, err := e.ledger.GetBalance(context.Background(), accountID)
	require.NoError(t, err)
	return b
}

// lobby creates a match hosted by initiator with the given stake.
func (e *testEnv) lobby(t *testing.T, initiator string, gameType models.GameType, stake int64) *models.MatchRecord {
	t.Helper()
	ctx := context.Background()

	match, err := e.match.CreateMatch(ctx, initiator, gameType)
	require.NoError(t, err)
	match, err = e.match.SetStake(ctx, match.Code, initiator, stake, testCurrency)
	require.NoError(t, err)
	return match
}

// playing drives a fresh match through join and the handshake into playing.
func (e *testEnv) playing(t *testing.T, initiator, joiner string, gameType models.GameType, stake int64) *models.MatchRecord {
	t.Helper()
	ctx := context.Background()

	match := e.lobby(t, initiator, gameType, stake)
	_, err := e.match.JoinMatch(ctx, match.Code, joiner)
	require.NoError(t, err)
	_, err = e.match.MarkReady(ctx, match.Code, initiator)
	require.NoError(t, err)
	_, err = e.match.MarkReady(ctx, match.Code, joiner)
	require.NoError(t, err)
	_, err = e.match.AdvanceToCountdown(ctx, match.Code, initiator)
	require.NoError(t, err)
	match, err = e.match.AdvanceToPlaying(ctx, match.Code, initiator)
	require.NoError(t, err)
	require.Equal(t, models.PhasePlaying, match.Phase)
	return match
}
