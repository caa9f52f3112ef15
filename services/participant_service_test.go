package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParticipantService_RegisterAndAuthenticate(t *testing.T) {
	env := newTestEnv(t)
	svc := NewParticipantService(env.participants, env.ledger, testCurrency, env.logger)
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterInput{DisplayName: "  ", Secret: "long-enough"})
	assert.ErrorIs(t, err, ErrDisplayNameRequired)
	_, err = svc.Register(ctx, RegisterInput{DisplayName: "Alice", Secret: "short"})
	assert.ErrorIs(t, err, ErrSecretTooShort)

	p, err := svc.Register(ctx, RegisterInput{DisplayName: " Alice ", Secret: "correct horse"})
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, "Alice", p.DisplayName)
	assert.NotEqual(t, "correct horse", p.SecretHash)

	wallet, err := svc.GetWallet(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, testCurrency, wallet.Currency)
	assert.Zero(t, wallet.Balance)

	got, err := svc.Authenticate(ctx, LoginInput{ParticipantID: p.ID, Secret: "correct horse"})
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)

	_, err = svc.Authenticate(ctx, LoginInput{ParticipantID: p.ID, Secret: "wrong horse"})
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
	_, err = svc.Authenticate(ctx, LoginInput{ParticipantID: "missing", Secret: "correct horse"})
	assert.ErrorIs(t, err, ErrAuthenticationFailed)

	_, err = svc.GetParticipant(ctx, "missing")
	assert.ErrorIs(t, err, ErrParticipantNotFound)
}

func TestParticipantService_Deposit(t *testing.T) {
	env := newTestEnv(t)
	env.addParticipant(t, "alice", 0)
	svc := NewParticipantService(env.participants, env.ledger, testCurrency, env.logger)
	ctx := context.Background()

	wallet, err := svc.Deposit(ctx, "alice", 700, "topup-1")
	require.NoError(t, err)
	assert.Equal(t, int64(700), wallet.Balance)

	// Повтор с тем же ключом не зачисляется второй раз.
	wallet, err = svc.Deposit(ctx, "alice", 700, "topup-1")
	require.NoError(t, err)
	assert.Equal(t, int64(700), wallet.Balance)

	_, err = svc.Deposit(ctx, "alice", 900, "topup-1")
	assert.ErrorIs(t, err, ErrValidationFailed)

	_, err = svc.Deposit(ctx, "alice", 0, "topup-2")
	assert.ErrorIs(t, err, ErrValidationFailed)
	_, err = svc.Deposit(ctx, "alice", 10, " ")
	assert.ErrorIs(t, err, ErrValidationFailed)
	_, err = svc.Deposit(ctx, "nobody", 10, "topup-3")
	assert.ErrorIs(t, err, ErrParticipantNotFound)

	assert.Equal(t, int64(700), env.balance(t, "alice"))
}
