package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/Dosada05/wager-match/models"
	"github.com/Dosada05/wager-match/repositories"
)

// --- Общие хелперы ---

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// getMatch читает запись матча и переводит ошибку репозитория в ошибку сервиса.
func getMatch(ctx context.Context, matches repositories.MatchRepository, code string) (*models.MatchRecord, error) {
	match, err := matches.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repositories.ErrMatchNotFound) {
			return nil, ErrMatchUnavailable
		}
		return nil, fmt.Errorf("failed to get match %s: %w", code, err)
	}
	return match, nil
}

func walletOf(ctx context.Context, participants repositories.ParticipantRepository, ledger repositories.WalletLedger, participantID string) (*models.WalletAccount, error) {
	p, err := participants.GetByID(ctx, participantID)
	if err != nil {
		if errors.Is(err, repositories.ErrParticipantNotFound) {
			return nil, ErrParticipantNotFound
		}
		return nil, fmt.Errorf("failed to get participant %s: %w", participantID, err)
	}
	account, err := ledger.GetAccount(ctx, p.WalletAccountID)
	if err != nil {
		if errors.Is(err, repositories.ErrWalletNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to get wallet of %s: %w", participantID, err)
	}
	return account, nil
}

// handleRepositoryError - общий хелпер для ошибок репозитория при conditional update.
// Проваленное условие означает, что матч уже не в ожидаемом состоянии.
func handleRepositoryError(err error, code string, action string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repositories.ErrMatchNotFound), errors.Is(err, repositories.ErrConditionFailed):
		return ErrMatchUnavailable
	default:
		return fmt.Errorf("failed to %s match %s: %w", action, code, err)
	}
}
