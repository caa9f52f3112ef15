package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/Dosada05/wager-match/models"
	"github.com/Dosada05/wager-match/repositories"
)

type ScoreService interface {
	// SubmitScore writes the caller's score once. When it completes the pair, the
	// caller goes on to settle the match and receives the settled record.
	SubmitScore(ctx context.Context, code, participantID string, value float64) (*models.MatchRecord, error)
}

type scoreService struct {
	matches repositories.MatchRepository
	escrow  EscrowService
	logger  *slog.Logger
}

func NewScoreService(matches repositories.MatchRepository, escrow EscrowService, logger *slog.Logger) ScoreService {
	if logger == nil {
		logger = slog.Default()
	}
	return &scoreService{matches: matches, escrow: escrow, logger: logger}
}

func (s *scoreService) SubmitScore(ctx context.Context, code, participantID string, value float64) (*models.MatchRecord, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return nil, ErrInvalidScore
	}

	match, err := getMatch(ctx, s.matches, code)
	if err != nil {
		return nil, err
	}
	role, ok := match.RoleOf(participantID)
	if !ok {
		return nil, ErrNotParticipant
	}
	if match.ScoreOf(role) != nil {
		return match, ErrScoreAlreadySubmitted
	}
	if match.Phase != models.PhasePlaying || match.WinnerID != nil {
		return nil, ErrInvalidPhase
	}

	scoreField, scoredAtField := repositories.FieldJoinerScore, repositories.FieldJoinerScoreAt
	if role == models.RoleInitiator {
		scoreField, scoredAtField = repositories.FieldInitiatorScore, repositories.FieldInitiatorScoreAt
	}

	updated, err := s.matches.Update(ctx, code, repositories.MatchUpdate{
		Where: []repositories.Condition{
			repositories.Equals(repositories.FieldPhase, models.PhasePlaying),
			repositories.Absent(scoreField),
			// После фиксации победителя (таймаут) результаты не принимаются.
			repositories.Absent(repositories.FieldWinnerID),
		},
		Set: map[repositories.MatchField]any{
			scoreField:    value,
			scoredAtField: repositories.StoreNow,
		},
	})
	if errors.Is(err, repositories.ErrConditionFailed) {
		current, getErr := getMatch(ctx, s.matches, code)
		if getErr != nil {
			return nil, getErr
		}
		if current.ScoreOf(role) != nil {
			return current, ErrScoreAlreadySubmitted
		}
		return nil, ErrInvalidPhase
	}
	if err != nil {
		return nil, fmt.Errorf("failed to submit score for %s in match %s: %w", participantID, code, err)
	}
	s.logger.Info("score submitted",
		slog.String("code", code), slog.String("participant_id", participantID), slog.Float64("score", value))

	if !updated.BothScored() {
		return updated, nil
	}
	settled, err := s.escrow.SettleMatch(ctx, code)
	if errors.Is(err, ErrSettlementConflict) {
		return settled, nil
	}
	if err != nil {
		// Счет уже записан; расчет повторит другой клиент или фоновая задача.
		s.logger.Error("settlement after score failed", slog.String("code", code), slog.Any("error", err))
		return updated, nil
	}
	return settled, nil
}
