package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Dosada05/wager-match/games"
	"github.com/Dosada05/wager-match/models"
	"github.com/Dosada05/wager-match/repositories"
	"github.com/Dosada05/wager-match/storage"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"
)

// EscrowService moves money for matches. Every ledger call carries an idempotency key
// derived from the match code and the operation, so replays never double-apply.
type EscrowService interface {
	// LockStake debits the participant's stake once and marks their escrow applied.
	LockStake(ctx context.Context, code, participantID string) error
	// SettleMatch pays the winner once both scores are present. Calling it on an
	// already paid match is a no-op.
	SettleMatch(ctx context.Context, code string) (*models.MatchRecord, error)
	// RefundMatch returns every applied escrow of an abandoned match exactly once.
	RefundMatch(ctx context.Context, code string) (*models.MatchRecord, error)
	// ForfeitMatch resolves a playing match that timed out.
	ForfeitMatch(ctx context.Context, code string) (*models.MatchRecord, error)
}

type escrowService struct {
	matches           repositories.MatchRepository
	ledger            repositories.WalletLedger
	participants      repositories.ParticipantRepository
	games             *games.Registry
	archive           storage.ReceiptArchive
	platformAccountID string
	clock             clockwork.Clock
	logger            *slog.Logger

	settling singleflight.Group
}

type EscrowServiceDeps struct {
	Matches           repositories.MatchRepository
	Ledger            repositories.WalletLedger
	Participants      repositories.ParticipantRepository
	Games             *games.Registry
	Archive           storage.ReceiptArchive // optional
	PlatformAccountID string
	Clock             clockwork.Clock
	Logger            *slog.Logger
}

func NewEscrowService(deps EscrowServiceDeps) EscrowService {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &escrowService{
		matches:           deps.Matches,
		ledger:            deps.Ledger,
		participants:      deps.Participants,
		games:             deps.Games,
		archive:           deps.Archive,
		platformAccountID: deps.PlatformAccountID,
		clock:             deps.Clock,
		logger:            deps.Logger,
	}
}

func escrowKey(code, participantID string) string {
	return fmt.Sprintf("%s:%s:%s", code, models.OpEscrow, participantID)
}

func refundKey(code, participantID string) string {
	return fmt.Sprintf("%s:%s:%s", code, models.OpRefund, participantID)
}

func payoutKey(code string) string {
	return fmt.Sprintf("%s:%s", code, models.OpPayout)
}

func feeKey(code string) string {
	return fmt.Sprintf("%s:%s", code, models.OpFee)
}

func escrowField(role models.ParticipantRole) repositories.MatchField {
	if role == models.RoleInitiator {
		return repositories.FieldInitiatorEscrow
	}
	return repositories.FieldJoinerEscrow
}

func idField(role models.ParticipantRole) repositories.MatchField {
	if role == models.RoleInitiator {
		return repositories.FieldInitiatorID
	}
	return repositories.FieldJoinerID
}

func escrowApplied(m *models.MatchRecord, role models.ParticipantRole) bool {
	if role == models.RoleInitiator {
		return m.InitiatorEscrow
	}
	return m.JoinerEscrow
}

func (s *escrowService) LockStake(ctx context.Context, code, participantID string) error {
	match, err := getMatch(ctx, s.matches, code)
	if err != nil {
		return err
	}
	role, ok := match.RoleOf(participantID)
	if !ok {
		return ErrNotParticipant
	}
	if escrowApplied(match, role) {
		return nil
	}
	if match.Phase != models.PhaseWaiting {
		return ErrMatchUnavailable
	}

	account, err := walletOf(ctx, s.participants, s.ledger, participantID)
	if err != nil {
		return err
	}
	if account.Currency != match.StakeCurrency {
		return ErrCurrencyMismatch
	}

	_, applied, err := s.ledger.AdjustBalance(ctx, account.AccountID, -match.StakeAmount, escrowKey(code, participantID))
	if err != nil {
		if errors.Is(err, repositories.ErrInsufficientBalance) {
			return ErrInsufficientFunds
		}
		return fmt.Errorf("failed to debit stake for %s in match %s: %w", participantID, code, err)
	}
	if applied {
		s.logger.Info("stake escrowed",
			slog.String("code", code), slog.String("participant_id", participantID),
			slog.Int64("amount", match.StakeAmount))
	}

	_, err = s.matches.Update(ctx, code, repositories.MatchUpdate{
		Where: []repositories.Condition{
			repositories.Equals(repositories.FieldPhase, models.PhaseWaiting),
			repositories.Equals(idField(role), participantID),
			repositories.Equals(repositories.FieldStakeAmount, match.StakeAmount),
			repositories.Equals(escrowField(role), false),
		},
		Set: map[repositories.MatchField]any{escrowField(role): true},
	})
	if err == nil {
		return nil
	}
	if !errors.Is(err, repositories.ErrConditionFailed) {
		return fmt.Errorf("failed to mark escrow for %s in match %s: %w", participantID, code, err)
	}

	current, getErr := getMatch(ctx, s.matches, code)
	if getErr == nil && escrowApplied(current, role) {
		return nil
	}
	// Матч ушел из waiting между списанием и отметкой: возвращаем списание сами.
	if _, refundErr := s.refundParticipant(ctx, code, participantID); refundErr != nil {
		return fmt.Errorf("stake lock for %s in match %s lost the race and refund failed: %w", participantID, code, refundErr)
	}
	return ErrMatchUnavailable
}

// refundParticipant credits back the participant's escrow debit if, and only if,
// one was applied. The refunded amount is read from the escrow entry itself.
func (s *escrowService) refundParticipant(ctx context.Context, code, participantID string) (bool, error) {
	debit, err := s.ledger.EntryByKey(ctx, escrowKey(code, participantID))
	if err != nil {
		if errors.Is(err, repositories.ErrLedgerEntryNotFound) {
			return false, nil
		}
		return false, err
	}
	_, applied, err := s.ledger.AdjustBalance(ctx, debit.AccountID, -debit.Delta, refundKey(code, participantID))
	if err != nil {
		return false, fmt.Errorf("failed to refund %s for match %s: %w", participantID, code, err)
	}
	if applied {
		s.logger.Info("stake refunded",
			slog.String("code", code), slog.String("participant_id", participantID),
			slog.Int64("amount", -debit.Delta))
	}
	return true, nil
}

func (s *escrowService) RefundMatch(ctx context.Context, code string) (*models.MatchRecord, error) {
	match, err := getMatch(ctx, s.matches, code)
	if err != nil {
		return nil, err
	}
	if match.Phase != models.PhaseAbandoned {
		return nil, ErrInvalidPhase
	}
	if match.SettlementState == models.SettlementRefunded {
		return match, nil
	}

	escrowFound := false
	for _, participantID := range match.Participants() {
		found, err := s.refundParticipant(ctx, code, participantID)
		if err != nil {
			return nil, err
		}
		escrowFound = escrowFound || found
	}
	if !escrowFound && match.SettlementState == models.SettlementNone {
		return match, nil
	}

	updated, err := s.matches.Update(ctx, code, repositories.MatchUpdate{
		Where: []repositories.Condition{
			repositories.Equals(repositories.FieldPhase, models.PhaseAbandoned),
			repositories.OneOf(repositories.FieldSettlementState, models.SettlementNone, models.SettlementEscrowed),
		},
		Set: map[repositories.MatchField]any{repositories.FieldSettlementState: models.SettlementRefunded},
	})
	if errors.Is(err, repositories.ErrConditionFailed) {
		return getMatch(ctx, s.matches, code)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to mark match %s refunded: %w", code, err)
	}
	s.archiveReceipt(ctx, updated)
	return updated, nil
}

func (s *escrowService) SettleMatch(ctx context.Context, code string) (*models.MatchRecord, error) {
	// Общая работа не должна зависеть от отмены запроса первого вызвавшего.
	shared := context.WithoutCancel(ctx)
	v, err, _ := s.settling.Do(code, func() (interface{}, error) {
		match, err := getMatch(shared, s.matches, code)
		if err != nil {
			return nil, err
		}
		if match.SettlementState == models.SettlementPaid {
			return match, nil
		}
		if match.Phase == models.PhaseAbandoned {
			return nil, ErrMatchUnavailable
		}
		if match.WinnerID != nil {
			// Победитель уже зафиксирован, выплата была прервана.
			return s.pay(shared, match)
		}
		if !match.BothScored() {
			return nil, ErrScoresIncomplete
		}
		winnerID, err := s.decideWinner(match)
		if err != nil {
			return nil, err
		}
		claimed, err := s.claimWinner(shared, code, winnerID)
		if err != nil {
			return claimed, err
		}
		return s.pay(shared, claimed)
	})
	if v == nil {
		return nil, err
	}
	return v.(*models.MatchRecord), err
}

func (s *escrowService) ForfeitMatch(ctx context.Context, code string) (*models.MatchRecord, error) {
	match, err := getMatch(ctx, s.matches, code)
	if err != nil {
		return nil, err
	}
	if match.Phase != models.PhasePlaying {
		return nil, ErrInvalidPhase
	}

	switch {
	case match.WinnerID != nil, match.BothScored():
		return s.SettleMatch(ctx, code)
	case match.InitiatorScore != nil:
		return s.forfeitTo(ctx, code, match.InitiatorID, repositories.FieldJoinerScore)
	case match.JoinerScore != nil && match.JoinerID != nil:
		return s.forfeitTo(ctx, code, *match.JoinerID, repositories.FieldInitiatorScore)
	}

	// Никто не прислал результат: матч отменяется, ставки возвращаются.
	_, err = s.matches.Update(ctx, code, repositories.MatchUpdate{
		Where: []repositories.Condition{
			repositories.Equals(repositories.FieldPhase, models.PhasePlaying),
			repositories.Absent(repositories.FieldInitiatorScore),
			repositories.Absent(repositories.FieldJoinerScore),
		},
		Set:        map[repositories.MatchField]any{repositories.FieldPhase: models.PhaseAbandoned},
		Transition: true,
	})
	if err != nil && !errors.Is(err, repositories.ErrConditionFailed) {
		return nil, fmt.Errorf("failed to abandon timed out match %s: %w", code, err)
	}
	if errors.Is(err, repositories.ErrConditionFailed) {
		// Кто-то успел прислать результат: повторим на следующем проходе.
		return getMatch(ctx, s.matches, code)
	}
	s.logger.Warn("playing match timed out without scores", slog.String("code", code))
	return s.RefundMatch(ctx, code)
}

// decideWinner applies the game type's rule. Equal scores go to the earlier
// store-assigned submission time, then to the initiator.
func (s *escrowService) decideWinner(m *models.MatchRecord) (string, error) {
	def, err := s.games.Lookup(m.GameType)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrUnknownGameType, m.GameType)
	}
	if m.JoinerID == nil {
		return "", ErrScoresIncomplete
	}

	switch def.Rule.Compare(*m.InitiatorScore, *m.JoinerScore) {
	case games.FirstWins:
		return m.InitiatorID, nil
	case games.SecondWins:
		return *m.JoinerID, nil
	}
	if m.JoinerScoreAt != nil && m.InitiatorScoreAt != nil && m.JoinerScoreAt.Before(*m.InitiatorScoreAt) {
		return *m.JoinerID, nil
	}
	return m.InitiatorID, nil
}

// forfeitTo awards the match to the only scorer, provided the opponent's score is
// still absent when the winner is claimed. A score that lands first sends the match
// through regular settlement.
func (s *escrowService) forfeitTo(ctx context.Context, code, winnerID string, opponentScore repositories.MatchField) (*models.MatchRecord, error) {
	claimed, err := s.claimWinner(ctx, code, winnerID, repositories.Absent(opponentScore))
	if errors.Is(err, ErrSettlementConflict) && claimed != nil &&
		claimed.Phase == models.PhasePlaying && claimed.BothScored() {
		s.logger.Info("late score arrived before forfeit, settling on both scores", slog.String("code", code))
		return s.SettleMatch(ctx, code)
	}
	if err != nil {
		return claimed, err
	}
	return s.pay(ctx, claimed)
}

// claimWinner fixes winner_id on a playing, escrowed match before any money moves.
// When another client already claimed, the stored winner is returned and stands.
func (s *escrowService) claimWinner(ctx context.Context, code, winnerID string, guards ...repositories.Condition) (*models.MatchRecord, error) {
	where := append([]repositories.Condition{
		repositories.Equals(repositories.FieldPhase, models.PhasePlaying),
		repositories.Equals(repositories.FieldSettlementState, models.SettlementEscrowed),
		repositories.Absent(repositories.FieldWinnerID),
	}, guards...)
	claimed, err := s.matches.Update(ctx, code, repositories.MatchUpdate{
		Where: where,
		Set:   map[repositories.MatchField]any{repositories.FieldWinnerID: winnerID},
	})
	if err == nil {
		return claimed, nil
	}
	if !errors.Is(err, repositories.ErrConditionFailed) {
		return nil, fmt.Errorf("failed to claim winner of match %s: %w", code, err)
	}

	current, getErr := getMatch(ctx, s.matches, code)
	if getErr != nil {
		return nil, getErr
	}
	if current.WinnerID != nil && current.Phase == models.PhasePlaying &&
		current.SettlementState == models.SettlementEscrowed {
		return current, nil
	}
	s.logger.Debug("winner claim lost", slog.String("code", code))
	return current, ErrSettlementConflict
}

// pay credits the claimed winner and the platform fee, then moves the record to paid.
// The credits are keyed per match and always go to the stored winner, so an
// interrupted payout resumes with the same entries.
func (s *escrowService) pay(ctx context.Context, match *models.MatchRecord) (*models.MatchRecord, error) {
	code := match.Code
	if match.SettlementState != models.SettlementEscrowed {
		return nil, fmt.Errorf("%w: settlement state is %s", ErrInvalidPhase, match.SettlementState)
	}
	if match.WinnerID == nil {
		return nil, fmt.Errorf("match %s has no claimed winner", code)
	}
	if match.Payout == nil || match.Fee == nil {
		return nil, fmt.Errorf("match %s has no locked payout", code)
	}
	winnerID := *match.WinnerID

	winnerAccount, err := walletOf(ctx, s.participants, s.ledger, winnerID)
	if err != nil {
		return nil, err
	}
	if _, _, err := s.ledger.AdjustBalance(ctx, winnerAccount.AccountID, *match.Payout, payoutKey(code)); err != nil {
		return nil, fmt.Errorf("failed to pay out match %s: %w", code, err)
	}
	if *match.Fee > 0 && s.platformAccountID != "" {
		if _, _, err := s.ledger.AdjustBalance(ctx, s.platformAccountID, *match.Fee, feeKey(code)); err != nil {
			return nil, fmt.Errorf("failed to record fee for match %s: %w", code, err)
		}
	}

	updated, err := s.matches.Update(ctx, code, repositories.MatchUpdate{
		Where: []repositories.Condition{
			repositories.Equals(repositories.FieldPhase, models.PhasePlaying),
			repositories.Equals(repositories.FieldSettlementState, models.SettlementEscrowed),
			repositories.Equals(repositories.FieldWinnerID, winnerID),
		},
		Set: map[repositories.MatchField]any{
			repositories.FieldSettlementState: models.SettlementPaid,
			repositories.FieldPhase:           models.PhaseCompleted,
			repositories.FieldCompletedAt:     repositories.StoreNow,
		},
		Transition: true,
	})
	if errors.Is(err, repositories.ErrConditionFailed) {
		current, getErr := getMatch(ctx, s.matches, code)
		if getErr != nil {
			return nil, getErr
		}
		s.logger.Debug("settlement compare-and-set lost", slog.String("code", code))
		return current, ErrSettlementConflict
	}
	if err != nil {
		return nil, fmt.Errorf("failed to mark match %s paid: %w", code, err)
	}

	s.logger.Info("match settled",
		slog.String("code", code), slog.String("winner_id", winnerID),
		slog.Int64("payout", *match.Payout), slog.Int64("fee", *match.Fee))
	s.archiveReceipt(ctx, updated)
	return updated, nil
}

func (s *escrowService) archiveReceipt(ctx context.Context, match *models.MatchRecord) {
	if s.archive == nil {
		return
	}

	keys := []string{payoutKey(match.Code), feeKey(match.Code)}
	for _, participantID := range match.Participants() {
		keys = append(keys, escrowKey(match.Code, participantID), refundKey(match.Code, participantID))
	}
	entries := make([]*models.LedgerEntry, 0, len(keys))
	for _, key := range keys {
		entry, err := s.ledger.EntryByKey(ctx, key)
		if err != nil {
			continue
		}
		entries = append(entries, entry)
	}

	receipt := &storage.MatchReceipt{Match: match, Entries: entries, ArchivedAt: s.clock.Now()}
	if _, err := s.archive.Archive(ctx, receipt); err != nil {
		s.logger.Warn("failed to archive match receipt", slog.String("code", match.Code), slog.Any("error", err))
	}
}
