package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Dosada05/wager-match/games"
	"github.com/Dosada05/wager-match/models"
	"github.com/Dosada05/wager-match/repositories"
	"github.com/shopspring/decimal"
)

// MatchSettings - параметры, зафиксированные на уровне приложения.
type MatchSettings struct {
	DefaultStake    int64
	DefaultCurrency string
	// PayoutFraction - доля банка, которую получает победитель; остаток - комиссия.
	PayoutFraction decimal.Decimal
}

type MatchService interface {
	CreateMatch(ctx context.Context, initiatorID string, gameType models.GameType) (*models.MatchRecord, error)
	GetMatch(ctx context.Context, code string) (*models.MatchRecord, error)
	SetStake(ctx context.Context, code, callerID string, amount int64, currency string) (*models.MatchRecord, error)
	JoinMatch(ctx context.Context, code, joinerID string) (*models.MatchRecord, error)
	MarkReady(ctx context.Context, code, callerID string) (*models.MatchRecord, error)
	AdvanceToCountdown(ctx context.Context, code, callerID string) (*models.MatchRecord, error)
	AdvanceToPlaying(ctx context.Context, code, callerID string) (*models.MatchRecord, error)
	CancelMatch(ctx context.Context, code, callerID string) (*models.MatchRecord, error)
	// AbandonStale moves a match that has not transitioned since before cutoff to
	// abandoned and refunds it. It reports false when the match moved on meanwhile.
	AbandonStale(ctx context.Context, code string, phase models.MatchPhase, cutoff time.Time) (bool, error)
}

type matchService struct {
	matches      repositories.MatchRepository
	ledger       repositories.WalletLedger
	participants repositories.ParticipantRepository
	escrow       EscrowService
	games        *games.Registry
	codes        *CodeGenerator
	settings     MatchSettings
	logger       *slog.Logger
}

func NewMatchService(
	matches repositories.MatchRepository,
	ledger repositories.WalletLedger,
	participants repositories.ParticipantRepository,
	escrow EscrowService,
	registry *games.Registry,
	codes *CodeGenerator,
	settings MatchSettings,
	logger *slog.Logger,
) MatchService {
	if logger == nil {
		logger = slog.Default()
	}
	return &matchService{
		matches:      matches,
		ledger:       ledger,
		participants: participants,
		escrow:       escrow,
		games:        registry,
		codes:        codes,
		settings:     settings,
		logger:       logger,
	}
}

func (s *matchService) CreateMatch(ctx context.Context, initiatorID string, gameType models.GameType) (*models.MatchRecord, error) {
	if _, err := s.games.Lookup(gameType); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownGameType, gameType)
	}
	account, err := walletOf(ctx, s.participants, s.ledger, initiatorID)
	if err != nil {
		return nil, err
	}
	currency := s.settings.DefaultCurrency
	if currency == "" {
		currency = account.Currency
	}

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := s.codes.Next()
		if err != nil {
			return nil, err
		}
		match := &models.MatchRecord{
			Code:            code,
			Phase:           models.PhaseWaiting,
			GameType:        gameType,
			StakeAmount:     s.settings.DefaultStake,
			StakeCurrency:   currency,
			InitiatorID:     initiatorID,
			SettlementState: models.SettlementNone,
		}
		err = s.matches.Create(ctx, match)
		if errors.Is(err, repositories.ErrMatchCodeConflict) {
			s.logger.Debug("match code collision, retrying", slog.Int("attempt", attempt+1))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create match: %w", err)
		}
		s.logger.Info("match created",
			slog.String("code", code), slog.String("initiator_id", initiatorID),
			slog.String("game_type", string(gameType)))
		return match, nil
	}
	return nil, ErrCodeSpaceExhausted
}

func (s *matchService) GetMatch(ctx context.Context, code string) (*models.MatchRecord, error) {
	if !s.codes.Valid(code) {
		return nil, ErrMatchUnavailable
	}
	return getMatch(ctx, s.matches, code)
}

func (s *matchService) SetStake(ctx context.Context, code, callerID string, amount int64, currency string) (*models.MatchRecord, error) {
	if amount <= 0 {
		return nil, ErrInvalidStake
	}
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		return nil, fmt.Errorf("%w: currency is required", ErrValidationFailed)
	}

	match, err := getMatch(ctx, s.matches, code)
	if err != nil {
		return nil, err
	}
	if match.InitiatorID != callerID {
		return nil, ErrForbiddenOperation
	}

	// Ставка замораживается, как только появился оппонент.
	updated, err := s.matches.Update(ctx, code, repositories.MatchUpdate{
		Where: []repositories.Condition{
			repositories.Equals(repositories.FieldPhase, models.PhaseWaiting),
			repositories.Equals(repositories.FieldInitiatorID, callerID),
			repositories.Absent(repositories.FieldJoinerID),
			repositories.Equals(repositories.FieldInitiatorEscrow, false),
		},
		Set: map[repositories.MatchField]any{
			repositories.FieldStakeAmount:   amount,
			repositories.FieldStakeCurrency: currency,
		},
	})
	if err != nil {
		return nil, handleRepositoryError(err, code, "set stake on")
	}
	return updated, nil
}

// JoinMatch claims the joiner slot, escrows both stakes and locks the pot in. Any
// failure after the claim is compensated so the match never leaves waiting without
// both debits applied. A claim whose debit may have landed is kept, so the same
// joiner can retry and cancel or abandonment still finds the escrow to refund.
func (s *matchService) JoinMatch(ctx context.Context, code, joinerID string) (*models.MatchRecord, error) {
	match, err := getMatch(ctx, s.matches, code)
	if err != nil {
		return nil, err
	}
	if match.InitiatorID == joinerID {
		return nil, ErrCannotJoinOwnMatch
	}
	if match.Phase != models.PhaseWaiting {
		if role, ok := match.RoleOf(joinerID); ok && role == models.RoleJoiner && !match.Phase.IsTerminal() {
			return match, nil
		}
		return nil, ErrMatchUnavailable
	}
	if match.JoinerID != nil && *match.JoinerID != joinerID {
		return nil, ErrMatchUnavailable
	}

	account, err := walletOf(ctx, s.participants, s.ledger, joinerID)
	if err != nil {
		return nil, err
	}
	if account.Currency != match.StakeCurrency {
		return nil, ErrCurrencyMismatch
	}
	// Повторный вход того же joiner: списание могло уже пройти, решает ledger.
	if match.JoinerID == nil && account.Balance < match.StakeAmount {
		return nil, ErrInsufficientFunds
	}

	if match.JoinerID == nil {
		_, err = s.matches.Update(ctx, code, repositories.MatchUpdate{
			Where: []repositories.Condition{
				repositories.Equals(repositories.FieldPhase, models.PhaseWaiting),
				repositories.Absent(repositories.FieldJoinerID),
				repositories.Equals(repositories.FieldStakeAmount, match.StakeAmount),
				repositories.Equals(repositories.FieldStakeCurrency, match.StakeCurrency),
			},
			Set: map[repositories.MatchField]any{repositories.FieldJoinerID: joinerID},
		})
		if err != nil {
			return nil, handleRepositoryError(err, code, "claim")
		}
	}

	if err := s.escrow.LockStake(ctx, code, joinerID); err != nil {
		if errors.Is(err, ErrInsufficientFunds) || errors.Is(err, ErrCurrencyMismatch) {
			s.releaseClaim(ctx, code, joinerID)
			return nil, err
		}
		// Списание могло пройти: слот остается за joiner, он может повторить вход,
		// а отмена или фоновая задача вернет escrow.
		s.logger.Warn("joiner stake lock failed, keeping claim",
			slog.String("code", code), slog.String("joiner_id", joinerID), slog.Any("error", err))
		return nil, err
	}

	if err := s.escrow.LockStake(ctx, code, match.InitiatorID); err != nil {
		s.logger.Warn("initiator stake could not be locked, abandoning match",
			slog.String("code", code), slog.Any("error", err))
		if _, abandonErr := s.abandon(ctx, code, []models.MatchPhase{models.PhaseWaiting}, nil); abandonErr != nil {
			s.logger.Error("failed to abandon match after escrow failure",
				slog.String("code", code), slog.Any("error", abandonErr))
		}
		return nil, ErrMatchUnavailable
	}

	pot, payout, fee := s.lockInAmounts(match.StakeAmount)
	updated, err := s.matches.Update(ctx, code, repositories.MatchUpdate{
		Where: []repositories.Condition{
			repositories.Equals(repositories.FieldPhase, models.PhaseWaiting),
			repositories.Equals(repositories.FieldJoinerID, joinerID),
			repositories.Equals(repositories.FieldInitiatorEscrow, true),
			repositories.Equals(repositories.FieldJoinerEscrow, true),
			repositories.Equals(repositories.FieldSettlementState, models.SettlementNone),
		},
		Set: map[repositories.MatchField]any{
			repositories.FieldPhase:           models.PhaseConnecting,
			repositories.FieldPot:             pot,
			repositories.FieldPayout:          payout,
			repositories.FieldFee:             fee,
			repositories.FieldSettlementState: models.SettlementEscrowed,
		},
		Transition: true,
	})
	if errors.Is(err, repositories.ErrConditionFailed) {
		current, getErr := getMatch(ctx, s.matches, code)
		if getErr == nil && current.Phase == models.PhaseConnecting && derefString(current.JoinerID) == joinerID {
			return current, nil
		}
		return nil, ErrMatchUnavailable
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock in match %s: %w", code, err)
	}

	s.logger.Info("match locked in",
		slog.String("code", code), slog.String("joiner_id", joinerID), slog.Int64("pot", pot))
	return updated, nil
}

// releaseClaim снимает joiner_id, если наш stake так и не был заблокирован.
func (s *matchService) releaseClaim(ctx context.Context, code, joinerID string) {
	_, err := s.matches.Update(ctx, code, repositories.MatchUpdate{
		Where: []repositories.Condition{
			repositories.Equals(repositories.FieldPhase, models.PhaseWaiting),
			repositories.Equals(repositories.FieldJoinerID, joinerID),
			repositories.Equals(repositories.FieldJoinerEscrow, false),
		},
		Set: map[repositories.MatchField]any{repositories.FieldJoinerID: nil},
	})
	if err != nil && !errors.Is(err, repositories.ErrConditionFailed) {
		s.logger.Error("failed to release joiner claim",
			slog.String("code", code), slog.String("joiner_id", joinerID), slog.Any("error", err))
	}
}

// lockInAmounts returns pot, payout and fee. Payout is rounded down to the minor
// unit; the fee takes the remainder so payout+fee always equals pot.
func (s *matchService) lockInAmounts(stake int64) (pot, payout, fee int64) {
	pot = 2 * stake
	payout = decimal.NewFromInt(pot).Mul(s.settings.PayoutFraction).Floor().IntPart()
	if payout > pot {
		payout = pot
	}
	if payout < 0 {
		payout = 0
	}
	return pot, payout, pot - payout
}

func (s *matchService) MarkReady(ctx context.Context, code, callerID string) (*models.MatchRecord, error) {
	match, err := getMatch(ctx, s.matches, code)
	if err != nil {
		return nil, err
	}
	role, ok := match.RoleOf(callerID)
	if !ok {
		return nil, ErrNotParticipant
	}
	switch match.Phase {
	case models.PhaseCountdown, models.PhasePlaying, models.PhaseCompleted:
		return match, nil
	case models.PhaseConnecting:
		if match.ReadyOf(role) {
			return match, nil
		}
	default:
		return nil, ErrInvalidPhase
	}

	field := repositories.FieldJoinerReady
	if role == models.RoleInitiator {
		field = repositories.FieldInitiatorReady
	}
	updated, err := s.matches.Update(ctx, code, repositories.MatchUpdate{
		Where: []repositories.Condition{repositories.Equals(repositories.FieldPhase, models.PhaseConnecting)},
		Set:   map[repositories.MatchField]any{field: true},
	})
	if errors.Is(err, repositories.ErrConditionFailed) {
		return getMatch(ctx, s.matches, code)
	}
	if err != nil {
		return nil, handleRepositoryError(err, code, "mark ready in")
	}
	return updated, nil
}

func (s *matchService) AdvanceToCountdown(ctx context.Context, code, callerID string) (*models.MatchRecord, error) {
	match, err := getMatch(ctx, s.matches, code)
	if err != nil {
		return nil, err
	}
	if match.InitiatorID != callerID {
		return nil, ErrForbiddenOperation
	}
	switch match.Phase {
	case models.PhaseCountdown, models.PhasePlaying, models.PhaseCompleted:
		return match, nil
	case models.PhaseConnecting:
	default:
		return nil, ErrInvalidPhase
	}
	if !match.InitiatorReady || !match.JoinerReady {
		return nil, ErrHandshakeIncomplete
	}

	return s.advance(ctx, code, models.PhaseConnecting, models.PhaseCountdown,
		repositories.Equals(repositories.FieldInitiatorReady, true),
		repositories.Equals(repositories.FieldJoinerReady, true),
	)
}

func (s *matchService) AdvanceToPlaying(ctx context.Context, code, callerID string) (*models.MatchRecord, error) {
	match, err := getMatch(ctx, s.matches, code)
	if err != nil {
		return nil, err
	}
	if match.InitiatorID != callerID {
		return nil, ErrForbiddenOperation
	}
	switch match.Phase {
	case models.PhasePlaying, models.PhaseCompleted:
		return match, nil
	case models.PhaseCountdown:
	default:
		return nil, ErrInvalidPhase
	}
	return s.advance(ctx, code, models.PhaseCountdown, models.PhasePlaying)
}

// advance двигает фазу from -> to; проигравший гонку получает актуальную запись.
func (s *matchService) advance(ctx context.Context, code string, from, to models.MatchPhase, extra ...repositories.Condition) (*models.MatchRecord, error) {
	where := append([]repositories.Condition{repositories.Equals(repositories.FieldPhase, from)}, extra...)
	updated, err := s.matches.Update(ctx, code, repositories.MatchUpdate{
		Where:      where,
		Set:        map[repositories.MatchField]any{repositories.FieldPhase: to},
		Transition: true,
	})
	if errors.Is(err, repositories.ErrConditionFailed) {
		current, getErr := getMatch(ctx, s.matches, code)
		if getErr != nil {
			return nil, getErr
		}
		if current.Phase == models.PhaseAbandoned {
			return nil, ErrMatchUnavailable
		}
		return current, nil
	}
	if err != nil {
		return nil, handleRepositoryError(err, code, "advance")
	}
	s.logger.Info("match phase advanced",
		slog.String("code", code), slog.String("from", string(from)), slog.String("to", string(to)))
	return updated, nil
}

func (s *matchService) CancelMatch(ctx context.Context, code, callerID string) (*models.MatchRecord, error) {
	match, err := getMatch(ctx, s.matches, code)
	if err != nil {
		return nil, err
	}
	if _, ok := match.RoleOf(callerID); !ok {
		return nil, ErrNotParticipant
	}
	if match.Phase == models.PhaseAbandoned {
		return s.escrow.RefundMatch(ctx, code)
	}
	if !match.Phase.Cancelable() {
		return nil, ErrInvalidPhase
	}

	s.logger.Info("match canceled", slog.String("code", code), slog.String("by", callerID))
	return s.abandon(ctx, code, []models.MatchPhase{models.PhaseWaiting, models.PhaseConnecting}, nil)
}

func (s *matchService) AbandonStale(ctx context.Context, code string, phase models.MatchPhase, cutoff time.Time) (bool, error) {
	match, err := getMatch(ctx, s.matches, code)
	if err != nil {
		return false, err
	}
	if match.Phase != phase || !match.LastTransitionAt.Before(cutoff) {
		return false, nil
	}
	cond := repositories.Equals(repositories.FieldLastTransitionAt, match.LastTransitionAt)

	_, err = s.abandon(ctx, code, []models.MatchPhase{phase}, &cond)
	if errors.Is(err, ErrMatchUnavailable) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	s.logger.Warn("stale match abandoned", slog.String("code", code), slog.String("phase", string(phase)))
	return true, nil
}

func (s *matchService) abandon(ctx context.Context, code string, from []models.MatchPhase, extra *repositories.Condition) (*models.MatchRecord, error) {
	phases := make([]any, len(from))
	for i, p := range from {
		phases[i] = p
	}
	where := []repositories.Condition{repositories.OneOf(repositories.FieldPhase, phases...)}
	if extra != nil {
		where = append(where, *extra)
	}

	_, err := s.matches.Update(ctx, code, repositories.MatchUpdate{
		Where:      where,
		Set:        map[repositories.MatchField]any{repositories.FieldPhase: models.PhaseAbandoned},
		Transition: true,
	})
	if err != nil {
		return nil, handleRepositoryError(err, code, "abandon")
	}
	return s.escrow.RefundMatch(ctx, code)
}
