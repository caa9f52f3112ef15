// Package coordinator drives one participant's side of a match. There is no
// arbiter process: each participant runs a Client that subscribes to the shared
// record and reacts to every change it observes.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Dosada05/wager-match/games"
	"github.com/Dosada05/wager-match/models"
	"github.com/Dosada05/wager-match/repositories"
	"github.com/Dosada05/wager-match/services"
	"github.com/jonboulle/clockwork"
)

const DefaultCountdown = 3 * time.Second

var ErrSubscriptionClosed = errors.New("match subscription closed")

// Watcher is the subscription half of the match store.
type Watcher interface {
	Subscribe(ctx context.Context, code string) (<-chan *models.MatchRecord, error)
}

type Config struct {
	ParticipantID string
	Module        games.Module
	Countdown     time.Duration
	Clock         clockwork.Clock
	Logger        *slog.Logger
}

type Client struct {
	participantID string
	module        games.Module
	countdown     time.Duration
	clock         clockwork.Clock
	logger        *slog.Logger

	watcher Watcher
	matches services.MatchService
	scores  services.ScoreService
	escrow  services.EscrowService
}

func NewClient(
	cfg Config,
	watcher Watcher,
	matches services.MatchService,
	scores services.ScoreService,
	escrow services.EscrowService,
) *Client {
	if cfg.Countdown <= 0 {
		cfg.Countdown = DefaultCountdown
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		participantID: cfg.ParticipantID,
		module:        cfg.Module,
		countdown:     cfg.Countdown,
		clock:         cfg.Clock,
		logger:        cfg.Logger.With(slog.String("participant_id", cfg.ParticipantID)),
		watcher:       watcher,
		matches:       matches,
		scores:        scores,
		escrow:        escrow,
	}
}

// Host creates a match and returns its code for sharing with the opponent.
func (c *Client) Host(ctx context.Context, gameType models.GameType, stake int64, currency string) (*models.MatchRecord, error) {
	match, err := c.matches.CreateMatch(ctx, c.participantID, gameType)
	if err != nil {
		return nil, err
	}
	if stake <= 0 || (stake == match.StakeAmount && (currency == "" || currency == match.StakeCurrency)) {
		return match, nil
	}
	if currency == "" {
		currency = match.StakeCurrency
	}
	return c.matches.SetStake(ctx, match.Code, c.participantID, stake, currency)
}

// Join joins the match identified by code.
func (c *Client) Join(ctx context.Context, code string) (*models.MatchRecord, error) {
	return c.matches.JoinMatch(ctx, code, c.participantID)
}

// session holds what this client has already started locally.
type session struct {
	role         models.ParticipantRole
	countdown    <-chan time.Time
	moduleRan    bool
	scoreCh      chan float64
	settleTried  bool
	lastObserved models.MatchPhase
}

// Run follows the match until it reaches a terminal phase and returns the final
// record. The subscription is opened before the first read so no change between
// the two is lost.
func (c *Client) Run(ctx context.Context, code string) (*models.MatchRecord, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	updates, err := c.watcher.Subscribe(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to match %s: %w", code, err)
	}
	match, err := c.matches.GetMatch(ctx, code)
	if err != nil {
		return nil, err
	}
	role, ok := match.RoleOf(c.participantID)
	if !ok {
		return nil, services.ErrNotParticipant
	}

	s := &session{role: role, scoreCh: make(chan float64, 1)}
	for {
		next, err := c.react(ctx, s, match)
		if err != nil {
			return nil, err
		}
		if next.Phase.IsTerminal() {
			c.logger.Info("match finished",
				slog.String("code", code), slog.String("phase", string(next.Phase)),
				slog.String("winner_id", derefString(next.WinnerID)))
			return next, nil
		}
		if next != match {
			// Собственная запись: реагируем на нее сразу, не дожидаясь уведомления.
			match = next
			continue
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case m, ok := <-updates:
			if !ok {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				return nil, ErrSubscriptionClosed
			}
			match = m
		case <-s.countdown:
			s.countdown = nil
			match, err = c.matches.AdvanceToPlaying(ctx, code, c.participantID)
			if errors.Is(err, services.ErrMatchUnavailable) {
				match, err = c.matches.GetMatch(ctx, code)
			}
			if err != nil {
				return nil, fmt.Errorf("failed to start play: %w", err)
			}
		case score := <-s.scoreCh:
			match, err = c.submit(ctx, code, score)
			if err != nil {
				return nil, err
			}
		}
	}
}

// react performs at most one write for the observed record. It returns the record
// it wrote, or the same pointer when there was nothing to do.
func (c *Client) react(ctx context.Context, s *session, m *models.MatchRecord) (*models.MatchRecord, error) {
	if m.Phase != s.lastObserved {
		c.logger.Debug("match phase observed", slog.String("code", m.Code), slog.String("phase", string(m.Phase)))
		s.lastObserved = m.Phase
	}

	switch m.Phase {
	case models.PhaseConnecting:
		if !m.ReadyOf(s.role) {
			return c.matches.MarkReady(ctx, m.Code, c.participantID)
		}
		if s.role == models.RoleInitiator && m.InitiatorReady && m.JoinerReady {
			return c.matches.AdvanceToCountdown(ctx, m.Code, c.participantID)
		}

	case models.PhaseCountdown:
		if s.role == models.RoleInitiator && s.countdown == nil {
			s.countdown = c.clock.After(c.countdown)
		}

	case models.PhasePlaying:
		if !s.moduleRan && m.ScoreOf(s.role) == nil {
			s.moduleRan = true
			c.startModule(ctx, s)
		}
		if m.BothScored() && m.SettlementState == models.SettlementEscrowed && !s.settleTried {
			s.settleTried = true
			settled, err := c.escrow.SettleMatch(ctx, m.Code)
			if err != nil && !errors.Is(err, services.ErrSettlementConflict) {
				return nil, fmt.Errorf("failed to settle match %s: %w", m.Code, err)
			}
			if settled != nil {
				return settled, nil
			}
		}
	}
	return m, nil
}

func (c *Client) startModule(ctx context.Context, s *session) {
	if c.module == nil {
		c.logger.Warn("no scoring module configured")
		return
	}
	c.module.Run(ctx, func(score float64) {
		select {
		case s.scoreCh <- score:
		default:
		}
	})
}

func (c *Client) submit(ctx context.Context, code string, score float64) (*models.MatchRecord, error) {
	match, err := c.scores.SubmitScore(ctx, code, c.participantID, score)
	switch {
	case err == nil:
		return match, nil
	case errors.Is(err, services.ErrScoreAlreadySubmitted):
		if match != nil {
			return match, nil
		}
		return c.matches.GetMatch(ctx, code)
	case errors.Is(err, services.ErrInvalidPhase), errors.Is(err, services.ErrMatchUnavailable):
		// Матч ушел из playing (например, по таймауту): результат больше не нужен.
		return c.matches.GetMatch(ctx, code)
	default:
		return nil, fmt.Errorf("failed to submit score: %w", err)
	}
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

var _ Watcher = repositories.MatchRepository(nil)
