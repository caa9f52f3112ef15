package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Dosada05/wager-match/models"
	"github.com/Dosada05/wager-match/repositories"
	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
)

type SweeperConfig struct {
	// AbandonAfter - сколько матч может простоять в waiting/connecting/countdown.
	AbandonAfter time.Duration
	// PlayingTimeout - сколько ждать результатов после перехода в playing.
	PlayingTimeout time.Duration
	Interval       time.Duration
	Concurrency    int
}

// SweepReport counts what one sweep did.
type SweepReport struct {
	Abandoned int64
	Forfeited int64
	Refunded  int64
	Failed    int64
}

// Sweeper periodically resolves matches that clients left behind: stale lobbies,
// playing matches whose scores never arrived and refunds that did not complete.
type Sweeper struct {
	matches repositories.MatchRepository
	match   MatchService
	escrow  EscrowService
	cfg     SweeperConfig
	clock   clockwork.Clock
	logger  *slog.Logger

	scheduler gocron.Scheduler
}

func NewSweeper(
	matches repositories.MatchRepository,
	match MatchService,
	escrow EscrowService,
	cfg SweeperConfig,
	clock clockwork.Clock,
	logger *slog.Logger,
) *Sweeper {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &Sweeper{
		matches: matches,
		match:   match,
		escrow:  escrow,
		cfg:     cfg,
		clock:   clock,
		logger:  logger,
	}
}

// Start runs SweepOnce every Interval until Stop is called or ctx is done.
func (s *Sweeper) Start(ctx context.Context) error {
	if s.cfg.Interval <= 0 {
		return fmt.Errorf("sweep interval must be positive, got %s", s.cfg.Interval)
	}
	scheduler, err := gocron.NewScheduler(gocron.WithClock(s.clock))
	if err != nil {
		return fmt.Errorf("failed to create sweep scheduler: %w", err)
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(s.cfg.Interval),
		gocron.NewTask(func() {
			if ctx.Err() != nil {
				return
			}
			report, err := s.SweepOnce(ctx)
			if err != nil {
				s.logger.Error("match sweep failed", slog.Any("error", err))
				return
			}
			if report != (SweepReport{}) {
				s.logger.Info("match sweep finished",
					slog.Int64("abandoned", report.Abandoned),
					slog.Int64("forfeited", report.Forfeited),
					slog.Int64("refunded", report.Refunded),
					slog.Int64("failed", report.Failed))
			}
		}),
		gocron.WithName("match-sweeper"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		_ = scheduler.Shutdown()
		return fmt.Errorf("failed to schedule match sweep: %w", err)
	}

	s.scheduler = scheduler
	scheduler.Start()
	s.logger.Info("match sweeper started", slog.Duration("interval", s.cfg.Interval))
	return nil
}

func (s *Sweeper) Stop() error {
	if s.scheduler == nil {
		return nil
	}
	return s.scheduler.Shutdown()
}

// SweepOnce runs a single pass. Individual match failures are logged and counted;
// only listing errors abort the pass.
func (s *Sweeper) SweepOnce(ctx context.Context) (SweepReport, error) {
	var abandoned, forfeited, refunded, failed atomic.Int64
	now := s.clock.Now()

	stale, err := s.matches.ListStale(ctx,
		[]models.MatchPhase{models.PhaseWaiting, models.PhaseConnecting, models.PhaseCountdown},
		now.Add(-s.cfg.AbandonAfter))
	if err != nil {
		return SweepReport{}, fmt.Errorf("failed to list stale matches: %w", err)
	}
	timedOut, err := s.matches.ListStale(ctx, []models.MatchPhase{models.PhasePlaying}, now.Add(-s.cfg.PlayingTimeout))
	if err != nil {
		return SweepReport{}, fmt.Errorf("failed to list timed out matches: %w", err)
	}
	pending, err := s.matches.ListPendingRefunds(ctx)
	if err != nil {
		return SweepReport{}, fmt.Errorf("failed to list pending refunds: %w", err)
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)

	for _, m := range stale {
		m := m
		g.Go(func() error {
			ok, err := s.match.AbandonStale(gCtx, m.Code, m.Phase, now.Add(-s.cfg.AbandonAfter))
			if err != nil {
				failed.Add(1)
				s.logger.Warn("failed to abandon stale match", slog.String("code", m.Code), slog.Any("error", err))
				return nil
			}
			if ok {
				abandoned.Add(1)
			}
			return nil
		})
	}
	for _, m := range timedOut {
		m := m
		g.Go(func() error {
			if _, err := s.escrow.ForfeitMatch(gCtx, m.Code); err != nil && !errors.Is(err, ErrSettlementConflict) {
				failed.Add(1)
				s.logger.Warn("failed to resolve timed out match", slog.String("code", m.Code), slog.Any("error", err))
				return nil
			}
			forfeited.Add(1)
			return nil
		})
	}
	for _, m := range pending {
		m := m
		g.Go(func() error {
			if _, err := s.escrow.RefundMatch(gCtx, m.Code); err != nil {
				failed.Add(1)
				s.logger.Warn("failed to retry refund", slog.String("code", m.Code), slog.Any("error", err))
				return nil
			}
			refunded.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return SweepReport{}, err
	}

	return SweepReport{
		Abandoned: abandoned.Load(),
		Forfeited: forfeited.Load(),
		Refunded:  refunded.Load(),
		Failed:    failed.Load(),
	}, nil
}
