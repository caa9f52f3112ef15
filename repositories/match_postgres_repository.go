package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Dosada05/wager-match/models"
	"github.com/lib/pq"
)

type postgresMatchRepository struct {
	db   *sql.DB
	feed *PostgresMatchFeed
}

// NewPostgresMatchRepository returns a store backed by the matches table. feed may be
// nil, in which case Subscribe is unavailable.
func NewPostgresMatchRepository(db *sql.DB, feed *PostgresMatchFeed) MatchRepository {
	return &postgresMatchRepository{db: db, feed: feed}
}

func (r *postgresMatchRepository) Create(ctx context.Context, match *models.MatchRecord) error {
	query := `
		INSERT INTO matches
			(code, phase, game_type, stake_amount, stake_currency, initiator_id, settlement_state,
			 created_at, last_transition_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		RETURNING created_at, last_transition_at`

	err := r.db.QueryRowContext(ctx, query,
		match.Code,
		match.Phase,
		match.GameType,
		match.StakeAmount,
		match.StakeCurrency,
		match.InitiatorID,
		match.SettlementState,
	).Scan(&match.CreatedAt, &match.LastTransitionAt)

	return r.handleMatchError(err)
}

func (r *postgresMatchRepository) GetByCode(ctx context.Context, code string) (*models.MatchRecord, error) {
	query := `SELECT ` + matchColumns + ` FROM matches WHERE code = $1`

	match, err := scanMatch(r.db.QueryRowContext(ctx, query, code))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMatchNotFound
		}
		return nil, fmt.Errorf("failed to scan match by code %s: %w", code, err)
	}
	return match, nil
}

func (r *postgresMatchRepository) Update(ctx context.Context, code string, upd MatchUpdate) (*models.MatchRecord, error) {
	query, args, err := buildMatchUpdateQuery(code, upd)
	if err != nil {
		return nil, err
	}

	match, err := scanMatch(r.db.QueryRowContext(ctx, query, args...))
	if err == nil {
		return match, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to update match %s: %w", code, r.handleMatchError(err))
	}

	// Ни одна строка не обновилась: либо матча нет, либо не выполнено условие.
	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM matches WHERE code = $1)`, code).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check match %s existence: %w", code, err)
	}
	if !exists {
		return nil, ErrMatchNotFound
	}
	return nil, ErrConditionFailed
}

func (r *postgresMatchRepository) ListStale(ctx context.Context, phases []models.MatchPhase, before time.Time) ([]*models.MatchRecord, error) {
	phaseNames := make([]string, len(phases))
	for i, p := range phases {
		phaseNames[i] = string(p)
	}

	query := `SELECT ` + matchColumns + `
		FROM matches
		WHERE phase = ANY($1) AND last_transition_at < $2
		ORDER BY last_transition_at ASC`

	return r.queryMatches(ctx, query, pq.Array(phaseNames), before)
}

func (r *postgresMatchRepository) ListPendingRefunds(ctx context.Context) ([]*models.MatchRecord, error) {
	query := `SELECT ` + matchColumns + `
		FROM matches
		WHERE phase = $1 AND settlement_state = $2
		ORDER BY last_transition_at ASC`

	return r.queryMatches(ctx, query, models.PhaseAbandoned, models.SettlementEscrowed)
}

func (r *postgresMatchRepository) queryMatches(ctx context.Context, query string, args ...any) ([]*models.MatchRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query matches: %w", err)
	}
	defer rows.Close()

	matches := make([]*models.MatchRecord, 0)
	for rows.Next() {
		match, scanErr := scanMatch(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan match row: %w", scanErr)
		}
		matches = append(matches, match)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during match rows iteration: %w", err)
	}
	return matches, nil
}

func (r *postgresMatchRepository) Subscribe(ctx context.Context, code string) (<-chan *models.MatchRecord, error) {
	if r.feed == nil {
		return nil, errors.New("match change feed is not configured")
	}

	changes := r.feed.watch(ctx, code)
	out := make(chan *models.MatchRecord, 1)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-changes:
				if !ok {
					return
				}
				match, err := r.GetByCode(ctx, code)
				if err != nil {
					if ctx.Err() == nil {
						r.feed.logger.Warn("failed to reload match after notification",
							"code", code, "error", err)
					}
					continue
				}
				offerLatest(out, match)
			}
		}
	}()
	return out, nil
}

func (r *postgresMatchRepository) handleMatchError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// "23505": unique_violation
		if pqErr.Code == "23505" && pqErr.Constraint == "matches_pkey" {
			return ErrMatchCodeConflict
		}
	}
	return err
}

// offerLatest hands rec to a single-slot channel, replacing any undelivered older value.
func offerLatest(ch chan *models.MatchRecord, rec *models.MatchRecord) {
	for {
		select {
		case ch <- rec:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
