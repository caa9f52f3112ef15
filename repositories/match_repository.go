package repositories

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Dosada05/wager-match/models"
)

var (
	ErrMatchNotFound     = errors.New("match not found")
	ErrMatchCodeConflict = errors.New("match code already in use")
	ErrConditionFailed   = errors.New("match update precondition failed")
	ErrUnknownMatchField = errors.New("unknown match field")
)

// MatchField names a single column of the shared match document.
type MatchField string

const (
	FieldPhase            MatchField = "phase"
	FieldStakeAmount      MatchField = "stake_amount"
	FieldStakeCurrency    MatchField = "stake_currency"
	FieldInitiatorID      MatchField = "initiator_id"
	FieldJoinerID         MatchField = "joiner_id"
	FieldPot              MatchField = "pot"
	FieldPayout           MatchField = "payout"
	FieldFee              MatchField = "fee"
	FieldInitiatorReady   MatchField = "initiator_ready"
	FieldJoinerReady      MatchField = "joiner_ready"
	FieldInitiatorEscrow  MatchField = "initiator_escrowed"
	FieldJoinerEscrow     MatchField = "joiner_escrowed"
	FieldInitiatorScore   MatchField = "initiator_score"
	FieldJoinerScore      MatchField = "joiner_score"
	FieldInitiatorScoreAt MatchField = "initiator_scored_at"
	FieldJoinerScoreAt    MatchField = "joiner_scored_at"
	FieldWinnerID         MatchField = "winner_id"
	FieldSettlementState  MatchField = "settlement_state"
	FieldLastTransitionAt MatchField = "last_transition_at"
	FieldCompletedAt      MatchField = "completed_at"
)

var knownMatchFields = map[MatchField]struct{}{
	FieldPhase: {}, FieldStakeAmount: {}, FieldStakeCurrency: {}, FieldInitiatorID: {},
	FieldJoinerID: {}, FieldPot: {}, FieldPayout: {}, FieldFee: {},
	FieldInitiatorReady: {}, FieldJoinerReady: {}, FieldInitiatorEscrow: {}, FieldJoinerEscrow: {},
	FieldInitiatorScore: {}, FieldJoinerScore: {}, FieldInitiatorScoreAt: {}, FieldJoinerScoreAt: {},
	FieldWinnerID: {}, FieldSettlementState: {}, FieldLastTransitionAt: {}, FieldCompletedAt: {},
}

type conditionOp int

const (
	opEquals conditionOp = iota
	opAbsent
	opOneOf
)

// Condition is one precondition of a conditional update.
type Condition struct {
	Field  MatchField
	op     conditionOp
	values []any
}

// Equals holds when field currently equals value.
func Equals(field MatchField, value any) Condition {
	return Condition{Field: field, op: opEquals, values: []any{value}}
}

// Absent holds when field is currently unset (NULL).
func Absent(field MatchField) Condition {
	return Condition{Field: field, op: opAbsent}
}

// OneOf holds when field currently equals any of values.
func OneOf(field MatchField, values ...any) Condition {
	return Condition{Field: field, op: opOneOf, values: values}
}

type storeTime struct{}

// StoreNow asks the store to write its own current time into a field.
var StoreNow = storeTime{}

// MatchUpdate is a field-level conditional write: every Where condition must hold
// at write time or nothing is written. Set values of nil clear the field.
type MatchUpdate struct {
	Where []Condition
	Set   map[MatchField]any
	// Transition stamps last_transition_at with the store time.
	Transition bool
}

func (u MatchUpdate) validate() error {
	if len(u.Set) == 0 && !u.Transition {
		return errors.New("match update has nothing to set")
	}
	for f := range u.Set {
		if _, ok := knownMatchFields[f]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownMatchField, f)
		}
	}
	for _, c := range u.Where {
		if _, ok := knownMatchFields[c.Field]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownMatchField, c.Field)
		}
	}
	return nil
}

func (u MatchUpdate) sortedSetFields() []MatchField {
	fields := make([]MatchField, 0, len(u.Set))
	for f := range u.Set {
		fields = append(fields, f)
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i] < fields[j] })
	return fields
}

// MatchRepository is the shared match record store. Every mutation is a
// conditional field-level write; there is no whole-document overwrite.
type MatchRepository interface {
	Create(ctx context.Context, match *models.MatchRecord) error
	GetByCode(ctx context.Context, code string) (*models.MatchRecord, error)
	Update(ctx context.Context, code string, upd MatchUpdate) (*models.MatchRecord, error)
	ListStale(ctx context.Context, phases []models.MatchPhase, before time.Time) ([]*models.MatchRecord, error)
	// ListPendingRefunds returns abandoned matches whose escrow has not been returned yet.
	ListPendingRefunds(ctx context.Context) ([]*models.MatchRecord, error)
	// Subscribe delivers the latest record after each change until ctx is done.
	// Intermediate versions may be skipped; the newest one is always delivered.
	Subscribe(ctx context.Context, code string) (<-chan *models.MatchRecord, error)
}

const matchColumns = `code, phase, game_type, stake_amount, stake_currency, initiator_id, joiner_id,
		pot, payout, fee, initiator_ready, joiner_ready, initiator_escrowed, joiner_escrowed,
		initiator_score, joiner_score, initiator_scored_at, joiner_scored_at, winner_id,
		settlement_state, created_at, last_transition_at, completed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMatch(row rowScanner) (*models.MatchRecord, error) {
	m := &models.MatchRecord{}
	err := row.Scan(
		&m.Code,
		&m.Phase,
		&m.GameType,
		&m.StakeAmount,
		&m.StakeCurrency,
		&m.InitiatorID,
		&m.JoinerID,
		&m.Pot,
		&m.Payout,
		&m.Fee,
		&m.InitiatorReady,
		&m.JoinerReady,
		&m.InitiatorEscrow,
		&m.JoinerEscrow,
		&m.InitiatorScore,
		&m.JoinerScore,
		&m.InitiatorScoreAt,
		&m.JoinerScoreAt,
		&m.WinnerID,
		&m.SettlementState,
		&m.CreatedAt,
		&m.LastTransitionAt,
		&m.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// buildMatchUpdateQuery renders upd as a single UPDATE ... WHERE statement so the
// preconditions and the write are applied atomically by postgres.
func buildMatchUpdateQuery(code string, upd MatchUpdate) (string, []any, error) {
	if err := upd.validate(); err != nil {
		return "", nil, err
	}

	var qb strings.Builder
	args := make([]any, 0, len(upd.Set)+len(upd.Where)+1)
	placeholder := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	qb.WriteString("UPDATE matches SET ")
	assignments := make([]string, 0, len(upd.Set)+1)
	for _, f := range upd.sortedSetFields() {
		v := upd.Set[f]
		switch v.(type) {
		case storeTime:
			assignments = append(assignments, string(f)+" = now()")
		case nil:
			assignments = append(assignments, string(f)+" = NULL")
		default:
			assignments = append(assignments, string(f)+" = "+placeholder(v))
		}
	}
	if upd.Transition {
		if _, explicit := upd.Set[FieldLastTransitionAt]; !explicit {
			assignments = append(assignments, string(FieldLastTransitionAt)+" = now()")
		}
	}
	qb.WriteString(strings.Join(assignments, ", "))

	qb.WriteString(" WHERE code = ")
	qb.WriteString(placeholder(code))
	for _, c := range upd.Where {
		qb.WriteString(" AND ")
		switch c.op {
		case opAbsent:
			qb.WriteString(string(c.Field) + " IS NULL")
		case opEquals:
			qb.WriteString(string(c.Field) + " = " + placeholder(c.values[0]))
		case opOneOf:
			if len(c.values) == 0 {
				qb.WriteString("FALSE")
				continue
			}
			ph := make([]string, len(c.values))
			for i, v := range c.values {
				ph[i] = placeholder(v)
			}
			qb.WriteString(string(c.Field) + " IN (" + strings.Join(ph, ", ") + ")")
		}
	}
	qb.WriteString(" RETURNING ")
	qb.WriteString(matchColumns)

	return qb.String(), args, nil
}
