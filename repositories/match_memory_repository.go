package repositories

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Dosada05/wager-match/models"
	"github.com/jonboulle/clockwork"
)

// memoryMatchRepository keeps the shared documents in process. It honours the same
// conditional-update contract as the postgres store and is used by tests and by
// single-process deployments.
type memoryMatchRepository struct {
	clock clockwork.Clock

	mu          sync.Mutex
	matches     map[string]*models.MatchRecord
	subscribers map[string]map[chan *models.MatchRecord]struct{}
}

func NewMemoryMatchRepository(clock clockwork.Clock) MatchRepository {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &memoryMatchRepository{
		clock:       clock,
		matches:     make(map[string]*models.MatchRecord),
		subscribers: make(map[string]map[chan *models.MatchRecord]struct{}),
	}
}

func (r *memoryMatchRepository) Create(ctx context.Context, match *models.MatchRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.matches[match.Code]; exists {
		return ErrMatchCodeConflict
	}
	now := r.clock.Now()
	match.CreatedAt = now
	match.LastTransitionAt = now
	r.matches[match.Code] = cloneMatch(match)
	r.publishLocked(match.Code)
	return nil
}

func (r *memoryMatchRepository) GetByCode(ctx context.Context, code string) (*models.MatchRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	match, ok := r.matches[code]
	if !ok {
		return nil, ErrMatchNotFound
	}
	return cloneMatch(match), nil
}

func (r *memoryMatchRepository) Update(ctx context.Context, code string, upd MatchUpdate) (*models.MatchRecord, error) {
	if err := upd.validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.matches[code]
	if !ok {
		return nil, ErrMatchNotFound
	}
	for _, c := range upd.Where {
		if !conditionHolds(current, c) {
			return nil, ErrConditionFailed
		}
	}

	next := cloneMatch(current)
	now := r.clock.Now()
	for _, f := range upd.sortedSetFields() {
		if err := setMatchField(next, f, upd.Set[f], now); err != nil {
			return nil, err
		}
	}
	if upd.Transition {
		if _, explicit := upd.Set[FieldLastTransitionAt]; !explicit {
			next.LastTransitionAt = now
		}
	}

	r.matches[code] = next
	r.publishLocked(code)
	return cloneMatch(next), nil
}

func (r *memoryMatchRepository) ListStale(ctx context.Context, phases []models.MatchPhase, before time.Time) ([]*models.MatchRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	wanted := make(map[models.MatchPhase]bool, len(phases))
	for _, p := range phases {
		wanted[p] = true
	}

	matches := make([]*models.MatchRecord, 0)
	for _, m := range r.matches {
		if wanted[m.Phase] && m.LastTransitionAt.Before(before) {
			matches = append(matches, cloneMatch(m))
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].LastTransitionAt.Before(matches[j].LastTransitionAt)
	})
	return matches, nil
}

func (r *memoryMatchRepository) ListPendingRefunds(ctx context.Context) ([]*models.MatchRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	matches := make([]*models.MatchRecord, 0)
	for _, m := range r.matches {
		if m.Phase == models.PhaseAbandoned && m.SettlementState == models.SettlementEscrowed {
			matches = append(matches, cloneMatch(m))
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].LastTransitionAt.Before(matches[j].LastTransitionAt)
	})
	return matches, nil
}

func (r *memoryMatchRepository) Subscribe(ctx context.Context, code string) (<-chan *models.MatchRecord, error) {
	ch := make(chan *models.MatchRecord, 1)

	r.mu.Lock()
	if _, ok := r.subscribers[code]; !ok {
		r.subscribers[code] = make(map[chan *models.MatchRecord]struct{})
	}
	r.subscribers[code][ch] = struct{}{}
	r.mu.Unlock()

	go func() {
		<-ctx.Done()
		r.mu.Lock()
		delete(r.subscribers[code], ch)
		if len(r.subscribers[code]) == 0 {
			delete(r.subscribers, code)
		}
		close(ch)
		r.mu.Unlock()
	}()
	return ch, nil
}

func (r *memoryMatchRepository) publishLocked(code string) {
	match, ok := r.matches[code]
	if !ok {
		return
	}
	for ch := range r.subscribers[code] {
		offerLatest(ch, cloneMatch(match))
	}
}

func conditionHolds(m *models.MatchRecord, c Condition) bool {
	current := matchFieldValue(m, c.Field)
	switch c.op {
	case opAbsent:
		return current == nil
	case opEquals:
		return current != nil && current == canonicalValue(c.values[0])
	case opOneOf:
		if current == nil {
			return false
		}
		for _, v := range c.values {
			if current == canonicalValue(v) {
				return true
			}
		}
	}
	return false
}

// canonicalValue folds named types into the plain kinds matchFieldValue returns.
func canonicalValue(v any) any {
	switch x := v.(type) {
	case models.MatchPhase:
		return string(x)
	case models.SettlementState:
		return string(x)
	case models.GameType:
		return string(x)
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case float32:
		return float64(x)
	case time.Time:
		return x.UnixNano()
	case *string:
		if x == nil {
			return nil
		}
		return *x
	}
	return v
}

func matchFieldValue(m *models.MatchRecord, f MatchField) any {
	switch f {
	case FieldPhase:
		return string(m.Phase)
	case FieldStakeAmount:
		return m.StakeAmount
	case FieldStakeCurrency:
		return m.StakeCurrency
	case FieldInitiatorID:
		return m.InitiatorID
	case FieldJoinerID:
		return derefAny(m.JoinerID)
	case FieldPot:
		return derefAny(m.Pot)
	case FieldPayout:
		return derefAny(m.Payout)
	case FieldFee:
		return derefAny(m.Fee)
	case FieldInitiatorReady:
		return m.InitiatorReady
	case FieldJoinerReady:
		return m.JoinerReady
	case FieldInitiatorEscrow:
		return m.InitiatorEscrow
	case FieldJoinerEscrow:
		return m.JoinerEscrow
	case FieldInitiatorScore:
		return derefAny(m.InitiatorScore)
	case FieldJoinerScore:
		return derefAny(m.JoinerScore)
	case FieldInitiatorScoreAt:
		return timeAny(m.InitiatorScoreAt)
	case FieldJoinerScoreAt:
		return timeAny(m.JoinerScoreAt)
	case FieldWinnerID:
		return derefAny(m.WinnerID)
	case FieldSettlementState:
		return string(m.SettlementState)
	case FieldLastTransitionAt:
		return m.LastTransitionAt.UnixNano()
	case FieldCompletedAt:
		return timeAny(m.CompletedAt)
	}
	return nil
}

func derefAny[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

func timeAny(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixNano()
}

func setMatchField(m *models.MatchRecord, f MatchField, v any, now time.Time) error {
	if _, ok := v.(storeTime); ok {
		v = now
	}

	var err error
	switch f {
	case FieldPhase:
		var s string
		if s, err = asString(f, v); err == nil {
			m.Phase = models.MatchPhase(s)
		}
	case FieldStakeAmount:
		var n int64
		if n, err = asInt64(f, v); err == nil {
			m.StakeAmount = n
		}
	case FieldStakeCurrency:
		m.StakeCurrency, err = asString(f, v)
	case FieldInitiatorID:
		m.InitiatorID, err = asString(f, v)
	case FieldJoinerID:
		m.JoinerID, err = asOptional(f, v, asString)
	case FieldPot:
		m.Pot, err = asOptional(f, v, asInt64)
	case FieldPayout:
		m.Payout, err = asOptional(f, v, asInt64)
	case FieldFee:
		m.Fee, err = asOptional(f, v, asInt64)
	case FieldInitiatorReady:
		m.InitiatorReady, err = asBool(f, v)
	case FieldJoinerReady:
		m.JoinerReady, err = asBool(f, v)
	case FieldInitiatorEscrow:
		m.InitiatorEscrow, err = asBool(f, v)
	case FieldJoinerEscrow:
		m.JoinerEscrow, err = asBool(f, v)
	case FieldInitiatorScore:
		m.InitiatorScore, err = asOptional(f, v, asFloat64)
	case FieldJoinerScore:
		m.JoinerScore, err = asOptional(f, v, asFloat64)
	case FieldInitiatorScoreAt:
		m.InitiatorScoreAt, err = asOptional(f, v, asTime)
	case FieldJoinerScoreAt:
		m.JoinerScoreAt, err = asOptional(f, v, asTime)
	case FieldWinnerID:
		m.WinnerID, err = asOptional(f, v, asString)
	case FieldSettlementState:
		var s string
		if s, err = asString(f, v); err == nil {
			m.SettlementState = models.SettlementState(s)
		}
	case FieldLastTransitionAt:
		m.LastTransitionAt, err = asTime(f, v)
	case FieldCompletedAt:
		m.CompletedAt, err = asOptional(f, v, asTime)
	default:
		err = fmt.Errorf("%w: %s", ErrUnknownMatchField, f)
	}
	return err
}

func asOptional[T any](f MatchField, v any, conv func(MatchField, any) (T, error)) (*T, error) {
	if v == nil {
		return nil, nil
	}
	x, err := conv(f, v)
	if err != nil {
		return nil, err
	}
	return &x, nil
}

func asString(f MatchField, v any) (string, error) {
	switch x := canonicalValue(v).(type) {
	case string:
		return x, nil
	}
	return "", fmt.Errorf("field %s: expected string, got %T", f, v)
}

func asInt64(f MatchField, v any) (int64, error) {
	switch x := canonicalValue(v).(type) {
	case int64:
		return x, nil
	}
	return 0, fmt.Errorf("field %s: expected integer, got %T", f, v)
}

func asFloat64(f MatchField, v any) (float64, error) {
	switch x := canonicalValue(v).(type) {
	case float64:
		return x, nil
	case int64:
		return float64(x), nil
	}
	return 0, fmt.Errorf("field %s: expected number, got %T", f, v)
}

func asBool(f MatchField, v any) (bool, error) {
	if x, ok := v.(bool); ok {
		return x, nil
	}
	return false, fmt.Errorf("field %s: expected bool, got %T", f, v)
}

func asTime(f MatchField, v any) (time.Time, error) {
	if x, ok := v.(time.Time); ok {
		return x, nil
	}
	return time.Time{}, fmt.Errorf("field %s: expected time, got %T", f, v)
}

func cloneMatch(m *models.MatchRecord) *models.MatchRecord {
	c := *m
	c.JoinerID = clonePtr(m.JoinerID)
	c.Pot = clonePtr(m.Pot)
	c.Payout = clonePtr(m.Payout)
	c.Fee = clonePtr(m.Fee)
	c.InitiatorScore = clonePtr(m.InitiatorScore)
	c.JoinerScore = clonePtr(m.JoinerScore)
	c.InitiatorScoreAt = clonePtr(m.InitiatorScoreAt)
	c.JoinerScoreAt = clonePtr(m.JoinerScoreAt)
	c.WinnerID = clonePtr(m.WinnerID)
	c.CompletedAt = clonePtr(m.CompletedAt)
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
