package repositories

import (
	"strings"
	"testing"

	"github.com/Dosada05/wager-match/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildMatchUpdateQuery(t *testing.T) {
	query, args, err := buildMatchUpdateQuery("12345678", MatchUpdate{
		Where: []Condition{
			Equals(FieldPhase, models.PhasePlaying),
			Absent(FieldWinnerID),
			OneOf(FieldSettlementState, models.SettlementNone, models.SettlementEscrowed),
		},
		Set: map[MatchField]any{
			FieldWinnerID:    "alice",
			FieldCompletedAt: StoreNow,
			FieldJoinerID:    nil,
		},
		Transition: true,
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(query,
		"UPDATE matches SET completed_at = now(), joiner_id = NULL, winner_id = $1, last_transition_at = now()"), query)
	assert.Contains(t, query, "WHERE code = $2 AND phase = $3 AND winner_id IS NULL AND settlement_state IN ($4, $5)")
	assert.Contains(t, query, "RETURNING code, phase")
	assert.Equal(t, []any{"alice", "12345678", models.PhasePlaying, models.SettlementNone, models.SettlementEscrowed}, args)
}

func TestBuildMatchUpdateQuery_Validation(t *testing.T) {
	_, _, err := buildMatchUpdateQuery("1", MatchUpdate{})
	assert.Error(t, err)

	_, _, err = buildMatchUpdateQuery("1", MatchUpdate{Set: map[MatchField]any{"secret_hash": "x"}})
	assert.ErrorIs(t, err, ErrUnknownMatchField)

	_, _, err = buildMatchUpdateQuery("1", MatchUpdate{
		Where: []Condition{Absent("drop table")},
		Set:   map[MatchField]any{FieldPhase: models.PhaseAbandoned},
	})
	assert.ErrorIs(t, err, ErrUnknownMatchField)

	query, _, err := buildMatchUpdateQuery("1", MatchUpdate{
		Where: []Condition{OneOf(FieldPhase)},
		Set:   map[MatchField]any{FieldPhase: models.PhaseAbandoned},
	})
	require.NoError(t, err)
	assert.Contains(t, query, "AND FALSE")
}
