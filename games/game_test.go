package games

import (
	"context"
	"testing"
	"time"

	"github.com/Dosada05/wager-match/models"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRule_Compare(t *testing.T) {
	tests := []struct {
		name string
		rule Rule
		a, b float64
		want Outcome
	}{
		{"lower wins first", LowerWins, 210, 340, FirstWins},
		{"lower wins second", LowerWins, 500, 499.5, SecondWins},
		{"lower tie", LowerWins, 300, 300, Tie},
		{"higher wins first", HigherWins, 12, 9, FirstWins},
		{"higher wins second", HigherWins, 0, 1, SecondWins},
		{"higher tie", HigherWins, 7, 7, Tie},
		{"negative scores", HigherWins, -1, -2, FirstWins},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.rule.Compare(tt.a, tt.b))
		})
	}
}

func TestRegistry(t *testing.T) {
	reg := DefaultRegistry()
	assert.Len(t, reg.List(), 4)

	def, err := reg.Lookup(models.GameReaction)
	require.NoError(t, err)
	assert.Equal(t, LowerWins, def.Rule)

	def, err = reg.Lookup(models.GameTyping)
	require.NoError(t, err)
	assert.Equal(t, HigherWins, def.Rule)

	_, err = reg.Lookup("darts")
	assert.ErrorIs(t, err, ErrUnknownGameType)

	assert.Error(t, reg.Register(Definition{Type: "darts", Rule: "closest_wins"}))
	assert.Error(t, reg.Register(Definition{Rule: HigherWins}))
	require.NoError(t, reg.Register(Definition{Type: "darts", Name: "Darts", Rule: HigherWins}))

	def, err = reg.Lookup("darts")
	require.NoError(t, err)
	assert.Equal(t, "Darts", def.Name)
	assert.Len(t, reg.List(), 5)
}

func TestScriptedModule(t *testing.T) {
	clock := clockwork.NewFakeClock()
	module := ScriptedModule{Score: 87.5, Delay: 2 * time.Second, Clock: clock}

	got := make(chan float64, 1)
	module.Run(context.Background(), func(score float64) { got <- score })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))

	select {
	case <-got:
		t.Fatal("score reported before the delay elapsed")
	default:
	}

	clock.Advance(2 * time.Second)
	select {
	case score := <-got:
		assert.Equal(t, 87.5, score)
	case <-time.After(time.Second):
		t.Fatal("score not reported")
	}
}

func TestScriptedModule_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := make(chan struct{}, 1)
	ModuleFunc(func(ctx context.Context, onComplete func(float64)) {
		ScriptedModule{Score: 1}.Run(ctx, onComplete)
	}).Run(ctx, func(float64) { called <- struct{}{} })

	select {
	case <-called:
		t.Fatal("canceled module must not report")
	case <-time.After(50 * time.Millisecond):
	}
}
