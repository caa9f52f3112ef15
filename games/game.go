package games

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Dosada05/wager-match/models"
)

var ErrUnknownGameType = errors.New("unknown game type")

// Rule says which of two scores wins for a game type.
type Rule string

const (
	LowerWins  Rule = "lower_wins"  // timed tasks: reaction time, solve time
	HigherWins Rule = "higher_wins" // accuracy and throughput tasks
)

// Outcome of comparing two scores under a Rule.
type Outcome int

const (
	Tie Outcome = iota
	FirstWins
	SecondWins
)

// Compare applies the rule to a (first participant) and b (second participant).
func (r Rule) Compare(a, b float64) Outcome {
	switch {
	case a == b:
		return Tie
	case r == LowerWins && a < b, r == HigherWins && a > b:
		return FirstWins
	default:
		return SecondWins
	}
}

// Definition describes one pluggable scoring game.
type Definition struct {
	Type models.GameType
	Name string
	Rule Rule
}

// Registry maps game types to their definitions. The comparison rule is a property
// of the game type, never a global setting.
type Registry struct {
	mu   sync.RWMutex
	defs map[models.GameType]Definition
}

func NewRegistry(defs ...Definition) *Registry {
	r := &Registry{defs: make(map[models.GameType]Definition, len(defs))}
	for _, d := range defs {
		r.defs[d.Type] = d
	}
	return r
}

// DefaultRegistry returns the four built-in games.
func DefaultRegistry() *Registry {
	return NewRegistry(
		Definition{Type: models.GameReaction, Name: "Reaction time", Rule: LowerWins},
		Definition{Type: models.GameArithmetic, Name: "Arithmetic sprint", Rule: HigherWins},
		Definition{Type: models.GameTyping, Name: "Typing speed", Rule: HigherWins},
		Definition{Type: models.GameLogic, Name: "Logic puzzle", Rule: LowerWins},
	)
}

func (r *Registry) Register(d Definition) error {
	if d.Type == "" {
		return errors.New("game type is required")
	}
	if d.Rule != LowerWins && d.Rule != HigherWins {
		return fmt.Errorf("game %s: invalid rule %q", d.Type, d.Rule)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defs[d.Type] = d
	return nil
}

func (r *Registry) Lookup(gameType models.GameType) (Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.defs[gameType]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %s", ErrUnknownGameType, gameType)
	}
	return d, nil
}

func (r *Registry) List() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Definition, 0, len(r.defs))
	for _, d := range r.defs {
		out = append(out, d)
	}
	return out
}
