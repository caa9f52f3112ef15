package games

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
)

// Module runs one local play session and reports a single numeric score.
// onComplete is called at most once; it is not called if ctx ends first.
type Module interface {
	Run(ctx context.Context, onComplete func(score float64))
}

// ModuleFunc adapts a plain function to Module.
type ModuleFunc func(ctx context.Context, onComplete func(score float64))

func (f ModuleFunc) Run(ctx context.Context, onComplete func(score float64)) {
	f(ctx, onComplete)
}

// ScriptedModule reports a predetermined score after a delay. Bots and tests play
// with it; real clients plug in their interactive modules instead.
type ScriptedModule struct {
	Score float64
	Delay time.Duration
	Clock clockwork.Clock
}

func (m ScriptedModule) Run(ctx context.Context, onComplete func(score float64)) {
	clock := m.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	go func() {
		if m.Delay > 0 {
			select {
			case <-ctx.Done():
				return
			case <-clock.After(m.Delay):
			}
		}
		if ctx.Err() == nil {
			onComplete(m.Score)
		}
	}()
}
