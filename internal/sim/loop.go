// Package sim runs the fixed-rate simulation loop that owns all vehicle
// state on a participant. Work from other goroutines is posted to the
// loop's inbox and runs at the start of the next tick.
package sim

import (
	"context"
	"time"

	"github.com/kartsync/kartsync/internal/queue"
)

// Config tunes the tick loop.
type Config struct {
	TickHz          int
	CatchupMaxTicks int
}

// Clock supplies wall time to the loop.
type Clock interface {
	Now() time.Time
}

// SystemClock reads time.Now.
type SystemClock struct{}

// Now returns the current time.
func (SystemClock) Now() time.Time { return time.Now() }

// TickContext describes the tick being stepped.
type TickContext struct {
	Tick  uint64
	Now   time.Time
	Delta float64 // seconds
}

// StepResult reports how one tick went.
type StepResult struct {
	TickContext
	Posted       int
	Duration     time.Duration
	Budget       time.Duration
	ClampedDelta bool
	MaxDelta     float64
}

// Hooks are optional callbacks run on the loop goroutine.
type Hooks struct {
	AfterStep func(StepResult)
}

// Stepper advances the simulation by one tick.
type Stepper interface {
	Step(TickContext)
}

// StepperFunc adapts a function to Stepper.
type StepperFunc func(TickContext)

// Step calls f(tc).
func (f StepperFunc) Step(tc TickContext) { f(tc) }

// Loop drives a Stepper at a fixed rate.
type Loop struct {
	stepper Stepper
	config  Config
	hooks   Hooks
	clock   Clock
	inbox   *queue.Queue[func()]
	tick    uint64
}

// NewLoop returns a loop over stepper. A nil clock uses SystemClock.
func NewLoop(stepper Stepper, cfg Config, hooks Hooks, clock Clock) *Loop {
	if cfg.TickHz <= 0 {
		cfg.TickHz = 60
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &Loop{
		stepper: stepper,
		config:  cfg,
		hooks:   hooks,
		clock:   clock,
		inbox:   queue.New[func()](),
	}
}

// Budget returns the nominal tick length.
func (l *Loop) Budget() time.Duration {
	return time.Second / time.Duration(l.config.TickHz)
}

// Post schedules fn to run on the loop goroutine before the next step.
// Posted work is never dropped.
func (l *Loop) Post(fn func()) {
	l.inbox.Push(fn)
}

// Pending reports the number of posted closures waiting.
func (l *Loop) Pending() int {
	return l.inbox.Len()
}

// Advance runs posted work and then a single step.
func (l *Loop) Advance(tc TickContext) StepResult {
	posted := l.inbox.GetAndEmpty()
	for _, fn := range posted {
		fn()
	}
	l.stepper.Step(tc)
	return StepResult{TickContext: tc, Posted: len(posted)}
}

// Run ticks until ctx is done. The delta handed to the stepper is the
// measured wall time since the previous tick, clamped to CatchupMaxTicks
// budgets.
func (l *Loop) Run(ctx context.Context) {
	budget := l.Budget()
	ticker := time.NewTicker(budget)
	defer ticker.Stop()

	budgetSeconds := budget.Seconds()
	maxDt := budgetSeconds
	if l.config.CatchupMaxTicks > 1 {
		maxDt = budgetSeconds * float64(l.config.CatchupMaxTicks)
	}
	last := l.clock.Now()

	for {
		select {
		case <-ctx.Done():
			// run work posted before shutdown
			for _, fn := range l.inbox.GetAndEmpty() {
				fn()
			}
			return
		case <-ticker.C:
			now := l.clock.Now()
			dt := now.Sub(last).Seconds()
			clamped := false
			if dt <= 0 {
				dt = budgetSeconds
			} else if dt > maxDt {
				dt = maxDt
				clamped = true
			}
			last = now
			l.tick++

			start := l.clock.Now()
			result := l.Advance(TickContext{Tick: l.tick, Now: now, Delta: dt})
			result.Duration = l.clock.Now().Sub(start)
			result.Budget = budget
			result.ClampedDelta = clamped
			result.MaxDelta = maxDt

			if l.hooks.AfterStep != nil {
				l.hooks.AfterStep(result)
			}
		}
	}
}
