// Package bot produces throttle and steering for vehicles nobody is
// holding a controller for.
package bot

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/kartsync/kartsync/internal/config"
)

// ErrEmptyScript is returned for a script with no usable segments.
var ErrEmptyScript = errors.New("bot script has no segments")

// ErrUnknownMode is returned by FromConfig for an unrecognised bot.mode.
var ErrUnknownMode = errors.New("unknown bot mode")

// Segment holds one control setting for Duration seconds.
type Segment struct {
	Duration float64
	Throttle float64
	Steering float64
}

// Lap drives a figure eight: straight, full left, straight, full right,
// then a short brake.
var Lap = []Segment{
	{Duration: 3, Throttle: 1},
	{Duration: 2, Throttle: 0.6, Steering: 1},
	{Duration: 3, Throttle: 1},
	{Duration: 2, Throttle: 0.6, Steering: -1},
	{Duration: 1, Throttle: -0.5},
}

// Driver replays a looping script. Wandering drivers ignore the script and
// pick random turns instead.
type Driver struct {
	segments []Segment
	idx      int
	elapsed  float64

	rng       *rand.Rand
	turnLeft  float64 // seconds until the current turn ends
	nextTurn  float64 // seconds until the next turn starts
	steer     float64
	wandering bool
}

// New returns a driver looping over segments. Segments without a positive
// duration are dropped; an empty script drives Lap.
func New(segments []Segment) *Driver {
	var kept []Segment
	for _, s := range segments {
		if s.Duration > 0 {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		kept = Lap
	}
	return &Driver{segments: kept}
}

// NewWandering returns a driver that holds throttle and turns left or right
// for two seconds at random intervals of up to ten seconds.
func NewWandering(seed uint64) *Driver {
	d := &Driver{
		rng:       rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		wandering: true,
	}
	d.nextTurn = d.rng.Float64() * 10
	return d
}

// Next advances the driver by dt seconds and returns the controls to apply.
func (d *Driver) Next(dt float64) (throttle, steering float64) {
	if !(dt > 0) {
		dt = 0
	}
	if d.wandering {
		return d.wander(dt)
	}

	d.elapsed += dt
	for d.elapsed >= d.segments[d.idx].Duration {
		d.elapsed -= d.segments[d.idx].Duration
		d.idx = (d.idx + 1) % len(d.segments)
	}
	s := d.segments[d.idx]
	return s.Throttle, s.Steering
}

func (d *Driver) wander(dt float64) (float64, float64) {
	if d.turnLeft > 0 {
		d.turnLeft -= dt
		if d.turnLeft <= 0 {
			d.steer = 0
		}
		return 1, d.steer
	}

	d.nextTurn -= dt
	if d.nextTurn <= 0 {
		d.nextTurn = d.rng.Float64() * 10
		d.turnLeft = 2
		if d.rng.IntN(2) == 0 {
			d.steer = 1
		} else {
			d.steer = -1
		}
	}
	return 1, d.steer
}

// ParseScript reads "duration:throttle:steering" segments separated by
// commas, e.g. "3:1:0,2:0.6:1".
func ParseScript(s string) ([]Segment, error) {
	var out []Segment
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fields := strings.Split(part, ":")
		if len(fields) != 3 {
			return nil, fmt.Errorf("parsing segment %q: want duration:throttle:steering", part)
		}
		var vals [3]float64
		for i, f := range fields {
			v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
			if err != nil {
				return nil, fmt.Errorf("parsing segment %q: %w", part, err)
			}
			vals[i] = v
		}
		if !(vals[0] > 0) {
			return nil, fmt.Errorf("parsing segment %q: duration must be positive", part)
		}
		out = append(out, Segment{Duration: vals[0], Throttle: vals[1], Steering: vals[2]})
	}
	if len(out) == 0 {
		return nil, ErrEmptyScript
	}
	return out, nil
}

// FromConfig builds the driver selected by bot.mode.
func FromConfig(cfg config.BotConfig) (*Driver, error) {
	switch strings.ToLower(cfg.Mode) {
	case "", "lap":
		return New(Lap), nil
	case "wander":
		return NewWandering(cfg.Seed), nil
	case "script":
		segments, err := ParseScript(cfg.Script)
		if err != nil {
			return nil, err
		}
		return New(segments), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownMode, cfg.Mode)
}
