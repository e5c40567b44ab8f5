// Package dimming emulates continuous dimming while a button is held by
// issuing one relative brightness step per ramp tick.
package dimming

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lightswitch/internal/loop"
)

// Direction of the ramp
type Direction int

const (
	Decrease Direction = -1
	Increase Direction = 1
)

func (d Direction) String() string {
	if d == Increase {
		return "increase"
	}
	return "decrease"
}

const (
	minLevel   = 1
	maxLevel   = 100
	unsetLevel = 0
)

// Defaults used when Config leaves a field zero
const (
	DefaultInterval = 500 * time.Millisecond
	DefaultStep     = 25
)

// Commands is the part of the dispatcher used by the ramp.
type Commands interface {
	ResolveGroup(ctx context.Context) (string, error)
	Brightness(ctx context.Context, groupID string) (int, error)
	SetBrightness(ctx context.Context, groupID string, level int) error
}

// Config holds the ramp timing.
type Config struct {
	Interval time.Duration
	Step     int
}

// State is a snapshot of the ramp
type State struct {
	Active    bool      `json:"active"`
	Current   int       `json:"current_level,omitempty"`
	Target    int       `json:"target_level,omitempty"`
	Direction Direction `json:"direction"`
	InFlight  bool      `json:"in_flight"`
	Ticks     int       `json:"ticks"`
	Skipped   int       `json:"skipped"`
	Writes    int       `json:"writes"`
}

// Engine drives the ramp. Every method must be called on the event loop;
// network work goes through the runner and its results come back onto the
// loop, so the ramp state needs no locking.
type Engine struct {
	cmds     Commands
	sched    loop.Scheduler
	runner   loop.Runner
	interval time.Duration
	step     int

	direction Direction
	current   int
	target    int
	inFlight  bool
	active    bool
	session   uint64
	ticker    loop.Timer

	ticks   int
	skipped int
	writes  int
}

// New creates an engine. The first long-press dims.
func New(cmds Commands, sched loop.Scheduler, runner loop.Runner, cfg Config) *Engine {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Step <= 0 {
		cfg.Step = DefaultStep
	}
	return &Engine{
		cmds:      cmds,
		sched:     sched,
		runner:    runner,
		interval:  cfg.Interval,
		step:      cfg.Step,
		direction: Decrease,
	}
}

// Begin starts a ramp: levels are reset so the first tick reads the live
// brightness, one tick runs immediately and then every interval.
func (e *Engine) Begin() {
	if e.active {
		return
	}
	e.active = true
	e.session++
	e.current = unsetLevel
	e.target = unsetLevel

	log.Debug().Str("direction", e.direction.String()).Msg("Ramp started")

	e.Tick()
	e.ticker = e.sched.Every(e.interval, e.Tick)
}

// End stops the ramp and flips the direction for the next one. The last
// applied level stays as it is.
func (e *Engine) End() {
	if !e.active {
		return
	}
	if e.ticker != nil {
		e.ticker.Stop()
		e.ticker = nil
	}
	e.active = false
	e.direction = -e.direction

	log.Debug().
		Int("level", e.target).
		Str("next_direction", e.direction.String()).
		Msg("Ramp stopped")
}

// Active reports whether a ramp is running.
func (e *Engine) Active() bool {
	return e.active
}

// Direction returns the direction of the current or next ramp.
func (e *Engine) Direction() Direction {
	return e.direction
}

// Snapshot returns the ramp state.
func (e *Engine) Snapshot() State {
	return State{
		Active:    e.active,
		Current:   e.current,
		Target:    e.target,
		Direction: e.direction,
		InFlight:  e.inFlight,
		Ticks:     e.ticks,
		Skipped:   e.skipped,
		Writes:    e.writes,
	}
}

// Tick executes one ramp step. A tick arriving while the previous step is
// still in flight is dropped, not queued.
func (e *Engine) Tick() {
	if !e.active {
		return
	}
	e.ticks++

	if e.inFlight {
		e.skipped++
		log.Debug().Msg("Previous dim request still running, skipping tick")
		return
	}
	e.inFlight = true

	session := e.session
	needRead := e.current == unsetLevel
	baseline := e.target

	e.runner.Async(func(ctx context.Context) func() {
		groupID, err := e.cmds.ResolveGroup(ctx)
		if err != nil {
			return func() {
				log.Warn().Err(err).Msg("Dim step skipped, grouped_light unavailable")
				e.inFlight = false
			}
		}

		level := baseline
		if needRead {
			level, err = e.cmds.Brightness(ctx, groupID)
			if err != nil {
				return func() {
					log.Warn().Err(err).Str("group", groupID).Msg("Dim step skipped, brightness read failed")
					e.inFlight = false
				}
			}
		}

		return func() { e.apply(session, groupID, level) }
	})
}

// apply runs on the loop after the read phase.
func (e *Engine) apply(session uint64, groupID string, baseline int) {
	if !e.active || session != e.session {
		log.Debug().Msg("Button released during dim step, dropping it")
		e.inFlight = false
		return
	}

	target := clamp(baseline+int(e.direction)*e.step, minLevel, maxLevel)
	e.current = baseline
	e.target = target
	e.writes++

	e.runner.Async(func(ctx context.Context) func() {
		err := e.cmds.SetBrightness(ctx, groupID, target)
		return func() {
			if err != nil {
				log.Warn().Err(err).Str("group", groupID).Int("level", target).Msg("Brightness write failed")
			}
			e.inFlight = false
		}
	})
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
