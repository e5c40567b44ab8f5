// Package gesture classifies raw button edges into clicks and long-presses.
package gesture

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lightswitch/internal/loop"
)

// Kind of classified gesture
type Kind int

const (
	SingleClick Kind = iota + 1
	DoubleClick
	TripleClick
	LongPress
)

func (k Kind) String() string {
	switch k {
	case SingleClick:
		return "single"
	case DoubleClick:
		return "double"
	case TripleClick:
		return "triple"
	case LongPress:
		return "long_press"
	default:
		return "unknown"
	}
}

// Clicks returns the gesture kind for a click count, false when the count
// does not classify.
func Clicks(n int) (Kind, bool) {
	switch n {
	case 1:
		return SingleClick, true
	case 2:
		return DoubleClick, true
	case 3:
		return TripleClick, true
	default:
		return 0, false
	}
}

// Gesture is one classified press episode.
type Gesture struct {
	Kind    Kind
	Clicks  int
	Episode string
}

// NewEpisode returns a fresh press episode identifier.
func NewEpisode() string {
	return uuid.NewString()
}

// State of the press machine
type State int

const (
	Idle State = iota
	Pressed
	Classifying
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Pressed:
		return "pressed"
	case Classifying:
		return "classifying"
	default:
		return "unknown"
	}
}

// Defaults used when Config leaves a field zero
const (
	DefaultClickTimeout       = 400 * time.Millisecond
	DefaultLongPressThreshold = 800 * time.Millisecond
)

// Config holds the classification timers.
type Config struct {
	ClickTimeout       time.Duration
	LongPressThreshold time.Duration
}

// Ramp is driven while a long-press is held.
type Ramp interface {
	Begin()
	End()
}

// Handler receives classified gestures on the event loop. It must not block.
type Handler interface {
	Handle(g Gesture)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(g Gesture)

func (f HandlerFunc) Handle(g Gesture) { f(g) }

// Snapshot is the observable machine state.
type Snapshot struct {
	State     string `json:"state"`
	Clicks    int    `json:"clicks"`
	LongPress bool   `json:"long_press"`
	Down      bool   `json:"down"`
	Episode   string `json:"episode,omitempty"`
}

// Machine is the press session. All methods must be called on the event
// loop; timers fire there too. At most one of the two timers is pending.
type Machine struct {
	sched   loop.Scheduler
	ramp    Ramp
	handler Handler
	cfg     Config

	state      State
	clicks     int
	longPress  bool
	down       bool
	episode    string
	longTimer  loop.Timer
	clickTimer loop.Timer
}

// New creates a machine in the idle state.
func New(sched loop.Scheduler, ramp Ramp, handler Handler, cfg Config) *Machine {
	if cfg.ClickTimeout <= 0 {
		cfg.ClickTimeout = DefaultClickTimeout
	}
	if cfg.LongPressThreshold <= 0 {
		cfg.LongPressThreshold = DefaultLongPressThreshold
	}
	return &Machine{
		sched:   sched,
		ramp:    ramp,
		handler: handler,
		cfg:     cfg,
	}
}

// Down handles a press edge.
func (m *Machine) Down() {
	if m.longPress {
		log.Debug().Str("episode", m.episode).Msg("Press while long-press active, ignoring")
		return
	}
	if m.state == Idle {
		m.episode = NewEpisode()
	}

	m.down = true
	m.state = Pressed
	m.cancelTimers()
	m.longTimer = m.sched.AfterFunc(m.cfg.LongPressThreshold, m.longPressDue)
}

// Up handles a release edge.
func (m *Machine) Up() {
	if m.longPress {
		m.endLongPress()
		return
	}
	if m.state != Pressed {
		log.Debug().Str("state", m.state.String()).Msg("Release without press, ignoring")
		return
	}

	m.down = false
	m.clicks++
	m.state = Classifying
	m.cancelTimers()
	m.clickTimer = m.sched.AfterFunc(m.cfg.ClickTimeout, m.clickDue)
}

// Snapshot returns the machine state.
func (m *Machine) Snapshot() Snapshot {
	return Snapshot{
		State:     m.state.String(),
		Clicks:    m.clicks,
		LongPress: m.longPress,
		Down:      m.down,
		Episode:   m.episode,
	}
}

func (m *Machine) longPressDue() {
	m.longTimer = nil
	if !m.down || m.state != Pressed {
		log.Debug().Msg("Long-press timer fired after release, ignoring")
		return
	}

	if m.clicks > 0 {
		log.Debug().Int("clicks", m.clicks).Str("episode", m.episode).Msg("Long-press discards click burst")
	}
	m.clicks = 0
	m.longPress = true

	log.Info().Str("episode", m.episode).Msg("Long-press started")
	m.handler.Handle(Gesture{Kind: LongPress, Episode: m.episode})
	m.ramp.Begin()
}

func (m *Machine) endLongPress() {
	log.Info().Str("episode", m.episode).Msg("Long-press ended")
	m.ramp.End()
	m.reset()
}

func (m *Machine) clickDue() {
	m.clickTimer = nil
	clicks, episode := m.clicks, m.episode

	kind, ok := Clicks(clicks)
	if !ok {
		log.Warn().Int("clicks", clicks).Str("episode", episode).Msg("Too many clicks, discarding")
		m.reset()
		return
	}

	log.Info().Str("gesture", kind.String()).Str("episode", episode).Msg("Gesture classified")
	m.handler.Handle(Gesture{Kind: kind, Clicks: clicks, Episode: episode})
	m.reset()
}

func (m *Machine) cancelTimers() {
	if m.longTimer != nil {
		m.longTimer.Stop()
		m.longTimer = nil
	}
	if m.clickTimer != nil {
		m.clickTimer.Stop()
		m.clickTimer = nil
	}
}

func (m *Machine) reset() {
	m.cancelTimers()
	m.state = Idle
	m.clicks = 0
	m.longPress = false
	m.down = false
	m.episode = ""
}
