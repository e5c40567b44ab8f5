// Package input adapts physical and network button sources into a common
// event stream.
package input

import (
	"context"
	"time"
)

// Kind of input event
type Kind int

const (
	Down Kind = iota + 1
	Up
	SinglePush
	DoublePush
	TriplePush
	LongPush
)

var kindNames = map[Kind]string{
	Down:       "down",
	Up:         "up",
	SinglePush: "single",
	DoublePush: "double",
	TriplePush: "triple",
	LongPush:   "long",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// IsEdge reports whether the event is a raw press or release.
func (k Kind) IsEdge() bool {
	return k == Down || k == Up
}

// ParseKind maps an event name ("down", "up", "single", ...) to its kind.
func ParseKind(name string) (Kind, bool) {
	for k, n := range kindNames {
		if n == name {
			return k, true
		}
	}
	return 0, false
}

// Event is a single button event from a source.
type Event struct {
	Kind    Kind
	Channel string
	At      time.Time
}

// Source produces events until the context is cancelled.
type Source interface {
	Run(ctx context.Context, out chan<- Event) error
}

// emit delivers ev unless ctx is cancelled first.
func emit(ctx context.Context, out chan<- Event, ev Event) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
