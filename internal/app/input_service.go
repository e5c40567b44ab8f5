package app

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lightswitch/internal/config"
	"github.com/dokzlo13/lightswitch/internal/gesture"
	"github.com/dokzlo13/lightswitch/internal/input"
	"github.com/dokzlo13/lightswitch/internal/loop"
)

// Edges is the press machine surface fed by raw edges.
type Edges interface {
	Down()
	Up()
}

// Poster queues work onto the event loop.
type Poster interface {
	Do(w loop.Work) bool
}

// InputService runs the configured source and routes its events onto the
// event loop.
type InputService struct {
	source  input.Source
	loop    Poster
	edges   Edges
	intents gesture.Handler
	channel string
	native  bool
	events  chan input.Event
}

// NewInputService creates the service. Routing happens on the loop.
func NewInputService(cfg *config.Config, source input.Source, poster Poster, edges Edges, intents gesture.Handler) *InputService {
	return &InputService{
		source:  source,
		loop:    poster,
		edges:   edges,
		intents: intents,
		channel: cfg.Input.Channel,
		native:  cfg.Input.Mode == config.ModeNative,
		events:  make(chan input.Event, 16),
	}
}

// Start runs the source and the loop pump in the background.
// onFatalError is called when the source gives up.
func (s *InputService) Start(ctx context.Context, onFatalError func(error)) {
	go func() {
		err := s.source.Run(ctx, s.events)
		if err == nil || ctx.Err() != nil {
			return
		}
		if errors.Is(err, input.ErrMaxReconnectsExceeded) {
			log.Error().Msg("Event stream: max reconnects exceeded, triggering shutdown")
		} else {
			log.Error().Err(err).Msg("Input source failed")
		}
		if onFatalError != nil {
			onFatalError(err)
		}
	}()

	go s.pump(ctx)
}

func (s *InputService) pump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-s.events:
			if !s.loop.Do(func() { s.route(ev) }) {
				return
			}
		}
	}
}

// route must run on the event loop.
func (s *InputService) route(ev input.Event) {
	if ev.Channel != s.channel {
		log.Trace().Str("channel", ev.Channel).Msg("Ignoring event from other channel")
		return
	}

	if s.native {
		kind, ok := nativeGesture(ev.Kind)
		if !ok {
			log.Debug().Str("event", ev.Kind.String()).Msg("Ignoring non-push event in native mode")
			return
		}
		clicks := int(kind - gesture.SingleClick + 1)
		s.intents.Handle(gesture.Gesture{Kind: kind, Clicks: clicks, Episode: gesture.NewEpisode()})
		return
	}

	switch ev.Kind {
	case input.Down:
		s.edges.Down()
	case input.Up:
		s.edges.Up()
	default:
		log.Debug().Str("event", ev.Kind.String()).Msg("Ignoring push event in edges mode")
	}
}

func nativeGesture(k input.Kind) (gesture.Kind, bool) {
	switch k {
	case input.SinglePush:
		return gesture.SingleClick, true
	case input.DoublePush:
		return gesture.DoubleClick, true
	case input.TriplePush:
		return gesture.TripleClick, true
	default:
		return 0, false
	}
}
