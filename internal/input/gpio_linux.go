//go:build linux

package input

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/warthog618/go-gpiocdev"
)

// GPIOSource reads button edges from a Linux GPIO character device.
type GPIOSource struct {
	cfg GPIOConfig
}

// NewGPIOSource creates a source for the configured line.
func NewGPIOSource(cfg GPIOConfig) *GPIOSource {
	if cfg.Chip == "" {
		cfg.Chip = "gpiochip0"
	}
	return &GPIOSource{cfg: cfg}
}

// Run requests the line with edge detection and forwards events until ctx
// is cancelled.
func (s *GPIOSource) Run(ctx context.Context, out chan<- Event) error {
	channel := GPIOChannel(s.cfg.Offset)

	handler := func(evt gpiocdev.LineEvent) {
		kind, ok := edgeKind(evt.Type)
		if !ok {
			return
		}
		emit(ctx, out, Event{Kind: kind, Channel: channel, At: time.Now()})
	}

	opts := []gpiocdev.LineReqOption{
		gpiocdev.AsInput,
		gpiocdev.WithBothEdges,
		gpiocdev.WithEventHandler(handler),
	}
	if s.cfg.ActiveLow {
		opts = append(opts, gpiocdev.AsActiveLow)
	}
	if s.cfg.PullUp {
		opts = append(opts, gpiocdev.WithPullUp)
	}
	if s.cfg.Debounce > 0 {
		opts = append(opts, gpiocdev.WithDebounce(s.cfg.Debounce))
	}

	line, err := gpiocdev.RequestLine(s.cfg.Chip, s.cfg.Offset, opts...)
	if err != nil {
		return fmt.Errorf("request line %s:%d: %w", s.cfg.Chip, s.cfg.Offset, err)
	}
	defer line.Close()

	log.Info().Str("chip", s.cfg.Chip).Int("offset", s.cfg.Offset).Msg("Watching GPIO input")

	<-ctx.Done()
	return nil
}

// edgeKind maps logical edges: rising means the button became active.
func edgeKind(t gpiocdev.LineEventType) (Kind, bool) {
	switch t {
	case gpiocdev.LineEventRisingEdge:
		return Down, true
	case gpiocdev.LineEventFallingEdge:
		return Up, true
	default:
		return 0, false
	}
}
