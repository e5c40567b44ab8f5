package input

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// Webhook accepts button events over HTTP: POST /input/:channel/:event.
type Webhook struct {
	events chan Event
}

// NewWebhook creates a webhook source buffering up to size events.
func NewWebhook(size int) *Webhook {
	if size <= 0 {
		size = 16
	}
	return &Webhook{events: make(chan Event, size)}
}

// Register mounts the input route on e.
func (w *Webhook) Register(e *echo.Echo) {
	e.POST("/input/:channel/:event", w.handle)
}

func (w *Webhook) handle(c echo.Context) error {
	name := c.Param("event")
	kind, ok := ParseKind(name)
	if !ok || kind == LongPush {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown event "+name)
	}

	ev := Event{Kind: kind, Channel: c.Param("channel"), At: time.Now()}
	select {
	case w.events <- ev:
	default:
		log.Warn().Str("channel", ev.Channel).Str("event", name).Msg("Webhook input queue full, dropping event")
		return echo.NewHTTPError(http.StatusServiceUnavailable, "input queue full")
	}

	log.Debug().Str("channel", ev.Channel).Str("event", name).Msg("Webhook input")
	return c.JSON(http.StatusAccepted, map[string]string{"status": "accepted"})
}

// Run forwards received events until ctx is cancelled.
func (w *Webhook) Run(ctx context.Context, out chan<- Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-w.events:
			if !emit(ctx, out, ev) {
				return nil
			}
		}
	}
}
