package input

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrMaxReconnectsExceeded is returned when the maximum number of reconnect attempts is exceeded.
var ErrMaxReconnectsExceeded = errors.New("max reconnects exceeded")

// Bridge is the connection the event stream dials. The address is read on
// every (re)connect, so a rediscovered bridge is picked up automatically.
type Bridge interface {
	Address() string
	Token() string
}

// EventStreamConfig contains configuration for event stream reconnection.
type EventStreamConfig struct {
	MinBackoff    time.Duration // Minimum backoff between reconnects
	MaxBackoff    time.Duration // Maximum backoff between reconnects
	Multiplier    float64       // Backoff multiplier
	MaxReconnects int           // Max reconnect attempts, 0 = infinite
}

// DefaultEventStreamConfig returns sensible defaults for event stream configuration.
func DefaultEventStreamConfig() EventStreamConfig {
	return EventStreamConfig{
		MinBackoff:    1 * time.Second,
		MaxBackoff:    2 * time.Minute,
		Multiplier:    2.0,
		MaxReconnects: 0,
	}
}

// EventStream turns Hue bridge button reports into edge events.
type EventStream struct {
	bridge     Bridge
	httpClient *http.Client
	config     EventStreamConfig
}

// NewEventStream creates a new event stream listener
func NewEventStream(bridge Bridge, config EventStreamConfig) *EventStream {
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
	}

	return &EventStream{
		bridge: bridge,
		httpClient: &http.Client{
			Transport: transport,
			// No timeout for SSE - it's a long-lived connection
		},
		config: config,
	}
}

// Run listens to the event stream with automatic reconnection.
// Returns ErrMaxReconnectsExceeded if max reconnects is exceeded.
func (e *EventStream) Run(ctx context.Context, out chan<- Event) error {
	retryCount := 0
	currentBackoff := e.config.MinBackoff

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		err := e.connect(ctx, out)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			// Stream closed cleanly by the bridge
			retryCount = 0
			currentBackoff = e.config.MinBackoff
			continue
		}

		retryCount++
		if e.config.MaxReconnects > 0 && retryCount > e.config.MaxReconnects {
			log.Error().
				Int("max_reconnects", e.config.MaxReconnects).
				Msg("Event stream: max reconnects exceeded, terminating")
			return ErrMaxReconnectsExceeded
		}

		log.Warn().
			Err(err).
			Dur("backoff", currentBackoff).
			Int("retry", retryCount).
			Msg("Event stream disconnected, reconnecting")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(currentBackoff):
		}

		nextBackoff := time.Duration(float64(currentBackoff) * e.config.Multiplier)
		if nextBackoff > e.config.MaxBackoff {
			nextBackoff = e.config.MaxBackoff
		}
		currentBackoff = nextBackoff
	}
}

func (e *EventStream) connect(ctx context.Context, out chan<- Event) error {
	address := e.bridge.Address()
	if address == "" {
		return errors.New("bridge address unknown")
	}
	url := fmt.Sprintf("https://%s/eventstream/clip/v2", address)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	req.Header.Set("hue-application-key", e.bridge.Token())
	req.Header.Set("Accept", "text/event-stream")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	log.Info().Str("bridge", address).Msg("Connected to Hue event stream")

	scanner := bufio.NewScanner(resp.Body)
	var dataBuffer strings.Builder

	for scanner.Scan() {
		line := scanner.Text()

		if line == ": hi" {
			log.Debug().Msg("Received event stream greeting")
			continue
		}

		// Empty line marks end of event
		if line == "" {
			if dataBuffer.Len() > 0 {
				if !e.dispatch(ctx, dataBuffer.String(), out) {
					return nil
				}
				dataBuffer.Reset()
			}
			continue
		}

		if strings.HasPrefix(line, "data: ") {
			dataBuffer.WriteString(strings.TrimPrefix(line, "data: "))
		}
	}

	return scanner.Err()
}

func (e *EventStream) dispatch(ctx context.Context, data string, out chan<- Event) bool {
	events, err := parseStreamEvents([]byte(data), time.Now())
	if err != nil {
		log.Warn().Err(err).Str("data", data).Msg("Failed to parse event")
		return true
	}
	for _, ev := range events {
		if !emit(ctx, out, ev) {
			return false
		}
	}
	return true
}

type streamMessage struct {
	Type string           `json:"type"`
	Data []streamResource `json:"data"`
}

type streamResource struct {
	ID     string `json:"id"`
	Type   string `json:"type"`
	Button *struct {
		LastEvent    string `json:"last_event"`
		ButtonReport *struct {
			Event   string `json:"event"`
			Updated string `json:"updated"`
		} `json:"button_report"`
	} `json:"button"`
}

// buttonAction maps a Hue button report to an edge. Repeat and long_press
// reports are ignored; hold duration is measured locally.
func buttonAction(action string) (Kind, bool) {
	switch action {
	case "initial_press":
		return Down, true
	case "short_release", "long_release":
		return Up, true
	default:
		return 0, false
	}
}

func parseStreamEvents(data []byte, at time.Time) ([]Event, error) {
	var messages []streamMessage
	if err := json.Unmarshal(data, &messages); err != nil {
		return nil, err
	}

	var events []Event
	for _, msg := range messages {
		for _, res := range msg.Data {
			if res.Type != "button" || res.Button == nil {
				continue
			}

			action := res.Button.LastEvent
			if res.Button.ButtonReport != nil && res.Button.ButtonReport.Event != "" {
				action = res.Button.ButtonReport.Event
			}

			kind, ok := buttonAction(action)
			if !ok {
				log.Trace().Str("id", res.ID).Str("action", action).Msg("Ignoring button action")
				continue
			}

			log.Debug().Str("id", res.ID).Str("action", action).Msg("Button event")
			events = append(events, Event{Kind: kind, Channel: res.ID, At: at})
		}
	}
	return events, nil
}
