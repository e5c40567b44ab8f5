package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lightswitch/internal/config"
	"github.com/dokzlo13/lightswitch/internal/db"
	"github.com/dokzlo13/lightswitch/internal/dimming"
	"github.com/dokzlo13/lightswitch/internal/gesture"
	"github.com/dokzlo13/lightswitch/internal/input"
	"github.com/dokzlo13/lightswitch/internal/ledger"
	"github.com/dokzlo13/lightswitch/internal/loop"
)

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	// Core infrastructure
	DB      *db.DB
	Ledger  *ledger.Ledger
	History *HistoryService
	Loop    *loop.Loop

	// Bridge side
	Hue *HueService

	// Button side
	Dimmer  *dimming.Engine
	Machine *gesture.Machine
	Intents *IntentHandler
	Webhook *input.Webhook
	Input   *InputService
	HTTP    *HTTPService
}

// NewServices creates all services with proper dependency injection.
func NewServices(cfg *config.Config) (*Services, error) {
	s := &Services{cfg: cfg}

	// Gesture history is optional
	var history History = nopHistory{}
	var historyReader HistoryReader
	if cfg.Database.Path != "" {
		database, err := db.Open(cfg.Database.Path)
		if err != nil {
			return nil, err
		}
		s.DB = database
		s.Ledger = ledger.New(database.DB)
		s.History = NewHistoryService(cfg, s.Ledger)
		history = s.History
		historyReader = s.History
	} else {
		log.Info().Msg("No database path configured, gesture history disabled")
	}

	s.Hue = NewHueService(cfg)
	s.Loop = loop.New(loop.DefaultQueueSize)

	s.Dimmer = dimming.New(s.Hue.Dispatcher, s.Loop, s.Loop, dimming.Config{
		Interval: cfg.Ramp.Interval.Duration(),
		Step:     cfg.Ramp.Step,
	})
	s.Intents = NewIntentHandler(cfg, s.Loop, s.Hue.Dispatcher, history)
	s.Machine = gesture.New(s.Loop, s.Dimmer, s.Intents, gesture.Config{
		ClickTimeout:       cfg.Gesture.ClickTimeout.Duration(),
		LongPressThreshold: cfg.Gesture.LongPressThreshold.Duration(),
	})

	source, err := s.newSource()
	if err != nil {
		s.Close()
		return nil, err
	}
	s.Input = NewInputService(cfg, source, s.Loop, s.Machine, s.Intents)

	var routes []Route
	if s.Webhook != nil {
		routes = append(routes, s.Webhook)
	}
	s.HTTP = NewHTTPService(cfg, s, historyReader, routes...)

	return s, nil
}

func (s *Services) newSource() (input.Source, error) {
	in := s.cfg.Input

	switch in.Source {
	case config.SourceSSE:
		return input.NewEventStream(s.Hue.Client, input.EventStreamConfig{
			MinBackoff:    s.cfg.Hue.MinRetryBackoff.Duration(),
			MaxBackoff:    s.cfg.Hue.MaxRetryBackoff.Duration(),
			Multiplier:    s.cfg.Hue.RetryMultiplier,
			MaxReconnects: s.cfg.Hue.MaxReconnects,
		}), nil
	case config.SourceMQTT:
		return input.NewMQTTSource(input.MQTTConfig{
			Broker:   in.MQTT.Broker,
			Topic:    in.MQTT.Topic,
			ClientID: in.MQTT.ClientID,
			Username: in.MQTT.Username,
			Password: in.MQTT.Password,
			QoS:      byte(in.MQTT.QoS),
		}), nil
	case config.SourceGPIO:
		return input.NewGPIOSource(input.GPIOConfig{
			Chip:      in.GPIO.Chip,
			Offset:    in.GPIO.Offset,
			ActiveLow: in.GPIO.ActiveLow,
			PullUp:    in.GPIO.PullUp,
			Debounce:  in.GPIO.Debounce.Duration(),
		}), nil
	case config.SourceWebhook:
		s.Webhook = input.NewWebhook(in.Webhook.QueueSize)
		return s.Webhook, nil
	default:
		return nil, fmt.Errorf("unknown input source %q", in.Source)
	}
}

// Status implements StatusProvider. Press and ramp state are read on the
// event loop.
func (s *Services) Status(ctx context.Context) (Status, error) {
	st := Status{
		Bridge:     s.Hue.Client.Address(),
		Generation: s.Hue.Client.Generation(),
		Retried:    s.Hue.Retry.Snapshot(),
		Source:     s.cfg.Input.Source,
		Mode:       s.cfg.Input.Mode,
		Channel:    s.cfg.Input.Channel,
	}
	if owner := s.Hue.Groups.Owner(); owner != nil {
		st.Owner = owner.String()
	}
	if id, ok := s.Hue.Groups.Get(); ok {
		st.GroupedLight = id
	}

	err := s.Loop.Call(ctx, func() {
		st.Press = s.Machine.Snapshot()
		st.Ramp = s.Dimmer.Snapshot()
	})
	return st, err
}

// Ready implements StatusProvider: the bridge address is known.
func (s *Services) Ready() bool {
	return s.Hue.Client.Address() != ""
}

// Start starts all services in the correct order.
// The onFatalError callback is called when a fatal error occurs (e.g., max reconnects exceeded).
func (s *Services) Start(ctx context.Context, onFatalError func(error)) error {
	go s.Loop.Run(ctx)

	// Discovery and warm-up before accepting input
	s.Hue.Start(ctx)

	if s.History != nil {
		s.History.Start(ctx)
	}
	s.Input.Start(ctx, onFatalError)
	s.HTTP.Start(ctx)

	return nil
}

// Stop gracefully stops all services.
func (s *Services) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout.Duration())
	defer cancel()
	s.Loop.Close(ctx)

	s.Close()
	return nil
}

// Close releases all resources.
func (s *Services) Close() {
	if s.Hue != nil {
		s.Hue.Close()
	}
	if s.DB != nil {
		s.DB.Close()
	}
}
