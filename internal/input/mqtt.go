package input

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"
)

// MQTTConfig configures the Shelly MQTT source.
type MQTTConfig struct {
	Broker   string
	Topic    string
	ClientID string
	Username string
	Password string
	QoS      byte
}

// MQTTSource subscribes to Shelly Gen2 NotifyEvent notifications.
type MQTTSource struct {
	cfg MQTTConfig
}

// NewMQTTSource creates a source for the given broker and topic.
func NewMQTTSource(cfg MQTTConfig) *MQTTSource {
	if cfg.ClientID == "" {
		cfg.ClientID = "lightswitch"
	}
	return &MQTTSource{cfg: cfg}
}

// Run connects to the broker and forwards events until ctx is cancelled.
// Reconnects and resubscriptions are handled by the client.
func (s *MQTTSource) Run(ctx context.Context, out chan<- Event) error {
	handler := func(_ paho.Client, msg paho.Message) {
		events, err := parseShellyNotification(msg.Payload(), time.Now())
		if err != nil {
			log.Debug().Err(err).Str("topic", msg.Topic()).Msg("Ignoring MQTT message")
			return
		}
		for _, ev := range events {
			if !emit(ctx, out, ev) {
				return
			}
		}
	}

	opts := paho.NewClientOptions().
		AddBroker(s.cfg.Broker).
		SetClientID(s.cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)
	if s.cfg.Username != "" {
		opts.SetUsername(s.cfg.Username)
		opts.SetPassword(s.cfg.Password)
	}
	opts.SetOnConnectHandler(func(c paho.Client) {
		token := c.Subscribe(s.cfg.Topic, s.cfg.QoS, handler)
		if !token.WaitTimeout(10 * time.Second) {
			log.Error().Str("topic", s.cfg.Topic).Msg("MQTT subscribe timeout")
			return
		}
		if err := token.Error(); err != nil {
			log.Error().Err(err).Str("topic", s.cfg.Topic).Msg("MQTT subscribe failed")
			return
		}
		log.Info().Str("broker", s.cfg.Broker).Str("topic", s.cfg.Topic).Msg("Subscribed to MQTT input")
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		log.Warn().Err(err).Msg("MQTT connection lost")
	})

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		log.Warn().Str("broker", s.cfg.Broker).Msg("MQTT broker not reachable yet, retrying in background")
	} else if err := token.Error(); err != nil {
		return fmt.Errorf("connect to broker: %w", err)
	}

	<-ctx.Done()
	client.Disconnect(250)
	return nil
}

type shellyNotification struct {
	Method string `json:"method"`
	Params struct {
		Events []struct {
			Component string  `json:"component"`
			Event     string  `json:"event"`
			TS        float64 `json:"ts"`
		} `json:"events"`
	} `json:"params"`
}

func shellyEvent(name string) (Kind, bool) {
	switch name {
	case "btn_down":
		return Down, true
	case "btn_up":
		return Up, true
	case "single_push":
		return SinglePush, true
	case "double_push":
		return DoublePush, true
	case "triple_push":
		return TriplePush, true
	case "long_push":
		return LongPush, true
	default:
		return 0, false
	}
}

func parseShellyNotification(payload []byte, now time.Time) ([]Event, error) {
	var n shellyNotification
	if err := json.Unmarshal(payload, &n); err != nil {
		return nil, err
	}
	if n.Method != "NotifyEvent" {
		return nil, fmt.Errorf("unexpected method %q", n.Method)
	}

	var events []Event
	for _, e := range n.Params.Events {
		kind, ok := shellyEvent(e.Event)
		if !ok {
			continue
		}
		at := now
		if e.TS > 0 {
			sec, frac := math.Modf(e.TS)
			at = time.Unix(int64(sec), int64(frac*1e9))
		}
		events = append(events, Event{Kind: kind, Channel: e.Component, At: at})
	}
	return events, nil
}
