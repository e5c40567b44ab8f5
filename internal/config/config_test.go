package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/lightswitch/internal/hue"
)

func TestLoad_Defaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
hue:
  token: abc
  rooms: [room-1]
input:
  channel: btn-1
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, SourceSSE, cfg.Input.Source)
	assert.Equal(t, ModeEdges, cfg.Input.Mode)
	assert.Equal(t, ActionToggleGroup, cfg.Actions.Single)
	assert.Equal(t, 400*time.Millisecond, cfg.Gesture.ClickTimeout.Duration())
	assert.Equal(t, 800*time.Millisecond, cfg.Gesture.LongPressThreshold.Duration())
	assert.Equal(t, 500*time.Millisecond, cfg.Ramp.Interval.Duration())
	assert.Equal(t, 25, cfg.Ramp.Step)
	assert.Equal(t, 10*time.Second, cfg.Hue.Timeout.Duration())
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "0.0.0.0:9090", cfg.HTTP.Addr())
	assert.Empty(t, cfg.Database.Path)
}

func TestParse_EnvExpansion(t *testing.T) {
	t.Setenv("HUE_TOKEN", "secret")

	cfg, err := Parse([]byte(`
hue:
  token: ${HUE_TOKEN}
  bridge: ${HUE_BRIDGE:192.168.1.2}
input:
  channel: btn-1
`))
	require.NoError(t, err)
	assert.Equal(t, "secret", cfg.Hue.Token)
	assert.Equal(t, "192.168.1.2", cfg.Hue.Bridge)
}

func TestParse_SourceChannelDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
input:
  source: gpio
  gpio:
    offset: 17
    debounce: 10ms
`))
	require.NoError(t, err)
	assert.Equal(t, "gpio:17", cfg.Input.Channel)
	assert.Equal(t, "gpiochip0", cfg.Input.GPIO.Chip)
	assert.Equal(t, 10*time.Millisecond, cfg.Input.GPIO.Debounce.Duration())

	cfg, err = Parse([]byte(`
input:
  source: mqtt
  mode: native
  mqtt:
    broker: tcp://localhost:1883
    topic: shelly/events/rpc
`))
	require.NoError(t, err)
	assert.Equal(t, "input:0", cfg.Input.Channel)
	assert.Equal(t, ModeNative, cfg.Input.Mode)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown source", "input: {source: zigbee, channel: x}", "input.source"},
		{"unknown mode", "input: {mode: fancy, channel: x}", "input.mode"},
		{"unknown action", "actions: {single: explode}\ninput: {channel: x}", "actions.single"},
		{"negative timer", "gesture: {click_timeout: -1s}\ninput: {channel: x}", "gesture.click_timeout"},
		{"step out of range", "ramp: {step: 150}\ninput: {channel: x}", "ramp.step"},
		{"too many scenes", "hue: {scenes: [a, b, c]}\ninput: {channel: x}", "hue.scenes"},
		{"sse without channel", "input: {source: sse}", "input.channel"},
		{"mqtt without broker", "input: {source: mqtt}", "input.mqtt"},
		{"webhook without http", "input: {source: webhook}", "http.enabled"},
		{"bad duration", "ramp: {interval: soon}\ninput: {channel: x}", "soon"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestGroupOwner(t *testing.T) {
	tests := []struct {
		name  string
		rooms []string
		zones []string
		want  *hue.Owner
	}{
		{"room wins over zone", []string{"r1"}, []string{"z1"}, &hue.Owner{Kind: hue.OwnerRoom, ID: "r1"}},
		{"zone only", nil, []string{"z1", "z2"}, &hue.Owner{Kind: hue.OwnerZone, ID: "z1"}},
		{"none", nil, nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Hue: HueConfig{Rooms: tt.rooms, Zones: tt.zones}}
			assert.Equal(t, tt.want, cfg.GroupOwner())
		})
	}
}

func TestSceneAndLight(t *testing.T) {
	cfg := &Config{Hue: HueConfig{Scenes: []string{"scene-a"}, Lights: []string{"light-1", "light-2"}}}

	assert.Equal(t, "scene-a", cfg.Scene(0))
	assert.Equal(t, "", cfg.Scene(1))
	assert.Equal(t, "", cfg.Scene(-1))
	assert.Equal(t, "light-1", cfg.Light())
	assert.Equal(t, "", (&Config{}).Light())
}
