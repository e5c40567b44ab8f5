package input

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const buttonEvents = `[{"type":"update","data":[
	{"id":"btn-1","type":"button","button":{"button_report":{"event":"initial_press","updated":"2024-01-01T00:00:00Z"}}},
	{"id":"btn-1","type":"button","button":{"button_report":{"event":"repeat","updated":"2024-01-01T00:00:01Z"}}},
	{"id":"btn-1","type":"button","button":{"button_report":{"event":"long_release","updated":"2024-01-01T00:00:02Z"}}},
	{"id":"light-1","type":"light","on":{"on":true}},
	{"id":"btn-2","type":"button","button":{"last_event":"short_release"}}
]}]`

func TestParseStreamEvents(t *testing.T) {
	at := time.Unix(100, 0)
	events, err := parseStreamEvents([]byte(buttonEvents), at)
	require.NoError(t, err)

	assert.Equal(t, []Event{
		{Kind: Down, Channel: "btn-1", At: at},
		{Kind: Up, Channel: "btn-1", At: at},
		{Kind: Up, Channel: "btn-2", At: at},
	}, events)
}

func TestParseStreamEvents_Malformed(t *testing.T) {
	_, err := parseStreamEvents([]byte(`{not json`), time.Now())
	assert.Error(t, err)
}

type staticBridge struct {
	address string
}

func (b staticBridge) Address() string { return b.address }
func (b staticBridge) Token() string   { return "token" }

func TestEventStream_Run(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/eventstream/clip/v2" || r.Header.Get("hue-application-key") != "token" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, ": hi\n\n")
		fmt.Fprintf(w, "id: 1:0\ndata: %s\n\n", strings.ReplaceAll(buttonEvents, "\n", ""))
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream := NewEventStream(staticBridge{address: srv.Listener.Addr().String()}, DefaultEventStreamConfig())
	out := make(chan Event, 8)
	done := make(chan error, 1)
	go func() { done <- stream.Run(ctx, out) }()

	var got []Kind
	for len(got) < 3 {
		select {
		case ev := <-out:
			got = append(got, ev.Kind)
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for events")
		}
	}
	assert.Equal(t, []Kind{Down, Up, Up}, got)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not stop")
	}
}

func TestEventStream_MaxReconnects(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	stream := NewEventStream(staticBridge{address: srv.Listener.Addr().String()}, EventStreamConfig{
		MinBackoff:    time.Millisecond,
		MaxBackoff:    time.Millisecond,
		Multiplier:    2,
		MaxReconnects: 2,
	})

	err := stream.Run(context.Background(), make(chan Event))
	assert.ErrorIs(t, err, ErrMaxReconnectsExceeded)
}
