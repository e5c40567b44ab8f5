// Package huetest provides an in-process fake Hue bridge and discovery
// endpoint for tests.
package huetest

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// Request is a recorded bridge request
type Request struct {
	Method string
	Path   string
	Body   string
}

type lightState struct {
	On         bool
	Brightness float64
}

// Bridge is a fake CLIP v2 bridge served over TLS.
type Bridge struct {
	server *httptest.Server

	mu            sync.Mutex
	owners        map[string]string // "room/<id>" -> grouped_light id ("" for none)
	groupedLights map[string]*lightState
	lights        map[string]*lightState
	scenes        map[string]int
	requests      []Request
	failNext      int
	failing       bool
	malformed     bool
}

// NewBridge starts a fake bridge that is shut down when the test ends.
func NewBridge(t testing.TB) *Bridge {
	t.Helper()
	b := &Bridge{
		owners:        make(map[string]string),
		groupedLights: make(map[string]*lightState),
		lights:        make(map[string]*lightState),
		scenes:        make(map[string]int),
	}
	b.server = httptest.NewTLSServer(http.HandlerFunc(b.handle))
	t.Cleanup(b.server.Close)
	return b
}

// Address returns host:port of the bridge.
func (b *Bridge) Address() string {
	return strings.TrimPrefix(b.server.URL, "https://")
}

// AddOwner registers a room or zone exposing groupedLightID.
// An empty groupedLightID registers an owner without that service.
func (b *Bridge) AddOwner(kind, id, groupedLightID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.owners[kind+"/"+id] = groupedLightID
}

// AddGroupedLight registers a grouped_light.
func (b *Bridge) AddGroupedLight(id string, on bool, brightness float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.groupedLights[id] = &lightState{On: on, Brightness: brightness}
}

// AddLight registers a light.
func (b *Bridge) AddLight(id string, on bool, brightness float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lights[id] = &lightState{On: on, Brightness: brightness}
}

// AddScene registers a scene.
func (b *Bridge) AddScene(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.scenes[id] = 0
}

// FailNext makes the next n requests answer 503.
func (b *Bridge) FailNext(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failNext = n
}

// SetFailing makes every request answer 503 until cleared.
func (b *Bridge) SetFailing(failing bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failing = failing
}

// SetMalformed makes every response body invalid JSON.
func (b *Bridge) SetMalformed(malformed bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.malformed = malformed
}

// GroupedLight returns the current state of a grouped_light.
func (b *Bridge) GroupedLight(id string) (on bool, brightness float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.groupedLights[id]
	if s == nil {
		return false, 0
	}
	return s.On, s.Brightness
}

// Light returns the current state of a light.
func (b *Bridge) Light(id string) (on bool, brightness float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.lights[id]
	if s == nil {
		return false, 0
	}
	return s.On, s.Brightness
}

// SceneRecalls returns how often a scene was recalled.
func (b *Bridge) SceneRecalls(id string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.scenes[id]
}

// Requests returns a copy of all recorded requests.
func (b *Bridge) Requests() []Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Request, len(b.requests))
	copy(out, b.requests)
	return out
}

// Count returns the number of recorded requests matching method and path
// (path relative to /clip/v2/).
func (b *Bridge) Count(method, path string) int {
	n := 0
	for _, r := range b.Requests() {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}

// Puts returns the bodies of PUT requests to path, in order.
func (b *Bridge) Puts(path string) []string {
	var bodies []string
	for _, r := range b.Requests() {
		if r.Method == http.MethodPut && r.Path == path {
			bodies = append(bodies, r.Body)
		}
	}
	return bodies
}

// ResetRequests clears the request log.
func (b *Bridge) ResetRequests() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = nil
}

func (b *Bridge) handle(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	path := strings.TrimPrefix(r.URL.Path, "/clip/v2/")

	b.mu.Lock()
	defer b.mu.Unlock()

	b.requests = append(b.requests, Request{Method: r.Method, Path: path, Body: string(body)})

	if b.failing || b.failNext > 0 {
		if b.failNext > 0 {
			b.failNext--
		}
		http.Error(w, "bridge unavailable", http.StatusServiceUnavailable)
		return
	}
	if r.Header.Get("hue-application-key") == "" {
		writeErrors(w, http.StatusForbidden, "unauthorized user")
		return
	}
	if b.malformed {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[`))
		return
	}

	parts := strings.Split(strings.TrimPrefix(path, "resource/"), "/")
	if len(parts) != 2 {
		writeErrors(w, http.StatusNotFound, "unknown resource")
		return
	}
	rtype, id := parts[0], parts[1]

	switch rtype {
	case "room", "zone":
		gl, ok := b.owners[rtype+"/"+id]
		if !ok || r.Method != http.MethodGet {
			writeErrors(w, http.StatusNotFound, "resource not found")
			return
		}
		services := []map[string]string{{"rid": "dev-" + id, "rtype": "device"}}
		if gl != "" {
			services = append(services, map[string]string{"rid": gl, "rtype": "grouped_light"})
		}
		writeData(w, map[string]any{"id": id, "type": rtype, "services": services})

	case "grouped_light":
		b.handleLight(w, r, b.groupedLights, id, body)

	case "light":
		b.handleLight(w, r, b.lights, id, body)

	case "scene":
		if _, ok := b.scenes[id]; !ok || r.Method != http.MethodPut {
			writeErrors(w, http.StatusNotFound, "resource not found")
			return
		}
		var update struct {
			Recall *struct {
				Action string `json:"action"`
			} `json:"recall"`
		}
		if err := json.Unmarshal(body, &update); err != nil || update.Recall == nil || update.Recall.Action != "active" {
			writeErrors(w, http.StatusBadRequest, "invalid recall body")
			return
		}
		b.scenes[id]++
		writeData(w, map[string]string{"rid": id, "rtype": "scene"})

	default:
		writeErrors(w, http.StatusNotFound, "unknown resource type")
	}
}

func (b *Bridge) handleLight(w http.ResponseWriter, r *http.Request, store map[string]*lightState, id string, body []byte) {
	s, ok := store[id]
	if !ok {
		writeErrors(w, http.StatusNotFound, "resource not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		writeData(w, map[string]any{
			"id":      id,
			"on":      map[string]bool{"on": s.On},
			"dimming": map[string]float64{"brightness": s.Brightness},
		})
	case http.MethodPut:
		var update struct {
			On *struct {
				On bool `json:"on"`
			} `json:"on"`
			Dimming *struct {
				Brightness float64 `json:"brightness"`
			} `json:"dimming"`
		}
		if err := json.Unmarshal(body, &update); err != nil {
			writeErrors(w, http.StatusBadRequest, "invalid body")
			return
		}
		if update.On != nil {
			s.On = update.On.On
		}
		if update.Dimming != nil {
			if update.Dimming.Brightness < 0 || update.Dimming.Brightness > 100 {
				writeErrors(w, http.StatusBadRequest, "brightness out of range")
				return
			}
			s.Brightness = update.Dimming.Brightness
		}
		writeData(w, map[string]string{"rid": id})
	default:
		writeErrors(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func writeData(w http.ResponseWriter, item any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"errors": []any{}, "data": []any{item}})
}

func writeErrors(w http.ResponseWriter, status int, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"errors": []map[string]string{{"description": description}},
		"data":   []any{},
	})
}

// Discovery is a fake discovery endpoint.
type Discovery struct {
	server *httptest.Server

	mu       sync.Mutex
	body     string
	status   int
	requests int
}

// NewDiscovery starts a discovery endpoint announcing no bridges.
func NewDiscovery(t testing.TB) *Discovery {
	t.Helper()
	d := &Discovery{body: "[]", status: http.StatusOK}
	d.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.requests++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(d.status)
		w.Write([]byte(d.body))
	}))
	t.Cleanup(d.server.Close)
	return d
}

// URL returns the discovery URL.
func (d *Discovery) URL() string {
	return d.server.URL
}

// Announce makes discovery answer with the given host:port address.
func (d *Discovery) Announce(address string) {
	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		host, portStr = address, "443"
	}
	port, _ := strconv.Atoi(portStr)
	d.SetBody(fmt.Sprintf(`[{"id":"001788fffe000000","internalipaddress":%q,"port":%d}]`, host, port))
}

// SetBody sets the raw response body.
func (d *Discovery) SetBody(body string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.body = body
	d.status = http.StatusOK
}

// SetStatus sets the response status code.
func (d *Discovery) SetStatus(status int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.status = status
}

// Requests returns the number of discovery requests served.
func (d *Discovery) Requests() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.requests
}
