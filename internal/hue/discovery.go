package hue

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/amimof/huego"
	"github.com/rs/zerolog/log"
)

// ErrNoBridges is returned when discovery succeeds but lists no usable bridge.
var ErrNoBridges = errors.New("discovery returned no bridge address")

// Discoverer finds the current bridge address on the network.
type Discoverer interface {
	Discover(ctx context.Context) (string, error)
}

// Endpoint is the mutable endpoint record written by the resolver.
type Endpoint interface {
	Address() string
	SetAddress(address string)
}

// Resolver refreshes the bridge endpoint. It never retries on its own;
// the retry coordinator calls Refresh at most once per failure episode.
type Resolver struct {
	endpoint   Endpoint
	discoverer Discoverer
}

// NewResolver creates a resolver writing discovered addresses to endpoint.
func NewResolver(endpoint Endpoint, discoverer Discoverer) *Resolver {
	return &Resolver{
		endpoint:   endpoint,
		discoverer: discoverer,
	}
}

// Refresh runs discovery once. On success the endpoint record is replaced,
// which invalidates any grouped_light id cached against the previous one.
// On failure the record is left untouched.
func (r *Resolver) Refresh(ctx context.Context) error {
	address, err := r.discoverer.Discover(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Hue discovery failed")
		return err
	}

	previous := r.endpoint.Address()
	r.endpoint.SetAddress(address)

	log.Info().
		Str("address", address).
		Str("previous", previous).
		Msg("Hue bridge address updated")
	return nil
}

// HTTPDiscoverer queries a discovery endpoint that answers with the
// discovery.meethue.com JSON format.
type HTTPDiscoverer struct {
	url        string
	httpClient *http.Client
}

// NewHTTPDiscoverer creates a discoverer for the given URL.
func NewHTTPDiscoverer(url string, timeout time.Duration) *HTTPDiscoverer {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &HTTPDiscoverer{
		url: url,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
		},
	}
}

// Discover implements Discoverer.
func (d *HTTPDiscoverer) Discover(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.url, nil)
	if err != nil {
		return "", err
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("discovery request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("discovery request: unexpected status code: %d", resp.StatusCode)
	}

	var bridges []DiscoveredBridge
	if err := json.NewDecoder(resp.Body).Decode(&bridges); err != nil {
		return "", fmt.Errorf("discovery returned invalid JSON: %w", err)
	}

	return firstAddress(bridges)
}

// firstAddress assumes a single bridge on the network and uses the first entry.
func firstAddress(bridges []DiscoveredBridge) (string, error) {
	if len(bridges) == 0 || bridges[0].InternalIPAddress == "" {
		return "", ErrNoBridges
	}
	b := bridges[0]
	if b.Port != 0 && b.Port != 443 {
		return net.JoinHostPort(b.InternalIPAddress, strconv.Itoa(b.Port)), nil
	}
	return b.InternalIPAddress, nil
}

// HuegoDiscoverer uses huego's discovery.meethue.com client.
type HuegoDiscoverer struct{}

// Discover implements Discoverer.
func (HuegoDiscoverer) Discover(ctx context.Context) (string, error) {
	bridges, err := huego.DiscoverAllContext(ctx)
	if err != nil {
		return "", fmt.Errorf("discovery request: %w", err)
	}
	if len(bridges) == 0 || bridges[0].Host == "" {
		return "", ErrNoBridges
	}
	return bridges[0].Host, nil
}
