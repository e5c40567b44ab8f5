package hue

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrEmptyResponse is returned when a GET succeeds but carries no resource.
var ErrEmptyResponse = errors.New("empty response data")

// Client is the CLIP v2 transport. It owns the bridge endpoint record:
// the address is replaced only by SetAddress, and every replacement bumps
// a generation counter that caches use to detect endpoint changes.
type Client struct {
	token      string
	httpClient *http.Client

	mu         sync.RWMutex
	address    string
	generation uint64
}

// NewClient creates a new CLIP v2 client. The address may be empty until
// discovery provides one.
func NewClient(address, token string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	// Hue bridges use a self-signed certificate
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
	}

	return &Client{
		address: address,
		token:   token,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}
}

// Address returns the current bridge address.
func (c *Client) Address() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.address
}

// Generation returns the endpoint generation, incremented on every SetAddress.
func (c *Client) Generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generation
}

// SetAddress replaces the endpoint record.
func (c *Client) SetAddress(address string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.address = address
	c.generation++
}

// Token returns the application key.
func (c *Client) Token() string {
	return c.token
}

// Close closes idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func (c *Client) url(path string) (string, error) {
	address := c.Address()
	if address == "" {
		return "", errors.New("bridge address unknown")
	}
	return fmt.Sprintf("https://%s/clip/v2/%s", address, path), nil
}

// Request performs an HTTP request against the CLIP v2 API.
func (c *Client) Request(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	url, err := c.url(path)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("hue-application-key", c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.httpClient.Do(req)
}

// call performs a request and decodes the CLIP envelope into out.
// Non-2xx statuses, CLIP errors and malformed bodies are all failures.
func call[T any](ctx context.Context, c *Client, method, path string, payload any) ([]T, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	resp, err := c.Request(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var result envelope[T]
	decodeErr := json.Unmarshal(raw, &result)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if decodeErr == nil && len(result.Errors) > 0 {
			return nil, fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, joinErrors(result.Errors))
		}
		return nil, fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("%s %s: invalid JSON: %w", method, path, decodeErr)
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("%s %s: %s", method, path, joinErrors(result.Errors))
	}

	return result.Data, nil
}

func joinErrors(errs []APIError) string {
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		parts = append(parts, e.Description)
	}
	return strings.Join(parts, "; ")
}

func first[T any](items []T, err error) (*T, error) {
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrEmptyResponse
	}
	return &items[0], nil
}

// GetGroup returns the room or zone referenced by owner.
func (c *Client) GetGroup(ctx context.Context, owner Owner) (*Group, error) {
	items, err := call[Group](ctx, c, http.MethodGet, fmt.Sprintf("resource/%s/%s", owner.Kind, owner.ID), nil)
	return first(items, err)
}

// GetGroupedLight returns a grouped_light by ID.
func (c *Client) GetGroupedLight(ctx context.Context, id string) (*GroupedLight, error) {
	items, err := call[GroupedLight](ctx, c, http.MethodGet, "resource/grouped_light/"+id, nil)
	return first(items, err)
}

// UpdateGroupedLight applies an update to a grouped_light.
func (c *Client) UpdateGroupedLight(ctx context.Context, id string, update Update) error {
	_, err := call[ResourceRef](ctx, c, http.MethodPut, "resource/grouped_light/"+id, update)
	return err
}

// GetLight returns a light by ID.
func (c *Client) GetLight(ctx context.Context, id string) (*Light, error) {
	items, err := call[Light](ctx, c, http.MethodGet, "resource/light/"+id, nil)
	return first(items, err)
}

// UpdateLight applies an update to a light.
func (c *Client) UpdateLight(ctx context.Context, id string, update Update) error {
	_, err := call[ResourceRef](ctx, c, http.MethodPut, "resource/light/"+id, update)
	return err
}

// RecallScene activates a scene.
func (c *Client) RecallScene(ctx context.Context, id string) error {
	_, err := call[ResourceRef](ctx, c, http.MethodPut, "resource/scene/"+id, RecallActive())
	if err == nil {
		log.Debug().Str("scene", id).Msg("Scene recalled")
	}
	return err
}
