package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"hospital_locker/server/common/env"
)

const (
	defaultHTTPTimeout      = 15 * time.Second
	defaultFailThreshold    = 3
	defaultEndpointCooldown = 10 * time.Second
	maxErrorBody            = 4 << 10
)

var (
	ErrMissingToken = errors.New("no bearer token")
	ErrNoEndpoint   = errors.New("locker api endpoint is not configured")
	ErrTransport    = errors.New("locker api unreachable")
)

// StatusError is a response outside 2xx. Message holds the start of the body.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("locker api status %d", e.Status)
	}
	return fmt.Sprintf("locker api status %d: %s", e.Status, e.Message)
}

// Request describes one authenticated call. JSON is marshalled when set;
// otherwise Body is sent as-is with ContentType.
type Request struct {
	Method      string
	Path        string
	Token       string
	JSON        any
	Body        []byte
	ContentType string
}

type Client struct {
	endpoints []string
	http      *http.Client

	failThreshold    int
	endpointCooldown time.Duration

	mu         sync.Mutex
	active     int
	failureCnt map[string]int
	cooldownTo map[string]time.Time
}

func NewClient(timeout time.Duration, endpoints ...string) *Client {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	normalized := normalizeEndpoints(endpoints)
	return &Client{
		endpoints:        normalized,
		http:             &http.Client{Timeout: timeout},
		failThreshold:    env.Int("LOCKER_API_FAIL_THRESHOLD", defaultFailThreshold),
		endpointCooldown: env.Millis("LOCKER_API_COOLDOWN_MS", defaultEndpointCooldown),
		failureCnt:       make(map[string]int, len(normalized)),
		cooldownTo:       make(map[string]time.Time, len(normalized)),
	}
}

// Do sends req once to the current endpoint and decodes the response into
// out. out may be nil, *[]byte for raw bytes, *string for text, or anything
// encoding/json accepts. Failures are returned as-is; an endpoint that keeps
// failing is cooled down so later calls go to the next one.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	if strings.TrimSpace(req.Token) == "" {
		return ErrMissingToken
	}
	if len(c.endpoints) == 0 {
		return ErrNoEndpoint
	}
	body, contentType, err := encodeBody(req)
	if err != nil {
		return err
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	path := req.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	endpoint := c.pickEndpoint(time.Now())
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, endpoint+path, reader)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Authorization", "Bearer "+req.Token)
	httpReq.Header.Set("X-Request-ID", uuid.NewString())
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.onFailure(endpoint, time.Now())
		return fmt.Errorf("%w: %s %s: %v", ErrTransport, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if resp.StatusCode >= 500 {
			c.onFailure(endpoint, time.Now())
		}
		return &StatusError{Status: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}

	if err := decode(resp.Body, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	c.onSuccess(endpoint)
	return nil
}

// Endpoint reports where the next call will be sent.
func (c *Client) Endpoint() string {
	if len(c.endpoints) == 0 {
		return ""
	}
	return c.pickEndpoint(time.Now())
}

// pickEndpoint returns the first endpoint, from the active one onward, that
// is not cooling down. With every endpoint cooling down the active one is used.
func (c *Client) pickEndpoint(now time.Time) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	for offset := 0; offset < len(c.endpoints); offset++ {
		idx := (c.active + offset) % len(c.endpoints)
		endpoint := c.endpoints[idx]
		if until, ok := c.cooldownTo[endpoint]; ok {
			if now.Before(until) {
				continue
			}
			delete(c.cooldownTo, endpoint)
		}
		c.active = idx
		return endpoint
	}
	return c.endpoints[c.active]
}

func encodeBody(req Request) ([]byte, string, error) {
	if req.JSON != nil {
		b, err := json.Marshal(req.JSON)
		if err != nil {
			return nil, "", err
		}
		return b, "application/json", nil
	}
	return req.Body, req.ContentType, nil
}

func decode(r io.Reader, out any) error {
	switch dst := out.(type) {
	case nil:
		_, err := io.Copy(io.Discard, r)
		return err
	case *[]byte:
		b, err := io.ReadAll(r)
		if err != nil {
			return err
		}
		*dst = b
		return nil
	case *string:
		b, err := io.ReadAll(r)
		if err != nil {
			return err
		}
		*dst = string(b)
		return nil
	default:
		return json.NewDecoder(r).Decode(out)
	}
}

func normalizeEndpoints(endpoints []string) []string {
	result := make([]string, 0, len(endpoints))
	seen := map[string]struct{}{}
	for _, endpoint := range endpoints {
		normalized := strings.TrimRight(strings.TrimSpace(endpoint), "/")
		if normalized == "" {
			continue
		}
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		result = append(result, normalized)
	}
	return result
}

func (c *Client) onFailure(endpoint string, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	count := c.failureCnt[endpoint] + 1
	c.failureCnt[endpoint] = count
	if count >= c.failThreshold {
		c.cooldownTo[endpoint] = now.Add(c.endpointCooldown)
		c.failureCnt[endpoint] = 0
	}
}

func (c *Client) onSuccess(endpoint string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failureCnt[endpoint] = 0
	delete(c.cooldownTo, endpoint)
}
