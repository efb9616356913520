// Package session holds the bot identity fetched once from the gateway's
// session-initiation call.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultEndpoint is the gateway's session-initiation call.
const DefaultEndpoint = "https://slack.com/api/rtm.start"

const maxSessionBodySize = 8 << 20

// Credentials are sent as query parameters on the initiation call.
type Credentials struct {
	Token string
}

// Initiator performs the session-initiation call and returns the raw body.
type Initiator interface {
	Initiate(ctx context.Context, creds Credentials) ([]byte, error)
}

// Context is the immutable session metadata shared by all handlers.
type Context struct {
	selfID string
	url    string
	raw    map[string]any
}

// New builds a session context directly. Used by tests and embedders that
// obtain the identity another way.
func New(selfID string, raw map[string]any) *Context {
	return &Context{selfID: selfID, raw: maps.Clone(raw)}
}

// SelfID is the bot's own user id, used for mention stripping.
func (c *Context) SelfID() string {
	if c == nil {
		return ""
	}
	return c.selfID
}

// URL is the gateway stream address handed out by the initiation call.
func (c *Context) URL() string {
	if c == nil {
		return ""
	}
	return c.url
}

// Raw returns a copy of the top-level fields of the decoded payload.
func (c *Context) Raw() map[string]any {
	if c == nil {
		return nil
	}
	return maps.Clone(c.raw)
}

// Lookup walks a dotted path ("team.domain") through the decoded payload.
func (c *Context) Lookup(path string) (any, bool) {
	if c == nil {
		return nil, false
	}

	var current any = c.raw
	for _, key := range strings.Split(path, ".") {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = obj[key]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// InitError reports a failed session initiation. It is fatal to startup.
type InitError struct {
	Op  string
	Err error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("session init: %s: %v", e.Op, e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

var (
	// ErrGateway wraps an `error` field returned by the gateway.
	ErrGateway = errors.New("gateway rejected session")
	// ErrMissingSelf marks a session payload without self.id.
	ErrMissingSelf = errors.New("session payload has no self.id")
)

// Initialize calls the initiator once and decodes the session payload.
func Initialize(ctx context.Context, initiator Initiator, creds Credentials) (*Context, error) {
	if initiator == nil {
		return nil, &InitError{Op: "configure", Err: errors.New("initiator is required")}
	}
	if strings.TrimSpace(creds.Token) == "" {
		return nil, &InitError{Op: "configure", Err: errors.New("token is required")}
	}

	body, err := initiator.Initiate(ctx, creds)
	if err != nil {
		return nil, &InitError{Op: "request", Err: err}
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil || payload == nil {
		if err == nil {
			err = errors.New("empty payload")
		}
		return nil, &InitError{Op: "decode", Err: fmt.Errorf("decode body (%s): %w", preview(body), err)}
	}

	if raw, ok := payload["error"]; ok && raw != nil {
		return nil, &InitError{Op: "gateway", Err: fmt.Errorf("%w: %v", ErrGateway, raw)}
	}

	sc := &Context{raw: payload}
	sc.url, _ = payload["url"].(string)
	if self, ok := payload["self"].(map[string]any); ok {
		sc.selfID, _ = self["id"].(string)
	}
	if strings.TrimSpace(sc.selfID) == "" {
		return nil, &InitError{Op: "decode", Err: fmt.Errorf("%w (%s)", ErrMissingSelf, preview(body))}
	}

	return sc, nil
}

// HTTPInitiator calls the gateway endpoint with credentials in the query string.
type HTTPInitiator struct {
	Endpoint string
	Client   *http.Client
}

// NewHTTPInitiator builds an initiator for endpoint, falling back to DefaultEndpoint.
func NewHTTPInitiator(endpoint string) *HTTPInitiator {
	if strings.TrimSpace(endpoint) == "" {
		endpoint = DefaultEndpoint
	}
	return &HTTPInitiator{
		Endpoint: endpoint,
		Client:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (h *HTTPInitiator) Initiate(ctx context.Context, creds Credentials) ([]byte, error) {
	endpoint, err := url.Parse(h.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	query := endpoint.Query()
	query.Set("token", creds.Token)
	endpoint.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting %s: %w", h.Endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSessionBodySize))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	return body, nil
}

func preview(body []byte) string {
	const limit = 120
	text := strings.TrimSpace(string(body))
	if len(text) <= limit {
		return text
	}
	cut := 0
	for i := range text {
		if i > limit {
			break
		}
		cut = i
	}
	return text[:cut] + "..."
}
