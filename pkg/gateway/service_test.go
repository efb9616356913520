package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rtmbot/pkg/bus"
	"rtmbot/pkg/channel"
	"rtmbot/pkg/command"
	"rtmbot/pkg/config"
	"rtmbot/pkg/metrics"
	"rtmbot/pkg/session"
	"rtmbot/pkg/webhook"
)

type idleAdapter struct{ name string }

func (a idleAdapter) Name() string { return a.name }

func (a idleAdapter) Run(ctx context.Context, _ *bus.MessageBus) error {
	<-ctx.Done()
	return nil
}

func newTestService(t *testing.T, cfg *config.Config, webhooks ...webhook.Handler) *Service {
	t.Helper()

	registry := webhook.NewRegistry()
	for _, h := range webhooks {
		require.NoError(t, registry.Register(h))
	}

	svc, err := NewService(cfg, Dependencies{
		Session:  session.New("UBOT", map[string]any{"self": map[string]any{"id": "UBOT"}}),
		Commands: command.NewRegistry(),
		Webhooks: registry,
		Adapters: []channel.Adapter{idleAdapter{name: "rtm"}},
		Metrics:  metrics.NewCollector(),
	}, nil)
	require.NoError(t, err)
	return svc
}

func TestNewServiceValidatesDependencies(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	sc := session.New("UBOT", nil)

	_, err := NewService(nil, Dependencies{}, nil)
	assert.Error(t, err)

	_, err = NewService(cfg, Dependencies{Commands: command.NewRegistry(), Webhooks: webhook.NewRegistry()}, nil)
	assert.Error(t, err, "session is required")

	_, err = NewService(cfg, Dependencies{Session: sc, Commands: command.NewRegistry(), Webhooks: webhook.NewRegistry()}, nil)
	assert.Error(t, err, "an adapter is required")
}

func TestIsReady(t *testing.T) {
	t.Parallel()

	svc := &Service{
		session:       session.New("UBOT", nil),
		channelStates: map[string]channelState{"rtm": {}},
	}
	if svc.isReady() {
		t.Fatal("expected not ready without a running channel")
	}

	svc.channelStates["rtm"] = channelState{Running: true}
	if !svc.isReady() {
		t.Fatal("expected ready with a running channel and a session")
	}

	svc.session = nil
	if svc.isReady() {
		t.Fatal("expected not ready without a session")
	}
}

func TestHandlerRoutes(t *testing.T) {
	t.Parallel()

	echo := webhook.Func("echo", func(_ context.Context, req *webhook.Request) (any, error) {
		return req.Payload.String("value"), nil
	})
	svc := newTestService(t, &config.Config{
		Webserver: config.WebserverConfig{Port: 1, AuthToken: "tok"},
		Metrics:   config.MetricsConfig{Enabled: true},
	}, echo)
	handler := svc.Handler()

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
		wantBody   string
	}{
		{name: "healthz", method: http.MethodGet, path: "/healthz", wantStatus: http.StatusOK, wantBody: `"status":"ok"`},
		{name: "readyz before run", method: http.MethodGet, path: "/readyz", wantStatus: http.StatusServiceUnavailable, wantBody: `"not_ready"`},
		{name: "metrics", method: http.MethodGet, path: "/metrics", wantStatus: http.StatusOK, wantBody: "go_goroutines"},
		{name: "webhook root", method: http.MethodPost, path: "/", body: `{"webhook":"echo","webserver_auth":"tok","value":"v"}`, wantStatus: http.StatusOK, wantBody: `"data":"v"`},
		{name: "webhook path", method: http.MethodPost, path: "/webhook", body: `{"webhook":"echo","webserver_auth":"tok","value":"w"}`, wantStatus: http.StatusOK, wantBody: `"data":"w"`},
		{name: "bad auth", method: http.MethodPost, path: "/", body: `{"webhook":"echo","webserver_auth":"nope"}`, wantStatus: http.StatusForbidden, wantBody: "Invalid auth token"},
		{name: "unknown webhook", method: http.MethodPost, path: "/", body: `{"webhook":"missing","webserver_auth":"tok"}`, wantStatus: http.StatusNotFound},
		{name: "get on webhook", method: http.MethodGet, path: "/webhook", wantStatus: http.StatusMethodNotAllowed},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.body))
			if tc.body != "" {
				req.Header.Set("Content-Type", "application/json")
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tc.wantStatus, rec.Code)
			if tc.wantBody != "" {
				assert.Contains(t, rec.Body.String(), tc.wantBody)
			}
		})
	}
}

func TestHandlerOmitsMetricsWhenDisabled(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, &config.Config{})
	rec := httptest.NewRecorder()
	svc.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCurrentStatusReportsChannels(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, &config.Config{})
	svc.setChannelState("rtm", channelState{Running: false, Error: "boom"})

	rec := httptest.NewRecorder()
	svc.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	var status statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "ok", status.Status)
	assert.Equal(t, "UBOT", status.SelfID)
	assert.Equal(t, channelState{Error: "boom"}, status.Channels["rtm"])
}

func TestObserveFoldsBusEvents(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, &config.Config{})
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	svc.observe(bus.Event{Type: bus.EventCommandMatched, Handler: "ping"})
	svc.observe(bus.Event{Type: bus.EventWebhookServed, Handler: "output", Status: http.StatusOK})
	svc.observe(bus.Event{Type: bus.EventWebhookServed, Handler: "unknown", Status: http.StatusForbidden})
	svc.observe(bus.Event{Type: bus.EventHandlerFailed, Handler: "count", Error: "boom", At: at})
	svc.observe(bus.Event{Type: bus.EventWebhookServed, Handler: "output", Status: http.StatusInternalServerError, Error: "down", At: at.Add(time.Minute)})

	got := svc.currentStatus("ok").Activity
	assert.Equal(t, int64(1), got.CommandsHandled)
	assert.Equal(t, int64(3), got.WebhooksServed)
	assert.Equal(t, int64(2), got.HandlerFailures)
	assert.Equal(t, "output: down", got.LastFailure)
	assert.Equal(t, "2026-03-01T12:01:00Z", got.LastFailureAt)
}
