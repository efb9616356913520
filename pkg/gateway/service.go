package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"rtmbot/pkg/bus"
	"rtmbot/pkg/channel"
	"rtmbot/pkg/command"
	"rtmbot/pkg/config"
	"rtmbot/pkg/dispatch"
	"rtmbot/pkg/metrics"
	"rtmbot/pkg/session"
	"rtmbot/pkg/webhook"
)

const (
	defaultWebHost  = "0.0.0.0"
	shutdownTimeout = 5 * time.Second
	eventBuffer     = 64
)

// Dependencies are the pieces a Service wires together. Commands, Webhooks
// and Session must be ready before Run is called.
type Dependencies struct {
	Session  *session.Context
	Commands *command.Registry
	Webhooks *webhook.Registry
	Adapters []channel.Adapter
	Metrics  *metrics.Collector
	Bus      *bus.MessageBus
}

// Service runs the dispatch loop, the outbound pump, every transport and the
// optional webhook server until its context ends or one of them fails.
// Commands and webhooks share one execution lock so their handlers never
// run at the same time.
type Service struct {
	cfg        *config.Config
	log        *slog.Logger
	session    *session.Context
	bus        *bus.MessageBus
	dispatcher *dispatch.Dispatcher
	webhooks   *webhook.Router
	metrics    *metrics.Collector
	channels   []channel.Adapter

	mu            sync.RWMutex
	startedAt     time.Time
	channelStates map[string]channelState
	activity      activity
}

// activity is folded from the bus observation events.
type activity struct {
	CommandsHandled int64  `json:"commands_handled"`
	WebhooksServed  int64  `json:"webhooks_served"`
	HandlerFailures int64  `json:"handler_failures"`
	LastFailure     string `json:"last_failure,omitempty"`
	LastFailureAt   string `json:"last_failure_at,omitempty"`
}

type channelState struct {
	Running bool   `json:"running"`
	Error   string `json:"error,omitempty"`
}

type statusResponse struct {
	Status        string                  `json:"status"`
	UptimeSeconds int64                   `json:"uptime_seconds"`
	SelfID        string                  `json:"self_id,omitempty"`
	Channels      map[string]channelState `json:"channels"`
	Activity      activity                `json:"activity"`
}

func NewService(cfg *config.Config, deps Dependencies, log *slog.Logger) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if deps.Session == nil {
		return nil, errors.New("session context is required")
	}
	if deps.Commands == nil || deps.Webhooks == nil {
		return nil, errors.New("command and webhook registries are required")
	}
	if len(deps.Adapters) == 0 {
		return nil, errors.New("at least one channel adapter is required")
	}
	if log == nil {
		log = slog.Default()
	}

	mb := deps.Bus
	if mb == nil {
		mb = bus.NewMessageBus()
	}

	exec := &sync.Mutex{}
	dispatcher, err := dispatch.New(deps.Commands, deps.Session, mb,
		dispatch.WithMetrics(deps.Metrics),
		dispatch.WithLogger(log),
		dispatch.WithExecLock(exec),
	)
	if err != nil {
		return nil, fmt.Errorf("initialize dispatcher: %w", err)
	}

	router, err := webhook.NewRouter(webhook.RouterConfig{
		Registry:  deps.Webhooks,
		AuthToken: cfg.Webserver.AuthToken,
		Session:   deps.Session,
		Sender:    dispatch.BusSender(mb),
		Bus:       mb,
		Metrics:   deps.Metrics,
		Logger:    log,
		ExecLock:  exec,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize webhook router: %w", err)
	}

	channelStates := make(map[string]channelState, len(deps.Adapters))
	for _, adapter := range deps.Adapters {
		channelStates[adapter.Name()] = channelState{}
	}

	return &Service{
		cfg:           cfg,
		log:           log.With("component", "gateway.service"),
		session:       deps.Session,
		bus:           mb,
		dispatcher:    dispatcher,
		webhooks:      router,
		metrics:       deps.Metrics,
		channels:      deps.Adapters,
		channelStates: channelStates,
	}, nil
}

// Run blocks until ctx is cancelled or a component fails. A cancelled context
// is a clean shutdown and returns nil.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	s.startedAt = time.Now().UTC()
	s.mu.Unlock()

	var wg sync.WaitGroup
	errCh := make(chan error, len(s.channels)+2)

	events, unsubscribe := s.bus.SubscribeEvents(ctx, eventBuffer)
	defer unsubscribe()
	wg.Add(1)
	go func() {
		defer wg.Done()
		for event := range events {
			s.observe(event)
		}
	}()

	if s.cfg.Webserver.Enabled() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.runWebServer(ctx); err != nil {
				errCh <- err
			}
		}()
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := s.dispatcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("dispatch loop: %w", err)
		}
	}()
	go func() {
		defer wg.Done()
		s.pumpOutbound(ctx)
	}()

	for _, adapter := range s.channels {
		s.setChannelState(adapter.Name(), channelState{Running: true})

		wg.Add(1)
		go func() {
			defer wg.Done()
			err := adapter.Run(ctx, s.bus)
			s.setChannelState(adapter.Name(), channelState{Running: false, Error: errorString(err)})
			if err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("run %s channel: %w", adapter.Name(), err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	cancel()
	wg.Wait()
	s.bus.Close()
	return runErr
}

// Handler returns the HTTP surface: webhook entry points, health checks and,
// when enabled, Prometheus metrics.
func (s *Service) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	if s.cfg.Metrics.Enabled {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}
	r.Method(http.MethodPost, "/", s.webhooks)
	r.Method(http.MethodPost, "/webhook", s.webhooks)

	return r
}

// observe folds one bus observation into the status counters.
func (s *Service) observe(event bus.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	failed := false
	switch event.Type {
	case bus.EventCommandMatched:
		s.activity.CommandsHandled++
	case bus.EventHandlerFailed:
		failed = true
	case bus.EventWebhookServed:
		s.activity.WebhooksServed++
		failed = event.Status >= http.StatusInternalServerError
	}
	if !failed {
		return
	}

	s.activity.HandlerFailures++
	s.activity.LastFailure = event.Error
	if event.Handler != "" {
		s.activity.LastFailure = event.Handler + ": " + event.Error
	}
	s.activity.LastFailureAt = event.At.UTC().Format(time.RFC3339)
	s.log.Warn("Handler failure observed", "type", event.Type, "handler", event.Handler, "error", event.Error)
}

// pumpOutbound hands queued replies to the transport that owns their source.
func (s *Service) pumpOutbound(ctx context.Context) {
	for {
		msg, ok := s.bus.SubscribeOutbound(ctx)
		if !ok {
			return
		}
		if err := s.bus.Deliver(ctx, msg); err != nil {
			s.log.Warn("Failed to deliver message", "source", msg.Source, "channel", msg.Channel, "error", err)
		}
	}
}

func (s *Service) runWebServer(ctx context.Context) error {
	host := strings.TrimSpace(s.cfg.Webserver.Host)
	if host == "" {
		host = defaultWebHost
	}

	addr := net.JoinHostPort(host, strconv.Itoa(s.cfg.Webserver.Port))
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.log.Info("Webserver started", "address", addr, "metrics", s.cfg.Metrics.Enabled)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start webserver: %w", err)
	}
	return nil
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondStatus(w, http.StatusOK, "ok")
}

func (s *Service) handleReady(w http.ResponseWriter, _ *http.Request) {
	statusCode := http.StatusOK
	status := "ready"
	if !s.isReady() {
		statusCode = http.StatusServiceUnavailable
		status = "not_ready"
	}

	s.respondStatus(w, statusCode, status)
}

func (s *Service) respondStatus(w http.ResponseWriter, statusCode int, status string) {
	payload := s.currentStatus(status)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error("Failed to write status response", "error", err)
	}
}

func (s *Service) currentStatus(status string) statusResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()

	uptime := int64(0)
	if !s.startedAt.IsZero() {
		uptime = int64(time.Since(s.startedAt).Seconds())
	}

	channels := make(map[string]channelState, len(s.channelStates))
	for name, state := range s.channelStates {
		channels[name] = state
	}

	return statusResponse{
		Status:        status,
		UptimeSeconds: uptime,
		SelfID:        s.session.SelfID(),
		Channels:      channels,
		Activity:      s.activity,
	}
}

// isReady requires an initialised session and at least one running transport.
func (s *Service) isReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.session == nil {
		return false
	}

	for _, state := range s.channelStates {
		if state.Running {
			return true
		}
	}
	return false
}

func (s *Service) setChannelState(name string, state channelState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channelStates[name] = state
}

func errorString(err error) string {
	if err == nil {
		return ""
	}

	return err.Error()
}
