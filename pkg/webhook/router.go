package webhook

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"rtmbot/pkg/bus"
	"rtmbot/pkg/command"
	"rtmbot/pkg/metrics"
	"rtmbot/pkg/session"
)

const (
	maxRequestBodySize = 1 << 20
	responseType       = "application/json; charset=utf8"

	// unknownLabel stands in for any webhook name that is not registered so
	// callers cannot mint new metric series.
	unknownLabel = "unknown"
)

// Response is the status and JSON body returned for one webhook call.
type Response struct {
	Status int
	Body   map[string]any
}

// Router authenticates webhook calls and invokes the named handler.
// Handler executions are serialised on the execution lock: one call finishes
// before the next starts, and a lock shared with the dispatcher also keeps
// webhooks from overlapping commands.
type Router struct {
	registry  *Registry
	authToken string
	session   *session.Context
	sender    command.Sender
	bus       *bus.MessageBus
	metrics   *metrics.Collector
	log       *slog.Logger

	exec *sync.Mutex
}

// RouterConfig wires a Router. Only Registry is required. ExecLock defaults
// to a lock private to the router.
type RouterConfig struct {
	Registry  *Registry
	AuthToken string
	Session   *session.Context
	Sender    command.Sender
	Bus       *bus.MessageBus
	Metrics   *metrics.Collector
	Logger    *slog.Logger
	ExecLock  *sync.Mutex
}

func NewRouter(cfg RouterConfig) (*Router, error) {
	if cfg.Registry == nil {
		return nil, errors.New("webhook registry is required")
	}

	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	exec := cfg.ExecLock
	if exec == nil {
		exec = &sync.Mutex{}
	}

	return &Router{
		registry:  cfg.Registry,
		authToken: cfg.AuthToken,
		session:   cfg.Session,
		sender:    cfg.Sender,
		bus:       cfg.Bus,
		metrics:   cfg.Metrics,
		log:       log.With("component", "webhook.router"),
		exec:      exec,
	}, nil
}

// Route validates payload and runs the webhook it names.
func (r *Router) Route(ctx context.Context, payload Payload) Response {
	id := uuid.NewString()
	name := fmt.Sprint(valueOrEmpty(payload[FieldWebhook]))

	resp := r.route(ctx, id, name, payload)

	label := r.label(payload)
	r.metrics.ObserveWebhook(label, resp.Status)
	if r.bus != nil {
		event := bus.Event{Type: bus.EventWebhookServed, Handler: label, RequestID: id, Status: resp.Status}
		if msg, ok := resp.Body["error"].(string); ok {
			event.Error = msg
		}
		r.bus.PublishEvent(ctx, event)
	}
	r.log.Info("Webhook served", "request_id", id, "webhook", name, "status", resp.Status)

	return resp
}

func (r *Router) route(ctx context.Context, id, name string, payload Payload) Response {
	if r.authToken != "" {
		offered, ok := payload[FieldAuth].(string)
		if !ok || subtle.ConstantTimeCompare([]byte(offered), []byte(r.authToken)) != 1 {
			return errorResponse(&RequestError{Status: http.StatusForbidden, Message: "Invalid auth token", Err: ErrAuth})
		}
	}

	key, isString := payload[FieldWebhook].(string)
	h, found := r.registry.Lookup(key)
	if !isString || !found {
		return errorResponse(&RequestError{
			Status:  http.StatusNotFound,
			Message: fmt.Sprintf("No webhook found named, %q", name),
			Err:     ErrNotFound,
		})
	}

	result, err := r.execute(ctx, h, NewRequest(id, payload, r.session, r.sender))
	if err != nil {
		var reqErr *RequestError
		if errors.As(err, &reqErr) {
			return errorResponse(reqErr)
		}
		r.log.Error("Webhook failed", "request_id", id, "webhook", name, "error", err)
		return errorResponse(&RequestError{
			Status:  http.StatusInternalServerError,
			Message: fmt.Sprintf("Webhook %q failed: %v", name, err),
			Err:     fmt.Errorf("%w: %w", ErrHandler, err),
		})
	}

	return Response{Status: http.StatusOK, Body: map[string]any{"data": result}}
}

func (r *Router) execute(ctx context.Context, h Handler, req *Request) (result any, err error) {
	r.exec.Lock()
	defer r.exec.Unlock()

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()

	return h.Execute(ctx, req)
}

// ServeHTTP decodes the body, routes it and writes the JSON reply.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, req.Body, maxRequestBodySize))
	if err != nil {
		writeResponse(w, r.log, errorResponse(badRequest("%v", err)))
		return
	}

	payload, err := Decode(req.Header.Get("Content-Type"), body)
	if err != nil {
		var reqErr *RequestError
		if !errors.As(err, &reqErr) {
			reqErr = badRequest("%v", err)
		}
		r.metrics.ObserveWebhook(unknownLabel, reqErr.Status)
		r.log.Warn("Rejected webhook body", "status", reqErr.Status, "error", reqErr.Message)
		writeResponse(w, r.log, errorResponse(reqErr))
		return
	}

	writeResponse(w, r.log, r.Route(req.Context(), payload))
}

// label is the registered webhook name, or unknownLabel for anything else.
func (r *Router) label(payload Payload) string {
	name, ok := payload[FieldWebhook].(string)
	if !ok {
		return unknownLabel
	}
	if _, found := r.registry.Lookup(name); !found {
		return unknownLabel
	}
	return name
}

func errorResponse(err *RequestError) Response {
	return Response{Status: err.Status, Body: map[string]any{"error": err.Message}}
}

func writeResponse(w http.ResponseWriter, log *slog.Logger, resp Response) {
	w.Header().Set("Content-Type", responseType)
	w.WriteHeader(resp.Status)
	if err := json.NewEncoder(w).Encode(resp.Body); err != nil {
		log.Error("Failed to write webhook response", "error", err)
	}
}

func valueOrEmpty(v any) any {
	if v == nil {
		return ""
	}
	return v
}
