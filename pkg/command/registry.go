package command

import (
	"reflect"
	"strings"
)

// Registry maps command names to handlers in registration order and keeps
// the ordered catch-all handlers. It is filled during startup and read
// without locking once frozen.
type Registry struct {
	order    []string
	byName   map[string]Handler
	catchAll []Handler
	frozen   bool
}

func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Handler)}
}

// Register adds a named command. A name that is already taken is rejected.
func (r *Registry) Register(h Handler) error {
	name, err := r.validate(h)
	if err != nil {
		return err
	}
	if _, exists := r.byName[name]; exists {
		return &RegistrationError{Name: name, Err: ErrDuplicate}
	}

	r.order = append(r.order, name)
	r.byName[name] = h
	return nil
}

// RegisterCatchAll appends a handler that receives every event.
func (r *Registry) RegisterCatchAll(h Handler) error {
	if _, err := r.validate(h); err != nil {
		return err
	}
	r.catchAll = append(r.catchAll, h)
	return nil
}

// LoadDefaults registers built-in commands whose names are not taken yet and
// returns the names that were loaded.
func (r *Registry) LoadDefaults(handlers ...Handler) ([]string, error) {
	loaded := make([]string, 0, len(handlers))
	for _, h := range handlers {
		name, err := r.validate(h)
		if err != nil {
			return loaded, err
		}
		if _, exists := r.byName[name]; exists {
			continue
		}
		r.order = append(r.order, name)
		r.byName[name] = h
		loaded = append(loaded, name)
	}
	return loaded, nil
}

func (r *Registry) Lookup(name string) (Handler, bool) {
	h, ok := r.byName[name]
	return h, ok
}

// Names lists command names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// CatchAll lists catch-all handlers in registration order.
func (r *Registry) CatchAll() []Handler {
	return append([]Handler(nil), r.catchAll...)
}

func (r *Registry) Len() int { return len(r.order) }

// Freeze rejects further registrations.
func (r *Registry) Freeze() { r.frozen = true }

func (r *Registry) validate(h Handler) (string, error) {
	if isNil(h) {
		return "", &RegistrationError{Err: ErrInvalidHandler}
	}
	name := h.Name()
	if strings.TrimSpace(name) == "" {
		return "", &RegistrationError{Err: ErrInvalidHandler}
	}
	if r.frozen {
		return "", &RegistrationError{Name: name, Err: ErrFrozen}
	}
	return name, nil
}

func isNil(h Handler) bool {
	if h == nil {
		return true
	}
	v := reflect.ValueOf(h)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Func, reflect.Slice, reflect.Interface, reflect.Chan:
		return v.IsNil()
	default:
		return false
	}
}
