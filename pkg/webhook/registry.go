package webhook

import (
	"reflect"
	"slices"
	"strings"
)

// Registry maps webhook names to handlers. It is filled during startup and
// read-only afterwards.
type Registry struct {
	byName map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Handler)}
}

// Register adds a webhook. Two handlers may not share a name.
func (r *Registry) Register(h Handler) error {
	name, err := validate(h)
	if err != nil {
		return err
	}
	if _, exists := r.byName[name]; exists {
		return &DuplicateError{Name: name}
	}
	r.byName[name] = h
	return nil
}

// LoadDefaults registers built-in webhooks whose names are free and returns
// the names that were loaded.
func (r *Registry) LoadDefaults(handlers ...Handler) ([]string, error) {
	loaded := make([]string, 0, len(handlers))
	for _, h := range handlers {
		name, err := validate(h)
		if err != nil {
			return loaded, err
		}
		if _, exists := r.byName[name]; exists {
			continue
		}
		r.byName[name] = h
		loaded = append(loaded, name)
	}
	return loaded, nil
}

func (r *Registry) Lookup(name string) (Handler, bool) {
	h, ok := r.byName[name]
	return h, ok
}

// Names lists webhook names sorted alphabetically.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func validate(h Handler) (string, error) {
	if h == nil {
		return "", &RegistrationError{Err: ErrInvalidHandler}
	}
	if v := reflect.ValueOf(h); v.Kind() == reflect.Pointer && v.IsNil() {
		return "", &RegistrationError{Err: ErrInvalidHandler}
	}
	name := h.Name()
	if strings.TrimSpace(name) == "" {
		return "", &RegistrationError{Err: ErrInvalidHandler}
	}
	return name, nil
}
