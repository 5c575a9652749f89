// Package registry provides the append-only, name-keyed registries backing the
// clips runtime: the clip type table and the compiled template cache.
//
// Entries are created once and never replaced or removed. A second
// registration under an existing name is rejected and leaves the original
// entry untouched. Watchers receive an event for every successful addition.
package registry

import (
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/conneroisu/clips/internal/errors"
)

// MaxNameLength is the longest accepted entry name.
const MaxNameLength = 256

var nameRE = regexp.MustCompile(`^[A-Za-z0-9_-]+(?:/[A-Za-z0-9_-]+)*$`)

// ValidateName checks that name is a path-like identifier: one or more
// [A-Za-z0-9_-] segments joined by "/", at most MaxNameLength characters.
// The name is expected to be trimmed already.
func ValidateName(name string) error {
	if name == "" {
		return errors.NewValidationError(errors.CodeInvalidName, "invalid name: empty string")
	}
	if len(name) > MaxNameLength {
		return errors.NewRangeError(errors.CodeInvalidName, "invalid name: too long").
			WithContext("length", len(name)).
			WithContext("max", MaxNameLength)
	}
	if !nameRE.MatchString(name) {
		return errors.NewValidationError(errors.CodeInvalidName,
			`invalid name: expected path-like without leading/trailing slash, e.g. "home" or "user/profile"`).
			WithContext("name", name)
	}
	return nil
}

// NormalizeName trims surrounding whitespace and validates the result.
func NormalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	return name, ValidateName(name)
}

// Event represents an addition to the registry
type Event[T any] struct {
	Name      string
	Entry     T
	Timestamp time.Time
}

// Registry is an append-only map of named entries.
type Registry[T any] struct {
	kind     string
	entries  map[string]T
	mutex    sync.RWMutex
	watchers []chan Event[T]
}

// New creates a registry. kind names the entries in error messages ("clip", "template").
func New[T any](kind string) *Registry[T] {
	return &Registry[T]{
		kind:     kind,
		entries:  make(map[string]T),
		watchers: make([]chan Event[T], 0),
	}
}

// Register adds entry under name. It fails if the name is invalid or taken.
func (r *Registry[T]) Register(name string, entry T) error {
	if err := ValidateName(name); err != nil {
		return err
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.entries[name]; exists {
		return errors.NewValidationError(errors.CodeDuplicateClip, "duplicate "+r.kind+": "+name).
			WithContext("name", name)
	}

	r.entries[name] = entry

	event := Event[T]{
		Name:      name,
		Entry:     entry,
		Timestamp: time.Now(),
	}

	for _, watcher := range r.watchers {
		select {
		case watcher <- event:
		default:
			// Skip if channel is full
		}
	}

	return nil
}

// Get retrieves an entry by name
func (r *Registry[T]) Get(name string) (T, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	entry, exists := r.entries[name]
	return entry, exists
}

// Has reports whether name is registered.
func (r *Registry[T]) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Names returns the registered names in sorted order.
func (r *Registry[T]) Names() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered entries
func (r *Registry[T]) Count() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return len(r.entries)
}

// Watch returns a channel that receives registration events
func (r *Registry[T]) Watch() <-chan Event[T] {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	ch := make(chan Event[T], 100)
	r.watchers = append(r.watchers, ch)
	return ch
}

// UnWatch removes a watcher channel and closes it
func (r *Registry[T]) UnWatch(ch <-chan Event[T]) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for i, watcher := range r.watchers {
		if watcher == ch {
			close(watcher)
			r.watchers = append(r.watchers[:i], r.watchers[i+1:]...)
			break
		}
	}
}
