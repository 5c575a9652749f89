package clips

import (
	"context"
	"fmt"

	cerrors "github.com/conneroisu/clips/internal/errors"
)

// Built-in event types.
const (
	// EventAttach is fired, spreading pre-order, once an inserted clip root
	// is confirmed connected two frames after insertion.
	EventAttach = "attach"
	// EventDestroy is fired on a clip right before it is destroyed.
	EventDestroy = "destroy"
)

// Spread selects how Fire propagates an event through the clip tree. Values
// other than SpreadNone and SpreadPost spread like SpreadPre.
type Spread int

const (
	// SpreadNone runs only the clip's own listeners.
	SpreadNone Spread = iota
	// SpreadPre runs the clip's listeners, then each child subtree.
	SpreadPre
	// SpreadPost runs each child subtree, then the clip's listeners.
	SpreadPost
)

// String returns the spread mode name.
func (s Spread) String() string {
	switch s {
	case SpreadNone:
		return "none"
	case SpreadPre:
		return "pre"
	case SpreadPost:
		return "post"
	default:
		return fmt.Sprintf("Spread(%d)", int(s))
	}
}

// Event is a clip event. Its type never changes; Detail and Fields may be
// modified by listeners.
type Event struct {
	typ           string
	target        *Clip
	currentTarget *Clip

	// Detail is the event payload.
	Detail any
	// Fields holds extra properties supplied when firing a map.
	Fields map[string]any
}

// NewEvent creates an event. The type must be non-empty.
func NewEvent(eventType string, detail any) (*Event, error) {
	if eventType == "" {
		return nil, invalidEventType()
	}
	return &Event{typ: eventType, Detail: detail}, nil
}

// Type returns the event type.
func (e *Event) Type() string { return e.typ }

// Target returns the clip that first fired the event.
func (e *Event) Target() *Clip { return e.target }

// CurrentTarget returns the clip whose listener is running, or nil outside
// a listener invocation.
func (e *Event) CurrentTarget() *Clip { return e.currentTarget }

// Field returns an extra field.
func (e *Event) Field(key string) (any, bool) {
	v, ok := e.Fields[key]
	return v, ok
}

// Handler handles an event. A returned error or panic is logged and does
// not stop other listeners.
type Handler func(*Event) error

// Listener is the handle returned by On and accepted by Off.
type Listener struct {
	eventType string
	handler   Handler
}

// Type returns the event type the listener is registered for.
func (l *Listener) Type() string { return l.eventType }

func invalidEventType() error {
	return cerrors.NewValidationError(cerrors.CodeInvalidEvent, "invalid event type: a non-empty string is required")
}

var reservedFields = map[string]bool{"type": true, "target": true, "currentTarget": true}

// normalizeEvent accepts a type string, an *Event or Event, or a map with a
// "type" string.
func (c *Clip) normalizeEvent(event any) (*Event, error) {
	switch ev := event.(type) {
	case *Event:
		if ev == nil || ev.typ == "" {
			return nil, invalidEventType()
		}
		return ev, nil
	case Event:
		if ev.typ == "" {
			return nil, invalidEventType()
		}
		return &ev, nil
	case string:
		return NewEvent(ev, nil)
	case Options:
		return c.eventFromMap(ev)
	case map[string]any:
		return c.eventFromMap(ev)
	default:
		return nil, cerrors.NewValidationError(cerrors.CodeInvalidEvent,
			`invalid event format: a non-empty string, a map with a string "type" or an Event is required`).
			WithContext("type", fmt.Sprintf("%T", event))
	}
}

func (c *Clip) eventFromMap(m map[string]any) (*Event, error) {
	typ, _ := m["type"].(string)
	if typ == "" {
		return nil, cerrors.NewValidationError(cerrors.CodeInvalidEvent,
			`invalid event format: a non-empty string "type" is required`)
	}
	ev := &Event{typ: typ, Detail: m["detail"]}
	for key, v := range m {
		if key == "detail" {
			continue
		}
		if reservedFields[key] {
			if key != "type" {
				c.rt.logger.Warn(context.Background(), nil, "Event property is reserved", "property", key, "event", typ)
			}
			continue
		}
		if ev.Fields == nil {
			ev.Fields = make(map[string]any)
		}
		ev.Fields[key] = v
	}
	return ev, nil
}

// On registers fn for events of the given type.
func (c *Clip) On(eventType string, fn Handler) (*Listener, error) {
	if eventType == "" {
		return nil, invalidEventType()
	}
	if fn == nil {
		return nil, cerrors.NewValidationError(cerrors.CodeInvalidListener,
			"invalid event listener: a handler function is required")
	}
	l := &Listener{eventType: eventType, handler: fn}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listeners == nil {
		c.listeners = make(map[string][]*Listener)
	}
	c.listeners[eventType] = append(c.listeners[eventType], l)
	return l, nil
}

// Off removes a listener. Removing an unknown listener is a no-op.
func (c *Clip) Off(eventType string, l *Listener) error {
	if eventType == "" {
		return invalidEventType()
	}
	if l == nil {
		return cerrors.NewValidationError(cerrors.CodeInvalidListener,
			"invalid event listener: a listener handle is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	bucket := c.listeners[eventType]
	for i, existing := range bucket {
		if existing == l {
			bucket = append(bucket[:i:i], bucket[i+1:]...)
			break
		}
	}
	if len(bucket) == 0 {
		delete(c.listeners, eventType)
	} else {
		c.listeners[eventType] = bucket
	}
	return nil
}

// ListenerCount returns the number of listeners for an event type.
func (c *Clip) ListenerCount(eventType string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.listeners[eventType])
}

// Fire dispatches an event to this clip and, depending on spread, to its
// descendants. Only a malformed event is an error; listener failures are
// logged and swallowed.
func (c *Clip) Fire(event any, spread Spread) error {
	ev, err := c.normalizeEvent(event)
	if err != nil {
		return err
	}
	c.rt.metrics.EventFired(ev.typ)
	c.dispatch(ev, spread)
	return nil
}

func (c *Clip) dispatch(ev *Event, spread Spread) {
	if ev.target == nil {
		ev.target = c
	}

	if spread == SpreadPost {
		for _, child := range c.Children() {
			child.dispatch(ev, spread)
		}
	}

	c.mu.Lock()
	bucket := append([]*Listener(nil), c.listeners[ev.typ]...)
	c.mu.Unlock()

	for _, l := range bucket {
		ev.currentTarget = c
		c.invoke(ev, l)
		ev.currentTarget = nil
	}

	if spread != SpreadNone && spread != SpreadPost {
		for _, child := range c.Children() {
			child.dispatch(ev, spread)
		}
	}
}

func (c *Clip) invoke(ev *Event, l *Listener) {
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		err = l.handler(ev)
	}()

	if err != nil {
		c.rt.metrics.ListenerFailed(ev.typ)
		c.rt.logger.Error(context.Background(),
			cerrors.NewListenerError(ev.typ, err).WithComponent(c.Name()),
			"Error calling event listener", "event", ev.typ, "clip", c.Name())
	}
}
