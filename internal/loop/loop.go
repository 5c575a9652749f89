// Package loop implements the single cooperative scheduler that drives clip
// lifecycles: a task queue for deferred work and frame callbacks for work
// that must wait for the next tick.
//
// Queue, RequestFrame and CancelFrame may be called from any goroutine.
// Callbacks only ever run on the goroutine calling Drain, Frame, Settle or
// Run, so code scheduled on one loop never runs concurrently with itself.
package loop

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/conneroisu/clips/internal/logging"
)

// DefaultInterval is the default frame interval (~60fps).
const DefaultInterval = 16 * time.Millisecond

// FrameID identifies a requested frame callback.
type FrameID uint64

// Loop is a cooperative task and frame scheduler.
type Loop struct {
	mu       sync.Mutex
	tasks    []func()
	frames   map[FrameID]func()
	order    []FrameID
	nextID   FrameID
	wake     chan struct{}
	running  bool
	interval time.Duration
	logger   logging.Logger
}

// Option configures a Loop.
type Option func(*Loop) error

// WithInterval sets the frame interval used by Run. It must be positive.
func WithInterval(d time.Duration) Option {
	return func(l *Loop) error {
		if d <= 0 {
			return fmt.Errorf("frame interval must be positive, got %s", d)
		}
		l.interval = d
		return nil
	}
}

// WithFrameRate sets the frame interval from a frame rate. Valid range is 1-240.
func WithFrameRate(fps int) Option {
	return func(l *Loop) error {
		if fps < 1 {
			return fmt.Errorf("frame rate must be at least 1 fps")
		}
		if fps > 240 {
			return fmt.Errorf("frame rate cannot exceed 240 fps")
		}
		l.interval = time.Second / time.Duration(fps)
		return nil
	}
}

// WithLogger sets the logger used to report task panics.
func WithLogger(logger logging.Logger) Option {
	return func(l *Loop) error {
		if logger != nil {
			l.logger = logger.WithComponent("loop")
		}
		return nil
	}
}

// New creates a loop.
func New(opts ...Option) (*Loop, error) {
	l := &Loop{
		frames:   make(map[FrameID]func()),
		wake:     make(chan struct{}, 1),
		interval: DefaultInterval,
		logger:   logging.Nop(),
	}
	for _, opt := range opts {
		if err := opt(l); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// Interval returns the frame interval.
func (l *Loop) Interval() time.Duration { return l.interval }

// Queue schedules fn to run on the loop. Nil functions are ignored.
func (l *Loop) Queue(fn func()) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	l.tasks = append(l.tasks, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// RequestFrame schedules fn to run in the next frame.
func (l *Loop) RequestFrame(fn func()) FrameID {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.nextID++
	id := l.nextID
	l.frames[id] = fn
	l.order = append(l.order, id)
	return id
}

// CancelFrame cancels a pending frame callback. Unknown or already run ids are ignored.
func (l *Loop) CancelFrame(id FrameID) {
	l.mu.Lock()
	delete(l.frames, id)
	l.mu.Unlock()
}

// Pending returns the number of queued tasks and pending frame callbacks.
func (l *Loop) Pending() (tasks, frames int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.tasks), len(l.frames)
}

// Idle reports whether nothing is queued or pending.
func (l *Loop) Idle() bool {
	tasks, frames := l.Pending()
	return tasks == 0 && frames == 0
}

// Drain runs queued tasks until the queue is empty, including tasks queued
// while draining.
func (l *Loop) Drain() {
	for {
		l.mu.Lock()
		if len(l.tasks) == 0 {
			l.mu.Unlock()
			return
		}
		fn := l.tasks[0]
		l.tasks[0] = nil
		l.tasks = l.tasks[1:]
		l.mu.Unlock()

		l.invoke("task", fn)
	}
}

// Frame runs one frame: drain tasks, run the callbacks requested before the
// frame started, then drain again. Callbacks requested during the frame run
// in the next one.
func (l *Loop) Frame() {
	l.Drain()

	l.mu.Lock()
	order := l.order
	l.order = nil
	l.mu.Unlock()

	for _, id := range order {
		l.mu.Lock()
		fn, ok := l.frames[id]
		delete(l.frames, id)
		l.mu.Unlock()

		if ok {
			l.invoke("frame", fn)
		}
		l.Drain()
	}

	l.Drain()
}

// Settle runs frames until the loop is idle or maxFrames frames have run.
// It returns the number of frames run.
func (l *Loop) Settle(maxFrames int) int {
	n := 0
	l.Drain()
	for n < maxFrames && !l.Idle() {
		l.Frame()
		n++
	}
	return n
}

// Run drives the loop until ctx is cancelled: queued tasks run as soon as
// they arrive and a frame runs every interval.
func (l *Loop) Run(ctx context.Context) error {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return fmt.Errorf("loop is already running")
	}
	l.running = true
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		l.running = false
		l.mu.Unlock()
	}()

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-l.wake:
			l.Drain()
		case <-ticker.C:
			l.Frame()
		}
	}
}

func (l *Loop) invoke(kind string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error(context.Background(), fmt.Errorf("panic: %v", r), "Loop callback panicked", "kind", kind)
		}
	}()
	fn()
}
