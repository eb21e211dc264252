package resilience

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
)

// Limiter runs submitted tasks with at most Max executing at any instant.
// Tasks submitted while the limiter is saturated wait in submission order and
// are admitted as running tasks finish, whether they succeeded or failed.
// A Limiter has no overall deadline; callers bound individual tasks through
// the context they pass to Submit.
type Limiter struct {
	mu       sync.Mutex
	max      int
	active   int
	queue    []func()
	observer func(active, queued int)
}

// LimiterOption configures a Limiter.
type LimiterOption func(*Limiter)

// WithObserver registers a callback invoked whenever the number of running or
// queued tasks changes. It is called with the limiter's lock held and must
// not call back into the limiter.
func WithObserver(fn func(active, queued int)) LimiterOption {
	return func(l *Limiter) {
		l.observer = fn
	}
}

// NewLimiter creates a Limiter admitting up to n concurrent tasks. Values
// below 1 are treated as 1.
func NewLimiter(n int, opts ...LimiterOption) *Limiter {
	if n < 1 {
		n = 1
	}
	l := &Limiter{max: n}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Max returns the concurrency cap.
func (l *Limiter) Max() int {
	return l.max
}

// Active returns the number of tasks currently executing.
func (l *Limiter) Active() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

// Queued returns the number of tasks waiting for a slot.
func (l *Limiter) Queued() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// Future resolves with the outcome of a task submitted to a Limiter.
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// Done is closed once the task has finished.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the task finishes or ctx is done. Abandoning a Future
// does not cancel its task.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, eris.Wrap(ctx.Err(), "resilience: wait for task")
	}
}

// Submit queues fn on l and returns a Future for its result. Submit never
// blocks. A panic inside fn is recovered and reported as the task's error.
func Submit[T any](ctx context.Context, l *Limiter, fn func(ctx context.Context) (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	l.enqueue(func() {
		defer close(f.done)
		defer func() {
			if r := recover(); r != nil {
				f.err = eris.Errorf("resilience: task panicked: %v", r)
			}
		}()
		f.val, f.err = fn(ctx)
	})
	return f
}

func (l *Limiter) enqueue(task func()) {
	l.mu.Lock()
	if l.active < l.max {
		l.active++
		l.notify()
		l.mu.Unlock()
		go l.work(task)
		return
	}
	l.queue = append(l.queue, task)
	l.notify()
	l.mu.Unlock()
}

// work runs task, then keeps draining the queue head while it is non-empty so
// admission order matches submission order.
func (l *Limiter) work(task func()) {
	for {
		task()

		l.mu.Lock()
		if len(l.queue) == 0 {
			l.active--
			l.notify()
			l.mu.Unlock()
			return
		}
		task = l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.notify()
		l.mu.Unlock()
	}
}

func (l *Limiter) notify() {
	if l.observer != nil {
		l.observer(l.active, len(l.queue))
	}
}
