// Package dedup collapses concurrent identical calls into one upstream call and
// keeps the settled result for a short window so rapid repeats reuse it.
package dedup

import (
	"context"
	"sync"
	"time"

	"github.com/kapu/trendscope-go/internal/util"
	"go.uber.org/zap"
)

type call[T any] struct {
	done  chan struct{}
	value T
	err   error
}

// Group is safe for concurrent use. The zero value is not usable; use New.
type Group[T any] struct {
	mu     sync.Mutex
	calls  map[string]*call[T]
	ttl    time.Duration
	clock  util.Clock
	logger *zap.Logger
}

func New[T any](ttl time.Duration, clock util.Clock, logger *zap.Logger) *Group[T] {
	if clock == nil {
		clock = util.RealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Group[T]{
		calls:  make(map[string]*call[T]),
		ttl:    ttl,
		clock:  clock,
		logger: logger,
	}
}

// Do returns the result of fn for key. While a call for key is in flight, or
// within ttl after it settled, every caller shares that call's result and fn is
// not invoked again. shared is true when the result came from another caller's call.
//
// fn runs with a context detached from ctx's cancellation: a caller whose ctx ends
// stops waiting and gets ctx.Err(), but the upstream call runs to completion.
func (g *Group[T]) Do(ctx context.Context, key string, fn func(context.Context) (T, error)) (value T, shared bool, err error) {
	g.mu.Lock()
	c, ok := g.calls[key]
	if !ok {
		c = &call[T]{done: make(chan struct{})}
		g.calls[key] = c
	}
	g.mu.Unlock()

	if ok {
		g.logger.Debug("Joining existing call", zap.String("key", key))
	} else {
		go g.run(context.WithoutCancel(ctx), key, c, fn)
	}

	select {
	case <-c.done:
		return c.value, ok, c.err
	case <-ctx.Done():
		var zero T
		return zero, ok, ctx.Err()
	}
}

func (g *Group[T]) run(ctx context.Context, key string, c *call[T], fn func(context.Context) (T, error)) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("Deduplicated call panicked", zap.String("key", key), zap.Any("panic", r))
			c.err = &PanicError{Value: r}
		}
		// Eviction is scheduled before waiters are released.
		g.scheduleEviction(key, c)
		close(c.done)
	}()

	c.value, c.err = fn(ctx)
}

func (g *Group[T]) scheduleEviction(key string, c *call[T]) {
	evict := func() {
		g.mu.Lock()
		// A newer call may already own the key.
		if g.calls[key] == c {
			delete(g.calls, key)
		}
		g.mu.Unlock()
	}

	if g.ttl <= 0 {
		evict()
		return
	}
	g.clock.AfterFunc(g.ttl, evict)
}

// Len reports the number of tracked keys, pending or settled.
func (g *Group[T]) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

// PanicError reports a panic inside the deduplicated function.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return "dedup: call panicked"
}
