// Package async runs fire-and-forget work (provider calls, notifications) off the request path.
package async

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Runner executes fn, possibly in another goroutine.
type Runner func(name string, fn func(ctx context.Context))

const taskTimeout = 30 * time.Second

// Go runs fn in a new goroutine with its own deadline. Panics are logged, not propagated.
func Go(name string, fn func(ctx context.Context)) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Str("task", name).Msg("async task panicked")
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), taskTimeout)
		defer cancel()
		fn(ctx)
	}()
}

// Inline runs fn on the calling goroutine; tests use it to observe side effects.
func Inline(name string, fn func(ctx context.Context)) {
	fn(context.Background())
}

// Run dispatches through r, defaulting to Go.
func Run(r Runner, name string, fn func(ctx context.Context)) {
	if r == nil {
		r = Go
	}
	r(name, fn)
}
