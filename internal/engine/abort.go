package engine

import (
	"context"
	"errors"
	"time"
)

// AbortSignal reports whether the caller has gone away. Transports that
// cannot expose a context implement it directly; the engine polls it.
type AbortSignal interface {
	Aborted() bool
}

// AbortFunc adapts a function to AbortSignal.
type AbortFunc func() bool

// Aborted implements AbortSignal.
func (f AbortFunc) Aborted() bool { return f() }

// ContextAbort reports abort once ctx is done. HTTP handlers pass the request
// context, which is cancelled when the client disconnects.
func ContextAbort(ctx context.Context) AbortSignal {
	return AbortFunc(func() bool { return ctx.Err() != nil })
}

var (
	errRunTimeout         = errors.New("run timeout")
	errClientDisconnected = errors.New("client disconnected")
)

// watchAbort polls abort every interval until done is closed. When abort
// fires it cancels the run with errClientDisconnected.
func watchAbort(abort AbortSignal, interval time.Duration, done <-chan struct{}, cancel context.CancelCauseFunc) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		if abort.Aborted() {
			cancel(errClientDisconnected)
			return
		}
		select {
		case <-done:
			return
		case <-t.C:
		}
	}
}
