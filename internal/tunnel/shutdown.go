package tunnel

import (
	"context"
	"sync"

	"github.com/sammck-go/guacgw/internal/gwerr"
	"github.com/sammck-go/guacgw/internal/obslog"
)

// OnceShutdownHandler is called exactly once, synchronously in the
// goroutine of the first StartShutdown call, to perform the real
// teardown of an object managed by a closeOnce.
type OnceShutdownHandler interface {
	HandleOnceShutdown(completionErr error) error
}

// closeOnce is the one-shot shutdown guard every Session builds on. A fuller version of this helper would support
// pausable activation and child registration for a multi-hop proxy
// topology; this gateway has no such topology, so this trimmed version
// keeps only what's required: a single synchronous teardown plus a done
// channel and a recorded completion error.
type closeOnce struct {
	obslog.Logger

	once    sync.Once
	handler OnceShutdownHandler
	done    chan struct{}
	err     error
}

func (c *closeOnce) initCloseOnce(logger obslog.Logger, handler OnceShutdownHandler) {
	c.Logger = logger
	c.handler = handler
	c.done = make(chan struct{})
}

// StartShutdown runs teardown in the calling goroutine; subsequent calls
// wait for that first teardown to finish and then do nothing.
func (c *closeOnce) StartShutdown(completionErr error) {
	c.once.Do(func() {
		c.err = c.handler.HandleOnceShutdown(completionErr)
		close(c.done)
	})
}

// WaitShutdown blocks until teardown has run, returning its result.
func (c *closeOnce) WaitShutdown() error {
	<-c.done
	return c.err
}

// DoneChan returns the channel closed once teardown has run.
func (c *closeOnce) DoneChan() <-chan struct{} {
	return c.done
}

// shutdownOnContext begins background monitoring of ctx, calling
// StartShutdown with a Cancelled GatewayError wrapping ctx.Err() if the
// context completes before shutdown is otherwise started.
func (c *closeOnce) shutdownOnContext(ctx context.Context) {
	go func() {
		select {
		case <-c.done:
		case <-ctx.Done():
			c.StartShutdown(gwerr.New(gwerr.Cancelled, ctx.Err()))
		}
	}()
}
