package route

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/okian/broutes/pkg/args"
)

// Pending is an invocation running in the background.
type Pending struct {
	done chan struct{}
	ex   *Exchange
	err  error
}

// Async starts Invoke in a new goroutine.
func (r *Route) Async(ctx context.Context, method string, kwargs ...args.Map) *Pending {
	p := &Pending{done: make(chan struct{})}
	go func() {
		defer close(p.done)
		p.ex, p.err = r.Invoke(ctx, method, kwargs...)
	}()
	return p
}

// Done is closed when the invocation has finished.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Wait blocks until the invocation finishes or ctx ends.
func (p *Pending) Wait(ctx context.Context) (*Exchange, error) {
	select {
	case <-p.done:
		return p.ex, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Invocation is one entry for All.
type Invocation struct {
	Route  *Route
	Method string
	Args   []args.Map
}

// All runs the invocations with at most limit in flight (no limit when
// limit <= 0). Exchanges are returned in input order; the first error
// cancels the remaining invocations.
func All(ctx context.Context, limit int, calls ...Invocation) ([]*Exchange, error) {
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	out := make([]*Exchange, len(calls))
	for i, c := range calls {
		g.Go(func() error {
			ex, err := c.Route.Invoke(gctx, c.Method, c.Args...)
			out[i] = ex
			return err
		})
	}
	return out, g.Wait()
}
