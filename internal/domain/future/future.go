// Package future provides a settle-once result handle. It is the bridge's
// rendering of a promise: every remote invocation returns one, and host
// functions may return one to reply asynchronously.
package future

import (
	"context"
	"errors"
	"sync"
)

// ErrNilFuture is the rejection a nil inner future settles to.
var ErrNilFuture = errors.New("future: nil future")

// Future is settled exactly once, either with a value or an error. The zero
// value is not usable; call New.
type Future struct {
	done  chan struct{}
	once  sync.Once
	value any
	err   error
}

func New() *Future {
	return &Future{done: make(chan struct{})}
}

// Resolved returns a future already settled with v. If v is itself a
// *Future the result follows v's settlement.
func Resolved(v any) *Future {
	f := New()
	f.Resolve(v)
	return f
}

// Rejected returns a future already settled with err.
func Rejected(err error) *Future {
	f := New()
	f.Reject(err)
	return f
}

// Resolve settles f with v. When v is a *Future, f adopts its settlement
// instead of wrapping it. Reports whether this call claimed the settlement.
func (f *Future) Resolve(v any) bool {
	if inner, ok := v.(*Future); ok {
		return f.adopt(inner)
	}
	return f.settle(v, nil)
}

// Reject settles f with err. Reports whether this call claimed the settlement.
func (f *Future) Reject(err error) bool {
	return f.settle(nil, err)
}

func (f *Future) adopt(inner *Future) bool {
	if inner == nil {
		return f.settle(nil, ErrNilFuture)
	}
	if inner == f {
		return false
	}
	claimed := false
	f.once.Do(func() {
		claimed = true
		go func() {
			<-inner.done
			f.value, f.err = inner.value, inner.err
			close(f.done)
		}()
	})
	return claimed
}

func (f *Future) settle(v any, err error) bool {
	claimed := false
	f.once.Do(func() {
		claimed = true
		f.value, f.err = v, err
		close(f.done)
	})
	return claimed
}

// Done is closed once f has settled.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Await blocks until f settles or ctx is done. Abandoning the wait does not
// cancel the underlying operation.
func (f *Future) Await(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Peek returns the settlement without blocking. ok is false while pending.
func (f *Future) Peek() (value any, err error, ok bool) {
	select {
	case <-f.done:
		return f.value, f.err, true
	default:
		return nil, nil, false
	}
}
