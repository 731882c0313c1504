package correlation

import (
	"context"
	"sync"
	"time"
)

// Future is the eventual outcome of a correlated request. It settles exactly
// once; later attempts are ignored.
type Future struct {
	id       string
	issuedAt time.Time

	done  chan struct{}
	once  sync.Once
	value string
	err   error
}

func newFuture(id string, issuedAt time.Time) *Future {
	return &Future{
		id:       id,
		issuedAt: issuedAt,
		done:     make(chan struct{}),
	}
}

// Rejected returns a future that has already failed with err.
func Rejected(id string, err error) *Future {
	f := newFuture(id, time.Time{})
	f.settle("", err)
	return f
}

// ID returns the correlation id sent with the request.
func (f *Future) ID() string { return f.id }

// Done is closed once the future settles.
func (f *Future) Done() <-chan struct{} { return f.done }

// Result returns the outcome without blocking. err is ErrPending until the
// future settles.
func (f *Future) Result() (string, error) {
	select {
	case <-f.done:
		return f.value, f.err
	default:
		return "", ErrPending
	}
}

// Wait blocks until the future settles or ctx is done. Cancelling ctx does not
// cancel the request; its deadline still applies.
func (f *Future) Wait(ctx context.Context) (string, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (f *Future) settle(value string, err error) bool {
	settled := false
	f.once.Do(func() {
		f.value = value
		f.err = err
		close(f.done)
		settled = true
	})
	return settled
}
