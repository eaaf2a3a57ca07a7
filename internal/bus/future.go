package bus

import (
	"context"
	"fmt"
	"sync"

	wberrors "github.com/gezibash/wasmbus/pkg/errors"
)

// future is a write-once reply slot. The first fulfillment wins, later
// ones are ignored, and waiters are released exactly once.
type future struct {
	once sync.Once
	done chan struct{}
	data []byte
	err  error
}

func newFuture() *future {
	return &future{done: make(chan struct{})}
}

// fulfill completes the future with data. It reports whether this call won.
func (f *future) fulfill(data []byte) bool {
	return f.complete(data, nil)
}

// fail completes the future with err. It reports whether this call won.
func (f *future) fail(err error) bool {
	return f.complete(nil, err)
}

func (f *future) complete(data []byte, err error) bool {
	won := false
	f.once.Do(func() {
		f.data = data
		f.err = err
		won = true
		close(f.done)
	})
	return won
}

// await blocks until the future completes or ctx is done.
func (f *future) await(ctx context.Context) ([]byte, error) {
	select {
	case <-f.done:
		return f.data, f.err
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: awaiting reply: %v", wberrors.ErrTimeout, ctx.Err())
	}
}
