package fieldspec

import (
	"context"
	"sync"

	"github.com/koustreak/tabula/internal/errs"
)

// OptionSet is a relation option list that is loaded in the background.
type OptionSet struct {
	done    chan struct{}
	once    sync.Once
	options []Option
	err     error
}

func newOptionSet() *OptionSet {
	return &OptionSet{done: make(chan struct{})}
}

// ResolvedOptions returns an OptionSet that is already complete.
func ResolvedOptions(options []Option, err error) *OptionSet {
	o := newOptionSet()
	o.resolve(options, err)
	return o
}

func (o *OptionSet) resolve(options []Option, err error) {
	o.once.Do(func() {
		o.options = options
		o.err = err
		close(o.done)
	})
}

// Done is closed once the options are loaded or failed.
func (o *OptionSet) Done() <-chan struct{} {
	return o.done
}

// Wait blocks until the options are loaded or ctx ends. Giving up on the
// wait does not stop the load.
func (o *OptionSet) Wait(ctx context.Context) ([]Option, error) {
	select {
	case <-o.done:
		return o.options, o.err
	case <-ctx.Done():
		return nil, errs.Wrap(errs.ErrKindTimeout, "gave up waiting for options", ctx.Err())
	}
}
