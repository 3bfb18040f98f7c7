package confirm

import (
	"context"
	"sync"
	"time"
)

// Ticket is resolved exactly once; later resolutions are ignored.
type Ticket struct {
	req      Request
	once     sync.Once
	done     chan struct{}
	decision Decision
}

func newTicket(req Request) *Ticket {
	return &Ticket{req: req, done: make(chan struct{})}
}

func (t *Ticket) Request() Request {
	return t.req
}

// Resolve records d if the ticket is still open and reports whether it did.
func (t *Ticket) Resolve(d Decision) bool {
	resolved := false
	t.once.Do(func() {
		t.decision = d
		close(t.done)
		resolved = true
	})
	return resolved
}

// Done is closed once the ticket is resolved.
func (t *Ticket) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the ticket is resolved. Context cancellation and the
// timeout both resolve it with Cancel.
func (t *Ticket) Wait(ctx context.Context, timeout time.Duration) Decision {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-t.done:
	case <-ctx.Done():
		t.Resolve(Cancel)
	case <-expired:
		t.Resolve(Cancel)
	}

	<-t.done
	return t.decision
}
