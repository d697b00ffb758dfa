package publish

import (
	"context"
	"sync"
	"time"
)

// Clock is the time source for pacing
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pacer enforces a minimum delay between successive publish calls of one persona.
// It outlives a single tick, so the delay also holds across tick boundaries.
type Pacer struct {
	minDelay time.Duration
	clock    Clock

	mu   sync.Mutex
	last map[string]time.Time
}

// NewPacer creates a pacer with the given minimum delay
func NewPacer(minDelay time.Duration, clock Clock) *Pacer {
	if clock == nil {
		clock = realClock{}
	}
	return &Pacer{minDelay: minDelay, clock: clock, last: make(map[string]time.Time)}
}

// Wait blocks until serial may publish again
func (p *Pacer) Wait(ctx context.Context, serial string) error {
	p.mu.Lock()
	last, ok := p.last[serial]
	p.mu.Unlock()
	if !ok {
		return ctx.Err()
	}
	wait := last.Add(p.minDelay).Sub(p.clock.Now())
	if wait <= 0 {
		return ctx.Err()
	}
	return p.clock.Sleep(ctx, wait)
}

// Done records that serial's publish call just completed
func (p *Pacer) Done(serial string) {
	now := p.clock.Now()
	p.mu.Lock()
	defer p.mu.Unlock()
	p.last[serial] = now
}

// Last returns when serial last completed a publish call
func (p *Pacer) Last(serial string) (time.Time, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.last[serial]
	return t, ok
}
