/*
pager.go - Infinite-scroll reconciliation state machine

PURPOSE:
  Listing views that scroll share one controller:

    Idle -> Fetching(page 1) -> Ready <-> FetchingMore -> Ready -> Exhausted

  - mount or any filter change: back to page 1, accumulation discarded
  - "more" is gated: at most one in flight, and only while HasNext
  - a failed fetch keeps the machine in its current phase and keeps the
    accumulated items; only the error surfaces
  - HasNext=false after a fetch is terminal (Exhausted) until a reset

  The Pager owns the page counter and the phase; list accumulation itself
  lives in the slice (AppendPage), driven by the fetch callback.
*/
package state

import (
	"context"
	"sync"
)

// Phase is the pager's position in the scroll lifecycle.
type Phase int

const (
	Idle Phase = iota
	Fetching
	Ready
	FetchingMore
	Exhausted
)

func (p Phase) String() string {
	switch p {
	case Fetching:
		return "fetching"
	case Ready:
		return "ready"
	case FetchingMore:
		return "fetching-more"
	case Exhausted:
		return "exhausted"
	default:
		return "idle"
	}
}

// Pager drives one listing view's pagination. fetch loads the given page
// into the slice and returns the fresh PageInfo; reset discards the
// accumulated list (filter changes).
type Pager struct {
	fetch func(ctx context.Context, page int) (PageInfo, error)
	reset func()

	mu        sync.Mutex
	phase     Phase
	page      PageInfo
	filterKey string
	inFlight  bool
}

// NewPager creates an idle pager around the given callbacks.
func NewPager(fetch func(ctx context.Context, page int) (PageInfo, error), reset func()) *Pager {
	return &Pager{fetch: fetch, reset: reset}
}

// Load starts (or restarts) from page 1, discarding any accumulation.
func (p *Pager) Load(ctx context.Context) error {
	p.mu.Lock()
	if p.inFlight {
		p.mu.Unlock()
		return nil
	}
	p.inFlight = true
	p.phase = Fetching
	p.mu.Unlock()

	if p.reset != nil {
		p.reset()
	}
	return p.settle(p.fetch(ctx, 1))
}

// SetFilter records a new filter fingerprint. A changed fingerprint resets
// the machine and reloads from page 1; an identical one is a no-op.
func (p *Pager) SetFilter(ctx context.Context, key string) error {
	p.mu.Lock()
	if key == p.filterKey {
		p.mu.Unlock()
		return nil
	}
	p.filterKey = key
	p.phase = Idle
	p.page = PageInfo{}
	p.mu.Unlock()

	return p.Load(ctx)
}

// LoadMore fetches the next page. It is a guarded no-op unless the machine
// is Ready with a next page and nothing already in flight, so a scroll
// sentinel can fire it as often as it likes.
func (p *Pager) LoadMore(ctx context.Context) error {
	p.mu.Lock()
	if p.inFlight || p.phase != Ready || !p.page.HasNext {
		p.mu.Unlock()
		return nil
	}
	p.inFlight = true
	p.phase = FetchingMore
	next := p.page.PageNumber + 1
	p.mu.Unlock()

	return p.settle(p.fetch(ctx, next))
}

func (p *Pager) settle(info PageInfo, err error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inFlight = false

	if err != nil {
		// Keep the accumulated items and the prior page; only the phase
		// backs off to something re-triggerable.
		if p.phase == Fetching {
			p.phase = Idle
		} else {
			p.phase = Ready
		}
		return err
	}

	p.page = info
	if info.HasNext {
		p.phase = Ready
	} else {
		p.phase = Exhausted
	}
	return nil
}

// Phase returns the current lifecycle phase.
func (p *Pager) Phase() Phase {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.phase
}

// Page returns the most recently confirmed pagination metadata.
func (p *Pager) Page() PageInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.page
}
