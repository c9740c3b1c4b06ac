/*
cache.go - Query execution: retention, coalescing, tag invalidation

PURPOSE:
  One Cache instance sits between every resource package and the HTTP
  adapter. It gives each registered read endpoint:

  - TTL retention: a successful response stays reusable for the endpoint's
    declared window (60s for volatile counters, 300s for lists and details,
    600s for the member profile), keyed by the request's parameter
    fingerprint. Storage is an expirable LRU per endpoint.
  - Coalescing: concurrent identical requests share one network call via
    singleflight; followers resolve with the leader's result.
  - Tags: reads declare the tags they provide, mutations the tags they
    invalidate. Invalidation purges the providing endpoints' retained
    responses and fires any registered refetch hooks, which is how a
    mutation in one resource family becomes visible to another family's
    mounted view without a manual refetch.
  - A session boundary: Reset drops every retained response so nothing
    fetched under one login is served under the next.

LIFECYCLE OF A READ (Endpoint.Run):
  1. retained response fresh? return it, no flags touched
  2. loading gate up, error slot cleared
  3. network call (coalesced)
  4. success: retain + normalized slice writes already applied by Fetch
     failure: error slot set with the normalized message
  5. loading gate down, unconditionally

SEE ALSO:
  - mutation.go: write operations and the optimistic protocol
  - errors.go: the normalized error shape recorded in step 4
*/
package state

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

// retainedPerEndpoint bounds how many distinct parameter fingerprints one
// endpoint keeps. Filter-heavy listings rarely exceed a few dozen.
const retainedPerEndpoint = 128

// Gate is the loading/error surface of a slice, as seen by the cache layer.
// Every endpoint owns exactly one gate; the gate is per slice, not per
// request, matching what the portal's spinners key off.
type Gate interface {
	SetLoading(bool)
	SetError(string)
	ClearError()
}

// Cache coordinates retention, coalescing and invalidation for all
// registered endpoints. Construct one per Portal; never shared globally.
type Cache struct {
	log    *slog.Logger
	flight singleflight.Group

	mu      sync.Mutex
	stores  map[string]*expirable.LRU[string, any]
	byTag   map[Tag][]string // tag -> endpoint names providing it
	hooks   map[Tag][]func()
	pending map[string]int // fingerprint -> in-flight caller count
	gen     uint64         // bumped by Reset; stale fetches must not retain
}

// NewCache creates an empty cache coordinator.
func NewCache(log *slog.Logger) *Cache {
	if log == nil {
		log = slog.Default()
	}
	return &Cache{
		log:     log.With("component", "cache"),
		stores:  make(map[string]*expirable.LRU[string, any]),
		byTag:   make(map[Tag][]string),
		hooks:   make(map[Tag][]func()),
		pending: make(map[string]int),
	}
}

func (c *Cache) register(name string, ttl time.Duration, provides []Tag) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, dup := c.stores[name]; dup {
		panic("state: endpoint registered twice: " + name)
	}
	c.stores[name] = expirable.NewLRU[string, any](retainedPerEndpoint, nil, ttl)
	for _, t := range provides {
		c.byTag[t] = append(c.byTag[t], name)
	}
}

func (c *Cache) lookup(name, key string) (any, bool) {
	c.mu.Lock()
	store := c.stores[name]
	c.mu.Unlock()
	if store == nil {
		return nil, false
	}
	return store.Get(key)
}

func (c *Cache) retain(name, key string, v any, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		// Reset ran while this fetch was in flight; its result must not
		// leak into the next session's retention.
		return
	}
	if store := c.stores[name]; store != nil {
		store.Add(key, v)
	}
}

func (c *Cache) generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// do runs fn through singleflight under the given fingerprint, tracking the
// key so Reset can detach callers still in flight.
func (c *Cache) do(key string, fn func() (any, error)) (any, error) {
	c.mu.Lock()
	c.pending[key]++
	c.mu.Unlock()

	v, err, _ := c.flight.Do(key, fn)

	c.mu.Lock()
	if c.pending[key]--; c.pending[key] <= 0 {
		delete(c.pending, key)
	}
	c.mu.Unlock()
	return v, err
}

// Reset purges every endpoint's retained responses and forgets the keys of
// calls still in flight, so the first read of the next session always goes
// back to the network. Invalidation hooks do not fire; resetting the slices
// themselves is the caller's job.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	for _, store := range c.stores {
		store.Purge()
	}
	for key := range c.pending {
		c.flight.Forget(key)
	}
}

// Invalidate purges every retained response of every endpoint providing one
// of the tags, then fires the registered refetch hooks. Hooks run after the
// purge so a refetch always goes back to the network.
func (c *Cache) Invalidate(tags ...Tag) {
	var hooks []func()

	c.mu.Lock()
	for _, t := range tags {
		for _, name := range c.byTag[t] {
			if store := c.stores[name]; store != nil {
				store.Purge()
			}
		}
		hooks = append(hooks, c.hooks[t]...)
	}
	c.mu.Unlock()

	for _, h := range hooks {
		h()
	}
}

// OnInvalidate registers a refetch hook for a tag. Mounted views use this to
// silently refresh when a mutation elsewhere stales their data.
func (c *Cache) OnInvalidate(tag Tag, hook func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks[tag] = append(c.hooks[tag], hook)
}

// =============================================================================
// ENDPOINT - One idempotent read operation
// =============================================================================

// Endpoint describes one read against the upstream. Fetch performs the
// network call AND dispatches the normalized slice writes; Run wraps it with
// the gate, retention and coalescing machinery.
type Endpoint[Req, Out any] struct {
	Name     string
	TTL      time.Duration
	Provides []Tag
	Gate     Gate
	Key      func(Req) string // parameter fingerprint; nil for no-arg reads
	Fetch    func(ctx context.Context, req Req) (Out, error)

	cache *Cache
}

// Register wires an endpoint into the cache and returns it ready to run.
func Register[Req, Out any](c *Cache, ep Endpoint[Req, Out]) *Endpoint[Req, Out] {
	c.register(ep.Name, ep.TTL, ep.Provides)
	ep.cache = c
	return &ep
}

// Run executes the read. A retained response within its TTL is returned
// without touching the network or the loading gate; identical concurrent
// requests are coalesced into one call.
func (ep *Endpoint[Req, Out]) Run(ctx context.Context, req Req) (Out, error) {
	key := ep.fingerprint(req)
	if v, ok := ep.cache.lookup(ep.Name, key); ok {
		return v.(Out), nil
	}
	return ep.fetch(ctx, req, key)
}

// Refresh executes the read unconditionally, bypassing retention. Used by
// invalidation hooks and the authoritative re-fetch after optimistic
// mutations.
func (ep *Endpoint[Req, Out]) Refresh(ctx context.Context, req Req) (Out, error) {
	return ep.fetch(ctx, req, ep.fingerprint(req))
}

func (ep *Endpoint[Req, Out]) fingerprint(req Req) string {
	if ep.Key == nil {
		return ep.Name
	}
	return ep.Name + "?" + ep.Key(req)
}

func (ep *Endpoint[Req, Out]) fetch(ctx context.Context, req Req, key string) (Out, error) {
	gen := ep.cache.generation()
	v, err := ep.cache.do(key, func() (out any, err error) {
		if ep.Gate != nil {
			ep.Gate.ClearError()
			ep.Gate.SetLoading(true)
			defer func() {
				if err != nil {
					ep.Gate.SetError(MessageOf(err))
				}
				ep.Gate.SetLoading(false)
			}()
		}

		out, err = ep.Fetch(ctx, req)
		if err != nil {
			ep.cache.log.Warn("query failed", "endpoint", ep.Name, "error", err)
			return nil, err
		}
		ep.cache.retain(ep.Name, key, out, gen)
		return out, nil
	})
	if err != nil {
		var zero Out
		return zero, err
	}
	return v.(Out), nil
}
