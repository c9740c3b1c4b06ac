package state_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/portal-sync/state"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// gateRecorder captures the gate call sequence for contract assertions.
type gateRecorder struct {
	mu     sync.Mutex
	events []string
}

func (g *gateRecorder) SetLoading(v bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if v {
		g.events = append(g.events, "loading-on")
	} else {
		g.events = append(g.events, "loading-off")
	}
}

func (g *gateRecorder) SetError(msg string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.events = append(g.events, "error:"+msg)
}

func (g *gateRecorder) ClearError() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.events = append(g.events, "clear-error")
}

func (g *gateRecorder) log() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.events...)
}

func countingEndpoint(c *state.Cache, name string, ttl time.Duration, calls *atomic.Int32) *state.Endpoint[string, string] {
	return state.Register(c, state.Endpoint[string, string]{
		Name: name,
		TTL:  ttl,
		Key:  func(req string) string { return req },
		Fetch: func(_ context.Context, req string) (string, error) {
			calls.Add(1)
			return "result-" + req, nil
		},
	})
}

// =============================================================================
// RETENTION
// =============================================================================

func TestRunServesRetainedResponse(t *testing.T) {
	c := state.NewCache(nil)
	var calls atomic.Int32
	ep := countingEndpoint(c, "test.list", time.Minute, &calls)

	// GIVEN one fetched response
	out, err := ep.Run(context.Background(), "k1")
	require.NoError(t, err)
	assert.Equal(t, "result-k1", out)

	// WHEN the same request repeats within the TTL
	out, err = ep.Run(context.Background(), "k1")
	require.NoError(t, err)
	assert.Equal(t, "result-k1", out)

	// THEN the network was hit once
	assert.EqualValues(t, 1, calls.Load())

	// A different fingerprint is a different entry.
	_, err = ep.Run(context.Background(), "k2")
	require.NoError(t, err)
	assert.EqualValues(t, 2, calls.Load())
}

func TestRunRefetchesAfterTTL(t *testing.T) {
	c := state.NewCache(nil)
	var calls atomic.Int32
	ep := countingEndpoint(c, "test.volatile", 30*time.Millisecond, &calls)

	_, err := ep.Run(context.Background(), "k")
	require.NoError(t, err)

	time.Sleep(60 * time.Millisecond)

	_, err = ep.Run(context.Background(), "k")
	require.NoError(t, err)
	assert.EqualValues(t, 2, calls.Load())
}

func TestRefreshBypassesRetention(t *testing.T) {
	c := state.NewCache(nil)
	var calls atomic.Int32
	ep := countingEndpoint(c, "test.refresh", time.Minute, &calls)

	_, err := ep.Run(context.Background(), "k")
	require.NoError(t, err)
	_, err = ep.Refresh(context.Background(), "k")
	require.NoError(t, err)

	assert.EqualValues(t, 2, calls.Load())
}

func TestFailedFetchIsNotRetained(t *testing.T) {
	c := state.NewCache(nil)
	var calls atomic.Int32
	ep := state.Register(c, state.Endpoint[struct{}, int]{
		Name: "test.failing",
		TTL:  time.Minute,
		Fetch: func(context.Context, struct{}) (int, error) {
			calls.Add(1)
			return 0, errors.New("boom")
		},
	})

	_, err := ep.Run(context.Background(), struct{}{})
	require.Error(t, err)
	_, err = ep.Run(context.Background(), struct{}{})
	require.Error(t, err)

	assert.EqualValues(t, 2, calls.Load())
}

// =============================================================================
// COALESCING
// =============================================================================

func TestConcurrentIdenticalRequestsCoalesce(t *testing.T) {
	c := state.NewCache(nil)
	var calls atomic.Int32
	entered := make(chan struct{})
	release := make(chan struct{})

	ep := state.Register(c, state.Endpoint[struct{}, int]{
		Name: "test.coalesce",
		TTL:  time.Minute,
		Fetch: func(context.Context, struct{}) (int, error) {
			if calls.Add(1) == 1 {
				close(entered)
			}
			<-release
			return 42, nil
		},
	})

	// GIVEN a leader in flight
	var wg sync.WaitGroup
	results := make([]int, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], _ = ep.Run(context.Background(), struct{}{})
	}()
	<-entered

	// WHEN an identical request arrives while the leader is pending
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[1], _ = ep.Run(context.Background(), struct{}{})
	}()
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	// THEN both resolved with the leader's result from one network call
	assert.EqualValues(t, 1, calls.Load())
	assert.Equal(t, []int{42, 42}, results)
}

// =============================================================================
// TAG INVALIDATION
// =============================================================================

func TestInvalidatePurgesProvidingEndpoints(t *testing.T) {
	c := state.NewCache(nil)
	var billCalls, tourCalls atomic.Int32

	bills := state.Register(c, state.Endpoint[struct{}, int]{
		Name:     "bills.list",
		TTL:      time.Minute,
		Provides: []state.Tag{"Bills"},
		Fetch: func(context.Context, struct{}) (int, error) {
			billCalls.Add(1)
			return 1, nil
		},
	})
	tours := state.Register(c, state.Endpoint[struct{}, int]{
		Name:     "tours.list",
		TTL:      time.Minute,
		Provides: []state.Tag{"Tours"},
		Fetch: func(context.Context, struct{}) (int, error) {
			tourCalls.Add(1)
			return 1, nil
		},
	})

	_, _ = bills.Run(context.Background(), struct{}{})
	_, _ = tours.Run(context.Background(), struct{}{})

	c.Invalidate("Bills")

	_, _ = bills.Run(context.Background(), struct{}{})
	_, _ = tours.Run(context.Background(), struct{}{})

	// Bills refetched, tours untouched.
	assert.EqualValues(t, 2, billCalls.Load())
	assert.EqualValues(t, 1, tourCalls.Load())
}

func TestInvalidateFiresHooksAfterPurge(t *testing.T) {
	c := state.NewCache(nil)
	var calls atomic.Int32
	ep := state.Register(c, state.Endpoint[struct{}, int]{
		Name:     "wallet.get",
		TTL:      time.Minute,
		Provides: []state.Tag{"Wallet"},
		Fetch: func(context.Context, struct{}) (int, error) {
			calls.Add(1)
			return 1, nil
		},
	})
	_, _ = ep.Run(context.Background(), struct{}{})

	// The hook's refresh must reach the network, not a stale entry.
	hookRuns := 0
	c.OnInvalidate("Wallet", func() {
		hookRuns++
		_, _ = ep.Refresh(context.Background(), struct{}{})
	})

	c.Invalidate("Wallet")

	assert.Equal(t, 1, hookRuns)
	assert.EqualValues(t, 2, calls.Load())
}

// =============================================================================
// RESET - the logout boundary
// =============================================================================

func TestResetDropsEveryRetainedResponse(t *testing.T) {
	c := state.NewCache(nil)
	var billCalls, tourCalls atomic.Int32
	bills := countingEndpoint(c, "bills.list", time.Minute, &billCalls)
	tours := countingEndpoint(c, "tours.search", time.Minute, &tourCalls)

	// GIVEN retained responses in two endpoints
	_, _ = bills.Run(context.Background(), "k1")
	_, _ = tours.Run(context.Background(), "k1")

	// WHEN the session ends
	c.Reset()

	// THEN the next reads go back to the network
	_, err := bills.Run(context.Background(), "k1")
	require.NoError(t, err)
	_, err = tours.Run(context.Background(), "k1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, billCalls.Load())
	assert.EqualValues(t, 2, tourCalls.Load())
}

func TestResetDiscardsInFlightResult(t *testing.T) {
	c := state.NewCache(nil)
	entered := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	ep := state.Register(c, state.Endpoint[struct{}, int]{
		Name: "wallet.get",
		TTL:  time.Minute,
		Fetch: func(context.Context, struct{}) (int, error) {
			if calls.Add(1) == 1 {
				close(entered)
			}
			<-release
			return 7, nil
		},
	})

	// GIVEN a fetch paused mid-flight
	done := make(chan struct{})
	go func() {
		defer close(done)
		out, err := ep.Run(context.Background(), struct{}{})
		assert.NoError(t, err)
		assert.Equal(t, 7, out)
	}()
	<-entered

	// WHEN a reset lands before the fetch completes
	c.Reset()
	close(release)
	<-done

	// THEN the stale result was handed to its caller but not retained:
	// the next read fetches again.
	_, err := ep.Run(context.Background(), struct{}{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, calls.Load())
}

// =============================================================================
// GATE CONTRACT
// =============================================================================

func TestGateSequenceOnSuccess(t *testing.T) {
	c := state.NewCache(nil)
	gate := &gateRecorder{}
	ep := state.Register(c, state.Endpoint[struct{}, int]{
		Name: "test.gate-ok",
		TTL:  time.Minute,
		Gate: gate,
		Fetch: func(context.Context, struct{}) (int, error) {
			return 7, nil
		},
	})

	_, err := ep.Run(context.Background(), struct{}{})
	require.NoError(t, err)
	assert.Equal(t, []string{"clear-error", "loading-on", "loading-off"}, gate.log())

	// A retention hit must not touch the gate at all.
	_, err = ep.Run(context.Background(), struct{}{})
	require.NoError(t, err)
	assert.Equal(t, []string{"clear-error", "loading-on", "loading-off"}, gate.log())
}

func TestGateSequenceOnFailure(t *testing.T) {
	c := state.NewCache(nil)
	gate := &gateRecorder{}
	ep := state.Register(c, state.Endpoint[struct{}, int]{
		Name: "test.gate-fail",
		TTL:  time.Minute,
		Gate: gate,
		Fetch: func(context.Context, struct{}) (int, error) {
			return 0, state.NewError(state.KindAPI, "no luck")
		},
	})

	_, err := ep.Run(context.Background(), struct{}{})
	require.Error(t, err)

	// Error recorded before the gate drops, loading off last.
	assert.Equal(t, []string{"clear-error", "loading-on", "error:no luck", "loading-off"}, gate.log())
}

func TestMutationInvalidatesOnlyOnSuccess(t *testing.T) {
	c := state.NewCache(nil)
	var listCalls atomic.Int32
	listing := state.Register(c, state.Endpoint[struct{}, int]{
		Name:     "reqs.list",
		TTL:      time.Minute,
		Provides: []state.Tag{"Requests"},
		Fetch: func(context.Context, struct{}) (int, error) {
			listCalls.Add(1)
			return 1, nil
		},
	})
	_, _ = listing.Run(context.Background(), struct{}{})

	fail := true
	gate := &gateRecorder{}
	mut := state.RegisterMutation(c, state.Mutation[struct{}, struct{}]{
		Name:        "reqs.submit",
		Invalidates: []state.Tag{"Requests"},
		Gate:        gate,
		Do: func(context.Context, struct{}) (struct{}, error) {
			if fail {
				return struct{}{}, state.NewError(state.KindAPI, "rejected")
			}
			return struct{}{}, nil
		},
	})

	// Failed write: retained listing survives.
	_, err := mut.Run(context.Background(), struct{}{})
	require.Error(t, err)
	_, _ = listing.Run(context.Background(), struct{}{})
	assert.EqualValues(t, 1, listCalls.Load())
	assert.Contains(t, gate.log(), "error:rejected")

	// Successful write: listing is stale and refetches.
	fail = false
	_, err = mut.Run(context.Background(), struct{}{})
	require.NoError(t, err)
	_, _ = listing.Run(context.Background(), struct{}{})
	assert.EqualValues(t, 2, listCalls.Load())
}

// =============================================================================
// OPTIMISTIC PROTOCOL
// =============================================================================

func TestOptimisticCommitOnSuccess(t *testing.T) {
	c := state.NewCache(nil)
	var steps []string
	opt := state.RegisterOptimistic(c, state.Optimistic[struct{}, int]{
		Name:     "test.opt",
		Estimate: func(struct{}) { steps = append(steps, "estimate") },
		Do: func(context.Context, struct{}) (int, error) {
			steps = append(steps, "do")
			return 5, nil
		},
		Commit:     func(struct{}, int) { steps = append(steps, "commit") },
		Compensate: func(struct{}) { steps = append(steps, "compensate") },
	})

	out, err := opt.Run(context.Background(), struct{}{})
	require.NoError(t, err)
	assert.Equal(t, 5, out)
	assert.Equal(t, []string{"estimate", "do", "commit"}, steps)
}

func TestOptimisticCompensateOnFailure(t *testing.T) {
	c := state.NewCache(nil)
	var steps []string
	opt := state.RegisterOptimistic(c, state.Optimistic[struct{}, int]{
		Name:     "test.opt-fail",
		Estimate: func(struct{}) { steps = append(steps, "estimate") },
		Do: func(context.Context, struct{}) (int, error) {
			steps = append(steps, "do")
			return 0, state.NewError(state.KindAPI, "declined")
		},
		Commit:     func(struct{}, int) { steps = append(steps, "commit") },
		Compensate: func(struct{}) { steps = append(steps, "compensate") },
	})

	_, err := opt.Run(context.Background(), struct{}{})
	require.Error(t, err)
	assert.Equal(t, []string{"estimate", "do", "compensate"}, steps)
}
