/*
mutation.go - Write operations and the optimistic-update protocol

PURPOSE:
  Mutations are the write half of the endpoint layer. A plain Mutation runs
  the network call under the slice's loading gate and, on success,
  invalidates the tags it declares. Optimistic generalizes the pattern the
  financial mutations (wallet deposit, pay-with-wallet, bill payment) used
  to each implement by hand:

    1. Estimate  - apply the signed local adjustment before the call
    2. Do        - the network call
    3. Commit    - on success: synthesize the local record, then the tag
                   invalidation triggers the authoritative re-fetch that
                   reconciles any drift (fees, rounding, concurrent writes)
    4. Compensate - on failure: the exact inverse of Estimate

  After the authoritative re-fetch lands, local optimistic drift is gone
  regardless of what Estimate/Compensate did in between.

SEE ALSO:
  - cache.go: Gate and tag invalidation
  - wallets package: the canonical Optimistic consumer
*/
package state

import "context"

// Mutation describes one write against the upstream.
type Mutation[Req, Out any] struct {
	Name        string
	Invalidates []Tag
	Gate        Gate
	Do          func(ctx context.Context, req Req) (Out, error)

	cache *Cache
}

// RegisterMutation wires a mutation into the cache for tag invalidation.
func RegisterMutation[Req, Out any](c *Cache, m Mutation[Req, Out]) *Mutation[Req, Out] {
	m.cache = c
	return &m
}

// Run executes the write. The loading gate is cleared unconditionally; the
// error slot ends up set on failure and empty on success. Declared tags are
// invalidated only after a successful call.
func (m *Mutation[Req, Out]) Run(ctx context.Context, req Req) (out Out, err error) {
	if m.Gate != nil {
		m.Gate.ClearError()
		m.Gate.SetLoading(true)
		defer func() {
			if err != nil {
				m.Gate.SetError(MessageOf(err))
			}
			m.Gate.SetLoading(false)
		}()
	}

	out, err = m.Do(ctx, req)
	if err != nil {
		m.cache.log.Warn("mutation failed", "mutation", m.Name, "error", err)
		var zero Out
		return zero, err
	}

	if len(m.Invalidates) > 0 {
		m.cache.Invalidate(m.Invalidates...)
	}
	return out, nil
}

// =============================================================================
// OPTIMISTIC MUTATION
// =============================================================================

// Optimistic is a mutation whose local effect is applied before the network
// call resolves and reverted exactly on failure. Estimate and Compensate
// must be signed inverses of each other; Commit runs only on success.
type Optimistic[Req, Out any] struct {
	Name        string
	Invalidates []Tag
	Gate        Gate
	Estimate    func(req Req)
	Do          func(ctx context.Context, req Req) (Out, error)
	Commit      func(req Req, out Out)
	Compensate  func(req Req)

	cache *Cache
}

// RegisterOptimistic wires an optimistic mutation into the cache.
func RegisterOptimistic[Req, Out any](c *Cache, o Optimistic[Req, Out]) *Optimistic[Req, Out] {
	o.cache = c
	return &o
}

// Run applies the optimistic estimate, performs the write, and either
// commits or compensates. The gate contract matches Mutation.Run.
func (o *Optimistic[Req, Out]) Run(ctx context.Context, req Req) (out Out, err error) {
	if o.Gate != nil {
		o.Gate.ClearError()
		o.Gate.SetLoading(true)
		defer func() {
			if err != nil {
				o.Gate.SetError(MessageOf(err))
			}
			o.Gate.SetLoading(false)
		}()
	}

	if o.Estimate != nil {
		o.Estimate(req)
	}

	out, err = o.Do(ctx, req)
	if err != nil {
		if o.Compensate != nil {
			o.Compensate(req)
		}
		o.cache.log.Warn("optimistic mutation rolled back", "mutation", o.Name, "error", err)
		var zero Out
		return zero, err
	}

	if o.Commit != nil {
		o.Commit(req, out)
	}
	if len(o.Invalidates) > 0 {
		o.cache.Invalidate(o.Invalidates...)
	}
	return out, nil
}
