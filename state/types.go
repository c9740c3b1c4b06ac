/*
Package state provides the client-side cache engine for the welfare portal.

PURPOSE:
  This package contains the resource-agnostic types and algorithms behind
  every cached resource family (facilities, surveys, tours, bills, wallets,
  and so on). Whether the data is a loan offer or a wallet transaction, the
  same machinery handles list caching, pagination reconciliation, request
  coalescing, TTL retention and tag-based invalidation.

KEY CONCEPTS IN THIS FILE (types.go):
  - PageInfo: self-consistent pagination metadata (1-based pages)
  - Entity: anything with a stable string identity
  - ListMode: how a paged read populates its list (replace vs append)
  - Tag: cache-invalidation label linking mutations to reads

DESIGN PRINCIPLES:
  1. One writer path: all cache mutation goes through Slice methods
  2. Explicit modes: replace-vs-append is declared per endpoint, never ad hoc
  3. Precision: money is decimal.Decimal, never float64
  4. Errors are normalized once, at the transport boundary (errors.go)

SEE ALSO:
  - slice.go: the normalized per-resource cache
  - cache.go: query execution, coalescing, retention, invalidation
  - pager.go: the infinite-scroll state machine
*/
package state

import "math"

// =============================================================================
// ENTITY - Anything cacheable by id
// =============================================================================

// Entity is implemented by every cached record. IDs are opaque strings
// (the upstream mixes numeric and uuid identifiers across resources).
type Entity interface {
	EntityID() string
}

// =============================================================================
// PAGE INFO - 1-based pagination metadata
// =============================================================================

// PageInfo describes one page of a paginated listing. It is always derived
// through NewPageInfo so the fields stay mutually consistent; callers never
// set HasNext/HasPrev by hand.
type PageInfo struct {
	PageNumber int  `json:"pageNumber"`
	PageSize   int  `json:"pageSize"`
	TotalPages int  `json:"totalPages"`
	TotalCount int  `json:"totalCount"`
	HasNext    bool `json:"hasNextPage"`
	HasPrev    bool `json:"hasPreviousPage"`
}

// NewPageInfo computes consistent pagination metadata.
// totalPages = max(1, ceil(totalCount/pageSize)); an empty result set still
// has one (empty) page. Out-of-range inputs are clamped rather than rejected:
// the server is authoritative about counts, not about our invariants.
func NewPageInfo(pageNumber, pageSize, totalCount int) PageInfo {
	if pageNumber < 1 {
		pageNumber = 1
	}
	if pageSize < 1 {
		pageSize = 1
	}
	if totalCount < 0 {
		totalCount = 0
	}

	totalPages := int(math.Ceil(float64(totalCount) / float64(pageSize)))
	if totalPages < 1 {
		totalPages = 1
	}

	return PageInfo{
		PageNumber: pageNumber,
		PageSize:   pageSize,
		TotalPages: totalPages,
		TotalCount: totalCount,
		HasNext:    pageNumber < totalPages,
		HasPrev:    pageNumber > 1,
	}
}

// =============================================================================
// LIST MODE - How a paged read populates its slice
// =============================================================================

// ListMode is an explicit property of each paged endpoint. The default for
// every listing is Replace; the handful of infinite-scroll readers declare
// Append where the endpoint is defined, so the choice is visible in one place.
type ListMode int

const (
	// Replace discards the cached list and installs the fetched page.
	Replace ListMode = iota

	// Append merges the fetched page into the cached list, deduplicating
	// by entity id. Page 1 still replaces (a fresh scroll session).
	Append
)

func (m ListMode) String() string {
	if m == Append {
		return "append"
	}
	return "replace"
}

// =============================================================================
// TAG - Invalidation label
// =============================================================================

// Tag links mutations to the reads they stale. Reads declare the tags they
// provide; mutations declare the tags they invalidate. Tags are the only
// cross-resource visibility mechanism: a mutation in one family never
// touches another family's slice directly.
type Tag string
