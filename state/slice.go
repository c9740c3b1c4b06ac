/*
slice.go - Normalized cache for one resource family

PURPOSE:
  A Slice is the single source of truth for one resource family's cached
  data: the ordered list, the selected detail record, pagination metadata,
  the loading gate and the error slot. Every resource package instantiates
  one (or more, for sub-resources like facility requests).

WRITER CONTRACT:
  All mutation goes through the methods below. There is no way to reach the
  underlying storage from outside, and reads hand out copies, so a consumer
  can never corrupt the cache. The list endpoints write list+page, detail
  endpoints write selected; concurrent endpoints therefore never race on
  the same field.

VALIDATION AT THE BOUNDARY:
  Setters run every incoming payload through the shared shape check
  (validate.go). An invalid payload is logged and recorded in the error
  slot, but the previously cached valid data survives untouched.

VERSIONING:
  A monotonically increasing version stamps every data change (list,
  selected, page). Selectors memoize against it. Loading/error toggles do
  not bump the version; they are cheap to read directly.

SEE ALSO:
  - merge.go: the append-mode page merge
  - selector.go: version-based memoization
*/
package state

import (
	"log/slog"
	"sync"
)

// Slice holds the cache for one resource family. T is the list-item shape,
// D the richer detail shape (the two coincide for simple families).
type Slice[T Entity, D Entity] struct {
	name string
	log  *slog.Logger

	mu       sync.RWMutex
	list     []T
	selected *D
	page     PageInfo
	loading  bool
	err      string
	version  uint64
}

// NewSlice creates an empty slice for the named resource family.
func NewSlice[T Entity, D Entity](name string, log *slog.Logger) *Slice[T, D] {
	if log == nil {
		log = slog.Default()
	}
	return &Slice[T, D]{name: name, log: log.With("slice", name)}
}

// =============================================================================
// LIST OPERATIONS
// =============================================================================

// SetList replaces the cached list wholesale. Invalid items reject the whole
// payload: a half-applied page is worse than a stale one.
func (s *Slice[T, D]) SetList(items []T) error {
	for _, it := range items {
		if err := ValidateEntity(it); err != nil {
			s.rejectPayload("SetList", err)
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.list = append([]T(nil), items...)
	s.version++
	return nil
}

// ClearList empties the list and its pagination together. Pagination without
// items is meaningless, so the two are never cleared separately.
func (s *Slice[T, D]) ClearList() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.list = nil
	s.page = PageInfo{}
	s.version++
}

// AppendPage merges a fetched page into the cached list, deduplicating by
// entity id, and returns the number of net-new items. When every incoming
// item is already cached the list (and the version) are left untouched, so
// consumers watching the version see a true no-op.
func (s *Slice[T, D]) AppendPage(items []T) (int, error) {
	for _, it := range items {
		if err := ValidateEntity(it); err != nil {
			s.rejectPayload("AppendPage", err)
			return 0, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	merged, added := MergeByID(s.list, items)
	if added == 0 {
		return 0, nil
	}
	s.list = merged
	s.version++
	return added, nil
}

// UpsertOne warms the list cache with a single entity: unknown ids are
// prepended, known ids are replaced in place. Used after detail and
// mutation responses so a follow-up listing renders fresh data immediately.
func (s *Slice[T, D]) UpsertOne(e T) error {
	if err := ValidateEntity(e); err != nil {
		s.rejectPayload("UpsertOne", err)
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, existing := range s.list {
		if existing.EntityID() == e.EntityID() {
			s.list[i] = e
			s.version++
			return nil
		}
	}
	s.list = append([]T{e}, s.list...)
	s.version++
	return nil
}

// RemoveOne drops the entity with the given id. If it is also the selected
// detail record, the selection is cleared with it.
func (s *Slice[T, D]) RemoveOne(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := false
	kept := s.list[:0]
	for _, e := range s.list {
		if e.EntityID() == id {
			changed = true
			continue
		}
		kept = append(kept, e)
	}
	s.list = kept

	if s.selected != nil && (*s.selected).EntityID() == id {
		s.selected = nil
		changed = true
	}
	if changed {
		s.version++
	}
}

// =============================================================================
// SELECTED DETAIL RECORD
// =============================================================================

// SetSelected installs the detail record. Detail fetches call ClearSelected
// first, so a slow response can never render under the wrong id.
func (s *Slice[T, D]) SetSelected(d *D) error {
	if d != nil {
		if err := ValidateEntity(*d); err != nil {
			s.rejectPayload("SetSelected", err)
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = d
	s.version++
	return nil
}

// ClearSelected drops the detail record (navigation away, or the start of a
// fetch for a different id).
func (s *Slice[T, D]) ClearSelected() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected == nil {
		return
	}
	s.selected = nil
	s.version++
}

// =============================================================================
// FLAGS AND METADATA
// =============================================================================

// SetPageInfo overwrites the pagination metadata. The freshest server
// response always wins; there is no merge logic.
func (s *Slice[T, D]) SetPageInfo(p PageInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.page = p
	s.version++
}

// SetLoading records whether a request affecting this slice is in flight.
func (s *Slice[T, D]) SetLoading(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = v
}

// SetError records the last human-readable failure for this slice.
func (s *Slice[T, D]) SetError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = msg
}

// ClearError resets the error slot; called at the start of every new attempt.
func (s *Slice[T, D]) ClearError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = ""
}

// Reset returns the slice to its initial empty state (logout, teardown).
// Everything is rebuilt fresh: nothing from the previous session can alias
// into the next one.
func (s *Slice[T, D]) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.list = nil
	s.selected = nil
	s.page = PageInfo{}
	s.loading = false
	s.err = ""
	s.version++
}

// =============================================================================
// READS - Always copies, never internal references
// =============================================================================

// List returns a copy of the cached list.
func (s *Slice[T, D]) List() []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]T(nil), s.list...)
}

// Get returns the cached list item with the given id.
func (s *Slice[T, D]) Get(id string) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.list {
		if e.EntityID() == id {
			return e, true
		}
	}
	var zero T
	return zero, false
}

// Selected returns a copy of the detail record, or nil when none is selected.
func (s *Slice[T, D]) Selected() *D {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.selected == nil {
		return nil
	}
	d := *s.selected
	return &d
}

// Page returns the current pagination metadata.
func (s *Slice[T, D]) Page() PageInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.page
}

// Loading reports whether a request affecting this slice is in flight.
func (s *Slice[T, D]) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// Err returns the last recorded failure message, or "".
func (s *Slice[T, D]) Err() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Version returns the data version; it changes on every list/selected/page
// mutation and is the memoization key for selectors.
func (s *Slice[T, D]) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Len returns the cached list length without copying.
func (s *Slice[T, D]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.list)
}

func (s *Slice[T, D]) rejectPayload(op string, err error) {
	s.log.Warn("rejected invalid payload", "op", op, "error", err)
	s.SetError(MessageOf(err))
}
