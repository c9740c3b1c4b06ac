package state_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/portal-sync/state"
)

// =============================================================================
// TEST FIXTURES
// =============================================================================

type item struct {
	ID   string
	Rank int
}

func (i item) EntityID() string { return i.ID }

type detail struct {
	ID   string
	Note string
}

func (d detail) EntityID() string { return d.ID }

func newSlice() *state.Slice[item, detail] {
	return state.NewSlice[item, detail]("test", nil)
}

func items(ids ...string) []item {
	out := make([]item, 0, len(ids))
	for i, id := range ids {
		out = append(out, item{ID: id, Rank: i})
	}
	return out
}

func listIDs(s *state.Slice[item, detail]) []string {
	var ids []string
	for _, e := range s.List() {
		ids = append(ids, e.ID)
	}
	return ids
}

// =============================================================================
// PAGE INFO
// =============================================================================

func TestNewPageInfoFormula(t *testing.T) {
	cases := []struct {
		name               string
		page, size, total  int
		wantPages          int
		wantNext, wantPrev bool
	}{
		{"exact multiple", 1, 10, 30, 3, true, false},
		{"partial last page", 2, 10, 25, 3, true, true},
		{"final page", 3, 10, 25, 3, false, true},
		{"empty result still one page", 1, 10, 0, 1, false, false},
		{"single item", 1, 10, 1, 1, false, false},
		{"clamped inputs", 0, 0, -5, 1, false, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			info := state.NewPageInfo(tc.page, tc.size, tc.total)
			assert.Equal(t, tc.wantPages, info.TotalPages)
			assert.Equal(t, tc.wantNext, info.HasNext)
			assert.Equal(t, tc.wantPrev, info.HasPrev)
		})
	}
}

// =============================================================================
// LIST OPERATIONS
// =============================================================================

func TestSetListReplacesWholesale(t *testing.T) {
	s := newSlice()
	require.NoError(t, s.SetList(items("a", "b")))
	require.NoError(t, s.SetList(items("c")))

	assert.Equal(t, []string{"c"}, listIDs(s))
}

func TestAppendPageDeduplicatesByID(t *testing.T) {
	// GIVEN a cached first page
	s := newSlice()
	require.NoError(t, s.SetList(items("a", "b")))

	// WHEN the next page overlaps with it
	added, err := s.AppendPage(items("b", "c", "d"))
	require.NoError(t, err)

	// THEN only the net-new items land, in arrival order
	assert.Equal(t, 2, added)
	assert.Equal(t, []string{"a", "b", "c", "d"}, listIDs(s))
}

func TestAppendPageAllDuplicatesIsNoOp(t *testing.T) {
	s := newSlice()
	require.NoError(t, s.SetList(items("a", "b")))
	v := s.Version()

	// A page with zero net-new items must not disturb the cache: the
	// version stays put so memoized selectors do not recompute.
	added, err := s.AppendPage(items("a", "b"))
	require.NoError(t, err)
	assert.Equal(t, 0, added)
	assert.Equal(t, v, s.Version())
	assert.Equal(t, []string{"a", "b"}, listIDs(s))
}

func TestAppendPageIsIdempotent(t *testing.T) {
	s := newSlice()
	require.NoError(t, s.SetList(items("a")))

	page := items("b", "c")
	_, err := s.AppendPage(page)
	require.NoError(t, err)
	first := listIDs(s)

	added, err := s.AppendPage(page)
	require.NoError(t, err)
	assert.Equal(t, 0, added)
	assert.Equal(t, first, listIDs(s))
}

func TestInvalidPayloadRejectedNonDestructively(t *testing.T) {
	// GIVEN valid cached data
	s := newSlice()
	require.NoError(t, s.SetList(items("a", "b")))

	// WHEN a payload with a malformed record arrives
	err := s.SetList([]item{{ID: "c"}, {ID: ""}})

	// THEN the whole payload is rejected, the cache is untouched, and the
	// failure lands in the error slot
	require.Error(t, err)
	assert.Equal(t, []string{"a", "b"}, listIDs(s))
	assert.NotEmpty(t, s.Err())

	_, err = s.AppendPage([]item{{ID: ""}})
	require.Error(t, err)
	assert.Equal(t, []string{"a", "b"}, listIDs(s))
}

func TestUpsertOne(t *testing.T) {
	s := newSlice()
	require.NoError(t, s.SetList(items("a", "b")))

	// Known id: replaced in place.
	require.NoError(t, s.UpsertOne(item{ID: "b", Rank: 99}))
	got, ok := s.Get("b")
	require.True(t, ok)
	assert.Equal(t, 99, got.Rank)
	assert.Equal(t, []string{"a", "b"}, listIDs(s))

	// Unknown id: prepended.
	require.NoError(t, s.UpsertOne(item{ID: "z"}))
	assert.Equal(t, []string{"z", "a", "b"}, listIDs(s))
}

func TestRemoveOneClearsMatchingSelection(t *testing.T) {
	s := newSlice()
	require.NoError(t, s.SetList(items("a", "b")))
	require.NoError(t, s.SetSelected(&detail{ID: "b"}))

	s.RemoveOne("b")

	assert.Equal(t, []string{"a"}, listIDs(s))
	assert.Nil(t, s.Selected())
}

func TestClearListDropsPaginationWithIt(t *testing.T) {
	s := newSlice()
	require.NoError(t, s.SetList(items("a")))
	s.SetPageInfo(state.NewPageInfo(2, 10, 25))

	s.ClearList()

	assert.Zero(t, s.Len())
	assert.Equal(t, state.PageInfo{}, s.Page())
}

// =============================================================================
// SELECTION AND RESET
// =============================================================================

func TestSelectedReturnsCopy(t *testing.T) {
	s := newSlice()
	require.NoError(t, s.SetSelected(&detail{ID: "a", Note: "original"}))

	got := s.Selected()
	require.NotNil(t, got)
	got.Note = "mutated"

	assert.Equal(t, "original", s.Selected().Note)
}

func TestResetRestoresInitialState(t *testing.T) {
	s := newSlice()
	require.NoError(t, s.SetList(items("a")))
	require.NoError(t, s.SetSelected(&detail{ID: "a"}))
	s.SetPageInfo(state.NewPageInfo(1, 10, 1))
	s.SetLoading(true)
	s.SetError("boom")

	s.Reset()

	assert.Zero(t, s.Len())
	assert.Nil(t, s.Selected())
	assert.Equal(t, state.PageInfo{}, s.Page())
	assert.False(t, s.Loading())
	assert.Empty(t, s.Err())
}

func TestLoadingAndErrorDoNotBumpVersion(t *testing.T) {
	s := newSlice()
	v := s.Version()

	s.SetLoading(true)
	s.SetError("x")
	s.ClearError()
	s.SetLoading(false)

	assert.Equal(t, v, s.Version())
}
