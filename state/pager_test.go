package state_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/portal-sync/state"
)

// scrollFixture simulates a slice fed by a paged fetch: three pages of
// two items over five total.
type scrollFixture struct {
	items      []string
	fetched    []int
	resets     int
	failOnPage int
}

func (f *scrollFixture) pager() *state.Pager {
	pages := map[int][]string{
		1: {"a", "b"},
		2: {"c", "d"},
		3: {"e"},
	}
	return state.NewPager(
		func(_ context.Context, page int) (state.PageInfo, error) {
			if page == f.failOnPage {
				return state.PageInfo{}, state.NewError(state.KindTransport, "")
			}
			f.fetched = append(f.fetched, page)
			f.items = append(f.items, pages[page]...)
			return state.NewPageInfo(page, 2, 5), nil
		},
		func() {
			f.resets++
			f.items = nil
		},
	)
}

func TestPagerLoadStartsFromPageOne(t *testing.T) {
	f := &scrollFixture{}
	p := f.pager()

	require.NoError(t, p.Load(context.Background()))

	assert.Equal(t, state.Ready, p.Phase())
	assert.Equal(t, []int{1}, f.fetched)
	assert.Equal(t, 1, f.resets)
	assert.Equal(t, []string{"a", "b"}, f.items)
}

func TestPagerLoadMoreAccumulatesUntilExhausted(t *testing.T) {
	f := &scrollFixture{}
	p := f.pager()
	ctx := context.Background()

	require.NoError(t, p.Load(ctx))
	require.NoError(t, p.LoadMore(ctx))
	require.NoError(t, p.LoadMore(ctx))

	assert.Equal(t, state.Exhausted, p.Phase())
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, f.items)

	// Past the last page, further triggers are no-ops.
	require.NoError(t, p.LoadMore(ctx))
	assert.Equal(t, []int{1, 2, 3}, f.fetched)
}

func TestPagerLoadMoreBeforeLoadIsNoOp(t *testing.T) {
	f := &scrollFixture{}
	p := f.pager()

	require.NoError(t, p.LoadMore(context.Background()))

	assert.Equal(t, state.Idle, p.Phase())
	assert.Empty(t, f.fetched)
}

func TestPagerFilterChangeResetsAccumulation(t *testing.T) {
	f := &scrollFixture{}
	p := f.pager()
	ctx := context.Background()

	require.NoError(t, p.SetFilter(ctx, "q=loan"))
	require.NoError(t, p.LoadMore(ctx))
	require.Equal(t, []string{"a", "b", "c", "d"}, f.items)

	// GIVEN an accumulated scroll session, WHEN the filter changes
	require.NoError(t, p.SetFilter(ctx, "q=grant"))

	// THEN the accumulation is discarded and page 1 reloads
	assert.Equal(t, []string{"a", "b"}, f.items)
	assert.Equal(t, []int{1, 2, 1}, f.fetched)

	// An identical fingerprint is a no-op.
	require.NoError(t, p.SetFilter(ctx, "q=grant"))
	assert.Equal(t, []int{1, 2, 1}, f.fetched)
}

func TestPagerFailedLoadMoreKeepsAccumulation(t *testing.T) {
	f := &scrollFixture{failOnPage: 2}
	p := f.pager()
	ctx := context.Background()

	require.NoError(t, p.Load(ctx))
	err := p.LoadMore(ctx)
	require.Error(t, err)

	// The accumulated items and the confirmed page survive; the machine
	// backs off to Ready so the trigger can fire again.
	assert.Equal(t, []string{"a", "b"}, f.items)
	assert.Equal(t, state.Ready, p.Phase())
	assert.Equal(t, 1, p.Page().PageNumber)

	// Retry succeeds once the failure clears.
	f.failOnPage = 0
	require.NoError(t, p.LoadMore(ctx))
	assert.Equal(t, []string{"a", "b", "c", "d"}, f.items)
}

func TestPagerFailedInitialLoadReturnsToIdle(t *testing.T) {
	f := &scrollFixture{failOnPage: 1}
	p := f.pager()

	err := p.Load(context.Background())
	require.Error(t, err)
	assert.Equal(t, state.Idle, p.Phase())
}
