package facilities_test

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/portal-sync/client"
	"github.com/warp/portal-sync/facilities"
	"github.com/warp/portal-sync/state"
)

// =============================================================================
// TEST SETUP - a paged facility upstream
// =============================================================================

// facilityServer serves five facilities two per page and counts hits.
type facilityServer struct {
	searchHits  atomic.Int32
	detailHits  atomic.Int32
	requestHits atomic.Int32
}

func (fs *facilityServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/facilities", func(w http.ResponseWriter, r *http.Request) {
		fs.searchHits.Add(1)
		page, _ := strconv.Atoi(r.URL.Query().Get("pageNumber"))
		if page < 1 {
			page = 1
		}
		items := ""
		switch page {
		case 1:
			items = `{"id":"f-1","title":"Marriage loan","type":"loan","amount":"500"},{"id":"f-2","title":"Housing loan","type":"loan","amount":"900"}`
		case 2:
			items = `{"id":"f-3","title":"Education grant","type":"grant","amount":"60"},{"id":"f-4","title":"Emergency credit","type":"credit","amount":"150"}`
		case 3:
			items = `{"id":"f-5","title":"Travel grant","type":"grant","amount":"30"}`
		}
		fmt.Fprintf(w, `{"isSuccess":true,"data":{"items":[%s],"pageNumber":%d,"pageSize":2,"totalCount":5}}`, items, page)
	})
	mux.HandleFunc("GET /api/facilities/{id}", func(w http.ResponseWriter, r *http.Request) {
		fs.detailHits.Add(1)
		id := r.PathValue("id")
		fmt.Fprintf(w, `{"isSuccess":true,"data":{"id":"%s","title":"Facility %s","type":"loan","amount":"500","description":"details","guarantorCount":2}}`, id, id)
	})
	mux.HandleFunc("GET /api/facilities/requests", func(w http.ResponseWriter, _ *http.Request) {
		fs.requestHits.Add(1)
		fmt.Fprint(w, `{"isSuccess":true,"data":{"items":[{"id":"fr-1","facilityId":"f-1","status":"pending","amount":"500"}],"pageNumber":1,"pageSize":10,"totalCount":1}}`)
	})
	mux.HandleFunc("POST /api/facilities/requests", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"isSuccess":true,"data":{"id":"fr-2","facilityId":"f-2","status":"pending","amount":"900","trackingCode":"TRK-1"}}`)
	})
	mux.HandleFunc("DELETE /api/facilities/requests/{id}", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"isSuccess":true}`)
	})
	return mux
}

func newFacilities(t *testing.T) (*facilities.Facilities, *facilityServer) {
	t.Helper()
	fs := &facilityServer{}
	srv := httptest.NewServer(fs.handler())
	t.Cleanup(srv.Close)

	api, err := client.New(srv.URL)
	require.NoError(t, err)
	return facilities.New(api, state.NewCache(nil), slog.Default()), fs
}

func facilityIDs(f *facilities.Facilities) []string {
	var ids []string
	for _, it := range f.Items() {
		ids = append(ids, it.ID)
	}
	return ids
}

// =============================================================================
// INFINITE-SCROLL SEARCH
// =============================================================================

func TestSearchPagerAccumulatesPages(t *testing.T) {
	f, _ := newFacilities(t)
	ctx := context.Background()

	p := f.NewPager(facilities.SearchParams{PageSize: 2})
	require.NoError(t, p.Load(ctx))
	assert.Equal(t, []string{"f-1", "f-2"}, facilityIDs(f))

	require.NoError(t, p.LoadMore(ctx))
	assert.Equal(t, []string{"f-1", "f-2", "f-3", "f-4"}, facilityIDs(f))

	require.NoError(t, p.LoadMore(ctx))
	assert.Equal(t, state.Exhausted, p.Phase())
	assert.Len(t, f.Items(), 5)

	// Exhausted: the sentinel can keep firing without traffic.
	before := f.Page()
	require.NoError(t, p.LoadMore(ctx))
	assert.Equal(t, before, f.Page())
}

func TestSearchRetainedWithinTTL(t *testing.T) {
	f, fs := newFacilities(t)
	ctx := context.Background()
	params := facilities.SearchParams{PageNumber: 1, PageSize: 2}

	_, err := f.Search(ctx, params)
	require.NoError(t, err)
	_, err = f.Search(ctx, params)
	require.NoError(t, err)

	assert.EqualValues(t, 1, fs.searchHits.Load())

	// A different filter is a different fingerprint.
	params.Kind = "grant"
	_, err = f.Search(ctx, params)
	require.NoError(t, err)
	assert.EqualValues(t, 2, fs.searchHits.Load())
}

// =============================================================================
// DETAILS SELECTION
// =============================================================================

func TestDetailsSelectsAndWarmsList(t *testing.T) {
	f, _ := newFacilities(t)

	d, err := f.Details(context.Background(), "f-1")
	require.NoError(t, err)
	assert.Equal(t, "f-1", d.ID)

	sel := f.Selected()
	require.NotNil(t, sel)
	assert.Equal(t, "f-1", sel.ID)

	// The detail response warmed the list cache too.
	assert.Contains(t, facilityIDs(f), "f-1")
}

func TestDetailsNeverKeepsWrongSelection(t *testing.T) {
	f, fs := newFacilities(t)
	ctx := context.Background()

	// GIVEN f-1 selected, then f-2
	_, err := f.Details(ctx, "f-1")
	require.NoError(t, err)
	_, err = f.Details(ctx, "f-2")
	require.NoError(t, err)
	require.Equal(t, "f-2", f.Selected().ID)

	// WHEN f-1 is requested again and served from retention
	_, err = f.Details(ctx, "f-1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, fs.detailHits.Load())

	// THEN the selection still reconciles to the requested id
	require.NotNil(t, f.Selected())
	assert.Equal(t, "f-1", f.Selected().ID)
}

// =============================================================================
// REQUESTS
// =============================================================================

func TestSubmitRequestInvalidatesListing(t *testing.T) {
	f, fs := newFacilities(t)
	ctx := context.Background()

	_, err := f.Requests(ctx, 1)
	require.NoError(t, err)
	require.EqualValues(t, 1, fs.requestHits.Load())

	_, err = f.SubmitRequest(ctx, facilities.SubmitParams{FacilityID: "f-2"})
	require.NoError(t, err)

	// The submitted request is visible immediately.
	ids := make([]string, 0)
	for _, r := range f.RequestItems() {
		ids = append(ids, r.ID)
	}
	assert.Contains(t, ids, "fr-2")

	// And the retained listing was staled by the tag.
	_, err = f.Requests(ctx, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 2, fs.requestHits.Load())
}

func TestSubmitRequestValidatesLocally(t *testing.T) {
	f, _ := newFacilities(t)

	_, err := f.SubmitRequest(context.Background(), facilities.SubmitParams{})
	require.Error(t, err)
	assert.True(t, state.IsValidation(err))
}

func TestCancelRequestRemovesFromCache(t *testing.T) {
	f, _ := newFacilities(t)
	ctx := context.Background()

	_, err := f.Requests(ctx, 1)
	require.NoError(t, err)
	require.Len(t, f.RequestItems(), 1)

	require.NoError(t, f.CancelRequest(ctx, "fr-1"))
	assert.Empty(t, f.RequestItems())
}
