package facilities

import (
	"context"
	"log/slog"
	"time"

	"github.com/warp/portal-sync/client"
	"github.com/warp/portal-sync/state"
)

// Invalidation tags owned by this family.
const (
	TagFacilities state.Tag = "Facilities"
	TagRequests   state.Tag = "FacilityRequests"
)

const listTTL = 300 * time.Second

// Facilities owns the facility and facility-request caches and every
// operation that touches them.
type Facilities struct {
	api *client.Client
	log *slog.Logger

	slice    *state.Slice[Facility, Details]
	requests *state.Slice[Request, Request]

	search      *state.Endpoint[SearchParams, []Facility]
	details     *state.Endpoint[string, *Details]
	listReqs    *state.Endpoint[int, []Request]
	submit      *state.Mutation[SubmitParams, *Request]
	cancel      *state.Mutation[string, struct{}]
}

// New wires the family into the shared cache and client adapter.
func New(api *client.Client, cache *state.Cache, log *slog.Logger) *Facilities {
	f := &Facilities{
		api:      api,
		log:      log.With("module", "facilities"),
		slice:    state.NewSlice[Facility, Details]("facilities", log),
		requests: state.NewSlice[Request, Request]("facilityRequests", log),
	}

	// The search listing backs the infinite-scroll view: append mode.
	f.search = state.Register(cache, state.Endpoint[SearchParams, []Facility]{
		Name:     "facilities.search",
		TTL:      listTTL,
		Provides: []state.Tag{TagFacilities},
		Gate:     f.slice,
		Key:      func(p SearchParams) string { return searchQuery(p).Encode() },
		Fetch: func(ctx context.Context, p SearchParams) ([]Facility, error) {
			env, err := f.api.Get(ctx, "/api/facilities", searchQuery(p))
			if err != nil {
				return nil, err
			}
			items, info, err := client.DecodePage[Facility](env, p.PageNumber, p.PageSize)
			if err != nil {
				return nil, err
			}
			if err := state.ApplyPage(f.slice, state.Append, p.PageNumber, items, info); err != nil {
				return nil, err
			}
			return items, nil
		},
	})

	f.details = state.Register(cache, state.Endpoint[string, *Details]{
		Name:     "facilities.details",
		TTL:      listTTL,
		Provides: []state.Tag{TagFacilities},
		Gate:     f.slice,
		Key:      func(id string) string { return id },
		Fetch: func(ctx context.Context, id string) (*Details, error) {
			// Cleared first so a slow response never renders under the
			// previously selected id.
			f.slice.ClearSelected()

			env, err := f.api.Get(ctx, "/api/facilities/"+id, nil)
			if err != nil {
				return nil, err
			}
			var d Details
			if err := env.Decode(&d); err != nil {
				return nil, err
			}
			if err := f.slice.SetSelected(&d); err != nil {
				return nil, err
			}
			// Warm the list cache with the fresher record.
			_ = f.slice.UpsertOne(d.Facility)
			return &d, nil
		},
	})

	f.listReqs = state.Register(cache, state.Endpoint[int, []Request]{
		Name:     "facilities.requests",
		TTL:      listTTL,
		Provides: []state.Tag{TagRequests},
		Gate:     f.requests,
		Key:      func(page int) string { return state.NewQuery().SetPage(page, requestPageSize).Encode() },
		Fetch: func(ctx context.Context, page int) ([]Request, error) {
			q := state.NewQuery().SetPage(page, requestPageSize)
			env, err := f.api.Get(ctx, "/api/facilities/requests", q)
			if err != nil {
				return nil, err
			}
			items, info, err := client.DecodePage[Request](env, page, requestPageSize)
			if err != nil {
				return nil, err
			}
			if err := state.ApplyPage(f.requests, state.Replace, page, items, info); err != nil {
				return nil, err
			}
			return items, nil
		},
	})

	f.submit = state.RegisterMutation(cache, state.Mutation[SubmitParams, *Request]{
		Name:        "facilities.submitRequest",
		Invalidates: []state.Tag{TagRequests},
		Gate:        f.requests,
		Do: func(ctx context.Context, p SubmitParams) (*Request, error) {
			if err := state.Validate(p); err != nil {
				return nil, err
			}
			env, err := f.api.Post(ctx, "/api/facilities/requests", p)
			if err != nil {
				return nil, err
			}
			var r Request
			if err := env.Decode(&r); err != nil {
				return nil, err
			}
			_ = f.requests.UpsertOne(r)
			return &r, nil
		},
	})

	f.cancel = state.RegisterMutation(cache, state.Mutation[string, struct{}]{
		Name:        "facilities.cancelRequest",
		Invalidates: []state.Tag{TagRequests},
		Gate:        f.requests,
		Do: func(ctx context.Context, id string) (struct{}, error) {
			if _, err := f.api.Delete(ctx, "/api/facilities/requests/"+id); err != nil {
				return struct{}{}, err
			}
			f.requests.RemoveOne(id)
			return struct{}{}, nil
		},
	})

	return f
}

const requestPageSize = 10

func searchQuery(p SearchParams) *state.Query {
	return state.NewQuery().
		SetPage(p.PageNumber, p.PageSize).
		SetOpt("search", p.Search).
		SetOpt("type", p.Kind).
		SetOptInt("minAmount", p.MinAmount).
		SetOptInt("maxAmount", p.MaxAmount)
}

// =============================================================================
// OPERATIONS
// =============================================================================

// Search loads one page of the facility listing (append-merged past page 1).
func (f *Facilities) Search(ctx context.Context, p SearchParams) ([]Facility, error) {
	return f.search.Run(ctx, p)
}

// Details fetches and selects one facility's detail record. When the read
// is served from retention the selection is still reconciled, so the slice
// never keeps a different id's detail on screen.
func (f *Facilities) Details(ctx context.Context, id string) (*Details, error) {
	d, err := f.details.Run(ctx, id)
	if err != nil {
		return nil, err
	}
	if cur := f.slice.Selected(); cur == nil || cur.ID != d.ID {
		f.slice.ClearSelected()
		if err := f.slice.SetSelected(d); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Requests loads one page of the member's facility requests.
func (f *Facilities) Requests(ctx context.Context, page int) ([]Request, error) {
	return f.listReqs.Run(ctx, page)
}

// SubmitRequest creates a facility request; mounted request lists refetch
// through TagRequests.
func (f *Facilities) SubmitRequest(ctx context.Context, p SubmitParams) (*Request, error) {
	return f.submit.Run(ctx, p)
}

// CancelRequest cancels a pending request.
func (f *Facilities) CancelRequest(ctx context.Context, id string) error {
	_, err := f.cancel.Run(ctx, id)
	return err
}

// NewPager returns an infinite-scroll controller over Search with fixed
// filters. Changing filters means building a new pager (the view does this
// whenever its filter fingerprint changes).
func (f *Facilities) NewPager(p SearchParams) *state.Pager {
	return state.NewPager(
		func(ctx context.Context, page int) (state.PageInfo, error) {
			q := p
			q.PageNumber = page
			if _, err := f.search.Refresh(ctx, q); err != nil {
				return state.PageInfo{}, err
			}
			return f.slice.Page(), nil
		},
		f.slice.ClearList,
	)
}

// =============================================================================
// READS
// =============================================================================

// Items returns the cached facility list.
func (f *Facilities) Items() []Facility { return f.slice.List() }

// Selected returns the cached detail record, if any.
func (f *Facilities) Selected() *Details { return f.slice.Selected() }

// Page returns the listing's pagination metadata.
func (f *Facilities) Page() state.PageInfo { return f.slice.Page() }

// Loading reports whether a facility request is in flight.
func (f *Facilities) Loading() bool { return f.slice.Loading() }

// Err returns the last facility failure message.
func (f *Facilities) Err() string { return f.slice.Err() }

// RequestItems returns the cached request list.
func (f *Facilities) RequestItems() []Request { return f.requests.List() }

// RequestsLoading reports whether a request-list call is in flight.
func (f *Facilities) RequestsLoading() bool { return f.requests.Loading() }

// RequestsErr returns the last request-list failure message.
func (f *Facilities) RequestsErr() string { return f.requests.Err() }

// Reset clears both caches (logout/teardown).
func (f *Facilities) Reset() {
	f.slice.Reset()
	f.requests.Reset()
}
