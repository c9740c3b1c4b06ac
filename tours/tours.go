/*
Package tours caches the portal's organized tours and the member's tour
reservations.

PURPOSE:
  Paged, filterable tour search (append mode, infinite scroll), a detail
  record with the clear-before-select guarantee, and the reservation
  sub-resource (list, reserve, cancel). Reserving or canceling invalidates
  TagReservations so mounted reservation lists refetch.
*/
package tours

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/portal-sync/client"
	"github.com/warp/portal-sync/state"
)

// Invalidation tags owned by this family.
const (
	TagTours        state.Tag = "Tours"
	TagReservations state.Tag = "TourReservations"
)

const listTTL = 300 * time.Second

// Tour is the list-item shape returned by the search endpoint.
type Tour struct {
	ID          string          `json:"id" validate:"required"`
	Title       string          `json:"title" validate:"required"`
	Destination string          `json:"destination"`
	StartDate   string          `json:"startDate,omitempty"`
	EndDate     string          `json:"endDate,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Capacity    int             `json:"capacity"`
	Remaining   int             `json:"remainingCapacity"`
	Status      string          `json:"status"` // open, full, finished
}

func (t Tour) EntityID() string { return t.ID }

// Details is the richer detail shape.
type Details struct {
	Tour
	Description string   `json:"description,omitempty"`
	Itinerary   []string `json:"itinerary,omitempty"`
	Services    []string `json:"services,omitempty"`
}

// Reservation is one tour reservation.
type Reservation struct {
	ID         string          `json:"id" validate:"required"`
	TourID     string          `json:"tourId" validate:"required"`
	Travelers  int             `json:"travelers"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
	Status     string          `json:"status"` // reserved, confirmed, canceled
	ReservedAt string          `json:"reservedAt,omitempty"`
}

func (r Reservation) EntityID() string { return r.ID }

// SearchParams are the search endpoint's filters.
type SearchParams struct {
	PageNumber  int
	PageSize    int
	Search      string
	Destination string
	FromDate    string
	ToDate      string
}

// ReserveParams creates a reservation.
type ReserveParams struct {
	TourID    string `json:"tourId" validate:"required"`
	Travelers int    `json:"travelers" validate:"min=1"`
}

// Tours owns the tour and reservation caches.
type Tours struct {
	api *client.Client
	log *slog.Logger

	slice        *state.Slice[Tour, Details]
	reservations *state.Slice[Reservation, Reservation]

	search   *state.Endpoint[SearchParams, []Tour]
	details  *state.Endpoint[string, *Details]
	listRes  *state.Endpoint[int, []Reservation]
	reserve  *state.Mutation[ReserveParams, *Reservation]
	cancel   *state.Mutation[string, struct{}]
}

// New wires the family into the shared cache and client adapter.
func New(api *client.Client, cache *state.Cache, log *slog.Logger) *Tours {
	t := &Tours{
		api:          api,
		log:          log.With("module", "tours"),
		slice:        state.NewSlice[Tour, Details]("tours", log),
		reservations: state.NewSlice[Reservation, Reservation]("tourReservations", log),
	}

	t.search = state.Register(cache, state.Endpoint[SearchParams, []Tour]{
		Name:     "tours.search",
		TTL:      listTTL,
		Provides: []state.Tag{TagTours},
		Gate:     t.slice,
		Key:      func(p SearchParams) string { return searchQuery(p).Encode() },
		Fetch: func(ctx context.Context, p SearchParams) ([]Tour, error) {
			env, err := t.api.Get(ctx, "/api/tours", searchQuery(p))
			if err != nil {
				return nil, err
			}
			items, info, err := client.DecodePage[Tour](env, p.PageNumber, p.PageSize)
			if err != nil {
				return nil, err
			}
			if err := state.ApplyPage(t.slice, state.Append, p.PageNumber, items, info); err != nil {
				return nil, err
			}
			return items, nil
		},
	})

	t.details = state.Register(cache, state.Endpoint[string, *Details]{
		Name:     "tours.details",
		TTL:      listTTL,
		Provides: []state.Tag{TagTours},
		Gate:     t.slice,
		Key:      func(id string) string { return id },
		Fetch: func(ctx context.Context, id string) (*Details, error) {
			t.slice.ClearSelected()
			env, err := t.api.Get(ctx, "/api/tours/"+id, nil)
			if err != nil {
				return nil, err
			}
			var d Details
			if err := env.Decode(&d); err != nil {
				return nil, err
			}
			if err := t.slice.SetSelected(&d); err != nil {
				return nil, err
			}
			_ = t.slice.UpsertOne(d.Tour)
			return &d, nil
		},
	})

	t.listRes = state.Register(cache, state.Endpoint[int, []Reservation]{
		Name:     "tours.reservations",
		TTL:      listTTL,
		Provides: []state.Tag{TagReservations},
		Gate:     t.reservations,
		Key:      func(page int) string { return state.NewQuery().SetPage(page, reservationPageSize).Encode() },
		Fetch: func(ctx context.Context, page int) ([]Reservation, error) {
			q := state.NewQuery().SetPage(page, reservationPageSize)
			env, err := t.api.Get(ctx, "/api/tours/reservations", q)
			if err != nil {
				return nil, err
			}
			items, info, err := client.DecodePage[Reservation](env, page, reservationPageSize)
			if err != nil {
				return nil, err
			}
			if err := state.ApplyPage(t.reservations, state.Replace, page, items, info); err != nil {
				return nil, err
			}
			return items, nil
		},
	})

	t.reserve = state.RegisterMutation(cache, state.Mutation[ReserveParams, *Reservation]{
		Name:        "tours.reserve",
		Invalidates: []state.Tag{TagReservations, TagTours},
		Gate:        t.reservations,
		Do: func(ctx context.Context, p ReserveParams) (*Reservation, error) {
			if err := state.Validate(p); err != nil {
				return nil, err
			}
			env, err := t.api.Post(ctx, "/api/tours/reservations", p)
			if err != nil {
				return nil, err
			}
			var r Reservation
			if err := env.Decode(&r); err != nil {
				return nil, err
			}
			_ = t.reservations.UpsertOne(r)
			return &r, nil
		},
	})

	t.cancel = state.RegisterMutation(cache, state.Mutation[string, struct{}]{
		Name:        "tours.cancelReservation",
		Invalidates: []state.Tag{TagReservations, TagTours},
		Gate:        t.reservations,
		Do: func(ctx context.Context, id string) (struct{}, error) {
			if _, err := t.api.Delete(ctx, "/api/tours/reservations/"+id); err != nil {
				return struct{}{}, err
			}
			t.reservations.RemoveOne(id)
			return struct{}{}, nil
		},
	})

	return t
}

const reservationPageSize = 10

func searchQuery(p SearchParams) *state.Query {
	return state.NewQuery().
		SetPage(p.PageNumber, p.PageSize).
		SetOpt("search", p.Search).
		SetOpt("destination", p.Destination).
		SetOpt("fromDate", p.FromDate).
		SetOpt("toDate", p.ToDate)
}

// Search loads one page of the tour listing (append-merged past page 1).
func (t *Tours) Search(ctx context.Context, p SearchParams) ([]Tour, error) {
	return t.search.Run(ctx, p)
}

// Details fetches and selects one tour.
func (t *Tours) Details(ctx context.Context, id string) (*Details, error) {
	d, err := t.details.Run(ctx, id)
	if err != nil {
		return nil, err
	}
	// A retention hit skips Fetch, so reconcile the selection here too.
	if cur := t.slice.Selected(); cur == nil || cur.ID != d.ID {
		t.slice.ClearSelected()
		if err := t.slice.SetSelected(d); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Reservations loads one page of the member's tour reservations.
func (t *Tours) Reservations(ctx context.Context, page int) ([]Reservation, error) {
	return t.listRes.Run(ctx, page)
}

// Reserve books a tour.
func (t *Tours) Reserve(ctx context.Context, p ReserveParams) (*Reservation, error) {
	return t.reserve.Run(ctx, p)
}

// CancelReservation cancels a reservation.
func (t *Tours) CancelReservation(ctx context.Context, id string) error {
	_, err := t.cancel.Run(ctx, id)
	return err
}

// NewPager returns an infinite-scroll controller over Search.
func (t *Tours) NewPager(p SearchParams) *state.Pager {
	return state.NewPager(
		func(ctx context.Context, page int) (state.PageInfo, error) {
			q := p
			q.PageNumber = page
			if _, err := t.search.Refresh(ctx, q); err != nil {
				return state.PageInfo{}, err
			}
			return t.slice.Page(), nil
		},
		t.slice.ClearList,
	)
}

// Items returns the cached tour list.
func (t *Tours) Items() []Tour { return t.slice.List() }

// Selected returns the cached tour detail, if any.
func (t *Tours) Selected() *Details { return t.slice.Selected() }

// ReservationItems returns the cached reservation list.
func (t *Tours) ReservationItems() []Reservation { return t.reservations.List() }

// Page returns the listing's pagination metadata.
func (t *Tours) Page() state.PageInfo { return t.slice.Page() }

// Loading reports whether a tour request is in flight.
func (t *Tours) Loading() bool { return t.slice.Loading() }

// Err returns the last tour failure message.
func (t *Tours) Err() string { return t.slice.Err() }

// Reset clears both caches (logout/teardown).
func (t *Tours) Reset() {
	t.slice.Reset()
	t.reservations.Reset()
}
