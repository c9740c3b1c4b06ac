/*
Package accommodations caches the portal's guest houses / resort rooms and
the member's stay reservations.

PURPOSE:
  Structurally the tours family's sibling: paged search (append mode),
  details with clear-before-select, and a reservation sub-resource. The
  domain differs: availability is per date range and pricing per night,
  so the search carries check-in/check-out filters and reservations carry
  nights and room counts.
*/
package accommodations

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
	TagAccommodations state.Tag = "Accommodations"
	TagStays          state.Tag = "StayReservations"
)

const listTTL = 300 * time.Second

// Accommodation is the list-item shape.
type Accommodation struct {
	ID           string          `json:"id" validate:"required"`
	Name         string          `json:"name" validate:"required"`
	City         string          `json:"city"`
	Kind         string          `json:"type"` // guesthouse, hotel, villa
	NightlyRate  decimal.Decimal `json:"nightlyRate"`
	Capacity     int             `json:"capacity"`
	Rating       int             `json:"rating,omitempty"`
	Status       string          `json:"status"` // available, full
}

func (a Accommodation) EntityID() string { return a.ID }

// Details is the richer detail shape.
type Details struct {
	Accommodation
	Description string   `json:"description,omitempty"`
	Amenities   []string `json:"amenities,omitempty"`
	Address     string   `json:"address,omitempty"`
}

// Stay is one accommodation reservation.
type Stay struct {
	ID              string          `json:"id" validate:"required"`
	AccommodationID string          `json:"accommodationId" validate:"required"`
	CheckIn         string          `json:"checkIn"`
	CheckOut        string          `json:"checkOut"`
	Rooms           int             `json:"rooms"`
	TotalPrice      decimal.Decimal `json:"totalPrice"`
	Status          string          `json:"status"` // reserved, confirmed, canceled
}

func (s Stay) EntityID() string { return s.ID }

// SearchParams are the search endpoint's filters.
type SearchParams struct {
	PageNumber int
	PageSize   int
	Search     string
	City       string
	CheckIn    string
	CheckOut   string
	Guests     *int
}

// ReserveParams creates a stay reservation.
type ReserveParams struct {
	AccommodationID string `json:"accommodationId" validate:"required"`
	CheckIn         string `json:"checkIn" validate:"required"`
	CheckOut        string `json:"checkOut" validate:"required"`
	Rooms           int    `json:"rooms" validate:"min=1"`
}

// Accommodations owns the accommodation and stay caches.
type Accommodations struct {
	api *client.Client
	log *slog.Logger

	slice *state.Slice[Accommodation, Details]
	stays *state.Slice[Stay, Stay]

	search    *state.Endpoint[SearchParams, []Accommodation]
	details   *state.Endpoint[string, *Details]
	listStays *state.Endpoint[int, []Stay]
	reserve   *state.Mutation[ReserveParams, *Stay]
	cancel    *state.Mutation[string, struct{}]
}

// New wires the family into the shared cache and client adapter.
func New(api *client.Client, cache *state.Cache, log *slog.Logger) *Accommodations {
	a := &Accommodations{
		api:   api,
		log:   log.With("module", "accommodations"),
		slice: state.NewSlice[Accommodation, Details]("accommodations", log),
		stays: state.NewSlice[Stay, Stay]("stayReservations", log),
	}

	a.search = state.Register(cache, state.Endpoint[SearchParams, []Accommodation]{
		Name:     "accommodations.search",
		TTL:      listTTL,
		Provides: []state.Tag{TagAccommodations},
		Gate:     a.slice,
		Key:      func(p SearchParams) string { return searchQuery(p).Encode() },
		Fetch: func(ctx context.Context, p SearchParams) ([]Accommodation, error) {
			env, err := a.api.Get(ctx, "/api/accommodations", searchQuery(p))
			if err != nil {
				return nil, err
			}
			items, info, err := client.DecodePage[Accommodation](env, p.PageNumber, p.PageSize)
			if err != nil {
				return nil, err
			}
			if err := state.ApplyPage(a.slice, state.Append, p.PageNumber, items, info); err != nil {
				return nil, err
			}
			return items, nil
		},
	})

	a.details = state.Register(cache, state.Endpoint[string, *Details]{
		Name:     "accommodations.details",
		TTL:      listTTL,
		Provides: []state.Tag{TagAccommodations},
		Gate:     a.slice,
		Key:      func(id string) string { return id },
		Fetch: func(ctx context.Context, id string) (*Details, error) {
			a.slice.ClearSelected()
			env, err := a.api.Get(ctx, "/api/accommodations/"+id, nil)
			if err != nil {
				return nil, err
			}
			var d Details
			if err := env.Decode(&d); err != nil {
				return nil, err
			}
			if err := a.slice.SetSelected(&d); err != nil {
				return nil, err
			}
			return &d, nil
		},
	})

	a.listStays = state.Register(cache, state.Endpoint[int, []Stay]{
		Name:     "accommodations.stays",
		TTL:      listTTL,
		Provides: []state.Tag{TagStays},
		Gate:     a.stays,
		Key:      func(page int) string { return state.NewQuery().SetPage(page, stayPageSize).Encode() },
		Fetch: func(ctx context.Context, page int) ([]Stay, error) {
			q := state.NewQuery().SetPage(page, stayPageSize)
			env, err := a.api.Get(ctx, "/api/accommodations/reservations", q)
			if err != nil {
				return nil, err
			}
			items, info, err := client.DecodePage[Stay](env, page, stayPageSize)
			if err != nil {
				return nil, err
			}
			if err := state.ApplyPage(a.stays, state.Replace, page, items, info); err != nil {
				return nil, err
			}
			return items, nil
		},
	})

	a.reserve = state.RegisterMutation(cache, state.Mutation[ReserveParams, *Stay]{
		Name:        "accommodations.reserve",
		Invalidates: []state.Tag{TagStays, TagAccommodations},
		Gate:        a.stays,
		Do: func(ctx context.Context, p ReserveParams) (*Stay, error) {
			if err := state.Validate(p); err != nil {
				return nil, err
			}
			env, err := a.api.Post(ctx, "/api/accommodations/reservations", p)
			if err != nil {
				return nil, err
			}
			var s Stay
			if err := env.Decode(&s); err != nil {
				return nil, err
			}
			_ = a.stays.UpsertOne(s)
			return &s, nil
		},
	})

	a.cancel = state.RegisterMutation(cache, state.Mutation[string, struct{}]{
		Name:        "accommodations.cancelReservation",
		Invalidates: []state.Tag{TagStays, TagAccommodations},
		Gate:        a.stays,
		Do: func(ctx context.Context, id string) (struct{}, error) {
			if _, err := a.api.Delete(ctx, "/api/accommodations/reservations/"+id); err != nil {
				return struct{}{}, err
			}
			a.stays.RemoveOne(id)
			return struct{}{}, nil
		},
	})

	return a
}

const stayPageSize = 10

func searchQuery(p SearchParams) *state.Query {
	return state.NewQuery().
		SetPage(p.PageNumber, p.PageSize).
		SetOpt("search", p.Search).
		SetOpt("city", p.City).
		SetOpt("checkIn", p.CheckIn).
		SetOpt("checkOut", p.CheckOut).
		SetOptInt("guests", p.Guests)
}

// Search loads one page of the accommodation listing.
func (a *Accommodations) Search(ctx context.Context, p SearchParams) ([]Accommodation, error) {
	return a.search.Run(ctx, p)
}

// Details fetches and selects one accommodation.
func (a *Accommodations) Details(ctx context.Context, id string) (*Details, error) {
	d, err := a.details.Run(ctx, id)
	if err != nil {
		return nil, err
	}
	// A retention hit skips Fetch, so reconcile the selection here too.
	if cur := a.slice.Selected(); cur == nil || cur.ID != d.ID {
		a.slice.ClearSelected()
		if err := a.slice.SetSelected(d); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Stays loads one page of the member's reservations.
func (a *Accommodations) Stays(ctx context.Context, page int) ([]Stay, error) {
	return a.listStays.Run(ctx, page)
}

// Reserve books a stay.
func (a *Accommodations) Reserve(ctx context.Context, p ReserveParams) (*Stay, error) {
	return a.reserve.Run(ctx, p)
}

// CancelReservation cancels a stay reservation.
func (a *Accommodations) CancelReservation(ctx context.Context, id string) error {
	_, err := a.cancel.Run(ctx, id)
	return err
}

// Items returns the cached accommodation list.
func (a *Accommodations) Items() []Accommodation { return a.slice.List() }

// Selected returns the cached detail, if any.
func (a *Accommodations) Selected() *Details { return a.slice.Selected() }

// StayItems returns the cached reservations.
func (a *Accommodations) StayItems() []Stay { return a.stays.List() }

// Page returns the listing's pagination metadata.
func (a *Accommodations) Page() state.PageInfo { return a.slice.Page() }

// Loading reports whether an accommodation request is in flight.
func (a *Accommodations) Loading() bool { return a.slice.Loading() }

// Err returns the last failure message.
func (a *Accommodations) Err() string { return a.slice.Err() }

// Reset clears both caches (logout/teardown).
func (a *Accommodations) Reset() {
	a.slice.Reset()
	a.stays.Reset()
}
