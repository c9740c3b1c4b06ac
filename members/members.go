/*
Package members caches the member profile and dependents.

PURPOSE:
  The profile is the most stable record in the portal, retained for 600
  seconds. Updating it invalidates TagMember, which refetches the profile
  for every mounted consumer.
*/
package members

import (
	"context"
	"log/slog"
	"time"

	"github.com/warp/portal-sync/client"
	"github.com/warp/portal-sync/state"
)

// Invalidation tags owned by this family.
const (
	TagMember     state.Tag = "Member"
	TagDependents state.Tag = "Dependents"
)

const (
	profileTTL    = 600 * time.Second
	dependentsTTL = 300 * time.Second
)

// Member is the profile record.
type Member struct {
	ID           string `json:"id" validate:"required"`
	NationalID   string `json:"nationalId,omitempty"`
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	Email        string `json:"email,omitempty"`
	Phone        string `json:"phone,omitempty"`
	MemberNumber string `json:"memberNumber,omitempty"`
	JoinedAt     string `json:"joinedAt,omitempty"`
}

func (m Member) EntityID() string { return m.ID }

// Dependent is a covered family member.
type Dependent struct {
	ID       string `json:"id" validate:"required"`
	Name     string `json:"name"`
	Relation string `json:"relation"` // spouse, child, parent
	BirthDate string `json:"birthDate,omitempty"`
}

func (d Dependent) EntityID() string { return d.ID }

// UpdateParams is the edit-profile payload.
type UpdateParams struct {
	FirstName string `json:"firstName" validate:"required"`
	LastName  string `json:"lastName" validate:"required"`
	Email     string `json:"email,omitempty" validate:"omitempty,email"`
	Phone     string `json:"phone,omitempty"`
}

// Members owns the profile and dependents caches.
type Members struct {
	api *client.Client
	log *slog.Logger

	slice *state.Slice[Dependent, Member]

	profile    *state.Endpoint[struct{}, *Member]
	dependents *state.Endpoint[struct{}, []Dependent]
	update     *state.Mutation[UpdateParams, *Member]
}

// New wires the family into the shared cache and client adapter.
func New(api *client.Client, cache *state.Cache, log *slog.Logger) *Members {
	m := &Members{
		api:   api,
		log:   log.With("module", "members"),
		slice: state.NewSlice[Dependent, Member]("members", log),
	}

	m.profile = state.Register(cache, state.Endpoint[struct{}, *Member]{
		Name:     "members.profile",
		TTL:      profileTTL,
		Provides: []state.Tag{TagMember},
		Gate:     m.slice,
		Fetch: func(ctx context.Context, _ struct{}) (*Member, error) {
			env, err := m.api.Get(ctx, "/api/members/me", nil)
			if err != nil {
				return nil, err
			}
			var rec Member
			if err := env.Decode(&rec); err != nil {
				return nil, err
			}
			if err := m.slice.SetSelected(&rec); err != nil {
				return nil, err
			}
			return &rec, nil
		},
	})

	m.dependents = state.Register(cache, state.Endpoint[struct{}, []Dependent]{
		Name:     "members.dependents",
		TTL:      dependentsTTL,
		Provides: []state.Tag{TagDependents},
		Gate:     m.slice,
		Fetch: func(ctx context.Context, _ struct{}) ([]Dependent, error) {
			env, err := m.api.Get(ctx, "/api/members/me/dependents", nil)
			if err != nil {
				return nil, err
			}
			var items []Dependent
			if err := env.Decode(&items); err != nil {
				return nil, err
			}
			if err := m.slice.SetList(items); err != nil {
				return nil, err
			}
			return items, nil
		},
	})

	m.update = state.RegisterMutation(cache, state.Mutation[UpdateParams, *Member]{
		Name:        "members.update",
		Invalidates: []state.Tag{TagMember},
		Gate:        m.slice,
		Do: func(ctx context.Context, p UpdateParams) (*Member, error) {
			if err := state.Validate(p); err != nil {
				return nil, err
			}
			env, err := m.api.Put(ctx, "/api/members/me", p)
			if err != nil {
				return nil, err
			}
			var rec Member
			if err := env.Decode(&rec); err != nil {
				return nil, err
			}
			_ = m.slice.SetSelected(&rec)
			return &rec, nil
		},
	})

	return m
}

// Profile returns the member profile, retained for 600 seconds.
func (m *Members) Profile(ctx context.Context) (*Member, error) {
	return m.profile.Run(ctx, struct{}{})
}

// Dependents returns the covered family members.
func (m *Members) Dependents(ctx context.Context) ([]Dependent, error) {
	return m.dependents.Run(ctx, struct{}{})
}

// Update edits the profile; mounted profile views refetch via TagMember.
func (m *Members) Update(ctx context.Context, p UpdateParams) (*Member, error) {
	return m.update.Run(ctx, p)
}

// Current returns the cached profile, if fetched.
func (m *Members) Current() *Member { return m.slice.Selected() }

// DependentItems returns the cached dependents.
func (m *Members) DependentItems() []Dependent { return m.slice.List() }

// Loading reports whether a member request is in flight.
func (m *Members) Loading() bool { return m.slice.Loading() }

// Err returns the last failure message.
func (m *Members) Err() string { return m.slice.Err() }

// Reset clears the member cache (logout/teardown).
func (m *Members) Reset() { m.slice.Reset() }
