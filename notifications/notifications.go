/*
Package notifications caches the member's notifications and the unread
counter.

PURPOSE:
  The unread count is the portal's most volatile value, so it is the one
  endpoint retained for only 60 seconds; within that window repeated reads
  are served from retention without a network call. Marking notifications
  read invalidates both tags, which purges the counter and refetches it.
*/
package notifications

import (
	"context"
	"log/slog"
	"time"

	"github.com/warp/portal-sync/client"
	"github.com/warp/portal-sync/state"
)

// Invalidation tags owned by this family.
const (
	TagNotifications state.Tag = "Notifications"
	TagUnreadCount   state.Tag = "UnreadCount"
)

const (
	listTTL   = 300 * time.Second
	unreadTTL = 60 * time.Second
)

// Notification is one inbox entry.
type Notification struct {
	ID        string `json:"id" validate:"required"`
	Title     string `json:"title"`
	Body      string `json:"body,omitempty"`
	Kind      string `json:"type,omitempty"`
	Read      bool   `json:"read"`
	CreatedAt string `json:"createdAt,omitempty"`
}

func (n Notification) EntityID() string { return n.ID }

// ListParams pages the inbox (replace mode).
type ListParams struct {
	PageNumber int
	PageSize   int
	OnlyUnread *bool // optional, omitted when nil
}

// Notifications owns the inbox cache and unread counter.
type Notifications struct {
	api *client.Client
	log *slog.Logger

	slice *state.Slice[Notification, Notification]

	list    *state.Endpoint[ListParams, []Notification]
	unread  *state.Endpoint[struct{}, int]
	mark    *state.Mutation[string, struct{}]
	markAll *state.Mutation[struct{}, struct{}]
}

// New wires the family into the shared cache and client adapter.
func New(api *client.Client, cache *state.Cache, log *slog.Logger) *Notifications {
	n := &Notifications{
		api:   api,
		log:   log.With("module", "notifications"),
		slice: state.NewSlice[Notification, Notification]("notifications", log),
	}

	n.list = state.Register(cache, state.Endpoint[ListParams, []Notification]{
		Name:     "notifications.list",
		TTL:      listTTL,
		Provides: []state.Tag{TagNotifications},
		Gate:     n.slice,
		Key:      func(p ListParams) string { return listQuery(p).Encode() },
		Fetch: func(ctx context.Context, p ListParams) ([]Notification, error) {
			env, err := n.api.Get(ctx, "/api/notifications", listQuery(p))
			if err != nil {
				return nil, err
			}
			items, info, err := client.DecodePage[Notification](env, p.PageNumber, p.PageSize)
			if err != nil {
				return nil, err
			}
			if err := state.ApplyPage(n.slice, state.Replace, p.PageNumber, items, info); err != nil {
				return nil, err
			}
			return items, nil
		},
	})

	n.unread = state.Register(cache, state.Endpoint[struct{}, int]{
		Name:     "notifications.unreadCount",
		TTL:      unreadTTL,
		Provides: []state.Tag{TagUnreadCount},
		Gate:     n.slice,
		Fetch: func(ctx context.Context, _ struct{}) (int, error) {
			env, err := n.api.Get(ctx, "/api/notifications/unread-count", nil)
			if err != nil {
				return 0, err
			}
			var payload struct {
				Count int `json:"count"`
			}
			if err := env.Decode(&payload); err != nil {
				return 0, err
			}
			return payload.Count, nil
		},
	})

	n.mark = state.RegisterMutation(cache, state.Mutation[string, struct{}]{
		Name:        "notifications.markRead",
		Invalidates: []state.Tag{TagNotifications, TagUnreadCount},
		Gate:        n.slice,
		Do: func(ctx context.Context, id string) (struct{}, error) {
			if _, err := n.api.Post(ctx, "/api/notifications/"+id+"/read", nil); err != nil {
				return struct{}{}, err
			}
			if cur, ok := n.slice.Get(id); ok {
				cur.Read = true
				_ = n.slice.UpsertOne(cur)
			}
			return struct{}{}, nil
		},
	})

	n.markAll = state.RegisterMutation(cache, state.Mutation[struct{}, struct{}]{
		Name:        "notifications.markAllRead",
		Invalidates: []state.Tag{TagNotifications, TagUnreadCount},
		Gate:        n.slice,
		Do: func(ctx context.Context, _ struct{}) (struct{}, error) {
			if _, err := n.api.Post(ctx, "/api/notifications/read-all", nil); err != nil {
				return struct{}{}, err
			}
			return struct{}{}, nil
		},
	})

	return n
}

func listQuery(p ListParams) *state.Query {
	return state.NewQuery().
		SetPage(p.PageNumber, p.PageSize).
		SetOptBool("unread", p.OnlyUnread)
}

// List loads one page of the inbox.
func (n *Notifications) List(ctx context.Context, p ListParams) ([]Notification, error) {
	return n.list.Run(ctx, p)
}

// UnreadCount returns the unread counter, retained for 60 seconds.
func (n *Notifications) UnreadCount(ctx context.Context) (int, error) {
	return n.unread.Run(ctx, struct{}{})
}

// MarkRead marks one notification read.
func (n *Notifications) MarkRead(ctx context.Context, id string) error {
	_, err := n.mark.Run(ctx, id)
	return err
}

// MarkAllRead marks the whole inbox read.
func (n *Notifications) MarkAllRead(ctx context.Context) error {
	_, err := n.markAll.Run(ctx, struct{}{})
	return err
}

// Items returns the cached inbox.
func (n *Notifications) Items() []Notification { return n.slice.List() }

// Page returns the inbox pagination metadata.
func (n *Notifications) Page() state.PageInfo { return n.slice.Page() }

// Loading reports whether an inbox request is in flight.
func (n *Notifications) Loading() bool { return n.slice.Loading() }

// Err returns the last failure message.
func (n *Notifications) Err() string { return n.slice.Err() }

// Reset clears the inbox cache (logout/teardown).
func (n *Notifications) Reset() { n.slice.Reset() }
