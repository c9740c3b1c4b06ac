/*
Package discounts caches the member's discount vouchers and redeems codes.

PURPOSE:
  A small financial family: the voucher listing (replace mode), a redeem
  mutation (a successful redemption may credit the wallet, so it
  invalidates the wallet tag too), and the active/expired selectors.
*/
package discounts

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/portal-sync/client"
	"github.com/warp/portal-sync/state"
	"github.com/warp/portal-sync/wallets"
)

// TagDiscounts links the redeem mutation to the voucher listing.
const TagDiscounts state.Tag = "Discounts"

const listTTL = 300 * time.Second

// Discount is one voucher.
type Discount struct {
	ID        string          `json:"id" validate:"required"`
	Code      string          `json:"code"`
	Title     string          `json:"title"`
	Percent   int             `json:"percent,omitempty"`
	Amount    decimal.Decimal `json:"amount,omitempty"`
	ExpiresAt string          `json:"expiresAt,omitempty"`
	Redeemed  bool            `json:"redeemed"`
}

func (d Discount) EntityID() string { return d.ID }

// ListParams pages the voucher listing.
type ListParams struct {
	PageNumber int
	PageSize   int
	OnlyActive *bool // optional filter, omitted when nil
}

// RedeemParams redeems a voucher code.
type RedeemParams struct {
	Code string `json:"code" validate:"required"`
}

// Discounts owns the voucher cache.
type Discounts struct {
	api *client.Client
	log *slog.Logger

	slice *state.Slice[Discount, Discount]

	list   *state.Endpoint[ListParams, []Discount]
	redeem *state.Mutation[RedeemParams, *Discount]

	active *state.Selector[[]Discount, []Discount]
}

// Expired reports whether the voucher's expiry date has passed. Dates are
// ISO yyyy-mm-dd, so the comparison is lexicographic.
func (d Discount) Expired(today string) bool {
	return d.ExpiresAt != "" && d.ExpiresAt < today
}

// New wires the family into the shared cache and client adapter.
func New(api *client.Client, cache *state.Cache, log *slog.Logger) *Discounts {
	d := &Discounts{
		api:   api,
		log:   log.With("module", "discounts"),
		slice: state.NewSlice[Discount, Discount]("discounts", log),
		active: state.NewSelector(func(ds []Discount) []Discount {
			return state.Filter(ds, func(v Discount) bool { return !v.Redeemed })
		}),
	}

	d.list = state.Register(cache, state.Endpoint[ListParams, []Discount]{
		Name:     "discounts.list",
		TTL:      listTTL,
		Provides: []state.Tag{TagDiscounts},
		Gate:     d.slice,
		Key:      func(p ListParams) string { return listQuery(p).Encode() },
		Fetch: func(ctx context.Context, p ListParams) ([]Discount, error) {
			env, err := d.api.Get(ctx, "/api/discounts", listQuery(p))
			if err != nil {
				return nil, err
			}
			items, info, err := client.DecodePage[Discount](env, p.PageNumber, p.PageSize)
			if err != nil {
				return nil, err
			}
			if err := state.ApplyPage(d.slice, state.Replace, p.PageNumber, items, info); err != nil {
				return nil, err
			}
			return items, nil
		},
	})

	d.redeem = state.RegisterMutation(cache, state.Mutation[RedeemParams, *Discount]{
		Name:        "discounts.redeem",
		Invalidates: []state.Tag{TagDiscounts, wallets.TagWallet},
		Gate:        d.slice,
		Do: func(ctx context.Context, p RedeemParams) (*Discount, error) {
			if err := state.Validate(p); err != nil {
				return nil, err
			}
			env, err := d.api.Post(ctx, "/api/discounts/redeem", p)
			if err != nil {
				return nil, err
			}
			var v Discount
			if err := env.Decode(&v); err != nil {
				return nil, err
			}
			_ = d.slice.UpsertOne(v)
			return &v, nil
		},
	})

	return d
}

func listQuery(p ListParams) *state.Query {
	return state.NewQuery().
		SetPage(p.PageNumber, p.PageSize).
		SetOptBool("active", p.OnlyActive)
}

// List loads one page of vouchers.
func (d *Discounts) List(ctx context.Context, p ListParams) ([]Discount, error) {
	return d.list.Run(ctx, p)
}

// Redeem redeems a voucher code.
func (d *Discounts) Redeem(ctx context.Context, p RedeemParams) (*Discount, error) {
	return d.redeem.Run(ctx, p)
}

// Items returns the cached vouchers.
func (d *Discounts) Items() []Discount { return d.slice.List() }

// Active returns the unredeemed vouchers (memoized).
func (d *Discounts) Active() []Discount {
	return d.active.At(d.slice.Version(), d.slice.List())
}

// ExpiredItems returns the vouchers whose expiry date has passed. Not
// memoized: the result depends on the clock, not just the slice version.
func (d *Discounts) ExpiredItems() []Discount {
	today := time.Now().UTC().Format("2006-01-02")
	return state.Filter(d.slice.List(), func(v Discount) bool { return v.Expired(today) })
}

// Page returns the listing's pagination metadata.
func (d *Discounts) Page() state.PageInfo { return d.slice.Page() }

// Loading reports whether a voucher request is in flight.
func (d *Discounts) Loading() bool { return d.slice.Loading() }

// Err returns the last failure message.
func (d *Discounts) Err() string { return d.slice.Err() }

// Reset clears the voucher cache (logout/teardown).
func (d *Discounts) Reset() { d.slice.Reset() }
