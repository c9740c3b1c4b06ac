/*
Package payments caches the member's payment records and performs
pay-with-wallet, the portal's most failure-sensitive mutation.

PURPOSE:
  Paying debits the cached wallet balance optimistically before the server
  answers; a failed payment puts the exact debited amount back and surfaces
  the failure message. Success appends a synthesized wallet movement and
  invalidates TagWallet, whose hook re-fetches the authoritative balance.

SEE ALSO:
  - wallets package: Debit/Revert/AppendTransaction and the TagWallet hook
*/
package payments

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/portal-sync/client"
	"github.com/warp/portal-sync/state"
	"github.com/warp/portal-sync/wallets"
)

// TagPayments links payment mutations to the payment listings.
const TagPayments state.Tag = "Payments"

const listTTL = 300 * time.Second

// Payment is one payment record.
type Payment struct {
	ID          string          `json:"id" validate:"required"`
	Amount      decimal.Decimal `json:"amount"`
	Target      string          `json:"target"` // bill id, reservation id, ...
	TargetKind  string          `json:"targetType,omitempty"`
	Status      string          `json:"status"` // paid, failed, verifying
	TrackingRef string          `json:"trackingRef,omitempty"`
	PaidAt      string          `json:"paidAt,omitempty"`
}

func (p Payment) EntityID() string { return p.ID }

// PayParams is the pay-with-wallet payload. The unexported applied field
// records the optimistic debit actually written so the rollback is exact.
type PayParams struct {
	Amount     decimal.Decimal `json:"amount"`
	Target     string          `json:"target" validate:"required"`
	TargetKind string          `json:"targetType,omitempty"`

	applied decimal.Decimal
}

// ListParams pages the payment history (replace mode).
type ListParams struct {
	PageNumber int
	PageSize   int
	Status     string // optional filter, omitted when empty
}

// Payments owns the payment cache and the pay-with-wallet protocol.
type Payments struct {
	api    *client.Client
	log    *slog.Logger
	wallet *wallets.Wallets

	slice *state.Slice[Payment, Payment]

	list    *state.Endpoint[ListParams, []Payment]
	details *state.Endpoint[string, *Payment]
	pay     *state.Optimistic[*PayParams, *Payment]
	verify  *state.Mutation[string, *Payment]
}

// New wires the family; the wallets dependency carries the optimistic
// balance protocol.
func New(api *client.Client, cache *state.Cache, wallet *wallets.Wallets, log *slog.Logger) *Payments {
	p := &Payments{
		api:    api,
		log:    log.With("module", "payments"),
		wallet: wallet,
		slice:  state.NewSlice[Payment, Payment]("payments", log),
	}

	p.list = state.Register(cache, state.Endpoint[ListParams, []Payment]{
		Name:     "payments.list",
		TTL:      listTTL,
		Provides: []state.Tag{TagPayments},
		Gate:     p.slice,
		Key:      func(lp ListParams) string { return listQuery(lp).Encode() },
		Fetch: func(ctx context.Context, lp ListParams) ([]Payment, error) {
			env, err := p.api.Get(ctx, "/api/payments", listQuery(lp))
			if err != nil {
				return nil, err
			}
			items, info, err := client.DecodePage[Payment](env, lp.PageNumber, lp.PageSize)
			if err != nil {
				return nil, err
			}
			if err := state.ApplyPage(p.slice, state.Replace, lp.PageNumber, items, info); err != nil {
				return nil, err
			}
			return items, nil
		},
	})

	p.details = state.Register(cache, state.Endpoint[string, *Payment]{
		Name:     "payments.details",
		TTL:      listTTL,
		Provides: []state.Tag{TagPayments},
		Gate:     p.slice,
		Key:      func(id string) string { return id },
		Fetch: func(ctx context.Context, id string) (*Payment, error) {
			p.slice.ClearSelected()
			env, err := p.api.Get(ctx, "/api/payments/"+id, nil)
			if err != nil {
				return nil, err
			}
			var rec Payment
			if err := env.Decode(&rec); err != nil {
				return nil, err
			}
			if err := p.slice.SetSelected(&rec); err != nil {
				return nil, err
			}
			return &rec, nil
		},
	})

	p.pay = state.RegisterOptimistic(cache, state.Optimistic[*PayParams, *Payment]{
		Name:        "payments.payWithWallet",
		Invalidates: []state.Tag{TagPayments, wallets.TagWallet, wallets.TagTransactions},
		Gate:        p.slice,
		Estimate: func(pp *PayParams) {
			pp.applied = p.wallet.Debit(pp.Amount)
		},
		Do: func(ctx context.Context, pp *PayParams) (*Payment, error) {
			if err := state.Validate(pp); err != nil {
				return nil, err
			}
			env, err := p.api.Post(ctx, "/api/payments/wallet", pp)
			if err != nil {
				return nil, err
			}
			var rec Payment
			if err := env.Decode(&rec); err != nil {
				return nil, err
			}
			return &rec, nil
		},
		Commit: func(pp *PayParams, rec *Payment) {
			_ = p.slice.UpsertOne(*rec)
			p.wallet.AppendTransaction(wallets.Transaction{
				Kind:        wallets.KindPayment,
				Amount:      pp.Amount.Neg(),
				Reference:   rec.ID,
				Description: rec.TargetKind,
			})
		},
		Compensate: func(pp *PayParams) {
			p.wallet.Revert(pp.applied)
		},
	})

	p.verify = state.RegisterMutation(cache, state.Mutation[string, *Payment]{
		Name:        "payments.verify",
		Invalidates: []state.Tag{TagPayments},
		Gate:        p.slice,
		Do: func(ctx context.Context, id string) (*Payment, error) {
			env, err := p.api.Post(ctx, "/api/payments/"+id+"/verify", nil)
			if err != nil {
				return nil, err
			}
			var rec Payment
			if err := env.Decode(&rec); err != nil {
				return nil, err
			}
			_ = p.slice.UpsertOne(rec)
			return &rec, nil
		},
	})

	return p
}

func listQuery(p ListParams) *state.Query {
	return state.NewQuery().
		SetPage(p.PageNumber, p.PageSize).
		SetOpt("status", p.Status)
}

// List loads one page of the payment history.
func (p *Payments) List(ctx context.Context, lp ListParams) ([]Payment, error) {
	return p.list.Run(ctx, lp)
}

// Details fetches and selects one payment.
func (p *Payments) Details(ctx context.Context, id string) (*Payment, error) {
	d, err := p.details.Run(ctx, id)
	if err != nil {
		return nil, err
	}
	// A retention hit skips Fetch, so reconcile the selection here too.
	if cur := p.slice.Selected(); cur == nil || cur.ID != d.ID {
		p.slice.ClearSelected()
		if err := p.slice.SetSelected(d); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// PayWithWallet debits the wallet optimistically and settles against the
// upstream; on failure the exact debited amount is restored.
func (p *Payments) PayWithWallet(ctx context.Context, pp PayParams) (*Payment, error) {
	return p.pay.Run(ctx, &pp)
}

// Verify confirms a gateway payment's final status.
func (p *Payments) Verify(ctx context.Context, id string) (*Payment, error) {
	return p.verify.Run(ctx, id)
}

// Items returns the cached payment list.
func (p *Payments) Items() []Payment { return p.slice.List() }

// Selected returns the cached payment detail, if any.
func (p *Payments) Selected() *Payment { return p.slice.Selected() }

// Page returns the listing's pagination metadata.
func (p *Payments) Page() state.PageInfo { return p.slice.Page() }

// Loading reports whether a payment request is in flight.
func (p *Payments) Loading() bool { return p.slice.Loading() }

// Err returns the last payment failure message.
func (p *Payments) Err() string { return p.slice.Err() }

// Reset clears the payment cache (logout/teardown).
func (p *Payments) Reset() { p.slice.Reset() }
