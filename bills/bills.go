/*
Package bills caches the member's utility/service bills and pays them from
the wallet.

PURPOSE:
  Bills are financial and optimistic-update heavy: paying a bill debits the
  cached wallet balance before the server confirms, restores it exactly on
  failure, and invalidates both TagBills and the wallet tags on success so
  every mounted view reconciles. Selectors provide the due/paid breakdowns
  and date-range filters the bills dashboard renders.
*/
package bills

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/portal-sync/client"
	"github.com/warp/portal-sync/state"
	"github.com/warp/portal-sync/wallets"
)

// TagBills links bill mutations to the bill listings.
const TagBills state.Tag = "Bills"

const listTTL = 300 * time.Second

// Bill is one payable record.
type Bill struct {
	ID        string          `json:"id" validate:"required"`
	Kind      string          `json:"type"` // electricity, water, gas, phone
	Amount    decimal.Decimal `json:"amount"`
	Status    string          `json:"status"` // due, paid, overdue
	IssuedAt  string          `json:"issuedAt,omitempty"`
	DueDate   string          `json:"dueDate,omitempty"`
	PaymentID string          `json:"paymentId,omitempty"`
}

func (b Bill) EntityID() string { return b.ID }

// Bill statuses as the upstream reports them.
const (
	StatusDue     = "due"
	StatusPaid    = "paid"
	StatusOverdue = "overdue"
)

// ListParams pages the bill listing (replace mode).
type ListParams struct {
	PageNumber int
	PageSize   int
	Status     string // optional
	Kind       string // optional
}

// PayParams pays one bill from the wallet.
type PayParams struct {
	BillID string          `json:"billId" validate:"required"`
	Amount decimal.Decimal `json:"amount"`

	applied decimal.Decimal
}

// Bills owns the bill cache.
type Bills struct {
	api    *client.Client
	log    *slog.Logger
	wallet *wallets.Wallets

	slice *state.Slice[Bill, Bill]

	list    *state.Endpoint[ListParams, []Bill]
	details *state.Endpoint[string, *Bill]
	pay     *state.Optimistic[*PayParams, *Bill]

	totalDue *state.Selector[[]Bill, decimal.Decimal]
	byStatus *state.Selector[[]Bill, map[string]int]
}

// New wires the family into the shared cache and client adapter.
func New(api *client.Client, cache *state.Cache, wallet *wallets.Wallets, log *slog.Logger) *Bills {
	b := &Bills{
		api:    api,
		log:    log.With("module", "bills"),
		wallet: wallet,
		slice:  state.NewSlice[Bill, Bill]("bills", log),
		totalDue: state.NewSelector(func(bs []Bill) decimal.Decimal {
			total := decimal.Zero
			for _, bill := range bs {
				if bill.Status != StatusPaid {
					total = total.Add(bill.Amount)
				}
			}
			return total
		}),
		byStatus: state.NewSelector(func(bs []Bill) map[string]int {
			return state.Breakdown(bs, func(bill Bill) string { return bill.Status })
		}),
	}

	b.list = state.Register(cache, state.Endpoint[ListParams, []Bill]{
		Name:     "bills.list",
		TTL:      listTTL,
		Provides: []state.Tag{TagBills},
		Gate:     b.slice,
		Key:      func(p ListParams) string { return listQuery(p).Encode() },
		Fetch: func(ctx context.Context, p ListParams) ([]Bill, error) {
			env, err := b.api.Get(ctx, "/api/bills", listQuery(p))
			if err != nil {
				return nil, err
			}
			items, info, err := client.DecodePage[Bill](env, p.PageNumber, p.PageSize)
			if err != nil {
				return nil, err
			}
			if err := state.ApplyPage(b.slice, state.Replace, p.PageNumber, items, info); err != nil {
				return nil, err
			}
			return items, nil
		},
	})

	b.details = state.Register(cache, state.Endpoint[string, *Bill]{
		Name:     "bills.details",
		TTL:      listTTL,
		Provides: []state.Tag{TagBills},
		Gate:     b.slice,
		Key:      func(id string) string { return id },
		Fetch: func(ctx context.Context, id string) (*Bill, error) {
			b.slice.ClearSelected()
			env, err := b.api.Get(ctx, "/api/bills/"+id, nil)
			if err != nil {
				return nil, err
			}
			var bill Bill
			if err := env.Decode(&bill); err != nil {
				return nil, err
			}
			if err := b.slice.SetSelected(&bill); err != nil {
				return nil, err
			}
			return &bill, nil
		},
	})

	b.pay = state.RegisterOptimistic(cache, state.Optimistic[*PayParams, *Bill]{
		Name:        "bills.pay",
		Invalidates: []state.Tag{TagBills, wallets.TagWallet, wallets.TagTransactions},
		Gate:        b.slice,
		Estimate: func(p *PayParams) {
			p.applied = b.wallet.Debit(p.Amount)
		},
		Do: func(ctx context.Context, p *PayParams) (*Bill, error) {
			if err := state.Validate(p); err != nil {
				return nil, err
			}
			env, err := b.api.Post(ctx, "/api/bills/"+p.BillID+"/pay", p)
			if err != nil {
				return nil, err
			}
			var bill Bill
			if err := env.Decode(&bill); err != nil {
				return nil, err
			}
			return &bill, nil
		},
		Commit: func(p *PayParams, bill *Bill) {
			_ = b.slice.UpsertOne(*bill)
			b.wallet.AppendTransaction(wallets.Transaction{
				Kind:      wallets.KindPayment,
				Amount:    p.Amount.Neg(),
				Reference: bill.ID,
			})
		},
		Compensate: func(p *PayParams) {
			b.wallet.Revert(p.applied)
		},
	})

	return b
}

func listQuery(p ListParams) *state.Query {
	return state.NewQuery().
		SetPage(p.PageNumber, p.PageSize).
		SetOpt("status", p.Status).
		SetOpt("type", p.Kind)
}

// List loads one page of bills.
func (b *Bills) List(ctx context.Context, p ListParams) ([]Bill, error) {
	return b.list.Run(ctx, p)
}

// Details fetches and selects one bill.
func (b *Bills) Details(ctx context.Context, id string) (*Bill, error) {
	d, err := b.details.Run(ctx, id)
	if err != nil {
		return nil, err
	}
	// A retention hit skips Fetch, so reconcile the selection here too.
	if cur := b.slice.Selected(); cur == nil || cur.ID != d.ID {
		b.slice.ClearSelected()
		if err := b.slice.SetSelected(d); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Pay settles one bill from the wallet, optimistically.
func (b *Bills) Pay(ctx context.Context, p PayParams) (*Bill, error) {
	return b.pay.Run(ctx, &p)
}

// Items returns the cached bill list.
func (b *Bills) Items() []Bill { return b.slice.List() }

// Selected returns the cached bill detail, if any.
func (b *Bills) Selected() *Bill { return b.slice.Selected() }

// Page returns the listing's pagination metadata.
func (b *Bills) Page() state.PageInfo { return b.slice.Page() }

// Loading reports whether a bill request is in flight.
func (b *Bills) Loading() bool { return b.slice.Loading() }

// Err returns the last bill failure message.
func (b *Bills) Err() string { return b.slice.Err() }

// TotalDue totals the unpaid bill amounts (memoized by cache version).
func (b *Bills) TotalDue() decimal.Decimal {
	return b.totalDue.At(b.slice.Version(), b.slice.List())
}

// StatusBreakdown returns a status -> count map over the cached bills.
func (b *Bills) StatusBreakdown() map[string]int {
	return b.byStatus.At(b.slice.Version(), b.slice.List())
}

// ByDateRange filters cached bills whose due date falls within [from, to]
// (dates compare lexicographically in the upstream's ISO form).
func (b *Bills) ByDateRange(from, to string) []Bill {
	return state.Filter(b.slice.List(), func(bill Bill) bool {
		return bill.DueDate >= from && bill.DueDate <= to
	})
}

// Reset clears the bill cache (logout/teardown).
func (b *Bills) Reset() { b.slice.Reset() }
