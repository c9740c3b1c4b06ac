package wallets

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/portal-sync/client"
	"github.com/warp/portal-sync/state"
)

// Invalidation tags owned by this family. TagWallet is also invalidated by
// the payments, bills and discounts families; that is what triggers the
// authoritative balance re-fetch after their optimistic mutations settle.
const (
	TagWallet       state.Tag = "Wallet"
	TagTransactions state.Tag = "WalletTransactions"
)

const (
	walletTTL  = 300 * time.Second
	historyTTL = 300 * time.Second
)

// Wallets owns the wallet cache and its transaction history.
type Wallets struct {
	api *client.Client
	log *slog.Logger

	slice *state.Slice[Transaction, Wallet]

	fetch   *state.Endpoint[struct{}, *Wallet]
	history *state.Endpoint[HistoryParams, []Transaction]
	deposit *state.Optimistic[*DepositParams, *Transaction]
}

// New wires the family into the shared cache and client adapter, and
// registers the refetch hook that keeps the balance authoritative after
// any TagWallet invalidation.
func New(api *client.Client, cache *state.Cache, log *slog.Logger) *Wallets {
	w := &Wallets{
		api:   api,
		log:   log.With("module", "wallets"),
		slice: state.NewSlice[Transaction, Wallet]("wallets", log),
	}

	w.fetch = state.Register(cache, state.Endpoint[struct{}, *Wallet]{
		Name:     "wallets.get",
		TTL:      walletTTL,
		Provides: []state.Tag{TagWallet},
		Gate:     w.slice,
		Fetch: func(ctx context.Context, _ struct{}) (*Wallet, error) {
			env, err := w.api.Get(ctx, "/api/wallet", nil)
			if err != nil {
				return nil, err
			}
			var wal Wallet
			if err := env.Decode(&wal); err != nil {
				return nil, err
			}
			if wal.Balance.IsNegative() {
				wal.Balance = decimal.Zero
			}
			if err := w.slice.SetSelected(&wal); err != nil {
				return nil, err
			}
			return &wal, nil
		},
	})

	w.history = state.Register(cache, state.Endpoint[HistoryParams, []Transaction]{
		Name:     "wallets.history",
		TTL:      historyTTL,
		Provides: []state.Tag{TagTransactions},
		Gate:     w.slice,
		Key:      func(p HistoryParams) string { return historyQuery(p).Encode() },
		Fetch: func(ctx context.Context, p HistoryParams) ([]Transaction, error) {
			env, err := w.api.Get(ctx, "/api/wallet/transactions", historyQuery(p))
			if err != nil {
				return nil, err
			}
			items, info, err := client.DecodePage[Transaction](env, p.PageNumber, p.PageSize)
			if err != nil {
				return nil, err
			}
			// Infinite-scroll history: append mode.
			if err := state.ApplyPage(w.slice, state.Append, p.PageNumber, items, info); err != nil {
				return nil, err
			}
			return items, nil
		},
	})

	w.deposit = state.RegisterOptimistic(cache, state.Optimistic[*DepositParams, *Transaction]{
		Name:        "wallets.deposit",
		Invalidates: []state.Tag{TagWallet, TagTransactions},
		Gate:        w.slice,
		Estimate: func(p *DepositParams) {
			p.applied = w.Credit(p.Amount)
		},
		Do: func(ctx context.Context, p *DepositParams) (*Transaction, error) {
			env, err := w.api.Post(ctx, "/api/wallet/deposit", p)
			if err != nil {
				return nil, err
			}
			var tx Transaction
			if err := env.Decode(&tx); err != nil {
				return nil, err
			}
			return &tx, nil
		},
		Commit: func(p *DepositParams, tx *Transaction) {
			w.AppendTransaction(*tx)
		},
		Compensate: func(p *DepositParams) {
			w.Revert(p.applied)
		},
	})

	// Any TagWallet invalidation (including by other families) schedules
	// the authoritative re-fetch that corrects optimistic drift.
	cache.OnInvalidate(TagWallet, func() {
		if _, err := w.fetch.Refresh(context.Background(), struct{}{}); err != nil {
			w.log.Warn("wallet reconciliation fetch failed", "error", err)
		}
	})

	return w
}

func historyQuery(p HistoryParams) *state.Query {
	return state.NewQuery().
		SetPage(p.PageNumber, p.PageSize).
		SetOpt("type", p.Kind)
}

// =============================================================================
// OPERATIONS
// =============================================================================

// Fetch loads the authoritative wallet record.
func (w *Wallets) Fetch(ctx context.Context) (*Wallet, error) {
	return w.fetch.Run(ctx, struct{}{})
}

// History loads one page of the transaction history.
func (w *Wallets) History(ctx context.Context, p HistoryParams) ([]Transaction, error) {
	return w.history.Run(ctx, p)
}

// Deposit adds funds: balance is credited optimistically, reverted exactly
// on failure, and reconciled by the authoritative re-fetch either way.
func (w *Wallets) Deposit(ctx context.Context, p DepositParams) (*Transaction, error) {
	return w.deposit.Run(ctx, &p)
}

// =============================================================================
// OPTIMISTIC BALANCE PROTOCOL - shared with payments/bills/discounts
// =============================================================================

// Credit applies a positive optimistic adjustment and returns the delta
// actually written (zero when no wallet is cached yet).
func (w *Wallets) Credit(amount decimal.Decimal) decimal.Decimal {
	return w.adjust(amount)
}

// Debit applies a negative optimistic adjustment, clamped at zero, and
// returns the (negative) delta actually written. The caller keeps that
// value and hands it back to Revert on failure, so the rollback is exact
// even when clamping truncated the estimate.
func (w *Wallets) Debit(amount decimal.Decimal) decimal.Decimal {
	return w.adjust(amount.Neg())
}

// Revert undoes a previously applied optimistic delta.
func (w *Wallets) Revert(applied decimal.Decimal) {
	if applied.IsZero() {
		return
	}
	w.adjustUnclamped(applied.Neg())
}

func (w *Wallets) adjust(delta decimal.Decimal) decimal.Decimal {
	cur := w.slice.Selected()
	if cur == nil {
		return decimal.Zero
	}
	next := cur.Balance.Add(delta)
	if next.IsNegative() {
		delta = cur.Balance.Neg() // clamp: only what was actually there
		next = decimal.Zero
	}
	cur.Balance = next
	_ = w.slice.SetSelected(cur)
	return delta
}

func (w *Wallets) adjustUnclamped(delta decimal.Decimal) {
	cur := w.slice.Selected()
	if cur == nil {
		return
	}
	cur.Balance = cur.Balance.Add(delta)
	_ = w.slice.SetSelected(cur)
}

// AppendTransaction prepends a confirmed or synthesized movement to the
// cached history. Synthesized records get a local uuid; the next
// authoritative history fetch replaces them.
func (w *Wallets) AppendTransaction(tx Transaction) {
	if tx.ID == "" {
		tx.ID = uuid.NewString()
		tx.Synthesized = true
	}
	_ = w.slice.UpsertOne(tx)
}

// =============================================================================
// READS
// =============================================================================

// Wallet returns the cached wallet record, if fetched.
func (w *Wallets) Wallet() *Wallet { return w.slice.Selected() }

// Balance returns the cached balance (zero before the first fetch).
func (w *Wallets) Balance() decimal.Decimal {
	if wal := w.slice.Selected(); wal != nil {
		return wal.Balance
	}
	return decimal.Zero
}

// Transactions returns the cached history.
func (w *Wallets) Transactions() []Transaction { return w.slice.List() }

// Page returns the history's pagination metadata.
func (w *Wallets) Page() state.PageInfo { return w.slice.Page() }

// Loading reports whether a wallet request is in flight.
func (w *Wallets) Loading() bool { return w.slice.Loading() }

// Err returns the last wallet failure message.
func (w *Wallets) Err() string { return w.slice.Err() }

// Version exposes the cache version for selectors.
func (w *Wallets) Version() uint64 { return w.slice.Version() }

// Reset clears the wallet cache (logout/teardown).
func (w *Wallets) Reset() { w.slice.Reset() }
