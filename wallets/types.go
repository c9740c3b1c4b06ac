/*
Package wallets caches the member's wallet and its transaction history, and
owns the optimistic balance protocol used by every financial mutation.

PURPOSE:
  The wallet balance is the one value the portal mutates before the server
  confirms: deposits add, payments subtract, both clamped at zero, and every
  optimistic write is reverted by its exact inverse on failure. The
  authoritative re-fetch triggered through TagWallet reconciles whatever
  drift remains (server-side fees, rounding, concurrent mutations).

SEE ALSO:
  - wallets.go: endpoints, the deposit mutation, Debit/Credit/Revert
  - payments package: pay-with-wallet, built on the same protocol
*/
package wallets

import (
	"github.com/shopspring/decimal"
)

// Wallet is the member's balance record. Balance is authoritative only
// right after a fetch; in between it may carry optimistic drift.
type Wallet struct {
	ID          string          `json:"id" validate:"required"`
	UserID      string          `json:"userId"`
	Balance     decimal.Decimal `json:"balance"`
	Currency    string          `json:"currency"`
	LastUpdated string          `json:"lastUpdated,omitempty"`
}

func (w Wallet) EntityID() string { return w.ID }

// Transaction is one wallet movement. Synthesized records (optimistic
// commits) carry Synthesized=true until the authoritative history refetch
// replaces them.
type Transaction struct {
	ID          string          `json:"id" validate:"required"`
	Kind        string          `json:"type"` // deposit, payment, refund
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description,omitempty"`
	Reference   string          `json:"reference,omitempty"`
	CreatedAt   string          `json:"createdAt,omitempty"`
	Synthesized bool            `json:"-"`
}

func (t Transaction) EntityID() string { return t.ID }

// Transaction kinds.
const (
	KindDeposit = "deposit"
	KindPayment = "payment"
	KindRefund  = "refund"
)

// DepositParams is the deposit mutation's payload. The unexported applied
// field records the optimistic delta actually written, so the rollback is
// its exact inverse even when clamping changed the effective amount.
type DepositParams struct {
	Amount      decimal.Decimal `json:"amount"`
	GatewayRef  string          `json:"gatewayRef,omitempty"`
	Description string          `json:"description,omitempty"`

	applied decimal.Decimal
}

// HistoryParams pages through the transaction history (append mode).
type HistoryParams struct {
	PageNumber int
	PageSize   int
	Kind       string // optional filter, omitted when empty
}
