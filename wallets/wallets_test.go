package wallets_test

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/portal-sync/client"
	"github.com/warp/portal-sync/state"
	"github.com/warp/portal-sync/wallets"
)

// =============================================================================
// TEST SETUP - a tiny stateful wallet upstream
// =============================================================================

type walletServer struct {
	mu          sync.Mutex
	balance     decimal.Decimal
	failDeposit bool
	walletGets  int
}

func (ws *walletServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/wallet", func(w http.ResponseWriter, _ *http.Request) {
		ws.mu.Lock()
		defer ws.mu.Unlock()
		ws.walletGets++
		fmt.Fprintf(w, `{"isSuccess":true,"data":{"id":"w-1","userId":"m-1","balance":"%s","currency":"IRR"}}`, ws.balance)
	})
	mux.HandleFunc("POST /api/wallet/deposit", func(w http.ResponseWriter, r *http.Request) {
		ws.mu.Lock()
		defer ws.mu.Unlock()
		if ws.failDeposit {
			w.WriteHeader(http.StatusUnprocessableEntity)
			fmt.Fprint(w, `{"isSuccess":false,"message":"درگاه پرداخت در دسترس نیست"}`)
			return
		}
		var p struct {
			Amount decimal.Decimal `json:"amount"`
		}
		_ = json.NewDecoder(r.Body).Decode(&p)
		ws.balance = ws.balance.Add(p.Amount)
		fmt.Fprintf(w, `{"isSuccess":true,"data":{"id":"tx-9","type":"deposit","amount":"%s"}}`, p.Amount)
	})
	mux.HandleFunc("GET /api/wallet/transactions", func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("pageNumber")
		if page == "1" {
			fmt.Fprint(w, `{"isSuccess":true,"data":{"items":[{"id":"tx-1","type":"deposit","amount":"100"},{"id":"tx-2","type":"payment","amount":"-40"}],"pageNumber":1,"pageSize":2,"totalCount":3}}`)
			return
		}
		fmt.Fprint(w, `{"isSuccess":true,"data":{"items":[{"id":"tx-2","type":"payment","amount":"-40"},{"id":"tx-3","type":"refund","amount":"40"}],"pageNumber":2,"pageSize":2,"totalCount":3}}`)
	})
	return mux
}

func newWallets(t *testing.T, ws *walletServer) *wallets.Wallets {
	t.Helper()
	srv := httptest.NewServer(ws.handler())
	t.Cleanup(srv.Close)

	api, err := client.New(srv.URL)
	require.NoError(t, err)
	return wallets.New(api, state.NewCache(nil), slog.Default())
}

func amount(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}

// =============================================================================
// FETCH
// =============================================================================

func TestFetchClampsNegativeBalance(t *testing.T) {
	ws := &walletServer{balance: amount("-250")}
	w := newWallets(t, ws)

	wal, err := w.Fetch(context.Background())
	require.NoError(t, err)
	assert.True(t, wal.Balance.IsZero())
	assert.True(t, w.Balance().IsZero())
}

// =============================================================================
// OPTIMISTIC DEPOSIT
// =============================================================================

func TestDepositReconcilesWithAuthoritativeBalance(t *testing.T) {
	ws := &walletServer{balance: amount("1000")}
	w := newWallets(t, ws)

	_, err := w.Fetch(context.Background())
	require.NoError(t, err)

	tx, err := w.Deposit(context.Background(), wallets.DepositParams{Amount: amount("500")})
	require.NoError(t, err)
	assert.Equal(t, "tx-9", tx.ID)
	assert.False(t, tx.Synthesized)

	// The invalidation hook re-fetched the wallet, so the cached balance is
	// the server's, not the optimistic estimate.
	assert.True(t, w.Balance().Equal(amount("1500")), "got %s", w.Balance())
	assert.GreaterOrEqual(t, ws.walletGets, 2)

	// The confirmed movement is cached for the history view.
	ids := make([]string, 0)
	for _, m := range w.Transactions() {
		ids = append(ids, m.ID)
	}
	assert.Contains(t, ids, "tx-9")
}

func TestFailedDepositRollsBackExactly(t *testing.T) {
	ws := &walletServer{balance: amount("1000"), failDeposit: true}
	w := newWallets(t, ws)

	_, err := w.Fetch(context.Background())
	require.NoError(t, err)
	before := w.Balance()

	_, err = w.Deposit(context.Background(), wallets.DepositParams{Amount: amount("500")})
	require.Error(t, err)

	// GIVEN a rejected deposit, the optimistic credit is reverted exactly
	// and the failure message surfaces on the slice.
	assert.True(t, w.Balance().Equal(before), "got %s", w.Balance())
	assert.Equal(t, "درگاه پرداخت در دسترس نیست", w.Err())
	assert.False(t, w.Loading())
}

// =============================================================================
// CLAMPED DEBIT PROTOCOL
// =============================================================================

func TestDebitClampsAtZeroAndRevertsExactly(t *testing.T) {
	ws := &walletServer{balance: amount("100")}
	w := newWallets(t, ws)
	_, err := w.Fetch(context.Background())
	require.NoError(t, err)

	// WHEN the optimistic debit exceeds the balance
	applied := w.Debit(amount("150"))

	// THEN only what was actually there was taken
	assert.True(t, w.Balance().IsZero())
	assert.True(t, applied.Equal(amount("-100")), "got %s", applied)

	// AND reverting the applied delta restores the exact prior balance
	w.Revert(applied)
	assert.True(t, w.Balance().Equal(amount("100")), "got %s", w.Balance())
}

func TestAdjustBeforeFetchIsZero(t *testing.T) {
	ws := &walletServer{balance: amount("100")}
	w := newWallets(t, ws)

	// No wallet cached yet: nothing to adjust, nothing to revert.
	applied := w.Debit(amount("50"))
	assert.True(t, applied.IsZero())
	w.Revert(applied)
	assert.Nil(t, w.Wallet())
}

// =============================================================================
// HISTORY
// =============================================================================

func TestHistoryAppendsAndDeduplicates(t *testing.T) {
	ws := &walletServer{balance: amount("100")}
	w := newWallets(t, ws)
	ctx := context.Background()

	_, err := w.History(ctx, wallets.HistoryParams{PageNumber: 1, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, w.Transactions(), 2)

	// The second page overlaps on tx-2; the merge keeps one copy.
	_, err = w.History(ctx, wallets.HistoryParams{PageNumber: 2, PageSize: 2})
	require.NoError(t, err)

	ids := make([]string, 0)
	for _, m := range w.Transactions() {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{"tx-1", "tx-2", "tx-3"}, ids)
	assert.Equal(t, 2, w.Page().PageNumber)
	assert.False(t, w.Page().HasNext)
}

func TestSynthesizedTransactionGetsLocalID(t *testing.T) {
	ws := &walletServer{balance: amount("100")}
	w := newWallets(t, ws)

	w.AppendTransaction(wallets.Transaction{Kind: wallets.KindPayment, Amount: amount("-10")})

	list := w.Transactions()
	require.Len(t, list, 1)
	assert.NotEmpty(t, list[0].ID)
	assert.True(t, list[0].Synthesized)
}
