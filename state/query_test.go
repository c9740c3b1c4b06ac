package state_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/warp/portal-sync/state"
)

func TestQueryOmitsUnsetOptionals(t *testing.T) {
	// Unset filters must not appear at all: "" and nil are absent, not
	// empty-valued, so the fingerprint of "no filter" is stable.
	q := state.NewQuery().
		SetPage(1, 20).
		SetOpt("search", "").
		SetOptInt("minAmount", nil).
		SetOptBool("active", nil)

	assert.Equal(t, "pageNumber=1&pageSize=20", q.Encode())
}

func TestQueryEncodeIsDeterministic(t *testing.T) {
	min := 100
	active := true

	a := state.NewQuery().
		SetOpt("search", "loan").
		SetOptInt("minAmount", &min).
		SetOptBool("active", &active).
		SetPage(2, 10)
	b := state.NewQuery().
		SetPage(2, 10).
		SetOptBool("active", &active).
		SetOptInt("minAmount", &min).
		SetOpt("search", "loan")

	// Same parameters in any insertion order yield one fingerprint.
	assert.Equal(t, a.Encode(), b.Encode())
	assert.Equal(t, "active=true&minAmount=100&pageNumber=2&pageSize=10&search=loan", a.Encode())
}

func TestSelectorMemoizesByVersion(t *testing.T) {
	computes := 0
	sel := state.NewSelector(func(in []int) int {
		computes++
		sum := 0
		for _, v := range in {
			sum += v
		}
		return sum
	})

	data := []int{1, 2, 3}
	assert.Equal(t, 6, sel.At(1, data))
	assert.Equal(t, 6, sel.At(1, data))
	assert.Equal(t, 1, computes)

	// A version bump recomputes once.
	data = append(data, 4)
	assert.Equal(t, 10, sel.At(2, data))
	assert.Equal(t, 10, sel.At(2, data))
	assert.Equal(t, 2, computes)
}

func TestBreakdownAndFilter(t *testing.T) {
	type rec struct{ status string }
	items := []rec{{"due"}, {"paid"}, {"due"}, {"overdue"}}

	counts := state.Breakdown(items, func(r rec) string { return r.status })
	assert.Equal(t, map[string]int{"due": 2, "paid": 1, "overdue": 1}, counts)

	due := state.Filter(items, func(r rec) bool { return r.status == "due" })
	assert.Len(t, due, 2)
}

func TestMessageOfNormalizesUnknownErrors(t *testing.T) {
	// Typed errors carry their message through.
	e := state.NewError(state.KindAPI, "موجودی کافی نیست")
	assert.Equal(t, "موجودی کافی نیست", state.MessageOf(e))

	// Anything else collapses to the user-facing fallback.
	assert.Equal(t, state.FallbackMessage, state.MessageOf(assert.AnError))

	// An empty message never leaks to the UI either.
	assert.Equal(t, state.FallbackMessage, state.NewError(state.KindAPI, "").Message)
}
