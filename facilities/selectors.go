package facilities

import (
	"github.com/shopspring/decimal"
	"github.com/warp/portal-sync/state"
)

// Derived views over the facility caches. Each selector memoizes against
// the owning slice's version, so repeated reads between mutations are free.

// Summary is the composite view-model the dashboard renders.
type Summary struct {
	Open            int             `json:"open"`
	Pending         int             `json:"pendingRequests"`
	Approved        int             `json:"approvedRequests"`
	RequestedAmount decimal.Decimal `json:"requestedAmount"`
}

// Selectors bundles the memoized views; construct once per Facilities.
type Selectors struct {
	f *Facilities

	byStatus  *state.Selector[[]Request, map[string]int]
	requested *state.Selector[[]Request, decimal.Decimal]
	open      *state.Selector[[]Facility, []Facility]
}

// NewSelectors builds the selector set for a family instance.
func NewSelectors(f *Facilities) *Selectors {
	return &Selectors{
		f: f,
		byStatus: state.NewSelector(func(rs []Request) map[string]int {
			return state.Breakdown(rs, func(r Request) string { return r.Status })
		}),
		requested: state.NewSelector(func(rs []Request) decimal.Decimal {
			total := decimal.Zero
			for _, r := range rs {
				if r.Status != StatusCanceled && r.Status != StatusRejected {
					total = total.Add(r.Amount)
				}
			}
			return total
		}),
		open: state.NewSelector(func(fs []Facility) []Facility {
			return state.Filter(fs, func(f Facility) bool { return f.Status == "open" })
		}),
	}
}

// RequestBreakdown returns a status -> count map over the cached requests.
func (s *Selectors) RequestBreakdown() map[string]int {
	return s.byStatus.At(s.f.requests.Version(), s.f.requests.List())
}

// RequestedAmount totals the amounts of live (non-canceled, non-rejected)
// requests.
func (s *Selectors) RequestedAmount() decimal.Decimal {
	return s.requested.At(s.f.requests.Version(), s.f.requests.List())
}

// OpenFacilities filters the cached listing down to open offerings.
func (s *Selectors) OpenFacilities() []Facility {
	return s.open.At(s.f.slice.Version(), s.f.slice.List())
}

// Summary assembles the dashboard view-model from the base selectors.
func (s *Selectors) Summary() Summary {
	breakdown := s.RequestBreakdown()
	return Summary{
		Open:            len(s.OpenFacilities()),
		Pending:         breakdown[StatusPending],
		Approved:        breakdown[StatusApproved],
		RequestedAmount: s.RequestedAmount(),
	}
}
