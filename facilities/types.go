/*
Package facilities caches the loan/benefit offerings of the portal and the
member's facility requests.

PURPOSE:
  The richest resource family: a paged, filterable search (append mode, it
  backs the infinite-scroll listing), a detail record with the
  clear-before-select guarantee, and the request sub-resource (list, submit,
  cancel). Submitting or canceling a request invalidates TagRequests so any
  mounted request list silently refetches.

SEE ALSO:
  - facilities.go: endpoints and mutations
  - selectors.go: derived views (status breakdowns, amount aggregates)
*/
package facilities

import (
	"github.com/shopspring/decimal"
)

// Facility is the list-item shape returned by the search endpoint.
type Facility struct {
	ID              string          `json:"id" validate:"required"`
	Title           string          `json:"title" validate:"required"`
	Kind            string          `json:"type"` // loan, grant, credit
	Amount          decimal.Decimal `json:"amount"`
	InterestRate    decimal.Decimal `json:"interestRate"`
	RepaymentMonths int             `json:"repaymentMonths"`
	Status          string          `json:"status"` // open, closed, upcoming
	Deadline        string          `json:"registrationDeadline,omitempty"`
}

func (f Facility) EntityID() string { return f.ID }

// Details is the richer detail shape; the list fields ride along so a
// detail response can also warm the list cache.
type Details struct {
	Facility
	Description       string   `json:"description"`
	Conditions        []string `json:"conditions,omitempty"`
	RequiredDocuments []string `json:"requiredDocuments,omitempty"`
	GuarantorCount    int      `json:"guarantorCount"`
}

// Request is one facility request submitted by the member.
type Request struct {
	ID           string          `json:"id" validate:"required"`
	FacilityID   string          `json:"facilityId" validate:"required"`
	Title        string          `json:"facilityTitle,omitempty"`
	Amount       decimal.Decimal `json:"amount"`
	Months       int             `json:"repaymentMonths,omitempty"`
	Status       string          `json:"status"` // pending, approved, rejected, canceled
	TrackingCode string          `json:"trackingCode,omitempty"`
	SubmittedAt  string          `json:"submittedAt,omitempty"`
}

func (r Request) EntityID() string { return r.ID }

// Request statuses as the upstream reports them.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
	StatusCanceled = "canceled"
)

// SearchParams are the search endpoint's filters. Nil/empty optionals are
// omitted from the request.
type SearchParams struct {
	PageNumber int
	PageSize   int
	Search     string
	Kind       string
	MinAmount  *int
	MaxAmount  *int
}

// SubmitParams is the payload for creating a facility request.
type SubmitParams struct {
	FacilityID  string          `json:"facilityId" validate:"required"`
	Amount      decimal.Decimal `json:"amount"`
	Months      int             `json:"repaymentMonths"`
	Description string          `json:"description,omitempty"`
}
