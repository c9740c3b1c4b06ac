package client

import (
	"bytes"
	"encoding/json"

	"github.com/warp/portal-sync/state"
)

// Envelope is the upstream's uniform response wrapper. Every field except
// Data is optional; the route proxy forwards it verbatim, so the same shape
// arrives whether a call went direct or through the proxy.
type Envelope struct {
	IsSuccess *bool           `json:"isSuccess,omitempty"`
	Message   string          `json:"message,omitempty"`
	Errors    []string        `json:"errors,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Decode unmarshals the envelope's data payload into v.
func (e *Envelope) Decode(v any) error {
	if len(e.Data) == 0 {
		return state.NewError(state.KindAPI, e.Message)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return state.NewError(state.KindAPI, "")
	}
	return nil
}

// failureMessage extracts the user-facing message from a failed envelope:
// errors[0] first, then message, then the generic fallback.
func (e *Envelope) failureMessage() string {
	if len(e.Errors) > 0 && e.Errors[0] != "" {
		return e.Errors[0]
	}
	return e.Message // NewError substitutes the fallback when empty
}

// pagedData is the shape of a paginated data payload. Most listings put
// their records under "items"; the survey endpoints historically used
// "surveys". Pagination fields ride alongside whichever key is present.
type pagedData struct {
	Items   json.RawMessage `json:"items,omitempty"`
	Surveys json.RawMessage `json:"surveys,omitempty"`

	PageNumber int `json:"pageNumber,omitempty"`
	PageSize   int `json:"pageSize,omitempty"`
	TotalCount int `json:"totalCount,omitempty"`
	TotalPages int `json:"totalPages,omitempty"`
}

// DecodePage unmarshals a paginated envelope into a typed item list plus
// self-consistent PageInfo. Server-supplied pagination fields win; missing
// ones fall back to the request's own parameters. Without a total count the
// best available estimate is "everything seen so far", bumped by one when
// the page came back full so HasNext stays true.
func DecodePage[T any](env *Envelope, reqPage, reqSize int) ([]T, state.PageInfo, error) {
	var pd pagedData
	var items []T

	// A few endpoints return the array directly under data; an array cannot
	// unmarshal into pagedData, so it is picked off first.
	data := bytes.TrimSpace(env.Data)
	if len(data) > 0 && data[0] == '[' {
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, state.PageInfo{}, state.NewError(state.KindAPI, "")
		}
	} else {
		if err := env.Decode(&pd); err != nil {
			return nil, state.PageInfo{}, err
		}
		raw := pd.Items
		if len(raw) == 0 {
			raw = pd.Surveys
		}
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, state.PageInfo{}, state.NewError(state.KindAPI, "")
		}
	}

	page := pd.PageNumber
	if page < 1 {
		page = reqPage
	}
	size := pd.PageSize
	if size < 1 {
		size = reqSize
	}

	total := pd.TotalCount
	if total < 1 && pd.TotalPages > 0 {
		total = pd.TotalPages * size
	}
	if total < 1 {
		total = (page-1)*size + len(items)
		if len(items) == size {
			total++ // a full page implies at least one more record
		}
	}

	return items, state.NewPageInfo(page, size, total), nil
}
