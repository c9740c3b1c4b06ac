package state

import (
	"net/url"
	"strconv"
)

// Query builds the query string for a paginated read. The rule is uniform:
// a filter that is unset is omitted from the request entirely. No endpoint
// ever sends a sentinel value for "no filter".
//
// Encoding goes through url.Values, which sorts keys, so the same parameters
// always produce the same string. That determinism is what the cache layer
// fingerprints requests with.
type Query struct {
	v url.Values
}

// NewQuery returns an empty query builder.
func NewQuery() *Query {
	return &Query{v: url.Values{}}
}

// Set adds a required string parameter.
func (q *Query) Set(key, val string) *Query {
	q.v.Set(key, val)
	return q
}

// SetInt adds a required integer parameter.
func (q *Query) SetInt(key string, val int) *Query {
	q.v.Set(key, strconv.Itoa(val))
	return q
}

// SetPage adds the standard pagination pair.
func (q *Query) SetPage(pageNumber, pageSize int) *Query {
	return q.SetInt("pageNumber", pageNumber).SetInt("pageSize", pageSize)
}

// SetOpt adds a string filter, omitting it when empty.
func (q *Query) SetOpt(key, val string) *Query {
	if val != "" {
		q.v.Set(key, val)
	}
	return q
}

// SetOptInt adds an integer filter, omitting it when nil.
func (q *Query) SetOptInt(key string, val *int) *Query {
	if val != nil {
		q.v.Set(key, strconv.Itoa(*val))
	}
	return q
}

// SetOptBool adds a boolean filter, omitting it when nil.
func (q *Query) SetOptBool(key string, val *bool) *Query {
	if val != nil {
		q.v.Set(key, strconv.FormatBool(*val))
	}
	return q
}

// Encode returns the deterministic query string (no leading "?").
func (q *Query) Encode() string {
	if q == nil || len(q.v) == 0 {
		return ""
	}
	return q.v.Encode()
}

// Values exposes the underlying url.Values for the HTTP adapter.
func (q *Query) Values() url.Values {
	if q == nil {
		return nil
	}
	return q.v
}
