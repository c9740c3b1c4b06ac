/*
Package surveys caches the portal's surveys and the member's responses.

PURPOSE:
  Two listings coexist: the plain survey list (replace mode, like every
  other listing) and the surveys-with-last-response feed (append mode, the
  one deliberate append-mode read outside the infinite-scroll searches,
  kept because the feed accumulates across visits). Submitting a response
  invalidates both survey tags so each refetches.

SEE ALSO:
  - state/types.go: ListMode and why the mode is declared per endpoint
*/
package surveys

import (
	"context"
	"log/slog"
	"time"

	"github.com/warp/portal-sync/client"
	"github.com/warp/portal-sync/state"
)

// Invalidation tags owned by this family.
const (
	TagSurveys   state.Tag = "Surveys"
	TagResponses state.Tag = "SurveyResponses"
)

const listTTL = 300 * time.Second

// Survey is the list-item shape.
type Survey struct {
	ID        string `json:"id" validate:"required"`
	Title     string `json:"title" validate:"required"`
	Status    string `json:"status"` // open, closed
	Deadline  string `json:"deadline,omitempty"`
	Questions int    `json:"questionCount,omitempty"`

	// Present only in the with-last-response feed.
	LastResponseID string `json:"lastResponseId,omitempty"`
	LastRespondedAt string `json:"lastRespondedAt,omitempty"`
}

func (s Survey) EntityID() string { return s.ID }

// Details carries the full question set.
type Details struct {
	Survey
	Description string     `json:"description,omitempty"`
	Items       []Question `json:"questions,omitempty"`
}

// Question is one survey question.
type Question struct {
	ID      string   `json:"id"`
	Text    string   `json:"text"`
	Kind    string   `json:"type"` // choice, text, rating
	Options []string `json:"options,omitempty"`
}

// Response is one submitted response record.
type Response struct {
	ID          string `json:"id" validate:"required"`
	SurveyID    string `json:"surveyId" validate:"required"`
	SubmittedAt string `json:"submittedAt,omitempty"`
}

func (r Response) EntityID() string { return r.ID }

// SubmitParams is the submit-response payload.
type SubmitParams struct {
	SurveyID string            `json:"surveyId" validate:"required"`
	Answers  map[string]string `json:"answers" validate:"required"`
}

// ListParams pages the survey listings.
type ListParams struct {
	PageNumber int
	PageSize   int
	Status     string // optional
}

// Surveys owns the survey and response caches.
type Surveys struct {
	api *client.Client
	log *slog.Logger

	slice     *state.Slice[Survey, Details]
	responses *state.Slice[Response, Response]

	list     *state.Endpoint[ListParams, []Survey]
	feed     *state.Endpoint[ListParams, []Survey]
	details  *state.Endpoint[string, *Details]
	history  *state.Endpoint[int, []Response]
	submit   *state.Mutation[SubmitParams, *Response]
}

// New wires the family into the shared cache and client adapter.
func New(api *client.Client, cache *state.Cache, log *slog.Logger) *Surveys {
	s := &Surveys{
		api:       api,
		log:       log.With("module", "surveys"),
		slice:     state.NewSlice[Survey, Details]("surveys", log),
		responses: state.NewSlice[Response, Response]("surveyResponses", log),
	}

	s.list = state.Register(cache, state.Endpoint[ListParams, []Survey]{
		Name:     "surveys.list",
		TTL:      listTTL,
		Provides: []state.Tag{TagSurveys},
		Gate:     s.slice,
		Key:      func(p ListParams) string { return listQuery(p).Encode() },
		Fetch:    s.fetchList("/api/surveys", state.Replace),
	})

	// The deliberate append-mode exception: the feed accumulates.
	s.feed = state.Register(cache, state.Endpoint[ListParams, []Survey]{
		Name:     "surveys.withLastResponse",
		TTL:      listTTL,
		Provides: []state.Tag{TagSurveys, TagResponses},
		Gate:     s.slice,
		Key:      func(p ListParams) string { return listQuery(p).Encode() },
		Fetch:    s.fetchList("/api/surveys/with-last-response", state.Append),
	})

	s.details = state.Register(cache, state.Endpoint[string, *Details]{
		Name:     "surveys.details",
		TTL:      listTTL,
		Provides: []state.Tag{TagSurveys},
		Gate:     s.slice,
		Key:      func(id string) string { return id },
		Fetch: func(ctx context.Context, id string) (*Details, error) {
			s.slice.ClearSelected()
			env, err := s.api.Get(ctx, "/api/surveys/"+id, nil)
			if err != nil {
				return nil, err
			}
			var d Details
			if err := env.Decode(&d); err != nil {
				return nil, err
			}
			if err := s.slice.SetSelected(&d); err != nil {
				return nil, err
			}
			return &d, nil
		},
	})

	s.history = state.Register(cache, state.Endpoint[int, []Response]{
		Name:     "surveys.responses",
		TTL:      listTTL,
		Provides: []state.Tag{TagResponses},
		Gate:     s.responses,
		Key:      func(page int) string { return state.NewQuery().SetPage(page, historyPageSize).Encode() },
		Fetch: func(ctx context.Context, page int) ([]Response, error) {
			q := state.NewQuery().SetPage(page, historyPageSize)
			env, err := s.api.Get(ctx, "/api/surveys/responses", q)
			if err != nil {
				return nil, err
			}
			items, info, err := client.DecodePage[Response](env, page, historyPageSize)
			if err != nil {
				return nil, err
			}
			if err := state.ApplyPage(s.responses, state.Replace, page, items, info); err != nil {
				return nil, err
			}
			return items, nil
		},
	})

	s.submit = state.RegisterMutation(cache, state.Mutation[SubmitParams, *Response]{
		Name:        "surveys.submit",
		Invalidates: []state.Tag{TagSurveys, TagResponses},
		Gate:        s.responses,
		Do: func(ctx context.Context, p SubmitParams) (*Response, error) {
			if err := state.Validate(p); err != nil {
				return nil, err
			}
			env, err := s.api.Post(ctx, "/api/surveys/"+p.SurveyID+"/responses", p)
			if err != nil {
				return nil, err
			}
			var r Response
			if err := env.Decode(&r); err != nil {
				return nil, err
			}
			_ = s.responses.UpsertOne(r)
			return &r, nil
		},
	})

	return s
}

const historyPageSize = 10

func listQuery(p ListParams) *state.Query {
	return state.NewQuery().
		SetPage(p.PageNumber, p.PageSize).
		SetOpt("status", p.Status)
}

func (s *Surveys) fetchList(path string, mode state.ListMode) func(context.Context, ListParams) ([]Survey, error) {
	return func(ctx context.Context, p ListParams) ([]Survey, error) {
		env, err := s.api.Get(ctx, path, listQuery(p))
		if err != nil {
			return nil, err
		}
		items, info, err := client.DecodePage[Survey](env, p.PageNumber, p.PageSize)
		if err != nil {
			return nil, err
		}
		if err := state.ApplyPage(s.slice, mode, p.PageNumber, items, info); err != nil {
			return nil, err
		}
		return items, nil
	}
}

// List loads one page of the plain survey listing (replace mode).
func (s *Surveys) List(ctx context.Context, p ListParams) ([]Survey, error) {
	return s.list.Run(ctx, p)
}

// Feed loads one page of the surveys-with-last-response feed (append mode).
func (s *Surveys) Feed(ctx context.Context, p ListParams) ([]Survey, error) {
	return s.feed.Run(ctx, p)
}

// Details fetches and selects one survey with its questions.
func (s *Surveys) Details(ctx context.Context, id string) (*Details, error) {
	d, err := s.details.Run(ctx, id)
	if err != nil {
		return nil, err
	}
	// A retention hit skips Fetch, so reconcile the selection here too.
	if cur := s.slice.Selected(); cur == nil || cur.ID != d.ID {
		s.slice.ClearSelected()
		if err := s.slice.SetSelected(d); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// ResponseHistory loads one page of the member's responses.
func (s *Surveys) ResponseHistory(ctx context.Context, page int) ([]Response, error) {
	return s.history.Run(ctx, page)
}

// Submit sends a survey response; both survey listings refetch via tags.
func (s *Surveys) Submit(ctx context.Context, p SubmitParams) (*Response, error) {
	return s.submit.Run(ctx, p)
}

// Items returns the cached survey list.
func (s *Surveys) Items() []Survey { return s.slice.List() }

// Selected returns the cached survey detail, if any.
func (s *Surveys) Selected() *Details { return s.slice.Selected() }

// Responses returns the cached response history.
func (s *Surveys) Responses() []Response { return s.responses.List() }

// Page returns the listing's pagination metadata.
func (s *Surveys) Page() state.PageInfo { return s.slice.Page() }

// Loading reports whether a survey request is in flight.
func (s *Surveys) Loading() bool { return s.slice.Loading() }

// Err returns the last survey failure message.
func (s *Surveys) Err() string { return s.slice.Err() }

// Reset clears both caches (logout/teardown).
func (s *Surveys) Reset() {
	s.slice.Reset()
	s.responses.Reset()
}
