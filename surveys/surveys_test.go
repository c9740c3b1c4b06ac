package surveys_test

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/portal-sync/client"
	"github.com/warp/portal-sync/state"
	"github.com/warp/portal-sync/surveys"
)

// =============================================================================
// TEST SETUP - a survey upstream with both listing shapes
// =============================================================================

// surveyServer serves three surveys two per page over both listings. The
// feed's page 2 repeats s-2 so the append merge has an overlap to dedupe.
type surveyServer struct {
	listHits atomic.Int32
	feedHits atomic.Int32
}

func pageOf(r *http.Request) int {
	page, _ := strconv.Atoi(r.URL.Query().Get("pageNumber"))
	if page < 1 {
		page = 1
	}
	return page
}

func (ss *surveyServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/surveys", func(w http.ResponseWriter, r *http.Request) {
		ss.listHits.Add(1)
		items := ""
		switch pageOf(r) {
		case 1:
			items = `{"id":"s-1","title":"Housing needs","status":"open"},{"id":"s-2","title":"Commute habits","status":"open"}`
		case 2:
			items = `{"id":"s-3","title":"Canteen quality","status":"closed"}`
		}
		fmt.Fprintf(w, `{"isSuccess":true,"data":{"items":[%s],"pageNumber":%d,"pageSize":2,"totalCount":3}}`, items, pageOf(r))
	})
	mux.HandleFunc("GET /api/surveys/with-last-response", func(w http.ResponseWriter, r *http.Request) {
		ss.feedHits.Add(1)
		items := ""
		switch pageOf(r) {
		case 1:
			items = `{"id":"s-1","title":"Housing needs","status":"open","lastResponseId":"sr-1"},{"id":"s-2","title":"Commute habits","status":"open"}`
		case 2:
			items = `{"id":"s-2","title":"Commute habits","status":"open"},{"id":"s-3","title":"Canteen quality","status":"closed"}`
		}
		fmt.Fprintf(w, `{"isSuccess":true,"data":{"surveys":[%s],"pageNumber":%d,"pageSize":2,"totalCount":3}}`, items, pageOf(r))
	})
	mux.HandleFunc("GET /api/surveys/responses", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"isSuccess":true,"data":{"items":[{"id":"sr-1","surveyId":"s-1","submittedAt":"2026-08-01T10:00:00Z"}],"pageNumber":1,"pageSize":10,"totalCount":1}}`)
	})
	mux.HandleFunc("GET /api/surveys/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		fmt.Fprintf(w, `{"isSuccess":true,"data":{"id":"%s","title":"Survey %s","status":"open","questions":[{"id":"q-1","text":"How far is your commute?","type":"choice","options":["<5km","5-20km",">20km"]}]}}`, id, id)
	})
	mux.HandleFunc("POST /api/surveys/{id}/responses", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"isSuccess":true,"data":{"id":"sr-9","surveyId":"%s","submittedAt":"2026-08-31T09:00:00Z"}}`, r.PathValue("id"))
	})
	return mux
}

func newSurveys(t *testing.T) (*surveys.Surveys, *surveyServer) {
	t.Helper()
	ss := &surveyServer{}
	srv := httptest.NewServer(ss.handler())
	t.Cleanup(srv.Close)

	api, err := client.New(srv.URL)
	require.NoError(t, err)
	return surveys.New(api, state.NewCache(nil), slog.Default()), ss
}

func surveyIDs(s *surveys.Surveys) []string {
	var ids []string
	for _, it := range s.Items() {
		ids = append(ids, it.ID)
	}
	return ids
}

// =============================================================================
// REPLACE VS APPEND - the two listings over one slice
// =============================================================================

func TestListReplacesThePage(t *testing.T) {
	s, _ := newSurveys(t)
	ctx := context.Background()

	// GIVEN page 1 loaded
	_, err := s.List(ctx, surveys.ListParams{PageNumber: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"s-1", "s-2"}, surveyIDs(s))

	// WHEN page 2 loads through the plain listing
	_, err = s.List(ctx, surveys.ListParams{PageNumber: 2, PageSize: 2})
	require.NoError(t, err)

	// THEN the slice holds only the new page
	assert.Equal(t, []string{"s-3"}, surveyIDs(s))
	assert.False(t, s.Page().HasNext)
}

func TestFeedAppendsAndDedupes(t *testing.T) {
	s, _ := newSurveys(t)
	ctx := context.Background()

	// GIVEN feed page 1 (the "surveys" items key decodes too)
	_, err := s.Feed(ctx, surveys.ListParams{PageNumber: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"s-1", "s-2"}, surveyIDs(s))
	assert.Equal(t, "sr-1", s.Items()[0].LastResponseID)

	// WHEN page 2 arrives overlapping on s-2
	_, err = s.Feed(ctx, surveys.ListParams{PageNumber: 2, PageSize: 2})
	require.NoError(t, err)

	// THEN the feed accumulated with the duplicate dropped
	assert.Equal(t, []string{"s-1", "s-2", "s-3"}, surveyIDs(s))
}

func TestFeedPageOneStartsASession(t *testing.T) {
	s, _ := newSurveys(t)
	ctx := context.Background()

	_, err := s.Feed(ctx, surveys.ListParams{PageNumber: 2, PageSize: 2})
	require.NoError(t, err)
	require.Equal(t, []string{"s-2", "s-3"}, surveyIDs(s))

	// A fresh page 1 replaces the accumulation rather than merging into it.
	_, err = s.Feed(ctx, surveys.ListParams{PageNumber: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"s-1", "s-2"}, surveyIDs(s))
}

// =============================================================================
// DETAILS AND RESPONSES
// =============================================================================

func TestDetailsSelectsWithQuestions(t *testing.T) {
	s, _ := newSurveys(t)

	d, err := s.Details(context.Background(), "s-1")
	require.NoError(t, err)
	assert.Equal(t, "s-1", d.ID)
	require.Len(t, d.Items, 1)
	assert.Equal(t, "choice", d.Items[0].Kind)

	sel := s.Selected()
	require.NotNil(t, sel)
	assert.Equal(t, "s-1", sel.ID)
}

func TestSubmitInvalidatesBothListings(t *testing.T) {
	s, ss := newSurveys(t)
	ctx := context.Background()

	_, err := s.Feed(ctx, surveys.ListParams{PageNumber: 1, PageSize: 2})
	require.NoError(t, err)
	require.EqualValues(t, 1, ss.feedHits.Load())

	// WHEN a response is submitted
	r, err := s.Submit(ctx, surveys.SubmitParams{
		SurveyID: "s-2",
		Answers:  map[string]string{"q-1": "5-20km"},
	})
	require.NoError(t, err)
	assert.Equal(t, "sr-9", r.ID)
	assert.Contains(t, s.Responses(), *r)

	// THEN the feed's retention is gone and the next read hits the network
	_, err = s.Feed(ctx, surveys.ListParams{PageNumber: 1, PageSize: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 2, ss.feedHits.Load())
}

func TestSubmitRejectsEmptyParams(t *testing.T) {
	s, _ := newSurveys(t)

	_, err := s.Submit(context.Background(), surveys.SubmitParams{})

	require.Error(t, err)
	assert.True(t, state.IsValidation(err))
}

func TestResponseHistoryLoads(t *testing.T) {
	s, _ := newSurveys(t)

	items, err := s.ResponseHistory(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "sr-1", items[0].ID)
	assert.Equal(t, []string{"sr-1"}, func() []string {
		var ids []string
		for _, r := range s.Responses() {
			ids = append(ids, r.ID)
		}
		return ids
	}())
}
