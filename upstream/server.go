package upstream

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// SERVER
// =============================================================================

// Server serves the simulated welfare API over the envelope contract.
type Server struct {
	store  *Store
	log    *slog.Logger
	router chi.Router

	// issued tokens; refresh maps a refresh token to its member id.
	tokens  map[string]bool
	refresh map[string]string
}

// NewServer builds the simulator on top of a seeded store.
func NewServer(store *Store, log *slog.Logger) *Server {
	s := &Server{
		store:   store,
		log:     log,
		tokens:  map[string]bool{},
		refresh: map[string]string{},
	}
	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/refresh", s.handleRefresh)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)

			r.Post("/auth/logout", s.handleLogout)

			r.Get("/facilities", s.handleFacilityList)
			r.Get("/facilities/requests", s.handleFacilityRequests)
			r.Post("/facilities/requests", s.handleFacilityRequestSubmit)
			r.Delete("/facilities/requests/{id}", s.handleFacilityRequestCancel)
			r.Get("/facilities/{id}", s.handleFacilityDetails)

			r.Get("/surveys", s.handleSurveyList)
			r.Get("/surveys/with-last-response", s.handleSurveyFeed)
			r.Get("/surveys/responses", s.handleSurveyResponses)
			r.Post("/surveys/{id}/responses", s.handleSurveySubmit)
			r.Get("/surveys/{id}", s.handleSurveyDetails)

			r.Get("/tours", s.handleTourList)
			r.Get("/tours/reservations", s.handleTourReservations)
			r.Post("/tours/reservations", s.handleTourReserve)
			r.Delete("/tours/reservations/{id}", s.handleTourCancel)
			r.Get("/tours/{id}", s.handleTourDetails)

			r.Get("/accommodations", s.handleStayList)
			r.Get("/accommodations/reservations", s.handleStayReservations)
			r.Post("/accommodations/reservations", s.handleStayReserve)
			r.Delete("/accommodations/reservations/{id}", s.handleStayCancel)
			r.Get("/accommodations/{id}", s.handleStayDetails)

			r.Get("/bills", s.handleBillList)
			r.Post("/bills/{id}/pay", s.handleBillPay)
			r.Get("/bills/{id}", s.handleBillDetails)

			r.Get("/wallet", s.handleWallet)
			r.Get("/wallet/transactions", s.handleWalletTransactions)
			r.Post("/wallet/deposit", s.handleWalletDeposit)

			r.Get("/payments", s.handlePaymentList)
			r.Post("/payments/wallet", s.handlePayWithWallet)
			r.Post("/payments/{id}/verify", s.handlePaymentVerify)
			r.Get("/payments/{id}", s.handlePaymentDetails)

			r.Get("/discounts", s.handleDiscountList)
			r.Post("/discounts/redeem", s.handleDiscountRedeem)

			r.Get("/notifications", s.handleNotificationList)
			r.Get("/notifications/unread-count", s.handleUnreadCount)
			r.Post("/notifications/read-all", s.handleMarkAllRead)
			r.Post("/notifications/{id}/read", s.handleMarkRead)

			r.Get("/members/me", s.handleProfile)
			r.Put("/members/me", s.handleProfileUpdate)
			r.Get("/members/me/dependents", s.handleDependents)
		})
	})
	s.router = r
}

// =============================================================================
// ENVELOPE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func ok(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, map[string]any{
		"isSuccess": true,
		"data":      data,
	})
}

// okPage wraps a listing in the paginated data shape. key is the items
// field name ("items" everywhere except the survey feed, which uses
// "surveys").
func okPage(w http.ResponseWriter, key string, items any, page, size, total int) {
	pages := (total + size - 1) / size
	if pages < 1 {
		pages = 1
	}
	ok(w, map[string]any{
		key:          items,
		"pageNumber": page,
		"pageSize":   size,
		"totalCount": total,
		"totalPages": pages,
	})
}

func fail(w http.ResponseWriter, status int, message string, errs ...string) {
	writeJSON(w, status, map[string]any{
		"isSuccess": false,
		"message":   message,
		"errors":    errs,
	})
}

func pageParams(r *http.Request) (page, size int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("pageNumber"))
	size, _ = strconv.Atoi(r.URL.Query().Get("pageSize"))
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 10
	}
	return page, size
}

func decodeBody(r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20)).Decode(v)
}

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// =============================================================================
// AUTH
// =============================================================================

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if tok == "" || !s.tokens[tok] {
			fail(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) issueSession(memberID string) map[string]any {
	access := uuid.NewString()
	refresh := uuid.NewString()
	s.tokens[access] = true
	s.refresh[refresh] = memberID
	return map[string]any{
		"accessToken":  access,
		"refreshToken": refresh,
		"expiresAt":    time.Now().UTC().Add(time.Hour).Format(time.RFC3339),
		"memberId":     memberID,
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var p struct {
		NationalID string `json:"nationalId"`
		Password   string `json:"password"`
	}
	if err := decodeBody(r, &p); err != nil || p.NationalID == "" || p.Password == "" {
		fail(w, http.StatusBadRequest, "national id and password are required")
		return
	}
	var memberID string
	err := s.store.db.QueryRow(`SELECT id FROM member WHERE national_id = ?`, p.NationalID).Scan(&memberID)
	if err != nil {
		fail(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	ok(w, s.issueSession(memberID))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var p struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := decodeBody(r, &p); err != nil {
		fail(w, http.StatusBadRequest, "malformed body")
		return
	}
	memberID, found := s.refresh[p.RefreshToken]
	if !found {
		fail(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}
	delete(s.refresh, p.RefreshToken)
	ok(w, s.issueSession(memberID))
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	tok := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	delete(s.tokens, tok)
	ok(w, nil)
}

// =============================================================================
// FACILITIES
// =============================================================================

type facilityRow struct {
	ID              string          `json:"id"`
	Title           string          `json:"title"`
	Kind            string          `json:"type"`
	Amount          decimal.Decimal `json:"amount"`
	InterestRate    decimal.Decimal `json:"interestRate"`
	RepaymentMonths int             `json:"repaymentMonths"`
	Status          string          `json:"status"`
	Deadline        string          `json:"registrationDeadline,omitempty"`
}

func scanFacility(scan func(dest ...any) error) (facilityRow, error) {
	var f facilityRow
	var amount, rate string
	var deadline *string
	err := scan(&f.ID, &f.Title, &f.Kind, &amount, &rate, &f.RepaymentMonths, &f.Status, &deadline)
	if err != nil {
		return f, err
	}
	f.Amount, _ = decimal.NewFromString(amount)
	f.InterestRate, _ = decimal.NewFromString(rate)
	if deadline != nil {
		f.Deadline = *deadline
	}
	return f, nil
}

func (s *Server) handleFacilityList(w http.ResponseWriter, r *http.Request) {
	page, size := pageParams(r)
	q := r.URL.Query()

	where := "WHERE 1=1"
	var args []any
	if v := q.Get("search"); v != "" {
		where += " AND title LIKE ?"
		args = append(args, "%"+v+"%")
	}
	if v := q.Get("type"); v != "" {
		where += " AND type = ?"
		args = append(args, v)
	}
	if v := q.Get("minAmount"); v != "" {
		where += " AND CAST(amount AS REAL) >= ?"
		args = append(args, v)
	}
	if v := q.Get("maxAmount"); v != "" {
		where += " AND CAST(amount AS REAL) <= ?"
		args = append(args, v)
	}

	total, limit, offset, err := s.store.countAndPage("SELECT COUNT(*) FROM facilities "+where, args, page, size)
	if err != nil {
		fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	rows, err := s.store.db.Query(
		`SELECT id, title, type, amount, interest_rate, repayment_months, status, deadline
		 FROM facilities `+where+` ORDER BY id LIMIT ? OFFSET ?`,
		append(args, limit, offset)...)
	if err != nil {
		fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer rows.Close()

	items := []facilityRow{}
	for rows.Next() {
		f, err := scanFacility(rows.Scan)
		if err != nil {
			fail(w, http.StatusInternalServerError, err.Error())
			return
		}
		items = append(items, f)
	}
	okPage(w, "items", items, page, size, total)
}

func (s *Server) handleFacilityDetails(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	row := s.store.db.QueryRow(
		`SELECT id, title, type, amount, interest_rate, repayment_months, status, deadline,
		        COALESCE(description, ''), guarantor_count
		 FROM facilities WHERE id = ?`, id)

	var f facilityRow
	var amount, rate, description string
	var deadline *string
	var guarantors int
	err := row.Scan(&f.ID, &f.Title, &f.Kind, &amount, &rate, &f.RepaymentMonths,
		&f.Status, &deadline, &description, &guarantors)
	if err != nil {
		fail(w, http.StatusNotFound, "facility not found")
		return
	}
	f.Amount, _ = decimal.NewFromString(amount)
	f.InterestRate, _ = decimal.NewFromString(rate)
	if deadline != nil {
		f.Deadline = *deadline
	}
	ok(w, map[string]any{
		"id": f.ID, "title": f.Title, "type": f.Kind, "amount": f.Amount,
		"interestRate": f.InterestRate, "repaymentMonths": f.RepaymentMonths,
		"status": f.Status, "registrationDeadline": f.Deadline,
		"description": description, "guarantorCount": guarantors,
	})
}

type facilityRequestRow struct {
	ID           string          `json:"id"`
	FacilityID   string          `json:"facilityId"`
	Title        string          `json:"facilityTitle,omitempty"`
	Amount       decimal.Decimal `json:"amount"`
	Months       int             `json:"repaymentMonths,omitempty"`
	Status       string          `json:"status"`
	TrackingCode string          `json:"trackingCode,omitempty"`
	SubmittedAt  string          `json:"submittedAt,omitempty"`
}

func (s *Server) handleFacilityRequests(w http.ResponseWriter, r *http.Request) {
	page, size := pageParams(r)
	total, limit, offset, err := s.store.countAndPage(`SELECT COUNT(*) FROM facility_requests`, nil, page, size)
	if err != nil {
		fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	rows, err := s.store.db.Query(
		`SELECT fr.id, fr.facility_id, f.title, fr.amount, fr.months, fr.status,
		        COALESCE(fr.tracking_code, ''), COALESCE(fr.submitted_at, '')
		 FROM facility_requests fr JOIN facilities f ON f.id = fr.facility_id
		 ORDER BY fr.submitted_at DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer rows.Close()

	items := []facilityRequestRow{}
	for rows.Next() {
		var fr facilityRequestRow
		var amount string
		if err := rows.Scan(&fr.ID, &fr.FacilityID, &fr.Title, &amount, &fr.Months,
			&fr.Status, &fr.TrackingCode, &fr.SubmittedAt); err != nil {
			fail(w, http.StatusInternalServerError, err.Error())
			return
		}
		fr.Amount, _ = decimal.NewFromString(amount)
		items = append(items, fr)
	}
	okPage(w, "items", items, page, size, total)
}

func (s *Server) handleFacilityRequestSubmit(w http.ResponseWriter, r *http.Request) {
	var p struct {
		FacilityID string          `json:"facilityId"`
		Amount     decimal.Decimal `json:"amount"`
		Months     int             `json:"repaymentMonths"`
	}
	if err := decodeBody(r, &p); err != nil || p.FacilityID == "" {
		fail(w, http.StatusBadRequest, "facility id is required")
		return
	}
	var title string
	if err := s.store.db.QueryRow(`SELECT title FROM facilities WHERE id = ?`, p.FacilityID).Scan(&title); err != nil {
		fail(w, http.StatusUnprocessableEntity, "facility not found", "unknown facility id")
		return
	}

	fr := facilityRequestRow{
		ID:           uuid.NewString(),
		FacilityID:   p.FacilityID,
		Title:        title,
		Amount:       p.Amount,
		Months:       p.Months,
		Status:       "pending",
		TrackingCode: fmt.Sprintf("TRK-%d", time.Now().UnixMilli()%100000),
		SubmittedAt:  nowISO(),
	}
	_, err := s.store.db.Exec(
		`INSERT INTO facility_requests (id, facility_id, amount, months, status, tracking_code, submitted_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		fr.ID, fr.FacilityID, fr.Amount.String(), fr.Months, fr.Status, fr.TrackingCode, fr.SubmittedAt)
	if err != nil {
		fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	ok(w, fr)
}

func (s *Server) handleFacilityRequestCancel(w http.ResponseWriter, r *http.Request) {
	res, err := s.store.db.Exec(`DELETE FROM facility_requests WHERE id = ? AND status = 'pending'`, chi.URLParam(r, "id"))
	if err != nil {
		fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		fail(w, http.StatusUnprocessableEntity, "only pending requests can be canceled")
		return
	}
	ok(w, nil)
}

// =============================================================================
// SURVEYS
// =============================================================================

type surveyRow struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	Status          string `json:"status"`
	Deadline        string `json:"deadline,omitempty"`
	Questions       int    `json:"questionCount,omitempty"`
	LastResponseID  string `json:"lastResponseId,omitempty"`
	LastRespondedAt string `json:"lastRespondedAt,omitempty"`
}

func (s *Server) surveyPage(w http.ResponseWriter, r *http.Request, itemsKey string, withLast bool) {
	page, size := pageParams(r)
	where := "WHERE 1=1"
	var args []any
	if v := r.URL.Query().Get("status"); v != "" {
		where += " AND status = ?"
		args = append(args, v)
	}
	total, limit, offset, err := s.store.countAndPage("SELECT COUNT(*) FROM surveys "+where, args, page, size)
	if err != nil {
		fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	rows, err := s.store.db.Query(
		`SELECT id, title, status, COALESCE(deadline, ''), question_count
		 FROM surveys `+where+` ORDER BY id LIMIT ? OFFSET ?`,
		append(args, limit, offset)...)
	if err != nil {
		fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer rows.Close()

	items := []surveyRow{}
	for rows.Next() {
		var sv surveyRow
		if err := rows.Scan(&sv.ID, &sv.Title, &sv.Status, &sv.Deadline, &sv.Questions); err != nil {
			fail(w, http.StatusInternalServerError, err.Error())
			return
		}
		if withLast {
			_ = s.store.db.QueryRow(
				`SELECT id, COALESCE(submitted_at, '') FROM survey_responses
				 WHERE survey_id = ? ORDER BY submitted_at DESC LIMIT 1`, sv.ID).
				Scan(&sv.LastResponseID, &sv.LastRespondedAt)
		}
		items = append(items, sv)
	}
	okPage(w, itemsKey, items, page, size, total)
}

func (s *Server) handleSurveyList(w http.ResponseWriter, r *http.Request) {
	s.surveyPage(w, r, "items", false)
}

// The feed endpoint keys its list as "surveys" rather than "items".
func (s *Server) handleSurveyFeed(w http.ResponseWriter, r *http.Request) {
	s.surveyPage(w, r, "surveys", true)
}

func (s *Server) handleSurveyDetails(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var sv surveyRow
	var description string
	err := s.store.db.QueryRow(
		`SELECT id, title, status, COALESCE(deadline, ''), question_count, COALESCE(description, '')
		 FROM surveys WHERE id = ?`, id).
		Scan(&sv.ID, &sv.Title, &sv.Status, &sv.Deadline, &sv.Questions, &description)
	if err != nil {
		fail(w, http.StatusNotFound, "survey not found")
		return
	}

	// The simulator fabricates question bodies; only the count is stored.
	questions := make([]map[string]any, 0, sv.Questions)
	for i := 1; i <= sv.Questions; i++ {
		questions = append(questions, map[string]any{
			"id":   fmt.Sprintf("%s-q%d", sv.ID, i),
			"text": fmt.Sprintf("Question %d", i),
			"type": "text",
		})
	}
	ok(w, map[string]any{
		"id": sv.ID, "title": sv.Title, "status": sv.Status,
		"deadline": sv.Deadline, "questionCount": sv.Questions,
		"description": description, "questions": questions,
	})
}

func (s *Server) handleSurveyResponses(w http.ResponseWriter, r *http.Request) {
	page, size := pageParams(r)
	total, limit, offset, err := s.store.countAndPage(`SELECT COUNT(*) FROM survey_responses`, nil, page, size)
	if err != nil {
		fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	rows, err := s.store.db.Query(
		`SELECT id, survey_id, COALESCE(submitted_at, '') FROM survey_responses
		 ORDER BY submitted_at DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer rows.Close()

	type responseRow struct {
		ID          string `json:"id"`
		SurveyID    string `json:"surveyId"`
		SubmittedAt string `json:"submittedAt,omitempty"`
	}
	items := []responseRow{}
	for rows.Next() {
		var rr responseRow
		if err := rows.Scan(&rr.ID, &rr.SurveyID, &rr.SubmittedAt); err != nil {
			fail(w, http.StatusInternalServerError, err.Error())
			return
		}
		items = append(items, rr)
	}
	okPage(w, "items", items, page, size, total)
}

func (s *Server) handleSurveySubmit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var status string
	if err := s.store.db.QueryRow(`SELECT status FROM surveys WHERE id = ?`, id).Scan(&status); err != nil {
		fail(w, http.StatusNotFound, "survey not found")
		return
	}
	if status != "open" {
		fail(w, http.StatusUnprocessableEntity, "survey is closed")
		return
	}
	resp := map[string]any{
		"id":          uuid.NewString(),
		"surveyId":    id,
		"submittedAt": nowISO(),
	}
	_, err := s.store.db.Exec(`INSERT INTO survey_responses (id, survey_id, submitted_at) VALUES (?, ?, ?)`,
		resp["id"], id, resp["submittedAt"])
	if err != nil {
		fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	ok(w, resp)
}

// =============================================================================
// TOURS
// =============================================================================

type tourRow struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Destination string          `json:"destination"`
	StartDate   string          `json:"startDate,omitempty"`
	EndDate     string          `json:"endDate,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Capacity    int             `json:"capacity"`
	Remaining   int             `json:"remainingCapacity"`
	Status      string          `json:"status"`
}

func (s *Server) handleTourList(w http.ResponseWriter, r *http.Request) {
	page, size := pageParams(r)
	q := r.URL.Query()

	where := "WHERE 1=1"
	var args []any
	if v := q.Get("search"); v != "" {
		where += " AND title LIKE ?"
		args = append(args, "%"+v+"%")
	}
	if v := q.Get("destination"); v != "" {
		where += " AND destination = ?"
		args = append(args, v)
	}
	if v := q.Get("fromDate"); v != "" {
		where += " AND start_date >= ?"
		args = append(args, v)
	}
	if v := q.Get("toDate"); v != "" {
		where += " AND end_date <= ?"
		args = append(args, v)
	}

	total, limit, offset, err := s.store.countAndPage("SELECT COUNT(*) FROM tours "+where, args, page, size)
	if err != nil {
		fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	rows, err := s.store.db.Query(
		`SELECT id, title, COALESCE(destination, ''), COALESCE(start_date, ''), COALESCE(end_date, ''),
		        price, capacity, remaining, status
		 FROM tours `+where+` ORDER BY start_date LIMIT ? OFFSET ?`,
		append(args, limit, offset)...)
	if err != nil {
		fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer rows.Close()

	items := []tourRow{}
	for rows.Next() {
		var t tourRow
		var price string
		if err := rows.Scan(&t.ID, &t.Title, &t.Destination, &t.StartDate, &t.EndDate,
			&price, &t.Capacity, &t.Remaining, &t.Status); err != nil {
			fail(w, http.StatusInternalServerError, err.Error())
			return
		}
		t.Price, _ = decimal.NewFromString(price)
		items = append(items, t)
	}
	okPage(w, "items", items, page, size, total)
}

func (s *Server) handleTourDetails(w http.ResponseWriter, r *http.Request) {
	var t tourRow
	var price string
	err := s.store.db.QueryRow(
		`SELECT id, title, COALESCE(destination, ''), COALESCE(start_date, ''), COALESCE(end_date, ''),
		        price, capacity, remaining, status
		 FROM tours WHERE id = ?`, chi.URLParam(r, "id")).
		Scan(&t.ID, &t.Title, &t.Destination, &t.StartDate, &t.EndDate, &price, &t.Capacity, &t.Remaining, &t.Status)
	if err != nil {
		fail(w, http.StatusNotFound, "tour not found")
		return
	}
	t.Price, _ = decimal.NewFromString(price)
	ok(w, t)
}

func (s *Server) handleTourReservations(w http.ResponseWriter, r *http.Request) {
	page, size := pageParams(r)
	total, limit, offset, err := s.store.countAndPage(`SELECT COUNT(*) FROM tour_reservations`, nil, page, size)
	if err != nil {
		fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	rows, err := s.store.db.Query(
		`SELECT id, tour_id, travelers, total_price, status, COALESCE(reserved_at, '')
		 FROM tour_reservations ORDER BY reserved_at DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer rows.Close()

	type reservationRow struct {
		ID         string          `json:"id"`
		TourID     string          `json:"tourId"`
		Travelers  int             `json:"travelers"`
		TotalPrice decimal.Decimal `json:"totalPrice"`
		Status     string          `json:"status"`
		ReservedAt string          `json:"reservedAt,omitempty"`
	}
	items := []reservationRow{}
	for rows.Next() {
		var rr reservationRow
		var total string
		if err := rows.Scan(&rr.ID, &rr.TourID, &rr.Travelers, &total, &rr.Status, &rr.ReservedAt); err != nil {
			fail(w, http.StatusInternalServerError, err.Error())
			return
		}
		rr.TotalPrice, _ = decimal.NewFromString(total)
		items = append(items, rr)
	}
	okPage(w, "items", items, page, size, total)
}

func (s *Server) handleTourReserve(w http.ResponseWriter, r *http.Request) {
	var p struct {
		TourID    string `json:"tourId"`
		Travelers int    `json:"travelers"`
	}
	if err := decodeBody(r, &p); err != nil || p.TourID == "" || p.Travelers < 1 {
		fail(w, http.StatusBadRequest, "tour id and traveler count are required")
		return
	}
	var price string
	var remaining int
	err := s.store.db.QueryRow(`SELECT price, remaining FROM tours WHERE id = ? AND status = 'open'`, p.TourID).
		Scan(&price, &remaining)
	if err != nil {
		fail(w, http.StatusUnprocessableEntity, "tour is not open for reservation")
		return
	}
	if remaining < p.Travelers {
		fail(w, http.StatusUnprocessableEntity, "not enough remaining capacity")
		return
	}

	unit, _ := decimal.NewFromString(price)
	total := unit.Mul(decimal.NewFromInt(int64(p.Travelers)))
	id := uuid.NewString()
	reservedAt := nowISO()
	_, err = s.store.db.Exec(
		`INSERT INTO tour_reservations (id, tour_id, travelers, total_price, status, reserved_at)
		 VALUES (?, ?, ?, ?, 'reserved', ?)`,
		id, p.TourID, p.Travelers, total.String(), reservedAt)
	if err != nil {
		fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	_, _ = s.store.db.Exec(`UPDATE tours SET remaining = remaining - ? WHERE id = ?`, p.Travelers, p.TourID)

	ok(w, map[string]any{
		"id": id, "tourId": p.TourID, "travelers": p.Travelers,
		"totalPrice": total, "status": "reserved", "reservedAt": reservedAt,
	})
}

func (s *Server) handleTourCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var tourID string
	var travelers int
	err := s.store.db.QueryRow(`SELECT tour_id, travelers FROM tour_reservations WHERE id = ?`, id).
		Scan(&tourID, &travelers)
	if err != nil {
		fail(w, http.StatusNotFound, "reservation not found")
		return
	}
	_, _ = s.store.db.Exec(`DELETE FROM tour_reservations WHERE id = ?`, id)
	_, _ = s.store.db.Exec(`UPDATE tours SET remaining = remaining + ? WHERE id = ?`, travelers, tourID)
	ok(w, nil)
}

// =============================================================================
// ACCOMMODATIONS
// =============================================================================

type stayRow struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	City        string          `json:"city"`
	Kind        string          `json:"type"`
	NightlyRate decimal.Decimal `json:"nightlyRate"`
	Capacity    int             `json:"capacity"`
	Status      string          `json:"status"`
}

func (s *Server) handleStayList(w http.ResponseWriter, r *http.Request) {
	page, size := pageParams(r)
	q := r.URL.Query()

	where := "WHERE 1=1"
	var args []any
	if v := q.Get("search"); v != "" {
		where += " AND name LIKE ?"
		args = append(args, "%"+v+"%")
	}
	if v := q.Get("city"); v != "" {
		where += " AND city = ?"
		args = append(args, v)
	}
	if v := q.Get("guests"); v != "" {
		where += " AND capacity >= ?"
		args = append(args, v)
	}

	total, limit, offset, err := s.store.countAndPage("SELECT COUNT(*) FROM accommodations "+where, args, page, size)
	if err != nil {
		fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	rows, err := s.store.db.Query(
		`SELECT id, name, COALESCE(city, ''), COALESCE(type, ''), nightly_rate, capacity, status
		 FROM accommodations `+where+` ORDER BY id LIMIT ? OFFSET ?`,
		append(args, limit, offset)...)
	if err != nil {
		fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer rows.Close()

	items := []stayRow{}
	for rows.Next() {
		var a stayRow
		var rate string
		if err := rows.Scan(&a.ID, &a.Name, &a.City, &a.Kind, &rate, &a.Capacity, &a.Status); err != nil {
			fail(w, http.StatusInternalServerError, err.Error())
			return
		}
		a.NightlyRate, _ = decimal.NewFromString(rate)
		items = append(items, a)
	}
	okPage(w, "items", items, page, size, total)
}

func (s *Server) handleStayDetails(w http.ResponseWriter, r *http.Request) {
	var a stayRow
	var rate string
	err := s.store.db.QueryRow(
		`SELECT id, name, COALESCE(city, ''), COALESCE(type, ''), nightly_rate, capacity, status
		 FROM accommodations WHERE id = ?`, chi.URLParam(r, "id")).
		Scan(&a.ID, &a.Name, &a.City, &a.Kind, &rate, &a.Capacity, &a.Status)
	if err != nil {
		fail(w, http.StatusNotFound, "accommodation not found")
		return
	}
	a.NightlyRate, _ = decimal.NewFromString(rate)
	ok(w, a)
}

func (s *Server) handleStayReservations(w http.ResponseWriter, r *http.Request) {
	page, size := pageParams(r)
	total, limit, offset, err := s.store.countAndPage(`SELECT COUNT(*) FROM stay_reservations`, nil, page, size)
	if err != nil {
		fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	rows, err := s.store.db.Query(
		`SELECT id, accommodation_id, COALESCE(check_in, ''), COALESCE(check_out, ''), rooms, total_price, status
		 FROM stay_reservations ORDER BY check_in DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer rows.Close()

	type stayReservationRow struct {
		ID              string          `json:"id"`
		AccommodationID string          `json:"accommodationId"`
		CheckIn         string          `json:"checkIn"`
		CheckOut        string          `json:"checkOut"`
		Rooms           int             `json:"rooms"`
		TotalPrice      decimal.Decimal `json:"totalPrice"`
		Status          string          `json:"status"`
	}
	items := []stayReservationRow{}
	for rows.Next() {
		var sr stayReservationRow
		var total string
		if err := rows.Scan(&sr.ID, &sr.AccommodationID, &sr.CheckIn, &sr.CheckOut, &sr.Rooms, &total, &sr.Status); err != nil {
			fail(w, http.StatusInternalServerError, err.Error())
			return
		}
		sr.TotalPrice, _ = decimal.NewFromString(total)
		items = append(items, sr)
	}
	okPage(w, "items", items, page, size, total)
}

func (s *Server) handleStayReserve(w http.ResponseWriter, r *http.Request) {
	var p struct {
		AccommodationID string `json:"accommodationId"`
		CheckIn         string `json:"checkIn"`
		CheckOut        string `json:"checkOut"`
		Rooms           int    `json:"rooms"`
	}
	if err := decodeBody(r, &p); err != nil || p.AccommodationID == "" || p.CheckIn == "" || p.CheckOut == "" || p.Rooms < 1 {
		fail(w, http.StatusBadRequest, "accommodation id, dates and room count are required")
		return
	}
	var rate string
	err := s.store.db.QueryRow(
		`SELECT nightly_rate FROM accommodations WHERE id = ? AND status = 'available'`, p.AccommodationID).
		Scan(&rate)
	if err != nil {
		fail(w, http.StatusUnprocessableEntity, "accommodation is not available")
		return
	}

	nightly, _ := decimal.NewFromString(rate)
	nights := 1
	if in, errIn := time.Parse("2006-01-02", p.CheckIn); errIn == nil {
		if out, errOut := time.Parse("2006-01-02", p.CheckOut); errOut == nil && out.After(in) {
			nights = int(out.Sub(in).Hours() / 24)
		}
	}
	total := nightly.Mul(decimal.NewFromInt(int64(nights * p.Rooms)))
	id := uuid.NewString()
	_, err = s.store.db.Exec(
		`INSERT INTO stay_reservations (id, accommodation_id, check_in, check_out, rooms, total_price, status)
		 VALUES (?, ?, ?, ?, ?, ?, 'reserved')`,
		id, p.AccommodationID, p.CheckIn, p.CheckOut, p.Rooms, total.String())
	if err != nil {
		fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	ok(w, map[string]any{
		"id": id, "accommodationId": p.AccommodationID, "checkIn": p.CheckIn,
		"checkOut": p.CheckOut, "rooms": p.Rooms, "totalPrice": total, "status": "reserved",
	})
}

func (s *Server) handleStayCancel(w http.ResponseWriter, r *http.Request) {
	res, err := s.store.db.Exec(`DELETE FROM stay_reservations WHERE id = ?`, chi.URLParam(r, "id"))
	if err != nil {
		fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		fail(w, http.StatusNotFound, "reservation not found")
		return
	}
	ok(w, nil)
}

// =============================================================================
// BILLS
// =============================================================================

type billRow struct {
	ID        string          `json:"id"`
	Kind      string          `json:"type"`
	Amount    decimal.Decimal `json:"amount"`
	Status    string          `json:"status"`
	IssuedAt  string          `json:"issuedAt,omitempty"`
	DueDate   string          `json:"dueDate,omitempty"`
	PaymentID string          `json:"paymentId,omitempty"`
}

func (s *Server) scanBill(scan func(dest ...any) error) (billRow, error) {
	var b billRow
	var amount string
	err := scan(&b.ID, &b.Kind, &amount, &b.Status, &b.IssuedAt, &b.DueDate, &b.PaymentID)
	if err != nil {
		return b, err
	}
	b.Amount, _ = decimal.NewFromString(amount)
	return b, nil
}

const billColumns = `id, type, amount, status, COALESCE(issued_at, ''), COALESCE(due_date, ''), COALESCE(payment_id, '')`

func (s *Server) handleBillList(w http.ResponseWriter, r *http.Request) {
	page, size := pageParams(r)
	q := r.URL.Query()

	where := "WHERE 1=1"
	var args []any
	if v := q.Get("status"); v != "" {
		where += " AND status = ?"
		args = append(args, v)
	}
	if v := q.Get("type"); v != "" {
		where += " AND type = ?"
		args = append(args, v)
	}

	total, limit, offset, err := s.store.countAndPage("SELECT COUNT(*) FROM bills "+where, args, page, size)
	if err != nil {
		fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	rows, err := s.store.db.Query(
		`SELECT `+billColumns+` FROM bills `+where+` ORDER BY due_date LIMIT ? OFFSET ?`,
		append(args, limit, offset)...)
	if err != nil {
		fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer rows.Close()

	items := []billRow{}
	for rows.Next() {
		b, err := s.scanBill(rows.Scan)
		if err != nil {
			fail(w, http.StatusInternalServerError, err.Error())
			return
		}
		items = append(items, b)
	}
	okPage(w, "items", items, page, size, total)
}

func (s *Server) handleBillDetails(w http.ResponseWriter, r *http.Request) {
	b, err := s.scanBill(s.store.db.QueryRow(
		`SELECT `+billColumns+` FROM bills WHERE id = ?`, chi.URLParam(r, "id")).Scan)
	if err != nil {
		fail(w, http.StatusNotFound, "bill not found")
		return
	}
	ok(w, b)
}

func (s *Server) handleBillPay(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	b, err := s.scanBill(s.store.db.QueryRow(
		`SELECT `+billColumns+` FROM bills WHERE id = ?`, id).Scan)
	if err != nil {
		fail(w, http.StatusNotFound, "bill not found")
		return
	}
	if b.Status == "paid" {
		fail(w, http.StatusUnprocessableEntity, "bill is already paid")
		return
	}

	paymentID, err := s.debitWallet(b.Amount, id, "bill")
	if err != nil {
		fail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	_, _ = s.store.db.Exec(`UPDATE bills SET status = 'paid', payment_id = ? WHERE id = ?`, paymentID, id)
	b.Status = "paid"
	b.PaymentID = paymentID
	ok(w, b)
}

// =============================================================================
// WALLET AND PAYMENTS
// =============================================================================

func (s *Server) walletBalance() (decimal.Decimal, error) {
	var balance string
	if err := s.store.db.QueryRow(`SELECT balance FROM wallet WHERE id = 'w-1'`).Scan(&balance); err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(balance)
}

func (s *Server) setWalletBalance(b decimal.Decimal) {
	_, _ = s.store.db.Exec(`UPDATE wallet SET balance = ?, last_updated = ? WHERE id = 'w-1'`, b.String(), nowISO())
}

// debitWallet charges the wallet, records the payment and its transaction,
// and returns the payment id. Fails when the balance does not cover the
// amount.
func (s *Server) debitWallet(amount decimal.Decimal, target, targetKind string) (string, error) {
	balance, err := s.walletBalance()
	if err != nil {
		return "", err
	}
	if balance.LessThan(amount) {
		return "", fmt.Errorf("insufficient wallet balance")
	}
	s.setWalletBalance(balance.Sub(amount))

	paymentID := uuid.NewString()
	paidAt := nowISO()
	_, err = s.store.db.Exec(
		`INSERT INTO payments (id, amount, target, target_type, status, tracking_ref, paid_at)
		 VALUES (?, ?, ?, ?, 'paid', ?, ?)`,
		paymentID, amount.String(), target, targetKind,
		fmt.Sprintf("PR-%d", time.Now().UnixMilli()%100000), paidAt)
	if err != nil {
		return "", err
	}
	_, _ = s.store.db.Exec(
		`INSERT INTO wallet_transactions (id, type, amount, description, reference, created_at)
		 VALUES (?, 'payment', ?, ?, ?, ?)`,
		uuid.NewString(), amount.Neg().String(), targetKind, paymentID, paidAt)
	return paymentID, nil
}

func (s *Server) handleWallet(w http.ResponseWriter, r *http.Request) {
	var userID, balance, currency, updated string
	err := s.store.db.QueryRow(
		`SELECT user_id, balance, currency, COALESCE(last_updated, '') FROM wallet WHERE id = 'w-1'`).
		Scan(&userID, &balance, &currency, &updated)
	if err != nil {
		fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	b, _ := decimal.NewFromString(balance)
	ok(w, map[string]any{
		"id": "w-1", "userId": userID, "balance": b, "currency": currency, "lastUpdated": updated,
	})
}

func (s *Server) handleWalletTransactions(w http.ResponseWriter, r *http.Request) {
	page, size := pageParams(r)
	where := "WHERE 1=1"
	var args []any
	if v := r.URL.Query().Get("type"); v != "" {
		where += " AND type = ?"
		args = append(args, v)
	}
	total, limit, offset, err := s.store.countAndPage("SELECT COUNT(*) FROM wallet_transactions "+where, args, page, size)
	if err != nil {
		fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	rows, err := s.store.db.Query(
		`SELECT id, type, amount, COALESCE(description, ''), COALESCE(reference, ''), COALESCE(created_at, '')
		 FROM wallet_transactions `+where+` ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		append(args, limit, offset)...)
	if err != nil {
		fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer rows.Close()

	type txRow struct {
		ID          string          `json:"id"`
		Kind        string          `json:"type"`
		Amount      decimal.Decimal `json:"amount"`
		Description string          `json:"description,omitempty"`
		Reference   string          `json:"reference,omitempty"`
		CreatedAt   string          `json:"createdAt,omitempty"`
	}
	items := []txRow{}
	for rows.Next() {
		var tx txRow
		var amount string
		if err := rows.Scan(&tx.ID, &tx.Kind, &amount, &tx.Description, &tx.Reference, &tx.CreatedAt); err != nil {
			fail(w, http.StatusInternalServerError, err.Error())
			return
		}
		tx.Amount, _ = decimal.NewFromString(amount)
		items = append(items, tx)
	}
	okPage(w, "items", items, page, size, total)
}

func (s *Server) handleWalletDeposit(w http.ResponseWriter, r *http.Request) {
	var p struct {
		Amount      decimal.Decimal `json:"amount"`
		GatewayRef  string          `json:"gatewayRef"`
		Description string          `json:"description"`
	}
	if err := decodeBody(r, &p); err != nil || !p.Amount.IsPositive() {
		fail(w, http.StatusBadRequest, "deposit amount must be positive")
		return
	}
	balance, err := s.walletBalance()
	if err != nil {
		fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.setWalletBalance(balance.Add(p.Amount))

	tx := map[string]any{
		"id":          uuid.NewString(),
		"type":        "deposit",
		"amount":      p.Amount,
		"description": p.Description,
		"reference":   p.GatewayRef,
		"createdAt":   nowISO(),
	}
	_, err = s.store.db.Exec(
		`INSERT INTO wallet_transactions (id, type, amount, description, reference, created_at)
		 VALUES (?, 'deposit', ?, ?, ?, ?)`,
		tx["id"], p.Amount.String(), p.Description, p.GatewayRef, tx["createdAt"])
	if err != nil {
		fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	ok(w, tx)
}

type paymentRow struct {
	ID          string          `json:"id"`
	Amount      decimal.Decimal `json:"amount"`
	Target      string          `json:"target"`
	TargetKind  string          `json:"targetType,omitempty"`
	Status      string          `json:"status"`
	TrackingRef string          `json:"trackingRef,omitempty"`
	PaidAt      string          `json:"paidAt,omitempty"`
}

const paymentColumns = `id, amount, COALESCE(target, ''), COALESCE(target_type, ''), status, COALESCE(tracking_ref, ''), COALESCE(paid_at, '')`

func scanPayment(scan func(dest ...any) error) (paymentRow, error) {
	var p paymentRow
	var amount string
	err := scan(&p.ID, &amount, &p.Target, &p.TargetKind, &p.Status, &p.TrackingRef, &p.PaidAt)
	if err != nil {
		return p, err
	}
	p.Amount, _ = decimal.NewFromString(amount)
	return p, nil
}

func (s *Server) handlePaymentList(w http.ResponseWriter, r *http.Request) {
	page, size := pageParams(r)
	where := "WHERE 1=1"
	var args []any
	if v := r.URL.Query().Get("status"); v != "" {
		where += " AND status = ?"
		args = append(args, v)
	}
	total, limit, offset, err := s.store.countAndPage("SELECT COUNT(*) FROM payments "+where, args, page, size)
	if err != nil {
		fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	rows, err := s.store.db.Query(
		`SELECT `+paymentColumns+` FROM payments `+where+` ORDER BY paid_at DESC LIMIT ? OFFSET ?`,
		append(args, limit, offset)...)
	if err != nil {
		fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer rows.Close()

	items := []paymentRow{}
	for rows.Next() {
		p, err := scanPayment(rows.Scan)
		if err != nil {
			fail(w, http.StatusInternalServerError, err.Error())
			return
		}
		items = append(items, p)
	}
	okPage(w, "items", items, page, size, total)
}

func (s *Server) handlePaymentDetails(w http.ResponseWriter, r *http.Request) {
	p, err := scanPayment(s.store.db.QueryRow(
		`SELECT `+paymentColumns+` FROM payments WHERE id = ?`, chi.URLParam(r, "id")).Scan)
	if err != nil {
		fail(w, http.StatusNotFound, "payment not found")
		return
	}
	ok(w, p)
}

func (s *Server) handlePayWithWallet(w http.ResponseWriter, r *http.Request) {
	var p struct {
		Amount     decimal.Decimal `json:"amount"`
		Target     string          `json:"target"`
		TargetKind string          `json:"targetType"`
	}
	if err := decodeBody(r, &p); err != nil || p.Target == "" || !p.Amount.IsPositive() {
		fail(w, http.StatusBadRequest, "target and a positive amount are required")
		return
	}
	paymentID, err := s.debitWallet(p.Amount, p.Target, p.TargetKind)
	if err != nil {
		fail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	rec, err := scanPayment(s.store.db.QueryRow(
		`SELECT `+paymentColumns+` FROM payments WHERE id = ?`, paymentID).Scan)
	if err != nil {
		fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	ok(w, rec)
}

func (s *Server) handlePaymentVerify(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	_, err := s.store.db.Exec(`UPDATE payments SET status = 'paid' WHERE id = ? AND status = 'verifying'`, id)
	if err != nil {
		fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	p, err := scanPayment(s.store.db.QueryRow(
		`SELECT `+paymentColumns+` FROM payments WHERE id = ?`, id).Scan)
	if err != nil {
		fail(w, http.StatusNotFound, "payment not found")
		return
	}
	ok(w, p)
}

// =============================================================================
// DISCOUNTS
// =============================================================================

type discountRow struct {
	ID        string          `json:"id"`
	Code      string          `json:"code"`
	Title     string          `json:"title"`
	Percent   int             `json:"percent,omitempty"`
	Amount    decimal.Decimal `json:"amount,omitempty"`
	ExpiresAt string          `json:"expiresAt,omitempty"`
	Redeemed  bool            `json:"redeemed"`
}

const discountColumns = `id, code, COALESCE(title, ''), percent, amount, COALESCE(expires_at, ''), redeemed`

func scanDiscount(scan func(dest ...any) error) (discountRow, error) {
	var d discountRow
	var amount string
	var redeemed int
	err := scan(&d.ID, &d.Code, &d.Title, &d.Percent, &amount, &d.ExpiresAt, &redeemed)
	if err != nil {
		return d, err
	}
	d.Amount, _ = decimal.NewFromString(amount)
	d.Redeemed = redeemed != 0
	return d, nil
}

func (s *Server) handleDiscountList(w http.ResponseWriter, r *http.Request) {
	page, size := pageParams(r)
	where := "WHERE 1=1"
	var args []any
	if r.URL.Query().Get("active") == "true" {
		where += " AND redeemed = 0"
	}
	total, limit, offset, err := s.store.countAndPage("SELECT COUNT(*) FROM discounts "+where, args, page, size)
	if err != nil {
		fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	rows, err := s.store.db.Query(
		`SELECT `+discountColumns+` FROM discounts `+where+` ORDER BY id LIMIT ? OFFSET ?`,
		append(args, limit, offset)...)
	if err != nil {
		fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer rows.Close()

	items := []discountRow{}
	for rows.Next() {
		d, err := scanDiscount(rows.Scan)
		if err != nil {
			fail(w, http.StatusInternalServerError, err.Error())
			return
		}
		items = append(items, d)
	}
	okPage(w, "items", items, page, size, total)
}

func (s *Server) handleDiscountRedeem(w http.ResponseWriter, r *http.Request) {
	var p struct {
		Code string `json:"code"`
	}
	if err := decodeBody(r, &p); err != nil || p.Code == "" {
		fail(w, http.StatusBadRequest, "discount code is required")
		return
	}
	d, err := scanDiscount(s.store.db.QueryRow(
		`SELECT `+discountColumns+` FROM discounts WHERE code = ?`, p.Code).Scan)
	if err != nil {
		fail(w, http.StatusNotFound, "discount code not found")
		return
	}
	if d.Redeemed {
		fail(w, http.StatusUnprocessableEntity, "discount code already redeemed")
		return
	}
	_, _ = s.store.db.Exec(`UPDATE discounts SET redeemed = 1 WHERE id = ?`, d.ID)
	d.Redeemed = true

	// Flat-amount codes credit the wallet directly.
	if d.Amount.IsPositive() {
		if balance, err := s.walletBalance(); err == nil {
			s.setWalletBalance(balance.Add(d.Amount))
			_, _ = s.store.db.Exec(
				`INSERT INTO wallet_transactions (id, type, amount, description, reference, created_at)
				 VALUES (?, 'refund', ?, ?, ?, ?)`,
				uuid.NewString(), d.Amount.String(), "discount credit", d.Code, nowISO())
		}
	}
	ok(w, d)
}

// =============================================================================
// NOTIFICATIONS
// =============================================================================

func (s *Server) handleNotificationList(w http.ResponseWriter, r *http.Request) {
	page, size := pageParams(r)
	where := "WHERE 1=1"
	var args []any
	if r.URL.Query().Get("unread") == "true" {
		where += " AND read = 0"
	}
	total, limit, offset, err := s.store.countAndPage("SELECT COUNT(*) FROM notifications "+where, args, page, size)
	if err != nil {
		fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	rows, err := s.store.db.Query(
		`SELECT id, title, COALESCE(body, ''), COALESCE(type, ''), read, COALESCE(created_at, '')
		 FROM notifications `+where+` ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		append(args, limit, offset)...)
	if err != nil {
		fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer rows.Close()

	type notificationRow struct {
		ID        string `json:"id"`
		Title     string `json:"title"`
		Body      string `json:"body,omitempty"`
		Kind      string `json:"type,omitempty"`
		Read      bool   `json:"read"`
		CreatedAt string `json:"createdAt,omitempty"`
	}
	items := []notificationRow{}
	for rows.Next() {
		var n notificationRow
		var read int
		if err := rows.Scan(&n.ID, &n.Title, &n.Body, &n.Kind, &read, &n.CreatedAt); err != nil {
			fail(w, http.StatusInternalServerError, err.Error())
			return
		}
		n.Read = read != 0
		items = append(items, n)
	}
	okPage(w, "items", items, page, size, total)
}

func (s *Server) handleUnreadCount(w http.ResponseWriter, r *http.Request) {
	var count int
	if err := s.store.db.QueryRow(`SELECT COUNT(*) FROM notifications WHERE read = 0`).Scan(&count); err != nil {
		fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	ok(w, map[string]any{"count": count})
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	res, err := s.store.db.Exec(`UPDATE notifications SET read = 1 WHERE id = ?`, chi.URLParam(r, "id"))
	if err != nil {
		fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		fail(w, http.StatusNotFound, "notification not found")
		return
	}
	ok(w, nil)
}

func (s *Server) handleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	if _, err := s.store.db.Exec(`UPDATE notifications SET read = 1`); err != nil {
		fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	ok(w, nil)
}

// =============================================================================
// MEMBERS
// =============================================================================

func (s *Server) memberPayload() (map[string]any, error) {
	var id, nationalID, first, last, email, phone, number, joined string
	err := s.store.db.QueryRow(
		`SELECT id, COALESCE(national_id, ''), COALESCE(first_name, ''), COALESCE(last_name, ''),
		        COALESCE(email, ''), COALESCE(phone, ''), COALESCE(member_number, ''), COALESCE(joined_at, '')
		 FROM member LIMIT 1`).
		Scan(&id, &nationalID, &first, &last, &email, &phone, &number, &joined)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"id": id, "nationalId": nationalID, "firstName": first, "lastName": last,
		"email": email, "phone": phone, "memberNumber": number, "joinedAt": joined,
	}, nil
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	m, err := s.memberPayload()
	if err != nil {
		fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	ok(w, m)
}

func (s *Server) handleProfileUpdate(w http.ResponseWriter, r *http.Request) {
	var p struct {
		FirstName string `json:"firstName"`
		LastName  string `json:"lastName"`
		Email     string `json:"email"`
		Phone     string `json:"phone"`
	}
	if err := decodeBody(r, &p); err != nil || p.FirstName == "" || p.LastName == "" {
		fail(w, http.StatusBadRequest, "first and last name are required")
		return
	}
	_, err := s.store.db.Exec(
		`UPDATE member SET first_name = ?, last_name = ?, email = ?, phone = ?`,
		p.FirstName, p.LastName, p.Email, p.Phone)
	if err != nil {
		fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	m, err := s.memberPayload()
	if err != nil {
		fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	ok(w, m)
}

func (s *Server) handleDependents(w http.ResponseWriter, r *http.Request) {
	rows, err := s.store.db.Query(
		`SELECT id, COALESCE(name, ''), COALESCE(relation, ''), COALESCE(birth_date, '') FROM dependents ORDER BY id`)
	if err != nil {
		fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer rows.Close()

	type dependentRow struct {
		ID        string `json:"id"`
		Name      string `json:"name"`
		Relation  string `json:"relation"`
		BirthDate string `json:"birthDate,omitempty"`
	}
	items := []dependentRow{}
	for rows.Next() {
		var d dependentRow
		if err := rows.Scan(&d.ID, &d.Name, &d.Relation, &d.BirthDate); err != nil {
			fail(w, http.StatusInternalServerError, err.Error())
			return
		}
		items = append(items, d)
	}
	ok(w, items)
}
