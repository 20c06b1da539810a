package handlers

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kozaktomas/class-attendance/internal/attendance"
	"github.com/kozaktomas/class-attendance/internal/database"
	"github.com/kozaktomas/class-attendance/internal/facedetect"
)

func TestSessionsCreate(t *testing.T) {
	handler := newFixture(t).sessionsHandler()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions", strings.NewReader(`{"classId":"class-1"}`))
	rec := httptest.NewRecorder()
	handler.Create(rec, req)

	assertStatusCode(t, rec, http.StatusCreated)
	var session sessionResponse
	parseJSONResponse(t, rec, &session)
	if session.ID == "" || session.ClassID != "class-1" || session.Status != "active" {
		t.Errorf("session response %+v", session)
	}
	if !session.OnTimeDeadline.Equal(session.StartTime.Add(30 * time.Minute)) {
		t.Errorf("deadline %s not 30 minutes after start %s", session.OnTimeDeadline, session.StartTime)
	}
}

func TestSessionsCreate_BadRequests(t *testing.T) {
	handler := newFixture(t).sessionsHandler()

	for name, body := range map[string]string{
		"malformed json":  "{nope",
		"missing classId": "{}",
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions", strings.NewReader(body))
			rec := httptest.NewRecorder()
			handler.Create(rec, req)
			assertStatusCode(t, rec, http.StatusBadRequest)
		})
	}
}

func TestSessionsGet_NotFound(t *testing.T) {
	handler := newFixture(t).sessionsHandler()

	req := requestWithChiParams(httptest.NewRequest(http.MethodGet, "/api/v1/sessions/ghost", nil), map[string]string{"id": "ghost"})
	rec := httptest.NewRecorder()
	handler.Get(rec, req)
	assertStatusCode(t, rec, http.StatusNotFound)
}

func TestSessionsEnd(t *testing.T) {
	f := newFixture(t)
	handler := f.sessionsHandler()
	session, err := f.manager.StartSession(context.Background(), "class-1", time.Now(), 0)
	if err != nil {
		t.Fatalf("could not start session: %v", err)
	}

	req := requestWithChiParams(httptest.NewRequest(http.MethodPost, "/end", nil), map[string]string{"id": session.ID})
	rec := httptest.NewRecorder()
	handler.End(rec, req)
	assertStatusCode(t, rec, http.StatusOK)

	var ended sessionResponse
	parseJSONResponse(t, rec, &ended)
	if ended.Status != "ended" {
		t.Errorf("status %q, want ended", ended.Status)
	}

	rec = httptest.NewRecorder()
	handler.End(rec, requestWithChiParams(httptest.NewRequest(http.MethodPost, "/end", nil), map[string]string{"id": session.ID}))
	assertStatusCode(t, rec, http.StatusConflict)
}

func TestSessionsRecords(t *testing.T) {
	f := newFixture(t)
	handler := f.sessionsHandler()
	ctx := context.Background()

	f.store.AddStudent("student-1", "Jan Novák", "class-1", []float32{1, 0})
	f.store.AddStudent("student-2", "Petra Malá", "class-1", []float32{0, 1})

	start := time.Now().Add(-time.Hour)
	session, err := f.manager.StartSession(ctx, "class-1", start, 2*time.Hour)
	if err != nil {
		t.Fatalf("could not start session: %v", err)
	}
	if _, err := f.manager.RecordMatch(ctx, session.ID, "student-1", start.Add(5*time.Minute), 0.9, 0.8); err != nil {
		t.Fatalf("check-in failed: %v", err)
	}

	req := requestWithChiParams(httptest.NewRequest(http.MethodGet, "/records", nil), map[string]string{"id": session.ID})
	rec := httptest.NewRecorder()
	handler.Records(rec, req)
	assertStatusCode(t, rec, http.StatusOK)

	var response struct {
		Records []recordResponse   `json:"records"`
		Summary attendance.Summary `json:"summary"`
	}
	parseJSONResponse(t, rec, &response)
	if len(response.Records) != 1 || response.Records[0].StudentID != "student-1" {
		t.Errorf("records %+v", response.Records)
	}
	want := attendance.Summary{Total: 2, Present: 1, Late: 0, Absent: 1}
	if response.Summary != want {
		t.Errorf("summary %+v, want %+v", response.Summary, want)
	}
}

func checkInRequest(sessionID string, photo []byte) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/checkin", bytes.NewReader(photo))
	req.Header.Set("Content-Type", "image/jpeg")
	return requestWithChiParams(req, map[string]string{"id": sessionID})
}

func TestSessionsCheckIn(t *testing.T) {
	f := newFixture(t)
	handler := f.sessionsHandler()
	ctx := context.Background()

	f.store.AddStudent("student-1", "Jan Novák", "class-1", []float32{1, 0})
	f.detector.faces["jan.jpg"] = []facedetect.Face{{Embedding: []float32{1, 0}, DetScore: 0.99}}

	session, err := f.manager.StartSession(ctx, "class-1", time.Now(), 0)
	if err != nil {
		t.Fatalf("could not start session: %v", err)
	}

	rec := httptest.NewRecorder()
	handler.CheckIn(rec, checkInRequest(session.ID, []byte("jan.jpg")))
	assertStatusCode(t, rec, http.StatusCreated)

	var result struct {
		StudentID       string  `json:"studentId"`
		Score           float64 `json:"score"`
		Status          string  `json:"status"`
		AlreadyRecorded bool    `json:"alreadyRecorded"`
	}
	parseJSONResponse(t, rec, &result)
	if result.StudentID != "student-1" || result.Status != string(database.AttendancePresent) || result.AlreadyRecorded {
		t.Errorf("check-in response %+v", result)
	}

	// Second check-in is a benign no-op.
	rec = httptest.NewRecorder()
	handler.CheckIn(rec, checkInRequest(session.ID, []byte("jan.jpg")))
	assertStatusCode(t, rec, http.StatusOK)
	parseJSONResponse(t, rec, &result)
	if !result.AlreadyRecorded {
		t.Errorf("repeat check-in response %+v", result)
	}
}

func TestSessionsCheckIn_Rejections(t *testing.T) {
	f := newFixture(t)
	handler := f.sessionsHandler()
	ctx := context.Background()

	f.store.AddStudent("student-1", "Jan Novák", "class-1", []float32{1, 0})
	f.detector.faces["crowd.jpg"] = []facedetect.Face{
		{Embedding: []float32{1, 0}},
		{Embedding: []float32{0, 1}},
	}
	f.detector.faces["stranger.jpg"] = []facedetect.Face{{Embedding: []float32{-1, 0}}}

	session, err := f.manager.StartSession(ctx, "class-1", time.Now(), 0)
	if err != nil {
		t.Fatalf("could not start session: %v", err)
	}

	tests := []struct {
		name       string
		sessionID  string
		photo      []byte
		wantStatus int
	}{
		{"no face", session.ID, []byte("empty.jpg"), http.StatusUnprocessableEntity},
		{"crowd shot", session.ID, []byte("crowd.jpg"), http.StatusUnprocessableEntity},
		{"no matching student", session.ID, []byte("stranger.jpg"), http.StatusNotFound},
		{"unknown session", "ghost", []byte("jan.jpg"), http.StatusNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler.CheckIn(rec, checkInRequest(tc.sessionID, tc.photo))
			assertStatusCode(t, rec, tc.wantStatus)
		})
	}
}

func TestSessionsCheckIn_EndedSession(t *testing.T) {
	f := newFixture(t)
	handler := f.sessionsHandler()
	ctx := context.Background()

	session, err := f.manager.StartSession(ctx, "class-1", time.Now(), 0)
	if err != nil {
		t.Fatalf("could not start session: %v", err)
	}
	if _, err := f.manager.EndSession(ctx, session.ID); err != nil {
		t.Fatalf("could not end session: %v", err)
	}

	rec := httptest.NewRecorder()
	handler.CheckIn(rec, checkInRequest(session.ID, []byte("jan.jpg")))
	assertStatusCode(t, rec, http.StatusConflict)
}
