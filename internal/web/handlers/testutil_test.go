package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/class-attendance/internal/attendance"
	"github.com/kozaktomas/class-attendance/internal/config"
	"github.com/kozaktomas/class-attendance/internal/database/mock"
	"github.com/kozaktomas/class-attendance/internal/facedetect"
	"github.com/kozaktomas/class-attendance/internal/scheduler"
	"github.com/kozaktomas/class-attendance/internal/verification"
)

// stubDetector returns canned faces keyed by the raw photo bytes.
type stubDetector struct {
	faces map[string][]facedetect.Face
}

func (d *stubDetector) DetectAndEncode(ctx context.Context, imageData []byte) ([]facedetect.Face, error) {
	faces, ok := d.faces[string(imageData)]
	if !ok || len(faces) == 0 {
		return nil, facedetect.ErrNoFaceFound
	}
	return faces, nil
}

func (d *stubDetector) DetectSingle(ctx context.Context, imageData []byte) (facedetect.Face, error) {
	faces, err := d.DetectAndEncode(ctx, imageData)
	if err != nil {
		return facedetect.Face{}, err
	}
	if len(faces) > 1 {
		return facedetect.Face{}, facedetect.ErrMultipleFacesFound
	}
	return faces[0], nil
}

type fixture struct {
	store    *mock.Store
	manager  *attendance.Manager
	caches   *verification.CacheManager
	schedule *scheduler.Schedule
	detector *stubDetector
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := mock.NewStore()
	schedule, err := scheduler.NewSchedule([]config.PhaseConfig{
		{FromMinutes: 0, Rank: 1, Threshold: 0.75, BudgetSeconds: 3, Workers: 4, Persist: "always"},
		{FromMinutes: 10, Rank: 2, Threshold: 0.70, BudgetSeconds: 5, Workers: 3, Persist: "always"},
	})
	if err != nil {
		t.Fatalf("could not build schedule: %v", err)
	}
	return &fixture{
		store:    store,
		manager:  attendance.NewManager(store, 30*time.Minute, 2*time.Hour),
		caches:   verification.NewCacheManager(store),
		schedule: schedule,
		detector: &stubDetector{faces: make(map[string][]facedetect.Face)},
	}
}

func (f *fixture) sessionsHandler() *SessionsHandler {
	return NewSessionsHandler(f.manager, f.detector, f.caches, f.schedule)
}

func (f *fixture) studentsHandler() *StudentsHandler {
	return NewStudentsHandler(f.store, f.detector, f.caches)
}

// requestWithChiParams creates a request with chi URL parameters.
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseJSONResponse parses a JSON response body into the target type.
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code.
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, want int) {
	t.Helper()
	if recorder.Code != want {
		t.Fatalf("status %d, want %d\nBody: %s", recorder.Code, want, recorder.Body.String())
	}
}

// multipartPhoto builds a multipart body with a photo and form fields.
func multipartPhoto(t *testing.T, photo []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("photo", "face.jpg")
	if err != nil {
		t.Fatalf("could not create form file: %v", err)
	}
	if _, err := part.Write(photo); err != nil {
		t.Fatalf("could not write photo: %v", err)
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			t.Fatalf("could not write field %s: %v", key, err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("could not close writer: %v", err)
	}
	return &buf, writer.FormDataContentType()
}
