package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/class-attendance/internal/attendance"
	"github.com/kozaktomas/class-attendance/internal/database"
	"github.com/kozaktomas/class-attendance/internal/facedetect"
	"github.com/kozaktomas/class-attendance/internal/scheduler"
	"github.com/kozaktomas/class-attendance/internal/verification"
)

// maxCheckInPhotoSize caps the uploaded photo for a manual check-in.
const maxCheckInPhotoSize = 10 << 20

// SessionsHandler handles attendance session endpoints.
type SessionsHandler struct {
	manager  *attendance.Manager
	detector facedetect.Detector
	caches   *verification.CacheManager
	schedule *scheduler.Schedule
}

// NewSessionsHandler creates a sessions handler.
func NewSessionsHandler(manager *attendance.Manager, detector facedetect.Detector, caches *verification.CacheManager, schedule *scheduler.Schedule) *SessionsHandler {
	return &SessionsHandler{
		manager:  manager,
		detector: detector,
		caches:   caches,
		schedule: schedule,
	}
}

type sessionResponse struct {
	ID             string    `json:"id"`
	ClassID        string    `json:"classId"`
	StartTime      time.Time `json:"startTime"`
	EndTime        time.Time `json:"endTime"`
	OnTimeDeadline time.Time `json:"onTimeDeadline"`
	Status         string    `json:"status"`
}

func toSessionResponse(session *database.Session) sessionResponse {
	return sessionResponse{
		ID:             session.ID,
		ClassID:        session.ClassID,
		StartTime:      session.StartTime,
		EndTime:        session.EndTime,
		OnTimeDeadline: session.OnTimeDeadline,
		Status:         string(session.Status),
	}
}

type recordResponse struct {
	StudentID    string    `json:"studentId"`
	CheckInTime  time.Time `json:"checkInTime"`
	Status       string    `json:"status"`
	MatchScore   float64   `json:"matchScore"`
	QualityScore float64   `json:"qualityScore"`
}

func toRecordResponse(record database.AttendanceRecord) recordResponse {
	return recordResponse{
		StudentID:    record.StudentID,
		CheckInTime:  record.CheckInTime,
		Status:       string(record.Status),
		MatchScore:   record.MatchScore,
		QualityScore: record.QualityScore,
	}
}

// Create handles POST /api/v1/sessions.
func (h *SessionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ClassID         string    `json:"classId"`
		StartTime       time.Time `json:"startTime"`
		DurationMinutes int       `json:"durationMinutes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.ClassID == "" {
		respondError(w, http.StatusBadRequest, "classId is required")
		return
	}

	session, err := h.manager.StartSession(r.Context(), req.ClassID, req.StartTime, time.Duration(req.DurationMinutes)*time.Minute)
	if err != nil {
		log.Printf("could not start session for class %s: %v", sanitizeForLog(req.ClassID), err)
		respondError(w, http.StatusInternalServerError, "could not start session")
		return
	}
	respondJSON(w, http.StatusCreated, toSessionResponse(session))
}

// Get handles GET /api/v1/sessions/{id}.
func (h *SessionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	session, err := h.manager.GetSession(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, attendance.ErrSessionNotFound) {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "could not load session")
		return
	}
	respondJSON(w, http.StatusOK, toSessionResponse(session))
}

// End handles POST /api/v1/sessions/{id}/end.
func (h *SessionsHandler) End(w http.ResponseWriter, r *http.Request) {
	session, err := h.manager.EndSession(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, attendance.ErrSessionNotFound):
		respondError(w, http.StatusNotFound, "session not found")
		return
	case errors.Is(err, attendance.ErrSessionEnded):
		respondError(w, http.StatusConflict, "session already ended")
		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, "could not end session")
		return
	}
	respondJSON(w, http.StatusOK, toSessionResponse(session))
}

// Records handles GET /api/v1/sessions/{id}/records.
func (h *SessionsHandler) Records(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	records, err := h.manager.Records(r.Context(), sessionID)
	if errors.Is(err, attendance.ErrSessionNotFound) {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "could not load records")
		return
	}
	summary, err := h.manager.Summarize(r.Context(), sessionID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "could not summarize session")
		return
	}

	response := struct {
		Records []recordResponse    `json:"records"`
		Summary *attendance.Summary `json:"summary"`
	}{
		Records: make([]recordResponse, 0, len(records)),
		Summary: summary,
	}
	for _, record := range records {
		response.Records = append(response.Records, toRecordResponse(record))
	}
	respondJSON(w, http.StatusOK, response)
}

// CheckIn handles POST /api/v1/sessions/{id}/checkin: a single-shot manual
// check-in with an uploaded photo. The photo must contain exactly one
// face; a crowd shot is rejected.
func (h *SessionsHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	session, err := h.manager.GetSession(r.Context(), sessionID)
	if errors.Is(err, attendance.ErrSessionNotFound) {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "could not load session")
		return
	}
	if session.Status != database.SessionActive {
		respondError(w, http.StatusConflict, "session has ended")
		return
	}

	photo, err := readPhoto(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	face, err := h.detector.DetectSingle(r.Context(), photo)
	switch {
	case errors.Is(err, facedetect.ErrNoFaceFound):
		respondError(w, http.StatusUnprocessableEntity, "no face detected in photo")
		return
	case errors.Is(err, facedetect.ErrMultipleFacesFound):
		respondError(w, http.StatusUnprocessableEntity, "photo must contain exactly one face")
		return
	case err != nil:
		log.Printf("check-in detection failed for session %s: %v", sanitizeForLog(sessionID), err)
		respondError(w, http.StatusBadGateway, "face detection unavailable")
		return
	}

	cache, err := h.caches.ForClass(r.Context(), session.ClassID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "could not load class enrollments")
		return
	}

	threshold := h.schedule.PhaseFor(time.Since(session.StartTime)).Threshold
	match := verification.ResolveFace(cache, face.Embedding, threshold)
	if match == nil {
		respondError(w, http.StatusNotFound, "no enrolled student matches the photo")
		return
	}

	record, err := h.manager.RecordMatch(r.Context(), sessionID, match.StudentID, time.Now(), match.Score, 0)
	if errors.Is(err, attendance.ErrSessionEnded) {
		respondError(w, http.StatusConflict, "session has ended")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "could not store check-in")
		return
	}

	if record == nil {
		respondJSON(w, http.StatusOK, map[string]any{
			"studentId":       match.StudentID,
			"score":           match.Score,
			"alreadyRecorded": true,
		})
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{
		"studentId":       record.StudentID,
		"score":           record.MatchScore,
		"status":          string(record.Status),
		"checkInTime":     record.CheckInTime,
		"alreadyRecorded": false,
	})
}

// readPhoto extracts image bytes from a multipart "photo" field or a raw
// image body.
func readPhoto(r *http.Request) ([]byte, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxCheckInPhotoSize); err != nil {
			return nil, errors.New("could not parse upload")
		}
		file, _, err := r.FormFile("photo")
		if err != nil {
			return nil, errors.New("photo field is required")
		}
		defer file.Close()
		photo, err := io.ReadAll(io.LimitReader(file, maxCheckInPhotoSize))
		if err != nil {
			return nil, errors.New("could not read photo")
		}
		if len(photo) == 0 {
			return nil, errors.New("photo is empty")
		}
		return photo, nil
	}

	photo, err := io.ReadAll(io.LimitReader(r.Body, maxCheckInPhotoSize))
	if err != nil || len(photo) == 0 {
		return nil, errors.New("photo is required")
	}
	return photo, nil
}
