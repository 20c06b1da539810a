package handlers

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/class-attendance/internal/database"
	"github.com/kozaktomas/class-attendance/internal/facedetect"
	"github.com/kozaktomas/class-attendance/internal/verification"
)

// maxEnrollPhotoSize caps the uploaded enrollment photo.
const maxEnrollPhotoSize = 10 << 20

// StudentsHandler handles enrollment endpoints.
type StudentsHandler struct {
	store    database.EmbeddingStore
	detector facedetect.Detector
	caches   *verification.CacheManager
}

// NewStudentsHandler creates a students handler.
func NewStudentsHandler(store database.EmbeddingStore, detector facedetect.Detector, caches *verification.CacheManager) *StudentsHandler {
	return &StudentsHandler{
		store:    store,
		detector: detector,
		caches:   caches,
	}
}

type studentResponse struct {
	StudentID string `json:"studentId"`
	Name      string `json:"name"`
	ClassID   string `json:"classId"`
	Position  int64  `json:"position"`
}

// Enroll handles POST /api/v1/students/{id}/enroll. The multipart form
// carries the photo plus name and classId fields. Re-enrolling replaces
// the stored embedding and bumps its version; a warmed cache picks the new
// face up immediately.
func (h *StudentsHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	studentID := chi.URLParam(r, "id")

	if err := r.ParseMultipartForm(maxEnrollPhotoSize); err != nil {
		respondError(w, http.StatusBadRequest, "could not parse upload")
		return
	}
	name := r.FormValue("name")
	classID := r.FormValue("classId")
	if name == "" || classID == "" {
		respondError(w, http.StatusBadRequest, "name and classId are required")
		return
	}

	file, _, err := r.FormFile("photo")
	if err != nil {
		respondError(w, http.StatusBadRequest, "photo field is required")
		return
	}
	defer file.Close()
	photo, err := io.ReadAll(io.LimitReader(file, maxEnrollPhotoSize))
	if err != nil || len(photo) == 0 {
		respondError(w, http.StatusBadRequest, "could not read photo")
		return
	}

	face, err := h.detector.DetectSingle(r.Context(), photo)
	switch {
	case errors.Is(err, facedetect.ErrNoFaceFound):
		respondError(w, http.StatusUnprocessableEntity, "no face detected in photo")
		return
	case errors.Is(err, facedetect.ErrMultipleFacesFound):
		respondError(w, http.StatusUnprocessableEntity, "enrollment photo must contain exactly one face")
		return
	case errors.Is(err, facedetect.ErrEncodingFailed):
		respondError(w, http.StatusUnprocessableEntity, "face could not be encoded")
		return
	case err != nil:
		log.Printf("enrollment detection failed for student %s: %v", sanitizeForLog(studentID), err)
		respondError(w, http.StatusBadGateway, "face detection unavailable")
		return
	}

	version, err := h.store.UpsertEmbedding(r.Context(), studentID, face.Embedding)
	if err != nil {
		log.Printf("could not store embedding for student %s: %v", sanitizeForLog(studentID), err)
		respondError(w, http.StatusInternalServerError, "could not store enrollment")
		return
	}
	if err := h.store.UpdateStudentInfo(r.Context(), studentID, name, classID); err != nil {
		log.Printf("could not update student %s: %v", sanitizeForLog(studentID), err)
		respondError(w, http.StatusInternalServerError, "could not store enrollment")
		return
	}

	// Refresh off the request context; the cache update must not be lost
	// to a client disconnect.
	if err := h.caches.InvalidateStudent(context.WithoutCancel(r.Context()), classID, studentID); err != nil {
		log.Printf("could not refresh cache for student %s: %v", sanitizeForLog(studentID), err)
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"studentId": studentID,
		"name":      name,
		"classId":   classID,
		"version":   version,
	})
}

// List handles GET /api/v1/classes/{classId}/students.
func (h *StudentsHandler) List(w http.ResponseWriter, r *http.Request) {
	students, err := h.store.GetEnrolledStudents(r.Context(), chi.URLParam(r, "classId"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "could not load students")
		return
	}
	response := make([]studentResponse, 0, len(students))
	for _, s := range students {
		response = append(response, studentResponse{
			StudentID: s.StudentID,
			Name:      s.Name,
			ClassID:   s.ClassID,
			Position:  s.Position,
		})
	}
	respondJSON(w, http.StatusOK, response)
}

// Search handles GET /api/v1/students?name=. Lookup is diacritics- and
// case-insensitive.
func (h *StudentsHandler) Search(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		respondError(w, http.StatusBadRequest, "name query parameter is required")
		return
	}
	students, err := h.store.FindStudentsByName(r.Context(), name)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "could not search students")
		return
	}
	response := make([]studentResponse, 0, len(students))
	for _, s := range students {
		response = append(response, studentResponse{
			StudentID: s.StudentID,
			Name:      s.Name,
			ClassID:   s.ClassID,
			Position:  s.Position,
		})
	}
	respondJSON(w, http.StatusOK, response)
}
