package facedetect

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func detectorServer(t *testing.T, response faceResponse) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/detect/faces" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			http.Error(w, "bad multipart", http.StatusBadRequest)
			return
		}
		if _, _, err := r.FormFile("file"); err != nil {
			http.Error(w, "missing file part", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	}))
}

func TestDetectAndEncode(t *testing.T) {
	server := detectorServer(t, faceResponse{
		FacesCount: 2,
		Faces: []faceDetection{
			{FaceIndex: 0, Dim: 3, Embedding: []float32{1, 0, 0}, BBox: []float64{10, 20, 110, 140}, DetScore: 0.99},
			{FaceIndex: 1, Dim: 3, Embedding: []float32{0, 1, 0}, BBox: []float64{200, 30, 290, 150}, DetScore: 0.87},
		},
	})
	defer server.Close()

	client := NewClient(server.URL)
	faces, err := client.DetectAndEncode(context.Background(), []byte{0xFF, 0xD8, 0xFF, 0x00, 0x00, 0x00, 0x00, 0x00})
	if err != nil {
		t.Fatalf("DetectAndEncode failed: %v", err)
	}
	if len(faces) != 2 {
		t.Fatalf("expected 2 faces, got %d", len(faces))
	}
	if faces[0].BBox.X1 != 10 || faces[0].BBox.Y2 != 140 {
		t.Errorf("unexpected bbox: %+v", faces[0].BBox)
	}
	if faces[1].DetScore != 0.87 {
		t.Errorf("unexpected det score: %f", faces[1].DetScore)
	}
}

func TestDetectAndEncode_NoFace(t *testing.T) {
	server := detectorServer(t, faceResponse{FacesCount: 0})
	defer server.Close()

	client := NewClient(server.URL)
	_, err := client.DetectAndEncode(context.Background(), []byte("not really an image"))
	if !errors.Is(err, ErrNoFaceFound) {
		t.Errorf("expected ErrNoFaceFound, got %v", err)
	}
}

func TestDetectAndEncode_MissingEmbedding(t *testing.T) {
	server := detectorServer(t, faceResponse{
		FacesCount: 1,
		Faces:      []faceDetection{{FaceIndex: 0}},
	})
	defer server.Close()

	client := NewClient(server.URL)
	_, err := client.DetectAndEncode(context.Background(), []byte("image"))
	if !errors.Is(err, ErrEncodingFailed) {
		t.Errorf("expected ErrEncodingFailed, got %v", err)
	}
}

func TestDetectSingle_RejectsMultiple(t *testing.T) {
	server := detectorServer(t, faceResponse{
		FacesCount: 2,
		Faces: []faceDetection{
			{Embedding: []float32{1}},
			{Embedding: []float32{1}},
		},
	})
	defer server.Close()

	client := NewClient(server.URL)
	_, err := client.DetectSingle(context.Background(), []byte("image"))
	if !errors.Is(err, ErrMultipleFacesFound) {
		t.Errorf("expected ErrMultipleFacesFound, got %v", err)
	}
}

func TestDetectMIMEType(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected string
	}{
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0, 0, 0, 0, 0}, "image/jpeg"},
		{"png", []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, "image/png"},
		{"short", []byte{0x01}, "application/octet-stream"},
	}
	for _, tt := range tests {
		if got := detectMIMEType(tt.data); got != tt.expected {
			t.Errorf("%s: detectMIMEType = %s, want %s", tt.name, got, tt.expected)
		}
	}
}
