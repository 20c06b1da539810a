// Package facedetect talks to the external face detection server. The
// server finds faces in an image and returns a fixed-length embedding per
// face; everything model-related lives behind its API.
package facedetect

import (
	"context"
	"errors"
)

// ErrNoFaceFound is returned when the image contains no detectable face.
var ErrNoFaceFound = errors.New("no face detected")

// ErrMultipleFacesFound is returned by strict single-face calls when the
// image contains more than one face.
var ErrMultipleFacesFound = errors.New("multiple faces detected")

// ErrEncodingFailed is returned when a face was located but no embedding
// could be computed for it.
var ErrEncodingFailed = errors.New("could not encode face")

// BoundingBox locates a face within the frame in raw pixel coordinates.
type BoundingBox struct {
	X1, Y1, X2, Y2 float64
}

// Face is a single detected face with its embedding.
type Face struct {
	BBox      BoundingBox
	Embedding []float32
	DetScore  float64
}

// Detector finds faces and computes their embeddings.
type Detector interface {
	// DetectAndEncode returns every face found in the image, in detection
	// order. ErrNoFaceFound when the image holds none.
	DetectAndEncode(ctx context.Context, imageData []byte) ([]Face, error)
	// DetectSingle returns exactly one face; ErrMultipleFacesFound when
	// the image holds more than one. Used for explicit check-in
	// verification where a crowd shot must be rejected.
	DetectSingle(ctx context.Context, imageData []byte) (Face, error)
}
