// Package capture turns raw frame payloads from the browser data channel
// into verification jobs. It validates the image, stamps the job with the
// session phase active at arrival, and hands it to the scheduler.
package capture

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"strings"
	"time"

	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/kozaktomas/class-attendance/internal/attendance"
	"github.com/kozaktomas/class-attendance/internal/database"
	"github.com/kozaktomas/class-attendance/internal/scheduler"
)

// PayloadTypeFrame is the data channel message type carrying a camera
// frame.
const PayloadTypeFrame = "face_frame"

// maxFrameBytes caps the decoded image size. Browsers send downscaled
// JPEG frames well under this.
const maxFrameBytes = 4 << 20

var (
	// ErrInvalidPayload is returned for malformed frame messages.
	ErrInvalidPayload = errors.New("invalid frame payload")
	// ErrUnsupportedImage is returned when the frame bytes decode as no
	// known image format.
	ErrUnsupportedImage = errors.New("unsupported image format")
	// ErrFrameTooLarge is returned when the frame exceeds maxFrameBytes.
	ErrFrameTooLarge = errors.New("frame too large")
)

// FramePayload is the JSON message a capture client sends over the data
// channel. Frame carries the image as base64, with or without a data URL
// prefix. CapturedAt is a unix millisecond timestamp; zero means "now".
type FramePayload struct {
	Type          string `json:"type"`
	SessionID     string `json:"sessionId"`
	StudentIDHint string `json:"studentIdHint,omitempty"`
	Frame         string `json:"frameBytesBase64"`
	CapturedAt    int64  `json:"capturedAt,omitempty"`
}

// SessionSource resolves session ids; implemented by the attendance
// manager.
type SessionSource interface {
	GetSession(ctx context.Context, sessionID string) (*database.Session, error)
}

// Enqueuer accepts verification jobs; implemented by the scheduler.
type Enqueuer interface {
	Enqueue(job *scheduler.Job) error
}

// FrameIngest validates and enqueues camera frames.
type FrameIngest struct {
	schedule *scheduler.Schedule
	sessions SessionSource
	queue    Enqueuer
}

// NewFrameIngest creates an ingest pipeline.
func NewFrameIngest(schedule *scheduler.Schedule, sessions SessionSource, queue Enqueuer) *FrameIngest {
	return &FrameIngest{
		schedule: schedule,
		sessions: sessions,
		queue:    queue,
	}
}

// Ingest parses a raw data channel message, validates the frame, and
// enqueues a verification job for it. The job's phase is fixed here, from
// how old the session is at arrival; the frame keeps that phase no matter
// how long it waits in the queue.
func (f *FrameIngest) Ingest(ctx context.Context, clientID string, raw []byte) (*scheduler.Job, error) {
	var payload FramePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if payload.Type != PayloadTypeFrame {
		return nil, fmt.Errorf("%w: unexpected type %q", ErrInvalidPayload, payload.Type)
	}
	if payload.SessionID == "" {
		return nil, fmt.Errorf("%w: missing session id", ErrInvalidPayload)
	}

	frame, err := decodeFrame(payload.Frame)
	if err != nil {
		return nil, err
	}

	img, _, err := image.Decode(bytes.NewReader(frame))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}

	session, err := f.sessions.GetSession(ctx, payload.SessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != database.SessionActive {
		return nil, attendance.ErrSessionEnded
	}

	capturedAt := time.Now()
	if payload.CapturedAt > 0 {
		capturedAt = time.UnixMilli(payload.CapturedAt)
	}

	job := &scheduler.Job{
		SessionID:     session.ID,
		ClassID:       session.ClassID,
		ClientID:      clientID,
		StudentIDHint: payload.StudentIDHint,
		Frame:         frame,
		QualityScore:  QualityScore(img),
		CapturedAt:    capturedAt,
		Phase:         f.schedule.PhaseFor(time.Since(session.StartTime)),
	}
	if err := f.queue.Enqueue(job); err != nil {
		return nil, err
	}
	return job, nil
}

// decodeFrame strips an optional data URL prefix and decodes the base64
// image bytes.
func decodeFrame(encoded string) ([]byte, error) {
	if encoded == "" {
		return nil, fmt.Errorf("%w: missing image", ErrInvalidPayload)
	}
	if idx := strings.Index(encoded, ","); idx >= 0 && strings.HasPrefix(encoded, "data:") {
		encoded = encoded[idx+1:]
	}
	if base64.StdEncoding.DecodedLen(len(encoded)) > maxFrameBytes {
		return nil, ErrFrameTooLarge
	}
	frame, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: bad base64: %v", ErrInvalidPayload, err)
	}
	if len(frame) == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrInvalidPayload)
	}
	return frame, nil
}
