package database

import (
	"time"
)

// SessionStatus is the lifecycle state of an attendance session.
type SessionStatus string

const (
	SessionActive SessionStatus = "active"
	SessionEnded  SessionStatus = "ended"
)

// AttendanceStatus is the recorded outcome of a check-in.
type AttendanceStatus string

const (
	AttendancePresent AttendanceStatus = "present"
	AttendanceLate    AttendanceStatus = "late"
)

// Session represents one attendance session opened by a presenter.
type Session struct {
	ID             string
	ClassID        string
	StartTime      time.Time
	EndTime        time.Time
	OnTimeDeadline time.Time // check-ins after this are marked late
	Status         SessionStatus
	CreatedAt      time.Time
}

// AttendanceRecord is a single check-in. At most one record ever exists per
// (SessionID, StudentID); records are never mutated after insert.
type AttendanceRecord struct {
	SessionID    string
	StudentID    string
	CheckInTime  time.Time
	Status       AttendanceStatus
	MatchScore   float64
	QualityScore float64
	CreatedAt    time.Time
}

// EnrolledStudent is a student registered for a class with an active face
// enrollment. Position is the serial enrollment order, used as the
// deterministic tie-breaker when two embeddings score identically.
type EnrolledStudent struct {
	StudentID string
	Name      string
	ClassID   string
	Position  int64
}

// StoredEmbedding is the active face embedding for a student. Version
// increases monotonically with each re-enrollment so caches can detect
// staleness.
type StoredEmbedding struct {
	StudentID string
	Embedding []float32
	Version   int64
	Dim       int
	CreatedAt time.Time
}
