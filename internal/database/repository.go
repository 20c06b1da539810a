package database

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicateRecord is returned by InsertAttendanceRecord when a record for
// the same (session, student) pair already exists. Callers treat it as a
// benign no-op; it is the storage-level backstop for check-in idempotency.
var ErrDuplicateRecord = errors.New("attendance record already exists")

// SessionStore provides access to attendance sessions.
type SessionStore interface {
	// InsertSession creates a new session row.
	InsertSession(ctx context.Context, session *Session) error
	// GetSession retrieves a session by ID, ErrNotFound if absent.
	GetSession(ctx context.Context, id string) (*Session, error)
	// GetActiveSession retrieves a session by ID only if it is still active.
	GetActiveSession(ctx context.Context, id string) (*Session, error)
	// EndSession transitions a session to ended, recording the end time.
	EndSession(ctx context.Context, id string, endedAt time.Time) error
}

// AttendanceStore provides access to attendance records.
type AttendanceStore interface {
	// InsertAttendanceRecord creates a record, ErrDuplicateRecord if one
	// already exists for the same (session, student) pair.
	InsertAttendanceRecord(ctx context.Context, record *AttendanceRecord) error
	// HasRecord checks whether a record exists for (session, student).
	HasRecord(ctx context.Context, sessionID, studentID string) (bool, error)
	// GetRecords retrieves all records for a session ordered by check-in time.
	GetRecords(ctx context.Context, sessionID string) ([]AttendanceRecord, error)
}

// EmbeddingStore provides access to student face enrollments.
type EmbeddingStore interface {
	// GetEnrolledStudents lists students of a class with an active
	// enrollment, ordered by enrollment position.
	GetEnrolledStudents(ctx context.Context, classID string) ([]EnrolledStudent, error)
	// GetActiveEmbedding retrieves the active embedding for a student,
	// ErrNotFound if the student has no stored face data.
	GetActiveEmbedding(ctx context.Context, studentID string) (*StoredEmbedding, error)
	// ListActiveEmbeddings retrieves every active embedding for a class.
	ListActiveEmbeddings(ctx context.Context, classID string) ([]StoredEmbedding, error)
	// UpsertEmbedding replaces the active embedding for a student and
	// returns the new version.
	UpsertEmbedding(ctx context.Context, studentID string, vector []float32) (int64, error)
	// UpdateStudentInfo sets the display name and class for an enrolled
	// student, ErrNotFound if the student has no enrollment.
	UpdateStudentInfo(ctx context.Context, studentID, name, classID string) error
	// FindStudentsByName finds enrolled students whose normalized name
	// matches the query (lowercase, diacritics stripped).
	FindStudentsByName(ctx context.Context, name string) ([]EnrolledStudent, error)
}

// Store bundles every persistence concern the server needs.
type Store interface {
	SessionStore
	AttendanceStore
	EmbeddingStore
}
