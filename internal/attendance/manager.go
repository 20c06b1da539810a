// Package attendance owns session lifecycle and the idempotent check-in
// decision: one record per student per session, Present or Late depending
// on the on-time deadline.
package attendance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kozaktomas/class-attendance/internal/database"
)

// ErrSessionEnded is returned when a check-in arrives for a session that
// already ended. Results for such sessions are discarded, never stored.
var ErrSessionEnded = errors.New("session has ended")

// ErrSessionNotFound is returned for unknown session ids.
var ErrSessionNotFound = errors.New("session not found")

// Manager coordinates attendance sessions and check-ins on top of the
// store. Concurrent check-ins for the same (session, student) pair are
// serialized through a per-pair lock; the database unique constraint is the
// backstop for multiple processes.
type Manager struct {
	store           database.Store
	onTimeLimit     time.Duration
	defaultDuration time.Duration

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewManager creates a manager. onTimeLimit separates Present from Late;
// defaultDuration is used when StartSession gets no explicit duration.
func NewManager(store database.Store, onTimeLimit, defaultDuration time.Duration) *Manager {
	return &Manager{
		store:           store,
		onTimeLimit:     onTimeLimit,
		defaultDuration: defaultDuration,
		locks:           make(map[string]*sync.Mutex),
	}
}

// StartSession opens a new attendance session for a class. A zero duration
// falls back to the configured default.
func (m *Manager) StartSession(ctx context.Context, classID string, startTime time.Time, duration time.Duration) (*database.Session, error) {
	if classID == "" {
		return nil, fmt.Errorf("class id is required")
	}
	if startTime.IsZero() {
		startTime = time.Now()
	}
	if duration <= 0 {
		duration = m.defaultDuration
	}

	session := &database.Session{
		ID:             uuid.NewString(),
		ClassID:        classID,
		StartTime:      startTime,
		EndTime:        startTime.Add(duration),
		OnTimeDeadline: startTime.Add(m.onTimeLimit),
		Status:         database.SessionActive,
		CreatedAt:      time.Now(),
	}
	if err := m.store.InsertSession(ctx, session); err != nil {
		return nil, fmt.Errorf("could not create session: %w", err)
	}
	return session, nil
}

// GetSession loads a session by id.
func (m *Manager) GetSession(ctx context.Context, sessionID string) (*database.Session, error) {
	session, err := m.store.GetSession(ctx, sessionID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("could not load session %s: %w", sessionID, err)
	}
	return session, nil
}

// EndSession marks a session as ended. Ending an already ended session
// returns ErrSessionEnded.
func (m *Manager) EndSession(ctx context.Context, sessionID string) (*database.Session, error) {
	err := m.store.EndSession(ctx, sessionID, time.Now())
	if errors.Is(err, database.ErrNotFound) {
		// Either unknown or already ended; look it up to tell them apart.
		session, getErr := m.store.GetSession(ctx, sessionID)
		if errors.Is(getErr, database.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		if getErr != nil {
			return nil, fmt.Errorf("could not load session %s: %w", sessionID, getErr)
		}
		if session.Status == database.SessionEnded {
			return nil, ErrSessionEnded
		}
		return nil, fmt.Errorf("could not end session %s", sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("could not end session %s: %w", sessionID, err)
	}
	return m.GetSession(ctx, sessionID)
}

// RecordMatch stores a verified check-in. The first check-in for a
// (session, student) pair wins and decides Present or Late from the capture
// time; later ones return (nil, nil) without touching the stored record.
// A check-in for an ended session returns ErrSessionEnded.
func (m *Manager) RecordMatch(ctx context.Context, sessionID, studentID string, checkIn time.Time, score, quality float64) (*database.AttendanceRecord, error) {
	session, err := m.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != database.SessionActive {
		return nil, ErrSessionEnded
	}

	lock := m.pairLock(sessionID, studentID)
	lock.Lock()
	defer lock.Unlock()

	exists, err := m.store.HasRecord(ctx, sessionID, studentID)
	if err != nil {
		return nil, fmt.Errorf("could not check existing record: %w", err)
	}
	if exists {
		return nil, nil
	}

	if checkIn.IsZero() {
		checkIn = time.Now()
	}
	status := database.AttendancePresent
	if checkIn.After(session.OnTimeDeadline) {
		status = database.AttendanceLate
	}

	record := &database.AttendanceRecord{
		SessionID:    sessionID,
		StudentID:    studentID,
		CheckInTime:  checkIn,
		Status:       status,
		MatchScore:   score,
		QualityScore: quality,
		CreatedAt:    time.Now(),
	}
	err = m.store.InsertAttendanceRecord(ctx, record)
	if errors.Is(err, database.ErrDuplicateRecord) {
		// Another writer got there first.
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not store attendance record: %w", err)
	}
	return record, nil
}

// Records returns the stored check-ins of a session ordered by check-in
// time.
func (m *Manager) Records(ctx context.Context, sessionID string) ([]database.AttendanceRecord, error) {
	if _, err := m.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	records, err := m.store.GetRecords(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("could not load records for session %s: %w", sessionID, err)
	}
	return records, nil
}

// Summary counts present and late check-ins against the class roster.
type Summary struct {
	Total   int `json:"total"`
	Present int `json:"present"`
	Late    int `json:"late"`
	Absent  int `json:"absent"`
}

// Summarize computes attendance counts for a session.
func (m *Manager) Summarize(ctx context.Context, sessionID string) (*Summary, error) {
	session, err := m.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	records, err := m.store.GetRecords(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("could not load records for session %s: %w", sessionID, err)
	}
	roster, err := m.store.GetEnrolledStudents(ctx, session.ClassID)
	if err != nil {
		return nil, fmt.Errorf("could not load roster for class %s: %w", session.ClassID, err)
	}

	summary := &Summary{Total: len(roster)}
	for _, record := range records {
		switch record.Status {
		case database.AttendancePresent:
			summary.Present++
		case database.AttendanceLate:
			summary.Late++
		}
	}
	summary.Absent = summary.Total - summary.Present - summary.Late
	if summary.Absent < 0 {
		summary.Absent = 0
	}
	return summary, nil
}

func (m *Manager) pairLock(sessionID, studentID string) *sync.Mutex {
	key := sessionID + "|" + studentID
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[key] = lock
	}
	return lock
}
