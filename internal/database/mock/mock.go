// Package mock provides an in-memory implementation of the database
// interfaces for testing.
package mock

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kozaktomas/class-attendance/internal/database"
)

// Store is an in-memory implementation of database.Store.
type Store struct {
	mu          sync.RWMutex
	sessions    map[string]*database.Session
	records     map[string]map[string]*database.AttendanceRecord // sessionID -> studentID -> record
	embeddings  map[string]*database.StoredEmbedding
	students    map[string]*database.EnrolledStudent
	nextPos     int64

	// Error injection
	InsertSessionError error
	InsertRecordError  error
	GetSessionError    error
	UpsertError        error
}

var _ database.Store = (*Store)(nil)

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		sessions:   make(map[string]*database.Session),
		records:    make(map[string]map[string]*database.AttendanceRecord),
		embeddings: make(map[string]*database.StoredEmbedding),
		students:   make(map[string]*database.EnrolledStudent),
	}
}

// InsertSession creates a new session row.
func (m *Store) InsertSession(ctx context.Context, session *database.Session) error {
	if m.InsertSessionError != nil {
		return m.InsertSessionError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *session
	m.sessions[session.ID] = &copied
	return nil
}

// GetSession retrieves a session by ID.
func (m *Store) GetSession(ctx context.Context, id string) (*database.Session, error) {
	if m.GetSessionError != nil {
		return nil, m.GetSessionError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	session, ok := m.sessions[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	copied := *session
	return &copied, nil
}

// GetActiveSession retrieves a session by ID only if it is still active.
func (m *Store) GetActiveSession(ctx context.Context, id string) (*database.Session, error) {
	session, err := m.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Status != database.SessionActive {
		return nil, database.ErrNotFound
	}
	return session, nil
}

// EndSession transitions a session to ended.
func (m *Store) EndSession(ctx context.Context, id string, endedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[id]
	if !ok || session.Status != database.SessionActive {
		return database.ErrNotFound
	}
	session.Status = database.SessionEnded
	session.EndTime = endedAt
	return nil
}

// InsertAttendanceRecord creates a record, database.ErrDuplicateRecord when
// one already exists for the same (session, student) pair.
func (m *Store) InsertAttendanceRecord(ctx context.Context, record *database.AttendanceRecord) error {
	if m.InsertRecordError != nil {
		return m.InsertRecordError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	byStudent, ok := m.records[record.SessionID]
	if !ok {
		byStudent = make(map[string]*database.AttendanceRecord)
		m.records[record.SessionID] = byStudent
	}
	if _, exists := byStudent[record.StudentID]; exists {
		return database.ErrDuplicateRecord
	}
	copied := *record
	byStudent[record.StudentID] = &copied
	return nil
}

// HasRecord checks whether a record exists for (session, student).
func (m *Store) HasRecord(ctx context.Context, sessionID, studentID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	byStudent, ok := m.records[sessionID]
	if !ok {
		return false, nil
	}
	_, exists := byStudent[studentID]
	return exists, nil
}

// GetRecords retrieves all records for a session ordered by check-in time.
func (m *Store) GetRecords(ctx context.Context, sessionID string) ([]database.AttendanceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var records []database.AttendanceRecord
	for _, record := range m.records[sessionID] {
		records = append(records, *record)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].CheckInTime.Before(records[j].CheckInTime)
	})
	return records, nil
}

// AddStudent registers a student with an embedding, preserving call order
// as enrollment position.
func (m *Store) AddStudent(studentID, name, classID string, embedding []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextPos++
	m.students[studentID] = &database.EnrolledStudent{
		StudentID: studentID,
		Name:      name,
		ClassID:   classID,
		Position:  m.nextPos,
	}
	m.embeddings[studentID] = &database.StoredEmbedding{
		StudentID: studentID,
		Embedding: embedding,
		Version:   1,
		Dim:       len(embedding),
		CreatedAt: time.Now(),
	}
}

// GetEnrolledStudents lists students of a class ordered by enrollment position.
func (m *Store) GetEnrolledStudents(ctx context.Context, classID string) ([]database.EnrolledStudent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var students []database.EnrolledStudent
	for _, st := range m.students {
		if st.ClassID == classID {
			students = append(students, *st)
		}
	}
	sort.Slice(students, func(i, j int) bool {
		return students[i].Position < students[j].Position
	})
	return students, nil
}

// GetActiveEmbedding retrieves the active embedding for a student.
func (m *Store) GetActiveEmbedding(ctx context.Context, studentID string) (*database.StoredEmbedding, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	emb, ok := m.embeddings[studentID]
	if !ok {
		return nil, database.ErrNotFound
	}
	copied := *emb
	return &copied, nil
}

// ListActiveEmbeddings retrieves every active embedding for a class in
// enrollment order.
func (m *Store) ListActiveEmbeddings(ctx context.Context, classID string) ([]database.StoredEmbedding, error) {
	students, err := m.GetEnrolledStudents(ctx, classID)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var embeddings []database.StoredEmbedding
	for _, st := range students {
		if emb, ok := m.embeddings[st.StudentID]; ok {
			embeddings = append(embeddings, *emb)
		}
	}
	return embeddings, nil
}

// UpsertEmbedding replaces the active embedding for a student.
func (m *Store) UpsertEmbedding(ctx context.Context, studentID string, vector []float32) (int64, error) {
	if m.UpsertError != nil {
		return 0, m.UpsertError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	version := int64(1)
	if existing, ok := m.embeddings[studentID]; ok {
		version = existing.Version + 1
	} else {
		m.nextPos++
		m.students[studentID] = &database.EnrolledStudent{
			StudentID: studentID,
			Position:  m.nextPos,
		}
	}
	m.embeddings[studentID] = &database.StoredEmbedding{
		StudentID: studentID,
		Embedding: append([]float32(nil), vector...),
		Version:   version,
		Dim:       len(vector),
		CreatedAt: time.Now(),
	}
	return version, nil
}

// UpdateStudentInfo sets the display name and class for an enrolled student.
func (m *Store) UpdateStudentInfo(ctx context.Context, studentID, name, classID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.students[studentID]
	if !ok {
		return database.ErrNotFound
	}
	st.Name = name
	st.ClassID = classID
	return nil
}

// FindStudentsByName finds enrolled students by normalized name.
func (m *Store) FindStudentsByName(ctx context.Context, name string) ([]database.EnrolledStudent, error) {
	normalized := database.NormalizeStudentName(name)
	m.mu.RLock()
	defer m.mu.RUnlock()
	var students []database.EnrolledStudent
	for _, st := range m.students {
		if database.NormalizeStudentName(st.Name) == normalized {
			students = append(students, *st)
		}
	}
	sort.Slice(students, func(i, j int) bool {
		return students[i].Position < students[j].Position
	})
	return students, nil
}
