package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/class-attendance/internal/database"
	"github.com/lib/pq"
)

// uniqueViolation is the PostgreSQL error code for unique constraint violations.
const uniqueViolation = "23505"

// InsertAttendanceRecord creates a record. A conflict on the
// (session_id, student_id) primary key maps to database.ErrDuplicateRecord
// so callers can treat a concurrent duplicate check-in as a no-op.
func (s *Store) InsertAttendanceRecord(ctx context.Context, record *database.AttendanceRecord) error {
	query := `
		INSERT INTO attendance_records (session_id, student_id, check_in_time, status, match_score, quality_score, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.pool.Exec(ctx, query,
		record.SessionID,
		record.StudentID,
		record.CheckInTime,
		record.Status,
		record.MatchScore,
		record.QualityScore,
		record.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return database.ErrDuplicateRecord
		}
		return fmt.Errorf("insert attendance record: %w", err)
	}
	return nil
}

// HasRecord checks whether a record exists for (session, student).
func (s *Store) HasRecord(ctx context.Context, sessionID, studentID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM attendance_records WHERE session_id = $1 AND student_id = $2)",
		sessionID, studentID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check attendance record exists: %w", err)
	}
	return exists, nil
}

// GetRecords retrieves all records for a session ordered by check-in time.
func (s *Store) GetRecords(ctx context.Context, sessionID string) ([]database.AttendanceRecord, error) {
	query := `
		SELECT session_id, student_id, check_in_time, status, match_score, quality_score, created_at
		FROM attendance_records
		WHERE session_id = $1
		ORDER BY check_in_time
	`
	rows, err := s.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query attendance records: %w", err)
	}
	defer rows.Close()

	var records []database.AttendanceRecord
	for rows.Next() {
		var r database.AttendanceRecord
		if err := rows.Scan(
			&r.SessionID,
			&r.StudentID,
			&r.CheckInTime,
			&r.Status,
			&r.MatchScore,
			&r.QualityScore,
			&r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan attendance record: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attendance records: %w", err)
	}
	return records, nil
}
