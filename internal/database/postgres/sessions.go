package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/class-attendance/internal/database"
)

// InsertSession creates a new session row.
func (s *Store) InsertSession(ctx context.Context, session *database.Session) error {
	query := `
		INSERT INTO attendance_sessions (id, class_id, start_time, end_time, on_time_deadline, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.pool.Exec(ctx, query,
		session.ID,
		session.ClassID,
		session.StartTime,
		session.EndTime,
		session.OnTimeDeadline,
		session.Status,
		session.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by ID.
func (s *Store) GetSession(ctx context.Context, id string) (*database.Session, error) {
	query := `
		SELECT id, class_id, start_time, end_time, on_time_deadline, status, created_at
		FROM attendance_sessions
		WHERE id = $1
	`
	return s.scanSession(s.pool.QueryRow(ctx, query, id))
}

// GetActiveSession retrieves a session by ID only if it is still active.
func (s *Store) GetActiveSession(ctx context.Context, id string) (*database.Session, error) {
	query := `
		SELECT id, class_id, start_time, end_time, on_time_deadline, status, created_at
		FROM attendance_sessions
		WHERE id = $1 AND status = 'active'
	`
	return s.scanSession(s.pool.QueryRow(ctx, query, id))
}

// EndSession transitions a session to ended.
func (s *Store) EndSession(ctx context.Context, id string, endedAt time.Time) error {
	query := `
		UPDATE attendance_sessions
		SET status = 'ended', end_time = $2
		WHERE id = $1 AND status = 'active'
	`
	res, err := s.pool.Exec(ctx, query, id, endedAt)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("end session rows affected: %w", err)
	}
	if affected == 0 {
		return database.ErrNotFound
	}
	return nil
}

func (s *Store) scanSession(row *sql.Row) (*database.Session, error) {
	var session database.Session
	err := row.Scan(
		&session.ID,
		&session.ClassID,
		&session.StartTime,
		&session.EndTime,
		&session.OnTimeDeadline,
		&session.Status,
		&session.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	return &session, nil
}
