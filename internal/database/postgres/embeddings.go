package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kozaktomas/class-attendance/internal/database"
	"github.com/pgvector/pgvector-go"
)

// GetEnrolledStudents lists students of a class with an active enrollment,
// ordered by enrollment position.
func (s *Store) GetEnrolledStudents(ctx context.Context, classID string) ([]database.EnrolledStudent, error) {
	query := `
		SELECT student_id, name, class_id, position
		FROM student_enrollments
		WHERE class_id = $1
		ORDER BY position
	`
	rows, err := s.pool.Query(ctx, query, classID)
	if err != nil {
		return nil, fmt.Errorf("query enrolled students: %w", err)
	}
	defer rows.Close()

	return scanStudents(rows)
}

// GetActiveEmbedding retrieves the active embedding for a student.
func (s *Store) GetActiveEmbedding(ctx context.Context, studentID string) (*database.StoredEmbedding, error) {
	query := `
		SELECT student_id, embedding, version, dim, created_at
		FROM student_enrollments
		WHERE student_id = $1
	`
	var emb database.StoredEmbedding
	var vec pgvector.Vector

	err := s.pool.QueryRow(ctx, query, studentID).Scan(
		&emb.StudentID,
		&vec,
		&emb.Version,
		&emb.Dim,
		&emb.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query active embedding: %w", err)
	}

	emb.Embedding = vec.Slice()
	return &emb, nil
}

// ListActiveEmbeddings retrieves every active embedding for a class, ordered
// by enrollment position so cache rebuilds preserve tie-break order.
func (s *Store) ListActiveEmbeddings(ctx context.Context, classID string) ([]database.StoredEmbedding, error) {
	query := `
		SELECT student_id, embedding, version, dim, created_at
		FROM student_enrollments
		WHERE class_id = $1
		ORDER BY position
	`
	rows, err := s.pool.Query(ctx, query, classID)
	if err != nil {
		return nil, fmt.Errorf("query class embeddings: %w", err)
	}
	defer rows.Close()

	var embeddings []database.StoredEmbedding
	for rows.Next() {
		var emb database.StoredEmbedding
		var vec pgvector.Vector
		if err := rows.Scan(&emb.StudentID, &vec, &emb.Version, &emb.Dim, &emb.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}
		emb.Embedding = vec.Slice()
		embeddings = append(embeddings, emb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate embeddings: %w", err)
	}
	return embeddings, nil
}

// UpsertEmbedding replaces the active embedding for a student and returns
// the new version. Re-enrollment bumps the version so caches can invalidate.
func (s *Store) UpsertEmbedding(ctx context.Context, studentID string, vector []float32) (int64, error) {
	query := `
		INSERT INTO student_enrollments (student_id, embedding, dim)
		VALUES ($1, $2, $3)
		ON CONFLICT (student_id) DO UPDATE
		SET embedding = EXCLUDED.embedding,
		    dim = EXCLUDED.dim,
		    version = student_enrollments.version + 1,
		    updated_at = NOW()
		RETURNING version
	`
	var version int64
	err := s.pool.QueryRow(ctx, query, studentID, pgvector.NewVector(vector), len(vector)).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("upsert embedding: %w", err)
	}
	return version, nil
}

// UpdateStudentInfo sets the display name and class for an enrolled student.
func (s *Store) UpdateStudentInfo(ctx context.Context, studentID, name, classID string) error {
	res, err := s.pool.Exec(ctx,
		"UPDATE student_enrollments SET name = $2, class_id = $3, updated_at = NOW() WHERE student_id = $1",
		studentID, name, classID,
	)
	if err != nil {
		return fmt.Errorf("update student info: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update student info rows affected: %w", err)
	}
	if affected == 0 {
		return database.ErrNotFound
	}
	return nil
}

// FindStudentsByName finds enrolled students whose normalized name matches
// the query. Normalization matches database.NormalizeStudentName (lowercase,
// no diacritics, dashes to spaces) so "jan-novak" matches "Jan Novák".
func (s *Store) FindStudentsByName(ctx context.Context, name string) ([]database.EnrolledStudent, error) {
	normalized := database.NormalizeStudentName(name)

	query := `
		SELECT student_id, name, class_id, position
		FROM student_enrollments
		WHERE LOWER(REPLACE(unaccent(name), '-', ' ')) = $1
		ORDER BY position
	`
	rows, err := s.pool.Query(ctx, query, normalized)
	if err != nil {
		return nil, fmt.Errorf("query students by name: %w", err)
	}
	defer rows.Close()

	return scanStudents(rows)
}

func scanStudents(rows *sql.Rows) ([]database.EnrolledStudent, error) {
	var students []database.EnrolledStudent
	for rows.Next() {
		var st database.EnrolledStudent
		if err := rows.Scan(&st.StudentID, &st.Name, &st.ClassID, &st.Position); err != nil {
			return nil, fmt.Errorf("scan enrolled student: %w", err)
		}
		students = append(students, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate enrolled students: %w", err)
	}
	return students, nil
}
