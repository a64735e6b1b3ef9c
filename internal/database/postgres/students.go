package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/kozaktomas/face-attend/internal/database"
)

// StudentRepository provides PostgreSQL-backed student and template storage.
type StudentRepository struct {
	pool *Pool
}

// NewStudentRepository creates a new PostgreSQL student repository
func NewStudentRepository(pool *Pool) *StudentRepository {
	return &StudentRepository{pool: pool}
}

// CreateStudent inserts a new student and returns its ID
func (r *StudentRepository) CreateStudent(ctx context.Context, s *database.Student) (int64, error) {
	query := `
		INSERT INTO students (name, student_no, department, email, active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`
	err := r.pool.QueryRow(ctx, query, s.Name, s.StudentNo, s.Department, s.Email, s.Active).
		Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return 0, fmt.Errorf("insert student: %w", err)
	}
	return s.ID, nil
}

const studentColumns = `id, name, student_no, department, email, active, created_at, updated_at`

func scanStudent(row interface{ Scan(...any) error }) (*database.Student, error) {
	var s database.Student
	err := row.Scan(&s.ID, &s.Name, &s.StudentNo, &s.Department, &s.Email, &s.Active, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan student: %w", err)
	}
	return &s, nil
}

// GetStudent retrieves a student by ID
func (r *StudentRepository) GetStudent(ctx context.Context, id int64) (*database.Student, error) {
	return scanStudent(r.pool.QueryRow(ctx, `SELECT `+studentColumns+` FROM students WHERE id = $1`, id))
}

// GetStudentByNo retrieves a student by external student number
func (r *StudentRepository) GetStudentByNo(ctx context.Context, studentNo string) (*database.Student, error) {
	return scanStudent(r.pool.QueryRow(ctx, `SELECT `+studentColumns+` FROM students WHERE student_no = $1`, studentNo))
}

// ListStudents returns all students, optionally only active ones
func (r *StudentRepository) ListStudents(ctx context.Context, activeOnly bool) ([]database.Student, error) {
	query := `SELECT ` + studentColumns + ` FROM students`
	if activeOnly {
		query += ` WHERE active = TRUE`
	}
	query += ` ORDER BY name`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	defer rows.Close()

	var students []database.Student
	for rows.Next() {
		var s database.Student
		if err := rows.Scan(&s.ID, &s.Name, &s.StudentNo, &s.Department, &s.Email, &s.Active, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan student: %w", err)
		}
		students = append(students, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate students: %w", err)
	}
	return students, nil
}

// UpdateStudent updates mutable student fields
func (r *StudentRepository) UpdateStudent(ctx context.Context, s *database.Student) error {
	query := `
		UPDATE students
		SET name = $2, department = $3, email = $4, active = $5, updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query, s.ID, s.Name, s.Department, s.Email, s.Active)
	if err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return database.ErrNotFound
	}
	return nil
}

// DeactivateStudent soft-deletes a student. Historical records stay intact.
func (r *StudentRepository) DeactivateStudent(ctx context.Context, id int64) error {
	result, err := r.pool.Exec(ctx, `UPDATE students SET active = FALSE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivate student: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return database.ErrNotFound
	}
	return nil
}

// AddEmbedding stores a face template for a student
func (r *StudentRepository) AddEmbedding(ctx context.Context, e *database.StudentEmbedding) (int64, error) {
	query := `
		INSERT INTO student_embeddings (student_id, embedding, quality, dim, model)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`
	err := r.pool.QueryRow(ctx, query,
		e.StudentID,
		pgvector.NewVector(e.Embedding),
		e.Quality,
		e.Dim,
		e.Model,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("insert embedding: %w", err)
	}
	return e.ID, nil
}

// ListEmbeddings returns all templates for a student
func (r *StudentRepository) ListEmbeddings(ctx context.Context, studentID int64) ([]database.StudentEmbedding, error) {
	query := `
		SELECT id, student_id, embedding, quality, dim, model, created_at
		FROM student_embeddings
		WHERE student_id = $1
		ORDER BY quality DESC
	`
	rows, err := r.pool.Query(ctx, query, studentID)
	if err != nil {
		return nil, fmt.Errorf("list embeddings: %w", err)
	}
	defer rows.Close()

	var embeddings []database.StudentEmbedding
	for rows.Next() {
		var e database.StudentEmbedding
		var vec pgvector.Vector
		if err := rows.Scan(&e.ID, &e.StudentID, &vec, &e.Quality, &e.Dim, &e.Model, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}
		e.Embedding = vec.Slice()
		embeddings = append(embeddings, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate embeddings: %w", err)
	}
	return embeddings, nil
}

// CountEmbeddings returns the number of templates for a student
func (r *StudentRepository) CountEmbeddings(ctx context.Context, studentID int64) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM student_embeddings WHERE student_id = $1`, studentID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count embeddings: %w", err)
	}
	return count, nil
}

// DeleteEmbeddings removes all templates for a student
func (r *StudentRepository) DeleteEmbeddings(ctx context.Context, studentID int64) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM student_embeddings WHERE student_id = $1`, studentID); err != nil {
		return fmt.Errorf("delete embeddings: %w", err)
	}
	return nil
}

// Gallery loads every active student with at least one template, with all
// of their templates. This is the working set for live recognition.
func (r *StudentRepository) Gallery(ctx context.Context) ([]database.GalleryEntry, error) {
	query := `
		SELECT s.id, s.name, e.embedding
		FROM students s
		JOIN student_embeddings e ON e.student_id = s.id
		WHERE s.active = TRUE
		ORDER BY s.id, e.quality DESC
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("load gallery: %w", err)
	}
	defer rows.Close()

	var gallery []database.GalleryEntry
	var current *database.GalleryEntry
	for rows.Next() {
		var id int64
		var name string
		var vec pgvector.Vector
		if err := rows.Scan(&id, &name, &vec); err != nil {
			return nil, fmt.Errorf("scan gallery row: %w", err)
		}
		if current == nil || current.StudentID != id {
			gallery = append(gallery, database.GalleryEntry{StudentID: id, Name: name})
			current = &gallery[len(gallery)-1]
		}
		current.Embeddings = append(current.Embeddings, vec.Slice())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate gallery: %w", err)
	}
	return gallery, nil
}

// Verify interface compliance
var _ database.StudentStore = (*StudentRepository)(nil)
var _ database.GalleryReader = (*StudentRepository)(nil)
