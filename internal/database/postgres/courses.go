package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/face-attend/internal/database"
)

// CourseRepository provides PostgreSQL-backed course and timetable storage.
type CourseRepository struct {
	pool *Pool
}

// NewCourseRepository creates a new PostgreSQL course repository
func NewCourseRepository(pool *Pool) *CourseRepository {
	return &CourseRepository{pool: pool}
}

// CreateCourse inserts a new course and returns its ID
func (r *CourseRepository) CreateCourse(ctx context.Context, c *database.Course) (int64, error) {
	query := `
		INSERT INTO courses (code, name, instructor)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`
	err := r.pool.QueryRow(ctx, query, c.Code, c.Name, c.Instructor).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("insert course: %w", err)
	}
	return c.ID, nil
}

// GetCourse retrieves a course by ID
func (r *CourseRepository) GetCourse(ctx context.Context, id int64) (*database.Course, error) {
	var c database.Course
	err := r.pool.QueryRow(ctx, `SELECT id, code, name, instructor, created_at FROM courses WHERE id = $1`, id).
		Scan(&c.ID, &c.Code, &c.Name, &c.Instructor, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query course: %w", err)
	}
	return &c, nil
}

// ListCourses returns all courses ordered by code
func (r *CourseRepository) ListCourses(ctx context.Context) ([]database.Course, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, code, name, instructor, created_at FROM courses ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	defer rows.Close()

	var courses []database.Course
	for rows.Next() {
		var c database.Course
		if err := rows.Scan(&c.ID, &c.Code, &c.Name, &c.Instructor, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan course: %w", err)
		}
		courses = append(courses, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate courses: %w", err)
	}
	return courses, nil
}

// EnrollStudent adds a student to a course. Idempotent.
func (r *CourseRepository) EnrollStudent(ctx context.Context, courseID, studentID int64) error {
	query := `
		INSERT INTO course_enrollments (course_id, student_id)
		VALUES ($1, $2)
		ON CONFLICT (course_id, student_id) DO NOTHING
	`
	if _, err := r.pool.Exec(ctx, query, courseID, studentID); err != nil {
		return fmt.Errorf("enroll student: %w", err)
	}
	return nil
}

// UnenrollStudent removes a student from a course
func (r *CourseRepository) UnenrollStudent(ctx context.Context, courseID, studentID int64) error {
	result, err := r.pool.Exec(ctx,
		`DELETE FROM course_enrollments WHERE course_id = $1 AND student_id = $2`,
		courseID, studentID)
	if err != nil {
		return fmt.Errorf("unenroll student: %w", err)
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

// IsEnrolled reports whether a student belongs to a course
func (r *CourseRepository) IsEnrolled(ctx context.Context, courseID, studentID int64) (bool, error) {
	var enrolled bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM course_enrollments WHERE course_id = $1 AND student_id = $2)`,
		courseID, studentID).Scan(&enrolled)
	if err != nil {
		return false, fmt.Errorf("check enrollment: %w", err)
	}
	return enrolled, nil
}

// ListEnrolledStudents returns active students enrolled in a course
func (r *CourseRepository) ListEnrolledStudents(ctx context.Context, courseID int64) ([]database.Student, error) {
	query := `
		SELECT s.id, s.name, s.student_no, s.department, s.email, s.active, s.created_at, s.updated_at
		FROM students s
		JOIN course_enrollments ce ON ce.student_id = s.id
		WHERE ce.course_id = $1 AND s.active = TRUE
		ORDER BY s.name
	`
	rows, err := r.pool.Query(ctx, query, courseID)
	if err != nil {
		return nil, fmt.Errorf("list enrolled students: %w", err)
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
		return nil, fmt.Errorf("iterate enrolled students: %w", err)
	}
	return students, nil
}

// CreateTimeSlot inserts a weekly timetable slot
func (r *CourseRepository) CreateTimeSlot(ctx context.Context, ts *database.TimeSlot) (int64, error) {
	query := `
		INSERT INTO time_slots (course_id, day_of_week, start_minute, end_minute, late_threshold_minutes, active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	err := r.pool.QueryRow(ctx, query,
		ts.CourseID, int(ts.DayOfWeek), ts.StartMinute, ts.EndMinute, ts.LateThresholdMinutes, ts.Active,
	).Scan(&ts.ID)
	if err != nil {
		return 0, fmt.Errorf("insert time slot: %w", err)
	}
	return ts.ID, nil
}

const timeSlotColumns = `id, course_id, day_of_week, start_minute, end_minute, late_threshold_minutes, active`

func (r *CourseRepository) listSlots(ctx context.Context, query string, args ...any) ([]database.TimeSlot, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list time slots: %w", err)
	}
	defer rows.Close()

	var slots []database.TimeSlot
	for rows.Next() {
		var ts database.TimeSlot
		var dow int
		if err := rows.Scan(&ts.ID, &ts.CourseID, &dow, &ts.StartMinute, &ts.EndMinute, &ts.LateThresholdMinutes, &ts.Active); err != nil {
			return nil, fmt.Errorf("scan time slot: %w", err)
		}
		ts.DayOfWeek = time.Weekday(dow)
		slots = append(slots, ts)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate time slots: %w", err)
	}
	return slots, nil
}

// ListTimeSlots returns all slots for a course
func (r *CourseRepository) ListTimeSlots(ctx context.Context, courseID int64) ([]database.TimeSlot, error) {
	return r.listSlots(ctx, `SELECT `+timeSlotColumns+` FROM time_slots WHERE course_id = $1 ORDER BY day_of_week, start_minute`, courseID)
}

// ListActiveTimeSlots returns every active slot across all courses
func (r *CourseRepository) ListActiveTimeSlots(ctx context.Context) ([]database.TimeSlot, error) {
	return r.listSlots(ctx, `SELECT `+timeSlotColumns+` FROM time_slots WHERE active = TRUE ORDER BY day_of_week, start_minute`)
}

// DeactivateTimeSlot stops the sweep from creating new sessions for a slot
func (r *CourseRepository) DeactivateTimeSlot(ctx context.Context, id int64) error {
	result, err := r.pool.Exec(ctx, `UPDATE time_slots SET active = FALSE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivate time slot: %w", err)
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

// Verify interface compliance
var _ database.CourseStore = (*CourseRepository)(nil)
