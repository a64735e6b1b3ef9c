// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/kozaktomas/face-attend/internal/database"
)

// MockStudentStore is a mock implementation of database.StudentStore and
// database.GalleryReader.
type MockStudentStore struct {
	mu         sync.RWMutex
	students   map[int64]*database.Student
	embeddings map[int64][]database.StudentEmbedding // keyed by student ID

	studentCounter   int64
	embeddingCounter int64

	// Error injection
	CreateStudentError error
	GetStudentError    error
	ListStudentsError  error
	UpdateStudentError error
	DeactivateError    error
	AddEmbeddingError  error
	ListEmbeddingsError error
	GalleryError       error
}

// NewMockStudentStore creates a new mock student store
func NewMockStudentStore() *MockStudentStore {
	return &MockStudentStore{
		students:   make(map[int64]*database.Student),
		embeddings: make(map[int64][]database.StudentEmbedding),
	}
}

// AddStudent seeds a student into the mock store
func (m *MockStudentStore) AddStudent(s database.Student) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID > m.studentCounter {
		m.studentCounter = s.ID
	}
	m.students[s.ID] = &s
}

// SeedEmbeddings seeds templates for a student
func (m *MockStudentStore) SeedEmbeddings(studentID int64, embs []database.StudentEmbedding) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.embeddings[studentID] = embs
}

func (m *MockStudentStore) CreateStudent(ctx context.Context, s *database.Student) (int64, error) {
	if m.CreateStudentError != nil {
		return 0, m.CreateStudentError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.studentCounter++
	s.ID = m.studentCounter
	s.CreatedAt = time.Now()
	s.UpdatedAt = s.CreatedAt
	cp := *s
	m.students[s.ID] = &cp
	return s.ID, nil
}

func (m *MockStudentStore) GetStudent(ctx context.Context, id int64) (*database.Student, error) {
	if m.GetStudentError != nil {
		return nil, m.GetStudentError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.students[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *MockStudentStore) GetStudentByNo(ctx context.Context, studentNo string) (*database.Student, error) {
	if m.GetStudentError != nil {
		return nil, m.GetStudentError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.students {
		if s.StudentNo == studentNo {
			cp := *s
			return &cp, nil
		}
	}
	return nil, database.ErrNotFound
}

func (m *MockStudentStore) ListStudents(ctx context.Context, activeOnly bool) ([]database.Student, error) {
	if m.ListStudentsError != nil {
		return nil, m.ListStudentsError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []database.Student
	for _, s := range m.students {
		if activeOnly && !s.Active {
			continue
		}
		result = append(result, *s)
	}
	return result, nil
}

func (m *MockStudentStore) UpdateStudent(ctx context.Context, s *database.Student) error {
	if m.UpdateStudentError != nil {
		return m.UpdateStudentError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.students[s.ID]; !ok {
		return database.ErrNotFound
	}
	cp := *s
	cp.UpdatedAt = time.Now()
	m.students[s.ID] = &cp
	return nil
}

func (m *MockStudentStore) DeactivateStudent(ctx context.Context, id int64) error {
	if m.DeactivateError != nil {
		return m.DeactivateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.students[id]
	if !ok {
		return database.ErrNotFound
	}
	s.Active = false
	return nil
}

func (m *MockStudentStore) AddEmbedding(ctx context.Context, e *database.StudentEmbedding) (int64, error) {
	if m.AddEmbeddingError != nil {
		return 0, m.AddEmbeddingError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.embeddingCounter++
	e.ID = m.embeddingCounter
	e.CreatedAt = time.Now()
	m.embeddings[e.StudentID] = append(m.embeddings[e.StudentID], *e)
	return e.ID, nil
}

func (m *MockStudentStore) ListEmbeddings(ctx context.Context, studentID int64) ([]database.StudentEmbedding, error) {
	if m.ListEmbeddingsError != nil {
		return nil, m.ListEmbeddingsError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]database.StudentEmbedding(nil), m.embeddings[studentID]...), nil
}

func (m *MockStudentStore) CountEmbeddings(ctx context.Context, studentID int64) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.embeddings[studentID]), nil
}

func (m *MockStudentStore) DeleteEmbeddings(ctx context.Context, studentID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.embeddings, studentID)
	return nil
}

// Gallery returns every active student with at least one template
func (m *MockStudentStore) Gallery(ctx context.Context) ([]database.GalleryEntry, error) {
	if m.GalleryError != nil {
		return nil, m.GalleryError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []database.GalleryEntry
	for id, s := range m.students {
		if !s.Active {
			continue
		}
		embs := m.embeddings[id]
		if len(embs) == 0 {
			continue
		}
		entry := database.GalleryEntry{StudentID: id, Name: s.Name}
		for _, e := range embs {
			entry.Embeddings = append(entry.Embeddings, e.Embedding)
		}
		result = append(result, entry)
	}
	return result, nil
}

// MockCourseStore is a mock implementation of database.CourseStore
type MockCourseStore struct {
	mu          sync.RWMutex
	courses     map[int64]*database.Course
	slots       map[int64]*database.TimeSlot
	enrollments map[int64]map[int64]bool // course -> student set
	enrolledInfo map[int64]database.Student

	courseCounter int64
	slotCounter   int64

	// Error injection
	CreateCourseError error
	GetCourseError    error
	ListSlotsError    error
	EnrollError       error
	IsEnrolledError   error
	ListEnrolledError error
}

// NewMockCourseStore creates a new mock course store
func NewMockCourseStore() *MockCourseStore {
	return &MockCourseStore{
		courses:     make(map[int64]*database.Course),
		slots:       make(map[int64]*database.TimeSlot),
		enrollments: make(map[int64]map[int64]bool),
	}
}

// AddCourse seeds a course
func (m *MockCourseStore) AddCourse(c database.Course) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID > m.courseCounter {
		m.courseCounter = c.ID
	}
	m.courses[c.ID] = &c
}

// AddTimeSlot seeds a timetable slot
func (m *MockCourseStore) AddTimeSlot(ts database.TimeSlot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ts.ID > m.slotCounter {
		m.slotCounter = ts.ID
	}
	m.slots[ts.ID] = &ts
}

func (m *MockCourseStore) CreateCourse(ctx context.Context, c *database.Course) (int64, error) {
	if m.CreateCourseError != nil {
		return 0, m.CreateCourseError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.courseCounter++
	c.ID = m.courseCounter
	c.CreatedAt = time.Now()
	cp := *c
	m.courses[c.ID] = &cp
	return c.ID, nil
}

func (m *MockCourseStore) GetCourse(ctx context.Context, id int64) (*database.Course, error) {
	if m.GetCourseError != nil {
		return nil, m.GetCourseError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.courses[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *MockCourseStore) ListCourses(ctx context.Context) ([]database.Course, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []database.Course
	for _, c := range m.courses {
		result = append(result, *c)
	}
	return result, nil
}

// SeedEnrollment seeds course membership together with the student row
// returned by ListEnrolledStudents
func (m *MockCourseStore) SeedEnrollment(courseID int64, s database.Student) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.enrollments[courseID] == nil {
		m.enrollments[courseID] = make(map[int64]bool)
	}
	m.enrollments[courseID][s.ID] = true
	if m.enrolledInfo == nil {
		m.enrolledInfo = make(map[int64]database.Student)
	}
	m.enrolledInfo[s.ID] = s
}

func (m *MockCourseStore) EnrollStudent(ctx context.Context, courseID, studentID int64) error {
	if m.EnrollError != nil {
		return m.EnrollError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.enrollments[courseID] == nil {
		m.enrollments[courseID] = make(map[int64]bool)
	}
	m.enrollments[courseID][studentID] = true
	return nil
}

func (m *MockCourseStore) UnenrollStudent(ctx context.Context, courseID, studentID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.enrollments[courseID][studentID] {
		return database.ErrNotFound
	}
	delete(m.enrollments[courseID], studentID)
	return nil
}

func (m *MockCourseStore) IsEnrolled(ctx context.Context, courseID, studentID int64) (bool, error) {
	if m.IsEnrolledError != nil {
		return false, m.IsEnrolledError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enrollments[courseID][studentID], nil
}

func (m *MockCourseStore) ListEnrolledStudents(ctx context.Context, courseID int64) ([]database.Student, error) {
	if m.ListEnrolledError != nil {
		return nil, m.ListEnrolledError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var students []database.Student
	for id := range m.enrollments[courseID] {
		if s, ok := m.enrolledInfo[id]; ok {
			students = append(students, s)
		} else {
			students = append(students, database.Student{ID: id, Active: true})
		}
	}
	return students, nil
}

func (m *MockCourseStore) CreateTimeSlot(ctx context.Context, ts *database.TimeSlot) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slotCounter++
	ts.ID = m.slotCounter
	cp := *ts
	m.slots[ts.ID] = &cp
	return ts.ID, nil
}

func (m *MockCourseStore) ListTimeSlots(ctx context.Context, courseID int64) ([]database.TimeSlot, error) {
	if m.ListSlotsError != nil {
		return nil, m.ListSlotsError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []database.TimeSlot
	for _, ts := range m.slots {
		if ts.CourseID == courseID {
			result = append(result, *ts)
		}
	}
	return result, nil
}

func (m *MockCourseStore) ListActiveTimeSlots(ctx context.Context) ([]database.TimeSlot, error) {
	if m.ListSlotsError != nil {
		return nil, m.ListSlotsError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []database.TimeSlot
	for _, ts := range m.slots {
		if ts.Active {
			result = append(result, *ts)
		}
	}
	return result, nil
}

func (m *MockCourseStore) DeactivateTimeSlot(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ts, ok := m.slots[id]
	if !ok {
		return database.ErrNotFound
	}
	ts.Active = false
	return nil
}

// MockSessionStore is a mock implementation of database.SessionStore
type MockSessionStore struct {
	mu       sync.RWMutex
	sessions map[int64]*database.Session

	sessionCounter int64

	// Track calls
	TransitionCalls []TransitionCall

	// Error injection
	CreateSessionError error
	GetSessionError    error
	ActiveSessionError error
	TransitionError    error
	DueError           error
}

// TransitionCall tracks a TransitionStatus call
type TransitionCall struct {
	SessionID int64
	From      []database.SessionStatus
	To        database.SessionStatus
}

// NewMockSessionStore creates a new mock session store
func NewMockSessionStore() *MockSessionStore {
	return &MockSessionStore{
		sessions: make(map[int64]*database.Session),
	}
}

// AddSession seeds a session
func (m *MockSessionStore) AddSession(s database.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID > m.sessionCounter {
		m.sessionCounter = s.ID
	}
	m.sessions[s.ID] = &s
}

func (m *MockSessionStore) CreateSession(ctx context.Context, s *database.Session) (int64, error) {
	if m.CreateSessionError != nil {
		return 0, m.CreateSessionError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessionCounter++
	s.ID = m.sessionCounter
	s.CreatedAt = time.Now()
	s.UpdatedAt = s.CreatedAt
	cp := *s
	m.sessions[s.ID] = &cp
	return s.ID, nil
}

func (m *MockSessionStore) GetSession(ctx context.Context, id int64) (*database.Session, error) {
	if m.GetSessionError != nil {
		return nil, m.GetSessionError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *MockSessionStore) ListSessions(ctx context.Context, f database.SessionFilter) ([]database.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []database.Session
	for _, s := range m.sessions {
		if f.Status != "" && s.Status != f.Status {
			continue
		}
		if f.Date != nil {
			y1, m1, d1 := f.Date.Date()
			y2, m2, d2 := s.StartsAt.Date()
			if y1 != y2 || m1 != m2 || d1 != d2 {
				continue
			}
		}
		result = append(result, *s)
	}
	return result, nil
}

func (m *MockSessionStore) ActiveSession(ctx context.Context) (*database.Session, error) {
	if m.ActiveSessionError != nil {
		return nil, m.ActiveSessionError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.sessions {
		if s.Status == database.SessionActive {
			cp := *s
			return &cp, nil
		}
	}
	return nil, database.ErrNotFound
}

func (m *MockSessionStore) FindOverlapping(ctx context.Context, startsAt, endsAt time.Time) ([]database.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []database.Session
	for _, s := range m.sessions {
		if s.Status.Terminal() {
			continue
		}
		if s.StartsAt.Before(endsAt) && startsAt.Before(s.EndsAt) {
			result = append(result, *s)
		}
	}
	return result, nil
}

func (m *MockSessionStore) SessionExistsForSlot(ctx context.Context, slotID int64, startsAt time.Time) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.sessions {
		if s.TimeSlotID != nil && *s.TimeSlotID == slotID && s.StartsAt.Equal(startsAt) {
			return true, nil
		}
	}
	return false, nil
}

func (m *MockSessionStore) TransitionStatus(ctx context.Context, id int64, from []database.SessionStatus, to database.SessionStatus, endsAt *time.Time) (bool, error) {
	if m.TransitionError != nil {
		return false, m.TransitionError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TransitionCalls = append(m.TransitionCalls, TransitionCall{SessionID: id, From: from, To: to})
	s, ok := m.sessions[id]
	if !ok {
		return false, nil
	}
	matched := false
	for _, st := range from {
		if s.Status == st {
			matched = true
			break
		}
	}
	if !matched {
		return false, nil
	}
	s.Status = to
	if endsAt != nil {
		s.EndsAt = *endsAt
	}
	s.UpdatedAt = time.Now()
	return true, nil
}

func (m *MockSessionStore) DueForActivation(ctx context.Context, now time.Time) ([]database.Session, error) {
	if m.DueError != nil {
		return nil, m.DueError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []database.Session
	for _, s := range m.sessions {
		if s.Status == database.SessionScheduled && !s.StartsAt.After(now) {
			result = append(result, *s)
		}
	}
	return result, nil
}

func (m *MockSessionStore) DueForCompletion(ctx context.Context, now time.Time) ([]database.Session, error) {
	if m.DueError != nil {
		return nil, m.DueError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []database.Session
	for _, s := range m.sessions {
		if s.Status == database.SessionActive && !s.EndsAt.After(now) {
			result = append(result, *s)
		}
	}
	return result, nil
}

func (m *MockSessionStore) DueForFinalization(ctx context.Context, now time.Time, buffer time.Duration) ([]database.Session, error) {
	if m.DueError != nil {
		return nil, m.DueError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []database.Session
	for _, s := range m.sessions {
		if s.FinalizedAt != nil {
			continue
		}
		if s.Status == database.SessionCancelled {
			continue
		}
		cutoff := s.LateCutoff().Add(buffer)
		if !cutoff.After(now) {
			result = append(result, *s)
		}
	}
	return result, nil
}

func (m *MockSessionStore) MarkFinalized(ctx context.Context, id int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return database.ErrNotFound
	}
	t := at
	s.FinalizedAt = &t
	return nil
}

// MockAttendanceStore is a mock implementation of database.AttendanceStore
// and database.AuditLog.
type MockAttendanceStore struct {
	mu      sync.RWMutex
	records map[int64]map[int64]*database.AttendanceRecord // session -> student -> record
	events  []database.AuditEvent

	recordCounter int64

	// ForceDuplicate makes the next CreateAttendance insert a competitor's
	// row for the same key and return ErrDuplicateAttendance, simulating a
	// concurrent sighting winning the race between lookup and insert.
	ForceDuplicate bool

	// Error injection
	CreateError  error
	GetError     error
	UpdateError  error
	ListError    error
	AppendError  error
}

// NewMockAttendanceStore creates a new mock attendance store
func NewMockAttendanceStore() *MockAttendanceStore {
	return &MockAttendanceStore{
		records: make(map[int64]map[int64]*database.AttendanceRecord),
	}
}

// AddRecord seeds an attendance record
func (m *MockAttendanceStore) AddRecord(r database.AttendanceRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID > m.recordCounter {
		m.recordCounter = r.ID
	}
	if m.records[r.SessionID] == nil {
		m.records[r.SessionID] = make(map[int64]*database.AttendanceRecord)
	}
	m.records[r.SessionID][r.StudentID] = &r
}

func (m *MockAttendanceStore) CreateAttendance(ctx context.Context, r *database.AttendanceRecord) (int64, error) {
	if m.CreateError != nil {
		return 0, m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.records[r.SessionID] == nil {
		m.records[r.SessionID] = make(map[int64]*database.AttendanceRecord)
	}
	if m.ForceDuplicate {
		m.ForceDuplicate = false
		m.recordCounter++
		winner := *r
		winner.ID = m.recordCounter
		winner.CreatedAt = time.Now()
		m.records[r.SessionID][r.StudentID] = &winner
		return 0, database.ErrDuplicateAttendance
	}
	if _, ok := m.records[r.SessionID][r.StudentID]; ok {
		return 0, database.ErrDuplicateAttendance
	}
	m.recordCounter++
	r.ID = m.recordCounter
	r.CreatedAt = time.Now()
	cp := *r
	m.records[r.SessionID][r.StudentID] = &cp
	return r.ID, nil
}

func (m *MockAttendanceStore) GetAttendance(ctx context.Context, sessionID, studentID int64) (*database.AttendanceRecord, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[sessionID][studentID]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *MockAttendanceStore) UpdateSighting(ctx context.Context, sessionID, studentID int64, seenAt time.Time, confidence float64) error {
	if m.UpdateError != nil {
		return m.UpdateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[sessionID][studentID]
	if !ok {
		return database.ErrNotFound
	}
	t := seenAt
	r.LastSeenTime = &t
	if confidence > r.Confidence {
		r.Confidence = confidence
	}
	return nil
}

func (m *MockAttendanceStore) ListBySession(ctx context.Context, sessionID int64) ([]database.AttendanceRecord, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []database.AttendanceRecord
	for _, r := range m.records[sessionID] {
		result = append(result, *r)
	}
	return result, nil
}

func (m *MockAttendanceStore) Append(ctx context.Context, e *database.AuditEvent) error {
	if m.AppendError != nil {
		return m.AppendError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, *e)
	return nil
}

func (m *MockAttendanceStore) ListAuditBySession(ctx context.Context, sessionID int64) ([]database.AuditEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []database.AuditEvent
	for _, e := range m.events {
		if e.SessionID == sessionID {
			result = append(result, e)
		}
	}
	return result, nil
}

// Events returns a copy of every appended audit event
func (m *MockAttendanceStore) Events() []database.AuditEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]database.AuditEvent(nil), m.events...)
}

// Verify interface compliance
var _ database.StudentStore = (*MockStudentStore)(nil)
var _ database.GalleryReader = (*MockStudentStore)(nil)
var _ database.CourseStore = (*MockCourseStore)(nil)
var _ database.SessionStore = (*MockSessionStore)(nil)
var _ database.AttendanceStore = (*MockAttendanceStore)(nil)
var _ database.AuditLog = (*MockAttendanceStore)(nil)
