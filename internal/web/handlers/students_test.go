package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/face-attend/internal/database"
	"github.com/kozaktomas/face-attend/internal/database/mock"
	"github.com/kozaktomas/face-attend/internal/enrollment"
)

// fakeEnroller records calls and returns a canned result.
type fakeEnroller struct {
	result    *enrollment.Result
	err       error
	studentID int64
	frames    int
}

func (f *fakeEnroller) Enroll(ctx context.Context, studentID int64, frames [][]byte) (*enrollment.Result, error) {
	f.studentID = studentID
	f.frames = len(frames)
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func TestStudentCreate(t *testing.T) {
	store := mock.NewMockStudentStore()
	h := NewStudentsHandler(store, &fakeEnroller{})

	req := jsonRequest(t, http.MethodPost, "/students", studentRequest{
		Name:      "Jan Novák",
		StudentNo: "S001",
	})
	rec := httptest.NewRecorder()
	h.Create(rec, req)
	assertStatusCode(t, rec, http.StatusCreated)

	var resp studentResponse
	parseJSONResponse(t, rec, &resp)
	if resp.ID == 0 || resp.Name != "Jan Novák" || !resp.Active {
		t.Errorf("unexpected response: %+v", resp)
	}
	if resp.PossibleDuplicateOf != 0 {
		t.Errorf("expected no duplicate warning, got %d", resp.PossibleDuplicateOf)
	}
}

func TestStudentCreateDuplicateNumber(t *testing.T) {
	store := mock.NewMockStudentStore()
	store.AddStudent(database.Student{ID: 1, Name: "Jan Novák", StudentNo: "S001", Active: true})
	h := NewStudentsHandler(store, &fakeEnroller{})

	req := jsonRequest(t, http.MethodPost, "/students", studentRequest{
		Name:      "Someone Else",
		StudentNo: "S001",
	})
	rec := httptest.NewRecorder()
	h.Create(rec, req)
	assertStatusCode(t, rec, http.StatusConflict)
}

func TestStudentCreateWarnsOnDuplicateName(t *testing.T) {
	store := mock.NewMockStudentStore()
	store.AddStudent(database.Student{ID: 1, Name: "Jan Novák", StudentNo: "S001", Active: true})
	h := NewStudentsHandler(store, &fakeEnroller{})

	// Same person modulo diacritics and hyphenation.
	req := jsonRequest(t, http.MethodPost, "/students", studentRequest{
		Name:      "jan-novak",
		StudentNo: "S002",
	})
	rec := httptest.NewRecorder()
	h.Create(rec, req)
	assertStatusCode(t, rec, http.StatusCreated)

	var resp studentResponse
	parseJSONResponse(t, rec, &resp)
	if resp.PossibleDuplicateOf != 1 {
		t.Errorf("expected duplicate warning pointing at student 1, got %d", resp.PossibleDuplicateOf)
	}
}

func TestStudentGetNotFound(t *testing.T) {
	h := NewStudentsHandler(mock.NewMockStudentStore(), &fakeEnroller{})

	req := requestWithChiParams(httptest.NewRequest(http.MethodGet, "/students/99", nil),
		map[string]string{"id": "99"})
	rec := httptest.NewRecorder()
	h.Get(rec, req)
	assertStatusCode(t, rec, http.StatusNotFound)
	assertJSONError(t, rec, "student not found")
}

func TestStudentDeactivate(t *testing.T) {
	store := mock.NewMockStudentStore()
	store.AddStudent(database.Student{ID: 1, Name: "Jan Novák", StudentNo: "S001", Active: true})
	h := NewStudentsHandler(store, &fakeEnroller{})

	req := requestWithChiParams(httptest.NewRequest(http.MethodDelete, "/students/1", nil),
		map[string]string{"id": "1"})
	rec := httptest.NewRecorder()
	h.Deactivate(rec, req)
	assertStatusCode(t, rec, http.StatusOK)

	s, _ := store.GetStudent(context.Background(), 1)
	if s.Active {
		t.Error("expected student to be deactivated")
	}
}

func TestStudentEnroll(t *testing.T) {
	store := mock.NewMockStudentStore()
	store.AddStudent(database.Student{ID: 1, Name: "Jan Novák", StudentNo: "S001", Active: true})
	enroller := &fakeEnroller{result: &enrollment.Result{StudentID: 1, Added: 3}}
	h := NewStudentsHandler(store, enroller)

	req := multipartRequest(t, "/students/1/enroll", "frames", map[string][]byte{
		"a.jpg": []byte("frame-a"),
		"b.jpg": []byte("frame-b"),
	})
	req = requestWithChiParams(req, map[string]string{"id": "1"})
	rec := httptest.NewRecorder()
	h.Enroll(rec, req)
	assertStatusCode(t, rec, http.StatusOK)

	if enroller.studentID != 1 || enroller.frames != 2 {
		t.Errorf("expected enroll call for student 1 with 2 frames, got student %d with %d",
			enroller.studentID, enroller.frames)
	}
}

func TestStudentEnrollQualityFailure(t *testing.T) {
	store := mock.NewMockStudentStore()
	store.AddStudent(database.Student{ID: 1, Name: "Jan Novák", StudentNo: "S001", Active: true})
	enroller := &fakeEnroller{err: &enrollment.NotEnoughFramesError{Qualified: 1, Required: 5}}
	h := NewStudentsHandler(store, enroller)

	req := multipartRequest(t, "/students/1/enroll", "frames", map[string][]byte{
		"a.jpg": []byte("frame-a"),
	})
	req = requestWithChiParams(req, map[string]string{"id": "1"})
	rec := httptest.NewRecorder()
	h.Enroll(rec, req)
	assertStatusCode(t, rec, http.StatusUnprocessableEntity)

	var resp map[string]any
	parseJSONResponse(t, rec, &resp)
	if resp["qualified"].(float64) != 1 || resp["required"].(float64) != 5 {
		t.Errorf("expected quality counters in response, got %v", resp)
	}
}

func TestStudentEnrollDuplicateIdentity(t *testing.T) {
	store := mock.NewMockStudentStore()
	store.AddStudent(database.Student{ID: 1, Name: "Jan Novák", StudentNo: "S001", Active: true})
	enroller := &fakeEnroller{err: enrollment.ErrDuplicateIdentity}
	h := NewStudentsHandler(store, enroller)

	req := multipartRequest(t, "/students/1/enroll", "frames", map[string][]byte{
		"a.jpg": []byte("frame-a"),
	})
	req = requestWithChiParams(req, map[string]string{"id": "1"})
	rec := httptest.NewRecorder()
	h.Enroll(rec, req)
	assertStatusCode(t, rec, http.StatusConflict)
}
