package web

import (
	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-attend/internal/web/handlers"
	"github.com/kozaktomas/face-attend/internal/web/middleware"
)

func (s *Server) setupRoutes() {
	// Create handlers
	recognizeHandler := handlers.NewRecognizeHandler(s.deps.Engine)
	studentsHandler := handlers.NewStudentsHandler(s.deps.Students, s.deps.Enroller)
	coursesHandler := handlers.NewCoursesHandler(s.deps.Courses, s.deps.Students)
	sessionsHandler := handlers.NewSessionsHandler(
		s.deps.Sessions, s.deps.SessionStore, s.deps.Records, s.deps.Audit,
		s.deps.Resolver, s.deps.OnSessionActivate)
	statusHandler := handlers.NewStatusHandler(s.deps.SessionStore, s.deps.Records)

	// Health check (no auth required)
	s.router.Get("/api/v1/health", handlers.HealthCheck)

	// API routes
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.CORS())

		// Kiosk endpoints: frame ingest and dashboard status
		r.Post("/recognize", recognizeHandler.Recognize)
		r.Get("/status", statusHandler.Get)
		r.Get("/sessions/active", sessionsHandler.Active)

		// Management endpoints
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAdmin(s.config.Admin))

			// Students
			r.Post("/students", studentsHandler.Create)
			r.Get("/students", studentsHandler.List)
			r.Get("/students/{id}", studentsHandler.Get)
			r.Put("/students/{id}", studentsHandler.Update)
			r.Delete("/students/{id}", studentsHandler.Deactivate)
			r.Post("/students/{id}/enroll", studentsHandler.Enroll)

			// Courses and timetable
			r.Post("/courses", coursesHandler.Create)
			r.Get("/courses", coursesHandler.List)
			r.Get("/courses/{id}", coursesHandler.Get)
			r.Post("/courses/{id}/enrollments", coursesHandler.EnrollStudent)
			r.Delete("/courses/{id}/enrollments/{studentID}", coursesHandler.UnenrollStudent)
			r.Get("/courses/{id}/students", coursesHandler.ListEnrolledStudents)
			r.Post("/courses/{id}/slots", coursesHandler.CreateSlot)
			r.Get("/courses/{id}/slots", coursesHandler.ListSlots)
			r.Delete("/slots/{slotID}", coursesHandler.DeactivateSlot)

			// Sessions
			r.Post("/sessions", sessionsHandler.Create)
			r.Get("/sessions", sessionsHandler.List)
			r.Get("/sessions/{id}", sessionsHandler.Get)
			r.Post("/sessions/{id}/activate", sessionsHandler.Activate)
			r.Post("/sessions/{id}/end", sessionsHandler.End)
			r.Post("/sessions/{id}/cancel", sessionsHandler.Cancel)
			r.Get("/sessions/{id}/attendance", sessionsHandler.Attendance)
			r.Post("/sessions/{id}/attendance", sessionsHandler.MarkManual)
			r.Get("/sessions/{id}/audit", sessionsHandler.Audit)
		})
	})
}
