package web

import (
	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/class-attendance/internal/web/handlers"
)

func (s *Server) setupRoutes(deps Deps) {
	sessionsHandler := handlers.NewSessionsHandler(deps.Manager, deps.Detector, deps.Caches, deps.Schedule)
	studentsHandler := handlers.NewStudentsHandler(deps.Store, deps.Detector, deps.Caches)
	websocketHandler := handlers.NewWebsocketHandler(deps.Hub)

	s.router.Get("/api/v1/health", handlers.HealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		// Sessions
		r.Post("/sessions", sessionsHandler.Create)
		r.Get("/sessions/{id}", sessionsHandler.Get)
		r.Post("/sessions/{id}/end", sessionsHandler.End)
		r.Get("/sessions/{id}/records", sessionsHandler.Records)
		r.Post("/sessions/{id}/checkin", sessionsHandler.CheckIn)

		// Students
		r.Get("/students", studentsHandler.Search)
		r.Post("/students/{id}/enroll", studentsHandler.Enroll)
		r.Get("/classes/{classId}/students", studentsHandler.List)
	})

	// Websocket signaling for capture clients.
	s.router.Get("/ws", websocketHandler.Serve)
}
