package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/wardenpanel/warden-backend/internal/handlers"
)

func SetupRoutes(r *chi.Mux) {
	// Migration routes: upload is acknowledged with 202, progress is polled
	r.Post("/api/migration/import", handlers.StartImport)
	r.Get("/api/migration/status", handlers.MigrationStatus)
	r.Get("/api/migration/history", handlers.MigrationHistory)
	r.Delete("/api/migration/task", handlers.DismissMigration)

	// Player lookup routes
	r.Get("/api/players", handlers.GetPlayer)
	r.Get("/api/players/stats", handlers.GetPlayerStats)
	r.Get("/api/players/punishments", handlers.GetPlayerPunishments)
}
