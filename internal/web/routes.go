package web

import (
	"github.com/go-chi/chi/v5"
	"github.com/marsik/reid-mine/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	mineHandler := handlers.NewMineHandler(s.config)
	samplesHandler := handlers.NewSamplesHandler(s.config, s.store, s.extractor)
	statsHandler := handlers.NewStatsHandler(s.config, s.store)

	s.router.Get("/api/v1/health", handlers.HealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		// Pure computation over posted batches.
		r.Post("/mine", mineHandler.Mine)
		r.Post("/loss", mineHandler.Loss)

		// Store-backed ingestion and retrieval.
		r.Post("/samples", samplesHandler.Upload)
		r.Post("/query/similar", samplesHandler.Similar)
		r.Get("/stats", statsHandler.Get)
	})
}
