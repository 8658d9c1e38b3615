package apiapp

import (
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ivankudzin/matchcore/internal/infra/metrics"
	"github.com/ivankudzin/matchcore/internal/transport/http/handlers"
)

type Dependencies struct {
	Auth    Authenticator
	Premium PremiumChecker
	Swipes  handlers.SwipeService
	Limiter handlers.SwipeRateLimiter
	Feed    handlers.FeedService
	Matches handlers.MatchService
	Logger  *zap.Logger
}

func RegisterRoutes(r chi.Router, deps Dependencies) {
	swipeHandler := handlers.NewSwipeHandler(deps.Swipes, deps.Limiter, deps.Premium, deps.Logger)
	discoverHandler := handlers.NewDiscoverHandler(deps.Feed, deps.Logger)
	matchesHandler := handlers.NewMatchesHandler(deps.Matches, deps.Logger)

	r.Get("/healthz", handlers.Health)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(AuthMiddleware(deps.Auth, deps.Logger))

		api.Route("/swipes", func(sr chi.Router) {
			sr.Get("/discover", discoverHandler.Handle)
			sr.Post("/", swipeHandler.Handle)
			sr.Get("/history", swipeHandler.History)
			sr.Get("/likes", swipeHandler.Likes)
			sr.With(RequirePremium(deps.Premium, deps.Logger)).Post("/undo", swipeHandler.Undo)
		})

		api.Route("/filters", func(fr chi.Router) {
			fr.Use(RequireVerified)
			fr.Get("/search", discoverHandler.Search)
		})

		api.Route("/matches", func(mr chi.Router) {
			mr.Use(RequireVerified)
			mr.Get("/", matchesHandler.List)
			mr.Get("/stats", matchesHandler.Stats)
			mr.Get("/{id}", matchesHandler.Get)
			mr.Delete("/{id}", matchesHandler.Unmatch)
			mr.Post("/{id}/block", matchesHandler.Block)
		})
	})
}
