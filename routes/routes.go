package routes

import (
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/Dosada05/swiss-engine/handlers"
	"github.com/Dosada05/swiss-engine/middleware"
	"github.com/Dosada05/swiss-engine/models"
)

func SetupRoutes(
	router *chi.Mux,
	jwtSecret string,
	authHandler *handlers.AuthHandler,
	tournamentHandler *handlers.TournamentHandler,
	roundHandler *handlers.RoundHandler,
	matchHandler *handlers.MatchHandler,
	webSocketHandler *handlers.WebSocketHandler,
) {
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(chiMiddleware.Logger)
	router.Use(chiMiddleware.Recoverer)

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	authenticate := middleware.Authenticate([]byte(jwtSecret))
	organizersOnly := middleware.Authorize(models.RoleOrganizer, models.RoleAdmin)

	router.Get("/swagger/*", httpSwagger.WrapHandler)

	router.Post("/auth/register", authHandler.Register)
	router.Post("/auth/login", authHandler.Login)

	router.Route("/tournaments", func(r chi.Router) {
		// Public read surface.
		r.Get("/", tournamentHandler.List)
		r.Get("/{id}", tournamentHandler.Get)
		r.Get("/{id}/standings", tournamentHandler.Standings)
		r.Get("/{id}/can-advance", roundHandler.CanAdvancePhase)
		r.Get("/{id}/live", webSocketHandler.Subscribe)

		// Any authenticated user: registration and self-service.
		r.Group(func(r chi.Router) {
			r.Use(authenticate)
			r.Post("/{id}/register", tournamentHandler.Register)
			r.Post("/{id}/check-in", tournamentHandler.CheckIn)
			r.Delete("/{id}/participants/{participantID}", tournamentHandler.Drop)
		})

		// Organizer operations.
		r.Group(func(r chi.Router) {
			r.Use(authenticate)
			r.Use(organizersOnly)
			r.Post("/", tournamentHandler.Create)
			r.Patch("/{id}/status", tournamentHandler.UpdateStatus)
			r.Post("/{id}/logo", tournamentHandler.UploadLogo)

			r.Post("/{id}/start", roundHandler.StartTournament)
			r.Post("/{id}/rounds", roundHandler.PrepareRound)
			r.Post("/{id}/advance", roundHandler.AdvanceToTopCut)
			r.Post("/{id}/complete", roundHandler.CompleteTournament)
		})
	})

	router.Route("/rounds", func(r chi.Router) {
		r.Get("/{roundID}", roundHandler.GetRound)

		r.Group(func(r chi.Router) {
			r.Use(authenticate)
			r.Use(organizersOnly)
			r.Post("/{roundID}/start", roundHandler.StartRound)
			r.Post("/{roundID}/extend", roundHandler.ExtendRound)
			r.Post("/{roundID}/complete", roundHandler.CompleteRound)
		})
	})

	router.Route("/matches", func(r chi.Router) {
		r.Get("/{matchID}", matchHandler.Get)

		r.Group(func(r chi.Router) {
			r.Use(authenticate)
			r.Post("/{matchID}/check-in", matchHandler.CheckIn)
			r.Post("/{matchID}/result", matchHandler.ReportResult)
			r.Post("/{matchID}/confirm", matchHandler.ConfirmResult)
			r.Post("/{matchID}/dispute", matchHandler.Dispute)
		})

		r.Group(func(r chi.Router) {
			r.Use(authenticate)
			r.Use(organizersOnly)
			r.Post("/{matchID}/resolve", matchHandler.Resolve)
		})
	})
}
