package routes

import (
	"net/http"

	"github.com/Dosada05/wager-match/handlers"
	"github.com/Dosada05/wager-match/middleware"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger"
)

type Handlers struct {
	Auth        *handlers.AuthHandler
	Participant *handlers.ParticipantHandler
	Match       *handlers.MatchHandler
	WebSocket   *handlers.WebSocketHandler
}

func SetupRoutes(router chi.Router, h Handlers, tokens *middleware.TokenIssuer, allowedOrigins []string, operatorKey string) {
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(chiMiddleware.Logger)
	router.Use(chiMiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", middleware.OperatorKeyHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	router.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))

	router.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.Auth.Register)
		r.Post("/login", h.Auth.Login)
	})

	// Операторские маршруты: зачисление средств без ключа недоступно.
	if operatorKey != "" {
		router.Route("/operator", func(r chi.Router) {
			r.Use(middleware.RequireOperatorKey(operatorKey))
			r.Post("/participants/{participantID}/deposits", h.Participant.Deposit)
		})
	}

	// Защищенные маршруты
	router.Group(func(r chi.Router) {
		r.Use(tokens.Authenticate)

		r.Get("/me", h.Participant.Me)
		r.Get("/me/wallet", h.Participant.Wallet)

		r.Route("/matches", func(r chi.Router) {
			r.Post("/", h.Match.CreateMatch)
			r.Route("/{code}", func(r chi.Router) {
				r.Get("/", h.Match.GetMatch)
				r.Put("/stake", h.Match.SetStake)
				r.Post("/join", h.Match.JoinMatch)
				r.Post("/ready", h.Match.MarkReady)
				r.Post("/countdown", h.Match.StartCountdown)
				r.Post("/start", h.Match.StartPlay)
				r.Post("/cancel", h.Match.CancelMatch)
				r.Post("/scores", h.Match.SubmitScore)
				r.Post("/settle", h.Match.SettleMatch)
			})
		})

		r.Get("/ws/matches/{code}", h.WebSocket.ServeWs)
	})
}
