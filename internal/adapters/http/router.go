package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stackapp/auth-service/internal/adapters/session"
	"github.com/stackapp/auth-service/internal/application"
)

// Handler is the HTTP adapter entrypoint for auth use-cases.
// Keeping only application dependency here preserves clean adapter boundaries.
type Handler struct {
	service *application.Service
}

// NewHandler constructs an HTTP handler bound to application service.
func NewHandler(service *application.Service) *Handler {
	return &Handler{service: service}
}

// NewRouter registers the auth HTTP routes and middleware stack. The session
// provider may be nil; routes that require a delegated session then answer
// with a configuration error.
func NewRouter(handler *Handler, sessions *session.Provider) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(recoverMiddleware)
	r.Use(loggingMiddleware)
	if sessions != nil {
		r.Use(session.Attach(sessions))
	}

	r.Get("/healthz", handler.healthz)
	r.Get("/readyz", handler.readyz)

	r.Route("/auth/v1", func(r chi.Router) {
		r.Post("/request-otp", handler.requestOTP)
		r.Post("/resend-otp", handler.resendOTP)
		r.Post("/verify-otp", handler.verifyOTP)
		r.Post("/complete-signup", handler.completeSignup)
		r.Post("/signup", handler.signup)
		r.Post("/login", handler.login)
		r.Post("/logout", handler.logout)

		r.Group(func(r chi.Router) {
			r.Use(handler.RequireAuth)
			r.Get("/me", handler.me)
			r.Get("/login-history", handler.loginHistory)
		})

		r.Group(func(r chi.Router) {
			r.Use(handler.RequireDelegated)
			r.Get("/session", handler.delegatedSession)
		})
	})

	r.Route("/wallet/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(handler.RequireAuth)
			r.Use(handler.RequireWalletOwnership)
			r.Get("/{wallet_address}", handler.showWallet)
		})
	})

	return r
}
