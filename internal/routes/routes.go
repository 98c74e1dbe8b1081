package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/babynest/backend/internal/handlers"
	"github.com/babynest/backend/internal/middleware"
)

// Handlers groups everything the router dispatches to.
type Handlers struct {
	Auth    *handlers.AuthHandler
	User    *handlers.UserHandler
	Journal *handlers.JournalHandler
	Chat    *handlers.ChatHandler

	// Authenticator validates bearer tokens for protected routes.
	Authenticator middleware.Authenticator
	// AuthLimiter throttles the credential and OTP endpoints. Nil disables it.
	AuthLimiter *middleware.IPRateLimiter
}

func health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"success":true,"message":"OK"}`))
}

func SetupRoutes(r chi.Router, h Handlers) {
	requireAuth := middleware.RequireAuth(h.Authenticator)
	limited := func(next http.HandlerFunc) http.Handler {
		if h.AuthLimiter == nil {
			return next
		}
		return h.AuthLimiter.Handler("Too many attempts, please try again later")(next)
	}

	r.Get("/health", health)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.Auth.Register)
		r.Method(http.MethodPost, "/login", limited(h.Auth.Login))
		r.Method(http.MethodPost, "/forgot-password", limited(h.Auth.ForgotPassword))
		r.Method(http.MethodPost, "/verify-otp", limited(h.Auth.VerifyOTP))
		r.Method(http.MethodPost, "/reset-password", limited(h.Auth.ResetPassword))

		r.Get("/google", h.Auth.GoogleLogin)
		r.Get("/google/callback", h.Auth.GoogleCallback)

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Post("/change-password", h.Auth.ChangePassword)
			r.Post("/logout", h.Auth.Logout)
			r.Get("/profile", h.User.Profile)
		})
	})

	r.Route("/user", func(r chi.Router) {
		r.Use(requireAuth)
		r.Get("/profile", h.User.Profile)
		r.Post("/profile", h.User.UpdateProfile)
		r.Get("/onboarding", h.User.Onboarding)
		r.Post("/onboarding", h.User.UpdateOnboarding)
	})

	r.Route("/journal", func(r chi.Router) {
		r.Use(requireAuth)
		r.Get("/", h.Journal.List)
		r.Post("/", h.Journal.Create)
		r.Get("/{id}", h.Journal.Get)
		r.Put("/{id}", h.Journal.Update)
		r.Delete("/{id}", h.Journal.Delete)
	})

	r.With(requireAuth).Get("/chat/previous-partners", h.Chat.PreviousPartners)

	// The socket authenticates itself so the token can come from the query.
	r.Get("/ws/chat", h.Chat.ServeWS)
}
