package app

import (
	"net/http"

	"github.com/aliuyar1234/traineeportal/internal/apperrors"
	"github.com/aliuyar1234/traineeportal/internal/audit"
	"github.com/aliuyar1234/traineeportal/internal/auth"
	"github.com/aliuyar1234/traineeportal/internal/cohorts"
	"github.com/aliuyar1234/traineeportal/internal/config"
	"github.com/aliuyar1234/traineeportal/internal/invites"
	"github.com/aliuyar1234/traineeportal/internal/notifications"
	"github.com/aliuyar1234/traineeportal/internal/signup"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates and configures the Chi router with all middleware and routes
func NewRouter(cfg *config.Config, svc *Services) *chi.Mux {
	r := chi.NewRouter()

	isProduction := !cfg.IsDev()

	r.Use(middleware.RealIP)
	r.Use(apperrors.RequestIDMiddleware)
	r.Use(LoggingMiddleware)
	r.Use(RecoveryMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.BaseURL},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", auth.CSRFHeaderName},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(auth.AuthMiddleware(cfg.JWTSecret, isProduction))

	r.Get("/healthz", handleHealthz)
	r.Get("/readyz", handleReadyz(svc.DB))

	publicLimit := PublicRateLimitMiddleware(cfg.RateLimitRPM)

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(NoCacheMiddleware)

		r.Get("/csrf", auth.HandleCSRFToken(isProduction))

		r.Group(func(r chi.Router) {
			r.Use(CSRFMiddleware)

			r.With(publicLimit).Post("/register", signup.HandleRegister(svc.Registrar))
			r.With(LoginRateLimitMiddleware()).Post("/login", auth.HandleLogin(svc.Identities, svc.Profiles, svc.Auditor, auth.SessionConfig{
				Secret:       cfg.JWTSecret,
				SessionDays:  cfg.SessionDays,
				IsProduction: isProduction,
			}))
			r.With(auth.RequireAuth).Post("/logout", auth.HandleLogout(isProduction))
		})

		r.With(auth.RequireAuth).Get("/me", auth.HandleMe(svc.Profiles))
	})

	r.Route("/api/v1/invites", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(NoCacheMiddleware)

		r.With(publicLimit).Get("/check", invites.HandleCheck(svc.Invites))

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireStaff)
			r.Use(CSRFMiddleware)

			r.Post("/", invites.HandleIssue(svc.Invites, svc.Dispatcher, svc.Auditor))
			r.Get("/", invites.HandleList(svc.Invites))
			r.Post("/dispatch", invites.HandleDispatch(svc.Invites, svc.Dispatcher, svc.Auditor))
			r.Post("/{invite_id}/link", invites.HandleRotate(svc.Invites, svc.Dispatcher, svc.Auditor, false))
			r.Post("/{invite_id}/dispatch", invites.HandleRotate(svc.Invites, svc.Dispatcher, svc.Auditor, true))
		})
	})

	r.Route("/api/v1/cohorts", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(auth.RequireStaff)
		r.Use(CSRFMiddleware)

		r.Post("/", cohorts.HandleCreate(svc.Cohorts, svc.Auditor))
		r.Get("/", cohorts.HandleList(svc.Cohorts))
		r.Get("/{cohort_id}", cohorts.HandleGet(svc.Cohorts))
	})

	if svc.Broadcasts != nil {
		r.Route("/api/v1/notifications", func(r chi.Router) {
			r.Use(ContentTypeJSON)
			r.Use(NoCacheMiddleware)
			r.Use(auth.RequireStaff)
			r.Use(CSRFMiddleware)

			r.Post("/", notifications.HandleSend(svc.Broadcasts, svc.Auditor))
			r.Get("/", notifications.HandleList(svc.Broadcasts))
		})
	}

	if svc.AuditReader != nil {
		r.Route("/api/v1/audit", func(r chi.Router) {
			r.Use(ContentTypeJSON)
			r.Use(auth.RequireStaff)

			r.Get("/", audit.HandleList(svc.AuditReader))
		})
	}

	return r
}

// handleHealthz returns a simple liveness check
func handleHealthz(w http.ResponseWriter, r *http.Request) {
	apperrors.WriteSuccess(w, r, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// handleReadyz returns 200 when the database answers a ping, 503 otherwise
func handleReadyz(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db == nil {
			apperrors.WriteSuccess(w, r, http.StatusOK, map[string]string{"status": "ready"})
			return
		}
		if err := db.Ping(r.Context()); err != nil {
			apperrors.WriteServiceUnavailable(w, r, "Database connection failed")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]string{
			"status": "ready",
			"db":     "ok",
		})
	}
}
