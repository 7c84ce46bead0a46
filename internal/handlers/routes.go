package handlers

import (
	"net/http"
	"time"

	"github.com/cre8hub/backend/internal/middleware"
)

// RegisterRoutes wires HTTP handlers into the provided ServeMux.
func RegisterRoutes(mux *http.ServeMux, deps Dependencies) {
	health := HealthHandler{Cache: deps.Cache}
	auth := AuthHandler{Users: deps.Users, Sessions: deps.Sessions}
	profiles := ProfileHandler{Users: deps.Profiles}
	oauth := OAuthHandler{OAuth: deps.OAuth}
	personas := PersonaHandler{Personas: deps.Personas, Jobs: deps.PersonaJobs, WriteTimeout: deps.PersonaWriteTimeout}

	requireAuth := middleware.RequireAuth(deps.Tokens)
	authLimit := middleware.RateLimit(deps.AuthLimiter, "auth", time.Minute)
	personaLimit := middleware.RateLimit(deps.PersonaLimiter, "persona", time.Minute)

	protected := func(h http.HandlerFunc) http.Handler { return requireAuth(h) }
	limited := func(h http.HandlerFunc) http.Handler { return requireAuth(personaLimit(h)) }

	mux.HandleFunc("/healthz", health.Handle)
	mux.HandleFunc("/api/health", health.Handle)

	mux.Handle("/api/users/signup", authLimit(http.HandlerFunc(auth.SignUp)))
	mux.Handle("/api/users/signin", authLimit(http.HandlerFunc(auth.SignIn)))
	mux.HandleFunc("/api/users/refresh", auth.Refresh)
	mux.HandleFunc("/api/users/signout", auth.SignOut)
	mux.Handle("/api/users/me", protected(profiles.Me))
	mux.Handle("/api/users/profile", protected(profiles.UpdateProfile))
	mux.Handle("/api/users/profile/role", protected(profiles.UpdateRoleProfile))
	mux.Handle("/api/users/persona", protected(profiles.UpdatePersona))
	mux.Handle("/api/users/past-outputs", protected(profiles.AddPastOutput))

	mux.Handle("/api/oauth/youtube/auth-url", protected(oauth.AuthURL))
	mux.HandleFunc("/api/oauth/youtube/callback", oauth.Callback)
	mux.Handle("/api/oauth/youtube/status", protected(oauth.Status))
	mux.Handle("/api/oauth/youtube/disconnect", protected(oauth.Disconnect))
	mux.Handle("/api/oauth/youtube/refresh-token", protected(oauth.RefreshToken))

	mux.Handle("/api/youtube/extract-persona", limited(personas.Extract))
	mux.Handle("/api/youtube/extract-persona/cached", limited(personas.ExtractCached))
	mux.Handle("/api/youtube/extract-persona/jobs", limited(personas.SubmitJob))
	mux.Handle("/api/youtube/extract-persona/jobs/{id}", protected(personas.GetJob))
	mux.Handle("/api/youtube/transcripts", protected(personas.Transcripts))
	mux.Handle("/api/youtube/manual-persona", protected(profiles.ManualPersona))
}

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Users    UserStore
	Profiles ProfileStore
	Sessions SessionManager
	Tokens   middleware.TokenVerifier

	OAuth       YouTubeOAuth
	Personas    PersonaExtractor
	PersonaJobs PersonaJobs
	Cache       CacheHealth

	AuthLimiter    middleware.RateLimiter
	PersonaLimiter middleware.RateLimiter
	// PersonaWriteTimeout bounds a synchronous extraction response.
	PersonaWriteTimeout time.Duration
}
