package handlers

import "net/http"

// CacheHealth reports whether the shared cache is reaching Redis.
type CacheHealth interface {
	Healthy() bool
}

// HealthHandler responds with service health information.
type HealthHandler struct {
	Cache CacheHealth
}

// Handle implements GET /healthz and GET /api/health. A degraded cache is
// reported but does not fail the check.
func (h HealthHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	cacheState := "disabled"
	if h.Cache != nil {
		cacheState = "redis"
		if !h.Cache.Healthy() {
			cacheState = "memory"
		}
	}

	respondSuccess(r.Context(), w, http.StatusOK, map[string]any{
		"status": "ok",
		"cache":  cacheState,
	})
}
