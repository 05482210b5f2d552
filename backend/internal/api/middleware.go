package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
)

type ctxKey string

const (
	actorCtxKey  ctxKey = "actor"
	tenantCtxKey ctxKey = "tenantID"
)

// actorMiddleware reads the operator identity from the configured header
// (no OAuth/session layer — see DESIGN.md) and stamps it on the request
// context so every handler can attribute its feedback/audit writes without
// re-parsing the header itself. A missing header falls back to "unknown"
// rather than rejecting the request; the core never trusts this value for
// anything but attribution.
func (s *Server) actorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actorID := r.Header.Get(s.config.ActorHeaderName)
		if actorID == "" {
			actorID = "unknown"
		}
		ctx := context.WithValue(r.Context(), actorCtxKey, actorID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func actorFromRequest(r *http.Request) string {
	if actorID, ok := r.Context().Value(actorCtxKey).(string); ok && actorID != "" {
		return actorID
	}
	return "unknown"
}

// tenantMiddleware resolves the {tenantSlug} path segment to a tenant id and
// pins it on the request context; every handler below it reads the id back
// via tenantIDFromRequest instead of re-resolving the slug.
func (s *Server) tenantMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		slug := mux.Vars(r)["tenantSlug"]
		t, err := s.db.FindTenantBySlug(r.Context(), slug)
		if err != nil {
			writeError(w, http.StatusNotFound, "unknown tenant")
			return
		}
		ctx := context.WithValue(r.Context(), tenantCtxKey, t.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func tenantIDFromRequest(r *http.Request) string {
	id, _ := r.Context().Value(tenantCtxKey).(string)
	return id
}
