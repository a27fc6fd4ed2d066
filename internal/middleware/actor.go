package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/vetfieldhq/vetfield/internal/auth"
)

// ActorMiddleware reads the X-Actor-ID header and stashes the acting
// user's identifier on the request context. A missing or malformed
// header leaves the actor unset rather than rejecting the request.
func ActorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get("X-Actor-ID"))
		if raw != "" {
			if id, err := uuid.Parse(raw); err == nil {
				r = r.WithContext(auth.ContextWithActorID(r.Context(), id))
			}
		}
		next.ServeHTTP(w, r)
	})
}
