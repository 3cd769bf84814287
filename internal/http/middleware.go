package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/KalanaDissanayke/Emporium-API/internal/auth"
)

const (
	HeaderUserID = "X-User-Id"
	HeaderRole   = "X-User-Role"
)

type ctxKey string

const ctxActor ctxKey = "actor"

// RequireActor reads the identity headers the authentication layer in front
// of this service sets, and stores the resulting actor in the request
// context. Requests without a user id are rejected.
func RequireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(HeaderUserID))
		if userID == "" {
			writeError(w, http.StatusUnauthorized, "missing required header: "+HeaderUserID)
			return
		}

		actor := auth.Actor{
			UserID: userID,
			Role:   auth.ParseRole(strings.TrimSpace(r.Header.Get(HeaderRole))),
		}
		ctx := context.WithValue(r.Context(), ctxActor, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func actorFrom(ctx context.Context) auth.Actor {
	actor, _ := ctx.Value(ctxActor).(auth.Actor)
	return actor
}
