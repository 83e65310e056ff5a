package shared

import (
	"context"
	"net/http"
	"strconv"
)

type contextKey string

const actorKey contextKey = "actor"

// ActorHeader carries the acting user's ID, stamped by the API gateway.
const ActorHeader = "X-Actor-ID"

// ContextWithActor returns a context carrying the acting user's ID.
func ContextWithActor(ctx context.Context, actorID int64) context.Context {
	return context.WithValue(ctx, actorKey, actorID)
}

// ActorFromContext extracts the acting user's ID, 0 when absent.
func ActorFromContext(ctx context.Context) int64 {
	if v, ok := ctx.Value(actorKey).(int64); ok {
		return v
	}
	return 0
}

// WithActor copies the actor header into the request context so layers
// below the router can identify the caller without touching the request.
func WithActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, err := strconv.ParseInt(r.Header.Get(ActorHeader), 10, 64); err == nil {
			r = r.WithContext(ContextWithActor(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

// ActorFromRequest resolves the acting user from the request context,
// falling back to the raw header and then to 0.
func ActorFromRequest(r *http.Request) int64 {
	if id := ActorFromContext(r.Context()); id != 0 {
		return id
	}
	id, err := strconv.ParseInt(r.Header.Get(ActorHeader), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
