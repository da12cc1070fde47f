package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/quizbank/importer/internal/domain"
)

type contextKey string

const actorKey contextKey = "actor"

// ContextWithActor returns a new context carrying the authenticated operator.
func ContextWithActor(ctx context.Context, actor domain.Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFromContext retrieves the authenticated operator from the context, if any.
func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	if ctx == nil {
		return domain.Actor{}, false
	}
	value := ctx.Value(actorKey)
	if value == nil {
		return domain.Actor{}, false
	}
	actor, ok := value.(domain.Actor)
	if !ok || strings.TrimSpace(actor.ID) == "" {
		return domain.Actor{}, false
	}
	return actor, true
}

// RequireActor returns the operator on the context or an error when absent.
// Authentication itself happens upstream; this only enforces that it did.
func RequireActor(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Actor{}, fmt.Errorf("operator identity is required")
	}
	return actor, nil
}
