package auth

import (
	"context"

	"github.com/google/uuid"

	"github.com/mailroomhq/mailroom-backend/internal/domain"
)

type actorCtxKey struct{}

// WithActor stores the authenticated actor in the context.
func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorCtxKey{}, actor)
}

// ActorFromCtx extracts the authenticated actor from the context.
// Returns false if no actor was stored or the stored actor has no ID.
func ActorFromCtx(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorCtxKey{}).(domain.Actor)
	if !ok || actor.ID == uuid.Nil {
		return domain.Actor{}, false
	}
	return actor, true
}
