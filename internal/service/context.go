package service

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey string

const ctxActorIDKey ctxKey = "actorID"

// WithActorID кладёт в контекст идентификатор оператора — он попадает
// в removed_by при административном удалении.
func WithActorID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, ctxActorIDKey, id)
}

func ActorIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	v, ok := ctx.Value(ctxActorIDKey).(uuid.UUID)
	return v, ok
}
