package middleware

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const (
	ctxBusinessID contextKey = "business_id"
	ctxLocationID contextKey = "location_id"
	ctxActorID    contextKey = "actor_user_id"
)

func BusinessIDFromContext(ctx context.Context) uuid.UUID {
	return idFromContext(ctx, ctxBusinessID)
}

func LocationIDFromContext(ctx context.Context) uuid.UUID {
	return idFromContext(ctx, ctxLocationID)
}

func ActorIDFromContext(ctx context.Context) uuid.UUID {
	return idFromContext(ctx, ctxActorID)
}

// WithTenant injects the business and location identifiers for downstream
// handlers.
func WithTenant(ctx context.Context, businessID, locationID uuid.UUID) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxBusinessID, businessID)
	return context.WithValue(ctx, ctxLocationID, locationID)
}

// WithActor injects the acting user identifier.
func WithActor(ctx context.Context, userID uuid.UUID) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxActorID, userID)
}

func idFromContext(ctx context.Context, key contextKey) uuid.UUID {
	if ctx == nil {
		return uuid.Nil
	}
	if v, ok := ctx.Value(key).(uuid.UUID); ok {
		return v
	}
	return uuid.Nil
}
