package domain

import "context"

type actorKey struct{}

// Actor carries the authenticated caller identity through request context.
type Actor struct {
	Name    string
	IsAdmin bool
}

// WithActor stores an Actor in the context.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// ActorFromContext extracts the Actor from the context.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(Actor)
	return a, ok
}
