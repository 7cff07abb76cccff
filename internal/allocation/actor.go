package allocation

import "context"

type actorKey struct{}

// Actor identifies who triggered an operation and from where. It is stamped
// onto every consumption line.
type Actor struct {
	ID string
	IP string
}

// WithActor attaches the actor to ctx.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom returns the actor stored in ctx, or the zero Actor.
func ActorFrom(ctx context.Context) Actor {
	actor, _ := ctx.Value(actorKey{}).(Actor)
	return actor
}
