package shared

import "context"

type actorContextKey struct{}

// Actor is the authenticated caller. ID is opaque to the core and only used
// for attribution and ownership checks.
type Actor struct {
	ID   string
	Role Role
}

// IsZero reports whether no identity was attached.
func (a Actor) IsZero() bool {
	return a.ID == ""
}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	if !ok || actor.IsZero() {
		return Actor{}, false
	}
	return actor, true
}
