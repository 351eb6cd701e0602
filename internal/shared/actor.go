package shared

import "context"

// Actor identifies the user performing a core operation together with the
// organization the operation runs under. Core services never read ambient
// request state; callers pass the actor explicitly.
type Actor struct {
	UserID int64
	OrgID  int64
	Roles  []string
}

// HasRole reports whether the actor carries the given role.
func (a Actor) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

type actorContextKey struct{}

// ContextWithActor stores the actor in context for transport layers.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok
}
