package engine

import "context"

type actorKey struct{}

// WithActor returns a context carrying the acting user's name. The HTTP
// layer sets it from the session; audit entries and events read it back.
func WithActor(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, actorKey{}, name)
}

// ActorFrom returns the acting user, or "system" when none is set.
func ActorFrom(ctx context.Context) string {
	if name, ok := ctx.Value(actorKey{}).(string); ok && name != "" {
		return name
	}
	return "system"
}
