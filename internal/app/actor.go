package app

import (
	"context"
	"strings"
)

// ActorRole separates staff editing progress from administrators changing settings.
type ActorRole string

// RoleStaff and related constants define the supported actor roles.
const (
	RoleStaff ActorRole = "staff"
	RoleAdmin ActorRole = "admin"
)

// Actor carries normalized caller identity for attribution and privilege checks.
type Actor struct {
	ID   string
	Role ActorRole
}

// IsAdmin reports whether the actor may change process-wide settings.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// WithActor attaches a normalized actor to context.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, normalizeActor(actor))
}

// ActorFromContext returns the normalized actor when present.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	if !ok {
		return Actor{}, false
	}
	actor = normalizeActor(actor)
	if actor.ID == "" {
		return Actor{}, false
	}
	return actor, true
}

type actorContextKey struct{}

// normalizeActor trims identity fields and defaults unknown roles to staff.
func normalizeActor(actor Actor) Actor {
	actor.ID = strings.TrimSpace(actor.ID)
	actor.Role = ActorRole(strings.TrimSpace(strings.ToLower(string(actor.Role))))
	switch actor.Role {
	case RoleStaff, RoleAdmin:
	default:
		actor.Role = RoleStaff
	}
	return actor
}

// ParseActorRole normalizes a role string, defaulting to staff.
func ParseActorRole(raw string) ActorRole {
	return normalizeActor(Actor{Role: ActorRole(raw)}).Role
}
