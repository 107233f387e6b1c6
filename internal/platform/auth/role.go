package auth

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Role is the closed set of account roles. A user's role is fixed at creation.
type Role string

const (
	RolePatient  Role = "patient"
	RoleDoctor   Role = "doctor"
	RolePharmacy Role = "pharmacy"
	RoleAdmin    Role = "admin"
)

// ParseRole validates s against the known roles.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RolePatient, RoleDoctor, RolePharmacy, RoleAdmin:
		return r, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// Actor is the authenticated caller of a domain operation.
type Actor struct {
	ID   uuid.UUID
	Role Role
}

func (a Actor) Is(roles ...Role) bool {
	for _, r := range roles {
		if a.Role == r {
			return true
		}
	}
	return false
}

type contextKey string

const actorKey contextKey = "actor"

// WithActor stores the actor on ctx.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey, a)
}

// ActorFromContext returns the authenticated actor, if any.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey).(Actor)
	return a, ok
}
