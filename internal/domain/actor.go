package domain

import (
	"strings"

	"github.com/google/uuid"
)

// Role is an actor's position in the organization. Privileged roles may
// perform any table-legal transition; the rest are bound to their service.
type Role string

const (
	RoleAdmin      Role = "ADMIN"
	RoleSupervisor Role = "SUPERVISOR"
	RoleValidator  Role = "VALIDATOR"
	RoleAgent      Role = "AGENT"
)

func (r Role) String() string { return string(r) }

func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleSupervisor, RoleValidator, RoleAgent:
		return true
	}
	return false
}

// IsPrivileged reports whether the role bypasses service-scoped checks.
func (r Role) IsPrivileged() bool {
	return r == RoleAdmin || r == RoleSupervisor
}

// Actor is the authenticated principal performing a lifecycle action.
type Actor struct {
	ID      uuid.UUID
	Name    string
	Role    Role
	Service string
}

// NormalizeService canonicalizes a service code for comparison
// (trimmed, upper-cased). Service codes are stored this way too.
func NormalizeService(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// Authorize checks the role/service layer of a transition. The transition
// table must already have allowed the move; this answers only "may this
// actor do it". Returns an *AuthorizationError on denial.
func Authorize(actor Actor, action Action, assignedService *string) error {
	if actor.Role.IsPrivileged() {
		return nil
	}

	svc := ""
	if assignedService != nil {
		svc = NormalizeService(*assignedService)
	}

	if svc == "" {
		return &AuthorizationError{
			Action: action,
			Reason: "document has no assigned service; privileged role required",
		}
	}

	if NormalizeService(actor.Service) != svc {
		return &AuthorizationError{
			Action:          action,
			RequiredService: svc,
			ActorService:    NormalizeService(actor.Service),
			Reason:          "actor belongs to a different service",
		}
	}

	if action.RequiresValidator() && actor.Role != RoleValidator {
		return &AuthorizationError{
			Action:          action,
			RequiredService: svc,
			ActorService:    NormalizeService(actor.Service),
			Reason:          "reserved to the service's validator",
		}
	}

	return nil
}
