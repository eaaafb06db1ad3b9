// Package authz evaluates whether a caller may execute a command against an
// aggregate's declared access policy.
//
// Authorization composes two layers: a coarse per-aggregate-kind policy (which
// roles hold read or write access) and handler-specific fine-grained checks
// built from the combinators in this package.
package authz

import (
	"fmt"

	"github.com/verdantlab/plantarium/internal/domain/aggregate"
	"github.com/verdantlab/plantarium/internal/domain/command"
	apperrors "github.com/verdantlab/plantarium/internal/platform/errors"
)

// Role is a caller capability group.
type Role string

const (
	// RoleConsumer may browse and order posted stock.
	RoleConsumer Role = "consumer"
	// RoleProducer may manage stock and instructions they care for.
	RoleProducer Role = "producer"
	// RoleManager may manage everything.
	RoleManager Role = "manager"
)

// Permission is an access level against an aggregate kind.
type Permission string

const (
	// PermissionRead allows loading aggregate state.
	PermissionRead Permission = "read"
	// PermissionWrite allows submitting commands.
	PermissionWrite Permission = "write"
)

// Identity is the authenticated caller a command runs as.
type Identity struct {
	Username string
	Roles    []Role
}

// HasRole reports whether the identity holds the role.
func (i Identity) HasRole(role Role) bool {
	for _, r := range i.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Policy declares which roles hold which permissions on one aggregate kind.
type Policy map[Role][]Permission

// Allows reports whether any of the identity's roles holds the permission.
func (p Policy) Allows(identity Identity, perm Permission) bool {
	for _, role := range identity.Roles {
		for _, granted := range p[role] {
			if granted == perm {
				return true
			}
		}
	}
	return false
}

// PolicyRegistry holds the static access policies for all aggregate kinds.
// It is constructed once at startup and passed in explicitly.
type PolicyRegistry struct {
	policies map[aggregate.Kind]Policy
}

// NewPolicyRegistry creates an empty policy registry.
func NewPolicyRegistry() *PolicyRegistry {
	return &PolicyRegistry{policies: make(map[aggregate.Kind]Policy)}
}

// Register declares the policy for an aggregate kind.
func (r *PolicyRegistry) Register(kind aggregate.Kind, policy Policy) error {
	if r == nil {
		return apperrors.New(apperrors.CodeRegistryMisconfigured, "policy registry is required")
	}
	if !kind.IsValid() {
		return apperrors.New(apperrors.CodeRegistryMisconfigured, "aggregate kind is required")
	}
	if _, exists := r.policies[kind]; exists {
		return apperrors.New(apperrors.CodeRegistryMisconfigured,
			fmt.Sprintf("policy already registered for %s", kind))
	}
	r.policies[kind] = policy
	return nil
}

// CheckWrite runs the coarse policy check: does any of the caller's roles
// hold write access on the aggregate kind.
func (r *PolicyRegistry) CheckWrite(kind aggregate.Kind, identity Identity) *command.Forbidden {
	if r == nil {
		return &command.Forbidden{Reasons: []string{"no access policy configured"}}
	}
	policy, ok := r.policies[kind]
	if !ok {
		return &command.Forbidden{Reasons: []string{
			fmt.Sprintf("no access policy declared for %s", kind)}}
	}
	if !policy.Allows(identity, PermissionWrite) {
		return &command.Forbidden{Reasons: []string{
			fmt.Sprintf("none of the caller's roles may write %s", kind)}}
	}
	return nil
}

// Known reports whether a policy exists for the kind.
func (r *PolicyRegistry) Known(kind aggregate.Kind) bool {
	if r == nil {
		return false
	}
	_, ok := r.policies[kind]
	return ok
}
