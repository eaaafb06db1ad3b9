package authz

import (
	"fmt"

	"github.com/verdantlab/plantarium/internal/domain/command"
)

// Fine-grained checks are boolean combinators over *command.Forbidden values:
// nil means allowed. They compose like
//
//	authz.Or(authz.HasRole(id, authz.RoleManager),
//	         authz.And(authz.HasRole(id, authz.RoleProducer), isCaretaker))
//
// which allows managers unconditionally and producers only when the caretaker
// predicate holds.

// HasRole allows identities holding the role.
func HasRole(identity Identity, role Role) *command.Forbidden {
	if identity.HasRole(role) {
		return nil
	}
	return &command.Forbidden{Reasons: []string{fmt.Sprintf("caller lacks role %s", role)}}
}

// Require allows when ok is true, otherwise forbids with the reason.
func Require(ok bool, reason string) *command.Forbidden {
	if ok {
		return nil
	}
	return &command.Forbidden{Reasons: []string{reason}}
}

// And allows only when both checks allow. Reasons accumulate.
func And(checks ...*command.Forbidden) *command.Forbidden {
	var reasons []string
	for _, check := range checks {
		if check != nil {
			reasons = append(reasons, check.Reasons...)
		}
	}
	if len(reasons) == 0 {
		return nil
	}
	return &command.Forbidden{Reasons: reasons}
}

// Or allows when any check allows. When all forbid, every reason is reported.
func Or(checks ...*command.Forbidden) *command.Forbidden {
	var reasons []string
	for _, check := range checks {
		if check == nil {
			return nil
		}
		reasons = append(reasons, check.Reasons...)
	}
	return &command.Forbidden{Reasons: reasons}
}
