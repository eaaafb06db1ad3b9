package authz

// ApplyRoleChange toggles a role in a role set without mutating the input:
// holding the role removes it, lacking it appends it. Aggregates fold role
// change events through this single pure function.
func ApplyRoleChange(current []Role, role Role) []Role {
	next := make([]Role, 0, len(current)+1)
	removed := false
	for _, r := range current {
		if r == role {
			removed = true
			continue
		}
		next = append(next, r)
	}
	if !removed {
		next = append(next, role)
	}
	return next
}
