// Package user implements the user account aggregate: registration, role
// toggling, and the cared-plants counter fed by stock events.
package user

import (
	"encoding/json"
	"fmt"

	"github.com/verdantlab/plantarium/internal/domain/aggregate"
	"github.com/verdantlab/plantarium/internal/domain/authz"
	"github.com/verdantlab/plantarium/internal/domain/event"
	"github.com/verdantlab/plantarium/internal/domain/stock"
)

// Event types appended to user streams. User streams also fold rebroadcast
// stock.added events to count plants under the user's care.
const (
	EventUserCreated     event.Type = "user.created"
	EventRoleChanged     event.Type = "user.role_changed"
	EventPasswordChanged event.Type = "user.password_changed"
)

// Profile is the registration data carried by EventUserCreated.
type Profile struct {
	FirstName   string       `json:"first_name"`
	LastName    string       `json:"last_name"`
	PhoneNumber string       `json:"phone_number"`
	Login       string       `json:"login"`
	Email       string       `json:"email"`
	Language    string       `json:"language"`
	Roles       []authz.Role `json:"roles"`
}

// CreatedPayload is the payload of EventUserCreated.
type CreatedPayload struct {
	Profile Profile `json:"profile"`
}

// RoleChangedPayload is the payload of EventRoleChanged.
type RoleChangedPayload struct {
	Role authz.Role `json:"role"`
}

// User is the aggregate state folded from a user stream.
type User struct {
	meta aggregate.Metadata

	Profile     Profile `json:"profile"`
	PlantsCared int64   `json:"plants_cared"`
}

// New returns a fresh, never-persisted user state.
func New(ref aggregate.Ref) *User {
	return &User{meta: aggregate.NewMetadata(ref)}
}

// Meta returns the stream bookkeeping.
func (u *User) Meta() *aggregate.Metadata { return &u.meta }

// Apply folds one event into the state.
func (u *User) Apply(evt event.Event) error {
	switch evt.Type {
	case EventUserCreated:
		var payload CreatedPayload
		if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
			return fmt.Errorf("decode %s: %w", evt.Type, err)
		}
		u.Profile = payload.Profile
	case EventRoleChanged:
		var payload RoleChangedPayload
		if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
			return fmt.Errorf("decode %s: %w", evt.Type, err)
		}
		u.Profile.Roles = authz.ApplyRoleChange(u.Profile.Roles, payload.Role)
	case EventPasswordChanged:
		// Credentials live at the boundary; the stream only records the fact.
	case stock.EventStockAdded:
		u.PlantsCared++
	}
	return nil
}
