// Package command defines the command envelope, command results, and the
// command-type registry.
package command

import (
	"time"

	"github.com/verdantlab/plantarium/internal/domain/aggregate"
)

// Type identifies the command type string.
type Type string

// Command is a request to change exactly one aggregate.
type Command struct {
	// ID uniquely identifies the command. Derived commands spawned by
	// subscriptions reuse the root command's id so redelivery is idempotent
	// per target stream.
	ID string
	// Type identifies the kind of command.
	Type Type
	// Timestamp is when the command was issued.
	Timestamp time.Time
	// Aggregate addresses the single aggregate this command targets.
	Aggregate aggregate.Ref
	// InitialAggregate marks the root of a cascade. Nil when this command is
	// itself the root.
	InitialAggregate *aggregate.Ref
	// IssuerUsername is the caller the cascade completion is reported to.
	IssuerUsername string
	// PayloadJSON holds command-specific data as JSON.
	PayloadJSON []byte
}

// Root returns the aggregate the cascade is tracked against: the initial
// aggregate when set, otherwise this command's own target.
func (c Command) Root() aggregate.Ref {
	if c.InitialAggregate != nil {
		return *c.InitialAggregate
	}
	return c.Aggregate
}

// WithTarget re-addresses the command at a different aggregate, preserving
// the command id and recording the cascade root. Subscriptions use it to
// build derived commands.
func (c Command) WithTarget(target aggregate.Ref) Command {
	root := c.Root()
	c.InitialAggregate = &root
	c.Aggregate = target
	return c
}

// Forbidden carries the human-readable reasons a command was declined.
// It is a result, not an error: forbidden commands are reported to the
// caller and never retried automatically.
type Forbidden struct {
	Reasons []string
}

// Result is the outcome of submitting a command: either accepted at a new
// stream version, or forbidden with reasons. No other outcome exists.
type Result struct {
	Version   uint64
	Forbidden *Forbidden
}

// Accepted returns an accepted result at the given stream version.
func Accepted(version uint64) Result {
	return Result{Version: version}
}

// IsAccepted reports whether the command was accepted.
func (r Result) IsAccepted() bool {
	return r.Forbidden == nil
}
