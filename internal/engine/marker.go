package engine

import (
	"sync"

	"github.com/verdantlab/plantarium/internal/domain/aggregate"
)

// Marker tracks cascade completion per root command. A cascade starts with a
// count of one for the root; every derived command increments the count before
// its append and every settled command decrements it once. When the count
// reaches zero the cascade is complete and the issuer is notified exactly
// once.
type Marker struct {
	mu       sync.Mutex
	cascades map[aggregate.Ref]*cascadeState
}

type cascadeState struct {
	outstanding int
	failed      bool
	username    string
}

// NewMarker creates an empty marker.
func NewMarker() *Marker {
	return &Marker{cascades: make(map[aggregate.Ref]*cascadeState)}
}

// Track begins tracking a cascade rooted at the given aggregate, with a count
// of one for the root command itself.
func (m *Marker) Track(root aggregate.Ref, username string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.cascades[root]
	if !ok {
		state = &cascadeState{}
		m.cascades[root] = state
	}
	state.outstanding++
	if username != "" {
		state.username = username
	}
}

// Add increments the outstanding count for a tracked cascade. It is called
// before each derived command is appended so the cascade cannot complete while
// a branch is still fanning out.
func (m *Marker) Add(root aggregate.Ref, delta int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if state, ok := m.cascades[root]; ok {
		state.outstanding += delta
	}
}

// Fail records that a branch of the cascade failed. The completion
// notification reports failure once the cascade settles.
func (m *Marker) Fail(root aggregate.Ref) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if state, ok := m.cascades[root]; ok {
		state.failed = true
	}
}

// Settle decrements the outstanding count for one completed command. When the
// count reaches zero the cascade entry is removed and done is true; exactly
// one caller observes done per cascade.
func (m *Marker) Settle(root aggregate.Ref) (done bool, username string, failed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.cascades[root]
	if !ok {
		return false, "", false
	}
	state.outstanding--
	if state.outstanding > 0 {
		return false, "", false
	}
	delete(m.cascades, root)
	return true, state.username, state.failed
}

// Outstanding reports the in-flight count for a root. Zero means the cascade
// is not tracked.
func (m *Marker) Outstanding(root aggregate.Ref) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if state, ok := m.cascades[root]; ok {
		return state.outstanding
	}
	return 0
}
