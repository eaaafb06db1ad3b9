// Package projection refreshes the materialized read models query services
// consume. Refresh happens after the stream append and outside its
// transaction; a refresh failure never rolls back events.
package projection

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/verdantlab/plantarium/internal/domain/aggregate"
	"github.com/verdantlab/plantarium/internal/engine"
	"github.com/verdantlab/plantarium/internal/storage"
)

// Loader replays an aggregate's stream into its current state.
type Loader interface {
	GetByID(ctx context.Context, ref aggregate.Ref) (engine.Root, error)
}

// Updater serializes replayed aggregate state into the projection store.
type Updater struct {
	loader Loader
	store  storage.ProjectionStore
	clock  func() time.Time
}

// NewUpdater creates an updater over the loader and projection store.
func NewUpdater(loader Loader, store storage.ProjectionStore) *Updater {
	return &Updater{
		loader: loader,
		store:  store,
		clock:  func() time.Time { return time.Now().UTC() },
	}
}

// UpdateProjection replays the aggregate and upserts its read model.
func (u *Updater) UpdateProjection(ctx context.Context, ref aggregate.Ref) error {
	state, err := u.loader.GetByID(ctx, ref)
	if err != nil {
		return fmt.Errorf("load %s: %w", ref, err)
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("serialize %s: %w", ref, err)
	}
	return u.store.PutProjection(ctx, storage.ProjectionRecord{
		Aggregate: ref,
		Version:   state.Meta().Version,
		StateJSON: data,
		UpdatedAt: u.clock(),
	})
}
