package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/verdantlab/plantarium/internal/domain/aggregate"
	apperrors "github.com/verdantlab/plantarium/internal/platform/errors"
	"github.com/verdantlab/plantarium/internal/storage"
)

// Repository reconstructs aggregate state by replaying the stream from the
// beginning. No snapshot shortcut exists; replay is the only read path.
type Repository struct {
	store      storage.EventStore
	registries *Registries
}

// NewRepository creates a repository over the event store.
func NewRepository(store storage.EventStore, registries *Registries) *Repository {
	return &Repository{store: store, registries: registries}
}

// GetByID loads an aggregate by replaying its stream. It returns
// storage.ErrNotFound when the stream does not exist.
func (r *Repository) GetByID(ctx context.Context, ref aggregate.Ref) (Root, error) {
	entries, err := r.store.ReadStream(ctx, ref)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, storage.ErrNotFound
	}
	state, err := r.newState(ref)
	if err != nil {
		return nil, err
	}
	meta := state.Meta()
	for _, entry := range entries {
		switch entry.Kind {
		case storage.EntryCommand:
			meta.RecordCommand(entry.Command.ID)
		case storage.EntryEvent:
			if err := state.Apply(*entry.Event); err != nil {
				return nil, apperrors.Wrap(apperrors.CodeStorageFailure,
					fmt.Sprintf("replay %s at seq %d", ref, entry.Seq), err)
			}
		}
		meta.Version = entry.Seq
	}
	return state, nil
}

// GetOrNew loads an aggregate, returning a fresh zero-valued state when the
// stream does not exist yet.
func (r *Repository) GetOrNew(ctx context.Context, ref aggregate.Ref) (Root, error) {
	state, err := r.GetByID(ctx, ref)
	if errors.Is(err, storage.ErrNotFound) {
		return r.newState(ref)
	}
	return state, err
}

func (r *Repository) newState(ref aggregate.Ref) (Root, error) {
	factory, ok := r.registries.Factories[ref.Kind]
	if !ok {
		return nil, apperrors.WithMetadata(apperrors.CodeRegistryMisconfigured,
			"no factory registered for aggregate kind",
			map[string]string{"kind": string(ref.Kind)})
	}
	return factory(ref), nil
}

// Pass memoizes aggregate loads within one command-handling pass so the
// authorization check and the handler observe the same state without a second
// replay.
type Pass struct {
	repo  *Repository
	cache map[aggregate.Ref]Root
}

// NewPass creates an empty pass over the repository.
func NewPass(repo *Repository) *Pass {
	return &Pass{repo: repo, cache: make(map[aggregate.Ref]Root)}
}

// Load returns the aggregate state, replaying at most once per pass. It
// returns storage.ErrNotFound when the stream does not exist.
func (p *Pass) Load(ctx context.Context, ref aggregate.Ref) (Root, error) {
	if state, ok := p.cache[ref]; ok {
		return state, nil
	}
	state, err := p.repo.GetByID(ctx, ref)
	if err != nil {
		return nil, err
	}
	p.cache[ref] = state
	return state, nil
}

// LoadOrNew returns the aggregate state, or a fresh zero-valued state when the
// stream does not exist yet.
func (p *Pass) LoadOrNew(ctx context.Context, ref aggregate.Ref) (Root, error) {
	if state, ok := p.cache[ref]; ok {
		return state, nil
	}
	state, err := p.repo.GetOrNew(ctx, ref)
	if err != nil {
		return nil, err
	}
	p.cache[ref] = state
	return state, nil
}
