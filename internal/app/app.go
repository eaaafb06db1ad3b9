// Package app wires the storage, engine, domain registrations, and boundary
// services into one runnable unit.
package app

import (
	"context"
	"time"

	"github.com/verdantlab/plantarium/internal/auth"
	"github.com/verdantlab/plantarium/internal/domain/aggregate"
	"github.com/verdantlab/plantarium/internal/domain/command"
	"github.com/verdantlab/plantarium/internal/domain/info"
	"github.com/verdantlab/plantarium/internal/domain/instruction"
	"github.com/verdantlab/plantarium/internal/domain/order"
	"github.com/verdantlab/plantarium/internal/domain/stock"
	"github.com/verdantlab/plantarium/internal/domain/user"
	"github.com/verdantlab/plantarium/internal/engine"
	"github.com/verdantlab/plantarium/internal/notify"
	"github.com/verdantlab/plantarium/internal/projection"
	"github.com/verdantlab/plantarium/internal/storage/files"
	"github.com/verdantlab/plantarium/internal/storage/sqlite"
	"github.com/verdantlab/plantarium/internal/telemetry"
)

// Options carries the startup configuration for a Service.
type Options struct {
	DatabasePath    string
	FilesDir        string
	TokenSecret     []byte
	TokenTTL        time.Duration
	MaxCascadeDepth int
	NotifyRetention int
}

// Service is the fully wired engine with its storage and boundary services.
type Service struct {
	Store      *sqlite.Store
	Engine     *engine.Engine
	Hub        *notify.Hub
	Tokens     *auth.Tokens
	Registries *engine.Registries
}

// New builds the registries for every domain aggregate and wires the engine
// on top of the SQLite store.
func New(opts Options) (*Service, error) {
	store, err := sqlite.Open(opts.DatabasePath)
	if err != nil {
		return nil, err
	}
	uploads, err := files.New(opts.FilesDir)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	b := engine.NewBuilder()
	stock.Register(b, uploads)
	order.Register(b)
	instruction.Register(b, uploads)
	user.Register(b)
	info.Register(b)
	registries, err := b.Build()
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	repo := engine.NewRepository(store, registries)
	updater := projection.NewUpdater(repo, store)
	hub := notify.NewHub(opts.NotifyRetention)
	eng := engine.New(registries, store, updater, hubNotifier{hub}, telemetry.NewEmitter(store),
		engine.Config{MaxCascadeDepth: opts.MaxCascadeDepth})

	return &Service{
		Store:      store,
		Engine:     eng,
		Hub:        hub,
		Tokens:     auth.NewTokens(opts.TokenSecret, opts.TokenTTL),
		Registries: registries,
	}, nil
}

// Submit verifies the caller's token and runs the command through the engine.
func (s *Service) Submit(ctx context.Context, token string, cmd command.Command) (command.Result, error) {
	identity, err := s.Tokens.Verify(token)
	if err != nil {
		return command.Result{}, err
	}
	return s.Engine.SubmitCommand(ctx, cmd, identity)
}

// Close drains in-flight cascades and releases storage.
func (s *Service) Close() error {
	s.Engine.Drain()
	return s.Store.Close()
}

// hubNotifier adapts the push-queue hub to the engine's completion callback.
type hubNotifier struct {
	hub *notify.Hub
}

func (n hubNotifier) SendCompletion(ctx context.Context, username string, cmd command.Command, root aggregate.Ref, success bool) error {
	return n.hub.SendNotification(ctx, username, notify.Payload{
		Command: notify.CommandInfo{
			ID:        cmd.ID,
			Name:      string(cmd.Type),
			Time:      cmd.Timestamp,
			Aggregate: root,
		},
		Success: success,
	})
}
