// Command engine runs the plantarium command-processing engine.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/verdantlab/plantarium/internal/app"
	"github.com/verdantlab/plantarium/internal/platform/config"
	"github.com/verdantlab/plantarium/internal/platform/otel"
)

type engineConfig struct {
	DatabasePath    string        `env:"PLANTARIUM_DB_PATH" envDefault:"plantarium.db"`
	FilesDir        string        `env:"PLANTARIUM_FILES_DIR" envDefault:"uploads"`
	TokenSecret     string        `env:"PLANTARIUM_TOKEN_SECRET,required"`
	TokenTTL        time.Duration `env:"PLANTARIUM_TOKEN_TTL" envDefault:"12h"`
	MaxCascadeDepth int           `env:"PLANTARIUM_MAX_CASCADE_DEPTH" envDefault:"16"`
	NotifyRetention int           `env:"PLANTARIUM_NOTIFY_RETENTION" envDefault:"64"`
}

func main() {
	log.SetPrefix("engine: ")
	log.SetFlags(log.LstdFlags | log.Lmsgprefix)

	var cfg engineConfig
	if err := config.ParseEnv(&cfg); err != nil {
		config.Exitf("engine: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Setup(ctx, "plantarium-engine")
	if err != nil {
		config.Exitf("engine: otel setup: %v", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Printf("otel shutdown: %v", err)
		}
	}()

	service, err := app.New(app.Options{
		DatabasePath:    cfg.DatabasePath,
		FilesDir:        cfg.FilesDir,
		TokenSecret:     []byte(cfg.TokenSecret),
		TokenTTL:        cfg.TokenTTL,
		MaxCascadeDepth: cfg.MaxCascadeDepth,
		NotifyRetention: cfg.NotifyRetention,
	})
	if err != nil {
		config.Exitf("engine: %v", err)
	}
	log.Printf("engine ready, database %s", cfg.DatabasePath)

	<-ctx.Done()
	log.Print("shutting down")
	if err := service.Close(); err != nil {
		log.Printf("close: %v", err)
	}
}
