package bootstrap

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/paygate/internal/pkg/config"
	"github.com/ManuelReschke/paygate/internal/pkg/env"
)

const shutdownTimeout = 10 * time.Second

// Serve runs the HTTP server and the reconcile scheduler until SIGINT/SIGTERM.
func Serve() error {
	env.SetupEnvFile()
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, err := NewGateway(ctx, cfg)
	if err != nil {
		return fmt.Errorf("startup: %w", err)
	}
	defer g.Close()

	sched := NewScheduler(g.Core)
	sched.Start(ctx)
	defer sched.Stop()

	app := NewApplication(g)
	go func() {
		<-ctx.Done()
		log.Info("[Bootstrap] Shutting down...")
		if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			log.Errorf("[Bootstrap] Shutdown failed: %v", err)
		}
	}()

	log.Infof("[Bootstrap] Listening on %s (%s/%s)", cfg.ListenAddr(), cfg.Location, cfg.Environment)
	return app.Listen(cfg.ListenAddr())
}
