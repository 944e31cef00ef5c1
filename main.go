package main

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/paygate/internal/pkg/bootstrap"
	"github.com/ManuelReschke/paygate/internal/pkg/config"
	"github.com/ManuelReschke/paygate/internal/pkg/env"
)

// main runs the gateway for local development with `go run .`. Deployed
// servers use cmd/paygate, which adds the scheduler and graceful shutdown.
func main() {
	app, cfg, closeApp, err := NewApplication(context.Background())
	if err != nil {
		log.Fatal(err)
	}
	defer closeApp()

	log.Fatal(app.Listen(cfg.ListenAddr()))
}

func NewApplication(ctx context.Context) (*fiber.App, *config.Config, func(), error) {
	env.SetupEnvFile()
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, err
	}
	if !cfg.IsLocal() {
		log.Warnf("[Main] DEVELOPMENT_LOCATION=%s; use cmd/paygate outside local development", cfg.Location)
	}

	g, err := bootstrap.NewGateway(ctx, cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	return bootstrap.NewApplication(g), cfg, g.Close, nil
}
