package bootstrap

import (
	"context"
	"os"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/ManuelReschke/paygate/internal/pkg/router"
	"github.com/ManuelReschke/paygate/internal/pkg/scheduler"
)

const ReconcileTask = "reconcile"

// NewApplication builds the fiber app serving the gateway.
func NewApplication(g *Gateway) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:   "paygate",
		BodyLimit: 1 << 20,
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	app.Get("/metrics", monitor.New())

	// SWAGGER / OPENAPI
	if specPath, ok := findOpenAPISpec(); ok {
		app.Use(swagger.New(swagger.Config{
			BasePath: "/docs/api/",
			FilePath: specPath,
			Path:     "v1",
		}))
	} else {
		log.Warn("[Bootstrap] openapi.yml not found, /docs/api/v1 disabled")
	}

	// ROUTER
	router.InstallRouter(app, g.Handlers())

	return app
}

// NewScheduler runs reconciliation at startup and then every
// RECONCILE_INTERVAL; a zero interval leaves the manager without tasks.
func NewScheduler(core *Core) *scheduler.Manager {
	return scheduler.NewManager(scheduler.Task{
		Name:       ReconcileTask,
		Interval:   core.Config.ReconcileInterval,
		RunAtStart: true,
		Run: func(ctx context.Context) error {
			report, err := core.Synchronizer.ReconcileAll(ctx)
			if report != nil {
				log.Infof("[Scheduler] Reconciled %v (failed: %d, skipped: %t)", report.Updated, report.Failed, report.Skipped)
			}
			return err
		},
	})
}

func findOpenAPISpec() (string, bool) {
	for _, base := range []string{"./", "../../", "../../../"} {
		path := base + "public/docs/v1/openapi.yml"
		if _, err := os.Stat(path); err == nil {
			return path, true
		}
	}
	return "", false
}
