package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/paygate/internal/pkg/bootstrap"
	"github.com/ManuelReschke/paygate/internal/pkg/config"
	"github.com/ManuelReschke/paygate/internal/pkg/env"
)

// Runs one full reconciliation and prints the acknowledgment. Meant for a
// scheduler (cron, EventBridge) rather than interactive use.
func main() {
	env.SetupEnvFile()
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	core, err := bootstrap.NewCore(ctx, cfg)
	if err != nil {
		log.Fatalf("[SyncStripe] Startup failed: %v", err)
	}
	defer core.Close()

	report, err := core.Synchronizer.ReconcileAll(ctx)
	if err != nil {
		core.Close()
		log.Fatalf("[SyncStripe] Reconciliation failed: %v", err)
	}

	message := "completed successfully"
	if report.Skipped {
		message = "skipped, another reconciliation is running"
	}
	log.Infof("[SyncStripe] Updated %v", report.Updated)
	_ = json.NewEncoder(os.Stdout).Encode(map[string]string{"message": message})
}
