package main

import (
	"context"
	"time"

	"github.com/starlogs/starlogs/internal/api"
	"github.com/starlogs/starlogs/internal/config"
)

// uploadReport sends an exported report to the configured server. Failures
// are logged; the report stays on disk either way.
func uploadReport(ctx context.Context, a *app, path string, meta api.UploadMetadata) {
	cfg := config.GetAPIConfig()
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	client := api.New(cfg.ServerURL, cfg.APIKey)
	if err := client.Healthcheck(ctx); err != nil {
		a.Logger.Warn("Report server unreachable, skipping upload", "url", cfg.ServerURL, "error", err)
		return
	}
	if meta.Tag == "" {
		meta.Tag = cfg.Tag
	}
	if err := client.Upload(ctx, path, meta); err != nil {
		a.Logger.Error("Failed to upload report", "path", path, "error", err)
		return
	}
	a.Logger.Info("Report uploaded", "path", path, "url", cfg.ServerURL)
}
