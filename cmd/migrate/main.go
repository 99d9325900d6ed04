package main

import (
	"log/slog"
	"os"

	"debtbot/internal/config"
	"debtbot/internal/logging"
	"debtbot/internal/store/pg"
)

func main() {
	cfg, err := config.LoadMigrate()
	if err != nil {
		slog.Error("migrate config load failed", "err", err)
		os.Exit(1)
	}
	logging.Init("migrate", cfg.LogFormat)

	if err := pg.Migrate(cfg.DBDSN); err != nil {
		slog.Error("migrate failed", "err", err)
		os.Exit(1)
	}
}
