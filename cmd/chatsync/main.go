package main

import (
	"context"
	"strings"

	"github.com/joho/godotenv"

	"chatsync/internal/app"
	"chatsync/pkg/config"
	"chatsync/pkg/logger"
	"chatsync/pkg/shutdown"
)

// build metadata, set via ldflags
var (
	version = "dev"
	commit  = "none"
)

func main() {
	_ = godotenv.Load(".env")
	addrVal, cacheVal, cfgVal, setFlags := config.ParseCommandFlags()

	cfgPath := config.ResolveConfigPath(cfgVal, setFlags["config"])
	cfg, envUsed, err := config.LoadEffective(cfgPath)
	if err != nil {
		shutdown.Abort("config load failed", err, "")
	}

	// flags win over env and config file
	addr := cfg.Addr()
	if setFlags["addr"] {
		addr = addrVal
	}
	cachePath := cfg.Storage.CachePath
	if setFlags["cache"] || cachePath == "" {
		cachePath = cacheVal
	}

	logger.InitWithLevel(cfg.Logging.Level)

	var srcs []string
	if len(setFlags) > 0 {
		srcs = append(srcs, "flags")
	}
	if envUsed {
		srcs = append(srcs, "env")
	}
	if _, err := config.Load(cfgPath); err == nil {
		srcs = append(srcs, "config")
	}

	verStr := version
	if commit != "none" {
		verStr += " (" + commit + ")"
	}

	a, err := app.New(cfg, addr, cachePath, strings.Join(srcs, ", "), verStr)
	if err != nil {
		shutdown.Abort("startup failed", err, cachePath)
	}

	ctx, cancel := shutdown.SetupSignalHandler(context.Background())
	defer cancel()

	if err := a.Run(ctx); err != nil {
		shutdown.Abort("server failed", err, cachePath)
	}
	logger.Info("shutdown_complete")
}
