package main

import (
	"context"

	"github.com/janisto/hello-world/internal/config"
	applog "github.com/janisto/hello-world/internal/platform/logging"
	"github.com/janisto/hello-world/internal/server"
)

// Version can be overridden at build time: -ldflags "-X main.Version=1.2.3"
var Version = "dev"

func main() {
	defer func() {
		// Sync on stdout can fail with EINVAL/ENOTTY; nothing useful to do about it.
		_ = applog.Sync()
	}()
	if err := applog.Err(); err != nil {
		applog.LogError(context.Background(), "logger init error", err)
	}

	cfg, err := config.Load(".env")
	if err != nil {
		applog.LogFatal(context.Background(), "invalid configuration", err)
	}

	server.New(cfg, Version).Run()
}
