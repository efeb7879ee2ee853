// Package main implements the Warpspeed web portal entry point. It serves the
// magic-link sign-in flow and a session-guarded profile page.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/warpspeed/portal/internal/config"
	"github.com/warpspeed/portal/internal/logging"
	"github.com/warpspeed/portal/internal/web"
)

const Version = "1.0.0"

func main() {
	configPath := flag.String("config", "", "Path to the configuration file")
	listen := flag.String("listen", "", "Address to listen on (overrides web.listen)")
	showVersion := flag.Bool("version", false, "Display version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("Warpspeed Portal Web v%s\n", Version)
		return
	}

	if err := config.LoadDotEnv("."); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}

	manager, err := config.NewManager(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	cfg, err := manager.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}
	if *listen != "" {
		cfg.Web.Listen = *listen
	}

	if err := logging.InitGlobalLogger(cfg.LoggerConfig("portal-web")); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logging: %v\n", err)
		os.Exit(1)
	}
	logger := logging.GetGlobalLogger()
	logging.GetConfigLogger().LogConfigLoad(manager.GetConfigPath(), cfg.Environment)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	server, err := web.NewServer(cfg, nil)
	if err != nil {
		logger.Error("Failed to create web portal", "error", err.Error())
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Run(ctx); err != nil {
		logger.Error("Web portal terminated with error", "error", err.Error())
		os.Exit(1)
	}
	logger.Info("Web portal stopped")
}
