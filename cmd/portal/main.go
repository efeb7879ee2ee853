// Package main implements the Warpspeed portal console entry point.
// This file handles command-line argument parsing, dependency injection and
// the optional magic-link verification performed before the interface starts.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/warpspeed/portal/internal/apierr"
	"github.com/warpspeed/portal/internal/app"
	"github.com/warpspeed/portal/internal/auth"
	"github.com/warpspeed/portal/internal/chat"
	"github.com/warpspeed/portal/internal/config"
	"github.com/warpspeed/portal/internal/content"
	"github.com/warpspeed/portal/internal/logging"
	"github.com/warpspeed/portal/internal/probe"
	"github.com/warpspeed/portal/internal/protocol"
	"github.com/warpspeed/portal/internal/session"
)

// Application metadata
const (
	Version     = "1.0.0"
	ProgramName = "Warpspeed Portal"
)

// CommandLineArgs represents parsed command-line arguments
type CommandLineArgs struct {
	ConfigPath    string
	Token         string
	Theme         string
	ProbeInterval time.Duration
	ShowHelp      bool
	ShowVersion   bool
}

// Dependencies holds all injected application dependencies
type Dependencies struct {
	Config   *config.Config
	Store    *session.FileStore
	Clients  *protocol.Clients
	Auth     *auth.Service
	Chat     *chat.Service
	Renderer *content.Renderer
	Monitor  *probe.Monitor
	Logger   *logging.Logger
}

// PortalApp represents the main application with all injected dependencies
type PortalApp struct {
	deps Dependencies
	args CommandLineArgs
}

func main() {
	args := parseCommandLineArgs()

	if handleEarlyExitConditions(args) {
		return
	}

	if err := config.LoadDotEnv("."); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}

	cfg, configPath, err := loadConfiguration(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	logger := initializeLogging(cfg)
	logging.GetConfigLogger().LogConfigLoad(configPath, cfg.Environment)

	deps, err := initializeDependencies(cfg, args, logger)
	if err != nil {
		logger.Error("Failed to initialize application components", "error", err.Error())
		fmt.Fprintf(os.Stderr, "Error initializing application: %v\n", err)
		os.Exit(1)
	}
	defer deps.Clients.Close()

	portal := &PortalApp{deps: deps, args: args}

	if err := portal.Run(); err != nil {
		logger.Error("Application terminated with error", "error", err.Error())
		fmt.Fprintf(os.Stderr, "Application error: %v\n", err)
		os.Exit(1)
	}

	logger.Info("Application shutdown completed successfully")
}

// parseCommandLineArgs processes command-line arguments
func parseCommandLineArgs() CommandLineArgs {
	var args CommandLineArgs

	flag.StringVar(&args.ConfigPath, "config", "", "Path to the configuration file (default: $XDG_CONFIG_HOME/portal/config.yaml)")
	flag.StringVar(&args.Token, "token", "", "Magic link token (or full callback URL) to verify before starting")
	flag.StringVar(&args.Theme, "theme", "monokai", "Syntax highlighting theme for code blocks")
	flag.DurationVar(&args.ProbeInterval, "probe-interval", time.Minute, "How often to check the session with the API")
	flag.BoolVar(&args.ShowHelp, "help", false, "Display usage information and exit")
	flag.BoolVar(&args.ShowVersion, "version", false, "Display version information and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "%s v%s\n\n", ProgramName, Version)
		fmt.Fprintf(os.Stderr, "A terminal client for the Warpspeed assistant.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s                                   # Sign in or resume the stored session\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --token 'https://.../auth/callback?token=...'  # Complete a magic link sign-in\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nEnvironment: %s, %s, %s, %s\n",
			config.EnvVarAPIBaseURL, config.EnvVarEnvironment, config.EnvVarSessionFile, config.EnvVarDebug)
	}

	flag.Parse()
	return args
}

// handleEarlyExitConditions processes help and version flags that cause immediate exit
func handleEarlyExitConditions(args CommandLineArgs) bool {
	if args.ShowHelp {
		flag.Usage()
		return true
	}

	if args.ShowVersion {
		fmt.Printf("%s v%s\n", ProgramName, Version)
		fmt.Printf("Built with Go and Charm libraries\n")
		return true
	}

	return false
}

// loadConfiguration reads the configuration file and returns its path
func loadConfiguration(args CommandLineArgs) (*config.Config, string, error) {
	manager, err := config.NewManager(args.ConfigPath)
	if err != nil {
		return nil, "", err
	}
	cfg, err := manager.Load()
	if err != nil {
		return nil, "", err
	}
	return cfg, manager.GetConfigPath(), nil
}

// initializeLogging sets up the logging system from the configuration. The
// console owns the terminal, so log output belongs in a file.
func initializeLogging(cfg *config.Config) *logging.Logger {
	logConfig := cfg.LoggerConfig("portal")
	if logConfig.Output == "stdout" || logConfig.Output == "stderr" {
		logConfig.Output = "discard"
	}

	if err := logging.InitGlobalLogger(logConfig); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logging: %v\n", err)
		os.Exit(1)
	}

	logger := logging.GetGlobalLogger()
	logger.Info("Warpspeed portal starting",
		"version", Version,
		"api", cfg.APIBaseURL,
		"environment", cfg.Environment)

	return logger
}

// initializeDependencies creates all application dependencies with proper error handling
func initializeDependencies(cfg *config.Config, args CommandLineArgs, logger *logging.Logger) (Dependencies, error) {
	logger.Debug("Initializing application components")

	deps := Dependencies{Config: cfg, Logger: logger}

	security, err := config.NewSecurityManager(cfg.Session.KeyFile)
	if err != nil {
		return deps, fmt.Errorf("failed to initialize security manager: %w", err)
	}

	store, err := session.NewFileStore(cfg.Session.File, security, session.DefaultOptions(cfg.IsProduction()))
	if err != nil {
		return deps, fmt.Errorf("failed to open session store: %w", err)
	}
	deps.Store = store

	clients, err := protocol.NewClients(cfg, store, protocol.WithUserAgent(fmt.Sprintf("warpspeed-portal/%s", Version)))
	if err != nil {
		return deps, fmt.Errorf("failed to initialize request pipeline: %w", err)
	}
	deps.Clients = clients

	authService, err := auth.NewService(clients.Standard, store)
	if err != nil {
		return deps, fmt.Errorf("failed to initialize auth service: %w", err)
	}
	deps.Auth = authService

	chatService, err := chat.NewService(clients)
	if err != nil {
		return deps, fmt.Errorf("failed to initialize chat service: %w", err)
	}
	deps.Chat = chatService

	highlighter := content.NewSyntaxHighlighter(args.Theme, "terminal256")
	if highlighter.Theme() != args.Theme {
		logger.Warn("Unknown theme, using fallback", "requested", args.Theme, "theme", highlighter.Theme())
	}
	deps.Renderer = content.NewRendererWithHighlighter(highlighter)

	monitor, err := probe.NewMonitor(authService, store, args.ProbeInterval)
	if err != nil {
		return deps, fmt.Errorf("failed to initialize session monitor: %w", err)
	}
	deps.Monitor = monitor

	logger.Info("Application components initialized successfully")
	return deps, nil
}

// Run verifies a pending magic link if one was given and starts the interface
func (pa *PortalApp) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if pa.args.Token != "" {
		if err := pa.verifyToken(ctx); err != nil {
			return err
		}
	}

	controller, err := app.NewConsoleController(ctx, app.Dependencies{
		Auth:     pa.deps.Auth,
		Chat:     pa.deps.Chat,
		Renderer: pa.deps.Renderer,
		Store:    pa.deps.Store,
		Monitor:  pa.deps.Monitor,
	})
	if err != nil {
		return fmt.Errorf("failed to create application interface: %w", err)
	}
	pa.deps.Clients.Coordinator.SetInvalidationHandler(controller.InvalidationHandler())

	program := tea.NewProgram(controller,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
		tea.WithContext(ctx),
	)

	pa.deps.Logger.Info("Starting TUI application")
	_, err = program.Run()
	if errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}

// verifyToken exchanges a magic link token for a session before the UI starts
func (pa *PortalApp) verifyToken(ctx context.Context) error {
	verifyCtx, cancel := context.WithTimeout(ctx, pa.deps.Config.Timeouts.Standard)
	defer cancel()

	resp, err := pa.deps.Auth.VerifyMagicLink(verifyCtx, auth.MagicLinkToken(pa.args.Token))
	if err != nil {
		return fmt.Errorf("magic link verification failed: %s", apierr.Message(err))
	}

	if resp.User != nil {
		fmt.Printf("Signed in as %s\n", resp.User.Email)
	}
	return nil
}
