package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/metabib/pdf-markup/internal/config"
	"github.com/metabib/pdf-markup/internal/document"
	"github.com/metabib/pdf-markup/internal/extract"
	"github.com/metabib/pdf-markup/internal/fields"
	"github.com/metabib/pdf-markup/internal/mcp"
	"github.com/metabib/pdf-markup/internal/server"
	"github.com/metabib/pdf-markup/internal/template"
)

var (
	version   = "dev"     // This will be set by build flags
	buildTime = "unknown" // This will be set by build flags
	gitCommit = "unknown" // This will be set by build flags
)

// setupLogging builds the process logger. Stdio mode logs JSON to
// stderr so the MCP protocol on stdout stays clean.
func setupLogging(cfg *config.Config) *slog.Logger {
	out := os.Stdout
	if cfg.IsStdioMode() {
		out = os.Stderr
	}
	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)
	return logger
}

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" || arg == "-v" {
			printVersion()
			return
		}
	}

	cfg, err := config.LoadFromFlags()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := setupLogging(cfg)

	// Set version if it was provided during build
	if version != "dev" {
		cfg.Version = version
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	docs, err := document.NewService(cfg.PDFDirectory, cfg.MaxFileSize, logger)
	if err != nil {
		return fmt.Errorf("failed to create document service: %w", err)
	}

	registry, err := fields.Load()
	if err != nil {
		return fmt.Errorf("failed to load field registry: %w", err)
	}

	var extractor extract.Extractor
	if cfg.ExtractorURL != "" {
		extractor = extract.NewClient(cfg.ExtractorURL, logger)
	} else {
		extractor = extract.NewLocal(logger)
	}

	var engine *template.Engine
	if cfg.TemplatesEnabled {
		store, err := template.OpenStore(cfg.TemplateDBPath())
		if err != nil {
			return fmt.Errorf("failed to open template store: %w", err)
		}
		defer store.Close()
		engine = template.NewEngine(store, cfg.Retention, cfg.MinConfidence, logger)
	}

	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer cancel()

	if cfg.IsStdioMode() {
		mcpServer, err := mcp.NewServer(cfg, docs, extractor, engine, registry)
		if err != nil {
			return fmt.Errorf("failed to create MCP server: %w", err)
		}
		return mcpServer.Run(ctx)
	}

	logger.Info("starting",
		"version", cfg.Version,
		"pdf_dir", cfg.PDFDirectory,
		"data_dir", cfg.DataDirectory,
		"templates", cfg.TemplatesEnabled)

	httpServer, err := server.New(server.Config{
		Config:    cfg,
		Documents: docs,
		Extractor: extractor,
		Engine:    engine,
		Registry:  registry,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}
	return httpServer.Run(ctx)
}

// printVersion prints version information
func printVersion() {
	fmt.Printf("PDF Markup\n")
	fmt.Printf("Version: %s\n", version)
	fmt.Printf("Build Time: %s\n", buildTime)
	fmt.Printf("Git Commit: %s\n", gitCommit)
	fmt.Printf("Built with: %s\n", runtime.Version())
}
