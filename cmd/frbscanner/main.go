package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jessevdk/go-flags"

	"FRBScanner/internal/app"
	"FRBScanner/internal/config"
	"FRBScanner/internal/logging"
)

// Options are shared by every command.
type Options struct {
	Config   string `short:"c" long:"config" env:"FRB_SCANNER_CONFIG" description:"YAML configuration file"`
	LogLevel string `long:"log-level" description:"Log level (debug, info, warn, error); overrides the config file"`
}

var opts Options

func main() {
	parser := flags.NewParser(&opts, flags.Default)
	parser.LongDescription = "Discovers newly localized FRBs and proposes catalog additions for review."

	mustAdd(parser, "run", "Run the pipeline once", "Fetch, extract, validate, deduplicate and emit one proposal.", &runCommand{})
	mustAdd(parser, "serve", "Run the weekly scheduler and HTTP API", "Serve the trigger/status API and fire the weekly run.", &serveCommand{})
	mustAdd(parser, "stats", "Print catalog statistics", "Summarize the catalog by telescope and redshift.", &statsCommand{})
	mustAdd(parser, "export", "Export the catalog as CSV", "Write the catalog with the fixed column set.", &exportCommand{})
	mustAdd(parser, "apply", "Append an approved proposal CSV", "Append rows from a merged proposal. Existing names are refused.", &applyCommand{})

	if _, err := parser.Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return
		}
		os.Exit(1)
	}
}

func mustAdd(p *flags.Parser, name, short, long string, cmd any) {
	if _, err := p.AddCommand(name, short, long, cmd); err != nil {
		panic(fmt.Sprintf("register command %s: %v", name, err))
	}
}

func loadConfig() config.Config {
	cfg := config.LoadFrom(opts.Config)
	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}
	return cfg
}

// withApp builds the application, runs fn with a signal-aware context and
// closes the databases afterwards.
func withApp(fn func(ctx context.Context, a *app.Application) error) error {
	cfg := loadConfig()
	logger := logging.New(cfg.Logging.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		return err
	}
	defer func() {
		if err := application.Close(); err != nil {
			logger.Warn("close failed", "error", err)
		}
	}()

	if err := fn(ctx, application); err != nil {
		logger.Error("command failed", "error", err)
		return err
	}
	return nil
}
