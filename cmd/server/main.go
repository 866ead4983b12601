package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/jsmooother/ej-development-sub001/internal/app"
	"github.com/jsmooother/ej-development-sub001/internal/services"
	"github.com/jsmooother/ej-development-sub001/pkg/logger"
)

const (
	defaultShutdownTimeout = 15 * time.Second
	readHeaderTimeout      = 10 * time.Second
)

type options struct {
	configPath  string
	checkConfig bool
	syncOnce    bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "mediasync: %v\n", err)
		os.Exit(1)
	}
}

func parseOptions(args []string, out io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("mediasync-server", flag.ContinueOnError)
	fs.SetOutput(out)
	fs.StringVar(&opts.configPath, "config", "", "configuration directory or config.yaml path")
	fs.BoolVar(&opts.checkConfig, "check-config", false, "validate the configuration and exit")
	fs.BoolVar(&opts.syncOnce, "sync-once", false, "run one forced media sync and exit")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if opts.checkConfig && opts.syncOnce {
		return options{}, errors.New("-check-config and -sync-once are mutually exclusive")
	}
	return opts, nil
}

func run(ctx context.Context, args []string) (err error) {
	opts, err := parseOptions(args, os.Stdout)
	if err != nil {
		return err
	}

	cfg, err := loadApplicationConfig(opts.configPath)
	if err != nil {
		return err
	}
	generated, err := app.ApplyRuntimeDefaults(cfg)
	if err != nil {
		return err
	}
	if err := app.ConfigureLogging(cfg.Server); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	log := logger.WithModule("bootstrap")
	for key := range generated {
		log.Info("applied runtime default", zap.String("key", key))
	}

	// Nothing touches the network or the database with an incomplete configuration.
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if opts.checkConfig {
		fmt.Fprintln(os.Stdout, "configuration OK")
		return nil
	}

	stack, err := bootstrapRuntime(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, stack.Shutdown(context.Background(), log))
	}()

	if opts.syncOnce {
		return syncOnce(ctx, stack.Sync, log)
	}
	return serve(ctx, cfg, stack.Router, log)
}

func syncOnce(ctx context.Context, sync *services.SyncService, log *zap.Logger) error {
	result, err := sync.Sync(ctx, services.SyncOptions{Force: true})
	if err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	log.Info("media sync finished",
		zap.Int("count", result.Count),
		zap.Int("skipped", result.Skipped),
		zap.Bool("truncated", result.Truncated),
		zap.Bool("refreshed", result.Refreshed),
	)
	return nil
}

func serve(ctx context.Context, cfg *app.Config, handler http.Handler, log *zap.Logger) error {
	server := &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(cfg.Server.Port)),
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", server.Addr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	timeout := cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	log.Info("server stopped")
	return nil
}

// loadApplicationConfig accepts either a directory holding config.yaml or the file
// itself. An empty path searches the default locations.
func loadApplicationConfig(path string) (*app.Config, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return app.LoadConfig()
	}

	info, err := os.Stat(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("config path %q does not exist", path)
	case err != nil:
		return nil, fmt.Errorf("stat config path: %w", err)
	case info.IsDir():
		return app.LoadConfig(path)
	default:
		return app.LoadConfig(filepath.Dir(path))
	}
}
