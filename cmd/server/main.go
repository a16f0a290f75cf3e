package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"github.com/Tyrowin/gochat/internal/logging"
	"github.com/Tyrowin/gochat/internal/server"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "gochat:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := flag.NewFlagSet("gochat", flag.ContinueOnError)
	envFile := flags.String("env-file", ".env", "Optional dotenv file loaded before reading the environment")
	port := flags.StringP("port", "p", "", "Listen address, overrides SERVER_PORT")
	logLevel := flags.String("log-level", "", "DEBUG, INFO, WARN or ERROR; overrides LOG_LEVEL")
	if err := flags.Parse(args); err != nil {
		return err
	}

	if err := loadEnvFile(*envFile); err != nil {
		return err
	}

	cfg, err := server.LoadConfig()
	if err != nil {
		return err
	}
	if *port != "" {
		cfg.Port = *port
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	logger := logging.New(os.Stderr, cfg.LogLevel, logging.Format(cfg.LogFormat))
	slog.SetDefault(logger)

	srv, err := server.New(cfg, logger)
	if err != nil {
		return err
	}

	httpServer := server.CreateServer(cfg.Port, srv.Routes())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.StartServer(httpServer, logger)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutdown signal received")
	httpErr := server.ShutdownServer(httpServer, cfg.ShutdownTimeout, logger)
	hubErr := srv.Hub().Shutdown(cfg.ShutdownTimeout)
	return errors.Join(httpErr, hubErr)
}

// loadEnvFile loads path into the environment if it exists. Variables that
// are already set win.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}
