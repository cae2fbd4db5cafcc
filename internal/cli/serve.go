package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"casetimer/internal/app"
)

// ServeCommand runs the backend until SIGINT/SIGTERM.
type ServeCommand struct {
	Addr   string `short:"a" long:"addr" description:"listen address (default from config, :8080)" value-name:"<ADDR>"`
	Memory bool   `long:"memory" description:"keep records in memory even if MYSQL_DSN is set"`
}

func (command *ServeCommand) Execute(args []string) error {
	log, cfg, err := setup()
	if err != nil {
		return err
	}
	if command.Memory {
		cfg.MySQL.DSN = ""
	}
	addr := cfg.Server.Addr
	if command.Addr != "" {
		addr = command.Addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, log, cfg)
	if err != nil {
		return err
	}
	defer application.Close()

	srv := application.HTTPServer(addr)
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	if len(cfg.Server.AuthTokens) == 0 {
		log.Warn("no auth tokens configured, API is open")
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown failed", slog.String("error", err.Error()))
		return err
	}
	return nil
}
