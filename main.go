package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/Martin-Hayot/live-auction-server/configs"
	"github.com/Martin-Hayot/live-auction-server/internal/database"
	"github.com/Martin-Hayot/live-auction-server/internal/server"
	"github.com/charmbracelet/log"
)

func main() {
	cfg, err := configs.LoadConfig()
	if err != nil {
		log.Fatal("Error loading config", "err", err)
	}

	logLevel, err := log.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		log.Error("Invalid log level", "level", cfg.Server.LogLevel, "err", err)
	} else {
		log.SetLevel(logLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, nil); err != nil {
		log.Fatal("Server failed", "err", err)
	}
}

// run serves until ctx is cancelled, then shuts down within cfg.Server.ShutdownTimeout. ready, when
// set, receives the bound address once the server accepts connections.
func run(ctx context.Context, cfg *configs.Config, ready func(net.Addr)) error {
	db, err := database.New(ctx, cfg)
	if err != nil {
		return err
	}

	srv, err := server.New(cfg, db)
	if err != nil {
		db.Close()
		return err
	}
	if err := srv.Start(ctx); err != nil {
		db.Close()
		return err
	}
	if ready != nil {
		ready(srv.Addr())
	}

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
