package main

import (
	"context"
	"time"

	"github.com/Martin-Hayot/live-auction-server/configs"
	"github.com/Martin-Hayot/live-auction-server/internal/dashboard"
	"github.com/Martin-Hayot/live-auction-server/internal/database"
	"github.com/Martin-Hayot/live-auction-server/internal/server"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
)

func main() {
	// Load configurations
	cfg, err := configs.LoadConfig()
	if err != nil {
		log.Fatal("Error loading config", "err", err)
	}

	// Setup logger
	logLevel, err := log.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		log.Error("Invalid log level", "level", cfg.Server.LogLevel, "err", err)
	} else {
		log.SetLevel(logLevel)
	}

	ctx := context.Background()

	// Initialize database service
	db, err := database.New(ctx, cfg)
	if err != nil {
		log.Fatal("Error opening database", "err", err)
	}

	srv, err := server.New(cfg, db)
	if err != nil {
		log.Fatal("Error building server", "err", err)
	}
	if err := srv.Start(ctx); err != nil {
		log.Fatal("Failed to start server", "err", err)
	}

	// Redirect logs to buffer, startup failures above still reach the terminal
	logBuffer := &dashboard.LogBuffer{}
	log.SetOutput(logBuffer)

	// Start Bubble Tea program
	p := tea.NewProgram(dashboard.New(db, logBuffer, time.Second), tea.WithAltScreen(), tea.WithMouseCellMotion())
	if _, err := p.Run(); err != nil {
		log.Error("Error running Bubble Tea program", "err", err)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Shutdown incomplete", "err", err)
	}
}
