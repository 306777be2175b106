// Package server wires the auction components together and owns the listener and shutdown order.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/Martin-Hayot/live-auction-server/configs"
	"github.com/Martin-Hayot/live-auction-server/internal/auction"
	"github.com/Martin-Hayot/live-auction-server/internal/auth"
	"github.com/Martin-Hayot/live-auction-server/internal/database"
	"github.com/Martin-Hayot/live-auction-server/internal/handlers/websocket"
	"github.com/Martin-Hayot/live-auction-server/internal/hub"
	"github.com/Martin-Hayot/live-auction-server/internal/metrics"
	"github.com/Martin-Hayot/live-auction-server/internal/scheduler"
	"github.com/Martin-Hayot/live-auction-server/internal/services"
	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

type Server struct {
	cfg       *configs.Config
	db        database.Service
	hub       *hub.Hub
	metrics   *metrics.Metrics
	scheduler *scheduler.Scheduler
	handler   *websocket.AuctionHandler
	http      *http.Server

	mu       sync.Mutex
	listener net.Listener
	stopOnce sync.Once
	stopErr  error
}

// New builds a server around db. Nothing listens until Start.
func New(cfg *configs.Config, db database.Service) (*Server, error) {
	m := metrics.New()
	h := hub.New(m)

	authenticator, err := auth.New(cfg.Auth.SecretKey, cfg.Auth.TokenTTL, cfg.Auth.CookieName)
	if err != nil {
		return nil, fmt.Errorf("init auth: %w", err)
	}

	engine := auction.NewEngine(db, h, m)
	router := websocket.NewRouter(
		engine,
		services.NewUsers(db, authenticator),
		services.NewItems(db),
		services.NewMessages(db, h),
		services.NewCatalog(db),
		h, m,
	)

	s := &Server{
		cfg:       cfg,
		db:        db,
		hub:       h,
		metrics:   m,
		scheduler: scheduler.New(db, engine, cfg.Scheduler.Interval, m),
		handler:   websocket.NewAuctionWebSocketHandler(router, h, db, authenticator, cfg),
	}
	s.http = &http.Server{
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/ws/auction", s.handler.HandleAuctionWebSocket)
	r.Get("/healthz", s.health)
	if s.cfg.Metrics.Enabled {
		r.Handle(s.cfg.Metrics.Path, s.metrics.Handler())
	}
	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), time.Second)
	defer cancel()

	stats := s.db.Health(ctx)
	stats["sessions"] = fmt.Sprint(s.hub.Len())

	w.Header().Set("Content-Type", "application/json")
	if stats["status"] != "up" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(stats)
}

// Start binds the listener, starts the scheduler and serves in the background. A bind failure is
// returned and nothing is started.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", ":"+s.cfg.Server.Port)
	if err != nil {
		return fmt.Errorf("bind port %s: %w", s.cfg.Server.Port, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.scheduler.Start(ctx)

	go func() {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server stopped", "err", err)
		}
	}()
	log.Infof("Server started on port %s", s.cfg.Server.Port)
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Hub exposes the live-session registry.
func (s *Server) Hub() *hub.Hub { return s.hub }

// Shutdown refuses new connections, stops the scheduler, tells every session to terminate, waits
// for in-flight requests, closes the Store and finally the listener. It is safe to call twice.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() {
		log.Info("Shutting down server")
		s.handler.Drain()
		s.scheduler.Stop()
		s.hub.CloseAll(websocket.ShutdownNotice)

		var errs []error
		if err := s.handler.Wait(ctx); err != nil {
			log.Warn("Sessions still running at shutdown deadline", "sessions", s.hub.Len())
			errs = append(errs, fmt.Errorf("wait for sessions: %w", err))
		}
		if err := s.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
		if err := s.http.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close listener: %w", err))
		}
		s.stopErr = errors.Join(errs...)
		log.Info("Server stopped")
	})
	return s.stopErr
}
