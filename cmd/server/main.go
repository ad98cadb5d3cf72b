// MobileCoder - mobile code editor server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/ashureev/mobilecoder/internal/api"
	"github.com/ashureev/mobilecoder/internal/assistant"
	"github.com/ashureev/mobilecoder/internal/chat"
	"github.com/ashureev/mobilecoder/internal/config"
	"github.com/ashureev/mobilecoder/internal/gate"
	"github.com/ashureev/mobilecoder/internal/grpchealth"
	"github.com/ashureev/mobilecoder/internal/identity"
	"github.com/ashureev/mobilecoder/internal/live"
	"github.com/ashureev/mobilecoder/internal/metrics"
	"github.com/ashureev/mobilecoder/internal/middleware"
	"github.com/ashureev/mobilecoder/internal/project"
	"github.com/ashureev/mobilecoder/internal/reaper"
	"github.com/ashureev/mobilecoder/internal/store"
	"github.com/ashureev/mobilecoder/web"
)

func main() {
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	level.Set(cfg.LogLevel)

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	// Initialize services.
	hub := live.NewHub()
	projects := project.NewRegistry(repo)
	projects.OnChange(func(userID string) {
		hub.Broadcast(context.Background(), userID, live.Event{Kind: live.KindReload})
	})

	var streamer assistant.Streamer
	if cfg.AIEnabled() {
		client := assistant.NewOpenAIClient(assistant.Opts{
			APIKey:  cfg.AI.APIKey,
			BaseURL: cfg.AI.BaseURL,
			Model:   cfg.AI.Model,
		})
		streamer = client
		slog.Info("Assistant enabled", "model", client.Model())
	} else {
		slog.Info("AI features disabled (AI_API_KEY not set)")
	}

	conversationLogger, err := chat.NewConversationLogger(chat.ConversationLogConfig{
		Enabled:       cfg.ConversationLog.Enabled,
		Dir:           cfg.ConversationLog.Dir,
		GlobalEnabled: cfg.ConversationLog.GlobalEnabled,
		GlobalPath:    cfg.ConversationLog.GlobalPath,
		QueueSize:     cfg.ConversationLog.QueueSize,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize conversation logger", "error", err)
		os.Exit(1)
	}
	chats := chat.NewManager(repo, streamer, conversationLogger)
	defer func() {
		if closeErr := chats.Close(); closeErr != nil {
			slog.Warn("Failed to flush conversation log", "error", closeErr)
		}
	}()

	limiter := chat.NewRateLimiter(cfg.ChatRateLimit, cfg.ChatRateWindow)
	defer limiter.Close()

	accessGate, err := gate.New(gate.Config{
		Key:       cfg.Auth.Key,
		KeyBcrypt: cfg.Auth.KeyBcrypt,
		Secret:    cfg.Auth.Secret,
		TTL:       cfg.Auth.TTL,
		Secure:    !cfg.IsDevelopment(),
	})
	if err != nil {
		slog.Error("Failed to initialize access gate", "error", err)
		os.Exit(1)
	}
	if cfg.Auth.Secret == "" {
		slog.Warn("AUTH_SECRET not set, admissions will not survive a restart")
	}

	// Initialize handlers.
	apiHandler := api.NewHandler(api.Options{
		Repo:        repo,
		Projects:    projects,
		Chats:       chats,
		Limiter:     limiter,
		MaxBodySize: cfg.MaxRequestBody,
	})
	liveHandler := live.NewHandler(hub, projects, repo, cfg.FrontendURL, cfg.IsDevelopment())

	allowedOrigins := []string{"*"}
	if cfg.FrontendURL != "" {
		allowedOrigins = []string{cfg.FrontendURL}
	}

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.Metrics)
	r.Use(middleware.CORS(allowedOrigins))

	// Public routes.
	apiHandler.RegisterHealth(r)
	r.Handle("/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(repo, cfg.IsDevelopment()))
		accessGate.RegisterRoutes(r)

		// Everything else requires passing the gate.
		r.Group(func(r chi.Router) {
			r.Use(accessGate.Middleware)
			apiHandler.RegisterRoutes(r)
			r.Get("/ws/preview", liveHandler.ServeHTTP)
		})

		// Serve embedded frontend (SPA catch-all). The page shows the gate itself.
		r.Handle("/*", web.SPAHandler())
	})

	// Create server.
	// Note: SSE connections require long timeouts (no WriteTimeout)
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,                 // 0 = no timeout for SSE support
		IdleTimeout:  120 * time.Second, // 2 minutes for idle connections
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start TTL worker.
	reaper.StartTTLWorker(ctx, repo, cfg.WorkspaceTTL, func(userID string) {
		projects.Evict(userID)
		chats.Evict(userID)
		hub.CloseUser(userID)
	})

	// Start gRPC health service (optional).
	var healthSrv *grpchealth.Server
	if cfg.GRPCHealthAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCHealthAddr)
		if err != nil {
			slog.Error("Failed to listen for gRPC health", "addr", cfg.GRPCHealthAddr, "error", err)
			os.Exit(1)
		}
		healthSrv = grpchealth.New(repo, 0)
		go healthSrv.Run(ctx)
		go func() {
			if err := healthSrv.Serve(lis); err != nil {
				slog.Error("gRPC health service failed", "error", err)
			}
		}()
	}

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if healthSrv != nil {
		healthSrv.Stop()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
