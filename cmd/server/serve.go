package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	"swaft/internal/auth"
	"swaft/internal/avatar"
	"swaft/internal/backend"
	"swaft/internal/chat"
	"swaft/internal/config"
	"swaft/internal/dashboard"
	"swaft/internal/db"
	"swaft/internal/health"
	myMiddleware "swaft/internal/middleware"
	"swaft/internal/profile"
	"swaft/internal/session"
	"swaft/internal/sidebar"
	"swaft/internal/user"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and websocket server",
	RunE:  runServe,
}

// handlers is everything the router mounts.
type handlers struct {
	health    *health.Handler
	auth      *auth.Handler
	session   *session.Handler
	dashboard *dashboard.Handler
	profile   *profile.Handler
	sidebar   *sidebar.Handler
	chat      *chat.Handler
	sessions  myMiddleware.SessionValidator
}

func newRouter(h handlers) http.Handler {
	authMiddleware := myMiddleware.NewAuthMiddleware(h.sessions)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Public Routes
	r.Get("/health", h.health.Handle)
	r.Get("/auth/{provider}/login", h.auth.Login)
	r.Get("/auth/{provider}/callback", h.auth.Callback)
	r.Post("/auth/logout", h.sidebar.Logout)
	r.Get("/api/session", h.session.Get)

	// The socket reports a missing session itself, as a session frame.
	r.Get("/ws", h.chat.ServeWs)

	// Protected Routes
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Handle)

		r.Get("/api/dashboard", h.dashboard.Get)
		r.Get("/api/profile", h.profile.Get)
		r.Put("/api/profile/nickname", h.dashboard.SetNickname)
		r.Get("/api/sidebar", h.sidebar.Get)

		r.Get("/api/rooms", h.chat.ListRooms)
		r.Get("/api/rooms/{id}/messages", h.chat.ListMessages)
		r.Post("/api/rooms/{id}/messages", h.chat.PostMessage)
		r.Patch("/api/messages/{id}", h.chat.EditMessage)
		r.Delete("/api/messages/{id}", h.chat.DeleteMessage)
	})
	return r
}

func runServe(cmd *cobra.Command, args []string) error {
	// 1. Config
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Addr = addr
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("❌ %w", err)
	}

	// 2. PostgreSQL
	database, err := db.NewDatabase(cfg.DSN)
	if err != nil {
		return fmt.Errorf("❌ Failed to connect to DB: %w", err)
	}
	log.Println("✅ Connected to PostgreSQL")

	if err := database.AutoMigrate(context.Background()); err != nil {
		return fmt.Errorf("❌ Migration failed: %w", err)
	}
	log.Println("✅ Database Schema Initialized")

	// 3. Redis
	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		return fmt.Errorf("❌ Failed to connect to Redis: %w", err)
	}
	log.Println("✅ Connected to Redis")

	// 4. Identity
	users := user.NewRepository(database.Conn)
	sessions := auth.NewSessionManager(cfg.JWTSecret, cfg.SessionTTL)
	discord := auth.NewDiscord(cfg.OAuthClientID, cfg.OAuthClientSecret, cfg.OAuthRedirectURL)
	identity := auth.NewProvider(users, sessions, redisClient, discord)

	// 5. Chat feed engines
	ctx, stopEngines := context.WithCancel(context.Background())
	hub := chat.NewHub(redisClient)
	go hub.Run(ctx)
	if err := hub.SubscribeToRedis(ctx); err != nil {
		stopEngines()
		return fmt.Errorf("❌ Change feed unavailable: %w", err)
	}

	// 6. Backend client handed to every component
	profiles := profile.NewCache(profile.NewRepository(database.Conn), redisClient, profile.DefaultCachePrefix, profile.DefaultCacheTTL)
	chatService := chat.NewService(chat.NewRepository(database.Conn), hub)
	client := &backend.Client{
		Identity: identity,
		Profiles: profiles,
		Rooms:    chatService,
		Messages: chatService,
		Feed:     hub,
	}
	avatars := avatar.NewResolver(cfg.ImageDomains, cfg.DefaultAvatar)

	router := newRouter(handlers{
		health: health.NewHandler(map[string]health.Check{
			"postgres": database.Conn.PingContext,
			"redis":    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		}),
		auth:      auth.NewHandler(identity, cfg.SecureCookies),
		session:   session.NewHandler(identity),
		dashboard: dashboard.NewHandler(dashboard.New(client, avatars, dashboard.NewRedisPromptTracker(redisClient))),
		profile:   profile.NewHandler(profiles),
		sidebar:   sidebar.NewHandler(sidebar.New(client, avatars), cfg.SecureCookies),
		chat:      chat.NewHandler(client, avatars, cfg.ChatMountDelay, cfg.AllowedOrigins),
		sessions:  identity,
	})

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		log.Printf("🚀 Server starting on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		shutdownTimeout,
		map[string]gfshutdown.Operation{
			"http-server": func(ctx context.Context) error {
				// Cancelling the base context also ends open websockets,
				// which Shutdown does not wait for.
				stopEngines()
				return server.Shutdown(ctx)
			},
			"redis": func(ctx context.Context) error {
				return redisClient.Close()
			},
			"postgres": func(ctx context.Context) error {
				return database.Close()
			},
		},
	)

	exitCode := <-wait
	log.Printf("Server exited with code: %d", exitCode)
	os.Exit(exitCode)
	return nil
}
