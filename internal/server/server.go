// Package server contains HTTP and WebSocket handlers for the application's API endpoints.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	_ "pulsefeed/docs" // swagger docs
	"pulsefeed/internal/auth"
	"pulsefeed/internal/cache"
	"pulsefeed/internal/config"
	"pulsefeed/internal/database"
	"pulsefeed/internal/middleware"
	"pulsefeed/internal/models"
	"pulsefeed/internal/notifications"
	"pulsefeed/internal/repository"
	"pulsefeed/internal/service"
	"pulsefeed/internal/storage"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/swagger"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Route-level rate limits.
const (
	signupLimit      = 5
	signupWindow     = 10 * time.Minute
	loginLimit       = 10
	loginWindow      = 5 * time.Minute
	createPostLimit  = 30
	createPostWindow = time.Minute
)

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	app            *fiber.App
	appOnce        sync.Once
	promMiddleware *fiberprometheus.FiberPrometheus
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc

	userRepo    repository.UserRepository
	postRepo    repository.PostRepository
	images      *storage.ImageStore
	hub         *notifications.Hub
	relay       *notifications.Relay
	channel     *notifications.Channel
	verifier    *auth.Verifier
	revocations *cache.RevocationList
	limiter     *middleware.Limiter

	postService *service.PostService
	userService *service.UserService
	authService *service.AuthService
}

// NewServer creates a new server instance with all dependencies
func NewServer(cfg *config.Config) (*Server, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	// Redis is optional: without it the broadcast stays in-process and
	// logout revocations and rate limits fall back to local behavior.
	cache.InitRedis(cfg.RedisURL)

	return NewServerWithDeps(cfg, db, cache.GetClient())
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// redisClient may be nil.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client) (*Server, error) {
	if cfg == nil || db == nil {
		return nil, errors.New("config and database are required")
	}

	tokenSettings := auth.Settings{
		Secret:   cfg.JWTSecret,
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      time.Duration(cfg.JWTTTLMinutes) * time.Minute,
	}

	s := &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		promMiddleware: middleware.InitMetrics("pulsefeed-api"),
		userRepo:       repository.NewUserRepository(db),
		postRepo:       repository.NewPostRepository(db),
		images:         storage.NewImageStore(cfg),
		hub:            notifications.NewHub(),
		channel:        notifications.NewChannel(),
		verifier:       auth.NewVerifier(tokenSettings),
		revocations:    cache.NewRevocationList(redisClient),
		limiter:        middleware.NewLimiter(redisClient, cfg.Env),
	}
	s.shutdownCtx, s.shutdownFn = context.WithCancel(context.Background())
	if !s.revocations.Shared() {
		middleware.Logger.Warn("Redis not configured, logged-out tokens are tracked in process only")
	}

	// The channel is bound before any route exists, so handlers never see
	// an uninitialized channel.
	s.relay = notifications.NewRelay(redisClient, s.hub)
	if err := s.channel.Initialize(s.relay); err != nil {
		return nil, fmt.Errorf("initialize broadcast channel: %w", err)
	}

	s.postService = service.NewPostService(s.postRepo, s.images, s.channel, cfg.PostsPerPage)
	s.userService = service.NewUserService(s.userRepo)
	s.authService = service.NewAuthService(s.userRepo, auth.NewIssuer(tokenSettings), s.revocations)

	return s, nil
}

// App returns the Fiber application with middleware and routes installed.
func (s *Server) App() *fiber.App {
	s.appOnce.Do(func() {
		app := fiber.New(fiber.Config{
			AppName:   "PulseFeed API",
			BodyLimit: (s.config.ImageMaxUploadSizeMB + 1) * 1024 * 1024,
			ErrorHandler: func(c *fiber.Ctx, err error) error {
				var fe *fiber.Error
				if errors.As(err, &fe) {
					return c.Status(fe.Code).JSON(models.ErrorResponse{Error: fe.Message})
				}
				middleware.Logger.ErrorContext(c.UserContext(), "Unhandled error", slog.String("error", err.Error()))
				return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
			},
		})
		s.SetupMiddleware(app)
		s.SetupRoutes(app)
		s.app = app
	})
	return s.app
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	// Panic recovery
	app.Use(recover.New())

	// Request ID for tracing
	app.Use(requestid.New())

	// Tracing before the context middleware so the trace id reaches the logger
	if s.config.TracingEnabled {
		app.Use(middleware.TracingMiddleware())
	}

	// Context Middleware to propagate Request ID and Trace ID
	app.Use(middleware.ContextMiddleware())

	// Prometheus Metrics
	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	// Security headers; images are fetched cross-origin by the client
	app.Use(helmet.New(helmet.Config{
		CrossOriginResourcePolicy: "cross-origin",
	}))

	// Structured Logging middleware (after requestid and context middleware)
	app.Use(middleware.StructuredLogger())

	origins := strings.TrimSpace(s.config.AllowedOrigins)
	if origins == "" {
		origins = "*"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: "GET,POST,PUT,PATCH,DELETE,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version",
		MaxAge:       86400, // 24 hours
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	// Health checks
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)

	// Metrics endpoint for Prometheus
	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	// Uploaded images
	app.Static("/"+storage.PublicPrefix, s.images.Dir(), fiber.Static{
		Browse: false,
		MaxAge: 3600,
	})

	api := app.Group("/api")

	// Swagger documentation
	api.Get("/swagger/*", swagger.HandlerDefault)

	// Real-time broadcast subscription
	api.Get("/ws", s.WebSocketUpgrade, s.BroadcastHandler())

	timeout := middleware.RequestTimeout(time.Duration(s.config.RequestTimeoutSeconds) * time.Second)
	authRequired := middleware.AuthRequired(s.verifier, s.revocations)

	// Auth routes
	authRoutes := api.Group("/auth", timeout)
	authRoutes.Put("/signup", s.limiter.Handler("signup", signupLimit, signupWindow), s.Signup)
	authRoutes.Post("/login", s.limiter.Handler("login", loginLimit, loginWindow), s.Login)
	authRoutes.Post("/logout", authRequired, s.Logout)

	// Feed routes, all protected
	feed := api.Group("/feed", timeout, authRequired)
	feed.Get("/posts", s.GetPosts)
	feed.Post("/post", s.limiter.Handler("create_post", createPostLimit, createPostWindow), s.CreatePost)
	feed.Get("/post/:postId", s.GetPost)
	feed.Put("/post/:postId", s.UpdatePost)
	feed.Delete("/post/:postId", s.DeletePost)
	feed.Get("/status", s.GetStatus)
	feed.Patch("/status", s.UpdateStatus)
}

// LivenessCheck reports that the process is up.
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck reports whether the database and Redis are reachable.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	sqlDB, err := s.db.DB()
	if err != nil {
		dbStatus = "unhealthy"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "unhealthy"
	}

	// Redis is optional; only a configured but failing Redis is unhealthy.
	redisStatus := "disabled"
	if s.redis != nil {
		redisStatus = "healthy"
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	}

	broadcast := "local"
	if s.relay.Active() {
		broadcast = "relay"
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if dbStatus == "unhealthy" || redisStatus == "unhealthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overallStatus,
		"checks": fiber.Map{
			"database":  dbStatus,
			"redis":     redisStatus,
			"broadcast": broadcast,
		},
		"subscribers": s.hub.ConnectionCount(),
		"time":        time.Now(),
	})
}

// StartBroadcast subscribes the relay to Redis. Without Redis, or when the
// subscription fails, frames are delivered to this process only.
func (s *Server) StartBroadcast() {
	if err := s.relay.Start(s.shutdownCtx); err != nil {
		middleware.Logger.Warn("Broadcast relay unavailable, delivering locally",
			slog.String("error", err.Error()))
	}
}

// Start starts the server
func (s *Server) Start() error {
	s.StartBroadcast()

	app := s.App()
	middleware.Logger.Info("Server starting", slog.String("port", s.config.Port))
	return app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	// Cancel the server-scoped context to stop the relay
	if s.shutdownFn != nil {
		s.shutdownFn()
	}

	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			middleware.Logger.Error("error shutting down HTTP server", slog.String("error", err.Error()))
		}
	}

	// Close WebSocket connections gracefully
	if err := s.hub.Shutdown(ctx); err != nil {
		middleware.Logger.Error("error shutting down hub", slog.String("hub", s.hub.Name()), slog.String("error", err.Error()))
	}

	if sqlDB, err := s.db.DB(); err == nil {
		if cerr := sqlDB.Close(); cerr != nil {
			middleware.Logger.Error("error closing sql DB", slog.String("error", cerr.Error()))
		}
	}

	if s.redis != nil {
		if rerr := s.redis.Close(); rerr != nil {
			middleware.Logger.Error("error closing redis", slog.String("error", rerr.Error()))
		}
	}

	middleware.Logger.Info("Server shutdown complete")
	return nil
}
