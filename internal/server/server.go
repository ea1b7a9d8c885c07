// Package server contains HTTP and WebSocket handlers for the application's API endpoints.
package server

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	_ "chirp/docs" // swagger docs
	"chirp/internal/bootstrap"
	"chirp/internal/cache"
	"chirp/internal/config"
	"chirp/internal/featureflags"
	"chirp/internal/identity"
	"chirp/internal/middleware"
	"chirp/internal/models"
	"chirp/internal/notifications"
	"chirp/internal/repository"
	"chirp/internal/service"
	"chirp/internal/storage"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/swagger"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// wireableHub is implemented by every WebSocket hub that can be wired to
// Redis pub/sub and gracefully shut down.
type wireableHub interface {
	Name() string
	StartWiring(ctx context.Context, n *notifications.Notifier) error
	Shutdown(ctx context.Context) error
}

// Deps are the already-connected backing services a Server runs on.
type Deps struct {
	DB       *gorm.DB
	Redis    *redis.Client
	Users    identity.Store
	Cache    cache.Store
	Emitter  service.Emitter
	Notifier *notifications.Notifier
	Hub      *notifications.Hub
	Blobs    storage.BlobStore
}

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc
	auth           *middleware.Authenticator
	notifier       *notifications.Notifier
	hub            *notifications.Hub
	hubs           []wireableHub
	featureFlags   *featureflags.Manager
	blobs          storage.BlobStore

	authService         *service.AuthService
	postService         *service.PostService
	feedService         *service.FeedService
	interactionService  *service.InteractionService
	commentService      *service.CommentService
	pollService         *service.PollService
	searchService       *service.SearchService
	userService         *service.UserService
	notificationService *service.NotificationService
	mediaService        *service.MediaService
}

// NewServer creates a server on top of an initialized runtime.
func NewServer(rt *bootstrap.Runtime) (*Server, error) {
	return NewServerWithDeps(rt.Config, Deps{
		DB:       rt.DB,
		Redis:    rt.Redis,
		Users:    rt.Users,
		Cache:    rt.Cache,
		Emitter:  rt.Emitter(),
		Notifier: rt.Notifier,
		Hub:      rt.Hub,
		Blobs:    rt.Blobs,
	})
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// Tests use it with sqlite, miniredis and in-memory identity and blob stores.
func NewServerWithDeps(cfg *config.Config, deps Deps) (*Server, error) {
	if deps.DB == nil || deps.Users == nil {
		return nil, errors.New("server requires a database and an identity store")
	}
	if deps.Hub == nil {
		deps.Hub = notifications.NewHub(deps.Redis)
	}
	if deps.Notifier == nil {
		deps.Notifier = notifications.NewNotifier(deps.Redis)
	}

	flags := featureflags.NewManager(cfg.FeatureFlags)
	tokens := middleware.NewTokenManager(cfg)
	var revocations *cache.TokenBlacklist
	if deps.Redis != nil {
		revocations = cache.NewTokenBlacklist(deps.Redis)
	}

	s := &Server{
		config:         cfg,
		db:             deps.DB,
		redis:          deps.Redis,
		promMiddleware: middleware.InitMetrics("chirp-api"),
		notifier:       deps.Notifier,
		hub:            deps.Hub,
		hubs:           []wireableHub{deps.Hub},
		featureFlags:   flags,
		blobs:          deps.Blobs,
	}
	if revocations != nil {
		s.auth = middleware.NewAuthenticator(tokens, revocations)
		s.authService = service.NewAuthService(deps.Users, tokens, revocations)
	} else {
		s.auth = middleware.NewAuthenticator(tokens, nil)
		s.authService = service.NewAuthService(deps.Users, tokens, nil)
	}

	postRepo := repository.NewPostRepository(deps.DB)
	feedRepo := repository.NewFeedRepository(deps.DB)

	s.notificationService = service.NewNotificationService(repository.NewNotificationRepository(deps.DB), deps.Users, deps.Emitter)
	s.postService = service.NewPostService(postRepo, feedRepo, deps.Users, deps.Cache, s.notificationService, deps.Emitter)
	s.feedService = service.NewFeedService(feedRepo, deps.Users)
	s.interactionService = service.NewInteractionService(repository.NewInteractionRepository(deps.DB), s.notificationService, deps.Emitter)
	s.commentService = service.NewCommentService(repository.NewCommentRepository(deps.DB), deps.Users, s.notificationService, deps.Emitter)
	s.pollService = service.NewPollService(repository.NewPollRepository(deps.DB), postRepo, deps.Emitter)
	s.searchService = service.NewSearchService(deps.Users, postRepo, s.postService, flags.Gate(featureflags.SearchUsersRegex))
	s.userService = service.NewUserService(deps.Users, repository.NewFollowRepository(deps.DB), s.notificationService)
	if deps.Blobs != nil {
		s.mediaService = service.NewMediaService(deps.Blobs, cfg, flags.Gate(featureflags.MediaThumbnails))
	}

	models.ExposeErrorDetails = cfg.IsDevelopment()
	return s, nil
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	// Panic recovery
	app.Use(recover.New())

	// Request ID for tracing
	app.Use(requestid.New())

	// Context Middleware to propagate Request ID and User ID
	app.Use(middleware.ContextMiddleware())

	app.Use(middleware.TracingMiddleware())

	// Prometheus Metrics
	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	// Security headers
	app.Use(helmet.New(helmet.Config{CrossOriginResourcePolicy: "cross-origin"}))

	// Structured Logging middleware (after requestid and context middleware)
	app.Use(middleware.StructuredLogger())

	// CORS middleware should run before middlewares that can short-circuit (e.g. limiter)
	// so browser clients still receive CORS headers on error responses.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000,http://127.0.0.1:5173"
	}

	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	// Global rate limiting (100 requests per minute per IP)
	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
		// Never rate-limit preflight requests; they should be handled by CORS.
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return models.RespondWithError(c, fiber.StatusTooManyRequests,
				&models.AppError{Code: models.CodeRateLimited, Message: "Too many requests, please try again later."})
		},
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	required := s.auth.Required()
	optional := s.auth.Optional()

	// Health checks
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)

	// Metrics endpoint for Prometheus
	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	if local, ok := s.blobs.(*storage.LocalStore); ok && strings.HasPrefix(s.config.MediaBaseURL, "/") {
		app.Static(s.config.MediaBaseURL, local.Dir(), fiber.Static{MaxAge: 3600})
	}

	api := app.Group("/api")
	api.Get("/metrics/dashboard", monitor.New(monitor.Config{
		Title: "Chirp Backend Metrics Dashboard",
	}))

	// Swagger documentation
	api.Get("/swagger/*", swagger.HandlerDefault)

	// Auth routes
	auth := api.Group("/auth")
	auth.Post("/register", middleware.RateLimitWithPolicy(
		s.redis, 5, 10*time.Minute, middleware.FailClosed, "register"), s.Register)
	auth.Post("/login", middleware.RateLimitWithPolicy(
		s.redis, 10, 5*time.Minute, middleware.FailClosed, "login"), s.Login)
	auth.Post("/logout", required, s.Logout)
	auth.Post("/refresh", required, s.Refresh)
	auth.Get("/me", required, s.Me)
	auth.Put("/password", required, s.ChangePassword)
	auth.Put("/profile", required, s.UpdateProfile)

	// Post routes. Fixed paths are registered before /:postId.
	posts := api.Group("/posts")
	posts.Get("/live-feeds", optional, s.LiveFeed)
	posts.Get("/feed", required, s.FollowingFeed)
	posts.Get("/search", optional, middleware.RateLimit(
		s.redis, 30, time.Minute, "search"), s.SearchPosts)
	posts.Get("/trending/hashtags", optional, s.TrendingHashtags)
	posts.Post("/", required, middleware.RateLimit(
		s.redis, 30, 5*time.Minute, "create_post"), s.CreatePost)
	posts.Get("/:postId", optional, s.GetPost)
	posts.Delete("/:postId", required, s.DeletePost)
	posts.Post("/:postId/like", required, s.ToggleLike)
	posts.Post("/:postId/retweet", required, s.ToggleRetweet)
	posts.Get("/:postId/analytics", required, s.PostAnalytics)
	posts.Get("/:postId/comments", optional, s.GetComments)
	posts.Post("/:postId/comments", required, middleware.RateLimit(
		s.redis, 20, time.Minute, "create_comment"), s.CreateComment)
	posts.Get("/:postId/polls", optional, s.GetPostPoll)

	api.Post("/polls/vote", required, s.VotePoll)

	// User routes. Fixed paths are registered before /:userId.
	users := api.Group("/users")
	users.Get("/suggestions", required, s.GetSuggestions)
	users.Get("/search", optional, s.SearchUsers)
	users.Get("/:userId/profile", optional, s.GetUserProfile)
	users.Get("/:userId/posts", optional, s.GetUserPosts)
	users.Get("/:userId/followers", optional, s.GetFollowers)
	users.Get("/:userId/following", optional, s.GetFollowing)
	users.Post("/:userId/follow", required, middleware.RateLimit(
		s.redis, 30, time.Minute, "follow"), s.FollowUser)
	users.Delete("/:userId/follow", required, s.UnfollowUser)

	api.Get("/search", optional, middleware.RateLimit(
		s.redis, 30, time.Minute, "search"), s.Search)

	notes := api.Group("/notifications", required)
	notes.Get("/", s.GetNotifications)
	notes.Put("/read-all", s.MarkAllNotificationsRead)
	notes.Put("/:id/read", s.MarkNotificationRead)

	api.Post("/media", required, middleware.RateLimit(
		s.redis, 30, 10*time.Minute, "media_upload"), s.UploadMedia)

	api.Get("/feature-flags", optional, s.GetFeatureFlags)

	// Websocket endpoint; browsers cannot set headers on upgrade requests.
	api.Get("/ws", s.auth.WebSocket(), s.WebsocketHandler())
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck handles readiness probe requests
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

	redisStatus := "healthy"
	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	} else {
		// Without Redis the instance still serves, with local-only real-time.
		redisStatus = "unavailable"
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
			"database":   dbStatus,
			"redis":      redisStatus,
			"websockets": s.hub.ConnectionCount(),
		},
		"time": time.Now(),
	})
}

// errorHandler writes the standard envelope for errors that escape handlers.
func errorHandler(c *fiber.Ctx, err error) error {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return models.RespondWithError(c, fiberErr.Code, err)
	}
	status := models.StatusForError(err)
	if status >= fiber.StatusInternalServerError {
		middleware.Logger.ErrorContext(c.UserContext(), "unhandled request error",
			slog.String("path", c.Path()), slog.String("error", err.Error()))
	}
	return models.RespondWithError(c, status, err)
}

// NewApp builds the Fiber app with middleware and routes installed.
func (s *Server) NewApp() *fiber.App {
	bodyLimit := 4 * 1024 * 1024
	if s.mediaService != nil {
		bodyLimit = int(s.mediaService.MaxUploadBytes()) + 1024*1024
	}
	app := fiber.New(fiber.Config{
		AppName:      "Chirp API",
		BodyLimit:    bodyLimit,
		ErrorHandler: errorHandler,
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	return app
}

// Start starts the server
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.shutdownCtx = ctx
	s.shutdownFn = cancel

	s.app = s.NewApp()

	// Wire all hubs to the Redis subscriber if available
	if s.redis != nil {
		for _, h := range s.hubs {
			h := h
			go func() {
				if err := h.StartWiring(s.shutdownCtx, s.notifier); err != nil {
					middleware.Logger.Error("hub wiring failed",
						slog.String("hub", h.Name()), slog.String("error", err.Error()))
				}
			}()
		}
	}

	middleware.Logger.Info("Server starting", slog.String("port", s.config.Port))
	return s.app.Listen(":" + s.config.Port)
}

// Shutdown stops accepting requests and closes websocket clients. The
// backing connections belong to the runtime and are closed there.
func (s *Server) Shutdown(ctx context.Context) error {
	// Cancel the server-scoped context to stop all wiring goroutines
	if s.shutdownFn != nil {
		s.shutdownFn()
	}

	var errs []error
	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	// Close WebSocket connections gracefully
	for _, h := range s.hubs {
		if err := h.Shutdown(ctx); err != nil {
			middleware.Logger.Warn("hub shutdown failed",
				slog.String("hub", h.Name()), slog.String("error", err.Error()))
		}
	}

	middleware.Logger.Info("Server shutdown complete")
	return errors.Join(errs...)
}
