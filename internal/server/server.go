// Package server contains HTTP and WebSocket handlers for the application's API endpoints.
package server

import (
	"context"
	"errors"
	"time"

	_ "sccompanion/docs" // swagger docs
	"sccompanion/internal/config"
	"sccompanion/internal/events"
	"sccompanion/internal/featureflags"
	"sccompanion/internal/middleware"
	"sccompanion/internal/models"
	"sccompanion/internal/notifications"
	"sccompanion/internal/observability"
	"sccompanion/internal/repository"
	"sccompanion/internal/service"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/swagger"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc

	store        *repository.Store
	events       events.Publisher
	notifier     *notifications.Notifier
	hub          *notifications.Hub
	featureFlags *featureflags.Manager

	authService   *service.AuthService
	userService   *service.UserService
	postService   *service.PostService
	socialService *service.SocialService
}

// Options carries optional collaborators. Zero values fall back to
// defaults built from the config.
type Options struct {
	Events events.Publisher
	Clock  func() time.Time
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// The bootstrap layer (or a test) owns the DB and Redis connections.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client, opts Options) *Server {
	publisher := opts.Events
	if publisher == nil {
		publisher = events.NewPublisher(cfg.Brokers(), cfg.KafkaTopic)
	}

	store := repository.NewStore(db)
	flags := featureflags.NewManager(cfg.FeatureFlags)

	server := &Server{
		config:       cfg,
		db:           db,
		redis:        redisClient,
		store:        store,
		events:       publisher,
		featureFlags: flags,
	}

	// The notifier and hub need Redis for cross-instance delivery.
	if redisClient != nil {
		server.notifier = notifications.NewNotifier(redisClient)
		server.hub = notifications.NewHub()
	}

	deps := service.Dependencies{
		Events:   publisher,
		Notifier: server.notifier,
		Flags:    flags,
		Clock:    opts.Clock,
	}
	server.authService = service.NewAuthService(store, cfg, deps)
	server.userService = service.NewUserService(store, deps)
	server.postService = service.NewPostService(store, deps)
	server.socialService = service.NewSocialService(store, deps)

	return server
}

// App builds the fiber application with middleware and routes. It is
// what Start listens on and what tests drive through app.Test.
func (s *Server) App() *fiber.App {
	if s.app != nil {
		return s.app
	}
	models.ExposeInternalDetails = !s.config.IsProduction()

	app := fiber.New(fiber.Config{
		AppName:      "SC Companion API",
		ErrorHandler: ErrorHandler,
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	s.app = app
	return app
}

// ErrorHandler converts errors that escape handlers into the standard
// error body. Fiber errors keep their status.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code := models.CodeInternal
		switch fe.Code {
		case fiber.StatusNotFound:
			code = models.CodeNotFound
		case fiber.StatusBadRequest, fiber.StatusUnprocessableEntity:
			code = models.CodeValidation
		case fiber.StatusUnauthorized:
			code = models.CodeUnauthorized
		case fiber.StatusForbidden:
			code = models.CodeForbidden
		case fiber.StatusTooManyRequests:
			code = models.CodeRateLimited
		}
		return c.Status(fe.Code).JSON(models.ErrorResponse{Error: fe.Message, Code: code})
	}

	status := models.StatusFor(err)
	if status >= fiber.StatusInternalServerError {
		middleware.Logger.ErrorContext(c.UserContext(), "unhandled error",
			"error", err, "method", c.Method(), "path", c.Path())
	}
	return models.RespondWithError(c, status, err)
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New(recover.Config{EnableStackTrace: !s.config.IsProduction()}))
	app.Use(requestid.New(requestid.Config{Generator: uuid.NewString}))
	app.Use(middleware.TracingMiddleware())
	app.Use(middleware.ContextMiddleware())

	if s.promMiddleware == nil {
		s.promMiddleware = observability.HTTPMetrics("sc-companion-api")
	}
	app.Use(s.promMiddleware.Middleware)

	app.Use(helmet.New())
	app.Use(middleware.StructuredLogger())

	// CORS runs before the limiter so 429 responses still carry CORS headers.
	app.Use(cors.New(cors.Config{
		AllowOrigins:     s.config.AllowedOrigins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	maxRequests := s.config.RateLimitMax
	if maxRequests <= 0 {
		maxRequests = 100
	}
	window := s.config.RateLimitWindow
	if window <= 0 {
		window = 15 * time.Minute
	}
	app.Use(limiter.New(limiter.Config{
		Max:        maxRequests,
		Expiration: window,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(models.ErrorResponse{
				Error: "Too many requests from this IP, please try again later.",
				Code:  models.CodeRateLimited,
			})
		},
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	app.Get("/health", s.ReadinessCheck)
	s.promMiddleware.RegisterAt(app, "/metrics")

	api := app.Group("/api")
	if !s.config.IsProduction() {
		api.Get("/swagger/*", swagger.HandlerDefault)
	}

	// Users. Literal paths are registered before /:userId.
	users := api.Group("/users")
	users.Post("/register", middleware.RateLimit(s.redis, 5, 15*time.Minute, "register"), s.Register)
	users.Post("/login", middleware.RateLimitWithPolicy(s.redis, 10, 15*time.Minute, middleware.FailClosed, "login"), s.Login)
	users.Get("/search", s.SearchUsers)
	users.Get("/leaderboard", s.GetLeaderboard)
	users.Get("/me", s.AuthRequired(), s.GetMe)
	users.Post("/refresh-token", s.AuthRequired(), s.RefreshToken)
	users.Post("/logout", s.AuthRequired(), s.Logout)
	users.Post("/link-rsi", s.AuthRequired(), s.LinkRSI)
	users.Put("/rsi-geid", s.AuthRequired(), s.UpdateGEID)
	users.Put("/profile", s.AuthRequired(), s.UpdateProfile)
	users.Delete("/deactivate", s.AuthRequired(), s.DeactivateAccount)
	users.Put("/:userId/role", s.AuthRequired(), s.RequirePermission(models.PermManageUsers), s.UpdateUserRole)
	users.Post("/:userId/ban", s.AuthRequired(), s.RequirePermission(models.PermBanUsers), s.BanUser)
	users.Delete("/:userId/ban", s.AuthRequired(), s.RequirePermission(models.PermBanUsers), s.UnbanUser)
	users.Post("/:userId/award-xp", s.AuthRequired(), s.RequireRole(models.RoleAdmin), s.AwardXP)
	users.Get("/:userId", s.OptionalAuth(), s.GetUserProfile)

	socialWrite := middleware.RateLimit(s.redis, 30, time.Minute, "social")

	posts := api.Group("/posts")
	posts.Get("/feed", s.OptionalAuth(), s.GetFeed)
	posts.Get("/user/:userId", s.OptionalAuth(), s.GetUserPosts)
	posts.Post("/", s.AuthRequired(), middleware.RateLimit(s.redis, 10, time.Minute, "create_post"), s.CreatePost)
	posts.Post("/:postId/like", s.AuthRequired(), socialWrite, s.LikePost)
	posts.Delete("/:postId/like", s.AuthRequired(), socialWrite, s.UnlikePost)
	posts.Post("/:postId/moderate", s.AuthRequired(), s.RequirePermission(models.PermModeratePosts), s.ModeratePost)
	posts.Get("/:postId", s.OptionalAuth(), s.GetPost)
	posts.Put("/:postId", s.AuthRequired(), s.UpdatePost)
	posts.Delete("/:postId", s.AuthRequired(), s.DeletePost)

	likes := api.Group("/likes", s.AuthRequired())
	likes.Post("/post/:postId", socialWrite, s.LikePost)
	likes.Delete("/post/:postId", socialWrite, s.UnlikePost)

	follows := api.Group("/follows", s.AuthRequired())
	follows.Post("/", socialWrite, s.FollowUser)
	follows.Get("/:userId/followers", s.GetFollowers)
	follows.Get("/:userId/following", s.GetFollowing)
	follows.Delete("/:userId", socialWrite, s.UnfollowUser)

	friends := api.Group("/friends", s.AuthRequired())
	friends.Post("/request", socialWrite, s.SendFriendRequest)
	friends.Put("/request/:requestId", s.RespondToFriendRequest)
	friends.Get("/requests", s.GetFriendRequests)
	friends.Get("/:userId/friends", s.GetFriends)
	friends.Get("/:userId/stats", s.GetSocialStats)
	friends.Delete("/:userId", s.RemoveFriend)

	ws := api.Group("/ws", s.AuthRequired())
	ws.Get("/events", s.upgradeOnly, s.EventsWebsocket())
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "up",
		"time":   time.Now().UTC(),
	})
}

// ReadinessCheck pings the database and Redis.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	if err := s.store.Ping(ctx); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "healthy"
	if s.redis == nil {
		redisStatus = "unavailable"
	} else if err := s.redis.Ping(ctx).Err(); err != nil {
		redisStatus = "unhealthy"
	}

	status := fiber.StatusOK
	overall := "healthy"
	if dbStatus != "healthy" || redisStatus != "healthy" {
		status = fiber.StatusServiceUnavailable
		overall = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overall,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"time": time.Now().UTC(),
	})
}

// Start wires the notification hub to Redis and listens on the configured
// port. It blocks until the listener stops.
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.shutdownCtx = ctx
	s.shutdownFn = cancel

	app := s.App()

	if s.hub != nil && s.notifier != nil {
		go func() {
			if err := s.hub.StartWiring(s.shutdownCtx, s.notifier); err != nil {
				middleware.Logger.Error("notification hub wiring stopped", "error", err)
			}
		}()
	}

	middleware.Logger.Info("server starting", "port", s.config.Port, "env", s.config.Env)
	return app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.shutdownFn != nil {
		s.shutdownFn()
	}

	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			middleware.Logger.Error("error shutting down HTTP server", "error", err)
		}
	}

	if s.hub != nil {
		if err := s.hub.Shutdown(ctx); err != nil {
			middleware.Logger.Error("error shutting down notification hub", "error", err)
		}
	}

	if err := s.events.Close(); err != nil {
		middleware.Logger.Error("error closing event publisher", "error", err)
	}

	if sqlDB, err := s.db.DB(); err == nil {
		if cerr := sqlDB.Close(); cerr != nil {
			middleware.Logger.Error("error closing sql DB", "error", cerr)
		}
	}

	if s.redis != nil {
		if rerr := s.redis.Close(); rerr != nil {
			middleware.Logger.Error("error closing redis", "error", rerr)
		}
	}

	middleware.Logger.Info("server shutdown complete")
	return nil
}
