// Package server
//
// @title HDS CONECTE API
// @version 1.0
// @description Community app backend: auth, events, challenges, teams, videos and notifications
// @host localhost:8080
// @BasePath /
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/hds-conecte/conecte/internal/auth"
	"github.com/hds-conecte/conecte/internal/config"
	"github.com/hds-conecte/conecte/internal/models"
	"github.com/hds-conecte/conecte/internal/realtime"
	"github.com/hds-conecte/conecte/internal/roles"
	"github.com/hds-conecte/conecte/internal/tasks"
	"github.com/hds-conecte/conecte/internal/youtube"
)

const shutdownTimeout = 30 * time.Second

// Options carries the collaborators the server does not own
type Options struct {
	DB       *gorm.DB
	Enqueuer tasks.Enqueuer
	Broker   realtime.Broker
	OAuth    auth.OAuthProvider // nil when Google sign-in is not configured
	Version  string
}

// Server represents the HTTP server
type Server struct {
	router    *gin.Engine
	db        *gorm.DB
	config    *config.Config
	logger    zerolog.Logger
	validator *validator.Validate
	issuer    *auth.Issuer
	enqueuer  tasks.Enqueuer
	broker    realtime.Broker
	oauth     auth.OAuthProvider
	version   string
	now       func() time.Time
}

// New creates a new server instance
func New(cfg *config.Config, zlog zerolog.Logger, opts Options) (*Server, error) {
	if opts.DB == nil {
		return nil, errors.New("database is required")
	}
	if opts.Enqueuer == nil || opts.Broker == nil {
		return nil, errors.New("task enqueuer and realtime broker are required")
	}

	secret, err := loadOrCreateSecret(opts.DB)
	if err != nil {
		return nil, err
	}

	// Initialize validator
	validate := validator.New()

	// Register custom validators
	if err := validate.RegisterValidation("youtube", func(fl validator.FieldLevel) bool {
		_, err := youtube.VideoID(fl.Field().String())
		return err == nil
	}); err != nil {
		return nil, fmt.Errorf("failed to register validator: %w", err)
	}

	server := &Server{
		db:        opts.DB,
		config:    cfg,
		logger:    zlog.With().Str("component", "api").Logger(),
		validator: validate,
		issuer:    auth.NewIssuer(secret, cfg.Auth.AccessTokenTTL),
		enqueuer:  opts.Enqueuer,
		broker:    opts.Broker,
		oauth:     opts.OAuth,
		version:   opts.Version,
		now:       time.Now,
	}

	// Setup router
	server.setupRouter()

	return server, nil
}

// loadOrCreateSecret returns the persisted JWT secret, generating it on first start
func loadOrCreateSecret(db *gorm.DB) (string, error) {
	var cfg models.Config
	err := db.First(&cfg).Error
	if err == nil {
		return cfg.JWTSecret, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("failed to load config: %w", err)
	}

	secret, err := auth.NewSecret()
	if err != nil {
		return "", err
	}
	cfg = models.Config{JWTSecret: secret}
	if err := db.Create(&cfg).Error; err != nil {
		return "", fmt.Errorf("failed to create config: %w", err)
	}
	return secret, nil
}

// setupRouter configures the Gin router with routes and middleware
func (s *Server) setupRouter() {
	// Set Gin mode based on environment
	gin.SetMode(gin.ReleaseMode)

	s.router = gin.New()

	// Add middleware
	s.router.Use(gin.Recovery())
	s.router.Use(s.loggingMiddleware())

	// CORS middleware, only for browser origins; the CLI does not need it
	if len(s.config.Server.AllowedOrigins) > 0 {
		s.router.Use(cors.New(cors.Config{
			AllowOrigins:     s.config.Server.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization"},
			ExposeHeaders:    []string{"Content-Length"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	} else {
		s.logger.Warn().Msg("No CORS origins configured, browser clients are refused")
	}

	// Health check endpoint (no auth required)
	s.router.GET("/health", s.healthCheck)

	// Uploaded avatars
	s.router.Static("/uploads", s.config.Server.UploadDir)

	// Public auth endpoints (no auth required)
	public := s.router.Group("/api/auth")
	{
		public.POST("/signup", s.signup)
		public.POST("/token", s.token)
		public.POST("/recover", s.recoverPassword)
		public.POST("/reset", s.resetPassword)
		public.POST("/confirm", s.confirmEmail)
		public.GET("/oauth/google", s.googleAuthorize)
		public.GET("/oauth/google/callback", s.googleCallback)
	}

	// Authenticated API routes (JWT required)
	api := s.router.Group("/api")
	api.Use(JWTAuthMiddleware(s.issuer, s.db, s.logger))
	{
		// Auth endpoints
		api.GET("/auth/user", s.getCurrentUser)
		api.POST("/auth/logout", s.logout)

		// Profile
		api.GET("/profile", s.getProfile)
		api.PATCH("/profile", s.updateProfile)
		api.POST("/profile/photo", s.uploadProfilePhoto)

		// Events & registrations
		api.GET("/events", s.listEvents)
		api.GET("/events/:id", s.getEvent)
		api.POST("/events/:id/registrations", s.registerForEvent)
		api.DELETE("/events/:id/registrations", s.cancelRegistration)
		api.GET("/registrations", s.listMyRegistrations)

		// Challenges
		api.GET("/challenges", s.listChallenges)
		api.GET("/team-challenges", s.listTeamChallenges)
		api.POST("/team-challenges", s.submitTeamChallenge)
		api.GET("/user-challenges", s.listUserChallenges)
		api.POST("/user-challenges", s.submitUserChallenge)
		api.GET("/scoreboard", s.scoreboard)

		// Teams
		api.GET("/teams", s.listTeams)
		api.GET("/teams/:id", s.getTeam)
		api.GET("/teams/:id/achievements", s.listTeamAchievements)
		api.POST("/teams/:id/join", s.joinTeam)
		api.GET("/team-members", s.listTeamMembers)

		// Videos
		api.GET("/videos", s.listVideos)
		api.POST("/videos", s.createVideo)
		api.DELETE("/videos/:id", s.deleteVideo)
		api.GET("/videos/:id/interaction", s.getVideoInteraction)
		api.PUT("/videos/:id/interaction", s.upsertVideoInteraction)

		// Notifications
		api.GET("/notifications", s.listNotifications)
		api.GET("/notifications/stream", s.streamNotifications)
		api.PATCH("/notifications/:id/read", s.markNotificationRead)
		api.POST("/notifications/read-all", s.markAllNotificationsRead)
		api.DELETE("/notifications/:id", s.deleteNotification)
		api.DELETE("/notifications", s.clearNotifications)

		// Staff only (admin, dev-admin)
		staff := api.Group("")
		staff.Use(RequireRole(s.logger, roles.Staff...))
		{
			staff.POST("/events", s.createEvent)
			staff.PATCH("/events/:id", s.updateEvent)
			staff.DELETE("/events/:id", s.deleteEvent)
			staff.GET("/events/:id/registrations", s.listEventRegistrations)
			staff.PATCH("/registrations/:id", s.updateRegistration)

			staff.POST("/challenges", s.createChallenge)
			staff.PATCH("/challenges/:id", s.updateChallenge)
			staff.DELETE("/challenges/:id", s.deleteChallenge)
			staff.PATCH("/team-challenges/:id", s.reviewTeamChallenge)
			staff.PATCH("/user-challenges/:id", s.reviewUserChallenge)

			staff.POST("/teams", s.createTeam)
			staff.DELETE("/teams/:id", s.deleteTeam)
			staff.PATCH("/team-members/:id", s.reviewTeamMember)

			staff.POST("/notifications", s.createNotification)

			staff.GET("/users", s.listUsers)
		}

		// Dev-admin only
		dev := api.Group("")
		dev.Use(RequireRole(s.logger, roles.DevAdmin))
		{
			dev.PATCH("/users/:id/role", s.updateUserRole)
			dev.GET("/system/status", s.systemStatus)
		}
	}
}

// loggingMiddleware creates a custom logging middleware using zerolog
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start)

		s.logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", duration).
			Str("client_ip", c.ClientIP()).
			Msg("HTTP request")
	}
}

// @Router /health [get]
// @Success 200 {object} map[string]interface{}
func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "online",
		"timestamp": time.Now().UTC(),
		"service":   "conecte-api",
		"version":   s.version,
	})
}

// Handler exposes the router for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves HTTP until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	port := ":" + s.config.Server.Port

	// Create HTTP server with production timeouts. No write timeout so the
	// notification stream can stay open.
	srv := &http.Server{
		Addr:              port,
		Handler:           s.router,
		ReadTimeout:       60 * time.Second,
		ReadHeaderTimeout: 30 * time.Second,
		IdleTimeout:       300 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info().Str("port", port).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info().Msg("Shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down HTTP server: %w", err)
		}
		return nil
	})

	err := g.Wait()
	s.logger.Info().Msg("Server shutdown complete")
	return err
}
