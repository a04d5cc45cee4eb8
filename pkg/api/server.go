package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/mhrivnak/orderflow/pkg/api/handlers"
	"github.com/mhrivnak/orderflow/pkg/approval"
	"github.com/mhrivnak/orderflow/pkg/auth"
	"github.com/mhrivnak/orderflow/pkg/config"
	"github.com/mhrivnak/orderflow/pkg/database"
	"github.com/mhrivnak/orderflow/pkg/database/repositories"
	"github.com/mhrivnak/orderflow/pkg/discovery"
	"github.com/mhrivnak/orderflow/pkg/hooks"
	"github.com/mhrivnak/orderflow/pkg/logging"
)

// Services are the domain services the API exposes.
type Services struct {
	Auth      *auth.Service
	JWT       *auth.JWTManager
	Approvals *approval.Service
	Options   *hooks.OptionRegistry
	Syncer    *discovery.Syncer
}

// Server represents the API server
type Server struct {
	config     *config.Config
	db         *database.DB
	services   Services
	router     *gin.Engine
	httpServer *http.Server
	log        logrus.FieldLogger
}

// NewServer creates a new API server instance
func NewServer(cfg *config.Config, db *database.DB, services Services, log logrus.FieldLogger) *Server {
	server := &Server{
		config:   cfg,
		db:       db,
		services: services,
		log:      log.WithField("component", "api"),
	}

	if cfg.Log.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	server.setupRoutes()
	server.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.API.Port),
		Handler:      server.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return server
}

func (s *Server) corsConfig() cors.Config {
	corsConfig := cors.DefaultConfig()
	if len(s.config.API.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = s.config.API.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowHeaders(auth.AuthorizationHeader)
	return corsConfig
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router = gin.New()

	if s.config.Sentry.DSN != "" {
		s.router.Use(sentrygin.New(sentrygin.Options{Repanic: true, Timeout: 2 * time.Second}))
	}
	s.router.Use(logging.GinLogger(s.log))
	s.router.Use(gin.Recovery())
	s.router.Use(cors.New(s.corsConfig()))
	s.router.Use(errorHandler(s.log))

	db := s.db.DB
	userRepo := repositories.NewUserRepository(db)
	groupRepo := repositories.NewGroupRepository(db)
	orderRepo := repositories.NewOrderRepository(db)
	serverRepo := repositories.NewServerRepository(db)

	sessions := handlers.NewSessionHandlers(s.services.Auth)
	users := handlers.NewUserHandlers(s.services.Auth, userRepo)
	groups := handlers.NewGroupHandlers(groupRepo, userRepo)
	orders := handlers.NewOrderHandlers(s.services.Approvals, orderRepo, userRepo)
	options := handlers.NewOptionHandlers(s.services.Options, userRepo, groupRepo)
	resources := handlers.NewResourceHandlers(serverRepo, s.services.Syncer)

	s.router.GET("/health", s.healthHandler)
	s.router.GET("/ready", s.readinessHandler)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/health", s.healthHandler)
		v1.GET("/version", s.versionHandler)

		limiter := NewIPRateLimiter(s.config.API.LoginRateLimit)
		v1.POST("/sessions", limiter.Middleware(), sessions.CreateSession)

		protected := v1.Group("/")
		protected.Use(auth.JWTMiddleware(s.services.JWT))
		{
			protected.GET("/user/profile", users.Profile)

			protected.GET("/orders", orders.ListOrders)
			protected.POST("/orders", orders.CreateOrder)
			protected.GET("/orders/:id", orders.GetOrder)
			protected.GET("/orders/:id/quota", orders.OrderQuota)
			protected.POST("/orders/:id/approve", orders.ApproveOrder)
			protected.POST("/orders/:id/deny", orders.DenyOrder)

			protected.GET("/groups", groups.ListGroups)
			protected.GET("/groups/:id", groups.GetGroup)
			protected.GET("/groups/:id/lineage", groups.Lineage)
			protected.GET("/groups/:id/members", groups.ListMembers)

			protected.GET("/options", options.ListFields)
			protected.GET("/options/:field", options.Generate)
		}

		admin := v1.Group("/")
		admin.Use(auth.JWTMiddleware(s.services.JWT), auth.RequireRole(auth.RoleSuperAdmin))
		{
			admin.GET("/users", users.ListUsers)
			admin.POST("/users", users.CreateUser)

			admin.POST("/groups", groups.CreateGroup)
			admin.PUT("/groups/:id/parent", groups.SetParent)
			admin.POST("/groups/:id/members", groups.AddMember)
			admin.DELETE("/groups/:id/members/:user_id", groups.RemoveMember)
			admin.PUT("/groups/:id/quotas/:attribute", groups.SetQuota)

			admin.GET("/resource-handlers", resources.ListHandlers)
			admin.POST("/resource-handlers", resources.CreateHandler)
			admin.POST("/resource-handlers/:id/sync", resources.Sync)
			admin.GET("/resource-handlers/:id/servers", resources.ListServers)
		}
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	address := s.httpServer.Addr

	if s.config.API.TLSCert != "" && s.config.API.TLSKey != "" {
		if _, err := os.Stat(s.config.API.TLSCert); err != nil {
			return fmt.Errorf("TLS certificate file error: %w", err)
		}
		if _, err := os.Stat(s.config.API.TLSKey); err != nil {
			return fmt.Errorf("TLS key file error: %w", err)
		}
		s.log.WithField("address", address).Info("Starting HTTPS server")
		return s.httpServer.ListenAndServeTLS(s.config.API.TLSCert, s.config.API.TLSKey)
	}

	s.log.WithField("address", address).Info("Starting HTTP server")
	return s.httpServer.ListenAndServe()
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.log.Info("Shutting down API server")
	return s.httpServer.Shutdown(ctx)
}

// GetRouter returns the gin router (useful for testing)
func (s *Server) GetRouter() *gin.Engine {
	return s.router
}
