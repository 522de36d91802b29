package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "backoffice/api/swagger" // swagger docs
	"backoffice/internal/app"
	"backoffice/internal/auth"
	"backoffice/internal/cache"
	"backoffice/internal/config"
	"backoffice/internal/database"
	"backoffice/internal/handler"
	"backoffice/internal/logger"
	"backoffice/internal/metrics"
	"backoffice/internal/middleware"
	"backoffice/internal/model"
	"backoffice/internal/service"
	"backoffice/internal/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// @title           Payments Back Office API
// @version         1.0
// @description     Clients, partners, fee blocks, machines, sales, tickets and approvals.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New("error", true).Error("configuration error", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel, cfg.ReleaseMode)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewConnection(cfg.DSN(), cfg.ReleaseMode)
	if err != nil {
		log.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	log.Info("connected to PostgreSQL")
	if err := database.Migrate(db, log); err != nil {
		log.Error("migration failed", "error", err)
		os.Exit(1)
	}

	rdb, err := cache.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		log.Warn("redis unavailable, using in-process permission cache", "error", err)
	}
	if rdb != nil {
		defer rdb.Close()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTL)
	hub := websocket.NewHub(tokens, log, model.RoleAdmin, model.RoleLogistics)

	services := app.NewServices(app.Dependencies{
		DB:              db,
		PermissionCache: cache.New(rdb, 5*time.Minute),
		Metrics:         m,
		Events:          hub,
		Tokens:          tokens,
		RefreshTokenTTL: cfg.RefreshTokenTTL,
	})
	if err := services.Roles.SeedDefaultRolesAndPermissions(ctx); err != nil {
		log.Error("seeding roles failed", "error", err)
		os.Exit(1)
	}

	authenticator := middleware.NewAuthenticator(tokens, services.Roles, cfg.ReleaseMode)

	handlers := []interface{ RegisterRoutes(*gin.RouterGroup) }{
		handler.NewUserHandler(services.Users, authenticator, cfg.AccessTokenTTL, cfg.RefreshTokenTTL),
		handler.NewRoleHandler(services.Roles, authenticator),
		handler.NewClientHandler(services.Clients, authenticator),
		handler.NewPartnerHandler(services.Partners, authenticator),
		handler.NewTaxBlockHandler(services.TaxBlocks, services.Assignments, services.Clients, authenticator),
		handler.NewMachineHandler(services.Machines, services.Clients, authenticator),
		handler.NewSaleHandler(services.Sales, services.Clients, authenticator),
		handler.NewTicketHandler(services.Tickets, services.Clients, authenticator),
		handler.NewApprovalHandler(services.Approvals, authenticator),
		handler.NewStatisticsHandler(services.Statistics, authenticator),
		handler.NewAuditHandler(services.Audit, authenticator),
	}

	if cfg.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), logger.RequestLogger(log), m.Middleware())

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.ExposeHeaders = []string{"Content-Disposition"}
	router.Use(cors.New(corsConfig))

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	router.GET("/health", healthCheck(db, rdb))
	router.GET("/ws", hub.ServeWs)

	api := router.Group("/api")
	for _, h := range handlers {
		h.RegisterRoutes(api)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return service.NewTransferWorker(services.Assignments, cfg.TransferWorkerInterval, log).Run(gctx)
	})
	g.Go(func() error {
		return hub.Run(gctx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

// healthCheck pings postgres and, when configured, redis
func healthCheck(db *gorm.DB, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		checks := gin.H{"database": "ok"}
		status := http.StatusOK

		if sqlDB, err := db.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
			checks["database"] = "unavailable"
			status = http.StatusServiceUnavailable
		}
		if rdb != nil {
			checks["redis"] = "ok"
			if err := rdb.Ping(ctx).Err(); err != nil {
				checks["redis"] = "unavailable"
				status = http.StatusServiceUnavailable
			}
		}

		state := "OK"
		if status != http.StatusOK {
			state = "DEGRADED"
		}
		c.JSON(status, gin.H{"status": state, "checks": checks})
	}
}
