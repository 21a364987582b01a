package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/smarttransit/pricing-engine/internal/config"
	"github.com/smarttransit/pricing-engine/internal/database"
	"github.com/smarttransit/pricing-engine/internal/handlers"
	"github.com/smarttransit/pricing-engine/internal/services"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	// Set log level
	level, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	// Set Gin mode
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize database
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	logger.Info("Database connection established")

	// Initialize preference cache. An empty address runs the engine
	// without Redis; preferences are then inferred on every request.
	var cache *redis.Client
	if cfg.Redis.Addr != "" {
		cache = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := cache.Ping(context.Background()).Err(); err != nil {
			logger.WithError(err).Warn("Redis unreachable, preference caching disabled")
			cache = nil
		} else {
			logger.Info("Preference cache connected")
		}
	}

	// Initialize repositories
	tripRepo := database.NewPricingTripRepository(db)

	// Initialize services
	relevanceModel := services.NewRelevanceModel()
	occupancyRanker := services.NewOccupancyRanker()
	preferenceService := services.NewPreferenceService(tripRepo, relevanceModel, cache, cfg.Redis.PreferenceTTL, logger)
	rankingService := services.NewSearchRankingService(tripRepo, relevanceModel, occupancyRanker, logger)
	schedulerService := services.NewPricingSchedulerService(tripRepo, services.SchedulerSettings{
		UpdateInterval:         cfg.Scheduler.UpdateInterval,
		InitialDelay:           cfg.Scheduler.InitialDelay,
		HorizonDays:            cfg.Scheduler.HorizonDays,
		UpdateThresholdPercent: cfg.Scheduler.UpdateThresholdPercent,
	}, logger)

	if cfg.Scheduler.Enabled {
		if err := schedulerService.Start(); err != nil {
			logger.WithError(err).Fatal("Failed to start pricing scheduler")
		}
	} else {
		logger.Info("Pricing scheduler disabled, batches run on manual trigger only")
	}

	// Initialize handlers
	pricingHandler := handlers.NewPricingHandler(schedulerService, logger)
	searchHandler := handlers.NewSearchHandler(rankingService, preferenceService, logger)

	// Setup router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))

	// CORS middleware
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Health check endpoint
	router.GET("/health", healthCheckHandler(db))

	// Prometheus metrics endpoint
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API routes
	v1 := router.Group("/api/v1")
	{
		search := v1.Group("/search")
		{
			search.POST("/rank", searchHandler.RankTrips)
		}

		admin := v1.Group("/admin")
		{
			pricing := admin.Group("/pricing")
			{
				pricing.POST("/run", pricingHandler.RunBatch)
				pricing.GET("/status", pricingHandler.Status)
				pricing.GET("/health", pricingHandler.Health)
				pricing.POST("/preview", pricingHandler.Preview)
				pricing.POST("/explain", pricingHandler.Explain)
				pricing.PUT("/config", pricingHandler.UpdateConfig)
			}
			admin.POST("/trips/:id/revert-price", pricingHandler.RevertPrice)
		}
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.WithFields(logrus.Fields{
			"port":        cfg.Server.Port,
			"environment": cfg.Server.Environment,
		}).Info("Starting pricing engine server")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Stop the pricing scheduler
	schedulerService.Stop()

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Fatal("Server forced to shutdown")
	}

	logger.Info("Server exited")
}

// requestLogger logs each request with latency and status
func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		entry := logger.WithFields(logrus.Fields{
			"status":     status,
			"method":     c.Request.Method,
			"path":       path,
			"query":      query,
			"ip":         c.ClientIP(),
			"latency_ms": latency.Milliseconds(),
			"user_agent": c.Request.UserAgent(),
		})

		switch {
		case status >= 500:
			entry.Error("Server error")
		case status >= 400:
			entry.Warn("Client error")
		default:
			entry.Info("Request processed")
		}
	}
}

// healthCheckHandler returns the health status of the service
func healthCheckHandler(db database.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"database": "disconnected",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"database":  "connected",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}
}
