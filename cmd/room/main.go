package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v3"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pairnet/internal/core/domain"
	"pairnet/internal/core/ports"
	"pairnet/internal/core/services"
	httphandlers "pairnet/internal/handlers/http"
	eventbus "pairnet/internal/infrastructure/distributed"
	"pairnet/internal/infrastructure/middleware"
	"pairnet/internal/infrastructure/monitoring"
	"pairnet/internal/infrastructure/reasoning"
	repositories "pairnet/internal/infrastructure/repositories"
	"pairnet/internal/infrastructure/reliability"
	signalserver "pairnet/internal/infrastructure/signal"
	webrtcinfra "pairnet/internal/infrastructure/webrtc"
	"pairnet/pkg/circuitbreaker"
	"pairnet/pkg/config"
	"pairnet/pkg/distributed"
	"pairnet/pkg/logger"
	"pairnet/pkg/retry"
	"pairnet/pkg/tracing"

	"github.com/google/uuid"
)

func main() {
	startTime := time.Now()

	// Try multiple config paths
	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"/etc/pairnet/config.yaml",
		"config.yaml",
	}

	var cfg *config.Config
	var err error

	for _, path := range configPaths {
		cfg, err = config.Load(path)
		if err == nil {
			break
		}
	}

	if err != nil {
		// Fallback to defaults if config cannot be loaded
		cfg = config.DefaultConfig()
	}

	// Initialize logger
	zapLogger := logger.New(cfg.Logging.Level)
	defer zapLogger.Sync()

	log := zapLogger.Sugar()

	roomID := domain.RoomID(cfg.Room.ID)
	eventID := domain.EventID(cfg.Room.EventID)

	// Initialize tracing
	tracerProvider, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "pairnet-room",
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: "production",
		SampleRate:  1.0,
	})
	if err != nil {
		log.Fatalw("Failed to initialize tracing", "error", err)
	}

	// Initialize repository factory
	repoFactory, err := repositories.NewRepositoryFactory(cfg, log)
	if err != nil {
		log.Fatalw("Failed to create repository factory", "error", err)
	}
	defer repoFactory.Close()

	matchRepo := repoFactory.CreateMatchRepository()
	connectionRepo := repoFactory.CreateConnectionRepository()
	profileStore := repoFactory.CreateProfileStore()
	eventRoster := repoFactory.CreateEventRoster()

	// Exactly one instance owns a room occurrence. The lock is held for
	// the process lifetime and renewed in the background.
	instanceID := uuid.NewString()
	if redisClient := repoFactory.RedisClient(); redisClient != nil {
		roomLock := distributed.NewLock(redisClient, "pairnet:room:"+string(roomID)+":lock", 30*time.Second)
		if err := roomLock.Acquire(context.Background()); err != nil {
			log.Fatalw("Failed to acquire room lock", "room_id", roomID, "error", err)
		}
		defer roomLock.Release(context.Background())
	}

	// Observers: Prometheus metrics, stats snapshots, and (when Redis is
	// available) lifecycle events for the rest of the event platform.
	collector := monitoring.NewPrometheusCollector()
	stats := services.NewStatsObserver(roomID)
	observers := []services.RoomObserver{collector, stats}
	if redisClient := repoFactory.RedisClient(); redisClient != nil {
		bus := eventbus.NewEventBus(redisClient, instanceID, eventID, log)
		defer bus.Close()
		observers = append(observers, bus)
	}
	observer := services.TeeObservers(observers...)

	// Core services
	authService := services.NewAuthService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	wsServer := signalserver.NewWebSocketServer(authService, log)
	wsServer.SetPingInterval(cfg.Signal.PingInterval)
	wsServer.SetPongTimeout(cfg.Signal.PongTimeout)

	// Compatibility scorer: remote reasoning backend with the deterministic
	// local scorer as fallback; local-only when no backend is configured.
	var scorer ports.CompatibilityScorer = services.NewLocalScorer()
	if cfg.Scoring.ReasoningURL != "" {
		client := reasoning.NewClient(
			cfg.Scoring.ReasoningURL,
			cfg.Scoring.ReasoningAPIKey,
			cfg.Scoring.ReasoningTimeout,
			log,
		)
		scorer = services.NewFallbackScorer(client, scorer, observer.ScorerFallback, log)
	}

	pool := services.NewParticipantPool()
	selector := services.NewMatchSelector(pool, scorer, func() { observer.ClaimConflict(roomID) }, log)
	policy := services.NewSingleSidedExtensionPolicy()

	// Persistence writes go through retry plus a circuit breaker when the
	// backend is remote.
	var recorder ports.OutcomeRecorder = services.NewOutcomeRecorder(matchRepo, connectionRepo, log)
	if repoFactory.RedisClient() != nil {
		recorder = reliability.NewRecorderWrapper(
			recorder,
			retry.DefaultConfig(),
			circuitbreaker.DefaultConfig(),
			log,
		)
	}

	// WebRTC configuration (including STUN/TURN from config)
	var iceServers []webrtc.ICEServer
	if len(cfg.WebRTC.ICEServers) > 0 {
		for _, s := range cfg.WebRTC.ICEServers {
			iceServers = append(iceServers, webrtc.ICEServer{
				URLs:       s.URLs,
				Username:   s.Username,
				Credential: s.Credential,
			})
		}
	} else {
		// Fallback STUN server if not configured
		iceServers = []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		}
	}

	webrtcConfig := webrtcinfra.Config{ICEServers: iceServers}
	webrtcConfig.PortRange.Min = cfg.WebRTC.PortRange.Min
	webrtcConfig.PortRange.Max = cfg.WebRTC.PortRange.Max
	mediaFactory := webrtcinfra.NewFactory(webrtcConfig, wsServer, log)

	sessionConfig := services.SessionConfig{
		Duration:       cfg.Session.Duration,
		ExtendBy:       cfg.Session.ExtendBy,
		Tick:           cfg.Session.Tick,
		RequeueDelay:   cfg.Session.RequeueDelay,
		SearchInterval: cfg.Session.SearchInterval,
	}

	controller := services.NewSessionController(
		roomID,
		eventID,
		pool,
		selector,
		recorder,
		policy,
		mediaFactory,
		wsServer,
		services.NewClock(),
		observer,
		sessionConfig,
		log,
	)
	wsServer.SetController(controller)

	// Roster sync against the surrounding application
	rosterService := services.NewRosterService(
		roomID,
		eventID,
		eventRoster,
		profileStore,
		controller,
		cfg.Roster.PollInterval,
		log,
	)
	rosterService.Start()
	defer rosterService.Stop()

	// Health checks
	healthChecker := monitoring.NewHealthChecker()
	healthChecker.AddMatchRepositoryCheck(matchRepo, eventID, 2*time.Second)
	if redisClient := repoFactory.RedisClient(); redisClient != nil {
		healthChecker.AddRedisCheck(redisClient, 2*time.Second)
	}

	// HTTP handlers
	roomHandler := httphandlers.NewRoomHandler(
		roomID, eventID, controller, pool, profileStore, matchRepo, connectionRepo, stats, log)
	adminHandler := httphandlers.NewAdminHandler(eventID, authService, repoFactory.MemoryRoster())

	// Configure Gin
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.ErrorHandlerMiddleware(log))
	router.Use(middleware.NewHTTPRateLimitMiddleware(cfg))
	if cfg.Tracing.Enabled {
		router.Use(middleware.TracingMiddleware())
	}

	// Admin routes (token minting, roster seeding)
	adminHandler.SetupRoutes(router)

	// Participant routes with authentication
	api := router.Group("/api/v1")
	api.Use(middleware.AuthMiddleware(authService))
	api.Use(middleware.EventAccessMiddleware())
	roomHandler.SetupRoutes(api)

	// WebSocket push channel
	router.GET("/ws", gin.WrapF(wsServer.HandleWebSocket))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		status := healthChecker.CheckAll(c.Request.Context())
		code := http.StatusOK
		if !status.Healthy {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"healthy":   status.Healthy,
			"checks":    status.Checks,
			"timestamp": status.Timestamp,
			"uptime":    time.Since(startTime).String(),
		})
	})

	// Readiness endpoint
	router.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := repoFactory.HealthCheck(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":       "not_ready",
				"timestamp":    time.Now(),
				"dependencies": "unhealthy",
				"error":        err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":       "ready",
			"timestamp":    time.Now(),
			"dependencies": "ok",
		})
	})

	// Prometheus metrics endpoint
	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
		log.Info("Prometheus metrics enabled")
	}

	// Create HTTP server with timeouts
	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		log.Infow("Starting room server",
			"address", cfg.Server.Address,
			"room_id", roomID,
			"event_id", eventID,
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Wait for shutdown signals or server error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Fatalw("Server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("Received shutdown signal", "signal", sig)
	}

	log.Info("Shutting down room server...")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	// Shutdown HTTP server gracefully
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error during server shutdown", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			log.Errorw("Error force closing server", "error", closeErr)
		}
	}

	// End active sessions and flush their records
	if err := controller.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error shutting down session controller", "error", err)
	}

	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error shutting down tracer", "error", err)
	}

	log.Info("Room server stopped")
}
