package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"group-chat/internal/cache"
	"group-chat/internal/config"
	"group-chat/internal/db"
	"group-chat/internal/handlers"
	"group-chat/internal/logger"
	"group-chat/internal/middleware"
	"group-chat/internal/observability"
	"group-chat/internal/rabbitmq"
	"group-chat/internal/repositories"
	"group-chat/internal/services"
	"group-chat/internal/storage"
	"group-chat/internal/telemetry"
	"group-chat/internal/ws"
)

func main() {
	if err := run(); err != nil {
		slog.Error("group-chat stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.New(cfg.LogLevel, cfg.LogJSON)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.ServiceName, cfg.Environment, cfg.OTLPEndpoint, log)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Warn("tracer shutdown failed", "error", err)
		}
	}()

	database, err := db.Connect(ctx, cfg.DBDSN, log)
	if err != nil {
		return err
	}
	defer database.Close()

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, log)
	defer publisher.Close()
	log.Info("event publisher ready", "mode", rabbitmq.PublisherMode(publisher), "noop_reason", rabbitmq.PublisherNoopReason(publisher))
	audit := telemetry.NewAuditEmitter(publisher, cfg.AuditRoutingKey, cfg.ServiceName, cfg.Environment, log)
	events := telemetry.NewEventEmitter(publisher, cfg.ServiceName, log)

	var users repositories.UserDirectory = repositories.NewUserRepo(database)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn("redis unreachable, user cache disabled", "addr", cfg.RedisAddr, "error", err)
		} else {
			users = cache.NewUserDirectory(rdb, users, cfg.UserCacheTTL, log)
			log.Info("user cache enabled", "addr", cfg.RedisAddr, "ttl", cfg.UserCacheTTL)
		}
	}

	var signer storage.Signer
	if cfg.UploadsEnabled() {
		s3Signer, err := storage.NewS3Signer(ctx, storage.S3Config{
			Region:    cfg.AWSRegion,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.AWSAccessKey,
			SecretKey: cfg.AWSSecretKey,
			Expiry:    cfg.PresignExpiry,
			Timeout:   cfg.PresignTimeout,
		})
		if err != nil {
			return err
		}
		signer = s3Signer
	} else {
		log.Info("uploads disabled: AWS_REGION or S3_BUCKET_NAME not set")
	}

	groupRepo := repositories.NewGroupRepo(database)
	messageRepo := repositories.NewMessageRepo(database)

	hub := ws.NewHub(log)
	defer hub.Close()

	membership := services.NewMembershipService(groupRepo, users, log,
		services.WithMembersRequireMembership(cfg.MembersRequireMembership),
		services.WithMembershipEvents(events),
	)
	messages := services.NewMessageService(groupRepo, messageRepo, hub, events, log)

	groupHandler := handlers.NewGroupHandler(membership, audit, log)
	messageHandler := handlers.NewMessageHandler(messages, audit, log)
	userHandler := handlers.NewUserHandler(users, log)
	uploadHandler := handlers.NewUploadHandler(signer, log)
	wsHandler := ws.NewHandler(hub, events, cfg.RelaySendBuffer, log)

	gin.SetMode(cfg.GinMode)
	router := gin.New()

	// middlewares
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.AccessLog(log))
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(observability.HTTPMetricsMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{cfg.CORSOrigin},
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	handlers.RegisterHealthRoutes(router, database)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	handlers.RegisterDebugRoutes(router, audit, hub, cfg.DebugRoutes)

	router.POST("/groups/create", groupHandler.CreateGroup)
	router.GET("/groups/public", groupHandler.ListPublicGroups)
	router.GET("/groups/user/:userId", groupHandler.ListUserGroups)
	router.POST("/groups/join", groupHandler.JoinGroup)
	router.POST("/groups/:groupId/members", groupHandler.AddMember)
	router.DELETE("/groups/:groupId/members/:userId", groupHandler.RemoveMember)
	router.GET("/groups/:groupId/members", groupHandler.ListMembers)

	router.POST("/messages", messageHandler.PostMessage)
	router.GET("/messages/:groupId", messageHandler.GetGroupMessages)

	router.GET("/users", userHandler.GetByEmail)
	router.GET("/upload/signed-url", uploadHandler.SignedURL)

	router.GET("/ws", wsHandler.Handle)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		log.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var healthServer *observability.HealthServer
	if cfg.GRPCHealthPort != "" {
		lis, err := net.Listen("tcp", ":"+cfg.GRPCHealthPort)
		if err != nil {
			return fmt.Errorf("listen grpc health: %w", err)
		}
		healthServer = observability.NewHealthServer(cfg.ServiceName, log)
		go func() {
			if err := healthServer.Serve(lis); err != nil {
				errCh <- fmt.Errorf("grpc health server: %w", err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case runErr = <-errCh:
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if healthServer != nil {
		healthServer.Stop()
	}
	hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	if runErr != nil {
		return runErr
	}
	log.Info("group-chat stopped cleanly")
	return nil
}
