package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/davicafu/tasknotify/internal/config"
	"github.com/davicafu/tasknotify/internal/infra/broker/rabbitmq"
	infraEvents "github.com/davicafu/tasknotify/internal/infra/events"
	notificationApp "github.com/davicafu/tasknotify/internal/notification/application"
	notificationDomain "github.com/davicafu/tasknotify/internal/notification/domain"
	notificationHttp "github.com/davicafu/tasknotify/internal/notification/infra/inbound/http"
	notificationCache "github.com/davicafu/tasknotify/internal/notification/infra/outbound/cache"
	mongoRepo "github.com/davicafu/tasknotify/internal/notification/infra/outbound/db/mongodb"
	"github.com/davicafu/tasknotify/internal/notification/infra/outbound/db/sqlstore"
	sharedCache "github.com/davicafu/tasknotify/internal/shared/infra/platform/cache"
	sharedUtils "github.com/davicafu/tasknotify/internal/shared/infra/utils"
	"github.com/davicafu/tasknotify/pkg/logger"
	"github.com/davicafu/tasknotify/pkg/middleware"
)

const startupTimeout = 15 * time.Second

// ---------------- Main ----------------
func main() {
	cfg, err := config.LoadConfig(".env")
	if err != nil {
		// Todavía no hay logger configurado.
		zap.NewExample().Fatal("invalid configuration", zap.Error(err))
	}

	if err := logger.Init(cfg.LogLevel, cfg.Environment); err != nil {
		zap.NewExample().Fatal("invalid logger configuration", zap.Error(err))
	}
	log := logger.Logger()
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("🚀 Starting notification service",
		zap.String("environment", cfg.Environment),
		zap.String("store", cfg.StoreDriver),
	)

	// ---------------- Store ----------------
	startCtx, cancelStart := context.WithTimeout(ctx, startupTimeout)
	repo, closeStore := openStore(startCtx, cfg, log)
	defer closeStore()

	// ---------------- Cache ----------------
	cacheInstance, closeCache := openCache(startCtx, cfg, log)
	defer closeCache()

	// --------------- Servicio --------------
	service := notificationApp.NewNotificationService(repo, cacheInstance, log).WithCacheTTL(cfg.CacheTTL)
	ingestor := notificationApp.NewIngestor(repo, cacheInstance, log)

	// ---------------- Broker ---------------
	topology := rabbitmq.DefaultTopology()
	if cfg.DeadLetterEnabled {
		topology = topology.WithDeadLetter()
	}

	conn := rabbitmq.NewConnection(rabbitmq.Config{
		URL:            cfg.RabbitMQURL(),
		ConnectionName: notificationHttp.ServiceName,
	}, log)
	if err := conn.Connect(startCtx); err != nil {
		log.Fatal("❌ Could not connect to RabbitMQ", zap.Error(err))
	}
	defer conn.Disconnect()

	publisher := rabbitmq.NewPublisher(conn, topology, log)
	if err := publisher.Initialize(startCtx); err != nil {
		if errors.Is(err, rabbitmq.ErrTopologyConflict) {
			log.Fatal("❌ Existing RabbitMQ topology conflicts with this service", zap.Error(err))
		}
		log.Fatal("❌ Could not declare RabbitMQ topology", zap.Error(err))
	}
	cancelStart()

	consumerCfg := rabbitmq.DefaultConsumerConfig()
	consumerCfg.Prefetch = cfg.ConsumerPrefetch
	consumerCfg.Retry = sharedUtils.RetryPolicy{Interval: cfg.ConsumerRetryInterval, MaxAttempts: cfg.ConsumerMaxRetries}
	consumer := rabbitmq.NewConsumer(conn, topology, ingestor, consumerCfg, log)
	consumer.Start(ctx)

	// ------------ Kafka (opcional) ---------
	if cfg.KafkaEnabled() {
		reader := infraEvents.NewKafkaReader(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID)
		defer reader.Close()
		kafkaConsumer := infraEvents.NewConsumerAdapter(reader, ingestor, sharedUtils.RetryPolicy{Interval: cfg.ConsumerRetryInterval}, log)
		kafkaConsumer.Start(ctx)
	}

	// ----------- Retention Worker ----------
	if cfg.RetentionDays > 0 && cfg.RetentionInterval > 0 {
		worker := notificationApp.NewRetentionWorker(service, cfg.RetentionDays, cfg.RetentionInterval, log)
		go worker.Start(ctx)
	}

	// ---------------- HTTP ----------------
	checks := map[string]notificationHttp.ReadinessCheck{
		"rabbitmq": func(ctx context.Context) error {
			_, err := conn.Channel(ctx)
			return err
		},
		cfg.StoreDriver: service.Ping,
	}
	handler := notificationHttp.NewNotificationHandler(service, publisher, checks, log)

	if cfg.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), middleware.CORS(cfg.CORSAllowedOrigins))
	notificationHttp.RegisterNotificationRoutes(router, handler)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("🚀 Server running", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("🛑 Shutting down notification service")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP server shutdown", zap.Error(err))
	}
	if err := consumer.Stop(shutdownCtx); err != nil {
		log.Warn("Consumer did not stop in time", zap.Error(err))
	}
	log.Info("👋 Notification service stopped")
}

// openStore selecciona el almacenamiento según STORE_DRIVER.
func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (notificationDomain.NotificationRepository, func()) {
	switch cfg.StoreDriver {
	case config.StoreSQLite, config.StorePostgres:
		driver, dsn := sqlstore.DriverSQLite, cfg.SQLitePath
		if cfg.StoreDriver == config.StorePostgres {
			driver, dsn = sqlstore.DriverPostgres, cfg.DatabaseURL
		}
		db, err := sqlstore.Open(ctx, driver, dsn)
		if err != nil {
			log.Fatal("❌ Could not open SQL store", zap.String("driver", driver), zap.Error(err))
		}
		log.Info("✅ SQL store ready", zap.String("driver", driver))
		return sqlstore.NewNotificationRepoSQL(db), func() { db.Close() }

	default:
		client, err := mongo.Connect(ctx, mongoRepo.ClientOptions(cfg.MongoURI))
		if err != nil {
			log.Fatal("❌ Could not connect to MongoDB", zap.Error(err))
		}
		repo, err := mongoRepo.NewNotificationRepoMongoDB(ctx, client, cfg.MongoDB)
		if err != nil {
			log.Fatal("❌ MongoDB not available", zap.Error(err))
		}
		log.Info("✅ MongoDB ready", zap.String("database", cfg.MongoDB))
		return repo, func() { _ = client.Disconnect(context.Background()) }
	}
}

// openCache usa Redis si responde y, si no, una caché en memoria.
func openCache(ctx context.Context, cfg *config.Config, log *zap.Logger) (sharedCache.Cache, func()) {
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	redisCache := notificationCache.NewRedisCache(rdb, "tasknotify", cfg.CacheTTL)
	if err := redisCache.Ping(ctx); err != nil {
		log.Warn("⚠️ Redis no disponible, cache en memoria", zap.Error(err))
		_ = rdb.Close()
		mem := notificationCache.NewInMemoryCache(cfg.CacheTTL, 3*cfg.CacheTTL)
		return mem, mem.Stop
	}
	log.Info("✅ Redis conectado, cache habilitado")
	return redisCache, func() { _ = rdb.Close() }
}
