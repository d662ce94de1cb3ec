package main

import (
	"context"
	"net"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fekuna/omnipos-backoffice/config"
	"github.com/fekuna/omnipos-backoffice/internal/inventory"
	invH "github.com/fekuna/omnipos-backoffice/internal/inventory/handler"
	invListenerPkg "github.com/fekuna/omnipos-backoffice/internal/inventory/listener"
	invRepoPkg "github.com/fekuna/omnipos-backoffice/internal/inventory/repository"
	invUCPkg "github.com/fekuna/omnipos-backoffice/internal/inventory/usecase"
	"github.com/fekuna/omnipos-backoffice/internal/order"
	orderEventsPkg "github.com/fekuna/omnipos-backoffice/internal/order/events"
	orderH "github.com/fekuna/omnipos-backoffice/internal/order/handler"
	"github.com/fekuna/omnipos-backoffice/internal/order/idempotency"
	orderRepoPkg "github.com/fekuna/omnipos-backoffice/internal/order/repository"
	orderUCPkg "github.com/fekuna/omnipos-backoffice/internal/order/usecase"
	"github.com/fekuna/omnipos-backoffice/internal/product"
	prodH "github.com/fekuna/omnipos-backoffice/internal/product/handler"
	prodRepoPkg "github.com/fekuna/omnipos-backoffice/internal/product/repository"
	prodUCPkg "github.com/fekuna/omnipos-backoffice/internal/product/usecase"
	"github.com/fekuna/omnipos-backoffice/internal/schema"
	"github.com/fekuna/omnipos-backoffice/internal/server"
	"github.com/fekuna/omnipos-backoffice/pkg/broker"
	"github.com/fekuna/omnipos-backoffice/pkg/cache"
	"github.com/fekuna/omnipos-backoffice/pkg/database"
	"github.com/fekuna/omnipos-backoffice/pkg/database/postgres"
	"github.com/fekuna/omnipos-backoffice/pkg/i18n"
	"github.com/fekuna/omnipos-backoffice/pkg/logger"
	"github.com/fekuna/omnipos-backoffice/pkg/search"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func main() {
	// 1. Load Configuration
	_ = godotenv.Load()
	cfg := config.LoadEnv()

	// 2. Initialize Logger
	appLogger := logger.NewZapLogger(&logger.ZapLoggerConfig{
		IsDevelopment:     cfg.Server.AppEnv == "dev" || cfg.Server.AppEnv == "development",
		Encoding:          cfg.Logger.Encoding,
		Level:             cfg.Logger.Level,
		DisableCaller:     cfg.Logger.DisableCaller,
		DisableStacktrace: cfg.Logger.DisableStacktrace,
	})
	defer appLogger.Sync()

	// 3. Initialize i18n
	i18n.Init()
	if cfg.I18n.LocalesDir != "" {
		files, _ := filepath.Glob(filepath.Join(cfg.I18n.LocalesDir, "active.*.json"))
		for _, f := range files {
			if err := i18n.Load(f); err != nil {
				appLogger.Warn("Failed to load locale file", zap.String("file", f), zap.Error(err))
			}
		}
	}

	// Quantities and money go over the wire as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var checks []server.Check

	// 4. Connect to Redis
	var redisClient *cache.RedisClient
	if cfg.Redis.Enabled {
		var err error
		redisClient, err = cache.NewRedisClient(&cache.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			appLogger.Fatal("Could not connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
		checks = append(checks, server.Check{Name: "redis", Ping: func(ctx context.Context) error {
			return redisClient.Client.Ping(ctx).Err()
		}})
		appLogger.Info("Connected to Redis", zap.String("addr", cfg.Redis.Addr))
	}

	// 5. Connect to Elasticsearch
	var esClient *search.Client
	if cfg.Elastic.Enabled {
		var err error
		esClient, err = search.NewClient(&search.Config{
			Addresses: cfg.Elastic.Addresses,
			Username:  cfg.Elastic.Username,
			Password:  cfg.Elastic.Password,
		})
		if err != nil {
			appLogger.Warn("Could not connect to Elasticsearch, search falls back to the database", zap.Error(err))
			esClient = nil
		} else {
			appLogger.Info("Connected to Elasticsearch", zap.Strings("addresses", cfg.Elastic.Addresses))
		}
	}

	// 6. Initialize Repositories
	var (
		prodRepo  product.Repository
		invRepo   inventory.Repository
		orderRepo order.Repository
		tx        database.Transactor
	)
	if cfg.Postgres.Enabled {
		db, err := postgres.NewPostgres(&postgres.Config{
			Host:            cfg.Postgres.Host,
			Port:            cfg.Postgres.Port,
			User:            cfg.Postgres.User,
			Password:        cfg.Postgres.Password,
			DBName:          cfg.Postgres.DBName,
			SSLMode:         cfg.Postgres.SSLMode,
			MaxOpenConns:    cfg.Postgres.MaxOpenConns,
			MaxIdleConns:    cfg.Postgres.MaxIdleConns,
			ConnMaxLifetime: time.Duration(cfg.Postgres.ConnMaxLifetime) * time.Second,
			ConnMaxIdleTime: time.Duration(cfg.Postgres.ConnMaxIdleTime) * time.Second,
		})
		if err != nil {
			appLogger.Fatal("Could not connect to database", zap.Error(err))
		}
		defer db.Close()
		appLogger.Info("Connected to PostgreSQL database", zap.String("db_name", cfg.Postgres.DBName))

		if cfg.Postgres.AutoMigrate {
			if err := schema.Migrate(ctx, db); err != nil {
				appLogger.Fatal("Could not migrate database", zap.Error(err))
			}
		}

		prodRepo = prodRepoPkg.NewPGRepository(db)
		invRepo = invRepoPkg.NewPGRepository(db)
		orderRepo = orderRepoPkg.NewPGRepository(db)
		tx = postgres.NewTransactor(db)
		checks = append(checks, server.Check{Name: "postgres", Ping: db.PingContext})
	} else {
		appLogger.Warn("PostgreSQL disabled, using in-memory storage")
		catalog := prodRepoPkg.NewMemoryRepository()
		prodRepo = catalog
		invRepo = invRepoPkg.NewMemoryRepository(catalog)
		orderRepo = orderRepoPkg.NewMemoryRepository()
	}

	// 7. Initialize Kafka
	var publisher order.EventPublisher = orderEventsPkg.Nop{}
	if cfg.Kafka.Enabled {
		producer := broker.NewProducer(&broker.Config{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.OrderEventsTopic,
		})
		defer producer.Close()
		publisher = orderEventsPkg.NewKafkaPublisher(producer)
		appLogger.Info("Kafka producer ready", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.OrderEventsTopic))
	}

	// 8. Initialize UseCases
	prodUC := prodUCPkg.NewProductUseCase(prodRepo, redisClient, esClient, cfg.Elastic.ProductIndex, appLogger)
	invUC := invUCPkg.NewInventoryUseCase(invRepo, redisClient, appLogger)

	orderDeps := orderUCPkg.Deps{
		Repo:              orderRepo,
		Resolver:          prodUCPkg.NewResolver(prodRepo),
		Ledger:            invUC,
		Tx:                tx,
		Publisher:         publisher,
		Idempotency:       idempotency.NewMemoryStore(),
		Logger:            appLogger,
		IdempotencyTTL:    cfg.Order.IdempotencyTTL,
		TransitionRetries: cfg.Order.TransitionRetries,
	}
	if redisClient != nil {
		orderDeps.Idempotency = idempotency.NewRedisStore(redisClient.Client)
	}
	if esClient != nil {
		orderDeps.Index = orderRepoPkg.NewElasticIndex(esClient, cfg.Elastic.OrderIndex)
	}
	orderUC, err := orderUCPkg.NewOrderUseCase(orderDeps)
	if err != nil {
		appLogger.Fatal("Could not build order use case", zap.Error(err))
	}

	// 9. Start Listeners
	if cfg.Kafka.Enabled {
		consumer := broker.NewConsumer(&broker.Config{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.StockEventsTopic,
			GroupID: cfg.Kafka.GroupID,
		})
		defer consumer.Close()
		go invListenerPkg.NewInventoryListener(consumer, invUC, appLogger).Start(ctx)
	}

	// 10. Initialize Handlers
	router := server.NewRouter(appLogger, []server.Route{
		{Prefix: "/products", Register: prodH.NewProductHandler(prodUC, appLogger).Register},
		{Prefix: "/inventory", Register: invH.NewInventoryHandler(invUC, appLogger).Register},
		{Prefix: "/orders", Register: orderH.NewOrderHandler(orderUC, appLogger).Register},
	}, checks...)

	// 11. Start HTTP and gRPC servers
	httpLis, err := net.Listen("tcp", listenAddr(cfg.Server.HTTPPort))
	if err != nil {
		appLogger.Fatal("failed to listen", zap.String("port", cfg.Server.HTTPPort), zap.Error(err))
	}
	grpcLis, err := net.Listen("tcp", listenAddr(cfg.Server.GRPCPort))
	if err != nil {
		appLogger.Fatal("failed to listen", zap.String("port", cfg.Server.GRPCPort), zap.Error(err))
	}

	srv := server.New(router, appLogger, cfg.Server.ShutdownTimeout)
	if err := srv.Run(ctx, httpLis, grpcLis); err != nil {
		appLogger.Error("server exited with error", zap.Error(err))
	}
}

func listenAddr(port string) string {
	if !strings.Contains(port, ":") {
		return ":" + port
	}
	return port
}
