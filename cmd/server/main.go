package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/rl1809/storefront-orders/internal/adapter/events"
	"github.com/rl1809/storefront-orders/internal/adapter/gateway"
	"github.com/rl1809/storefront-orders/internal/adapter/handler"
	"github.com/rl1809/storefront-orders/internal/adapter/metrics"
	"github.com/rl1809/storefront-orders/internal/adapter/storage"
	"github.com/rl1809/storefront-orders/internal/config"
	"github.com/rl1809/storefront-orders/internal/core/domain"
	"github.com/rl1809/storefront-orders/internal/core/service"
	"github.com/rl1809/storefront-orders/internal/logger"
	"github.com/rl1809/storefront-orders/internal/port"
)

type repository interface {
	port.CatalogReader
	port.OrderRepository
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var closers []io.Closer
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i].Close()
		}
		log.Info("connections closed")
	}()

	// Storage
	repo, err := openRepository(ctx, cfg, log)
	if err != nil {
		return err
	}
	if c, ok := repo.(io.Closer); ok {
		closers = append(closers, c)
	}

	// Idempotency claims
	var cache port.CacheRepository
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			PoolSize: 100,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		closers = append(closers, rdb)
		cache = storage.NewRedisAdapter(rdb, cfg.IdempotencyTTL)
		log.Info("connected to redis", zap.String("addr", cfg.RedisAddr))
	} else {
		cache = storage.NewMemoryCache(cfg.IdempotencyTTL)
		log.Warn("REDIS_ADDR not set, idempotency claims are process-local")
	}

	// Event publishing
	var publisher port.EventPublisher
	if cfg.KafkaBrokers != "" {
		kp, err := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return fmt.Errorf("init kafka publisher: %w", err)
		}
		publisher = kp
		log.Info("publishing events to kafka", zap.String("topic", cfg.KafkaTopic))
	} else {
		publisher = events.NewLogPublisher(log)
	}

	queue := service.NewEventQueue(cfg.EventQueueSize, log)
	workers := events.StartWorkers(cfg.EventWorkers, queue.Events(), publisher, log)

	// Services
	pricing := service.PricingPolicy{
		DeliveryFee:           cfg.DeliveryFee,
		FreeDeliveryThreshold: cfg.FreeDeliveryThreshold,
	}
	orderService := service.NewOrderService(repo, repo, cache, pricing, queue, log)

	var paymentService *service.PaymentService
	if cfg.PaymentsEnabled() {
		payu, err := gateway.NewPayU(cfg.PayUKey, cfg.PayUSalt, cfg.PayUEnv, cfg.PayUSuccessURL, cfg.PayUFailureURL)
		if err != nil {
			return fmt.Errorf("init payment gateway: %w", err)
		}
		paymentService = service.NewPaymentService(repo, payu, cache, queue, log)
		log.Info("payments enabled", zap.String("env", cfg.PayUEnv))
	} else {
		log.Warn("PAYU_KEY/PAYU_SALT not set, payment routes disabled")
	}

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// HTTP server
	mux := http.NewServeMux()
	handler.NewHTTPHandler(orderService, paymentService, m, log).Register(mux)
	mux.Handle("GET /metrics", metrics.Handler(reg))

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// gRPC server
	grpcServer := grpc.NewServer()
	handler.RegisterOrderServiceServer(grpcServer, handler.NewGRPCHandler(orderService, paymentService, log))

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr))
		return grpcServer.Serve(lis)
	})
	g.Go(func() error {
		log.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP shutdown", zap.Error(err))
		}
		log.Info("HTTP server stopped")

		grpcServer.GracefulStop()
		log.Info("gRPC server stopped")
		return nil
	})

	err = g.Wait()

	// Drain queued events before the publisher goes away
	queue.Close()
	workers.Wait()
	log.Info("event workers stopped")
	if c, ok := publisher.(io.Closer); ok {
		c.Close()
	}

	return err
}

func openRepository(ctx context.Context, cfg *config.Config, log *zap.Logger) (repository, error) {
	if cfg.StorageDriver == config.StorageMemory {
		store := storage.NewMemoryStore()
		if err := seedDemoCatalog(ctx, store); err != nil {
			return nil, err
		}
		log.Warn("using in-memory storage, data is lost on restart")
		return store, nil
	}

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}
	log.Info("connected to mysql")

	adapter := storage.NewMySQLAdapter(db)
	if cfg.MySQLAutoMigrate {
		if err := adapter.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate mysql: %w", err)
		}
		log.Info("schema ensured")
	}
	return &mysqlRepository{MySQLAdapter: adapter, db: db}, nil
}

type mysqlRepository struct {
	*storage.MySQLAdapter
	db *sql.DB
}

func (r *mysqlRepository) Close() error {
	return r.db.Close()
}

func seedDemoCatalog(ctx context.Context, store *storage.MemoryStore) error {
	demo := []domain.Product{
		{ID: "paracetamol-500", Name: "Paracetamol 500mg", Price: decimal.NewFromInt(100), Stock: 100, IsActive: true},
		{ID: "bandage-roll", Name: "Bandage Roll", Price: decimal.NewFromInt(50), Stock: 100, IsActive: true},
	}
	for _, p := range demo {
		if err := store.SaveProduct(ctx, p); err != nil {
			return fmt.Errorf("seed %s: %w", p.ID, err)
		}
	}
	return nil
}
