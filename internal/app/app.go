// Package app wires configuration, storage and HTTP serving together.
package app

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/cors"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	rediscache "github.com/xenking/webstore/internal/cache/redis"
	"github.com/xenking/webstore/internal/domain/auth"
	"github.com/xenking/webstore/internal/domain/cart"
	"github.com/xenking/webstore/internal/domain/catalog"
	"github.com/xenking/webstore/internal/domain/coupon"
	"github.com/xenking/webstore/internal/domain/order"
	"github.com/xenking/webstore/internal/domain/pricing"
	"github.com/xenking/webstore/internal/domain/stock"
	"github.com/xenking/webstore/internal/handler"
	"github.com/xenking/webstore/internal/health"
	"github.com/xenking/webstore/internal/notify"
	"github.com/xenking/webstore/internal/seed"
	"github.com/xenking/webstore/internal/storage/memory"
	"github.com/xenking/webstore/internal/storage/postgres"
)

// catalogStore reads the catalog and moves stock.
type catalogStore interface {
	catalog.Repository
	stock.Store
}

// userStore resolves users and records their orders.
type userStore interface {
	auth.Repository
	order.UserHistory
}

// backend is the storage selected by configuration.
type backend struct {
	tx      order.Transactor
	catalog catalogStore
	coupons coupon.Repository
	carts   cart.Repository
	orders  order.Repository
	users   userStore
	ping    health.CheckFunc
	close   func()
}

func openBackend(ctx context.Context, lg *zap.Logger, cfg *Config) (*backend, error) {
	switch cfg.Storage {
	case StorageMemory:
		s := memory.NewStore()
		if cfg.SeedFile != "" {
			if err := seedMemory(ctx, lg, s, cfg); err != nil {
				return nil, err
			}
		}
		return &backend{
			tx:      s,
			catalog: s.Catalog(),
			coupons: s.Coupons(),
			carts:   s.Carts(),
			orders:  s.Orders(),
			users:   s.Users(),
			close:   func() {},
		}, nil
	default:
		if err := postgres.RunMigrations(cfg.DatabaseURL); err != nil {
			return nil, errors.Wrap(err, "run migrations")
		}
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, errors.Wrap(err, "create db pool")
		}
		s := postgres.NewStore(pool)
		return &backend{
			tx:      s,
			catalog: s.Catalog(),
			coupons: s.Coupons(),
			carts:   s.Carts(),
			orders:  s.Orders(),
			users:   s.Users(),
			ping:    health.PingCheck(s),
			close:   pool.Close,
		}, nil
	}
}

func seedMemory(ctx context.Context, lg *zap.Logger, s *memory.Store, cfg *Config) error {
	f, err := os.Open(cfg.SeedFile)
	if err != nil {
		return errors.Wrap(err, "open seed file")
	}
	defer func() { _ = f.Close() }()

	data, err := seed.Parse(f)
	if err != nil {
		return err
	}
	st, err := seed.Apply(ctx, seed.Target{Catalog: s.Catalog(), Coupons: s.Coupons(), Users: s.Users()}, data, []byte(cfg.APIKeyPepper))
	if err != nil {
		return errors.Wrap(err, "seed memory store")
	}
	lg.Info("Seeded memory store",
		zap.Int("products", st.Products),
		zap.Int("packages", st.Packages),
		zap.Int("coupons", st.Coupons),
		zap.Int("users", st.Users),
	)
	return nil
}

type redisPinger struct {
	rdb redis.UniversalClient
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.rdb.Ping(ctx).Err()
}

func newSink(cfg NotifyConfig) notify.Sink {
	if cfg.Sink == SinkKafka {
		return notify.NewKafkaSink(cfg.Brokers, cfg.Topic)
	}
	return notify.LogSink{}
}

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("storage", cfg.Storage),
		zap.String("notify", cfg.Notify.Sink),
	)

	be, err := openBackend(ctx, lg, cfg)
	if err != nil {
		return err
	}
	defer be.close()

	healthSvc := health.New()
	healthSvc.Add(health.Liveness, "goroutines", time.Second, health.GoroutineCountCheck(10000))
	if be.ping != nil {
		healthSvc.Add(health.Readiness, "storage", 5*time.Second, be.ping)
	}

	carts := be.carts
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = rdb.Close() }()
		carts = rediscache.NewCartCache(carts, rdb, cfg.Redis.TTL)
		healthSvc.Add(health.Readiness, "redis", 2*time.Second, health.PingCheck(redisPinger{rdb: rdb}))
	}

	dispatcher := notify.NewDispatcher(
		notify.NewBuilder(be.catalog, be.users),
		newSink(cfg.Notify),
		cfg.Notify.Timeout,
	)
	defer func() {
		if err := dispatcher.Close(); err != nil {
			lg.Error("Close notifier", zap.Error(err))
		}
	}()

	accessor := catalog.NewAccessor(be.catalog)
	engine := pricing.NewEngine(be.coupons)
	ledger := stock.NewLedger(be.catalog, be.catalog)

	orderSvc, err := order.NewService(order.Deps{
		Tx:       be.tx,
		Orders:   be.orders,
		Catalog:  accessor,
		Ledger:   ledger,
		Pricing:  engine,
		Coupons:  be.coupons,
		Carts:    carts,
		Users:    be.users,
		Notifier: dispatcher,
	}, order.Options{
		MeterProvider:  m.MeterProvider(),
		TracerProvider: m.TracerProvider(),
	})
	if err != nil {
		return errors.Wrap(err, "create order service")
	}

	h := handler.New(handler.Deps{
		Catalog: be.catalog,
		Carts:   cart.NewService(carts, accessor, engine, ledger, be.coupons),
		Orders:  orderSvc,
		Coupons: coupon.NewService(be.coupons),
		Auth:    auth.NewAuthenticator(be.users, []byte(cfg.APIKeyPepper)),
	})

	var limiter *handler.RateLimiter
	if cfg.RateLimit.Rate > 0 {
		limiter = handler.NewRateLimiter(handler.RateLimitConfig{
			Rate:  cfg.RateLimit.Rate,
			Burst: cfg.RateLimit.Burst,
		})
		go limiter.RunEvictor(ctx, time.Minute)
	}

	router := h.Router(handler.Options{
		Logger:         lg,
		RequestTimeout: cfg.RequestTimeout,
		Limiter:        limiter,
	})
	router.Get("/livez", healthSvc.LiveEndpoint)
	router.Get("/readyz", healthSvc.ReadyEndpoint)

	corsMiddleware := cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORS.Origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "api_key", "X-Role", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           86400,
	})

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: otelhttp.NewHandler(corsMiddleware(router), "webstore",
			otelhttp.WithTracerProvider(m.TracerProvider()),
			otelhttp.WithMeterProvider(m.MeterProvider()),
		),
	}

	healthCtx, stopHealth := context.WithCancel(ctx)
	defer stopHealth()
	go healthSvc.Run(healthCtx, 10*time.Second)
	healthSvc.SetReady(true)

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
