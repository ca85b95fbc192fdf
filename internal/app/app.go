// Package app wires the bot's dependencies and runs it.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"shop-bot/internal/assistant"
	"shop-bot/internal/bot"
	"shop-bot/internal/chat/telegram"
	"shop-bot/internal/domain/coupon"
	"shop-bot/internal/domain/loyalty"
	"shop-bot/internal/domain/order"
	"shop-bot/internal/lock"
	"shop-bot/internal/repository"
	"shop-bot/pkg/health"
)

// Run creates all dependencies, starts the dispatcher and the health
// server, and handles graceful shutdown. It is the single wiring point for
// the application.
func Run(ctx context.Context, lg *zap.Logger, _ *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("health_addr", cfg.HealthAddr))

	// PostgreSQL pool + migrations.
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Redis for the checkout locks.
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthSvc.AddReadinessCheck("redis", 5*time.Second, func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	// Repositories.
	userRepo := repository.NewUserRepository(pool)
	productRepo := repository.NewProductRepository(pool)
	cartRepo := repository.NewCartRepository(pool)
	orderRepo := repository.NewOrderRepository(pool)
	methodRepo := repository.NewPaymentMethodRepository(pool)
	couponRepo := repository.NewCouponRepository(pool)
	statsRepo := repository.NewStatsRepository(pool)

	// Domain services.
	couponValidator := coupon.NewRepoValidator(couponRepo)
	if err := couponValidator.Warm(ctx); err != nil {
		return errors.Wrap(err, "warm coupon filter")
	}

	locker := lock.NewRedisLocker(rdb, cfg.Checkout.LockTTL)
	orderService := order.NewService(cartRepo, orderRepo, couponValidator, locker)

	transport := telegram.New(cfg.BotToken)
	notifier := bot.NewTransportNotifier(transport)

	botName, err := transport.BotName(ctx)
	if err != nil {
		return errors.Wrap(err, "resolve bot username")
	}

	loyaltyService := loyalty.NewService(userRepo, orderRepo, notifier, loyalty.Config{
		ReferrerBonus:   cfg.Loyalty.ReferrerBonus,
		RefereeBonus:    cfg.Loyalty.RefereeBonus,
		PurchaseBonus:   cfg.Loyalty.PurchaseBonus,
		DailyReward:     cfg.Loyalty.DailyReward,
		DailyCooldown:   cfg.Loyalty.DailyCooldown,
		PointsPerDollar: cfg.Loyalty.PointsPerDollar,
	})

	dispatcher := bot.New(bot.Deps{
		Transport:    transport,
		Users:        userRepo,
		Products:     productRepo,
		Carts:        cartRepo,
		Methods:      methodRepo,
		Coupons:      couponRepo,
		Orders:       orderService,
		Loyalty:      loyaltyService,
		Stats:        statsRepo,
		Drafter:      assistant.New(cfg.AssistantKey),
		CouponFilter: couponValidator,
		Owners:       cfg.AdminIDs(),
		BotName:      botName,
		AdminHandle:  cfg.AdminHandle,
		DZDRate:      decimal.NewFromFloat(cfg.DZDRate),
	})

	healthServer := &http.Server{
		Addr:              cfg.HealthAddr,
		ReadHeaderTimeout: time.Second,
		Handler:           healthMux(healthSvc),
	}

	healthSvc.SetReady(true)
	lg.Info("Bot started")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return dispatcher.Run(ctx)
	})
	g.Go(func() error {
		if err := healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "health server")
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		healthSvc.SetReady(false)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := healthServer.Shutdown(shutdownCtx); err != nil {
			lg.Error("Health server shutdown error", zap.Error(err))
		}
		return ctx.Err()
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func healthMux(h *health.Health) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/livez", h.LiveEndpoint)
	mux.HandleFunc("/readyz", h.ReadyEndpoint)
	return mux
}
