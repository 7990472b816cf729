// Package app wires the checkout core into an HTTP server.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/oralcare-shop/internal/domain/membership"
	"github.com/xenking/oralcare-shop/internal/domain/order"
	"github.com/xenking/oralcare-shop/internal/domain/payment"
	"github.com/xenking/oralcare-shop/internal/event"
	"github.com/xenking/oralcare-shop/internal/handler"
	"github.com/xenking/oralcare-shop/internal/psp/toss"
	"github.com/xenking/oralcare-shop/internal/storage/postgres"
	"github.com/xenking/oralcare-shop/pkg/health"
	"github.com/xenking/oralcare-shop/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server and the event audit
// consumer, and handles graceful shutdown. It is the single wiring point for
// the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}
	db := postgres.New(pool)

	bus, err := event.New(cfg.Events, lg.Named("events"))
	if err != nil {
		return errors.Wrap(err, "create event bus")
	}
	defer func() {
		if err := bus.Close(); err != nil {
			lg.Warn("Close event bus", zap.Error(err))
		}
	}()

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck("postgres", pool))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.AddLivenessCheck("gc", time.Second, health.GCMaxPauseCheck(time.Second))
	healthSvc.Start(ctx, 10*time.Second)

	// Domain services.
	orderService, err := order.NewService(
		db.OrderTransactor(),
		postgres.NewProductRepository(pool),
		postgres.NewCouponStore(pool),
		postgres.NewPointStore(pool),
		order.WithTracerProvider(m.TracerProvider()),
		order.WithMeterProvider(m.MeterProvider()),
		order.WithPublisher(bus),
	)
	if err != nil {
		return errors.Wrap(err, "create order service")
	}
	paymentService, err := payment.NewService(
		db.PaymentTransactor(),
		toss.New(cfg.PSP, m.TracerProvider(), m.MeterProvider()),
		payment.WithTracerProvider(m.TracerProvider()),
		payment.WithMeterProvider(m.MeterProvider()),
		payment.WithPublisher(bus),
	)
	if err != nil {
		return errors.Wrap(err, "create payment service")
	}
	membershipService := membership.NewService(postgres.NewMembershipRepository(pool), cfg.MembershipValidity)

	// HTTP handlers.
	h := handler.NewHandler(
		orderService,
		paymentService,
		membershipService,
		handler.NewAuthenticator(postgres.NewTokenRepository(pool), []byte(cfg.TokenPepper)),
	)

	mux := http.NewServeMux()
	healthSvc.Register(mux)
	h.Register(mux)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		// PSP confirmation runs inside the request.
		WriteTimeout:   cfg.PSP.Timeout + 10*time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
		Addr:           cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(lg),
			httpmiddleware.Instrument("shop-api", m),
			httpmiddleware.LogRequests(),
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", "X-Request-ID"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:      cfg.RateLimit.Max,
				WriteMax: cfg.RateLimit.WriteMax,
				Window:   cfg.RateLimit.Window,
			}),
			httpmiddleware.Labeler(),
		),
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := bus.Consume(gCtx, lg.Named("audit"), event.AuditLog(lg.Named("audit"))); err != nil {
			return errors.Wrap(err, "consume events")
		}
		return nil
	})
	g.Go(func() error {
		// Graceful shutdown: wait for cancellation, drain, then stop.
		<-gCtx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		return nil
	})
	g.Go(func() error {
		healthSvc.SetReady(true)
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})
	return g.Wait()
}
