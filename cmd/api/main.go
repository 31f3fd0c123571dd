package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fulfillment/internal/config"
	"fulfillment/internal/handler"
	"fulfillment/internal/infra/db"
	"fulfillment/internal/infra/dedup"
	"fulfillment/internal/infra/events"
	"fulfillment/internal/infra/gateway"
	"fulfillment/internal/infra/logger"
	"fulfillment/internal/infra/memory"
	"fulfillment/internal/infra/metrics"
	infraRepo "fulfillment/internal/infra/repository"
	repo "fulfillment/internal/repository"
	"fulfillment/internal/server"
	"fulfillment/internal/usecase"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const serviceName = "fulfillment"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logger.New(serviceName, cfg.GoEnv, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	//DB（memoryは開発用）
	tx, err := newStore(cfg, log)
	if err != nil {
		return err
	}

	//決済ゲートウェイ
	var gw usecase.PaymentGateway
	if cfg.StripeSecretKey != "" {
		gw = gateway.NewStripeGateway(gateway.StripeConfig{
			SecretKey: cfg.StripeSecretKey,
			Timeout:   cfg.GatewayTimeout,
		})
	} else {
		log.Warn("STRIPE_SECRET_KEY is empty, using local payment gateway")
		gw = gateway.NewLocalGateway()
	}

	//Webhookの重複排除（任意）
	var deduper usecase.EventDeduper
	if cfg.RedisAddr != "" {
		rdb := dedup.NewClient(cfg.RedisAddr)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn("redis unreachable, dedup falls back to payment state", zap.Error(err))
		}
		deduper = dedup.NewRedisDeduper(rdb, "stripe", dedup.DefaultTTL)
	}

	//ドメインイベント（任意）
	var publisher usecase.EventPublisher
	if len(cfg.KafkaBrokers) > 0 {
		kp := events.NewKafkaPublisher(events.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic))
		defer kp.Close()
		publisher = kp
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	ledger := usecase.NewInventoryLedger()

	//Usecase生成
	checkoutUC := usecase.NewCheckoutUsecase(tx, ledger, gw, publisher, m, log, usecase.CheckoutConfig{
		Currency:       cfg.PaymentCurrency,
		GatewayTimeout: cfg.GatewayTimeout,
	})
	webhookUC := usecase.NewWebhookUsecase(tx, ledger, deduper, publisher, m, log, usecase.WebhookConfig{
		ReleaseStockOnFailure: cfg.ReleaseStockOnPaymentFailure,
	})
	productUC := usecase.NewProductUsecase(tx)

	//Handler生成
	handlers := server.Handlers{
		Product: handler.NewProductHandler(productUC),
		Cart:    handler.NewCartHandler(usecase.NewCartUsecase(tx), checkoutUC),
		Order:   handler.NewOrderHandler(usecase.NewOrderUsecase(tx), checkoutUC),
		Admin:   handler.NewAdminProductHandler(productUC, usecase.NewAuditUsecase(tx)),
	}
	if cfg.StripeWebhookSecret != "" {
		handlers.Webhook = handler.NewWebhookHandler(webhookUC, gateway.NewStripeVerifier(cfg.StripeWebhookSecret), log)
	} else {
		log.Warn("STRIPE_WEBHOOK_SECRET is empty, /payment/webhook is disabled")
	}

	e := server.New(server.Deps{
		Config:   cfg,
		Log:      log,
		Gatherer: prometheus.DefaultGatherer,
		Handlers: handlers,
	})

	go sweepPayments(ctx, checkoutUC, cfg, log)

	//Server起動
	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", zap.String("port", cfg.Port), zap.String("store", cfg.StoreDriver))
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func newStore(cfg config.Config, log *zap.Logger) (repo.TransactionManager, error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		log.Warn("using in-memory store, data is lost on restart")
		return memory.NewStore(), nil
	}

	gormDB, err := db.Connect(cfg.PostgresDSN())
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(gormDB); err != nil {
		return nil, err
	}
	return infraRepo.NewTxManagerGorm(gormDB), nil
}

// intent idが付かずに残った支払いを定期的に拾う
func sweepPayments(ctx context.Context, uc *usecase.CheckoutUsecase, cfg config.Config, log *zap.Logger) {
	if cfg.PaymentSweepInterval <= 0 {
		return
	}
	t := time.NewTicker(cfg.PaymentSweepInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := uc.SweepPendingIntents(ctx, cfg.PaymentSweepAge, 50); err != nil {
				log.Error("payment sweep failed", zap.Error(err))
			}
		}
	}
}
