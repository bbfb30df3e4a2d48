// Package main запускает HTTP-сервер сервиса кошельков.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/betwallet-ledger/internal/access"
	"github.com/mmeshcher/betwallet-ledger/internal/bundle"
	"github.com/mmeshcher/betwallet-ledger/internal/config"
	"github.com/mmeshcher/betwallet-ledger/internal/deposit"
	"github.com/mmeshcher/betwallet-ledger/internal/handler"
	"github.com/mmeshcher/betwallet-ledger/internal/ledger"
	"github.com/mmeshcher/betwallet-ledger/internal/middleware"
	"github.com/mmeshcher/betwallet-ledger/internal/notify"
	"github.com/mmeshcher/betwallet-ledger/internal/paystack"
	"github.com/mmeshcher/betwallet-ledger/internal/repository"
	"github.com/mmeshcher/betwallet-ledger/internal/withdrawal"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	admins, err := access.ParseAdminSet(cfg.AdminUserIDs)
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	var repo repository.Repository
	if cfg.DatabaseURI != "" {
		pg, err := repository.NewPostgresRepository(cfg.DatabaseURI)
		if err != nil {
			sugar.Fatalw("database initialization error", "error", err.Error())
		}
		repo = pg
	} else {
		sugar.Warn("DATABASE_URI is empty, using in-memory store; data is lost on restart")
		repo = repository.NewMemoryRepository()
	}
	defer repo.Close()

	dispatcher := notify.NewDispatcher(newPublisher(cfg, logger), logger, 0)
	defer dispatcher.Close()

	var gateway deposit.Gateway
	if cfg.PaystackSecretKey != "" {
		gateway = paystack.NewClient(cfg.PaystackBaseURL, cfg.PaystackSecretKey, cfg.GatewayTimeout)
	} else {
		sugar.Warn("payment gateway secret key is empty, deposit verification is disabled")
	}

	wallets := ledger.NewService(repo, logger)
	deposits := deposit.NewWorkflow(repo, wallets, gateway, dispatcher, logger, deposit.Config{
		MinAmount:     cfg.MinDeposit,
		VerifyTimeout: cfg.GatewayTimeout,
	})
	withdrawals := withdrawal.NewWorkflow(repo, wallets, admins, dispatcher, logger)
	bundles := bundle.NewEngine(repo, wallets, admins, dispatcher, logger)

	h := handler.NewHandler(handler.Options{
		Wallets:       wallets,
		Deposits:      deposits,
		Withdrawals:   withdrawals,
		Bundles:       bundles,
		Auth:          middleware.NewAuthMiddleware(cfg.AuthSecret),
		Authorizer:    admins,
		WebhookSecret: cfg.PaystackWebhookSecret,
		Logger:        logger,
	})

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           h.SetupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Доставка уведомлений
	g.Go(func() error {
		return dispatcher.Run(ctx)
	})

	// Повторная проверка зависших пополнений
	if gateway != nil && cfg.ReverifyInterval > 0 {
		g.Go(func() error {
			return deposit.NewReverifier(deposits, cfg.ReverifyInterval).Run(ctx)
		})
	}

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting ledger server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}

// newPublisher выбирает транспорт уведомлений: Kafka, затем Redis, иначе журнал.
func newPublisher(cfg *config.Config, logger *zap.Logger) notify.Publisher {
	if brokers := cfg.Brokers(); len(brokers) > 0 {
		logger.Info("publishing events to kafka", zap.Strings("brokers", brokers), zap.String("topic", cfg.KafkaTopic))
		return notify.NewKafkaPublisher(notify.NewKafkaWriter(brokers, cfg.KafkaTopic, logger))
	}
	if cfg.RedisAddress != "" {
		logger.Info("publishing events to redis", zap.String("addr", cfg.RedisAddress))
		return notify.NewRedisPublisher(redis.NewClient(&redis.Options{Addr: cfg.RedisAddress}), "")
	}
	return notify.NewLogPublisher(logger)
}
