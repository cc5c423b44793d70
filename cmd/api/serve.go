package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/K-mel/servicemasterfr/internal/config"
	"github.com/K-mel/servicemasterfr/internal/database"
	"github.com/K-mel/servicemasterfr/internal/kafka"
	"github.com/K-mel/servicemasterfr/internal/orders/adapters"
	httpadapter "github.com/K-mel/servicemasterfr/internal/orders/adapters/http"
	"github.com/K-mel/servicemasterfr/internal/orders/adapters/payments"
	"github.com/K-mel/servicemasterfr/internal/orders/adapters/payments/banktransfer"
	"github.com/K-mel/servicemasterfr/internal/orders/adapters/payments/card"
	"github.com/K-mel/servicemasterfr/internal/orders/adapters/payments/wallet"
	"github.com/K-mel/servicemasterfr/internal/orders/app"
	"github.com/K-mel/servicemasterfr/internal/orders/app/commands"
	"github.com/K-mel/servicemasterfr/internal/orders/domain"
	ordersmetrics "github.com/K-mel/servicemasterfr/internal/orders/metrics"
	"github.com/K-mel/servicemasterfr/internal/orders/ports"
	"github.com/K-mel/servicemasterfr/internal/orders/workers"
	"github.com/K-mel/servicemasterfr/internal/telemetry"
)

const meterName = "github.com/K-mel/servicemasterfr"

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and background workers",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := telemetry.NewLogger(cfg.Telemetry.Level())
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tel, err := telemetry.Initialize(ctx, telemetry.Config{
		ServiceName:    cfg.Service.Name,
		ServiceVersion: cfg.Service.Version,
		Environment:    cfg.Service.Environment,
		OTLPEndpoint:   cfg.Telemetry.OTelEndpoint,
		Insecure:       cfg.Service.Environment != "production",
		EnableTracing:  cfg.Telemetry.EnableTracing,
		EnableMetrics:  cfg.Telemetry.EnableMetrics,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Error("telemetry shutdown failed", "error", err)
		}
	}()

	meter := tel.Meter(meterName)
	dbMetrics, err := database.NewMetrics(meter)
	if err != nil {
		return fmt.Errorf("database metrics: %w", err)
	}
	kafkaMetrics, err := kafka.NewMetrics(meter)
	if err != nil {
		return fmt.Errorf("kafka metrics: %w", err)
	}
	orderMetrics, err := ordersmetrics.NewMetrics(meter)
	if err != nil {
		return fmt.Errorf("order metrics: %w", err)
	}
	httpMetrics, err := httpadapter.NewMetrics(meter)
	if err != nil {
		return fmt.Errorf("http metrics: %w", err)
	}
	httpadapter.RegisterWebhookMetrics()

	store, err := openStorage(ctx, cfg, logger, dbMetrics)
	if err != nil {
		return err
	}

	events, notifier, closeBus, err := openEventBus(cfg, logger, kafkaMetrics)
	if err != nil {
		store.close()
		return err
	}

	service := app.NewService(app.Dependencies{
		Orders:       store.orders,
		Entitlements: store.entitlements,
		Catalog:      store.catalog,
		Users:        store.users,
		Payments:     newPaymentRegistry(cfg),
		Transactor:   store.transactor,
		Events:       events,
		Notifier:     notifier,
		Idempotency:  store.idempotency,
	}, app.Config{
		Currency:        cfg.Payments.Currency,
		ProviderTimeout: cfg.Payments.ProviderTimeout,
		Retry: commands.RetryConfig{
			Attempts: cfg.Workers.EntitlementRetryAttempts,
			Delay:    cfg.Workers.EntitlementRetryDelay,
		},
	}, logger, orderMetrics)

	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()

	var running sync.WaitGroup
	expirer := workers.NewOrderExpirer(logger, service, cfg.Workers.OrderPendingTTL, cfg.Workers.OrderSweepInterval)
	running.Add(1)
	go func() {
		defer running.Done()
		expirer.Start(workerCtx)
	}()

	router := httpadapter.NewRouter(httpadapter.NewHandler(service, logger), httpadapter.RouterConfig{
		Logger:         logger,
		Metrics:        httpMetrics,
		Ready:          store.ready,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server starting",
			"port", cfg.HTTP.Port,
			"storage", cfg.Database.Driver,
			"version", Version,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	var listenErr error
	select {
	case <-ctx.Done():
	case listenErr = <-serverErr:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownGrace)
	defer cancel()

	err = shutdown{
		server:      srv,
		stopWorkers: stopWorkers,
		workers:     &running,
		release:     []func(){store.close, closeBus},
		logger:      logger,
	}.run(shutdownCtx)
	if listenErr != nil {
		return errors.Join(fmt.Errorf("http server: %w", listenErr), err)
	}
	if err != nil {
		return err
	}
	logger.Info("http server stopped")
	return nil
}

func openEventBus(cfg *config.Config, logger *slog.Logger, metrics *kafka.Metrics) (ports.EventBus, ports.Notifier, func(), error) {
	kafkaCfg := kafka.Config{
		Brokers:     kafka.ParseBrokers(cfg.Kafka.Brokers),
		TopicPrefix: cfg.Kafka.TopicPrefix,
		Version:     cfg.Kafka.Version,
		ClientID:    cfg.Kafka.ClientID,
	}
	if !kafkaCfg.Enabled() {
		logger.Info("kafka brokers not configured, events are logged only")
		return adapters.NewObservableEventBus(kafka.NewNoopEventBus(logger), metrics), kafka.NewNoopNotifier(logger), func() {}, nil
	}

	producer, err := kafka.NewProducer(kafkaCfg, logger, metrics)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create kafka producer: %w", err)
	}
	closeFn := func() {
		_ = producer.Close()
	}
	return adapters.NewObservableEventBus(kafka.NewEventBus(producer, kafkaCfg), metrics), kafka.NewNotifier(producer, kafkaCfg), closeFn, nil
}

func newPaymentRegistry(cfg *config.Config) *payments.Registry {
	frontend := strings.TrimRight(cfg.Service.FrontendURL, "/")

	cardClient := card.New(card.Config{
		BaseURL:       cfg.Payments.Card.APIURL,
		SecretKey:     cfg.Payments.Card.SecretKey,
		WebhookSecret: cfg.Payments.Card.WebhookSecret,
		SuccessURL:    frontend + "/checkout/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:     frontend + "/checkout/cancel",
		Timeout:       cfg.Payments.ProviderTimeout,
	})
	walletClient := wallet.New(wallet.Config{
		BaseURL:       cfg.Payments.Wallet.APIURL,
		ClientID:      cfg.Payments.Wallet.ClientID,
		ClientSecret:  cfg.Payments.Wallet.ClientSecret,
		WebhookSecret: cfg.Payments.Wallet.WebhookSecret,
		ReturnURL:     frontend + "/checkout/wallet/return",
		CancelURL:     frontend + "/checkout/cancel",
		Timeout:       cfg.Payments.ProviderTimeout,
	})
	bank := banktransfer.New(domain.BankDetails{
		AccountName: cfg.Payments.Bank.AccountName,
		IBAN:        cfg.Payments.Bank.IBAN,
		BIC:         cfg.Payments.Bank.BIC,
		BankName:    cfg.Payments.Bank.BankName,
	})

	return payments.NewRegistry(cardClient, walletClient, bank).
		Alias("stripe", domain.MethodCard).
		Alias("paypal", domain.MethodWallet)
}
