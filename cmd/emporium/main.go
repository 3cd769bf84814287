package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/KalanaDissanayke/Emporium-API/internal/cart"
	"github.com/KalanaDissanayke/Emporium-API/internal/config"
	"github.com/KalanaDissanayke/Emporium-API/internal/db"
	"github.com/KalanaDissanayke/Emporium-API/internal/events"
	"github.com/KalanaDissanayke/Emporium-API/internal/fulfillment"
	httpapi "github.com/KalanaDissanayke/Emporium-API/internal/http"
	"github.com/KalanaDissanayke/Emporium-API/internal/order"
	"github.com/KalanaDissanayke/Emporium-API/internal/stock"
)

func main() {
	cfg := config.Load()
	logger := log.New(os.Stdout, "[emporium-api] ", log.LstdFlags|log.Lshortfile)

	if err := db.RunMigrations(cfg.DatabaseDSN, logger); err != nil {
		logger.Fatalf("run migrations: %v", err)
	}

	database, err := db.Open(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatalf("open db: %v", err)
	}
	defer database.Close()

	pool, err := db.ConnectPool(context.Background(), cfg.DatabaseDSN)
	if err != nil {
		logger.Fatalf("connect pgx pool: %v", err)
	}
	defer pool.Close()

	ledger := stock.NewPostgresLedger(pool)
	cartRepo := cart.NewRepository(database)
	orderRepo := order.NewRepository(database)

	var (
		cartEvents  cart.EventPublisher        = events.NopPublisher{}
		orderEvents fulfillment.EventPublisher = events.NopPublisher{}
		closeEvents                            = func() error { return nil }
	)
	if cfg.RabbitURL != "" {
		rabbitConn := events.MustDial(cfg.RabbitURL)
		defer rabbitConn.Close()

		publisher, err := events.NewPublisher(rabbitConn, events.NewSequenceRepository(database))
		if err != nil {
			logger.Fatalf("create event publisher: %v", err)
		}
		cartEvents, orderEvents = publisher, publisher
		closeEvents = publisher.Close
	}

	engine := cart.NewEngine(cartRepo, ledger, cartEvents, logger)
	verifier := fulfillment.NewVerifier(cfg.MerchantID, cfg.MerchantSecret)
	processor := fulfillment.NewProcessor(verifier, cartRepo, orderRepo, orderEvents, logger)

	router := httpapi.NewRouter(
		httpapi.NewCartHandler(engine),
		httpapi.NewOrderHandler(orderRepo),
		httpapi.NewPaymentHandler(processor, logger),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Printf("emporium-api listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Printf("shutdown signal received")
	case err := <-errCh:
		logger.Fatalf("server error: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Printf("graceful shutdown error: %v", err)
	}
	if err := closeEvents(); err != nil {
		logger.Printf("publisher close error: %v", err)
	}
}
