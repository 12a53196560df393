package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ariefcatur/go-shop-orders/internal/catalogsync"
	"github.com/ariefcatur/go-shop-orders/internal/config"
	kafkax "github.com/ariefcatur/go-shop-orders/internal/kafka"
	"github.com/ariefcatur/go-shop-orders/internal/logx"
	"github.com/ariefcatur/go-shop-orders/internal/orders"
	"github.com/ariefcatur/go-shop-orders/internal/redisx"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	service := cfg.ServiceName + "-catalog-sync"
	logx.Init(os.Stdout, cfg.LogLevel, service)

	if cfg.RedisAddr == "" || len(cfg.KafkaBrokers) == 0 {
		slog.Error("catalog-sync needs REDIS_ADDR and KAFKA_BROKERS")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Service
	svc := &catalogsync.Service{
		Cache:             redisx.NewCache(rdb),
		LowStockThreshold: cfg.LowStockThreshold,
		ServiceName:       service,
	}

	// Consumer
	topics := []string{orders.TopicOrderPlaced, orders.TopicProductChanged}
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.CatalogGroup, topics, cfg.CatalogWorkers)

	done := make(chan error, 1)
	go func() {
		slog.Info("catalog-sync consumer started", "group", cfg.CatalogGroup, "topics", topics, "workers", cfg.CatalogWorkers)
		done <- cons.Start(ctx, svc.HandleMessage)
	}()

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
		slog.Info("shutting down consumer")
		cancel()
		if err := <-done; err != nil {
			slog.Error("consumer exit", "error", err)
		}
	case err := <-done:
		if err != nil {
			// keluar non-zero supaya di-restart; offset yang gagal belum di-commit
			slog.Error("consumer exit", "error", err)
			os.Exit(1)
		}
	}
}
