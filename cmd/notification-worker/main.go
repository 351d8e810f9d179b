package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"ms-distribution/internal/config"
	"ms-distribution/internal/kafka"
	"ms-distribution/internal/logger"
	"ms-distribution/internal/metrics"
	"ms-distribution/internal/notify"

	"github.com/go-chi/chi/v5"
)

func main() {
	cfg := config.Load()
	log := logger.NewLogger("notification-worker", cfg.LogDir)
	defer log.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sender := notify.NewSenderFromConfig(cfg.SMS, log)
	m := metrics.New()
	worker := notify.NewWorker(sender, log, m)

	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Handle("/metrics", m.Handler())
	server := &http.Server{Addr: cfg.Worker.MetricsAddr, Handler: r, ReadTimeout: 5 * time.Second}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP", fmt.Sprintf("Metrics server error: %v", err))
		}
	}()

	topic := cfg.Kafka.Topics.RegistrationConfirmed
	if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, []string{topic}, log); err != nil {
		log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
	}
	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, topic, cfg.Kafka.GroupID, log)
	defer consumer.Close()

	log.Info("APP", fmt.Sprintf("🚀 Notification worker consuming %s", topic))
	if err := consumer.Run(ctx, worker.HandleMessage); err != nil {
		log.Error("KAFKA", fmt.Sprintf("Consumer stopped: %v", err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
	log.Info("APP", "✅ Notification worker shutdown complete")
}
