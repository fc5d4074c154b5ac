package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/suPer8Hu/mindease/internal/chat"
	"github.com/suPer8Hu/mindease/internal/config"
	"github.com/suPer8Hu/mindease/internal/db"
	"github.com/suPer8Hu/mindease/internal/logging"
	"github.com/suPer8Hu/mindease/internal/notify"
	"github.com/suPer8Hu/mindease/internal/store/rabbitmq"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("create logger: %v", err)
	}
	defer logger.Sync()

	gdb, err := db.Connect(cfg.DBDSN)
	if err != nil {
		logger.Fatal("connect db", zap.Error(err))
	}
	if err := db.Migrate(gdb); err != nil {
		logger.Fatal("migrate db", zap.Error(err))
	}

	deliverer := chat.NewAlertDeliverer(chat.NewRepo(gdb), notify.New(cfg.AlertWebhookURL, logger), logger)

	// retries go through the publisher's own channel
	pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
	if err != nil {
		logger.Fatal("rabbit publisher", zap.Error(err))
	}
	defer pub.Close()

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		logger.Fatal("rabbit dial", zap.Error(err))
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("rabbit channel", zap.Error(err))
	}
	defer ch.Close()

	if _, err := rabbitmq.DeclareTopology(ch, cfg.RabbitQueue); err != nil {
		logger.Fatal("queue declare", zap.Error(err))
	}

	//  strict concurrency control
	concurrency := cfg.WorkerConcurrency

	if err := ch.Qos(concurrency, 0, false); err != nil {
		logger.Fatal("qos", zap.Error(err))
	}

	msgs, err := ch.Consume(cfg.RabbitQueue, "", false, false, false, false, nil)
	if err != nil {
		logger.Fatal("consume", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("worker started", zap.String("queue", cfg.RabbitQueue), zap.Int("concurrency", concurrency))

	// worker pool
	jobs := make(chan amqp.Delivery, concurrency*2)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range jobs {
				handleDelivery(ctx, logger.With(zap.Int("worker", workerID)), deliverer, pub, cfg.AlertMaxAttempts, d)
			}
		}(i)
	}

	// dispatcher
	for {
		select {
		case <-ctx.Done():
			logger.Info("worker shutting down")
			close(jobs)
			wg.Wait()
			return

		case d, ok := <-msgs:
			if !ok {
				logger.Warn("delivery channel closed")
				time.Sleep(1 * time.Second)
				continue
			}
			jobs <- d
		}
	}
}

// handleDelivery acks on success, re-queues through the retry queue while
// attempts remain, and dead-letters otherwise. An alert held by another
// worker is re-queued without spending an attempt.
func handleDelivery(ctx context.Context, logger *zap.Logger, deliverer *chat.AlertDeliverer, pub *rabbitmq.Publisher, maxAttempts int, d amqp.Delivery) {
	var m rabbitmq.AlertMessage
	if err := json.Unmarshal(d.Body, &m); err != nil || m.AlertID == "" {
		logger.Warn("bad message", zap.Error(err))
		_ = d.Nack(false, false)
		return
	}

	start := time.Now()
	err := deliverer.Deliver(ctx, m.AlertID)
	if err == nil {
		if err := d.Ack(false); err != nil {
			logger.Error("ack failed", zap.String("alert_id", m.AlertID), zap.Error(err))
		}
		return
	}

	// someone else is sending it; look again once the lease may have expired
	if errors.Is(err, chat.ErrAlertInFlight) {
		if err := pub.PublishRetry(ctx, m, rabbitmq.RetryDelay(m.Attempt+1)); err != nil {
			logger.Error("publish retry failed", zap.String("alert_id", m.AlertID), zap.Error(err))
			_ = d.Nack(false, false)
			return
		}
		_ = d.Ack(false)
		return
	}

	attempt := m.Attempt + 1
	logger.Warn("alert delivery failed",
		zap.String("alert_id", m.AlertID),
		zap.Int("attempt", attempt),
		zap.Duration("cost", time.Since(start)),
		zap.Error(err),
	)

	if errors.Is(err, chat.ErrAlertNotFound) || attempt >= maxAttempts {
		_ = d.Nack(false, false) // -> DLQ
		return
	}

	m.Attempt = attempt
	if err := pub.PublishRetry(ctx, m, rabbitmq.RetryDelay(attempt)); err != nil {
		logger.Error("publish retry failed", zap.String("alert_id", m.AlertID), zap.Error(err))
		_ = d.Nack(false, false)
		return
	}
	_ = d.Ack(false)
}
