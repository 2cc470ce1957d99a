package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jenna-jordan/Boston-CityScore-App/internal/notification"
	"github.com/jenna-jordan/Boston-CityScore-App/internal/protocol"
	"github.com/jenna-jordan/Boston-CityScore-App/internal/queue"
	"github.com/jenna-jordan/Boston-CityScore-App/pkg/config"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	fmt.Println("Starting Notification Service...")

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	// Create email notifier
	notifier := notification.NewEmailNotifier(&cfg.SMTP, logger)

	// Test SMTP connection (optional, will skip if not configured)
	if err := notifier.TestConnection(); err != nil {
		fmt.Printf("Note: %v (notifications will be logged only)\n", err)
	}

	// Create consumer for quality alerts
	consumer := queue.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicAlerts, "cityscore-notification-group")
	defer consumer.Close()
	fmt.Println("Kafka consumer initialized")

	// One digest email per batch of alerts
	batcher := queue.NewAlertBatcher(consumer, func(_ context.Context, alerts []*protocol.QualityAlert) error {
		return notifier.SendAlerts(alerts)
	}, 50, 30*time.Second, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	batcher.Start(ctx)

	fmt.Println("\n✓ Notification Service is running")
	fmt.Println("✓ Press Ctrl+C to stop")

	<-ctx.Done()

	fmt.Println("\nShutting down gracefully...")
	batcher.Stop()
}
