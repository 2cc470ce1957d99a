package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/jenna-jordan/Boston-CityScore-App/internal/protocol"
)

// AlertHandler receives one batch of decoded alerts. Returning an error
// leaves the batch uncommitted so it is redelivered.
type AlertHandler func(ctx context.Context, alerts []*protocol.QualityAlert) error

// AlertBatcher consumes quality alerts and hands them to a handler in batches,
// flushing when the batch is full or the flush interval elapses.
type AlertBatcher struct {
	consumer      *Consumer
	handle        AlertHandler
	batchSize     int
	flushInterval time.Duration
	logger        *slog.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewAlertBatcher creates a new batcher
func NewAlertBatcher(consumer *Consumer, handle AlertHandler, batchSize int, flushInterval time.Duration, logger *slog.Logger) *AlertBatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if batchSize <= 0 {
		batchSize = 1
	}
	return &AlertBatcher{
		consumer:      consumer,
		handle:        handle,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		logger:        logger,
		stopCh:        make(chan struct{}),
	}
}

// Start begins consuming
func (b *AlertBatcher) Start(ctx context.Context) {
	b.wg.Add(1)
	go b.run(ctx)
}

// Stop flushes the pending batch and waits for the batcher to exit
func (b *AlertBatcher) Stop() {
	close(b.stopCh)
	b.wg.Wait()
}

func (b *AlertBatcher) run(ctx context.Context) {
	defer b.wg.Done()

	fetchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	msgCh := make(chan kafka.Message)
	go func() {
		defer close(msgCh)
		for {
			msg, err := b.consumer.Consume(fetchCtx)
			if err != nil {
				if fetchCtx.Err() != nil {
					return
				}
				b.logger.Error("consumer error", "error", err)
				continue
			}
			select {
			case msgCh <- msg:
			case <-fetchCtx.Done():
				return
			}
		}
	}()

	var batch []kafka.Message
	ticker := time.NewTicker(b.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopCh:
			b.flush(context.WithoutCancel(ctx), batch)
			return

		case <-ticker.C:
			if len(batch) > 0 {
				b.flush(ctx, batch)
				batch = nil
			}

		case msg, ok := <-msgCh:
			if !ok {
				b.flush(context.WithoutCancel(ctx), batch)
				return
			}
			batch = append(batch, msg)
			if len(batch) >= b.batchSize {
				b.flush(ctx, batch)
				batch = nil
			}
		}
	}
}

func (b *AlertBatcher) flush(ctx context.Context, batch []kafka.Message) {
	if len(batch) == 0 {
		return
	}

	alerts := make([]*protocol.QualityAlert, 0, len(batch))
	for _, msg := range batch {
		alert, err := protocol.DecodeQualityAlert(msg.Value)
		if err != nil {
			// Undecodable messages are skipped and committed with the batch.
			b.logger.Warn("dropping undecodable alert",
				"partition", msg.Partition, "offset", msg.Offset, "error", err)
			continue
		}
		alerts = append(alerts, alert)
	}

	if len(alerts) > 0 {
		if err := b.handle(ctx, alerts); err != nil {
			b.logger.Error("alert handler failed, batch left uncommitted", "alerts", len(alerts), "error", err)
			return
		}
	}

	if err := b.consumer.Commit(ctx, batch...); err != nil {
		b.logger.Error("failed to commit offsets", "error", err)
		return
	}
	b.logger.Info("flushed alert batch", "alerts", len(alerts), "messages", len(batch))
}
