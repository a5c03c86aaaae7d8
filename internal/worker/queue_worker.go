package worker

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// HandlerFunc processes one delivery body. A non-nil error dead-letters the
// delivery (nack without requeue).
type HandlerFunc func(ctx context.Context, body []byte) error

// QueueWorker consumes a durable queue with manual acks.
type QueueWorker struct {
	conn      *amqp.Connection
	queueName string
	handler   HandlerFunc
	logger    *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewQueueWorker(conn *amqp.Connection, queueName string, handler HandlerFunc, logger *zap.Logger) *QueueWorker {
	return &QueueWorker{
		conn:      conn,
		queueName: queueName,
		handler:   handler,
		logger:    logger.With(zap.String("queue", queueName)),
	}
}

func (w *QueueWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	ch, err := w.conn.Channel()
	if err != nil {
		return fmt.Errorf("open worker channel failed: %w", err)
	}
	if _, err := ch.QueueDeclare(w.queueName, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return fmt.Errorf("declare worker queue failed: %w", err)
	}
	if err := ch.Qos(4, 0, false); err != nil {
		_ = ch.Close()
		return fmt.Errorf("set worker qos failed: %w", err)
	}
	deliveries, err := ch.Consume(w.queueName, "", false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()
		w.logger.Info("queue worker started")
		w.run(workerCtx, deliveries)
		w.logger.Info("queue worker stopped")
	}()
	return nil
}

func (w *QueueWorker) run(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			w.handle(ctx, d)
		}
	}
}

func (w *QueueWorker) handle(ctx context.Context, d amqp.Delivery) {
	if err := w.handler(ctx, d.Body); err != nil {
		w.logger.Warn("queue delivery failed", zap.Uint64("delivery_tag", d.DeliveryTag), zap.Error(err))
		if nackErr := d.Nack(false, false); nackErr != nil {
			w.logger.Error("nack delivery failed", zap.Error(nackErr))
		}
		return
	}
	if err := d.Ack(false); err != nil {
		w.logger.Error("ack delivery failed", zap.Error(err))
	}
}

func (w *QueueWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
