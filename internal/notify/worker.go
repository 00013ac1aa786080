package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"docuvault/internal/repository"
	"docuvault/internal/tenantdb"
)

// Worker drains the feedback notification queue: deliver through the
// mailer, then mark the feedback row notified.
type Worker struct {
	conn      *amqp.Connection
	feedback  *repository.FeedbackRepository
	mailer    Mailer
	queueName string
	logger    *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewWorker(
	conn *amqp.Connection,
	feedback *repository.FeedbackRepository,
	mailer Mailer,
	queueName string,
	logger *zap.Logger,
) *Worker {
	return &Worker{
		conn:      conn,
		feedback:  feedback,
		mailer:    mailer,
		queueName: queueName,
		logger:    logger,
	}
}

func (w *Worker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}

	_, err = ch.QueueDeclare(
		w.queueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("declare worker queue failed: %w", err)
	}

	deliveries, err := ch.Consume(
		w.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				w.handle(workerCtx, d)
			}
		}
	}()

	return nil
}

func (w *Worker) handle(ctx context.Context, d amqp.Delivery) {
	var n Notification
	if err := json.Unmarshal(d.Body, &n); err != nil {
		w.logger.Warn("decode notification failed", zap.Error(err))
		_ = d.Nack(false, false)
		return
	}

	scope, err := tenantdb.NewScope(n.TenantID)
	if err != nil {
		w.logger.Warn("notification with invalid tenant", zap.String("feedback_id", n.FeedbackID), zap.Error(err))
		_ = d.Nack(false, false)
		return
	}

	if err := w.mailer.Send(ctx, n); err != nil {
		w.logger.Warn("notification delivery failed", zap.String("feedback_id", n.FeedbackID), zap.Error(err))
		_ = d.Nack(false, false)
		return
	}

	if err := w.feedback.MarkNotified(scope, n.FeedbackID); err != nil {
		w.logger.Warn("mark feedback notified failed", zap.String("feedback_id", n.FeedbackID), zap.Error(err))
	}
	_ = d.Ack(false)
}

func (w *Worker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
