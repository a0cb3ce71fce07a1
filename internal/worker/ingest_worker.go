package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"docqa/internal/model"
	"docqa/internal/platform/rabbitmq"
)

// IngestRunner runs one queued ingest job.
type IngestRunner interface {
	IngestPending(ctx context.Context, job model.IngestJob) error
}

// IngestWorker consumes ingest jobs. Failed jobs are not requeued: the runner
// marks their document failed and the tenant can upload again.
type IngestWorker struct {
	conn      *amqp.Connection
	runner    IngestRunner
	queueName string
	prefetch  int
	timeout   time.Duration
	log       *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewIngestWorker(conn *amqp.Connection, runner IngestRunner, queueName string, jobTimeout time.Duration, log *zap.Logger) *IngestWorker {
	if jobTimeout <= 0 {
		jobTimeout = 5 * time.Minute
	}
	return &IngestWorker{
		conn:      conn,
		runner:    runner,
		queueName: queueName,
		prefetch:  2,
		timeout:   jobTimeout,
		log:       log.Named("ingest_worker"),
	}
}

func (w *IngestWorker) Start(ctx context.Context) error {
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

	if err := rabbitmq.DeclareQueue(ch, w.queueName); err != nil {
		_ = ch.Close()
		cancel()
		return err
	}
	if err := ch.Qos(w.prefetch, 0, false); err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("set worker qos failed: %w", err)
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
					w.log.Warn("delivery channel closed")
					return
				}
				w.handle(workerCtx, d)
			}
		}
	}()

	w.log.Info("ingest worker started", zap.String("queue", w.queueName))
	return nil
}

func (w *IngestWorker) handle(ctx context.Context, d amqp.Delivery) {
	job, err := rabbitmq.DecodeJob(d.Body)
	if err != nil {
		w.log.Error("decode ingest job failed", zap.Error(err))
		_ = d.Nack(false, false)
		return
	}

	jobCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	started := time.Now()
	if err := w.runner.IngestPending(jobCtx, job); err != nil {
		w.log.Error("ingest job failed",
			zap.String("tenant_id", job.TenantID),
			zap.String("document_id", job.DocumentID),
			zap.Error(err))
		_ = d.Nack(false, false)
		return
	}

	w.log.Debug("ingest job done",
		zap.String("tenant_id", job.TenantID),
		zap.String("document_id", job.DocumentID),
		zap.Duration("took", time.Since(started)))
	_ = d.Ack(false)
}

func (w *IngestWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
