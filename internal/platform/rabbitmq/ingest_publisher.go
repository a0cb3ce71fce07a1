package rabbitmq

import (
	"context"
	"fmt"

	"github.com/bytedance/sonic"
	amqp "github.com/rabbitmq/amqp091-go"

	"docqa/internal/model"
)

// IngestPublisher enqueues ingest jobs for the ingest worker.
type IngestPublisher struct {
	conn      *amqp.Connection
	queueName string
}

func NewIngestPublisher(conn *amqp.Connection, queueName string) *IngestPublisher {
	return &IngestPublisher{
		conn:      conn,
		queueName: queueName,
	}
}

func (p *IngestPublisher) PublishIngest(ctx context.Context, job model.IngestJob) error {
	payload, err := EncodeJob(job)
	if err != nil {
		return err
	}

	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open rabbitmq channel failed: %w", err)
	}
	defer ch.Close()

	if err := DeclareQueue(ch, p.queueName); err != nil {
		return err
	}

	if err := ch.PublishWithContext(
		ctx,
		"",
		p.queueName,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         payload,
			DeliveryMode: amqp.Persistent,
			MessageId:    job.DocumentID,
		},
	); err != nil {
		return fmt.Errorf("publish ingest job failed: %w", err)
	}
	return nil
}

func EncodeJob(job model.IngestJob) ([]byte, error) {
	payload, err := sonic.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("marshal ingest job failed: %w", err)
	}
	return payload, nil
}

func DecodeJob(body []byte) (model.IngestJob, error) {
	var job model.IngestJob
	if err := sonic.Unmarshal(body, &job); err != nil {
		return job, fmt.Errorf("unmarshal ingest job failed: %w", err)
	}
	if job.DocumentID == "" || job.TenantID == "" {
		return job, fmt.Errorf("ingest job missing document or tenant id")
	}
	return job, nil
}
