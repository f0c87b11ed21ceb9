// Package queue carries generation jobs over Kafka so the HTTP request can
// return before the derivatives exist.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"photo-thumbnailer/internal/models"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Producer struct {
	w messageWriter
}

func NewProducer(broker, topic string) *Producer {
	return &Producer{w: kafka.NewWriter(kafka.WriterConfig{
		Brokers: []string{broker},
		Topic:   topic,
	})}
}

// Enqueue publishes a generation job and returns its id. Messages are keyed
// by path so jobs for the same original land on the same partition.
func (p *Producer) Enqueue(ctx context.Context, bucket, file string) (string, error) {
	const op = "queue.Enqueue"

	job := models.GenerateJob{
		ID:         uuid.NewString(),
		Bucket:     bucket,
		File:       models.NormalizePath(file),
		EnqueuedAt: time.Now().UTC(),
	}
	if job.Bucket == "" || job.File == "" {
		return "", fmt.Errorf("%s: %w: missing bucket or file", op, models.ErrInvalidRequest)
	}

	value, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	err = p.w.WriteMessages(ctx, kafka.Message{Key: []byte(job.File), Value: value})
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return job.ID, nil
}

func (p *Producer) Close() error {
	return p.w.Close()
}

func decodeJob(value []byte) (models.GenerateJob, error) {
	var job models.GenerateJob
	if err := json.Unmarshal(value, &job); err != nil {
		return job, fmt.Errorf("queue.decodeJob: %w", err)
	}
	if job.Bucket == "" || job.File == "" {
		return job, fmt.Errorf("queue.decodeJob: %w: missing bucket or file", models.ErrInvalidRequest)
	}
	return job, nil
}
