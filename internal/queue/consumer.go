package queue

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"photo-thumbnailer/internal/models"
)

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type Handler func(ctx context.Context, job models.GenerateJob) error

type Consumer struct {
	r   messageReader
	log *slog.Logger
}

func NewConsumer(broker, topic, group string, log *slog.Logger) *Consumer {
	return &Consumer{
		r: kafka.NewReader(kafka.ReaderConfig{
			Brokers: []string{broker},
			Topic:   topic,
			GroupID: group,
		}),
		log: log.With("component", "consumer", "topic", topic),
	}
}

// Run reads jobs until ctx is cancelled or the reader is closed. Malformed
// messages and failed jobs are logged and skipped.
func (c *Consumer) Run(ctx context.Context, handle Handler) error {
	for {
		msg, err := c.r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			c.log.Error("error reading message", "error", err)
			continue
		}

		job, err := decodeJob(msg.Value)
		if err != nil {
			c.log.Warn("dropping malformed job", "offset", msg.Offset, "error", err)
			continue
		}

		log := c.log.With("job_id", job.ID, "path", job.File)
		if err := handle(ctx, job); err != nil {
			log.Error("job failed", "error", err)
			continue
		}
		log.Info("job done")
	}
}

func (c *Consumer) Close() error {
	return c.r.Close()
}
