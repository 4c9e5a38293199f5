package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/larkin1301/hvcm/internal/store"
	"github.com/larkin1301/hvcm/pkg/metrics"
	"github.com/larkin1301/hvcm/pkg/mq"
)

// Consumer consumes telemetry payloads from RabbitMQ and runs them
// through the same validate-and-write pipeline as HTTP ingestion.
// Devices on flaky cellular links publish to the queue instead of
// holding an HTTP connection open.
type Consumer struct {
	logger   *slog.Logger
	writer   *Writer
	mqClient mq.ClientInterface
	metrics  *metrics.IngestMetrics // Optional metrics
	queue    string
	done     chan struct{}
}

// ConsumerConfig holds the configuration for the Consumer.
type ConsumerConfig struct {
	Logger      *slog.Logger
	Writer      *Writer
	RabbitMQURL string
	QueueName   string
	Metrics     *metrics.IngestMetrics
}

// NewConsumer creates a new Consumer instance.
func NewConsumer(cfg *ConsumerConfig) (*Consumer, error) {
	if cfg == nil {
		return nil, errors.New("consumer config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.Writer == nil {
		return nil, errors.New("writer cannot be nil")
	}

	if cfg.RabbitMQURL == "" {
		return nil, errors.New("rabbitmq URL cannot be empty")
	}

	if cfg.QueueName == "" {
		return nil, errors.New("queue name cannot be empty")
	}

	mqClient := mq.New(cfg.QueueName, cfg.RabbitMQURL, cfg.Logger)

	return &Consumer{
		logger:   cfg.Logger,
		writer:   cfg.Writer,
		mqClient: mqClient,
		metrics:  cfg.Metrics,
		queue:    cfg.QueueName,
		done:     make(chan struct{}),
	}, nil
}

// Start begins consuming telemetry from RabbitMQ.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("starting telemetry consumer", "queue", c.queue)

	// Wait for MQ client to be ready
	time.Sleep(2 * time.Second)

	deliveries, err := c.mqClient.Consume()
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	c.logger.Info("telemetry consumer started, waiting for messages")

	go c.processMessages(ctx, deliveries)

	return nil
}

// processMessages processes incoming deliveries until the context is
// canceled or the channel closes.
func (c *Consumer) processMessages(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("context canceled, stopping message processing")
			close(c.done)
			return

		case delivery, ok := <-deliveries:
			if !ok {
				c.logger.Warn("deliveries channel closed")
				close(c.done)
				return
			}

			c.handleDelivery(ctx, delivery)
		}
	}
}

// handleDelivery processes a single telemetry delivery. Malformed or
// invalid payloads are acked and dropped so they never become
// redeliverable poison. Storage failures nack with requeue only when
// the failure kind can heal (connection lost, timeout); anything
// permanent, a constraint violation in particular, is acked and
// dropped rather than redelivered forever.
func (c *Consumer) handleDelivery(ctx context.Context, delivery amqp.Delivery) {
	var payload TelemetryPayload
	if err := json.Unmarshal(delivery.Body, &payload); err != nil {
		c.logger.Error("failed to unmarshal telemetry payload", "error", err)
		if c.metrics != nil {
			c.metrics.ConsumerErrors.WithLabelValues(c.queue, "unmarshal").Inc()
			c.metrics.PayloadsTotal.WithLabelValues("amqp", "validation_error").Inc()
		}
		if ackErr := delivery.Ack(false); ackErr != nil {
			c.logger.Error("failed to ack message", "error", ackErr)
		}
		return
	}

	report, err := Validate(&payload)
	if err != nil {
		c.logger.Warn("rejected telemetry payload",
			"device_id", payload.DeviceID,
			"error", err,
		)
		if c.metrics != nil {
			c.metrics.PayloadsTotal.WithLabelValues("amqp", "validation_error").Inc()
			var validationErr *ValidationError
			if errors.As(err, &validationErr) {
				c.metrics.ValidationErrors.WithLabelValues(string(validationErr.Kind)).Inc()
			}
		}
		if ackErr := delivery.Ack(false); ackErr != nil {
			c.logger.Error("failed to ack message", "error", ackErr)
		}
		return
	}

	if err := c.writer.Ingest(ctx, report); err != nil {
		requeue := retriableStorageError(err)
		c.logger.Error("failed to store telemetry report",
			"device_id", report.DeviceID,
			"requeue", requeue,
			"error", err,
		)
		if c.metrics != nil {
			c.metrics.PayloadsTotal.WithLabelValues("amqp", "storage_error").Inc()
			c.metrics.ConsumerErrors.WithLabelValues(c.queue, "storage").Inc()
		}
		if requeue {
			if nackErr := delivery.Nack(false, true); nackErr != nil {
				c.logger.Error("failed to nack message", "error", nackErr)
			}
		} else if ackErr := delivery.Ack(false); ackErr != nil {
			c.logger.Error("failed to ack message", "error", ackErr)
		}
		return
	}

	if err := delivery.Ack(false); err != nil {
		c.logger.Error("failed to ack message", "error", err)
		return
	}

	if c.metrics != nil {
		c.metrics.PayloadsTotal.WithLabelValues("amqp", "success").Inc()
	}

	c.logger.Debug("telemetry report stored",
		"device_id", report.DeviceID,
	)
}

// retriableStorageError reports whether a storage failure can heal on
// redelivery. Connection loss and timeouts recover with the database;
// everything else would fail identically every time.
func retriableStorageError(err error) bool {
	var storageErr *store.StorageError
	if !errors.As(err, &storageErr) {
		return false
	}
	return storageErr.Kind == store.ErrKindConnectionLost || storageErr.Kind == store.ErrKindTimeout
}

// Stop stops the consumer and closes the MQ client.
func (c *Consumer) Stop() error {
	c.logger.Info("stopping telemetry consumer")

	if err := c.mqClient.Close(); err != nil {
		return fmt.Errorf("failed to close mq client: %w", err)
	}

	<-c.done

	c.logger.Info("telemetry consumer stopped")
	return nil
}
