package sim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/larkin1301/hvcm/pkg/mq"
)

// Publisher drives a set of simulated devices, pushing each generated
// payload onto the AMQP intake queue.
type Publisher struct {
	logger   *slog.Logger
	mqClient mq.ClientInterface
	devices  []*Device
	interval time.Duration
}

// PublisherConfig holds the configuration for the Publisher.
type PublisherConfig struct {
	Logger      *slog.Logger
	RabbitMQURL string
	QueueName   string
	DeviceCount int
	Interval    time.Duration
}

// NewPublisher creates a new Publisher with DeviceCount simulated devices.
func NewPublisher(cfg *PublisherConfig) (*Publisher, error) {
	if cfg == nil {
		return nil, errors.New("publisher config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.RabbitMQURL == "" {
		return nil, errors.New("rabbitmq URL cannot be empty")
	}

	if cfg.QueueName == "" {
		return nil, errors.New("queue name cannot be empty")
	}

	if cfg.DeviceCount <= 0 {
		return nil, errors.New("device count must be positive")
	}

	if cfg.Interval <= 0 {
		return nil, errors.New("interval must be positive")
	}

	devices := make([]*Device, 0, cfg.DeviceCount)
	for range cfg.DeviceCount {
		device, err := NewDevice()
		if err != nil {
			return nil, fmt.Errorf("failed to create simulated device: %w", err)
		}
		devices = append(devices, device)
	}

	return &Publisher{
		logger:   cfg.Logger,
		mqClient: mq.New(cfg.QueueName, cfg.RabbitMQURL, cfg.Logger),
		devices:  devices,
		interval: cfg.Interval,
	}, nil
}

// Run publishes telemetry until the context is canceled or a shutdown
// signal arrives. Each tick one random device reports.
func (p *Publisher) Run(ctx context.Context) error {
	p.logger.Info("starting device simulator",
		"devices", len(p.devices),
		"interval", p.interval,
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case sig := <-sigChan:
			p.logger.Info("received shutdown signal", "signal", sig.String())
			return p.close()

		case <-ctx.Done():
			return p.close()

		case now := <-ticker.C:
			device := p.devices[rand.Intn(len(p.devices))] // #nosec G404
			if err := p.publish(ctx, device, now); err != nil {
				p.logger.Error("failed to publish telemetry",
					"device_id", device.DeviceID,
					"error", err,
				)
			}
		}
	}
}

// publish renders and pushes one payload for the device.
func (p *Publisher) publish(ctx context.Context, device *Device, now time.Time) error {
	payload := device.NextPayload(now)

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	pushCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := p.mqClient.Push(pushCtx, body); err != nil {
		return fmt.Errorf("failed to push payload: %w", err)
	}

	p.logger.Debug("published telemetry",
		"device_id", device.DeviceID,
		"lat", payload.GPS.Lat,
		"lon", payload.GPS.Lon,
	)
	return nil
}

func (p *Publisher) close() error {
	if err := p.mqClient.Close(); err != nil {
		p.logger.Warn("failed to close mq client", "error", err)
	}
	p.logger.Info("device simulator stopped")
	return nil
}
