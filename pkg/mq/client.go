// Package mq provides a RabbitMQ client with automatic reconnection and error handling.
package mq

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/larkin1301/hvcm/pkg/metrics"
)

// Client is a RabbitMQ client that handles connection management,
// automatic reconnection, and provides methods for publishing and
// consuming messages.
type Client struct {
	m               *sync.Mutex
	logger          *slog.Logger
	connection      *amqp.Connection
	channel         *amqp.Channel
	done            chan bool
	notifyConnClose chan *amqp.Error
	notifyChanClose chan *amqp.Error
	notifyConfirm   chan amqp.Confirmation
	queueName       string
	isReady         bool
	metrics         *metrics.MQMetrics // Optional metrics
}

const (
	// When reconnecting to the server after connection failure.
	reconnectDelay = 5 * time.Second

	// When setting up the channel after a channel exception.
	reInitDelay = 2 * time.Second

	// Initial backoff delay for Push retries.
	initialBackoff = 100 * time.Millisecond

	// Maximum backoff delay for Push retries.
	maxBackoff = 10 * time.Second

	// Maximum number of retry attempts before giving up.
	maxRetryAttempts = 5
)

var (
	errNotConnected       = errors.New("not connected to a server")
	errAlreadyClosed      = errors.New("already closed: not connected to the server")
	errShutdown           = errors.New("client is shutting down")
	errMaxRetriesExceeded = errors.New("maximum retry attempts exceeded")
)

// New creates a new client instance and automatically attempts to
// connect to the server in the background.
func New(queueName, addr string, l *slog.Logger) *Client {
	client := Client{
		m:         &sync.Mutex{},
		logger:    l,
		queueName: queueName,
		done:      make(chan bool),
	}
	go client.handleReconnect(addr)
	return &client
}

// SetMetrics sets the metrics collector for this client.
// This should be called before the client starts processing messages.
func (client *Client) SetMetrics(m *metrics.MQMetrics) {
	client.metrics = m
}

// handleReconnect waits for a connection error on notifyConnClose, and
// then continuously attempts to reconnect.
func (client *Client) handleReconnect(addr string) {
	for {
		client.setReady(false)

		client.logger.Info("attempting to connect")

		if client.metrics != nil {
			client.metrics.ReconnectAttempts.Inc()
		}

		conn, err := client.connect(addr)
		if err != nil {
			client.logger.Error("failed to connect, retrying", "error", err)

			select {
			case <-client.done:
				return
			case <-time.After(reconnectDelay):
			}
			continue
		}

		if done := client.handleReInit(conn); done {
			break
		}
	}
}

// connect creates a new AMQP connection.
func (client *Client) connect(addr string) (*amqp.Connection, error) {
	conn, err := amqp.Dial(addr)
	if err != nil {
		if client.metrics != nil {
			client.metrics.ConnectionStatus.Set(0)
		}
		return nil, err
	}

	client.changeConnection(conn)
	client.logger.Info("connected")

	if client.metrics != nil {
		client.metrics.ConnectionStatus.Set(1)
	}

	return conn, nil
}

// handleReInit waits for a channel error and then continuously attempts
// to re-initialize the channel.
func (client *Client) handleReInit(conn *amqp.Connection) bool {
	for {
		client.setReady(false)

		err := client.init(conn)
		if err != nil {
			client.logger.Error("failed to initialize channel, retrying", "error", err)

			select {
			case <-client.done:
				return true
			case <-client.notifyConnClose:
				client.logger.Info("connection closed, reconnecting")
				return false
			case <-time.After(reInitDelay):
			}
			continue
		}

		select {
		case <-client.done:
			return true
		case <-client.notifyConnClose:
			client.logger.Info("connection closed, reconnecting")
			return false
		case <-client.notifyChanClose:
			client.logger.Info("channel closed, re-running init")
		}
	}
}

// init initializes the channel and declares the queue.
func (client *Client) init(conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return err
	}

	if err := ch.Confirm(false); err != nil {
		return err
	}

	_, err = ch.QueueDeclare(
		client.queueName,
		true,  // Durable: telemetry survives broker restarts
		false, // Delete when unused
		false, // Exclusive
		false, // No-wait
		nil,   // Arguments
	)
	if err != nil {
		return err
	}

	client.changeChannel(ch)
	client.setReady(true)
	client.logger.Info("client init done", "queue", client.queueName)

	return nil
}

func (client *Client) setReady(ready bool) {
	client.m.Lock()
	client.isReady = ready
	client.m.Unlock()
}

func (client *Client) ready() bool {
	client.m.Lock()
	defer client.m.Unlock()
	return client.isReady
}

// changeConnection takes a new connection and updates the close
// listener to reflect this.
func (client *Client) changeConnection(connection *amqp.Connection) {
	client.connection = connection
	client.notifyConnClose = make(chan *amqp.Error, 1)
	client.connection.NotifyClose(client.notifyConnClose)
}

// changeChannel takes a new channel and updates the channel listeners
// to reflect this.
func (client *Client) changeChannel(channel *amqp.Channel) {
	client.channel = channel
	client.notifyChanClose = make(chan *amqp.Error, 1)
	client.notifyConfirm = make(chan amqp.Confirmation, 1)
	client.channel.NotifyClose(client.notifyChanClose)
	client.channel.NotifyPublish(client.notifyConfirm)
}

// Push publishes data onto the queue and waits for a confirmation.
// When the client is disconnected it retries with exponential backoff,
// allowing time for automatic reconnection to succeed; after
// maxRetryAttempts failed attempts it gives up.
func (client *Client) Push(ctx context.Context, data []byte) error {
	var timer *prometheus.Timer
	if client.metrics != nil {
		timer = prometheus.NewTimer(client.metrics.PushDuration.WithLabelValues(client.queueName))
		defer timer.ObserveDuration()
	}

	backoff := initialBackoff
	retryCount := 0

	wait := func() error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-client.done:
			return errShutdown
		case <-time.After(backoff):
			backoff = min(backoff*2, maxBackoff)
			retryCount++
			return nil
		}
	}

	for {
		if retryCount >= maxRetryAttempts {
			client.logger.Error("maximum retry attempts exceeded", "retry_count", retryCount)
			if client.metrics != nil {
				client.metrics.PushFailures.WithLabelValues(client.queueName, "max_retries_exceeded").Inc()
			}
			return errMaxRetriesExceeded
		}

		if !client.ready() {
			client.logger.Info("not connected, waiting for reconnection",
				"backoff", backoff,
				"retry_count", retryCount)
			if err := wait(); err != nil {
				return err
			}
			continue
		}

		if err := client.UnsafePush(ctx, data); err != nil {
			client.logger.Error("push failed, retrying with backoff",
				"error", err,
				"backoff", backoff,
				"retry_count", retryCount)
			if err := wait(); err != nil {
				return err
			}
			continue
		}

		select {
		case <-ctx.Done():
			if client.metrics != nil {
				client.metrics.PushFailures.WithLabelValues(client.queueName, "context_canceled").Inc()
			}
			return ctx.Err()
		case confirm := <-client.notifyConfirm:
			if confirm.Ack {
				if client.metrics != nil {
					client.metrics.MessagesPushed.WithLabelValues(client.queueName).Inc()
				}
				client.logger.Debug("push confirmed",
					"delivery_tag", confirm.DeliveryTag,
					"retry_count", retryCount)
				return nil
			}
			client.logger.Warn("push not acknowledged, retrying",
				"delivery_tag", confirm.DeliveryTag,
				"backoff", backoff)
			if err := wait(); err != nil {
				return err
			}
		}
	}
}

// UnsafePush publishes to the queue without waiting for confirmation.
// It returns an error if it fails to connect. No guarantees are
// provided for whether the server received the message.
func (client *Client) UnsafePush(ctx context.Context, data []byte) error {
	if !client.ready() {
		return errNotConnected
	}

	return client.channel.PublishWithContext(
		ctx,
		"",               // Exchange
		client.queueName, // Routing key
		false,            // Mandatory
		false,            // Immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         data,
		},
	)
}

// Consume continuously puts queue items on the returned channel. The
// caller must Ack each delivery after successful processing, or Nack on
// failure; ignoring this will cause data to build up on the server.
func (client *Client) Consume() (<-chan amqp.Delivery, error) {
	if !client.ready() {
		return nil, errNotConnected
	}

	if err := client.channel.Qos(
		1,     // prefetchCount
		0,     // prefetchSize
		false, // global
	); err != nil {
		return nil, err
	}

	return client.channel.Consume(
		client.queueName,
		"",    // Consumer
		false, // Auto-Ack
		false, // Exclusive
		false, // No-local
		false, // No-Wait
		nil,   // Args
	)
}

// Close cleanly shuts down the channel and connection.
func (client *Client) Close() error {
	client.m.Lock()
	defer client.m.Unlock()

	if !client.isReady {
		return errAlreadyClosed
	}
	close(client.done)
	if err := client.channel.Close(); err != nil {
		return err
	}
	if err := client.connection.Close(); err != nil {
		return err
	}

	client.isReady = false

	if client.metrics != nil {
		client.metrics.ConnectionStatus.Set(0)
	}

	return nil
}
