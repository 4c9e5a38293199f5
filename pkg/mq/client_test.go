package mq_test

import (
	"context"
	"log/slog"
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/larkin1301/hvcm/pkg/mq"
)

var _ = Describe("MQ Client", func() {
	var (
		logger *slog.Logger
	)

	BeforeEach(func() {
		logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelError,
		}))
	})

	Describe("New", func() {
		It("should create a new client instance", func() {
			client := mq.New("test-queue", "amqp://localhost:5672", logger)
			Expect(client).NotTo(BeNil())

			_ = client.Close()
		})
	})

	Describe("Push", func() {
		Context("when not connected", func() {
			It("should retry with backoff and respect the context", func() {
				client := mq.New("test-queue", "amqp://invalid:5672", logger)

				// Give client time to attempt connection and fail
				time.Sleep(100 * time.Millisecond)

				ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
				defer cancel()

				start := time.Now()
				err := client.Push(ctx, []byte("test message"))
				elapsed := time.Since(start)

				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(SatisfyAny(
					ContainSubstring("context deadline exceeded"),
					ContainSubstring("context canceled"),
				))
				Expect(elapsed).To(BeNumerically(">=", 100*time.Millisecond))

				_ = client.Close()
			})

			It("should return error after max retry attempts", func() {
				client := mq.New("test-queue", "amqp://invalid:5672", logger)

				time.Sleep(100 * time.Millisecond)

				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()

				err := client.Push(ctx, []byte("test message"))
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("maximum retry attempts exceeded"))

				_ = client.Close()
			})

			It("should return error for UnsafePush", func() {
				client := mq.New("test-queue", "amqp://invalid:5672", logger)

				time.Sleep(100 * time.Millisecond)

				err := client.UnsafePush(context.Background(), []byte("test message"))
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("not connected"))

				_ = client.Close()
			})
		})
	})

	Describe("Consume", func() {
		Context("when not connected", func() {
			It("should return error", func() {
				client := mq.New("test-queue", "amqp://invalid:5672", logger)

				time.Sleep(100 * time.Millisecond)

				_, err := client.Consume()
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("not connected"))

				_ = client.Close()
			})
		})
	})

	Describe("Close", func() {
		Context("when not connected", func() {
			It("should return already closed error", func() {
				client := mq.New("test-queue", "amqp://invalid:5672", logger)

				time.Sleep(100 * time.Millisecond)

				err := client.Close()
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("already closed"))
			})
		})

		Context("when closing twice", func() {
			It("should return error on second close", func() {
				client := mq.New("test-queue", "amqp://invalid:5672", logger)

				time.Sleep(100 * time.Millisecond)

				err1 := client.Close()
				Expect(err1).To(HaveOccurred())

				err2 := client.Close()
				Expect(err2).To(HaveOccurred())
				Expect(err2.Error()).To(ContainSubstring("already closed"))
			})
		})
	})

	Describe("Concurrent Access", func() {
		It("should handle concurrent push attempts safely", func() {
			client := mq.New("test-queue", "amqp://invalid:5672", logger)
			defer func() { _ = client.Close() }()

			time.Sleep(100 * time.Millisecond)

			done := make(chan bool, 3)
			for i := 0; i < 3; i++ {
				go func() {
					_ = client.UnsafePush(context.Background(), []byte("test"))
					done <- true
				}()
			}

			for i := 0; i < 3; i++ {
				Eventually(done).Should(Receive())
			}
		})
	})
})
