// Package mq provides end-to-end tests for the RabbitMQ client.
package mq

import (
	"context"
	"encoding/json"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"pipewatch.dev/pipewatch/internal/ingest"
	clientmq "pipewatch.dev/pipewatch/pkg/mq"
)

var _ = Describe("MQ Client E2E", func() {
	var (
		client    *clientmq.Client
		queueName string
		ctx       context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		// Unique queue name per test
		queueName = "pipe-readings-" + time.Now().Format("20060102-150405.000")
	})

	AfterEach(func() {
		if client != nil {
			_ = client.Close()
			client = nil
		}
	})

	Describe("Connection", func() {
		It("should connect to RabbitMQ successfully", func() {
			client = clientmq.New(queueName, rabbitmqURL, testLogger)
			Expect(client).NotTo(BeNil())

			// Give client time to connect
			time.Sleep(1 * time.Second)
		})

		It("should handle invalid URL gracefully", func() {
			invalidClient := clientmq.New("pipe-readings", "amqp://invalid:5672", testLogger)
			Expect(invalidClient).NotTo(BeNil())

			// Should not crash, will keep retrying in background
			time.Sleep(500 * time.Millisecond)

			_ = invalidClient.Close()
		})
	})

	Describe("Publishing", func() {
		BeforeEach(func() {
			client = clientmq.New(queueName, rabbitmqURL, testLogger)
			time.Sleep(2 * time.Second) // Wait for connection
		})

		It("should publish a message with confirmation", func() {
			err := client.Push(ctx, []byte("test message"))
			Expect(err).NotTo(HaveOccurred())
		})

		It("should publish multiple messages successfully", func() {
			messages := []string{"message 1", "message 2", "message 3"}

			for _, msg := range messages {
				err := client.Push(ctx, []byte(msg))
				Expect(err).NotTo(HaveOccurred())
			}
		})

		It("should handle rapid successive publishes", func() {
			for i := 0; i < 10; i++ {
				err := client.Push(ctx, []byte("rapid message"))
				Expect(err).NotTo(HaveOccurred())
			}
		})

		It("should use UnsafePush without blocking", func() {
			err := client.UnsafePush(ctx, []byte("unsafe message"))
			Expect(err).NotTo(HaveOccurred())
		})
	})

	Describe("Consuming", func() {
		BeforeEach(func() {
			client = clientmq.New(queueName, rabbitmqURL, testLogger)
			time.Sleep(2 * time.Second) // Wait for connection
		})

		It("should consume messages successfully", func() {
			deliveries, err := client.Consume()
			Expect(err).NotTo(HaveOccurred())
			Expect(deliveries).NotTo(BeNil())

			// Wait for consumer to register on server
			time.Sleep(500 * time.Millisecond)

			err = client.Push(ctx, []byte("consume test message"))
			Expect(err).NotTo(HaveOccurred())

			select {
			case delivery := <-deliveries:
				Expect(string(delivery.Body)).To(ContainSubstring("consume test message"))
				Expect(delivery.Ack(false)).To(Succeed())
			case <-time.After(5 * time.Second):
				Fail("Did not receive message within timeout")
			}
		})

		It("should round-trip a telemetry reading intact", func() {
			deliveries, err := client.Consume()
			Expect(err).NotTo(HaveOccurred())

			time.Sleep(500 * time.Millisecond)

			temperature := int64(1450)
			sent := ingest.ReadingMessage{
				SensorID:    "pipe-e2e-1",
				FlowRate:    1275,
				Pressure:    6150,
				Temperature: &temperature,
				TimestampMS: time.Now().UnixMilli(),
			}
			body, err := json.Marshal(sent)
			Expect(err).NotTo(HaveOccurred())

			Expect(client.Push(ctx, body)).To(Succeed())

			select {
			case delivery := <-deliveries:
				var received ingest.ReadingMessage
				Expect(json.Unmarshal(delivery.Body, &received)).To(Succeed())
				Expect(received).To(Equal(sent))
				Expect(delivery.ContentType).To(Equal("application/json"))
				Expect(delivery.Ack(false)).To(Succeed())
			case <-time.After(5 * time.Second):
				Fail("Did not receive reading within timeout")
			}
		})

		It("should consume multiple messages in order", func() {
			deliveries, err := client.Consume()
			Expect(err).NotTo(HaveOccurred())

			time.Sleep(500 * time.Millisecond)

			messages := []string{"first", "second", "third"}
			for _, msg := range messages {
				Expect(client.Push(ctx, []byte(msg))).To(Succeed())
			}

			for _, expected := range messages {
				select {
				case delivery := <-deliveries:
					Expect(string(delivery.Body)).To(Equal(expected))
					Expect(delivery.Ack(false)).To(Succeed())
				case <-time.After(5 * time.Second):
					Fail("Did not receive message within timeout")
				}
			}
		})
	})
})
