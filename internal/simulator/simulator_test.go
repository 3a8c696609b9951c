package simulator_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	amqp "github.com/rabbitmq/amqp091-go"

	"pipewatch.dev/pipewatch/internal/ingest"
	"pipewatch.dev/pipewatch/internal/simulator"
	"pipewatch.dev/pipewatch/pkg/mq"
)

// fakeMQ records pushed message bodies in order.
type fakeMQ struct {
	mu     sync.Mutex
	pushed [][]byte
}

var _ mq.ClientInterface = (*fakeMQ)(nil)

func (f *fakeMQ) Push(_ context.Context, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	body := make([]byte, len(data))
	copy(body, data)
	f.pushed = append(f.pushed, body)
	return nil
}

func (f *fakeMQ) UnsafePush(ctx context.Context, data []byte) error {
	return f.Push(ctx, data)
}

func (f *fakeMQ) Consume() (<-chan amqp.Delivery, error) {
	ch := make(chan amqp.Delivery)
	close(ch)
	return ch, nil
}

func (f *fakeMQ) Close() error { return nil }

func (f *fakeMQ) messages() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.pushed))
	copy(out, f.pushed)
	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

var _ = Describe("New", func() {
	var (
		readingMQ *fakeMQ
		sensorMQ  *fakeMQ
		cfg       *simulator.Config
	)

	BeforeEach(func() {
		readingMQ = &fakeMQ{}
		sensorMQ = &fakeMQ{}
		cfg = &simulator.Config{
			Logger:      testLogger(),
			ReadingMQ:   readingMQ,
			SensorMQ:    sensorMQ,
			SensorCount: 4,
		}
	})

	It("rejects a nil config", func() {
		_, err := simulator.New(nil)
		Expect(err).To(HaveOccurred())
	})

	It("rejects a missing logger", func() {
		cfg.Logger = nil
		_, err := simulator.New(cfg)
		Expect(err).To(HaveOccurred())
	})

	It("rejects missing mq clients", func() {
		cfg.ReadingMQ = nil
		_, err := simulator.New(cfg)
		Expect(err).To(HaveOccurred())
	})

	It("builds the requested fleet", func() {
		sim, err := simulator.New(cfg)
		Expect(err).NotTo(HaveOccurred())
		Expect(sim.SensorIDs()).To(HaveLen(4))
	})

	It("announces every sensor on the registration queue", func() {
		sim, err := simulator.New(cfg)
		Expect(err).NotTo(HaveOccurred())

		announced := sensorMQ.messages()
		Expect(announced).To(HaveLen(4))

		ids := make([]string, 0, len(announced))
		for _, body := range announced {
			var msg ingest.SensorMessage
			Expect(json.Unmarshal(body, &msg)).To(Succeed())
			Expect(msg.SensorID).NotTo(BeEmpty())
			Expect(msg.Location).NotTo(BeEmpty())
			Expect(msg.PipeType).To(BeElementOf("main", "secondary", "branch", "service"))
			ids = append(ids, msg.SensorID)
		}
		Expect(ids).To(ConsistOf(sim.SensorIDs()))

		// Readings only flow once Run ticks.
		Expect(readingMQ.messages()).To(BeEmpty())
	})

	It("defaults the fleet size when unset", func() {
		cfg.SensorCount = 0
		sim, err := simulator.New(cfg)
		Expect(err).NotTo(HaveOccurred())
		Expect(len(sim.SensorIDs())).To(BeNumerically(">=", 3))
	})
})
