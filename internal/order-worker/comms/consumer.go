package comms

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"pizza-flow-service/internal/order-manager/events"
	"pizza-flow-service/internal/order-worker/pool"
	"pizza-flow-service/internal/order-worker/tasks"
)

const (
	defaultKafkaBrokers  = "localhost:9092"
	defaultDispatchTopic = "task_dispatch"
)

// DispatchConsumer listens on the task dispatch topic so freshly created
// tasks reach the pool without waiting for the next poll cycle.
type DispatchConsumer struct {
	reader   *kafka.Reader
	region   string
	registry *tasks.Registry
	reports  tasks.Reporter
	pool     *pool.Pool
}

// NewDispatchConsumerFromEnv returns nil when KAFKA_BROKERS is unset; the
// worker then relies on polling alone.
func NewDispatchConsumerFromEnv(region string, registry *tasks.Registry, reports tasks.Reporter, p *pool.Pool) *DispatchConsumer {
	brokers := os.Getenv("KAFKA_BROKERS")
	if brokers == "" {
		log.Println("KAFKA_BROKERS not set, task dispatch consumer disabled")
		return nil
	}
	topic := os.Getenv("TASK_DISPATCH_TOPIC")
	if topic == "" {
		topic = defaultDispatchTopic
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: strings.Split(brokers, ","), GroupID: "order-worker-" + region, Topic: topic,
		MinBytes: 10e3, MaxBytes: 10e6, CommitInterval: time.Second, MaxWait: 3 * time.Second,
	})
	log.Printf("Task dispatch consumer configured for brokers: %s, topic: %s, region: %s", brokers, topic, region)
	return &DispatchConsumer{reader: reader, region: region, registry: registry, reports: reports, pool: p}
}

func (c *DispatchConsumer) Close() error { return c.reader.Close() }

// Run consumes dispatch events until the context is cancelled or the reader
// is closed. Events for other regions are skipped.
func (c *DispatchConsumer) Run(ctx context.Context) {
	log.Println("Listening for task dispatch events...")
	for {
		select {
		case <-ctx.Done():
			log.Println("Dispatch consumer: context cancelled, stopping.")
			return
		default:
			readCtx, cancel := context.WithTimeout(ctx, 1*time.Second)
			msg, err := c.reader.ReadMessage(readCtx)
			cancel()

			if errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			if errors.Is(err, context.Canceled) {
				log.Println("Dispatch consumer: read context cancelled.")
				return
			}
			if errors.Is(err, io.EOF) {
				log.Println("Dispatch consumer: kafka reader closed (EOF), stopping.")
				return
			}
			if err != nil {
				log.Printf("Dispatch consumer: read error: %v. Retrying...", err)
				time.Sleep(1 * time.Second)
				continue
			}

			var payload events.TaskDispatchPayload
			if err := json.Unmarshal(msg.Value, &payload); err != nil {
				log.Printf("Dispatch consumer: unmarshal error: %v. Value: %s", err, string(msg.Value))
				continue
			}
			if payload.Region != c.region || payload.Task == nil {
				continue
			}
			runner, err := c.registry.Get(payload.Task.Name)
			if err != nil {
				log.Printf("Dispatch consumer: no task handler for %s", payload.Task.Name)
				continue
			}
			if err := c.pool.Submit(tasks.NewExecution(payload.Task, runner, c.reports)); err != nil {
				log.Printf("Dispatch consumer: could not submit task %s: %v", payload.Task.UUID, err)
			}
		}
	}
}
