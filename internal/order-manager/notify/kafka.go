package notify

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"pizza-flow-service/internal/models"
	"pizza-flow-service/internal/order-manager/events"
)

const (
	DefaultKafkaBrokers      = "localhost:9092"
	DefaultTaskDispatchTopic = "task_dispatch"
	DefaultFlowEventsTopic   = "flow_events"
)

// Notifier delivers best-effort push notifications. Implementations never
// fail the triggering operation: delivery errors are logged and swallowed.
type Notifier interface {
	TaskCreated(ctx context.Context, task *models.Task)
	TaskUpdated(ctx context.Context, task *models.Task)
	OperationUpdated(ctx context.Context, op *models.Operation)
	Milestone(ctx context.Context, event string, payload models.JSONMap)
}

// KafkaNotifier publishes task dispatches and flow events to Kafka.
type KafkaNotifier struct {
	dispatch *kafka.Writer
	eventsW  *kafka.Writer
}

// NewKafkaNotifierFromEnv configures writers from KAFKA_BROKERS,
// TASK_DISPATCH_TOPIC and FLOW_EVENTS_TOPIC.
func NewKafkaNotifierFromEnv() *KafkaNotifier {
	kafkaBrokers := os.Getenv("KAFKA_BROKERS")
	if kafkaBrokers == "" {
		kafkaBrokers = DefaultKafkaBrokers
	}
	dispatchTopic := os.Getenv("TASK_DISPATCH_TOPIC")
	if dispatchTopic == "" {
		dispatchTopic = DefaultTaskDispatchTopic
	}
	eventsTopic := os.Getenv("FLOW_EVENTS_TOPIC")
	if eventsTopic == "" {
		eventsTopic = DefaultFlowEventsTopic
	}
	brokerList := strings.Split(kafkaBrokers, ",")
	newWriter := func(topic string) *kafka.Writer {
		return kafka.NewWriter(kafka.WriterConfig{
			Brokers:      brokerList,
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: int(kafka.RequireOne),
			Async:        false,
		})
	}
	log.Printf("Kafka notifier configured for topics %s, %s", dispatchTopic, eventsTopic)
	return &KafkaNotifier{
		dispatch: newWriter(dispatchTopic),
		eventsW:  newWriter(eventsTopic),
	}
}

// TaskCreated pushes a newly pending task to workers in its region.
func (n *KafkaNotifier) TaskCreated(ctx context.Context, task *models.Task) {
	payload := events.TaskDispatchPayload{Region: task.Region, Task: task.Execution()}
	n.write(ctx, n.dispatch, task.Region, payload)
}

func (n *KafkaNotifier) TaskUpdated(ctx context.Context, task *models.Task) {
	n.write(ctx, n.eventsW, task.UUID, events.FlowEvent{Event: events.TaskUpdate, Payload: task})
}

func (n *KafkaNotifier) OperationUpdated(ctx context.Context, op *models.Operation) {
	n.write(ctx, n.eventsW, op.UUID, events.FlowEvent{Event: events.OperationUpdate, Payload: op})
}

func (n *KafkaNotifier) Milestone(ctx context.Context, event string, payload models.JSONMap) {
	n.write(ctx, n.eventsW, event, events.FlowEvent{Event: event, Payload: payload})
}

func (n *KafkaNotifier) write(ctx context.Context, w *kafka.Writer, key string, payload interface{}) {
	value, err := json.Marshal(payload)
	if err != nil {
		log.Printf("notify: marshal payload for topic %s: %v", w.Stats().Topic, err)
		return
	}
	writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	msg := kafka.Message{Key: []byte(key), Value: value}
	if err := w.WriteMessages(writeCtx, msg); err != nil {
		log.Printf("notify: write to topic %s: %v", w.Stats().Topic, err)
	}
}

func (n *KafkaNotifier) Close() error {
	if err := n.dispatch.Close(); err != nil {
		return err
	}
	return n.eventsW.Close()
}
