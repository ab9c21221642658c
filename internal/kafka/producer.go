package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"ticket-engine/internal/logger"
	"ticket-engine/internal/models"
)

// Producer publishes ticket lifecycle events. In mock mode nothing is sent
// anywhere; events are logged and dropped so the engine runs without a
// broker.
type Producer struct {
	producer sarama.SyncProducer
	log      *logger.Logger
	mockMode bool
}

func NewProducer(brokers []string, mockMode bool, log *logger.Logger) (*Producer, error) {
	if mockMode {
		log.Warn("KAFKA", "Running in MOCK MODE - events will be logged but not published")
		return &Producer{log: log, mockMode: true}, nil
	}

	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	log.LogKafka("CONNECT", "-", fmt.Sprintf("Producer connected to brokers %v", brokers))
	return &Producer{producer: producer, log: log}, nil
}

// PublishTicketEvent sends the event to the topic derived from its type.
// Errors are returned for logging only; callers never roll back state over a
// failed publish.
func (p *Producer) PublishTicketEvent(event *models.TicketEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	topic := getTopicForEvent(event.Type)

	if p.mockMode {
		p.log.LogKafka("MOCK_PUBLISH", topic, fmt.Sprintf("Event %s: %s", event.Type, string(data)))
		return nil
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(eventKey(event)),
		Value: sarama.ByteEncoder(data),
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		p.log.Error("KAFKA", fmt.Sprintf("Failed to publish %s event: %v", event.Type, err))
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.log.LogKafka("PUBLISH", topic, fmt.Sprintf("Event %s at partition=%d offset=%d", event.Type, partition, offset))
	return nil
}

func (p *Producer) Close() error {
	if p.mockMode || p.producer == nil {
		return nil
	}
	return p.producer.Close()
}

func getTopicForEvent(eventType string) string {
	switch eventType {
	case "ticket.sold":
		return "ticket-sold"
	case "ticket.scanned":
		return "ticket-scanned"
	case "scan.conflict":
		return "scan-conflicts"
	default:
		return "ticket-events"
	}
}

// eventKey keeps all events for one ticket on one partition so consumers see
// them in order.
func eventKey(event *models.TicketEvent) string {
	if event.TicketID != "" {
		return event.TicketID
	}
	return fmt.Sprintf("%d", event.TicketNumber)
}
