package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"

	"ticket-engine/internal/logger"
	"ticket-engine/internal/models"
)

const orderConfirmedTopic = "order.confirmed"

// ConfirmFunc is invoked once per order.confirmed event. Returning an error
// leaves the message unmarked so it is redelivered.
type ConfirmFunc func(ctx context.Context, event *models.OrderConfirmedEvent) error

// OrderConsumer listens for confirmations emitted by an upstream payment
// system and applies them to the reservation state machine.
type OrderConsumer struct {
	group    sarama.ConsumerGroup
	handler  ConfirmFunc
	log      *logger.Logger
	mockMode bool
}

func NewOrderConsumer(brokers []string, groupID string, mockMode bool, handler ConfirmFunc, log *logger.Logger) (*OrderConsumer, error) {
	if mockMode {
		log.Warn("KAFKA", "Consumer running in MOCK MODE - order confirmations must arrive via HTTP")
		return &OrderConsumer{handler: handler, log: log, mockMode: true}, nil
	}

	config := sarama.NewConfig()
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	config.Consumer.Offsets.Initial = sarama.OffsetOldest

	group, err := sarama.NewConsumerGroup(brokers, groupID, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	log.LogKafka("CONNECT", orderConfirmedTopic, fmt.Sprintf("Consumer group %s joined", groupID))
	return &OrderConsumer{group: group, handler: handler, log: log}, nil
}

// Start blocks until ctx is cancelled, rejoining the group after each
// rebalance.
func (c *OrderConsumer) Start(ctx context.Context) error {
	if c.mockMode {
		<-ctx.Done()
		return nil
	}

	handler := &OrderConsumerHandler{Handler: c.handler, Log: c.log}
	for {
		if err := c.group.Consume(ctx, []string{orderConfirmedTopic}, handler); err != nil {
			c.log.Error("KAFKA", fmt.Sprintf("Consumer error: %v", err))
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (c *OrderConsumer) Close() error {
	if c.mockMode || c.group == nil {
		return nil
	}
	return c.group.Close()
}

// OrderConsumerHandler implements sarama.ConsumerGroupHandler. Exported so
// the message path can be exercised without a broker.
type OrderConsumerHandler struct {
	Handler ConfirmFunc
	Log     *logger.Logger
}

func (h *OrderConsumerHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *OrderConsumerHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *OrderConsumerHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for message := range claim.Messages() {
		var event models.OrderConfirmedEvent
		if err := json.Unmarshal(message.Value, &event); err != nil {
			h.Log.Error("KAFKA", fmt.Sprintf("Failed to unmarshal order.confirmed at offset %d: %v", message.Offset, err))
			session.MarkMessage(message, "")
			continue
		}

		if err := h.Handler(session.Context(), &event); err != nil {
			h.Log.Error("KAFKA", fmt.Sprintf("Failed to apply confirmation for order %s: %v", event.OrderID, err))
			continue
		}

		h.Log.LogKafka("CONSUME", orderConfirmedTopic, fmt.Sprintf("Order %s confirmed for ticket #%d", event.OrderID, event.TicketNumber))
		session.MarkMessage(message, "")
	}
	return nil
}
