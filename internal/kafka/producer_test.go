package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticket-engine/internal/logger"
	"ticket-engine/internal/models"
)

func TestGetTopicForEvent(t *testing.T) {
	assert.Equal(t, "ticket-sold", getTopicForEvent("ticket.sold"))
	assert.Equal(t, "ticket-scanned", getTopicForEvent("ticket.scanned"))
	assert.Equal(t, "scan-conflicts", getTopicForEvent("scan.conflict"))
	assert.Equal(t, "ticket-events", getTopicForEvent("something.else"))
}

func TestEventKeyPrefersTicketID(t *testing.T) {
	assert.Equal(t, "abc", eventKey(&models.TicketEvent{TicketID: "abc", TicketNumber: 7}))
	assert.Equal(t, "7", eventKey(&models.TicketEvent{TicketNumber: 7}))
}

func TestMockModePublishes(t *testing.T) {
	producer, err := NewProducer(nil, true, logger.NewLogger())
	require.NoError(t, err)
	defer producer.Close()

	event := &models.TicketEvent{Type: "ticket.sold", TicketNumber: 42, OrderID: "ord-1"}
	require.NoError(t, producer.PublishTicketEvent(event))
	assert.False(t, event.Timestamp.IsZero(), "publish stamps the event")
}
