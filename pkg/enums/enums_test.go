package enums

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMessageType(t *testing.T) {
	got, err := ParseMessageType("STALE_OPERATIONS")
	require.NoError(t, err)
	assert.Equal(t, MessageStaleOperations, got)

	_, err = ParseMessageType("PING")
	assert.Error(t, err)
	assert.False(t, MessageType("PING").IsValid())
}

func TestNotificationActionRequestsDrain(t *testing.T) {
	assert.True(t, NotificationActionSync.RequestsDrain())
	assert.True(t, NotificationActionRetry.RequestsDrain())
	assert.False(t, NotificationActionView.RequestsDrain())

	_, err := ParseNotificationAction("dismiss")
	assert.Error(t, err)
}

func TestOperationActionRequiresRecordID(t *testing.T) {
	assert.False(t, ActionCreate.RequiresRecordID())
	assert.True(t, ActionUpdate.RequiresRecordID())
	assert.True(t, ActionDelete.RequiresRecordID())

	got, err := ParseOperationAction("delete")
	require.NoError(t, err)
	assert.Equal(t, ActionDelete, got)
	assert.False(t, OperationAction("upsert").IsValid())
}

func TestPrintJobStatusTransitions(t *testing.T) {
	assert.True(t, PrintJobPending.CanTransitionTo(PrintJobPrinted))
	assert.True(t, PrintJobPending.CanTransitionTo(PrintJobFailed))
	assert.False(t, PrintJobPrinted.CanTransitionTo(PrintJobFailed))
	assert.False(t, PrintJobFailed.CanTransitionTo(PrintJobPending))
	assert.False(t, PrintJobPending.CanTransitionTo(PrintJobPending))
}

func TestParsePrintType(t *testing.T) {
	for _, raw := range []string{"kitchen_ticket", "kitchen_ticket_sector", "customer_receipt", "cancellation_ticket"} {
		got, err := ParsePrintType(raw)
		require.NoError(t, err, raw)
		assert.True(t, got.IsValid())
	}
	_, err := ParsePrintType("label")
	assert.Error(t, err)
}
