package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type userPayload struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

func TestNewEvent_PopulatesEnvelope(t *testing.T) {
	event, err := NewEvent("auth.user.registered", "u-1", "user", "auth-service", userPayload{
		ID:    "u-1",
		Email: "a@b.com",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, event.EventID)
	assert.Equal(t, "auth.user.registered", event.EventType)
	assert.Equal(t, "u-1", event.AggregateID)
	assert.Equal(t, "user", event.AggregateType)
	assert.Equal(t, "auth-service", event.Source)
	assert.Equal(t, 1, event.Version)
	assert.False(t, event.Timestamp.IsZero())
}

func TestEvent_MarshalRoundTrip(t *testing.T) {
	event, err := NewEvent("auth.user.deleted", "u-2", "user", "auth-service", userPayload{ID: "u-2"})
	require.NoError(t, err)
	event.WithCorrelationID("corr-1")

	data, err := event.Marshal()
	require.NoError(t, err)

	decoded, err := UnmarshalEvent(data)
	require.NoError(t, err)
	assert.Equal(t, event.EventID, decoded.EventID)
	assert.Equal(t, "corr-1", decoded.CorrelationID)

	var payload userPayload
	require.NoError(t, decoded.UnmarshalData(&payload))
	assert.Equal(t, "u-2", payload.ID)
}

func TestNewEvent_UnmarshalableData(t *testing.T) {
	_, err := NewEvent("auth.user.registered", "u-1", "user", "auth-service", make(chan int))
	assert.Error(t, err)
}
