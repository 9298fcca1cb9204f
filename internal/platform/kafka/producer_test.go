package kafka

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cityledger/pkg/platform/events"
)

func TestToRecord(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e, err := events.New("org.cityledger", "PlacePropositionEvent", "7", map[string]string{"propId": "7"}, now)
	require.NoError(t, err)
	e.RequestID = "req-1"

	rec, err := toRecord("ledger", e)
	require.NoError(t, err)
	assert.Equal(t, "ledger", rec.Topic)
	assert.Equal(t, []byte("7"), rec.Key)
	assert.Equal(t, now, rec.Timestamp)

	headers := map[string]string{}
	for _, h := range rec.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "PlacePropositionEvent", headers[headerEventType])
	assert.Equal(t, e.ID.String(), headers[headerEventID])
	assert.Equal(t, "req-1", headers[headerRequestID])

	var decoded events.Event
	require.NoError(t, json.Unmarshal(rec.Value, &decoded))
	assert.Equal(t, e.ID, decoded.ID)
	assert.JSONEq(t, `{"propId":"7"}`, string(decoded.Payload))
}

func TestNewProducerValidates(t *testing.T) {
	_, err := NewProducer(nil, "topic")
	assert.Error(t, err)

	_, err = NewProducer([]string{"localhost:9092"}, "")
	assert.Error(t, err)
}
