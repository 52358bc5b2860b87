package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProducerRequiresBrokersAndTopic(t *testing.T) {
	_, err := NewProducer(nil, "events")
	assert.ErrorContains(t, err, "broker")

	_, err = NewProducer([]string{"localhost:9092"}, "")
	assert.ErrorContains(t, err, "topic")
}

func TestToRecord(t *testing.T) {
	record := toRecord("events", Message{
		Key:     "42",
		Value:   []byte(`{"id":"e1"}`),
		Headers: map[string]string{"event-type": "profile.upserted"},
	})

	assert.Equal(t, "events", record.Topic)
	assert.Equal(t, []byte("42"), record.Key)
	assert.JSONEq(t, `{"id":"e1"}`, string(record.Value))
	require.Len(t, record.Headers, 1)
	assert.Equal(t, "event-type", record.Headers[0].Key)
	assert.Equal(t, []byte("profile.upserted"), record.Headers[0].Value)
}
