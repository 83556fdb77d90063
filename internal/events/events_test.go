package events

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeWrapsData(t *testing.T) {
	raw, err := Encode(TypePayoutRecorded, map[string]any{"campaign_id": "c1", "amount": 1000})
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(raw, &env))
	assert.Equal(t, TypePayoutRecorded, env.EventType)
	assert.NotEmpty(t, env.EventID)
	assert.JSONEq(t, `{"campaign_id":"c1","amount":1000}`, string(env.Data))
}

func TestMemoryPublisherCounts(t *testing.T) {
	p := &MemoryPublisher{}
	require.NoError(t, p.Publish(context.Background(), TypeRefundRecorded, []byte("{}"), "k1"))
	require.NoError(t, p.Publish(context.Background(), TypeRefundRecorded, []byte("{}"), "k2"))
	require.NoError(t, p.Publish(context.Background(), TypeCampaignClassified, []byte("{}"), "k3"))

	assert.Equal(t, 2, p.Count(TypeRefundRecorded))
	assert.Len(t, p.Messages(), 3)
	assert.Equal(t, "k3", p.Messages()[2].PartitionKey)
}

func TestKafkaPublisherTopicRouting(t *testing.T) {
	_, err := NewKafkaPublisher(nil, "settlement.events", nil)
	require.Error(t, err)

	p, err := NewKafkaPublisher([]string{"localhost:9092"}, "settlement.events", map[string]string{
		TypeRefundRecorded: "settlement.refunds",
	})
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, "settlement.refunds", p.topic(TypeRefundRecorded))
	assert.Equal(t, "settlement.events", p.topic(TypePayoutRecorded))
}
