package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Settlement event types consumed by the notification service.
const (
	TypeCampaignClassified = "campaign.classified"
	TypePayoutRecorded     = "payout.recorded"
	TypeRefundRecorded     = "refund.recorded"
)

// Envelope is the JSON body published for every settlement event.
type Envelope struct {
	EventID    uuid.UUID       `json:"event_id"`
	EventType  string          `json:"event_type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

// Publisher delivers settlement events. Publishing happens after commit and is
// best-effort; the audit log stays authoritative.
type Publisher interface {
	Publish(ctx context.Context, eventType string, payload []byte, partitionKey string) error
	Close() error
}

// Encode wraps data in an Envelope.
func Encode(eventType string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s data: %w", eventType, err)
	}
	return json.Marshal(Envelope{
		EventID:    uuid.New(),
		EventType:  eventType,
		OccurredAt: time.Now().UTC(),
		Data:       raw,
	})
}

// NopPublisher drops every event. Used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, []byte, string) error { return nil }
func (NopPublisher) Close() error                                         { return nil }

// Message is an event captured by MemoryPublisher.
type Message struct {
	EventType    string
	Payload      []byte
	PartitionKey string
}

// MemoryPublisher records events in memory.
type MemoryPublisher struct {
	mu       sync.Mutex
	messages []Message
}

func (p *MemoryPublisher) Publish(_ context.Context, eventType string, payload []byte, partitionKey string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, Message{EventType: eventType, Payload: payload, PartitionKey: partitionKey})
	return nil
}

func (p *MemoryPublisher) Close() error { return nil }

// Messages returns a copy of the recorded events.
func (p *MemoryPublisher) Messages() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Message, len(p.messages))
	copy(out, p.messages)
	return out
}

// Count returns how many events of eventType were recorded.
func (p *MemoryPublisher) Count(eventType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, m := range p.messages {
		if m.EventType == eventType {
			n++
		}
	}
	return n
}
