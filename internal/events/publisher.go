package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/wolfman30/clinic-scheduling/internal/appointments"
	"github.com/wolfman30/clinic-scheduling/pkg/logging"
)

// Publisher hands envelopes to a downstream transport.
type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
}

const defaultMemoryCapacity = 256

// MemoryPublisher keeps the most recent envelopes in memory. It backs local
// development and tests when no queue is configured.
type MemoryPublisher struct {
	mu       sync.Mutex
	capacity int
	events   []Envelope
}

// NewMemoryPublisher keeps at most capacity envelopes (256 when <= 0).
func NewMemoryPublisher(capacity int) *MemoryPublisher {
	if capacity <= 0 {
		capacity = defaultMemoryCapacity
	}
	return &MemoryPublisher{capacity: capacity}
}

func (p *MemoryPublisher) Publish(_ context.Context, env Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, env)
	if over := len(p.events) - p.capacity; over > 0 {
		p.events = append([]Envelope(nil), p.events[over:]...)
	}
	return nil
}

// Events returns a copy of the retained envelopes, oldest first.
func (p *MemoryPublisher) Events() []Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Envelope, len(p.events))
	copy(out, p.events)
	return out
}

type sqsAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSPublisher sends each envelope as a JSON message body.
type SQSPublisher struct {
	client   sqsAPI
	queueURL string
}

// NewSQSPublisher creates a publisher around the provided SQS client.
func NewSQSPublisher(client sqsAPI, queueURL string) *SQSPublisher {
	if client == nil {
		panic("events: SQS client cannot be nil")
	}
	if queueURL == "" {
		panic("events: SQS queueURL cannot be empty")
	}
	return &SQSPublisher{client: client, queueURL: queueURL}
}

func (p *SQSPublisher) Publish(ctx context.Context, env Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("events: marshal envelope: %w", err)
	}
	_, err = p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqstypes.MessageAttributeValue{
			"event_type": {
				DataType:    aws.String("String"),
				StringValue: aws.String(env.EventType),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("events: failed to send SQS message: %w", err)
	}
	return nil
}

type eventMetrics interface {
	ObserveEvent(eventType string, published bool)
}

// Observer turns store changes into published events.
type Observer struct {
	publisher Publisher
	metrics   eventMetrics
	logger    *logging.Logger
}

// NewObserver wires publisher into the store. metrics may be nil.
func NewObserver(publisher Publisher, metrics eventMetrics, logger *logging.Logger) *Observer {
	if publisher == nil {
		panic("events: publisher required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Observer{publisher: publisher, metrics: metrics, logger: logger}
}

func (o *Observer) Observe(ctx context.Context, change appointments.Change) error {
	evt := FromChange(change)
	if evt == nil {
		return nil
	}
	env, err := NewEnvelope("appointment:"+change.Appointment.ID, change.IdempotencyKey, evt, WithTimestamp(change.OccurredAt))
	if err != nil {
		return err
	}
	err = o.publisher.Publish(ctx, env)
	if o.metrics != nil {
		o.metrics.ObserveEvent(env.EventType, err == nil)
	}
	if err != nil {
		return err
	}
	o.logger.Debug("appointment event published", "event_type", env.EventType, "event_id", env.EventID.String())
	return nil
}
