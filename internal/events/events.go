// Package events publishes finalized receipts to downstream consumers such as
// the printer bridge.
package events

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"

	"tindahan/backend/internal/domain"
)

// ReceiptEvent is the message body published after a successful checkout.
type ReceiptEvent struct {
	OrderID       int64          `json:"order_id"`
	BusinessDate  string         `json:"business_date"`
	PaymentMethod string         `json:"payment_method"`
	Total         domain.Money   `json:"total"`
	Lines         []domain.Order `json:"lines"`
	EscposBase64  string         `json:"escpos_base64"`
	PublishedAt   time.Time      `json:"published_at"`
}

type Publisher interface {
	PublishReceipt(ctx context.Context, event ReceiptEvent) error
}

type NoopPublisher struct{}

func (NoopPublisher) PublishReceipt(context.Context, ReceiptEvent) error {
	return nil
}

type PubSubPublisher struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

func NewPubSubPublisher(ctx context.Context, projectID string, topicName string, credentialsJSON string) (*PubSubPublisher, error) {
	var opts []option.ClientOption
	if strings.TrimSpace(credentialsJSON) != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(credentialsJSON)))
	}
	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, err
	}
	return &PubSubPublisher{client: client, topic: client.Topic(topicName)}, nil
}

func (p *PubSubPublisher) PublishReceipt(ctx context.Context, event ReceiptEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	result := p.topic.Publish(ctx, &pubsub.Message{
		Data: payload,
		Attributes: map[string]string{
			"type":     "receipt",
			"order_id": strconv.FormatInt(event.OrderID, 10),
		},
	})
	_, err = result.Get(ctx)
	return err
}

func (p *PubSubPublisher) Close() error {
	p.topic.Stop()
	return p.client.Close()
}

// RecordingPublisher keeps published receipts in memory.
type RecordingPublisher struct {
	mu       sync.Mutex
	receipts []ReceiptEvent
}

func (p *RecordingPublisher) PublishReceipt(_ context.Context, event ReceiptEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.receipts = append(p.receipts, event)
	return nil
}

func (p *RecordingPublisher) Receipts() []ReceiptEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ReceiptEvent(nil), p.receipts...)
}
