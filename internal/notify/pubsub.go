package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"

	"github.com/josh-kwaku/agency-ledger/internal/logging"
)

const eventPaymentReceived = "payment.received"

type PubSubNotifier struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

// NewPubSubNotifier uses Application Default Credentials unless a
// credentials file is given.
func NewPubSubNotifier(ctx context.Context, projectID, topic, credentialsFile string) (*PubSubNotifier, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewPubSubNotifier: %w", err)
	}

	t := client.Topic(topic)
	ok, err := t.Exists(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("NewPubSubNotifier: topic %q: %w", topic, err)
	}
	if !ok {
		if t, err = client.CreateTopic(ctx, topic); err != nil {
			client.Close()
			return nil, fmt.Errorf("NewPubSubNotifier: create topic %q: %w", topic, err)
		}
	}

	return &PubSubNotifier{client: client, topic: t}, nil
}

func (n *PubSubNotifier) PaymentReceived(ctx context.Context, event PaymentReceived) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("PaymentReceived: marshal: %w", err)
	}

	result := n.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: messageAttributes(ctx, event),
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("PaymentReceived: publish: %w", err)
	}
	return nil
}

func messageAttributes(ctx context.Context, event PaymentReceived) map[string]string {
	attrs := map[string]string{
		"event":      eventPaymentReceived,
		"payment_id": event.PaymentID.String(),
		"currency":   event.Currency,
	}
	if id := logging.RequestID(ctx); id != "" {
		attrs["request_id"] = id
	}
	return attrs
}

// Close flushes pending publishes.
func (n *PubSubNotifier) Close() error {
	n.topic.Stop()
	return n.client.Close()
}
