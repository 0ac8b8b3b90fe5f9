// Package service publishes domain events to RabbitMQ.  Publishing is
// best effort: errors are logged and returned so callers may ignore them
// without interrupting the request.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/iliyamo/deckvault/internal/queue"
)

// Publisher dials the broker per message.  Event volume is low (logins and
// admin imports), so no connection is held open between publishes.
type Publisher struct {
	url string
	log *zap.Logger
}

func NewPublisher(url string, log *zap.Logger) *Publisher {
	return &Publisher{url: url, log: log.With(zap.String("component", "publisher"))}
}

// PublishDeckImportRequested asks the external scraper to import a deck.
func (p *Publisher) PublishDeckImportRequested(ctx context.Context, ev queue.DeckImportRequested) error {
	return p.publish(ctx, queue.DeckImportRequestedQueue, ev)
}

// PublishProfileSynced announces a completed Patreon link.
func (p *Publisher) PublishProfileSynced(ctx context.Context, ev queue.ProfileSynced) error {
	return p.publish(ctx, queue.ProfileSyncedQueue, ev)
}

func (p *Publisher) publish(ctx context.Context, queueName string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", queueName, err)
	}

	conn, err := amqp.Dial(p.url)
	if err != nil {
		p.log.Warn("dial failed", zap.String("queue", queueName), zap.Error(err))
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		p.log.Warn("channel open failed", zap.String("queue", queueName), zap.Error(err))
		return err
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		p.log.Warn("queue declare failed", zap.String("queue", queueName), zap.Error(err))
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", queueName, false, false, pub); err != nil {
		p.log.Warn("publish failed", zap.String("queue", queueName), zap.Error(err))
		return err
	}
	return nil
}
