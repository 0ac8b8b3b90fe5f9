package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/iliyamo/deckvault/internal/model"
)

// DeckUpserter stores imported decks keyed by source URL.
type DeckUpserter interface {
	UpsertBySourceURL(ctx context.Context, d model.Deck) error
}

// ImportResultConsumer reads deck.import.completed and writes each deck
// into the catalog.
type ImportResultConsumer struct {
	url        string
	decks      DeckUpserter
	invalidate func(ctx context.Context) error // drops cached catalog pages; may be nil
	log        *zap.Logger
}

func NewImportResultConsumer(url string, decks DeckUpserter, invalidate func(context.Context) error, log *zap.Logger) *ImportResultConsumer {
	return &ImportResultConsumer{
		url:        url,
		decks:      decks,
		invalidate: invalidate,
		log:        log.With(zap.String("component", "import-consumer")),
	}
}

// Run connects to the broker and consumes until ctx is cancelled,
// reconnecting with exponential backoff capped at 30s.
func (c *ImportResultConsumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.log.Warn("dial broker failed", zap.Error(err), zap.Duration("retry_in", backoff))
			if !sleepCtx(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Warn("consume loop ended, reconnecting", zap.Error(err))
		if !sleepCtx(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (c *ImportResultConsumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(20, 0, false); err != nil {
		c.log.Warn("set qos failed", zap.Error(err))
	}
	if _, err := ch.QueueDeclare(DeckImportCompletedQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.ConsumeWithContext(ctx, DeckImportCompletedQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for d := range msgs {
		if err := c.HandleMessage(ctx, d.Body); err != nil {
			c.log.Error("handle import result failed", zap.Error(err))
			_ = d.Nack(false, false)
			continue
		}
		_ = d.Ack(false)
	}
	return errors.New("deliveries channel closed")
}

// HandleMessage decodes one import result and upserts the deck.  An
// unknown or empty min_tier gates the deck at Citizen.
func (c *ImportResultConsumer) HandleMessage(ctx context.Context, body []byte) error {
	var ev DeckImportCompleted
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	ev.SourceURL = strings.TrimSpace(ev.SourceURL)
	if ev.SourceURL == "" || strings.TrimSpace(ev.Title) == "" {
		return fmt.Errorf("import result %q: source_url and title are required", ev.RequestID)
	}

	tier := model.TierCitizen
	if ev.MinTier != "" {
		t, err := model.ParseTier(ev.MinTier)
		if err != nil {
			c.log.Warn("unknown min_tier in import result, using Citizen",
				zap.String("request_id", ev.RequestID), zap.String("min_tier", ev.MinTier))
		} else {
			tier = t
		}
	}

	if err := c.decks.UpsertBySourceURL(ctx, model.Deck{
		Title:         ev.Title,
		Commander:     ev.Commander,
		ColorIdentity: strings.ToUpper(ev.ColorIdentity),
		SourceURL:     ev.SourceURL,
		Description:   ev.Description,
		MinTier:       tier,
	}); err != nil {
		return fmt.Errorf("upsert deck: %w", err)
	}
	if c.invalidate != nil {
		if err := c.invalidate(ctx); err != nil {
			c.log.Warn("cache invalidation failed", zap.Error(err))
		}
	}
	c.log.Info("deck imported", zap.String("request_id", ev.RequestID), zap.String("source_url", ev.SourceURL))
	return nil
}
