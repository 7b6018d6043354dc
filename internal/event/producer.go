// Package event publishes cart session mutations to Kafka.
package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/utafrali/storefront-cart/internal/domain"
	pkgkafka "github.com/utafrali/storefront-cart/pkg/kafka"
)

// Kafka topics for cart session events.
var (
	TopicQuantityCommitted = pkgkafka.Topic("cart", "quantity_committed")
	TopicItemsDeleted      = pkgkafka.Topic("cart", "items_deleted")
)

// Event type names carried in the envelope.
const (
	TypeQuantityCommitted = "cart.quantity_committed"
	TypeItemsDeleted      = "cart.items_deleted"
)

// QuantityCommittedData is the payload of a cart.quantity_committed event.
type QuantityCommittedData struct {
	SessionID       string `json:"session_id"`
	ProductNo       int64  `json:"product_no"`
	OptionID        string `json:"option_id"`
	BasketProductNo int64  `json:"basket_product_no"`
	ProdID          string `json:"prod_id"`
	PreviousQty     int    `json:"previous_quantity"`
	Quantity        int    `json:"quantity"`
}

// ItemsDeletedData is the payload of a cart.items_deleted event.
type ItemsDeletedData struct {
	SessionID string                `json:"session_id"`
	Products  []domain.DeleteTarget `json:"products"`
}

// Publisher sends an event envelope to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes cart session events. It satisfies session.Notifier.
type Producer struct {
	publisher Publisher
	logger    *slog.Logger
}

// NewProducer creates a cart event producer.
func NewProducer(publisher Publisher, logger *slog.Logger) *Producer {
	return &Producer{publisher: publisher, logger: logger}
}

// QuantityCommitted publishes a cart.quantity_committed event.
func (p *Producer) QuantityCommitted(ctx context.Context, sessionID string, item domain.LineItem, quantity int) error {
	data := QuantityCommittedData{
		SessionID:       sessionID,
		ProductNo:       item.ProductNo,
		OptionID:        item.OptionID,
		BasketProductNo: item.BasketProductNo,
		ProdID:          item.ProductKey(),
		PreviousQty:     item.Quantity,
		Quantity:        quantity,
	}
	if err := p.publish(ctx, TopicQuantityCommitted, TypeQuantityCommitted, sessionID, data); err != nil {
		return err
	}

	p.logger.DebugContext(ctx, "published cart.quantity_committed event",
		slog.String("session_id", sessionID),
		slog.String("prod_id", data.ProdID),
		slog.Int("quantity", quantity),
	)
	return nil
}

// ItemsDeleted publishes a cart.items_deleted event.
func (p *Producer) ItemsDeleted(ctx context.Context, sessionID string, targets []domain.DeleteTarget) error {
	data := ItemsDeletedData{SessionID: sessionID, Products: targets}
	if err := p.publish(ctx, TopicItemsDeleted, TypeItemsDeleted, sessionID, data); err != nil {
		return err
	}

	p.logger.DebugContext(ctx, "published cart.items_deleted event",
		slog.String("session_id", sessionID),
		slog.Int("count", len(targets)),
	)
	return nil
}

func (p *Producer) publish(ctx context.Context, topic, eventType, sessionID string, data any) error {
	event, err := pkgkafka.NewCartEvent(ctx, eventType, sessionID, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", eventType, err)
	}

	if err := p.publisher.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", eventType, err)
	}
	return nil
}
