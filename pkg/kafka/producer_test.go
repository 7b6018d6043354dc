package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/utafrali/storefront-cart/pkg/logger"
)

// --- Test Helpers ---

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func header(msg kafka.Message, key string) string {
	return NewHeaderCarrier(&msg.Headers).Get(key)
}

// --- Event tests ---

func TestNewCartEvent_Fields(t *testing.T) {
	type quantityData struct {
		ProdID   string `json:"prod_id"`
		Quantity int    `json:"quantity"`
	}

	ctx := logger.WithCorrelationID(context.Background(), "corr-abc")
	data := quantityData{ProdID: "11:000A:0:", Quantity: 3}
	event, err := NewCartEvent(ctx, "cart.quantity_committed", "sess-1", data)
	require.NoError(t, err)

	assert.NotEmpty(t, event.EventID)
	assert.Equal(t, "cart.quantity_committed", event.EventType)
	assert.Equal(t, "sess-1", event.SessionID)
	assert.Equal(t, Source, event.Source)
	assert.Equal(t, SchemaVersion, event.Version)
	assert.Equal(t, "corr-abc", event.CorrelationID)
	assert.Equal(t, []byte("sess-1"), event.Key())
	assert.WithinDuration(t, time.Now().UTC(), event.OccurredAt, 2*time.Second)

	var got quantityData
	require.NoError(t, json.Unmarshal(event.Data, &got))
	assert.Equal(t, data, got)
}

func TestNewCartEvent_WithoutCorrelation(t *testing.T) {
	event, err := NewCartEvent(context.Background(), "cart.items_deleted", "sess-2", nil)
	require.NoError(t, err)

	raw, err := event.Marshal()
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "correlation_id")
	assert.Contains(t, string(raw), `"session_id":"sess-2"`)
}

func TestNewCartEvent_Rejected(t *testing.T) {
	_, err := NewCartEvent(context.Background(), "cart.items_deleted", "", nil)
	require.Error(t, err)

	_, err = NewCartEvent(context.Background(), "cart.quantity_committed", "sess-1", make(chan int))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "marshal cart.quantity_committed payload")
}

// --- Topic tests ---

func TestTopic(t *testing.T) {
	assert.Equal(t, "storefront.cart.quantity_committed", Topic("cart", "quantity_committed"))
	assert.Equal(t, "storefront.cart.items_deleted", Topic("cart", "items_deleted"))
}

// --- Producer tests ---

func TestDefaultProducerConfig(t *testing.T) {
	brokers := []string{"broker1:9092", "broker2:9092"}
	cfg := DefaultProducerConfig(brokers)

	assert.Equal(t, brokers, cfg.Brokers)
	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, 10*time.Millisecond, cfg.BatchTimeout)
	assert.False(t, cfg.Async)
}

func TestNewProducer_CloseWithoutBroker(t *testing.T) {
	p := NewProducer(DefaultProducerConfig([]string{"localhost:19092"}), nil)
	require.NotNil(t, p)
	assert.Equal(t, []string{"localhost:19092"}, p.brokers)
	assert.NoError(t, p.Close())
}

func TestPublish_WritesKeyedMessageWithHeaders(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, nil, newTestLogger())

	ctx := logger.WithCorrelationID(context.Background(), "corr-1")
	event, err := NewCartEvent(ctx, "cart.quantity_committed", "sess-9", map[string]int{"quantity": 4})
	require.NoError(t, err)

	require.NoError(t, p.Publish(context.Background(), "storefront.cart.quantity_committed", event))

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, "storefront.cart.quantity_committed", msg.Topic)
	assert.Equal(t, []byte("sess-9"), msg.Key)
	assert.Equal(t, "cart.quantity_committed", header(msg, "event_type"))
	assert.Equal(t, "storefront-cart", header(msg, "source"))
	assert.Equal(t, "corr-1", header(msg, "correlation_id"))

	var decoded Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, event.EventID, decoded.EventID)
}

func TestPublish_InjectsTraceContext(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	ctx, span := tp.Tracer("test").Start(context.Background(), "publish")
	defer span.End()

	w := &fakeWriter{}
	p := newProducer(w, nil, newTestLogger())
	event, err := NewCartEvent(ctx, "cart.items_deleted", "sess-1", nil)
	require.NoError(t, err)

	require.NoError(t, p.Publish(ctx, "storefront.cart.items_deleted", event))
	require.Len(t, w.msgs, 1)
	assert.Contains(t, header(w.msgs[0], "traceparent"), span.SpanContext().TraceID().String())
}

func TestPublish_WriterError(t *testing.T) {
	topic := "storefront.test.publish_error"
	before := getCounterValue(t, "kafka_producer_publish_errors_total", topic)

	w := &fakeWriter{err: errors.New("leader not available")}
	p := newProducer(w, nil, newTestLogger())
	event, err := NewCartEvent(context.Background(), "test.event", "sess-1", nil)
	require.NoError(t, err)

	err = p.Publish(context.Background(), topic, event)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish event to "+topic)
	assert.InDelta(t, before+1, getCounterValue(t, "kafka_producer_publish_errors_total", topic), 0.001)
}

func TestProducer_Close(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, nil, newTestLogger())
	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestPingBrokers_NoBrokers(t *testing.T) {
	err := PingBrokers(t.Context(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no brokers configured")
}
