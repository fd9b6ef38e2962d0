// Package marketdata publishes price updates from the consumer loop to
// external pub/sub backends.
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Aidin1998/pricefeed/internal/consumer"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
)

// PriceEvent is the payload written to every backend.
type PriceEvent struct {
	Symbol     string          `json:"symbol"`
	Price      decimal.Decimal `json:"price"`
	Seq        uint64          `json:"seq"`
	ReceivedAt time.Time       `json:"received_at"`
}

func eventFrom(u consumer.Update) PriceEvent {
	return PriceEvent{
		Symbol:     u.Quote.Symbol,
		Price:      u.Quote.Price,
		Seq:        u.Quote.Seq,
		ReceivedAt: u.Quote.ReceivedAt,
	}
}

// redisPublisher is the subset of *redis.Client the sink needs.
type redisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Close() error
}

// RedisSink publishes each update on a Redis channel. Use Redis for
// low-latency fan-out; nothing is retained.
type RedisSink struct {
	client  redisPublisher
	channel string
}

// NewRedisSink connects to addr and publishes on channel.
func NewRedisSink(addr, channel string) *RedisSink {
	return &RedisSink{
		client:  redis.NewClient(&redis.Options{Addr: addr}),
		channel: channel,
	}
}

// Name implements consumer.Sink.
func (r *RedisSink) Name() string { return "redis" }

// Observe implements consumer.Sink.
func (r *RedisSink) Observe(ctx context.Context, u consumer.Update) error {
	data, err := json.Marshal(eventFrom(u))
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", r.channel, err)
	}
	return nil
}

// Close releases the client.
func (r *RedisSink) Close() error {
	return r.client.Close()
}

// messageWriter is the subset of *kafka.Writer the sink needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink writes each update to a Kafka topic keyed by symbol, so updates
// for one symbol stay ordered within a partition.
type KafkaSink struct {
	writer messageWriter
}

// NewKafkaSink creates a writer for topic on brokers.
func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 10 * time.Millisecond,
			RequiredAcks: kafka.RequireOne,
		},
	}
}

// Name implements consumer.Sink.
func (k *KafkaSink) Name() string { return "kafka" }

// Observe implements consumer.Sink.
func (k *KafkaSink) Observe(ctx context.Context, u consumer.Update) error {
	data, err := json.Marshal(eventFrom(u))
	if err != nil {
		return err
	}
	return k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(u.Quote.Symbol),
		Value: data,
		Time:  u.Quote.ReceivedAt,
	})
}

// Close flushes and closes the writer.
func (k *KafkaSink) Close() error {
	return k.writer.Close()
}
