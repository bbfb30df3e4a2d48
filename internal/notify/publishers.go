package notify

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// DefaultChannel используется, если канал Redis не задан.
const DefaultChannel = "ledger_events"

// RedisPublisher публикует события в канал Redis pub/sub.
type RedisPublisher struct {
	rdb     *redis.Client
	channel string
}

// NewRedisPublisher создаёт publisher поверх клиента Redis.
func NewRedisPublisher(rdb *redis.Client, channel string) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisPublisher{rdb: rdb, channel: channel}
}

// Publish отправляет событие в канал Redis.
func (p *RedisPublisher) Publish(ctx context.Context, e Event) error {
	payload, err := e.encode()
	if err != nil {
		return err
	}
	if err := p.rdb.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Close закрывает клиент Redis.
func (p *RedisPublisher) Close() error {
	return p.rdb.Close()
}

// messageWriter покрывает используемую часть kafka.Writer.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher публикует события в топик Kafka. Ключом сообщения служит идентификатор пользователя,
// поэтому события одного пользователя попадают в одну партицию.
type KafkaPublisher struct {
	w messageWriter
}

// NewKafkaWriter создаёт writer для публикации событий.
func NewKafkaWriter(brokers []string, topic string, logger *zap.Logger) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		MaxAttempts:  3,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Warn(fmt.Sprintf(msg, args...))
		}),
	}
}

// NewKafkaPublisher создаёт publisher поверх writer.
func NewKafkaPublisher(w messageWriter) *KafkaPublisher {
	return &KafkaPublisher{w: w}
}

// Publish записывает событие в топик Kafka.
func (p *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	payload, err := e.encode()
	if err != nil {
		return err
	}

	err = p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatInt(e.UserID, 10)),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(e.Type)},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to write kafka message: %w", err)
	}
	return nil
}

// Close закрывает writer.
func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}

// LogPublisher пишет события в лог. Используется, когда брокер не настроен.
type LogPublisher struct {
	logger *zap.Logger
}

// NewLogPublisher создаёт publisher, пишущий события в лог.
func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

// Publish пишет событие в лог.
func (p *LogPublisher) Publish(_ context.Context, e Event) error {
	p.logger.Info("notification",
		zap.String("event", e.Type),
		zap.Int64("user_id", e.UserID),
		zap.Any("payload", e.Payload),
	)
	return nil
}

// Close ничего не делает.
func (p *LogPublisher) Close() error { return nil }
