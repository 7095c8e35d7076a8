package kafka

import (
	"context"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type Producer interface {
	SendMessage(ctx context.Context, topic string, key []byte, value []byte) error
	Close() error
}

// WriterProducer publishes through a shared kafka-go writer; the topic is set
// per message so one writer serves every topic the outbox carries.
type WriterProducer struct {
	writer *kafkago.Writer
}

func NewWriterProducer(brokers []string) *WriterProducer {
	return &WriterProducer{
		writer: &kafkago.Writer{
			Addr:         kafkago.TCP(brokers...),
			Balancer:     &kafkago.LeastBytes{},
			RequiredAcks: kafkago.RequireOne,
			BatchTimeout: 50 * time.Millisecond,
		},
	}
}

func (p *WriterProducer) SendMessage(ctx context.Context, topic string, key []byte, value []byte) error {
	return p.writer.WriteMessages(ctx, kafkago.Message{
		Topic: topic,
		Key:   key,
		Value: value,
	})
}

func (p *WriterProducer) Close() error {
	return p.writer.Close()
}

// ConsoleProducer logs messages instead of publishing them; used in local
// development when no broker is running.
type ConsoleProducer struct {
	log *zap.Logger
}

func NewConsoleProducer(log *zap.Logger) *ConsoleProducer {
	log.Info("initialized console kafka producer")
	return &ConsoleProducer{log: log}
}

func (p *ConsoleProducer) SendMessage(ctx context.Context, topic string, key []byte, value []byte) error {
	select {
	case <-time.After(50 * time.Millisecond):
		p.log.Info("kafka message (console)",
			zap.String("topic", topic),
			zap.ByteString("key", key),
			zap.ByteString("value", value))
		return nil
	case <-ctx.Done():
		p.log.Warn("kafka send cancelled",
			zap.String("topic", topic),
			zap.ByteString("key", key))
		return ctx.Err()
	}
}

func (p *ConsoleProducer) Close() error {
	p.log.Info("closing console kafka producer")
	return nil
}
