package kafka

import (
	"context"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Bus is a producer without a fixed topic; each message names its own.
// The order service publishes to several lifecycle topics through one Bus
// instead of holding a Producer per topic.
type Bus struct {
	w         *kafka.Writer
	log       *zap.Logger
	inbox     chan kafka.Message
	closeCh   chan struct{}
	closeOnce sync.Once
}

func NewBus(brokers []string, buf int, log *zap.Logger) *Bus {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bus{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		},
		log:     log,
		inbox:   make(chan kafka.Message, buf),
		closeCh: make(chan struct{}),
	}
}

func (b *Bus) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				b.closeInbox()
				b.flush()
				_ = b.w.Close()
				close(b.closeCh)
				return
			case m, ok := <-b.inbox:
				if !ok {
					b.flush()
					_ = b.w.Close()
					close(b.closeCh)
					return
				}
				b.write(m)
			}
		}
	}()
}

func (b *Bus) flush() {
	for m := range b.inbox {
		b.write(m)
	}
}

func (b *Bus) write(m kafka.Message) {
	if err := b.w.WriteMessages(context.Background(), m); err != nil {
		b.log.Error("kafka write failed", zap.Error(err),
			zap.String("topic", m.Topic), zap.ByteString("key", m.Key))
	}
}

func (b *Bus) Publish(topic string, key, value []byte, headers ...kafka.Header) {
	b.inbox <- kafka.Message{
		Topic:   topic,
		Key:     key,
		Value:   value,
		Time:    time.Now(),
		Headers: headers,
	}
}

// closeInbox is safe to call from both Close and the context branch of the
// run loop; whichever fires second is a no-op.
func (b *Bus) closeInbox() {
	b.closeOnce.Do(func() { close(b.inbox) })
}

func (b *Bus) Close()      { b.closeInbox() }
func (b *Bus) WaitClosed() { <-b.closeCh }
