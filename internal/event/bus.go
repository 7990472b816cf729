// Package event publishes order lifecycle events through watermill, either
// in-process or to Kafka.
package event

import (
	"context"

	"github.com/IBM/sarama"
	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/oralcare-shop/internal/domain/order"
)

// Config selects the transport. An empty broker list keeps events in process.
type Config struct {
	Brokers       []string `yaml:"brokers"`
	Topic         string   `yaml:"topic" default:"shop.orders"`
	ConsumerGroup string   `yaml:"consumer_group" default:"shop-audit"`
	ClientID      string   `yaml:"client_id" default:"oralcare-shop"`
}

// Bus publishes order events and can subscribe to them.
type Bus struct {
	topic      string
	publisher  message.Publisher
	subscriber message.Subscriber
}

var _ order.Publisher = (*Bus)(nil)

// New connects the bus described by cfg.
func New(cfg Config, lg *zap.Logger) (*Bus, error) {
	logger := NewLogger(lg)
	topic := cfg.Topic
	if topic == "" {
		topic = "shop.orders"
	}

	if len(cfg.Brokers) == 0 {
		ch := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, logger)
		return &Bus{topic: topic, publisher: ch, subscriber: ch}, nil
	}

	pubCfg := kafka.DefaultSaramaSyncPublisherConfig()
	pubCfg.ClientID = cfg.ClientID
	pubCfg.Producer.RequiredAcks = sarama.WaitForAll
	pubCfg.Producer.Retry.Max = 5

	pub, err := kafka.NewPublisher(kafka.PublisherConfig{
		Brokers:               cfg.Brokers,
		Marshaler:             kafka.DefaultMarshaler{},
		OverwriteSaramaConfig: pubCfg,
	}, logger)
	if err != nil {
		return nil, errors.Wrap(err, "kafka publisher")
	}

	subCfg := kafka.DefaultSaramaSubscriberConfig()
	subCfg.ClientID = cfg.ClientID
	subCfg.Consumer.Offsets.Initial = sarama.OffsetOldest

	sub, err := kafka.NewSubscriber(kafka.SubscriberConfig{
		Brokers:               cfg.Brokers,
		Unmarshaler:           kafka.DefaultMarshaler{},
		ConsumerGroup:         cfg.ConsumerGroup,
		OverwriteSaramaConfig: subCfg,
	}, logger)
	if err != nil {
		_ = pub.Close()
		return nil, errors.Wrap(err, "kafka subscriber")
	}
	return &Bus{topic: topic, publisher: pub, subscriber: sub}, nil
}

// Publish sends e to the configured topic.
func (b *Bus) Publish(ctx context.Context, e order.Event) error {
	msg := message.NewMessage(uuid.NewString(), Encode(e))
	msg.Metadata.Set("type", string(e.Type))
	msg.Metadata.Set("order", e.Number)
	msg.SetContext(ctx)
	if err := b.publisher.Publish(b.topic, msg); err != nil {
		return errors.Wrapf(err, "publish %s", e.Type)
	}
	return nil
}

// Handler processes one decoded event.
type Handler func(ctx context.Context, e order.Event) error

// Consume subscribes to the topic and calls h for every event until ctx is
// done. Messages are acked on success and nacked otherwise.
func (b *Bus) Consume(ctx context.Context, lg *zap.Logger, h Handler) error {
	messages, err := b.subscriber.Subscribe(ctx, b.topic)
	if err != nil {
		return errors.Wrap(err, "subscribe")
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			e, err := Decode(msg.Payload)
			if err != nil {
				lg.Warn("Drop malformed event", zap.String("uuid", msg.UUID), zap.Error(err))
				msg.Ack()
				continue
			}
			if err := h(msg.Context(), e); err != nil {
				lg.Warn("Handle event", zap.String("type", string(e.Type)), zap.Error(err))
				msg.Nack()
				continue
			}
			msg.Ack()
		}
	}
}

// Close releases the publisher and subscriber.
func (b *Bus) Close() error {
	pubErr := b.publisher.Close()
	if sub, ok := b.subscriber.(message.Publisher); ok && sub == b.publisher {
		return pubErr
	}
	if err := b.subscriber.Close(); err != nil && pubErr == nil {
		return err
	}
	return pubErr
}

// AuditLog returns a Handler that logs every event.
func AuditLog(lg *zap.Logger) Handler {
	return func(_ context.Context, e order.Event) error {
		lg.Info("Order event",
			zap.String("type", string(e.Type)),
			zap.String("order", e.Number),
			zap.Int64("user_id", e.UserID),
			zap.String("status", string(e.Status)),
			zap.Int64("amount", e.Amount),
			zap.Time("at", e.At),
		)
		return nil
	}
}
