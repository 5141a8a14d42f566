package kafka

import (
	"context"
	"time"

	"github.com/IBM/sarama"
)

const (
	CirculationTopic         = "circulation-events"
	CirculationConsumerGroup = "circulation-audit"
)

type Config struct {
	Addrs []string `envconfig:"KAFKA_ADDRS" default:"localhost:9092"`
}

// EventCirculation is the audit record published after every
// successful circulation action.
type EventCirculation struct {
	Timestamp  time.Time `json:"timestamp"`
	EventType  string    `json:"eventType"`
	PatronID   int64     `json:"patronId"`
	CatalogKey string    `json:"catalogKey"`
	RecordUID  string    `json:"recordUid"`
}

const (
	EventCheckout = "CHECKOUT"
	EventReturn   = "RETURN"
	EventReserve  = "RESERVE"
	EventCancel   = "CANCEL"
)

func NewProducer(cfg Config) (sarama.SyncProducer, error) {
	defaultCfg := sarama.NewConfig()

	defaultCfg.Producer.RequiredAcks = sarama.WaitForAll
	defaultCfg.Producer.Return.Successes = true

	return sarama.NewSyncProducer(cfg.Addrs, defaultCfg)
}

func NewConsumer(cfg Config, group string) (sarama.ConsumerGroup, error) {
	defaultCfg := sarama.NewConfig()

	defaultCfg.Consumer.Offsets.Initial = sarama.OffsetOldest

	return sarama.NewConsumerGroup(cfg.Addrs, group, defaultCfg)
}

// Consume loops the consumer group over topic until ctx is done.
func Consume(ctx context.Context, cg sarama.ConsumerGroup, h sarama.ConsumerGroupHandler, topic string) {
	for {
		if err := cg.Consume(ctx, []string{topic}, h); err != nil {
			return
		}
		if ctx.Err() != nil {
			return
		}
	}
}
