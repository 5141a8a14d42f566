package handler

import (
	"encoding/json"

	"github.com/IBM/sarama"

	"github.com/willtech3/circulation-service/pkg/circuitbreaker"
)

type Enqueuer interface {
	Enqueue(topic string, v interface{}) error
}

// NewEnqueuer wraps the producer in a circuit breaker so a dead broker
// fails fast instead of stalling every action on publish timeouts.
func NewEnqueuer(producer sarama.SyncProducer, cb circuitbreaker.CircuitBreaker) Enqueuer {
	return &enqueuerImpl{
		producer: producer,
		cb:       cb,
	}
}

type enqueuerImpl struct {
	producer sarama.SyncProducer
	cb       circuitbreaker.CircuitBreaker
}

func (q *enqueuerImpl) Enqueue(topic string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	msg := &sarama.ProducerMessage{Topic: topic, Value: sarama.StringEncoder(data)}
	return q.cb.Call(func() error {
		_, _, err := q.producer.SendMessage(msg)
		return err
	})
}
