package journal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/IBM/sarama"
)

// Kafka publishes lifecycle events to a Kafka topic as JSON messages
// keyed by lock name, so one name's events land on one partition in
// order.
type Kafka struct {
	producer sarama.SyncProducer
	topic    string
}

// NewKafka connects to the brokers and returns a Kafka journal.
func NewKafka(brokers []string, topic string, cfg *sarama.Config) (*Kafka, error) {
	if cfg == nil {
		cfg = sarama.NewConfig()
	}
	if !cfg.Producer.Return.Successes {
		cfg.Producer.Return.Successes = true
	}
	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, err
	}
	return &Kafka{producer: producer, topic: topic}, nil
}

// Record implements Journal.Record.
func (k *Kafka) Record(ctx context.Context, ev Event) error {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	msg := &sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(ev.Name),
		Value: sarama.ByteEncoder(data),
	}
	_, _, err = k.producer.SendMessage(msg)
	return err
}

// Close shuts the producer down.
func (k *Kafka) Close() error {
	return k.producer.Close()
}
