package kafka

import (
	"context"
	"encoding/json"

	"github.com/IBM/sarama"

	"mediaCompressor/queue"
)

var _ queue.Publisher = (*producer)(nil)

type producer struct {
	producer sarama.SyncProducer
	topic    string
}

func NewProducer(brokers []string, topic string) (queue.Publisher, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true

	p, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, err
	}

	return &producer{producer: p, topic: topic}, nil
}

// SendTaskMessage keys messages by task id so redeliveries land on one partition.
func (p *producer) SendTaskMessage(ctx context.Context, message *queue.TaskMessage) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(message.TaskID),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("trace_id"), Value: []byte(message.TraceID)},
		},
	}

	_, _, err = p.producer.SendMessage(msg)
	return err
}

func (p *producer) Close() error {
	return p.producer.Close()
}
