package kafka

import (
	"context"
	"encoding/json"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"mediaCompressor/queue"
)

var _ queue.Consumer = (*Consumer)(nil)

type Consumer struct {
	consumer sarama.ConsumerGroup
	topic    string
	logger   *zap.Logger
}

func NewConsumer(brokers []string, groupID, topic string, logger *zap.Logger) (*Consumer, error) {
	config := sarama.NewConfig()
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	config.Consumer.Offsets.Initial = sarama.OffsetOldest

	c, err := sarama.NewConsumerGroup(brokers, groupID, config)
	if err != nil {
		return nil, err
	}

	return &Consumer{consumer: c, topic: topic, logger: logger.Named("kafka")}, nil
}

type consumerHandler struct {
	fn     queue.MessageHandler
	ctx    context.Context
	logger *zap.Logger
}

func (h *consumerHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *consumerHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim marks each message once the handler has accepted it. Duplicate
// deliveries after a rebalance are harmless: the task store admits one claim per task.
func (h *consumerHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			var taskMsg queue.TaskMessage
			if err := json.Unmarshal(msg.Value, &taskMsg); err != nil {
				h.logger.Warn("Dropping malformed task message",
					zap.Int64("offset", msg.Offset),
					zap.Error(err),
				)
				session.MarkMessage(msg, "")
				continue
			}
			if !h.handOff(session.Context(), &taskMsg) {
				return nil
			}
			session.MarkMessage(msg, "")
		case <-session.Context().Done():
			return nil
		}
	}
}

// handOff waits for the handler to accept msg. It gives up when the session ends so a
// full worker pool cannot stall a rebalance; the message is then left unmarked for the
// next owner of the partition.
func (h *consumerHandler) handOff(session context.Context, msg *queue.TaskMessage) bool {
	accepted := make(chan struct{})
	go func() {
		defer close(accepted)
		h.fn(h.ctx, msg)
	}()

	select {
	case <-accepted:
		return true
	case <-session.Done():
		h.logger.Info("Session ended before task was accepted", zap.String("task_id", msg.TaskID))
		return false
	}
}

// Consume joins the consumer group and keeps rejoining after rebalances until ctx ends.
func (c *Consumer) Consume(ctx context.Context, handler queue.MessageHandler) error {
	h := &consumerHandler{fn: handler, ctx: ctx, logger: c.logger}
	for {
		if err := c.consumer.Consume(ctx, []string{c.topic}, h); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (c *Consumer) Close() error {
	return c.consumer.Close()
}
