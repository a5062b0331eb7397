package notify

import (
	"context"
	"fmt"
	"strconv"

	log "github.com/sirupsen/logrus"
)

// EventPublisher описывает минимальный интерфейс Kafka producer.
type EventPublisher interface {
	PublishEvent(topic string, key string, event any) error
}

// KafkaChannel передаёт уведомление во внешнюю службу доставки через topic.
// Ключом сообщения служит id участника, поэтому уведомления одного участника упорядочены.
type KafkaChannel struct {
	publisher EventPublisher
	topic     string
}

// NewKafkaChannel создаёт канал, публикующий в topic.
func NewKafkaChannel(publisher EventPublisher, topic string) *KafkaChannel {
	return &KafkaChannel{publisher: publisher, topic: topic}
}

func (c *KafkaChannel) Deliver(ctx context.Context, notice Notice) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.publisher == nil {
		return fmt.Errorf("kafka notification channel is not initialized")
	}
	return c.publisher.PublishEvent(c.topic, strconv.FormatInt(notice.MemberID, 10), notice)
}

// LogChannel пишет уведомление в лог. Используется без брокера.
type LogChannel struct {
	logger *log.Entry
}

// NewLogChannel создаёт LogChannel.
func NewLogChannel(logger *log.Entry) *LogChannel {
	if logger == nil {
		logger = log.WithField("component", "notify-log-channel")
	}
	return &LogChannel{logger: logger}
}

func (c *LogChannel) Deliver(_ context.Context, notice Notice) error {
	c.logger.WithFields(log.Fields{
		"notice_id": notice.ID,
		"channel":   notice.Channel,
		"recipient": notice.Recipient,
		"order_id":  notice.OrderID,
		"total":     notice.TotalPrice,
	}).Info(notice.Subject)
	return nil
}
