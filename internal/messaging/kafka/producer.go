package kafka

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

const (
	clientID          = "shop-service"
	producerMaxRetry  = 5
	producerRetryWait = 200 * time.Millisecond
)

// HeaderEventType дублирует тип события в заголовке, чтобы потребители могли фильтровать без разбора JSON.
const HeaderEventType = "x-event-type"

var errNoBrokers = errors.New("kafka brokers are not configured")

// Message описывает одну публикацию: Value сериализуется в JSON.
type Message struct {
	Topic     string
	Key       string
	EventType string
	Value     any
}

// Producer публикует события магазина в Kafka синхронно.
type Producer struct {
	producer sarama.SyncProducer
	logger   *log.Entry
}

// newSaramaConfig настраивает идемпотентную доставку с подтверждением от всех реплик.
func newSaramaConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.ClientID = clientID
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = producerMaxRetry
	config.Producer.Retry.Backoff = producerRetryWait
	config.Producer.Return.Successes = true
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Idempotent = true
	// идемпотентный producer требует одного запроса в полёте
	config.Net.MaxOpenRequests = 1
	return config
}

// NewProducer подключается к брокерам.
func NewProducer(brokers []string) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, errNoBrokers
	}

	syncProducer, err := sarama.NewSyncProducer(brokers, newSaramaConfig())
	if err != nil {
		return nil, fmt.Errorf("connect kafka producer to %v: %w", brokers, err)
	}
	return NewProducerFromSync(syncProducer), nil
}

// NewProducerFromSync оборачивает готовый sarama.SyncProducer (например, mocks.SyncProducer).
func NewProducerFromSync(syncProducer sarama.SyncProducer) *Producer {
	return &Producer{
		producer: syncProducer,
		logger:   log.WithField("component", "kafka-producer"),
	}
}

// PublishEvent публикует событие без типа в заголовках. Используется каналом уведомлений.
func (p *Producer) PublishEvent(topic string, key string, event any) error {
	return p.Publish(Message{Topic: topic, Key: key, Value: event})
}

// Publish сериализует msg.Value и ждёт подтверждения брокера.
func (p *Producer) Publish(msg Message) error {
	value, err := json.Marshal(msg.Value)
	if err != nil {
		return fmt.Errorf("marshal %s message: %w", msg.Topic, err)
	}

	record := &sarama.ProducerMessage{
		Topic:     msg.Topic,
		Key:       sarama.StringEncoder(msg.Key),
		Value:     sarama.ByteEncoder(value),
		Timestamp: time.Now().UTC(),
	}
	if msg.EventType != "" {
		record.Headers = []sarama.RecordHeader{{Key: []byte(HeaderEventType), Value: []byte(msg.EventType)}}
	}

	fields := log.Fields{"topic": msg.Topic, "key": msg.Key, "event_type": msg.EventType}
	partition, offset, err := p.producer.SendMessage(record)
	if err != nil {
		p.logger.WithError(err).WithFields(fields).Error("kafka publish failed")
		return fmt.Errorf("send to %s: %w", msg.Topic, err)
	}

	p.logger.WithFields(fields).WithFields(log.Fields{
		"partition": partition,
		"offset":    offset,
	}).Debug("kafka message acknowledged")
	return nil
}

// Close закрывает producer.
func (p *Producer) Close() error {
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("close kafka producer: %w", err)
	}
	return nil
}
