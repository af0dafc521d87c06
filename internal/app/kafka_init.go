package app

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/wholesale/internal/domain"
	"github.com/vladislavdragonenkov/wholesale/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/wholesale/internal/service/outbox"
)

// initKafkaProducer создаёт producer, если брокеры заданы. Пустой список даёт nil, nil.
func initKafkaProducer(brokers []string, clientID string, logger *log.Entry) (*kafka.Producer, error) {
	if len(brokers) == 0 {
		return nil, nil
	}

	producer, err := kafka.NewProducer(brokers, clientID)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		return nil, err
	}

	logger.WithField("brokers", brokers).Info("kafka producer initialized")
	return producer, nil
}

// closeKafka закрывает Kafka producer если он не nil.
func closeKafka(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}

	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
	} else {
		logger.Info("kafka producer closed")
	}
}

// outboxRoutes раскладывает потоки outbox по topic'ам. Без Kafka оба потока
// пишутся в лог и помечаются отправленными, чтобы outbox не рос.
func outboxRoutes(producer *kafka.Producer, logger *log.Entry) outbox.Routes {
	if producer == nil {
		return outbox.Routes{Lifecycle: &logPublisher{logger: logger}}
	}
	return outbox.Routes{
		Lifecycle:     kafka.NewTopicPublisher(producer, kafka.TopicOrderEvents),
		Notifications: kafka.NewTopicPublisher(producer, kafka.TopicNotifications),
		DeadLetter:    kafka.NewTopicPublisher(producer, kafka.TopicDeadLetterQueue),
	}
}

type logPublisher struct {
	logger *log.Entry
}

func (p *logPublisher) Publish(event domain.OutboxMessage) error {
	p.logger.WithFields(log.Fields{
		"stream":       event.Stream(),
		"outbox_id":    event.ID,
		"event_type":   event.EventType,
		"aggregate_id": event.AggregateID,
		"payload":      string(event.Payload),
	}).Info("outbox event")
	return nil
}
