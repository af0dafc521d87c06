package lifecycle

import (
	"encoding/json"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/wholesale/internal/domain"
	"github.com/vladislavdragonenkov/wholesale/internal/messaging/kafka"
)

// orderEvent — изменение заказа: запись в журнал и сообщение outbox.
type orderEvent struct {
	outboxType string
	kind       domain.TimelineEventType
	from       domain.OrderStatus
	reason     string
	payload    map[string]interface{}
}

// afterCommit выполняет побочные эффекты перехода, не влияющие на результат:
// ровно одно уведомление, журнал, outbox, Kafka и начисление при доставке.
func (s *Service) afterCommit(previous domain.OrderStatus, order domain.Order, reason string) {
	s.notify(order)

	payload := map[string]interface{}{
		"from":   previous,
		"status": order.Status,
		"ts":     order.UpdatedAt.Format(time.RFC3339Nano),
	}
	if reason != "" {
		payload["reason"] = reason
	}
	s.emitEvent(&order, orderEvent{
		outboxType: domain.OutboxEventStatusChanged,
		kind:       domain.TimelineStatusChanged,
		from:       previous,
		reason:     reason,
		payload:    payload,
	})
	s.publishOrderEvent(kafka.EventTypeForStatus(string(order.Status)), &order, map[string]interface{}{
		"from":         string(previous),
		"total_minor":  order.TotalMinor,
		"discount_pct": order.DiscountPercent,
	})

	if order.Status == domain.OrderStatusDelivered && s.charges != nil {
		if err := s.charges.PostOrderCharge(order); err != nil {
			s.logger.WithError(err).WithField("order_id", order.ID).Error("post delivery charge failed")
		}
	}
}

func (s *Service) notify(order domain.Order) {
	notification := notificationFor(order)
	if err := s.notifier.Notify(notification); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"order_id": order.ID,
			"status":   order.Status,
		}).Warn("notification dispatch failed")
		return
	}
	if s.metrics != nil {
		s.metrics.RecordNotification(string(notification.Severity))
	}
}

// emitEvent пишет событие в outbox и в журнал заказа. Сбой записи не отменяет
// уже сохранённое изменение заказа, он только логируется.
func (s *Service) emitEvent(order *domain.Order, ev orderEvent) {
	fields := log.Fields{"order_id": order.ID, "event": ev.kind}

	if s.outbox != nil {
		payload := ev.payload
		if payload == nil {
			payload = make(map[string]interface{})
		}
		payload["order_id"] = order.ID
		payload["account_id"] = order.AccountID

		data, err := json.Marshal(payload)
		if err != nil {
			s.logger.WithError(err).WithFields(fields).Error("marshal event failed")
		} else if _, err := s.outbox.Enqueue(domain.OutboxMessage{
			AggregateType: "order",
			AggregateID:   order.ID,
			EventType:     ev.outboxType,
			Payload:       data,
		}); err != nil {
			s.logger.WithError(err).WithFields(fields).Error("enqueue event failed")
		} else if s.metrics != nil {
			s.metrics.RecordOutboxEvent()
		}
	}

	if s.timeline == nil {
		return
	}
	occurred := order.UpdatedAt
	if occurred.IsZero() {
		occurred = s.now()
	}
	if _, err := s.timeline.Append(domain.TimelineEvent{
		OrderID:  order.ID,
		Type:     ev.kind,
		From:     ev.from,
		Status:   order.Status,
		Reason:   ev.reason,
		Occurred: occurred,
	}); err != nil {
		s.logger.WithError(err).WithFields(fields).Warn("append timeline event failed")
	} else if s.metrics != nil {
		s.metrics.RecordTimelineEvent()
	}
}

// publishOrderEvent публикует событие в Kafka, если producer настроен.
func (s *Service) publishOrderEvent(eventType kafka.EventType, order *domain.Order, metadata map[string]interface{}) {
	if s.kafkaProducer == nil {
		return
	}

	event := kafka.NewOrderEvent(eventType, order.ID, order.AccountID, string(order.Status), metadata)
	if err := s.kafkaProducer.PublishEvent(kafka.TopicOrderEvents, order.ID, event); err != nil {
		// Kafka опциональна, переход уже зафиксирован.
		s.logger.WithError(err).WithFields(log.Fields{
			"event_type": eventType,
			"order_id":   order.ID,
		}).Warn("failed to publish order event to kafka")
	}
}
