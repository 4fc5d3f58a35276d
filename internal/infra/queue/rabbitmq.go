package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"editorial-queue/internal/domain"
	"editorial-queue/internal/infra/metrics"
)

// RabbitReindexQueue реализует очередь задач сверки поверх AMQP.
// Доставка at-least-once: задача подтверждается вручную после обработки,
// при сбое возвращается в очередь.
type RabbitReindexQueue struct {
	conn       *amqp.Connection
	ch         *amqp.Channel
	queue      string
	deliveries <-chan amqp.Delivery
}

// NewRabbitReindexQueue подключается к брокеру и объявляет долговечную очередь.
func NewRabbitReindexQueue(amqpURL, queue string) (*RabbitReindexQueue, error) {
	if amqpURL == "" {
		return nil, errors.New("amqp url is empty")
	}
	if queue == "" {
		return nil, errors.New("queue name is empty")
	}
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("enable confirms: %w", err)
	}
	return &RabbitReindexQueue{conn: conn, ch: ch, queue: queue}, nil
}

// Enqueue публикует задачу в очередь.
func (q *RabbitReindexQueue) Enqueue(ctx context.Context, job domain.ReindexJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	start := time.Now()
	confirmation, err := q.ch.PublishWithDeferredConfirmWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         payload,
	})
	metrics.ObserveNetworkRequest("rabbitmq", "publish", q.queue, start, err)
	if err != nil {
		return fmt.Errorf("publish job: %w", err)
	}
	if !confirmation.Wait() {
		return errors.New("publish job: брокер отклонил сообщение")
	}
	return nil
}

// Receive блокирующе читает задачу. Возвращённый ack обязателен к вызову:
// success=true подтверждает доставку, false возвращает задачу в очередь.
func (q *RabbitReindexQueue) Receive(ctx context.Context) (domain.ReindexJob, domain.ReindexAckFunc, error) {
	if q.deliveries == nil {
		deliveries, err := q.ch.Consume(q.queue, "", false, false, false, false, nil)
		if err != nil {
			return domain.ReindexJob{}, nil, fmt.Errorf("consume: %w", err)
		}
		q.deliveries = deliveries
	}
	for {
		select {
		case <-ctx.Done():
			return domain.ReindexJob{}, nil, ctx.Err()
		case delivery, ok := <-q.deliveries:
			if !ok {
				return domain.ReindexJob{}, nil, errors.New("amqp: канал доставки закрыт")
			}
			var job domain.ReindexJob
			if err := json.Unmarshal(delivery.Body, &job); err != nil {
				// Непарсибельное сообщение не вернётся в очередь: повтор бессмыслен.
				_ = delivery.Nack(false, false)
				continue
			}
			ack := func(success bool) error {
				if success {
					return delivery.Ack(false)
				}
				return delivery.Nack(false, true)
			}
			return job, ack, nil
		}
	}
}

// Close освобождает канал и соединение.
func (q *RabbitReindexQueue) Close() error {
	if err := q.ch.Close(); err != nil {
		_ = q.conn.Close()
		return err
	}
	return q.conn.Close()
}
