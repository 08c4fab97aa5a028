package queue

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/streadway/amqp"
)

// AMQPQueue publishes jobs to durable RabbitMQ queues. Consumption
// happens in cmd/worker, which owns its own channel.
type AMQPQueue struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewAMQPQueue(url string) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connecting to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("opening channel: %w", err)
	}
	return &AMQPQueue{conn: conn, ch: ch}, nil
}

func (q *AMQPQueue) Publish(topic string, payload any) error {
	if _, err := q.ch.QueueDeclare(topic, true, false, false, false, nil); err != nil {
		return err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return q.ch.Publish("", topic, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
}

const maxConsumerRetries = 3

// Consume feeds deliveries from one durable queue into the handler
// until the channel closes. A failed handler run is republished with an
// incremented x-retry-count header; after maxConsumerRetries the
// message is dropped with a log line.
func (q *AMQPQueue) Consume(topic string, handler func(body []byte) error) error {
	if _, err := q.ch.QueueDeclare(topic, true, false, false, false, nil); err != nil {
		return err
	}
	msgs, err := q.ch.Consume(topic, "", false, false, false, false, nil)
	if err != nil {
		return err
	}

	for d := range msgs {
		if err := handler(d.Body); err != nil {
			retries := retryCount(d.Headers)
			if retries < maxConsumerRetries {
				pub := amqp.Publishing{
					ContentType:  "application/json",
					DeliveryMode: amqp.Persistent,
					Headers:      amqp.Table{"x-retry-count": int32(retries + 1)},
					Body:         d.Body,
				}
				if pubErr := q.ch.Publish("", topic, false, false, pub); pubErr != nil {
					log.Printf("queue: requeueing %s job: %v", topic, pubErr)
					d.Nack(false, true)
					continue
				}
			} else {
				log.Printf("queue: dropping %s job after %d retries: %v", topic, retries, err)
			}
		}
		d.Ack(false)
	}
	return nil
}

func retryCount(headers amqp.Table) int {
	switch v := headers["x-retry-count"].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	}
	return 0
}

func (q *AMQPQueue) Close() error {
	if q.ch != nil {
		q.ch.Close()
	}
	return q.conn.Close()
}

var _ Publisher = (*AMQPQueue)(nil)
