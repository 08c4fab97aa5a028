package queue

import (
	"fmt"
	"log"
	"sync"
)

// Topics. campaign_dispatch carries one job per campaign batch,
// campaign_sends one job per individual recipient requeue.
const (
	TopicCampaignDispatch = "campaign_dispatch"
	TopicCampaignSends    = "campaign_sends"
)

// DispatchJob drains every pending recipient of one campaign.
type DispatchJob struct {
	CampaignID int `json:"campaign_id"`
}

// SendJob is the unit of work published for one recipient.
type SendJob struct {
	RecipientID int `json:"recipient_id"`
}

// Publisher is the side the delivery engine needs.
type Publisher interface {
	Publish(topic string, payload any) error
}

// Queue is a publisher that also supports in-process subscribers.
type Queue interface {
	Publisher
	Subscribe(topic string, handler func(payload any) error) error
}

// InMemoryQueue dispatches published payloads to in-process
// subscribers. It is the default in development and tests; production
// publishes to AMQP and a separate worker consumes.
type InMemoryQueue struct {
	mu       sync.Mutex
	handlers map[string][]func(payload any) error
	wg       sync.WaitGroup
}

func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{
		handlers: make(map[string][]func(payload any) error),
	}
}

func (q *InMemoryQueue) Publish(topic string, payload any) error {
	q.mu.Lock()
	handlers := q.handlers[topic]
	q.mu.Unlock()

	if len(handlers) == 0 {
		return fmt.Errorf("no subscribers for topic %s", topic)
	}

	for _, handler := range handlers {
		h := handler
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			if err := h(payload); err != nil {
				log.Printf("queue: handler failed on topic %s: %v", topic, err)
			}
		}()
	}
	return nil
}

func (q *InMemoryQueue) Subscribe(topic string, handler func(payload any) error) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}

// Wait blocks until every dispatched job finished. Used by tests and
// graceful shutdown.
func (q *InMemoryQueue) Wait() {
	q.wg.Wait()
}

var _ Queue = (*InMemoryQueue)(nil)
