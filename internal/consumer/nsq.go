package consumer

import (
	"context"
	"encoding/json"

	"github.com/nsqio/go-nsq"

	"github.com/printdeck/fulfillment/internal/queue"
)

// NSQHandler bridges one NSQ topic into the dispatcher. The topic name is
// carried on the envelope so queue-prefix routing sees the deployed name
// (including any environment suffix).
type NSQHandler struct {
	dispatcher *Dispatcher
	topic      string
}

func NewNSQHandler(d *Dispatcher, topic string) *NSQHandler {
	return &NSQHandler{dispatcher: d, topic: topic}
}

// HandleMessage implements nsq.Handler. Responses are manual: the dispatcher
// decides finish vs requeue.
func (h *NSQHandler) HandleMessage(m *nsq.Message) error {
	m.DisableAutoResponse()

	env := queue.Envelope{
		ID:      string(m.ID[:]),
		Queue:   h.topic,
		Attempt: int(m.Attempts) - 1, // NSQ counts the in-flight delivery
		Body:    json.RawMessage(m.Body),
	}

	action, delay := h.dispatcher.Dispatch(context.Background(), env)
	if action == ActionRequeue {
		m.Requeue(delay)
		return nil
	}
	m.Finish()
	return nil
}

// NSQDeadLetterSink publishes dead letters to an NSQ topic.
type NSQDeadLetterSink struct {
	producer *nsq.Producer
	topic    string
}

func NewNSQDeadLetterSink(producer *nsq.Producer, topic string) *NSQDeadLetterSink {
	return &NSQDeadLetterSink{producer: producer, topic: topic}
}

func (s *NSQDeadLetterSink) Publish(dl queue.DeadLetter) error {
	b, err := json.Marshal(dl)
	if err != nil {
		return err
	}
	return s.producer.Publish(s.topic, b)
}
