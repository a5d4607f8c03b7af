package queue

import (
	"encoding/json"
	"time"
)

const DLQType = "fulfillment.dlq"

type DeadLetter struct {
	Type      string          `json:"type"`    // "fulfillment.dlq"
	Version   string          `json:"version"` // schema version
	At        string          `json:"at"`      // RFC3339 time the DLQ was emitted
	Reason    string          `json:"reason"`  // human/debug text
	Attempt   int             `json:"attempt"` // attempt count when DLQ'd
	Queue     string          `json:"queue"`   // source queue name
	MessageID string          `json:"message_id"`
	LastError string          `json:"last_error,omitempty"`
	Body      json.RawMessage `json:"body"` // original message snapshot
}

func NewDeadLetter(env Envelope, reason, lastErr string) DeadLetter {
	return DeadLetter{
		Type:      DLQType,
		Version:   "v1",
		At:        time.Now().Format(time.RFC3339Nano),
		Reason:    reason,
		Attempt:   env.Attempt,
		Queue:     env.Queue,
		MessageID: env.ID,
		LastError: lastErr,
		Body:      env.Body,
	}
}
