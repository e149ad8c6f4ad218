package messaging

import (
	"context"
)

// Queue represents an abstract message queue for any payload type
type Queue[T any] interface {
	// Publish adds a new message with payload to the queue
	Publish(ctx context.Context, t *T) error

	// Consume retrieves a single message from the queue
	Consume(ctx context.Context) (Message[T], error)
}

// Message represents a message retrieved from a queue
type Message[T any] interface {
	// ID returns the message id assigned on publish
	ID() string

	// T returns the payload of this message
	T() *T

	// Attempt returns the number of failed deliveries so far
	Attempt() int

	// Ack acknowledges successful processing of this message
	Ack() error

	// Nack indicates failure in processing this message
	Nack(err error) error
}

// Stats reports a queue backlog
type Stats struct {
	Pending     int    `json:"pending"`
	InFlight    int    `json:"inFlight"`
	DeadLetters int    `json:"deadLetters"`
	Published   uint64 `json:"published"`
	Processed   uint64 `json:"processed"`
	Retried     uint64 `json:"retried"`
}

// Inspector exposes queue statistics
type Inspector interface {
	Stats() Stats
}
