// Package buildamqp delivers build jobs over RabbitMQ.
// Every job type has its own durable queue named build.<job type>.
package buildamqp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"

	"github.com/k11v/pblbuild/internal/build"
)

var _ build.Queue = (*Queue)(nil)

// QueueName returns the queue that carries jobs of type job.
func QueueName(job build.JobType) string {
	return "build." + string(job)
}

type message struct {
	ID *uuid.UUID `json:"id"`
}

// declareQueue declares the durable queue for job on ch.
func declareQueue(ch *amqp091.Channel, job build.JobType) (amqp091.Queue, error) {
	return ch.QueueDeclare(
		QueueName(job), // name
		true,           // durable
		false,          // delete when unused
		false,          // exclusive
		false,          // no-wait
		nil,            // arguments
	)
}

// Queue publishes jobs. It keeps one connection open and redials after it breaks.
type Queue struct {
	connectionString string // required

	mu   sync.Mutex
	conn *amqp091.Connection
	ch   *amqp091.Channel
}

func NewQueue(connectionString string) *Queue {
	return &Queue{connectionString: connectionString}
}

// Enqueue implements build.Queue.
func (q *Queue) Enqueue(ctx context.Context, job build.JobType, id uuid.UUID) error {
	body := &bytes.Buffer{}
	if err := json.NewEncoder(body).Encode(message{ID: &id}); err != nil {
		return fmt.Errorf("enqueue %s: %w", job, err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	ch, err := q.channel()
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", job, err)
	}

	queue, err := declareQueue(ch, job)
	if err != nil {
		q.reset()
		return fmt.Errorf("enqueue %s: %w", job, err)
	}

	err = ch.PublishWithContext(ctx,
		"",         // exchange
		queue.Name, // routing key
		false,      // mandatory
		false,      // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Body:         body.Bytes(),
		},
	)
	if err != nil {
		q.reset()
		return fmt.Errorf("enqueue %s: %w", job, err)
	}

	return nil
}

// Close closes the connection if one is open.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.conn == nil {
		return nil
	}
	err := q.conn.Close()
	q.conn, q.ch = nil, nil
	return err
}

func (q *Queue) channel() (*amqp091.Channel, error) {
	if q.ch != nil && !q.ch.IsClosed() {
		return q.ch, nil
	}
	q.reset()

	conn, err := amqp091.Dial(q.connectionString)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	q.conn, q.ch = conn, ch
	return ch, nil
}

func (q *Queue) reset() {
	if q.conn != nil {
		_ = q.conn.Close()
	}
	q.conn, q.ch = nil, nil
}
