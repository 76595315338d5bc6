package buildamqp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"github.com/k11v/pblbuild/internal/build"
)

// consumerTag names the single consumer on each worker channel.
const consumerTag = "pblbuild-worker"

// Worker consumes jobs and hands them to their handlers.
// A handler error rejects the message without requeueing it.
type Worker struct {
	ConnectionString string                                // required
	Handlers         map[build.JobType]build.HandlerFunc // required

	PoolSize int          // jobs handled concurrently per job type, default: 1
	Logger   *slog.Logger // default: slog.Default()
}

// Run consumes until ctx is done, reconnecting whenever the connection breaks.
func (w *Worker) Run(ctx context.Context) error {
	log := w.logger()

	retries := 0
	for {
		consumeErr := w.consume(ctx, func() {
			if retries > 0 {
				log.Info("recovered", "retries", retries)
				retries = 0
			}
		})
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Error("didn't consume", "err", consumeErr)

		retries++
		select {
		case <-time.After(retryWaitDuration(retries - 1)):
		case <-ctx.Done():
			return ctx.Err()
		}
		log.Info("retrying", "retries", retries)
	}
}

// consume runs one connection's worth of consumers.
// It calls connected once every queue is being consumed.
// When ctx is done it stops taking deliveries and waits for the jobs
// in flight before closing the connection.
func (w *Worker) consume(ctx context.Context, connected func()) error {
	conn, err := amqp091.Dial(w.ConnectionString)
	if err != nil {
		return err
	}
	defer conn.Close()

	var (
		wg        sync.WaitGroup
		consumers []*amqp091.Channel
	)
	defer func() {
		for _, ch := range consumers {
			_ = ch.Cancel(consumerTag, false)
		}
		wg.Wait()
	}()

	// Jobs run to completion once received.
	jobCtx := context.WithoutCancel(ctx)

	poolSize := max(w.PoolSize, 1)
	for job, handler := range w.Handlers {
		ch, err := conn.Channel()
		if err != nil {
			return err
		}

		q, err := declareQueue(ch, job)
		if err != nil {
			return err
		}

		if err = ch.Qos(poolSize, 0, false); err != nil {
			return err
		}

		messages, err := ch.Consume(
			q.Name,      // queue
			consumerTag, // consumer
			false,       // auto-ack
			false,       // exclusive
			false,       // no-local
			false,       // no-wait
			nil,         // args
		)
		if err != nil {
			return err
		}
		consumers = append(consumers, ch)

		for range poolSize {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for m := range messages {
					w.handle(jobCtx, job, handler, m)
				}
			}()
		}
	}

	w.logger().Info("starting consuming", "pool_size", poolSize)
	connected()

	closed := conn.NotifyClose(make(chan *amqp091.Error, 1))
	select {
	case <-ctx.Done():
		w.logger().Info("stopping consuming")
		return ctx.Err()
	case amqpErr := <-closed:
		if amqpErr == nil {
			return errors.New("connection is closed")
		}
		return amqpErr
	}
}

func (w *Worker) handle(ctx context.Context, job build.JobType, handler build.HandlerFunc, m amqp091.Delivery) {
	log := w.logger().With("job", job)

	err := m.Headers.Validate()
	if err != nil {
		err = fmt.Errorf("invalid header: %w", err)
		log.Error("", "err", err)
		_ = m.Nack(false, false)
		return
	}

	var msg message
	dec := json.NewDecoder(bytes.NewReader(m.Body))
	err = dec.Decode(&msg)
	if err != nil {
		err = fmt.Errorf("invalid body: %w", err)
		log.Error("", "err", err)
		_ = m.Nack(false, false)
		return
	}
	if dec.More() {
		err = errors.New("multiple top-level values")
		err = fmt.Errorf("invalid body: %w", err)
		log.Error("", "err", err)
		_ = m.Nack(false, false)
		return
	}

	// Body field id.
	if msg.ID == nil {
		err = fmt.Errorf("missing %s body field", "id")
		log.Error("", "err", err)
		_ = m.Nack(false, false)
		return
	}
	id := *msg.ID
	log = log.With("build_id", id)

	log.Info("received job")
	if err = handler(ctx, id); err != nil {
		log.Error("job failed", "err", err)
		_ = m.Nack(false, false)
		return
	}

	_ = m.Ack(false)
	log.Info("handled job")
}

func (w *Worker) logger() *slog.Logger {
	if w.Logger == nil {
		return slog.Default()
	}
	return w.Logger
}

// retryWaitDuration returns how long to wait before reconnect attempt retry,
// counting from 0. It backs off exponentially from 0.5s with ±50% jitter
// and stops growing at retry 12, around 65s.
func retryWaitDuration(retry int) time.Duration {
	n := min(retry, 12)
	second := int(time.Second)

	// start with 0.5s
	duration := second / 2

	// multiply by 1.5 to the power of n
	for i := 0; i < n; i++ {
		duration /= 2
		duration *= 3
	}

	// add or subtract up to 50%
	jitter := rand.IntN(duration) - duration/2
	duration += jitter

	return time.Duration(duration)
}
