package rabbitmq

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

type AlertMessage struct {
	AlertID string `json:"alert_id"`
	Attempt int    `json:"attempt,omitempty"`
}

// Queues names the three queues derived from the main queue name.
type Queues struct {
	Main  string
	Retry string
	DLQ   string
}

func QueuesFor(queue string) Queues {
	return Queues{Main: queue, Retry: queue + ".retry", DLQ: queue + ".dlq"}
}

// DeclareTopology declares main, retry and dead-letter queues. Publisher and
// worker both call it so queue arguments always match.
func DeclareTopology(ch *amqp.Channel, queue string) (Queues, error) {
	q := QueuesFor(queue)

	// DLQ
	if _, err := ch.QueueDeclare(
		q.DLQ,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false,
		nil,
	); err != nil {
		return q, err
	}

	// Retry queue: message TTL -> dead-letter back to main queue
	if _, err := ch.QueueDeclare(
		q.Retry,
		true,
		false,
		false,
		false,
		amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": q.Main,
		},
	); err != nil {
		return q, err
	}

	// Main queue: dead-letter to DLQ on reject/nack(requeue=false)
	if _, err := ch.QueueDeclare(
		q.Main,
		true,
		false,
		false,
		false,
		amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": q.DLQ,
		},
	); err != nil {
		return q, err
	}
	return q, nil
}

type Publisher struct {
	mu     sync.Mutex // amqp channels are not safe for concurrent publish
	conn   *amqp.Connection
	ch     *amqp.Channel
	queues Queues
}

func NewPublisher(url, queue string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	q, err := DeclareTopology(ch, queue)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}

	return &Publisher{conn: conn, ch: ch, queues: q}, nil
}

func (p *Publisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// PublishAlert queues a crisis alert for delivery.
func (p *Publisher) PublishAlert(ctx context.Context, alertID string) error {
	return p.publish(ctx, p.queues.Main, AlertMessage{AlertID: alertID}, "")
}

// PublishRetry parks a message on the retry queue; it returns to the main
// queue once delay expires.
func (p *Publisher) PublishRetry(ctx context.Context, m AlertMessage, delay time.Duration) error {
	return p.publish(ctx, p.queues.Retry, m, RetryExpiration(delay))
}

func (p *Publisher) publish(ctx context.Context, queue string, m AlertMessage, expiration string) error {
	body, err := json.Marshal(m)
	if err != nil {
		return err
	}

	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch.PublishWithContext(cctx,
		"",    // default exchange
		queue, // routing key = queue
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
			Timestamp:    time.Now(),
			Expiration:   expiration,
		},
	)
}

// RetryExpiration formats delay as a per-message TTL in milliseconds.
func RetryExpiration(delay time.Duration) string {
	ms := delay.Milliseconds()
	if ms < 1 {
		ms = 1
	}
	return strconv.FormatInt(ms, 10)
}

// RetryDelay grows linearly per attempt, capped at one minute.
func RetryDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := time.Duration(attempt) * 5 * time.Second
	if d > time.Minute {
		d = time.Minute
	}
	return d
}
