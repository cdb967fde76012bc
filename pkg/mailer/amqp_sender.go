package mailer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPSender publishes the code as a job for an external mailer worker.
type AMQPSender struct {
	conn  *amqp.Connection
	queue string
}

// NewAMQPSender connects to the broker and declares the delivery queue.
func NewAMQPSender(url, queue string) (*AMQPSender, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, fmt.Errorf("amqp url required")
	}
	queue = strings.TrimSpace(queue)
	if queue == "" {
		queue = "digitlens.otp"
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	return &AMQPSender{conn: conn, queue: queue}, nil
}

// SendOTP publishes one persistent delivery job.
func (s *AMQPSender) SendOTP(ctx context.Context, email, code string) error {
	body, err := json.Marshal(otpPayload{Email: email, OTP: code})
	if err != nil {
		return err
	}
	ch, err := s.conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return ch.PublishWithContext(ctx, "", s.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
}

// Close releases the broker connection.
func (s *AMQPSender) Close() error {
	return s.conn.Close()
}
