package monitor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

// RabbitSink publishes page reports to a RabbitMQ queue as JSON, one
// message per report. Publish failures are logged and dropped.
type RabbitSink struct {
	conn    *amqp091.Connection
	channel *amqp091.Channel
	queue   string
}

// NewRabbitSink connects to RabbitMQ and declares the queue (durable,
// idempotent declare).
func NewRabbitSink(url, queue string) (*RabbitSink, error) {
	if url == "" {
		return nil, fmt.Errorf("rabbitmq url cannot be empty")
	}
	if queue == "" {
		queue = "feedsync_progress"
	}

	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}
	if _, err := channel.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}

	log.Info().Str("queue", queue).Msg("RabbitMQ monitor sink connected")
	return &RabbitSink{conn: conn, channel: channel, queue: queue}, nil
}

// PageCompleted implements Sink.
func (r *RabbitSink) PageCompleted(ctx context.Context, report PageReport) {
	body, err := json.Marshal(report)
	if err != nil {
		log.Error().Err(err).Str("sessionID", report.SessionID).Msg("Could not marshal page report")
		return
	}
	err = r.channel.PublishWithContext(ctx,
		"",      // exchange (default)
		r.queue, // routing key = queue
		false,   // mandatory
		false,   // immediate
		amqp091.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	)
	if err != nil {
		log.Error().Err(err).
			Str("queue", r.queue).
			Str("sessionID", report.SessionID).
			Msg("Could not publish page report to RabbitMQ")
		return
	}
	log.Debug().Str("queue", r.queue).Str("sessionID", report.SessionID).Msg("Published page report to RabbitMQ")
}

// Close tears down the channel and connection.
func (r *RabbitSink) Close() {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		r.conn.Close()
	}
}
