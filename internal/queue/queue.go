// Package queue wires the ingest worker and the validation server to
// RabbitMQ.
package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"github.com/OFFIS-RIT/lexgraph/internal/config"
	"github.com/OFFIS-RIT/lexgraph/pkg/logger"
)

const (
	IngestQueue = "ingest_queue"

	Exchange          = "pubsub_exchange"
	TopicGraphUpdated = "graph.updated"

	retryTTL = 10 * time.Second
)

// Channel is the part of *amqp091.Channel used here.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp091.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp091.Table) (amqp091.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
}

func Dial(cfg config.RabbitMQConfig) (*amqp091.Connection, error) {
	conn, err := amqp091.Dial(cfg.URL())
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq at %s:%s: %w", cfg.Host, cfg.Port, err)
	}
	return conn, nil
}

// SetupQueues declares the topic exchange and, for every name, the work
// queue plus its _retry and _dlq companions. Messages in the retry queue
// dead-letter back into the work queue after the retry TTL.
func SetupQueues(ch Channel, queueNames []string) error {
	err := ch.ExchangeDeclare(
		Exchange,
		"topic",
		true,  // durable
		false, // autoDelete
		false, // internal
		false, // noWait
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare exchange %s: %w", Exchange, err)
	}

	for _, name := range queueNames {
		if err := declare(ch, name, nil); err != nil {
			return err
		}
		if err := declare(ch, name+"_dlq", nil); err != nil {
			return err
		}
		err := declare(ch, name+"_retry", amqp091.Table{
			"x-message-ttl":             int32(retryTTL / time.Millisecond),
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": name,
		})
		if err != nil {
			return err
		}
		logger.Debug("[Queue] Declared queue", "queue", name)
	}
	return nil
}

func declare(ch Channel, name string, args amqp091.Table) error {
	_, err := ch.QueueDeclare(
		name,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		args,
	)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", name, err)
	}
	return nil
}

// PublishFIFO sends a persistent message to queueName through the default
// exchange.
func PublishFIFO(ctx context.Context, ch Channel, queueName string, data []byte) error {
	return ch.PublishWithContext(ctx, "", queueName, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		Body:         data,
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
	})
}

// PublishTopic sends data to the topic exchange. Nobody has to listen.
func PublishTopic(ctx context.Context, ch Channel, topic string, data []byte) error {
	return ch.PublishWithContext(ctx, Exchange, topic, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		Body:         data,
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
	})
}
