package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rabbitmq/amqp091-go"

	"github.com/OFFIS-RIT/lexgraph/internal/metrics"
	"github.com/OFFIS-RIT/lexgraph/pkg/graph"
	"github.com/OFFIS-RIT/lexgraph/pkg/logger"
	"github.com/OFFIS-RIT/lexgraph/pkg/validation"
)

// DefaultMaxRetries is how often a delivery goes through the retry queue
// before it is parked in the DLQ.
const DefaultMaxRetries = 10

const retriesHeader = "x-retries"

// ErrMalformed marks messages that will never succeed; they skip the retry
// queue.
var ErrMalformed = errors.New("malformed message")

// IngestMsg is the body of an ingest_queue message.
type IngestMsg struct {
	Input         string `json:"input"`
	ForceRecreate bool   `json:"force_recreate"`
}

// Runner runs one ingest job; *bootstrap.Ingester implements it.
type Runner interface {
	Run(ctx context.Context, input string, force bool) (*graph.BatchReport, error)
}

// ProcessIngestMessage decodes body and runs the ingest it describes. A run
// with failed chunks returns an error so the message is retried; the
// checkpoint makes the retry skip the chunks that went through.
func ProcessIngestMessage(ctx context.Context, r Runner, body []byte) error {
	var msg IngestMsg
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	msg.Input = strings.TrimSpace(msg.Input)
	if msg.Input == "" {
		return fmt.Errorf("%w: input is required", ErrMalformed)
	}

	logger.Info("[Queue] Ingest job started", "input", msg.Input, "force", msg.ForceRecreate)
	report, err := r.Run(ctx, msg.Input, msg.ForceRecreate)
	if err != nil {
		return fmt.Errorf("ingest %s: %w", msg.Input, err)
	}
	if report.Failed > 0 {
		return fmt.Errorf("ingest %s: %d of %d chunks failed", msg.Input, report.Failed, report.Total)
	}
	return nil
}

// EncodeIngest builds the body of an ingest_queue message.
func EncodeIngest(input string, force bool) ([]byte, error) {
	return json.Marshal(IngestMsg{Input: input, ForceRecreate: force})
}

// HandleProcessingError moves a failed delivery to queueName's retry queue,
// or to its DLQ once maxRetries is reached or the message is malformed. The
// original delivery is acked after the copy was published and requeued when
// publishing fails.
func HandleProcessingError(ctx context.Context, ch Channel, msg amqp091.Delivery, queueName string, cause error, maxRetries int) {
	retries := retryCount(msg.Headers)

	if retries >= maxRetries || errors.Is(cause, ErrMalformed) {
		dlqName := queueName + "_dlq"
		logger.Warn("[Queue] Sending message to DLQ", "dlq", dlqName, "retries", retries, "err", cause)
		headers := copyHeaders(msg.Headers)
		headers["x-error"] = cause.Error()
		if err := republish(ctx, ch, dlqName, msg, headers); err != nil {
			logger.Error("[Queue] Failed to publish to DLQ", "dlq", dlqName, "err", err)
			_ = msg.Nack(false, true)
			return
		}
		metrics.QueueMessages.WithLabelValues(queueName, "dlq").Inc()
		_ = msg.Ack(false)
		return
	}

	retryName := queueName + "_retry"
	headers := copyHeaders(msg.Headers)
	headers[retriesHeader] = int32(retries + 1)
	if err := republish(ctx, ch, retryName, msg, headers); err != nil {
		logger.Error("[Queue] Failed to publish to retry queue", "retry_queue", retryName, "err", err)
		_ = msg.Nack(false, true)
		return
	}
	metrics.QueueMessages.WithLabelValues(queueName, "retry").Inc()
	_ = msg.Ack(false)
}

func republish(ctx context.Context, ch Channel, queueName string, msg amqp091.Delivery, headers amqp091.Table) error {
	return ch.PublishWithContext(ctx, "", queueName, false, false, amqp091.Publishing{
		ContentType:  msg.ContentType,
		Body:         msg.Body,
		Headers:      headers,
		DeliveryMode: amqp091.Persistent,
	})
}

// retryCount reads the retry header. Brokers hand integers back with the
// width they were encoded with.
func retryCount(h amqp091.Table) int {
	switch v := h[retriesHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	case int16:
		return int(v)
	case int8:
		return int(v)
	}
	return 0
}

func copyHeaders(h amqp091.Table) amqp091.Table {
	out := make(amqp091.Table, len(h)+1)
	for k, v := range h {
		out[k] = v
	}
	return out
}

// GraphPublisher announces applied proposals on the topic exchange.
type GraphPublisher struct {
	ch Channel
}

var _ validation.Publisher = (*GraphPublisher)(nil)

func NewGraphPublisher(ch Channel) *GraphPublisher {
	return &GraphPublisher{ch: ch}
}

func (p *GraphPublisher) PublishGraphUpdated(ctx context.Context, event validation.GraphUpdated) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return PublishTopic(ctx, p.ch, TopicGraphUpdated, data)
}
