package queue

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/rabbitmq/amqp091-go"

	"github.com/OFFIS-RIT/lexgraph/pkg/graph"
	"github.com/OFFIS-RIT/lexgraph/pkg/validation"
)

type published struct {
	exchange string
	key      string
	msg      amqp091.Publishing
}

type fakeChannel struct {
	exchanges  []string
	queues     map[string]amqp091.Table
	published  []published
	publishErr error
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{queues: map[string]amqp091.Table{}}
}

func (c *fakeChannel) ExchangeDeclare(name, _ string, _, _, _, _ bool, _ amqp091.Table) error {
	c.exchanges = append(c.exchanges, name)
	return nil
}

func (c *fakeChannel) QueueDeclare(name string, _, _, _, _ bool, args amqp091.Table) (amqp091.Queue, error) {
	c.queues[name] = args
	return amqp091.Queue{Name: name}, nil
}

func (c *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp091.Publishing) error {
	if c.publishErr != nil {
		return c.publishErr
	}
	c.published = append(c.published, published{exchange: exchange, key: key, msg: msg})
	return nil
}

type fakeAck struct {
	acked   int
	nacked  int
	requeue bool
}

func (a *fakeAck) Ack(uint64, bool) error { a.acked++; return nil }
func (a *fakeAck) Nack(_ uint64, _ bool, requeue bool) error {
	a.nacked++
	a.requeue = requeue
	return nil
}
func (a *fakeAck) Reject(uint64, bool) error { return nil }

func TestSetupQueues(t *testing.T) {
	ch := newFakeChannel()
	if err := SetupQueues(ch, []string{IngestQueue}); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if len(ch.exchanges) != 1 || ch.exchanges[0] != Exchange {
		t.Fatalf("expected exchange %s, got %v", Exchange, ch.exchanges)
	}
	for _, name := range []string{"ingest_queue", "ingest_queue_dlq", "ingest_queue_retry"} {
		if _, ok := ch.queues[name]; !ok {
			t.Fatalf("expected queue %s to be declared", name)
		}
	}
	retry := ch.queues["ingest_queue_retry"]
	if retry["x-dead-letter-routing-key"] != IngestQueue {
		t.Fatalf("expected retry queue to dead-letter into %s, got %v", IngestQueue, retry)
	}
	if retry["x-message-ttl"] != int32(10000) {
		t.Fatalf("expected 10s ttl, got %v", retry["x-message-ttl"])
	}
}

type fakeRunner struct {
	input  string
	force  bool
	report *graph.BatchReport
	err    error
}

func (r *fakeRunner) Run(_ context.Context, input string, force bool) (*graph.BatchReport, error) {
	r.input, r.force = input, force
	if r.err != nil {
		return nil, r.err
	}
	return r.report, nil
}

func TestProcessIngestMessage(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		runner    *fakeRunner
		wantErr   bool
		malformed bool
	}{
		{"ok", `{"input": "s3://leggi/chunks.jsonl", "force_recreate": true}`, &fakeRunner{report: &graph.BatchReport{Total: 3, Processed: 3}}, false, false},
		{"bad json", `{"input": `, &fakeRunner{}, true, true},
		{"missing input", `{"input": "  "}`, &fakeRunner{}, true, true},
		{"run error", `{"input": "a.jsonl"}`, &fakeRunner{err: errors.New("boom")}, true, false},
		{"failed chunks", `{"input": "a.jsonl"}`, &fakeRunner{report: &graph.BatchReport{Total: 3, Processed: 2, Failed: 1}}, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ProcessIngestMessage(context.Background(), tt.runner, []byte(tt.body))
			if (err != nil) != tt.wantErr {
				t.Fatalf("expected error %v, got %v", tt.wantErr, err)
			}
			if errors.Is(err, ErrMalformed) != tt.malformed {
				t.Fatalf("expected malformed %v, got %v", tt.malformed, err)
			}
		})
	}

	r := &fakeRunner{report: &graph.BatchReport{}}
	body, err := EncodeIngest("data/chunks.jsonl", true)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := ProcessIngestMessage(context.Background(), r, body); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.input != "data/chunks.jsonl" || !r.force {
		t.Fatalf("unexpected run arguments %q %v", r.input, r.force)
	}
}

func TestHandleProcessingError(t *testing.T) {
	tests := []struct {
		name    string
		headers amqp091.Table
		cause   error
		wantKey string
		wantTry int32
	}{
		{"first failure", nil, errors.New("boom"), "ingest_queue_retry", 1},
		{"int64 header", amqp091.Table{"x-retries": int64(4)}, errors.New("boom"), "ingest_queue_retry", 5},
		{"exhausted", amqp091.Table{"x-retries": int32(3)}, errors.New("boom"), "ingest_queue_dlq", 3},
		{"malformed", nil, ErrMalformed, "ingest_queue_dlq", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch := newFakeChannel()
			ack := &fakeAck{}
			msg := amqp091.Delivery{Acknowledger: ack, Headers: tt.headers, Body: []byte(`{}`)}
			HandleProcessingError(context.Background(), ch, msg, IngestQueue, tt.cause, 3)

			if len(ch.published) != 1 {
				t.Fatalf("expected one publish, got %d", len(ch.published))
			}
			p := ch.published[0]
			if p.key != tt.wantKey {
				t.Fatalf("expected publish to %s, got %s", tt.wantKey, p.key)
			}
			if got := retryCount(p.msg.Headers); got != int(tt.wantTry) {
				t.Fatalf("expected retries %d, got %d", tt.wantTry, got)
			}
			if ack.acked != 1 || ack.nacked != 0 {
				t.Fatalf("expected one ack, got %+v", ack)
			}
		})
	}
}

func TestHandleProcessingErrorRequeuesOnPublishFailure(t *testing.T) {
	ch := newFakeChannel()
	ch.publishErr = errors.New("channel closed")
	ack := &fakeAck{}
	HandleProcessingError(context.Background(), ch, amqp091.Delivery{Acknowledger: ack}, IngestQueue, errors.New("boom"), 3)
	if ack.acked != 0 || ack.nacked != 1 || !ack.requeue {
		t.Fatalf("expected a requeueing nack, got %+v", ack)
	}
}

func TestGraphPublisher(t *testing.T) {
	ch := newFakeChannel()
	p := NewGraphPublisher(ch)
	err := p.PublishGraphUpdated(context.Background(), validation.GraphUpdated{ProposalID: "p1", NodeIDs: []string{"LEGGE 241/1990"}})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(ch.published) != 1 {
		t.Fatalf("expected one publish, got %d", len(ch.published))
	}
	got := ch.published[0]
	if got.exchange != Exchange || got.key != TopicGraphUpdated {
		t.Fatalf("unexpected route %s/%s", got.exchange, got.key)
	}
	var event validation.GraphUpdated
	if err := json.Unmarshal(got.msg.Body, &event); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if event.ProposalID != "p1" || !strings.HasPrefix(event.NodeIDs[0], "LEGGE") {
		t.Fatalf("unexpected event %+v", event)
	}
}
