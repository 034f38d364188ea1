// Package event publishes operation lifecycle events to NATS JetStream.
package event

import (
	"Dyvine/model"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

const (
	streamName    = "DYVINE_OPERATIONS"
	subjectPrefix = "dyvine.operations."
	schemaVersion = "1.0.0"
)

// Publisher announces finished operations.
type Publisher interface {
	PublishOperationFinished(ctx context.Context, op model.Operation) error
	Close() error
}

// Envelope wraps every published event.
type Envelope struct {
	Type          string          `json:"type"`
	Version       string          `json:"version"`
	OccurredAt    time.Time       `json:"occurredAt"`
	CorrelationID string          `json:"correlationId"`
	Payload       model.Operation `json:"payload"`
}

// Subject returns the subject an operation with status is published on.
func Subject(status model.OperationStatus) string {
	return subjectPrefix + string(status)
}

// NewEnvelope wraps op for publishing.
func NewEnvelope(op model.Operation) Envelope {
	return Envelope{
		Type:          Subject(op.Status),
		Version:       schemaVersion,
		OccurredAt:    time.Now().UTC(),
		CorrelationID: uuid.NewString(),
		Payload:       op,
	}
}

type noop struct{}

func (noop) PublishOperationFinished(ctx context.Context, op model.Operation) error { return nil }
func (noop) Close() error                                                           { return nil }

// Noop returns a Publisher that drops every event.
func Noop() Publisher { return noop{} }

type natsPub struct {
	nc *nats.Conn
	js nats.JetStreamContext
}

// NewPublisher connects to url. An empty url, or any connection problem,
// yields a no-op publisher so the service runs without NATS.
func NewPublisher(url string) Publisher {
	if url == "" {
		return noop{}
	}
	nc, err := nats.Connect(url, nats.Name("dyvine"))
	if err != nil {
		slog.Warn("NATS connect failed, using noop publisher", "error", err)
		return noop{}
	}
	js, err := nc.JetStream()
	if err != nil {
		slog.Warn("NATS JetStream context creation failed, using noop publisher", "error", err)
		nc.Close()
		return noop{}
	}
	if err := initStream(js); err != nil {
		slog.Warn("NATS stream initialization failed, using noop publisher", "error", err)
		nc.Close()
		return noop{}
	}
	return &natsPub{nc: nc, js: js}
}

func initStream(js nats.JetStreamContext) error {
	if _, err := js.StreamInfo(streamName); err == nil {
		return nil
	}
	_, err := js.AddStream(&nats.StreamConfig{
		Name:      streamName,
		Subjects:  []string{subjectPrefix + "*"},
		Retention: nats.LimitsPolicy,
		MaxAge:    24 * time.Hour,
		Discard:   nats.DiscardOld,
		Storage:   nats.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("create %s stream: %w", streamName, err)
	}
	return nil
}

func (p *natsPub) PublishOperationFinished(ctx context.Context, op model.Operation) error {
	env := NewEnvelope(op)
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	// one event per operation and status
	_, err = p.js.Publish(env.Type, b, nats.Context(ctx), nats.MsgId(op.ID+"."+string(op.Status)))
	return err
}

func (p *natsPub) Close() error {
	if p.nc != nil {
		p.nc.Close()
	}
	return nil
}
