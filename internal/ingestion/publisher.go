package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"TierOracle/internal/observability"
)

// OutboundPublisher publishes committed events to NATS for downstream
// consumers (risk engines, dashboards, settlement). Outbound events are
// published after the engine commits; consumers needing durability beyond
// the stream retention read the event log directly.
type OutboundPublisher struct {
	js        jetstream.JetStream
	inputChan <-chan PublishableEvent
	metrics   *observability.Metrics
}

// PublishableEvent is a committed event ready for outbound publishing.
type PublishableEvent struct {
	Sequence  int64       `json:"sequence"`
	EventID   string      `json:"event_id"`
	EventType string      `json:"event_type"`
	AssetID   string      `json:"asset_id"`
	Payload   interface{} `json:"payload"`
	StateHash []byte      `json:"state_hash"`
	Timestamp time.Time   `json:"timestamp"`
}

func NewOutboundPublisher(js jetstream.JetStream, inputChan <-chan PublishableEvent, metrics *observability.Metrics) *OutboundPublisher {
	return &OutboundPublisher{
		js:        js,
		inputChan: inputChan,
		metrics:   metrics,
	}
}

// Run starts the outbound publisher loop. Publishes to
// oracle.events.{event_type}.{asset_id}.
func (op *OutboundPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case evt, ok := <-op.inputChan:
			if !ok {
				return nil
			}

			if err := op.publish(ctx, evt); err != nil {
				log.Printf("WARN: outbound publish failed seq=%d: %v", evt.Sequence, err)
				if op.metrics != nil {
					op.metrics.PublishDrops.Inc()
				}
				// Non-fatal: downstream consumers can query the event log
			}
		}
	}
}

func (op *OutboundPublisher) publish(ctx context.Context, evt PublishableEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	subject := fmt.Sprintf("oracle.events.%s", evt.EventType)
	if evt.AssetID != "" {
		subject = fmt.Sprintf("%s.%s", subject, sanitizeToken(evt.AssetID))
	}

	_, err = op.js.Publish(ctx, subject, data)
	return err
}

// sanitizeToken rewrites an asset identifier into a valid NATS subject
// token. Asset IDs like "sol/usdc" contain separators NATS would treat as
// token boundaries.
func sanitizeToken(s string) string {
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '.', '/', ' ', '*', '>':
			out[i] = '-'
		default:
			out[i] = c
		}
	}
	return string(out)
}

// EnsureOutboundStream creates the outbound events stream.
func EnsureOutboundStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      "ORACLE_EVENTS",
		Subjects:  []string{"oracle.events.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create outbound stream: %w", err)
	}
	log.Println("INFO: ensured outbound stream ORACLE_EVENTS")
	return nil
}
