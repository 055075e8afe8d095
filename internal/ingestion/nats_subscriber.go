package ingestion

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NATSSubscriber subscribes to NATS JetStream subjects and feeds commands
// into the engine via the commandChan. NATS JetStream is the primary
// command ingestion surface; each command type has its own subject.
type NATSSubscriber struct {
	js          jetstream.JetStream
	commandChan chan<- RawCommand
	consumers   []jetstream.ConsumeContext
}

// RawCommand is the parsed-but-untyped command from NATS, ready for the
// shell to validate and convert into a typed core.Command.
type RawCommand struct {
	Subject   string
	Data      []byte
	Timestamp time.Time
	AckFunc   func() // ACK after successful processing
	NakFunc   func() // NAK on failure (redelivered)
}

// SubjectConfig maps NATS subjects to command types.
type SubjectConfig struct {
	Subject      string
	CommandType  string
	ConsumerName string
	StreamName   string
}

// DefaultSubjects returns the standard subject configuration. Every subject
// lives in the single ORACLE_CMDS stream; per-type consumers keep the
// dedup and redelivery behavior independent between command kinds.
func DefaultSubjects() []SubjectConfig {
	return []SubjectConfig{
		{Subject: "oracle.cmd.initialize.>", CommandType: "InitializeOracle", ConsumerName: "oracle-initialize", StreamName: "ORACLE_CMDS"},
		{Subject: "oracle.cmd.feed.register.>", CommandType: "RegisterFeed", ConsumerName: "oracle-feed-register", StreamName: "ORACLE_CMDS"},
		{Subject: "oracle.cmd.feed.remove.>", CommandType: "RemoveFeed", ConsumerName: "oracle-feed-remove", StreamName: "ORACLE_CMDS"},
		{Subject: "oracle.cmd.price.update.>", CommandType: "UpdatePrice", ConsumerName: "oracle-price-update", StreamName: "ORACLE_CMDS"},
		{Subject: "oracle.cmd.breaker.>", CommandType: "SetCircuitBreaker", ConsumerName: "oracle-breaker", StreamName: "ORACLE_CMDS"},
		{Subject: "oracle.cmd.emergency.>", CommandType: "SetEmergencyHalt", ConsumerName: "oracle-emergency", StreamName: "ORACLE_CMDS"},
		{Subject: "oracle.cmd.maintenance.>", CommandType: "SetMaintenanceMode", ConsumerName: "oracle-maintenance", StreamName: "ORACLE_CMDS"},
		{Subject: "oracle.cmd.upgradelock.>", CommandType: "SetUpgradeLock", ConsumerName: "oracle-upgradelock", StreamName: "ORACLE_CMDS"},
		{Subject: "oracle.cmd.config.>", CommandType: "ModifyConfig", ConsumerName: "oracle-config", StreamName: "ORACLE_CMDS"},
	}
}

func NewNATSSubscriber(js jetstream.JetStream, commandChan chan<- RawCommand) *NATSSubscriber {
	return &NATSSubscriber{
		js:          js,
		commandChan: commandChan,
	}
}

// Subscribe creates JetStream consumers for all configured subjects.
// Consumers use explicit ACK, max_deliver=5, ack_wait=30s.
func (ns *NATSSubscriber) Subscribe(ctx context.Context, subjects []SubjectConfig) error {
	for _, cfg := range subjects {
		consumer, err := ns.js.CreateOrUpdateConsumer(ctx, cfg.StreamName, jetstream.ConsumerConfig{
			Durable:       cfg.ConsumerName,
			FilterSubject: cfg.Subject,
			AckPolicy:     jetstream.AckExplicitPolicy,
			AckWait:       30 * time.Second,
			MaxDeliver:    5,
			DeliverPolicy: jetstream.DeliverAllPolicy,
		})
		if err != nil {
			return fmt.Errorf("create consumer %s: %w", cfg.ConsumerName, err)
		}

		consumerContext, err := consumer.Consume(func(msg jetstream.Msg) {
			raw := RawCommand{
				Subject:   msg.Subject(),
				Data:      msg.Data(),
				Timestamp: time.Now(),
				AckFunc:   func() { msg.Ack() },
				NakFunc:   func() { msg.Nak() },
			}

			select {
			case ns.commandChan <- raw:
			case <-ctx.Done():
				msg.Nak()
			}
		})
		if err != nil {
			return fmt.Errorf("consume %s: %w", cfg.ConsumerName, err)
		}

		ns.consumers = append(ns.consumers, consumerContext)
		log.Printf("INFO: subscribed to %s (consumer=%s)", cfg.Subject, cfg.ConsumerName)
	}

	return nil
}

// EnsureStreams creates the required JetStream streams if they don't exist.
func EnsureStreams(ctx context.Context, js jetstream.JetStream) error {
	streams := []jetstream.StreamConfig{
		{
			Name:      "ORACLE_CMDS",
			Subjects:  []string{"oracle.cmd.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
	}

	for _, cfg := range streams {
		if _, err := js.CreateOrUpdateStream(ctx, cfg); err != nil {
			return fmt.Errorf("create stream %s: %w", cfg.Name, err)
		}
		log.Printf("INFO: ensured stream %s", cfg.Name)
	}

	return nil
}

// Stop gracefully stops all consumers.
func (ns *NATSSubscriber) Stop() {
	for _, cc := range ns.consumers {
		cc.Stop()
	}
	log.Println("INFO: NATS subscribers stopped")
}

// CommandTypeForSubject resolves the command type a subject carries.
func CommandTypeForSubject(subject string, subjects []SubjectConfig) (string, bool) {
	for _, cfg := range subjects {
		prefix := cfg.Subject[:len(cfg.Subject)-1] // strip trailing ">"
		if len(subject) >= len(prefix) && subject[:len(prefix)] == prefix {
			return cfg.CommandType, true
		}
	}
	return "", false
}

// ConnectNATS establishes a NATS connection and returns a JetStream context.
func ConnectNATS(url string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("WARN: NATS disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Println("INFO: NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	return nc, js, nil
}
