package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"github.com/thatsimonsguy/general-thermostat/internal/model"
)

// Event records one command issued by a controller.
type Event struct {
	ID         string    `json:"id"`
	Controller string    `json:"controller"`
	Entity     string    `json:"entity"`
	Action     string    `json:"action"`
	Trigger    string    `json:"trigger"`
	Reason     string    `json:"reason"`
	Current    *float64  `json:"current_temperature,omitempty"`
	Target     float64   `json:"target_temperature"`
	HVACMode   string    `json:"hvac_mode"`
	At         time.Time `json:"at"`
}

func NewCommandEvent(controller string, cmd model.Command, current *float64, target float64, mode model.HVACMode, at time.Time) Event {
	return Event{
		ID:         uuid.NewString(),
		Controller: controller,
		Entity:     cmd.Entity,
		Action:     cmd.Action.String(),
		Trigger:    string(cmd.Trigger),
		Reason:     cmd.Reason,
		Current:    current,
		Target:     target,
		HVACMode:   string(mode),
		At:         at,
	}
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Nop drops every event. It is used when no brokers are configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events as JSON, keyed by controller name so a
// controller's events stay ordered within a partition.
type KafkaPublisher struct {
	writer messageWriter
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				log.Warn().Err(err).Int("messages", len(messages)).Msg("Failed to deliver controller events")
			}
		},
	}

	log.Info().Strs("brokers", brokers).Str("topic", topic).Msg("Kafka event stream initialized")
	return &KafkaPublisher{writer: w}
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := kafka.Message{Key: []byte(ev.Controller), Value: payload, Time: ev.At}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
