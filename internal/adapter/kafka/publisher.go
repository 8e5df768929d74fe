// Package kafka publishes bias updates to downstream consumers, e.g.
// the correction appliers running next to the compositing chain.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/meteoworks/radarbias/internal/domain"
	"github.com/meteoworks/radarbias/internal/kalman"
)

// BiasUpdate is the wire format of one published filter update.
type BiasUpdate struct {
	Timestamp  string  `json:"timestamp"` // YYYYMMDDHHMM, UTC
	Beta       float64 `json:"beta"`
	P          float64 `json:"p"`
	CorrFactor float64 `json:"corr_factor"`
}

// Publisher produces bias updates to a Kafka topic.
type Publisher struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewPublisher creates a Kafka producer for the bias update topic.
func NewPublisher(brokers []string, topic string, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Publisher{writer: w, logger: logger}
}

// Publish serializes one filter update and writes it to the topic. The
// message key is the update timestamp so that compacted topics keep the
// latest state per slot.
func (p *Publisher) Publish(ctx context.Context, ts time.Time, state kalman.FilterState, corrFactor float64) error {
	update := BiasUpdate{
		Timestamp:  domain.FormatTimestamp(ts),
		Beta:       state.Beta,
		P:          state.P,
		CorrFactor: corrFactor,
	}
	msg, err := serializeToMessage(update)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, msg)
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

func serializeToMessage(update BiasUpdate) (kafkago.Message, error) {
	data, err := json.Marshal(update)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize bias update: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(update.Timestamp),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "published_at", Value: []byte(domain.Now().UTC().Format(time.RFC3339))},
		},
	}, nil
}
