// Package events publishes attempt lifecycle events through watermill.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v2/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"

	"quiz-attempt-service/internal/domain"
)

const DefaultTopic = "quiz.submissions"

// SubmissionRecorded is the payload emitted once per persisted Submission.
type SubmissionRecorded struct {
	SubmissionID  string    `json:"submissionId"`
	QuizCode      string    `json:"quizCode"`
	ParticipantID string    `json:"participantId"`
	Score         int       `json:"score"`
	Total         int       `json:"total"`
	Auto          bool      `json:"auto"`
	SubmittedAt   time.Time `json:"submittedAt"`
}

// Publisher implements app.EventPublisher on top of any watermill publisher.
type Publisher struct {
	pub   message.Publisher
	topic string
}

func NewPublisher(pub message.Publisher, topic string) *Publisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Publisher{pub: pub, topic: topic}
}

func (p *Publisher) SubmissionRecorded(ctx context.Context, sub domain.Submission) error {
	payload, err := json.Marshal(SubmissionRecorded{
		SubmissionID:  sub.ID,
		QuizCode:      sub.Key.QuizCode,
		ParticipantID: sub.Key.ParticipantID,
		Score:         sub.Score,
		Total:         sub.Total,
		Auto:          sub.Auto,
		SubmittedAt:   sub.SubmittedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := message.NewMessage(uuid.NewString(), payload)
	msg.Metadata.Set("quiz_code", sub.Key.QuizCode)
	msg.Metadata.Set("participant_id", sub.Key.ParticipantID)
	msg.SetContext(ctx)
	if err := p.pub.Publish(p.topic, msg); err != nil {
		return fmt.Errorf("publish %s: %w", p.topic, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.pub.Close()
}

// NewGoChannel returns the in-process pub/sub used when no broker is configured.
func NewGoChannel(logger *slog.Logger) *gochannel.GoChannel {
	return gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, watermill.NewSlogLogger(logger))
}

// NewKafkaPublisher connects a synchronous Kafka publisher.
func NewKafkaPublisher(brokers []string, logger *slog.Logger) (message.Publisher, error) {
	pub, err := kafka.NewPublisher(kafka.PublisherConfig{
		Brokers:   brokers,
		Marshaler: kafka.DefaultMarshaler{},
	}, watermill.NewSlogLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("kafka publisher: %w", err)
	}
	return pub, nil
}
