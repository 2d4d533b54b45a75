package events

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill/message"
)

// Consume decodes SubmissionRecorded messages and hands them to handle until ctx
// ends. Messages that fail to decode are acked and dropped; handler errors nack.
func Consume(ctx context.Context, sub message.Subscriber, topic string, handle func(context.Context, SubmissionRecorded) error) error {
	if topic == "" {
		topic = DefaultTopic
	}
	messages, err := sub.Subscribe(ctx, topic)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			var event SubmissionRecorded
			if err := json.Unmarshal(msg.Payload, &event); err != nil {
				slog.WarnContext(ctx, "dropping malformed event", "message_id", msg.UUID, "error", err)
				msg.Ack()
				continue
			}
			if err := handle(msg.Context(), event); err != nil {
				msg.Nack()
				continue
			}
			msg.Ack()
		}
	}
}

// AuditLog writes each recorded submission to the structured log.
func AuditLog(logger *slog.Logger) func(context.Context, SubmissionRecorded) error {
	return func(ctx context.Context, e SubmissionRecorded) error {
		logger.InfoContext(ctx, "submission recorded",
			"submission_id", e.SubmissionID,
			"quiz_code", e.QuizCode,
			"participant_id", e.ParticipantID,
			"score", e.Score,
			"total", e.Total,
			"auto", e.Auto,
		)
		return nil
	}
}
