package kafka

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Notification asks the mailer to render template for a user.
type Notification struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	Template  string         `json:"template"`
	Data      map[string]any `json:"data,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Notifier hands notifications to the mailer through the notifications topic.
type Notifier struct {
	producer *Producer
	topic    string
	now      func() time.Time
}

func NewNotifier(producer *Producer, cfg Config) *Notifier {
	return &Notifier{producer: producer, topic: cfg.Topic(TopicNotifications), now: time.Now}
}

func (n *Notifier) Notify(ctx context.Context, userID, template string, data map[string]any) error {
	return n.producer.Send(ctx, n.topic, userID, Notification{
		ID:        uuid.NewString(),
		UserID:    userID,
		Template:  template,
		Data:      data,
		CreatedAt: n.now().UTC(),
	})
}
