package workflow

import (
	"context"
	"encoding/json"
	"time"

	"bitbucket.org/mmdatafocus/quartermaster_backend/config"
	"cloud.google.com/go/pubsub"
)

// NotifyMessage is the broadcast envelope published after significant state
// changes (execution, cancellation, unlock).
type NotifyMessage struct {
	BusinessId string                 `json:"business_id"`
	Event      string                 `json:"event"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
	OccurredAt time.Time              `json:"occurred_at"`
}

// NotifyAsync publishes fire-and-forget. Delivery is best effort; the state
// change has already committed, so failures are only logged.
func NotifyAsync(businessId string, event string, payload map[string]interface{}) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		logger := config.GetLogger()

		topicID := config.GetNotificationTopicID()
		if topicID == "" {
			return
		}
		client, err := config.GetPubSubClient(ctx)
		if err != nil {
			config.LogError(logger, "notify.go", "NotifyAsync", "GetPubSubClient", event, err)
			return
		}

		msg := NotifyMessage{
			BusinessId: businessId,
			Event:      event,
			Payload:    payload,
			OccurredAt: time.Now(),
		}
		data, err := json.Marshal(msg)
		if err != nil {
			config.LogError(logger, "notify.go", "NotifyAsync", "Marshal", event, err)
			return
		}

		result := client.Topic(topicID).Publish(ctx, &pubsub.Message{Data: data})
		if _, err := result.Get(ctx); err != nil {
			config.LogError(logger, "notify.go", "NotifyAsync", "Publish", event, err)
		}
	}()
}
