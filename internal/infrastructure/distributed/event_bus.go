package distributed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"pairnet/internal/core/domain"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// EventType identifies a room lifecycle event on the bus.
type EventType string

const (
	EventParticipantJoined EventType = "participant.joined"
	EventParticipantLeft   EventType = "participant.left"
	EventMatchMade         EventType = "match.made"
	EventSessionEnded      EventType = "session.ended"
)

// Event is the payload published for every room lifecycle change.
// Other services of the event platform (analytics, notifications)
// subscribe to the per-event channel and consume these.
type Event struct {
	Type       EventType     `json:"type"`
	InstanceID string        `json:"instance_id"`
	RoomID     domain.RoomID `json:"room_id"`
	Timestamp  time.Time     `json:"timestamp"`

	Score           int    `json:"score,omitempty"`
	Repeat          bool   `json:"repeat,omitempty"`
	DurationSeconds int    `json:"duration_seconds,omitempty"`
	EndReason       string `json:"end_reason,omitempty"`
}

// EventBus publishes room lifecycle events over Redis pub/sub. It
// implements services.RoomObserver so it can be teed with the metrics
// collector.
type EventBus struct {
	client     *redis.Client
	instanceID string
	channel    string
	logger     *zap.SugaredLogger
	pubsub     *redis.PubSub
}

const publishTimeout = 2 * time.Second

// NewEventBus creates an event bus scoped to one event occurrence.
func NewEventBus(
	client *redis.Client,
	instanceID string,
	eventID domain.EventID,
	logger *zap.SugaredLogger,
) *EventBus {
	return &EventBus{
		client:     client,
		instanceID: instanceID,
		channel:    fmt.Sprintf("pairnet:events:%s", eventID),
		logger:     logger,
	}
}

// Publish publishes an event to the per-event channel.
func (eb *EventBus) Publish(ctx context.Context, event *Event) error {
	event.InstanceID = eb.instanceID
	event.Timestamp = time.Now().UTC()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := eb.client.Publish(ctx, eb.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	eb.logger.Debugw("published event",
		"type", event.Type,
		"room_id", event.RoomID,
	)

	return nil
}

// Subscribe consumes events published by other instances and calls
// handler for each. Blocks until ctx is cancelled.
func (eb *EventBus) Subscribe(ctx context.Context, handler func(*Event) error) error {
	if eb.pubsub != nil {
		return fmt.Errorf("already subscribed")
	}

	eb.pubsub = eb.client.Subscribe(ctx, eb.channel)
	defer eb.pubsub.Close()

	ch := eb.pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-ch:
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				eb.logger.Warnw("failed to unmarshal event",
					"error", err,
					"payload", msg.Payload,
				)
				continue
			}

			if event.InstanceID == eb.instanceID {
				continue
			}

			if err := handler(&event); err != nil {
				eb.logger.Warnw("error handling event",
					"type", event.Type,
					"error", err,
				)
			}
		}
	}
}

func (eb *EventBus) publishAsync(event *Event) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := eb.Publish(ctx, event); err != nil {
			eb.logger.Warnw("failed to publish room event",
				"type", event.Type,
				"error", err,
			)
		}
	}()
}

// RoomObserver implementation. Publishing never blocks the session loop.

func (eb *EventBus) ParticipantJoined(roomID domain.RoomID) {
	eb.publishAsync(&Event{Type: EventParticipantJoined, RoomID: roomID})
}

func (eb *EventBus) ParticipantLeft(roomID domain.RoomID) {
	eb.publishAsync(&Event{Type: EventParticipantLeft, RoomID: roomID})
}

func (eb *EventBus) MatchMade(roomID domain.RoomID, score int, repeat bool) {
	eb.publishAsync(&Event{Type: EventMatchMade, RoomID: roomID, Score: score, Repeat: repeat})
}

func (eb *EventBus) SessionEnded(roomID domain.RoomID, duration time.Duration, reason domain.EndReason) {
	eb.publishAsync(&Event{
		Type:            EventSessionEnded,
		RoomID:          roomID,
		DurationSeconds: int(duration.Seconds()),
		EndReason:       string(reason),
	})
}

func (eb *EventBus) ClaimConflict(domain.RoomID) {}

func (eb *EventBus) ScorerFallback() {}

// Close closes the subscription if one is open.
func (eb *EventBus) Close() error {
	if eb.pubsub != nil {
		return eb.pubsub.Close()
	}
	return nil
}
