// Package events publishes domain events to Kafka for downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"sccompanion/internal/middleware"
	"sccompanion/internal/observability"

	"github.com/segmentio/kafka-go"
)

// Type names a domain event.
type Type string

const (
	UserRegistered  Type = "user.registered"
	UserBanned      Type = "user.banned"
	UserUnbanned    Type = "user.unbanned"
	UserRoleChanged Type = "user.role_changed"
	XPAwarded       Type = "xp.awarded"
	PostCreated     Type = "post.created"
	PostDeleted     Type = "post.deleted"
	PostLiked       Type = "post.liked"
	PostUnliked     Type = "post.unliked"
	PostModerated   Type = "post.moderated"
	FollowCreated   Type = "follow.created"
	FollowDeleted   Type = "follow.deleted"
	FriendRequested Type = "friend.requested"
	FriendAccepted  Type = "friend.accepted"
	FriendDeclined  Type = "friend.declined"
	FriendRemoved   Type = "friend.removed"
)

// Event is the message body written to the topic. ActorID did the thing;
// SubjectID is the user or post it was done to.
type Event struct {
	Type      Type           `json:"type"`
	ActorID   uint           `json:"actorId"`
	SubjectID uint           `json:"subjectId,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Publisher sends domain events.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events keyed by actor id so one user's events stay
// ordered within a partition.
type KafkaPublisher struct {
	writer messageWriter
}

// NewKafkaPublisher creates a synchronous writer for topic.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}}
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev Event) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatUint(uint64(ev.ActorID), 10)),
		Value: data,
		Time:  ev.Timestamp,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(ev.Type)},
		},
	})
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	observability.EventsPublished.WithLabelValues(string(ev.Type), outcome).Inc()
	if err != nil {
		return fmt.Errorf("write event %s: %w", ev.Type, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NopPublisher drops every event. It is used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close() error                         { return nil }

// NewPublisher returns a Kafka publisher, or a NopPublisher when brokers is
// empty.
func NewPublisher(brokers []string, topic string) Publisher {
	if len(brokers) == 0 {
		middleware.Logger.Info("Kafka brokers not configured; domain events disabled")
		return NopPublisher{}
	}
	middleware.Logger.Info("Publishing domain events to Kafka", "brokers", brokers, "topic", topic)
	return NewKafkaPublisher(brokers, topic)
}
