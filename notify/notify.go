// Package notify delivers committed workflow events to interested parties.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"opsconsole-backend/workflow"
)

// Log writes every event to a logrus entry.
type Log struct {
	entry *logrus.Entry
}

func NewLog(entry *logrus.Entry) *Log {
	return &Log{entry: entry}
}

func (n *Log) Notify(_ context.Context, e workflow.Event) error {
	n.entry.WithFields(logrus.Fields{
		"kind":       e.Kind,
		"request_id": e.RequestID,
		"status":     e.Status,
		"actor_id":   e.ActorID,
		"role":       e.ActorRole,
	}).Info("workflow event")
	return nil
}

// Redis publishes events as JSON on a pub/sub channel.
type Redis struct {
	client  *redis.Client
	channel string
}

func NewRedis(client *redis.Client, channel string) *Redis {
	return &Redis{client: client, channel: channel}
}

// Dial connects to url and checks the connection.
func Dial(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(ctxPing).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func (n *Redis) Notify(ctx context.Context, e workflow.Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if err := n.client.Publish(ctx, n.channel, body).Err(); err != nil {
		return fmt.Errorf("publish %s event %s: %w", e.Kind, e.RequestID, err)
	}
	return nil
}

// Multi delivers to every notifier and joins their errors.
type Multi []workflow.Notifier

func (m Multi) Notify(ctx context.Context, e workflow.Event) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ workflow.Notifier = (*Log)(nil)
	_ workflow.Notifier = (*Redis)(nil)
	_ workflow.Notifier = Multi(nil)
)
