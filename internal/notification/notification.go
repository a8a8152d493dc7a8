package notification

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

const (
	// KindScheduleExecuted reports a charged and invoked timetable entry.
	KindScheduleExecuted = "schedule_executed"
	// KindScheduleDeactivated reports an entry switched off for lack of funds.
	KindScheduleDeactivated = "schedule_deactivated"
	// KindScheduleFailed reports an entry whose action aborted.
	KindScheduleFailed = "schedule_failed"
	// KindDepositCredited reports a credited deposit.
	KindDepositCredited = "deposit_credited"
	// KindWithdrawal reports a paid out withdrawal.
	KindWithdrawal = "withdrawal"
)

// Message describes a notification payload.
type Message struct {
	Kind        string `json:"kind"`
	Destination string `json:"destination"`
	Body        string `json:"body"`
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier writes notifications to the logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification", "kind", message.Kind, "destination", message.Destination, "body", message.Body)
	return nil
}

// RedisNotifier publishes notifications as JSON on a Redis channel.
type RedisNotifier struct {
	cache   *redis.Client
	channel string
}

// NewRedisNotifier publishes on channel through cache.
func NewRedisNotifier(cache *redis.Client, channel string) *RedisNotifier {
	return &RedisNotifier{cache: cache, channel: channel}
}

// Send publishes the message. It is a no-op without a client.
func (n *RedisNotifier) Send(ctx context.Context, message Message) error {
	if n == nil || n.cache == nil {
		return nil
	}
	payload, err := json.Marshal(message)
	if err != nil {
		return err
	}
	return n.cache.Publish(ctx, n.channel, payload).Err()
}

// Multi sends every message to each notifier in turn.
type Multi []Notifier

// Send delivers to all notifiers and joins their errors.
func (m Multi) Send(ctx context.Context, message Message) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, message); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
