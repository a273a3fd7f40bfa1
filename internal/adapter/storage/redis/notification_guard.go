package redis

import (
	"context"
	"fmt"
	"time"

	"invoice-financing/internal/core/ports"

	goredis "github.com/redis/go-redis/v9"
)

const (
	notificationPrefix = "notification:"
	claimProcessing    = "processing"
	claimDone          = "done"
)

// releaseClaim deletes the key only while it is still an in-flight claim,
// so a late Release never erases a finished notification.
var releaseClaim = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

var _ ports.NotificationGuard = (*NotificationGuard)(nil)

// NotificationGuard claims webhook notification IDs with SET NX.
type NotificationGuard struct {
	client goredis.UniversalClient
}

// NewNotificationGuard creates a Redis-backed notification guard.
func NewNotificationGuard(client goredis.UniversalClient) *NotificationGuard {
	return &NotificationGuard{client: client}
}

// Acquire claims the notification ID for ttl. False means another delivery holds it
// or it was already processed.
func (g *NotificationGuard) Acquire(ctx context.Context, notificationID string, ttl time.Duration) (bool, error) {
	err := g.client.SetArgs(ctx, notificationPrefix+notificationID, claimProcessing, goredis.SetArgs{
		Mode: "NX",
		TTL:  ttl,
	}).Err()
	if err == goredis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("acquiring notification %s: %w", notificationID, err)
	}
	return true, nil
}

// MarkDone replaces the claim with a finished marker that lives for ttl.
func (g *NotificationGuard) MarkDone(ctx context.Context, notificationID string, ttl time.Duration) error {
	if err := g.client.Set(ctx, notificationPrefix+notificationID, claimDone, ttl).Err(); err != nil {
		return fmt.Errorf("marking notification %s done: %w", notificationID, err)
	}
	return nil
}

// Release drops an in-flight claim.
func (g *NotificationGuard) Release(ctx context.Context, notificationID string) error {
	err := releaseClaim.Run(ctx, g.client, []string{notificationPrefix + notificationID}, claimProcessing).Err()
	if err != nil && err != goredis.Nil {
		return fmt.Errorf("releasing notification %s: %w", notificationID, err)
	}
	return nil
}
