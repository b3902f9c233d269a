package redis

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// SessionPointers stores each user's current session id under
// quiz:current:{userID}, expiring after ttl so abandoned sessions stop
// being offered as current.
type SessionPointers struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSessionPointers(client *redis.Client, ttl time.Duration) *SessionPointers {
	return &SessionPointers{client: client, ttl: ttl}
}

func (p *SessionPointers) Set(ctx context.Context, userID, sessionID int64) error {
	return p.client.Set(ctx, p.key(userID), sessionID, p.ttl).Err()
}

func (p *SessionPointers) Get(ctx context.Context, userID int64) (int64, bool, error) {
	id, err := p.client.Get(ctx, p.key(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

func (p *SessionPointers) Clear(ctx context.Context, userID int64) error {
	return p.client.Del(ctx, p.key(userID)).Err()
}

func (p *SessionPointers) key(userID int64) string {
	return "quiz:current:" + strconv.FormatInt(userID, 10)
}
