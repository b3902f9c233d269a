package redis

import (
	"context"
	"errors"
	"strconv"

	"github.com/redis/go-redis/v9"

	"quiz-xp-service/internal/domain"
)

const globalBoardKey = "leaderboard:xp:global"

// RankIndex mirrors stat XP into sorted sets:
//
//	leaderboard:xp:global            member "{user}:{category}"
//	leaderboard:xp:category:{id}     member "{user}"
//
// A rank is the number of members with strictly greater XP plus one.
type RankIndex struct {
	client *redis.Client
}

func NewRankIndex(client *redis.Client) *RankIndex {
	return &RankIndex{client: client}
}

func (r *RankIndex) Record(ctx context.Context, stat domain.UserStat) error {
	score := float64(stat.XP)
	pipe := r.client.TxPipeline()
	pipe.ZAdd(ctx, globalBoardKey, redis.Z{Score: score, Member: stat.Key()})
	pipe.ZAdd(ctx, categoryBoardKey(stat.CategoryID), redis.Z{Score: score, Member: strconv.FormatInt(stat.UserID, 10)})
	_, err := pipe.Exec(ctx)
	return err
}

// Rank reports false when the member is missing or its indexed XP is stale.
// It does not know whether other members are missing; callers compare Size
// with the store first.
func (r *RankIndex) Rank(ctx context.Context, categoryID int64, stat domain.UserStat) (int, bool, error) {
	key, member := scopeKey(categoryID), scopeMember(categoryID, stat)

	score, err := r.client.ZScore(ctx, key, member).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	if int(score) != stat.XP {
		return 0, false, nil
	}

	above, err := r.client.ZCount(ctx, key, "("+strconv.Itoa(stat.XP), "+inf").Result()
	if err != nil {
		return 0, false, err
	}
	return int(above) + 1, true, nil
}

func (r *RankIndex) Size(ctx context.Context, categoryID int64) (int, error) {
	n, err := r.client.ZCard(ctx, scopeKey(categoryID)).Result()
	return int(n), err
}

// Rebuild swaps a scope's sorted set for one built from stats in a single transaction.
func (r *RankIndex) Rebuild(ctx context.Context, categoryID int64, stats []domain.UserStat) error {
	key := scopeKey(categoryID)
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, key)
	if len(stats) > 0 {
		members := make([]redis.Z, len(stats))
		for i, stat := range stats {
			members[i] = redis.Z{Score: float64(stat.XP), Member: scopeMember(categoryID, stat)}
		}
		pipe.ZAdd(ctx, key, members...)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func scopeKey(categoryID int64) string {
	if categoryID == 0 {
		return globalBoardKey
	}
	return categoryBoardKey(categoryID)
}

func scopeMember(categoryID int64, stat domain.UserStat) string {
	if categoryID == 0 {
		return stat.Key()
	}
	return strconv.FormatInt(stat.UserID, 10)
}

func categoryBoardKey(categoryID int64) string {
	return "leaderboard:xp:category:" + strconv.FormatInt(categoryID, 10)
}
