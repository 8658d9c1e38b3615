package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/ivankudzin/matchcore/internal/domain/model"
)

var ErrCacheMiss = errors.New("cache miss")

const userKeyPrefix = "cache:user:"

// UserCacheRepo stores serialized users for read paths that tolerate
// staleness.
type UserCacheRepo struct {
	client *goredis.Client
	ttl    time.Duration
}

func NewUserCacheRepo(client *goredis.Client, ttl time.Duration) *UserCacheRepo {
	if ttl <= 0 {
		ttl = 3 * time.Minute
	}
	return &UserCacheRepo{client: client, ttl: ttl}
}

func (r *UserCacheRepo) Get(ctx context.Context, userID int64) (model.User, error) {
	if r.client == nil {
		return model.User{}, ErrCacheMiss
	}

	raw, err := r.client.Get(ctx, userKey(userID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return model.User{}, ErrCacheMiss
	}
	if err != nil {
		return model.User{}, fmt.Errorf("get cached user: %w", err)
	}

	var user model.User
	if err := json.Unmarshal(raw, &user); err != nil {
		return model.User{}, fmt.Errorf("decode cached user: %w", err)
	}
	return user, nil
}

func (r *UserCacheRepo) Set(ctx context.Context, user model.User) error {
	if r.client == nil {
		return nil
	}

	raw, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encode cached user: %w", err)
	}
	if err := r.client.Set(ctx, userKey(user.ID), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("set cached user: %w", err)
	}
	return nil
}

func (r *UserCacheRepo) Delete(ctx context.Context, userIDs ...int64) error {
	if r.client == nil || len(userIDs) == 0 {
		return nil
	}

	keys := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		keys = append(keys, userKey(id))
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("delete cached users: %w", err)
	}
	return nil
}

func userKey(userID int64) string {
	return userKeyPrefix + strconv.FormatInt(userID, 10)
}
