package users

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/ivankudzin/matchcore/internal/domain/model"
	pgrepo "github.com/ivankudzin/matchcore/internal/repo/postgres"
	redrepo "github.com/ivankudzin/matchcore/internal/repo/redis"
)

var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("user not found")
)

type Store interface {
	GetByID(ctx context.Context, userID int64) (model.User, error)
}

type Cache interface {
	Get(ctx context.Context, userID int64) (model.User, error)
	Set(ctx context.Context, user model.User) error
	Delete(ctx context.Context, userIDs ...int64) error
}

// Directory is a read-through view of user profiles. Cached entries may be a
// few minutes stale, so callers that need authoritative state read the store
// inside their own transaction instead.
type Directory struct {
	store  Store
	cache  Cache
	group  singleflight.Group
	logger *zap.Logger
}

func NewDirectory(store Store, cache Cache, logger *zap.Logger) *Directory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Directory{store: store, cache: cache, logger: logger}
}

func (d *Directory) Get(ctx context.Context, userID int64) (model.User, error) {
	if userID <= 0 {
		return model.User{}, ErrValidation
	}
	if d.store == nil {
		return model.User{}, fmt.Errorf("user store is not configured")
	}

	if d.cache != nil {
		user, err := d.cache.Get(ctx, userID)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, redrepo.ErrCacheMiss) {
			d.logger.Warn("user cache read failed", zap.Int64("user_id", userID), zap.Error(err))
		}
	}

	v, err, _ := d.group.Do(strconv.FormatInt(userID, 10), func() (any, error) {
		user, err := d.store.GetByID(ctx, userID)
		if err != nil {
			return model.User{}, err
		}
		if d.cache != nil {
			if err := d.cache.Set(ctx, user); err != nil {
				d.logger.Warn("user cache write failed", zap.Int64("user_id", userID), zap.Error(err))
			}
		}
		return user, nil
	})
	if err != nil {
		if errors.Is(err, pgrepo.ErrUserNotFound) {
			return model.User{}, ErrNotFound
		}
		return model.User{}, fmt.Errorf("load user %d: %w", userID, err)
	}

	return v.(model.User), nil
}

// Invalidate drops cached copies after a write. Failures are logged only.
func (d *Directory) Invalidate(ctx context.Context, userIDs ...int64) {
	if d.cache == nil || len(userIDs) == 0 {
		return
	}
	if err := d.cache.Delete(ctx, userIDs...); err != nil {
		d.logger.Warn("user cache invalidation failed", zap.Int64s("user_ids", userIDs), zap.Error(err))
	}
}
