package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ivankudzin/matchcore/internal/domain/model"
	usersvc "github.com/ivankudzin/matchcore/internal/services/users"
)

type UserLookup interface {
	Get(ctx context.Context, userID int64) (model.User, error)
}

type ActivityRecorder interface {
	TouchLastActive(ctx context.Context, userID int64, at time.Time) error
}

// Service authenticates bearer tokens issued by the account service and
// resolves them to active users.
type Service struct {
	tokens   *TokenParser
	users    UserLookup
	activity ActivityRecorder
	logger   *zap.Logger
	now      func() time.Time
}

func NewService(tokens *TokenParser, users UserLookup, activity ActivityRecorder, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		tokens:   tokens,
		users:    users,
		activity: activity,
		logger:   logger,
		now:      time.Now,
	}
}

// Authenticate maps a bearer token to the identity of an active user.
// Unknown users yield ErrUnauthorized, deactivated ones ErrAccountInactive.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (Identity, error) {
	if s.tokens == nil || s.users == nil {
		return Identity{}, fmt.Errorf("auth service is not configured")
	}
	claims, err := s.tokens.Parse(accessToken)
	if err != nil {
		s.logger.Debug("access token rejected", zap.Error(err))
		return Identity{}, ErrUnauthorized
	}

	user, err := s.users.Get(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, usersvc.ErrNotFound) {
			return Identity{}, ErrUnauthorized
		}
		return Identity{}, fmt.Errorf("load token user: %w", err)
	}
	if !user.IsActive {
		return Identity{}, ErrAccountInactive
	}
	if s.activity != nil {
		if err := s.activity.TouchLastActive(ctx, user.ID, s.now().UTC()); err != nil {
			s.logger.Warn("touch last active failed", zap.Int64("user_id", user.ID), zap.Error(err))
		}
	}
	return Identity{UserID: user.ID, Verified: user.IsVerified}, nil
}
