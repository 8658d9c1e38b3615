package media

import (
	"context"

	"go.uber.org/zap"

	"github.com/ivankudzin/matchcore/internal/domain/model"
)

type URLSigner interface {
	PhotoURL(ctx context.Context, key string) (string, error)
}

// Service fills in presigned photo URLs on outgoing profiles. Signing is
// best-effort: a profile whose URL cannot be produced is returned without one.
type Service struct {
	signer URLSigner
	logger *zap.Logger
}

func NewService(signer URLSigner, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{signer: signer, logger: logger}
}

func (s *Service) Decorate(ctx context.Context, profiles ...*model.PublicProfile) {
	if s == nil || s.signer == nil {
		return
	}
	for _, profile := range profiles {
		if profile == nil || profile.PhotoKey == "" {
			continue
		}
		url, err := s.signer.PhotoURL(ctx, profile.PhotoKey)
		if err != nil {
			s.logger.Warn("sign photo url failed", zap.Int64("user_id", profile.ID), zap.Error(err))
			continue
		}
		profile.PhotoURL = url
	}
}
