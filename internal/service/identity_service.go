package service

import (
	"context"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/rentdesk/internal/cache"
	"github.com/xxxsen/rentdesk/internal/model"
	appErr "github.com/xxxsen/rentdesk/internal/pkg/errors"
)

type IdentityRepository interface {
	GetSnapshot(ctx context.Context, id string) (*model.IdentitySnapshot, error)
	Update(ctx context.Context, id string, patch model.IdentityPatch, mtime int64) error
}

// IdentityService resolves identity snapshots through the identity cache and
// owns every identity mutation so cached views are dropped on write.
type IdentityService struct {
	repo  IdentityRepository
	cache *cache.IdentityCache
	views *cache.GenericCache
	now   func() time.Time
}

func NewIdentityService(repo IdentityRepository, identities *cache.IdentityCache, views *cache.GenericCache) *IdentityService {
	return &IdentityService{repo: repo, cache: identities, views: views, now: time.Now}
}

func identityViewPattern(id string) string {
	return "identity:" + id + ":*"
}

// Resolve implements middleware.IdentityResolver.
func (s *IdentityService) Resolve(ctx context.Context, id string) (*model.IdentitySnapshot, error) {
	if snapshot, ok := s.cache.Get(id); ok {
		return snapshot, nil
	}
	snapshot, err := s.repo.GetSnapshot(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(snapshot); err != nil {
		logutil.GetLogger(ctx).Warn("identity cache set failed", zap.String("identity_id", id), zap.Error(err))
	}
	return snapshot, nil
}

func (s *IdentityService) Me(ctx context.Context, id string) (*model.IdentitySnapshot, error) {
	return s.Resolve(ctx, id)
}

type ProfileInput struct {
	FullName    string
	Phone       string
	CompanyName string
}

// CompleteProfile sets the fields a new manager must provide before the rest
// of the product unlocks.
func (s *IdentityService) CompleteProfile(ctx context.Context, id string, input ProfileInput) (*model.IdentitySnapshot, error) {
	fullName := strings.TrimSpace(input.FullName)
	if fullName == "" {
		return nil, appErr.ErrInvalid
	}
	return s.UpdateProfile(ctx, id, model.IdentityPatch{
		FullName:    model.Some(fullName),
		Phone:       model.Some(strings.TrimSpace(input.Phone)),
		CompanyName: model.Some(strings.TrimSpace(input.CompanyName)),
	})
}

func (s *IdentityService) UpdateProfile(ctx context.Context, id string, patch model.IdentityPatch) (*model.IdentitySnapshot, error) {
	if patch.Empty() {
		return nil, appErr.ErrInvalid
	}
	if name, ok := patch.FullName.Get(); ok && strings.TrimSpace(name) == "" {
		return nil, appErr.ErrInvalid
	}
	if err := s.update(ctx, id, patch); err != nil {
		return nil, err
	}
	return s.Resolve(ctx, id)
}

func (s *IdentityService) SetActive(ctx context.Context, id string, active bool) error {
	return s.update(ctx, id, model.IdentityPatch{IsActive: model.Some(active)})
}

func (s *IdentityService) MarkEmailVerified(ctx context.Context, id string) error {
	return s.update(ctx, id, model.IdentityPatch{IsEmailVerified: model.Some(true)})
}

func (s *IdentityService) update(ctx context.Context, id string, patch model.IdentityPatch) error {
	if err := s.repo.Update(ctx, id, patch, s.now().Unix()); err != nil {
		return err
	}
	s.Invalidate(ctx, id)
	return nil
}

// Invalidate drops the cached snapshot and every cached view of the identity.
func (s *IdentityService) Invalidate(ctx context.Context, id string) {
	s.cache.Delete(id)
	if s.views == nil {
		return
	}
	if _, err := s.views.DelPattern(ctx, identityViewPattern(id)); err != nil {
		logutil.GetLogger(ctx).Warn("drop identity views failed", zap.String("identity_id", id), zap.Error(err))
	}
}
