package otp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/rentdesk/internal/model"
	appErr "github.com/xxxsen/rentdesk/internal/pkg/errors"
)

const DefaultTTL = 5 * time.Minute

// fastRetention keeps a fast entry around for one more lifetime past its
// expiry so a late verify can still report expired instead of invalid.
func fastRetention(ttl time.Duration) time.Duration {
	return 2 * ttl
}

// ErrFastMiss is returned by a FastTier when the key holds no code.
var ErrFastMiss = errors.New("otp fast tier miss")

// FastEntry is the value kept in the fast tier under the (purpose, identity) key.
type FastEntry struct {
	Code      string `json:"code"`
	ExpiresAt int64  `json:"expires_at"`
}

// FastTier is a TTL key-value store holding at most one code per key.
type FastTier interface {
	Save(ctx context.Context, key string, entry FastEntry, ttl time.Duration) error
	// ConsumeMatching deletes the entry only when its code equals code and
	// returns the stored entry either way.
	ConsumeMatching(ctx context.Context, key, code string) (FastEntry, bool, error)
	Delete(ctx context.Context, key string) error
}

// DurableTier is the relational fallback. Records are marked used, never deleted on consumption.
type DurableTier interface {
	Create(ctx context.Context, code *model.OtpCode) error
	InvalidateActive(ctx context.Context, identityID, purpose string) error
	FindLive(ctx context.Context, identityID, purpose, code string, now int64) (*model.OtpCode, error)
	FindLatestByCode(ctx context.Context, identityID, purpose, code string) (*model.OtpCode, error)
	MarkUsed(ctx context.Context, id string) (bool, error)
}

type VerifyResult struct {
	Valid       bool `json:"valid"`
	Expired     bool `json:"expired"`
	AlreadyUsed bool `json:"already_used"`
}

type Store struct {
	fast    FastTier
	durable DurableTier
	ttl     time.Duration
	now     func() time.Time
}

// NewStore builds a two tier store. fast may be nil, in which case every code
// lives in the durable tier.
func NewStore(fast FastTier, durable DurableTier, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{fast: fast, durable: durable, ttl: ttl, now: time.Now}
}

// WithDurable returns a copy of the store writing through durable, typically a
// transaction-bound repo.
func (s *Store) WithDurable(durable DurableTier) *Store {
	cp := *s
	cp.durable = durable
	return &cp
}

func (s *Store) TTL() time.Duration {
	return s.ttl
}

// Create issues a fresh code, replacing any live code for the same purpose.
func (s *Store) Create(ctx context.Context, identityID, purpose string) (string, error) {
	if identityID == "" || !model.ValidOtpPurpose(purpose) {
		return "", appErr.ErrInvalid
	}
	if err := s.InvalidateExisting(ctx, identityID, purpose); err != nil {
		return "", err
	}
	code, err := generateCode()
	if err != nil {
		return "", err
	}
	now := s.now()
	expiresAt := now.Add(s.ttl).Unix()
	if s.fast != nil {
		err := s.fast.Save(ctx, fastKey(identityID, purpose), FastEntry{Code: code, ExpiresAt: expiresAt}, fastRetention(s.ttl))
		if err == nil {
			return code, nil
		}
		logutil.GetLogger(ctx).Warn("otp fast tier save failed, falling back to durable tier",
			zap.String("identity_id", identityID), zap.String("purpose", purpose), zap.Error(err))
	}
	record := &model.OtpCode{
		ID:         uuid.NewString(),
		IdentityID: identityID,
		Code:       code,
		Purpose:    purpose,
		ExpiresAt:  expiresAt,
		Ctime:      now.Unix(),
	}
	if err := s.durable.Create(ctx, record); err != nil {
		return "", fmt.Errorf("store otp: %w", err)
	}
	return code, nil
}

// InvalidateExisting drops the live code in both tiers. Only durable failures are returned.
func (s *Store) InvalidateExisting(ctx context.Context, identityID, purpose string) error {
	if s.fast != nil {
		if err := s.fast.Delete(ctx, fastKey(identityID, purpose)); err != nil {
			logutil.GetLogger(ctx).Warn("otp fast tier delete failed",
				zap.String("identity_id", identityID), zap.String("purpose", purpose), zap.Error(err))
		}
	}
	if err := s.durable.InvalidateActive(ctx, identityID, purpose); err != nil {
		return fmt.Errorf("invalidate otp: %w", err)
	}
	return nil
}

func (s *Store) Verify(ctx context.Context, identityID, purpose, code string) (VerifyResult, error) {
	code, ok := normalizeCode(code)
	if !ok {
		return VerifyResult{}, fmt.Errorf("%w: code must be 6 digits", appErr.ErrInvalid)
	}
	now := s.now().Unix()
	if s.fast != nil {
		entry, matched, err := s.fast.ConsumeMatching(ctx, fastKey(identityID, purpose), code)
		switch {
		case err == nil && !matched:
			return VerifyResult{}, nil
		case err == nil && entry.ExpiresAt <= now:
			return VerifyResult{Expired: true}, nil
		case err == nil:
			return VerifyResult{Valid: true}, nil
		case errors.Is(err, ErrFastMiss):
		default:
			logutil.GetLogger(ctx).Warn("otp fast tier unavailable, checking durable tier",
				zap.String("identity_id", identityID), zap.String("purpose", purpose), zap.Error(err))
		}
	}
	return s.verifyDurable(ctx, identityID, purpose, code, now)
}

func (s *Store) verifyDurable(ctx context.Context, identityID, purpose, code string, now int64) (VerifyResult, error) {
	live, err := s.durable.FindLive(ctx, identityID, purpose, code, now)
	switch {
	case err == nil:
		consumed, err := s.durable.MarkUsed(ctx, live.ID)
		if err != nil {
			return VerifyResult{}, fmt.Errorf("consume otp: %w", err)
		}
		if !consumed {
			return VerifyResult{AlreadyUsed: true}, nil
		}
		return VerifyResult{Valid: true}, nil
	case !appErr.IsNotFound(err):
		return VerifyResult{}, fmt.Errorf("find otp: %w", err)
	}
	latest, err := s.durable.FindLatestByCode(ctx, identityID, purpose, code)
	if err != nil {
		if appErr.IsNotFound(err) {
			return VerifyResult{}, nil
		}
		return VerifyResult{}, fmt.Errorf("find otp: %w", err)
	}
	if latest.IsUsed {
		return VerifyResult{AlreadyUsed: true}, nil
	}
	if latest.ExpiresAt <= now {
		return VerifyResult{Expired: true}, nil
	}
	return VerifyResult{}, nil
}
