package device

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/rentdesk/internal/model"
	appErr "github.com/xxxsen/rentdesk/internal/pkg/errors"
)

const (
	DefaultTokenTTL = 90 * 24 * time.Hour
	tokenBytes      = 32
)

type Repo interface {
	Create(ctx context.Context, device *model.Device) error
	GetByID(ctx context.Context, id string) (*model.Device, error)
	ListActiveTokens(ctx context.Context, identityID string, now int64) ([]*model.Device, error)
	ListByIdentity(ctx context.Context, identityID string) ([]*model.Device, error)
	FindBySighting(ctx context.Context, identityID, ip, fingerprint, userAgent string) (*model.Device, error)
	SetToken(ctx context.Context, id, tokenHash string, expiresAt int64, meta model.Device) error
	RefreshToken(ctx context.Context, id string, expiresAt int64, meta model.Device) error
	TouchLastSeen(ctx context.Context, id string, lastSeenAt int64) error
	MarkVerified(ctx context.Context, id string) error
	Revoke(ctx context.Context, id string) error
}

// Hasher is a salted one-way hash with its own verify primitive.
type Hasher interface {
	Hash(secret string) (string, error)
	Verify(secret, encoded string) (bool, error)
}

type ValidateResult struct {
	Valid               bool
	DeviceID            string
	FingerprintMismatch bool
}

type IssueParams struct {
	IdentityID    string
	IP            string
	UserAgent     string
	Fingerprint   string
	ExistingToken string
}

type IssueResult struct {
	Token    string
	DeviceID string
}

type SightingResult struct {
	IsNewDevice bool
	DeviceID    string
	Verified    bool
}

type Manager struct {
	repo     Repo
	hasher   Hasher
	tokenTTL time.Duration
	now      func() time.Time
}

func NewManager(repo Repo, hasher Hasher, tokenTTL time.Duration) *Manager {
	if tokenTTL <= 0 {
		tokenTTL = DefaultTokenTTL
	}
	return &Manager{repo: repo, hasher: hasher, tokenTTL: tokenTTL, now: time.Now}
}

func (m *Manager) TokenTTL() time.Duration {
	return m.tokenTTL
}

func newToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate device token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// match walks the identity's live tokens and returns the device whose hash
// verifies against token.
func (m *Manager) match(ctx context.Context, identityID, token string) (*model.Device, error) {
	if identityID == "" || token == "" {
		return nil, nil
	}
	devices, err := m.repo.ListActiveTokens(ctx, identityID, m.now().Unix())
	if err != nil {
		return nil, err
	}
	for _, d := range devices {
		ok, err := m.hasher.Verify(token, d.TokenHash)
		if err != nil {
			logutil.GetLogger(ctx).Warn("skip device with unreadable token hash",
				zap.String("device_id", d.ID), zap.Error(err))
			continue
		}
		if ok {
			return d, nil
		}
	}
	return nil, nil
}

func (m *Manager) ValidateToken(ctx context.Context, identityID, token, fingerprint string) (ValidateResult, error) {
	d, err := m.match(ctx, identityID, token)
	if err != nil {
		return ValidateResult{}, err
	}
	if d == nil {
		return ValidateResult{}, nil
	}
	if fingerprint != "" && d.Fingerprint != fingerprint {
		return ValidateResult{Valid: true, DeviceID: d.ID, FingerprintMismatch: true}, nil
	}
	if err := m.repo.TouchLastSeen(ctx, d.ID, m.now().Unix()); err != nil {
		return ValidateResult{}, err
	}
	return ValidateResult{Valid: true, DeviceID: d.ID}, nil
}

// IssueOrRefreshToken keeps the caller's existing token when it still matches
// one of the identity's devices; otherwise it mints a new token and binds it
// to the device seen at (ip, fingerprint), creating that device if needed.
func (m *Manager) IssueOrRefreshToken(ctx context.Context, p IssueParams) (IssueResult, error) {
	now := m.now()
	expiresAt := now.Add(m.tokenTTL).Unix()
	meta := model.Device{
		IPAddress:   p.IP,
		UserAgent:   p.UserAgent,
		Fingerprint: p.Fingerprint,
		LastSeenAt:  now.Unix(),
	}
	existing, err := m.match(ctx, p.IdentityID, p.ExistingToken)
	if err != nil {
		return IssueResult{}, err
	}
	if existing != nil {
		if err := m.repo.RefreshToken(ctx, existing.ID, expiresAt, meta); err != nil {
			return IssueResult{}, err
		}
		return IssueResult{Token: p.ExistingToken, DeviceID: existing.ID}, nil
	}

	token, err := newToken()
	if err != nil {
		return IssueResult{}, err
	}
	hash, err := m.hasher.Hash(token)
	if err != nil {
		return IssueResult{}, fmt.Errorf("hash device token: %w", err)
	}
	d, err := m.repo.FindBySighting(ctx, p.IdentityID, p.IP, p.Fingerprint, p.UserAgent)
	switch {
	case err == nil:
		if err := m.repo.SetToken(ctx, d.ID, hash, expiresAt, meta); err != nil {
			return IssueResult{}, err
		}
		return IssueResult{Token: token, DeviceID: d.ID}, nil
	case !appErr.IsNotFound(err):
		return IssueResult{}, err
	}
	d = &model.Device{
		ID:             uuid.NewString(),
		IdentityID:     p.IdentityID,
		IPAddress:      p.IP,
		UserAgent:      p.UserAgent,
		Fingerprint:    p.Fingerprint,
		TokenHash:      hash,
		TokenExpiresAt: expiresAt,
		IsVerified:     true,
		LastSeenAt:     now.Unix(),
		Ctime:          now.Unix(),
	}
	if err := m.repo.Create(ctx, d); err != nil {
		return IssueResult{}, err
	}
	return IssueResult{Token: token, DeviceID: d.ID}, nil
}

// Revoke disables the device holding token. Unknown tokens are ignored.
func (m *Manager) Revoke(ctx context.Context, identityID, token string) error {
	d, err := m.match(ctx, identityID, token)
	if err != nil || d == nil {
		return err
	}
	return m.repo.Revoke(ctx, d.ID)
}

// TrackSighting records that the identity was seen at (ip, fingerprint) and
// reports whether that origin is new.
func (m *Manager) TrackSighting(ctx context.Context, identityID, ip, userAgent, fingerprint string) (SightingResult, error) {
	now := m.now().Unix()
	d, err := m.repo.FindBySighting(ctx, identityID, ip, fingerprint, userAgent)
	if err == nil {
		if err := m.repo.TouchLastSeen(ctx, d.ID, now); err != nil {
			return SightingResult{}, err
		}
		return SightingResult{DeviceID: d.ID, Verified: d.IsVerified}, nil
	}
	if !appErr.IsNotFound(err) {
		return SightingResult{}, err
	}
	d = NewTracked(identityID, ip, userAgent, fingerprint, now)
	if err := m.repo.Create(ctx, d); err != nil {
		return SightingResult{}, err
	}
	return SightingResult{IsNewDevice: true, DeviceID: d.ID}, nil
}

// NewTracked builds an unverified device row without a token.
func NewTracked(identityID, ip, userAgent, fingerprint string, now int64) *model.Device {
	return &model.Device{
		ID:          uuid.NewString(),
		IdentityID:  identityID,
		IPAddress:   ip,
		UserAgent:   userAgent,
		Fingerprint: fingerprint,
		LastSeenAt:  now,
		Ctime:       now,
	}
}

func (m *Manager) MarkVerified(ctx context.Context, deviceID string) error {
	return m.repo.MarkVerified(ctx, deviceID)
}

func (m *Manager) ListDevices(ctx context.Context, identityID string) ([]*model.Device, error) {
	return m.repo.ListByIdentity(ctx, identityID)
}

// RevokeDevice revokes by id, refusing devices owned by another identity.
func (m *Manager) RevokeDevice(ctx context.Context, identityID, deviceID string) error {
	d, err := m.repo.GetByID(ctx, deviceID)
	if err != nil {
		return err
	}
	if d.IdentityID != identityID {
		return appErr.ErrNotFound
	}
	if d.IsRevoked {
		return nil
	}
	return m.repo.Revoke(ctx, d.ID)
}
