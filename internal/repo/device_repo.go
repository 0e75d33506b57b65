package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/rentdesk/internal/model"
	"github.com/xxxsen/rentdesk/internal/pkg/dbutil"
	appErr "github.com/xxxsen/rentdesk/internal/pkg/errors"
)

var deviceColumns = []string{
	"id", "identity_id", "ip_address", "user_agent", "fingerprint", "token_hash",
	"token_expires_at", "is_verified", "is_revoked", "last_seen_at", "ctime",
}

type DeviceRepo struct {
	db DBTX
}

func NewDeviceRepo(db DBTX) *DeviceRepo {
	return &DeviceRepo{db: db}
}

func (r *DeviceRepo) Create(ctx context.Context, device *model.Device) error {
	data := map[string]interface{}{
		"id":               device.ID,
		"identity_id":      device.IdentityID,
		"ip_address":       device.IPAddress,
		"user_agent":       device.UserAgent,
		"fingerprint":      device.Fingerprint,
		"token_hash":       device.TokenHash,
		"token_expires_at": device.TokenExpiresAt,
		"is_verified":      device.IsVerified,
		"is_revoked":       device.IsRevoked,
		"last_seen_at":     device.LastSeenAt,
		"ctime":            device.Ctime,
	}
	sqlStr, args, err := builder.BuildInsert("devices", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *DeviceRepo) GetByID(ctx context.Context, id string) (*model.Device, error) {
	items, err := r.list(ctx, map[string]interface{}{"id": id})
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, appErr.ErrNotFound
	}
	return items[0], nil
}

// ListActiveTokens returns the identity's non-revoked devices holding an unexpired token.
func (r *DeviceRepo) ListActiveTokens(ctx context.Context, identityID string, now int64) ([]*model.Device, error) {
	return r.list(ctx, map[string]interface{}{
		"identity_id":        identityID,
		"is_revoked":         false,
		"token_hash !=":      "",
		"token_expires_at >": now,
		"_orderby":           "last_seen_at desc",
	})
}

func (r *DeviceRepo) ListByIdentity(ctx context.Context, identityID string) ([]*model.Device, error) {
	return r.list(ctx, map[string]interface{}{
		"identity_id": identityID,
		"_orderby":    "last_seen_at desc",
	})
}

// FindBySighting matches a non-revoked device on (ip, fingerprint); the user
// agent is added to the match when no fingerprint was supplied.
func (r *DeviceRepo) FindBySighting(ctx context.Context, identityID, ip, fingerprint, userAgent string) (*model.Device, error) {
	where := map[string]interface{}{
		"identity_id": identityID,
		"ip_address":  ip,
		"fingerprint": fingerprint,
		"is_revoked":  false,
		"_orderby":    "last_seen_at desc",
		"_limit":      []uint{0, 1},
	}
	if fingerprint == "" {
		where["user_agent"] = userAgent
	}
	items, err := r.list(ctx, where)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, appErr.ErrNotFound
	}
	return items[0], nil
}

func (r *DeviceRepo) list(ctx context.Context, where map[string]interface{}) ([]*model.Device, error) {
	sqlStr, args, err := builder.BuildSelect("devices", where, deviceColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var items []*model.Device
	for rows.Next() {
		item, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func scanDevice(rows *sql.Rows) (*model.Device, error) {
	var d model.Device
	if err := rows.Scan(&d.ID, &d.IdentityID, &d.IPAddress, &d.UserAgent, &d.Fingerprint, &d.TokenHash,
		&d.TokenExpiresAt, &d.IsVerified, &d.IsRevoked, &d.LastSeenAt, &d.Ctime); err != nil {
		return nil, err
	}
	return &d, nil
}

// SetToken replaces the device's trust token hash and marks it verified.
func (r *DeviceRepo) SetToken(ctx context.Context, id, tokenHash string, expiresAt int64, meta model.Device) error {
	return r.update(ctx, id, map[string]interface{}{
		"token_hash":       tokenHash,
		"token_expires_at": expiresAt,
		"is_verified":      true,
		"ip_address":       meta.IPAddress,
		"user_agent":       meta.UserAgent,
		"fingerprint":      meta.Fingerprint,
		"last_seen_at":     meta.LastSeenAt,
	})
}

// RefreshToken extends the current token and updates request metadata
// without touching the hash.
func (r *DeviceRepo) RefreshToken(ctx context.Context, id string, expiresAt int64, meta model.Device) error {
	update := map[string]interface{}{
		"token_expires_at": expiresAt,
		"ip_address":       meta.IPAddress,
		"user_agent":       meta.UserAgent,
		"last_seen_at":     meta.LastSeenAt,
	}
	if meta.Fingerprint != "" {
		update["fingerprint"] = meta.Fingerprint
	}
	return r.update(ctx, id, update)
}

func (r *DeviceRepo) TouchLastSeen(ctx context.Context, id string, lastSeenAt int64) error {
	return r.update(ctx, id, map[string]interface{}{"last_seen_at": lastSeenAt})
}

func (r *DeviceRepo) MarkVerified(ctx context.Context, id string) error {
	return r.update(ctx, id, map[string]interface{}{"is_verified": true})
}

func (r *DeviceRepo) Revoke(ctx context.Context, id string) error {
	return r.update(ctx, id, map[string]interface{}{"is_revoked": true})
}

func (r *DeviceRepo) update(ctx context.Context, id string, update map[string]interface{}) error {
	sqlStr, args, err := builder.BuildUpdate("devices", map[string]interface{}{"id": id}, update)
	if err != nil {
		return err
	}
	affected, err := execAffected(ctx, r.db, sqlStr, args)
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}

// DeleteStale removes revoked devices and devices unseen since before.
func (r *DeviceRepo) DeleteStale(ctx context.Context, before int64) (int64, error) {
	sqlStr := "DELETE FROM devices WHERE last_seen_at < ? AND (is_revoked = TRUE OR token_expires_at < ?)"
	return execAffected(ctx, r.db, sqlStr, []interface{}{before, before})
}
