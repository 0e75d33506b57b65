package model

type Device struct {
	ID             string `json:"id"`
	IdentityID     string `json:"identity_id"`
	IPAddress      string `json:"ip_address"`
	UserAgent      string `json:"user_agent"`
	Fingerprint    string `json:"fingerprint"`
	TokenHash      string `json:"-"`
	TokenExpiresAt int64  `json:"token_expires_at"`
	IsVerified     bool   `json:"is_verified"`
	IsRevoked      bool   `json:"is_revoked"`
	LastSeenAt     int64  `json:"last_seen_at"`
	Ctime          int64  `json:"ctime"`
}

// HasActiveToken reports whether the row carries a usable trust token at now.
func (d *Device) HasActiveToken(now int64) bool {
	return !d.IsRevoked && d.TokenHash != "" && d.TokenExpiresAt > now
}
