package model

const (
	RoleManager = "MANAGER"
	RoleTenant  = "TENANT"
)

type Identity struct {
	ID              string `json:"id"`
	Email           string `json:"email"`
	PasswordHash    string `json:"-"`
	Role            string `json:"role"`
	FullName        string `json:"full_name"`
	Phone           string `json:"phone"`
	CompanyName     string `json:"company_name"`
	IsActive        bool   `json:"is_active"`
	IsEmailVerified bool   `json:"is_email_verified"`
	Ctime           int64  `json:"ctime"`
	Mtime           int64  `json:"mtime"`
}

// IdentitySnapshot is the resolved identity plus its current entitlement, as
// cached by the identity cache and attached to gated requests.
type IdentitySnapshot struct {
	ID              string                `json:"id"`
	Email           string                `json:"email"`
	Role            string                `json:"role"`
	FullName        string                `json:"full_name,omitempty"`
	IsActive        bool                  `json:"is_active"`
	IsEmailVerified bool                  `json:"is_email_verified"`
	Subscription    *SubscriptionSnapshot `json:"subscription,omitempty"`
}

func (s *IdentitySnapshot) ProfileComplete() bool {
	return s.FullName != ""
}

// IdentityPatch is a partial update; only set fields are written.
type IdentityPatch struct {
	FullName        Optional[string]
	Phone           Optional[string]
	CompanyName     Optional[string]
	IsActive        Optional[bool]
	IsEmailVerified Optional[bool]
}

func (p IdentityPatch) Empty() bool {
	return !p.FullName.IsSet() && !p.Phone.IsSet() && !p.CompanyName.IsSet() &&
		!p.IsActive.IsSet() && !p.IsEmailVerified.IsSet()
}
