package model

// IdentityProvider is the external identity provider stored with a linked account.
type IdentityProvider string

const (
	IdentityProviderGoogle   IdentityProvider = "GOOGLE"
	IdentityProviderFacebook IdentityProvider = "FACEBOOK"
	IdentityProviderApple    IdentityProvider = "APPLE"
)

type OAuthAccount struct {
	ID             string           `json:"id"`
	IdentityID     string           `json:"identity_id"`
	Provider       IdentityProvider `json:"provider"`
	ProviderUserID string           `json:"provider_user_id"`
	Email          string           `json:"email"`
	Ctime          int64            `json:"ctime"`
	Mtime          int64            `json:"mtime"`
}
