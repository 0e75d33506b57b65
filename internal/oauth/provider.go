package oauth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/xxxsen/rentdesk/internal/model"
)

// Provider is the closed set of supported external identity providers.
type Provider int

const (
	Google Provider = iota + 1
	Facebook
	Apple
)

var Providers = []Provider{Google, Facebook, Apple}

func ParseProvider(name string) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "google":
		return Google, nil
	case "facebook":
		return Facebook, nil
	case "apple":
		return Apple, nil
	}
	return 0, fmt.Errorf("unsupported oauth provider: %q", name)
}

func (p Provider) String() string {
	switch p {
	case Google:
		return "google"
	case Facebook:
		return "facebook"
	case Apple:
		return "apple"
	}
	return "unknown"
}

// ExternalIdentity maps the provider to the value stored with linked accounts.
func (p Provider) ExternalIdentity() model.IdentityProvider {
	switch p {
	case Google:
		return model.IdentityProviderGoogle
	case Facebook:
		return model.IdentityProviderFacebook
	case Apple:
		return model.IdentityProviderApple
	}
	return ""
}

type Profile struct {
	Provider       Provider
	ProviderUserID string
	Email          string
}

// Exchanger drives the authorization code flow of one provider.
type Exchanger interface {
	Provider() Provider
	AuthURL(state string) (string, error)
	ExchangeCode(ctx context.Context, code string) (*Profile, error)
}

type ProviderConfig struct {
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret"`
	RedirectURL  string   `json:"redirect_url"`
	Scopes       []string `json:"scopes"`
}

func (c ProviderConfig) normalized() ProviderConfig {
	c.ClientID = strings.TrimSpace(c.ClientID)
	c.ClientSecret = strings.TrimSpace(c.ClientSecret)
	c.RedirectURL = strings.TrimSpace(c.RedirectURL)
	return c
}

// AppleConfig signs the client secret with the team's ES256 key instead of a static secret.
type AppleConfig struct {
	ClientID      string   `json:"client_id"`
	TeamID        string   `json:"team_id"`
	KeyID         string   `json:"key_id"`
	PrivateKeyPEM string   `json:"private_key_pem"`
	RedirectURL   string   `json:"redirect_url"`
	Scopes        []string `json:"scopes"`
}

type Config struct {
	Google   *ProviderConfig `json:"google"`
	Facebook *ProviderConfig `json:"facebook"`
	Apple    *AppleConfig    `json:"apple"`
}

// Registry holds the exchangers of the configured providers.
type Registry struct {
	exchangers map[Provider]Exchanger
}

func NewRegistry(cfg Config, client *http.Client) (*Registry, error) {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	r := &Registry{exchangers: map[Provider]Exchanger{}}
	if cfg.Google != nil {
		r.exchangers[Google] = newGoogleExchanger(cfg.Google.normalized(), client)
	}
	if cfg.Facebook != nil {
		r.exchangers[Facebook] = newFacebookExchanger(cfg.Facebook.normalized(), client)
	}
	if cfg.Apple != nil {
		apple, err := newAppleExchanger(*cfg.Apple, client)
		if err != nil {
			return nil, err
		}
		r.exchangers[Apple] = apple
	}
	return r, nil
}

// NewRegistryWith builds a registry from ready exchangers.
func NewRegistryWith(exchangers ...Exchanger) *Registry {
	r := &Registry{exchangers: map[Provider]Exchanger{}}
	for _, e := range exchangers {
		r.exchangers[e.Provider()] = e
	}
	return r
}

func (r *Registry) Get(p Provider) (Exchanger, bool) {
	e, ok := r.exchangers[p]
	return e, ok
}
