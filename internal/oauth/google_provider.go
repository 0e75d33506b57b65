package oauth

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	appErr "github.com/xxxsen/rentdesk/internal/pkg/errors"
)

type googleExchanger struct {
	cfg      ProviderConfig
	client   *http.Client
	tokenURL string
	userURL  string
}

func newGoogleExchanger(cfg ProviderConfig, client *http.Client) *googleExchanger {
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = []string{"openid", "email"}
	}
	return &googleExchanger{
		cfg:      cfg,
		client:   client,
		tokenURL: "https://oauth2.googleapis.com/token",
		userURL:  "https://openidconnect.googleapis.com/v1/userinfo",
	}
}

func (g *googleExchanger) Provider() Provider {
	return Google
}

func (g *googleExchanger) AuthURL(state string) (string, error) {
	if g.cfg.ClientID == "" || g.cfg.RedirectURL == "" {
		return "", appErr.ErrInvalid
	}
	params := url.Values{}
	params.Set("client_id", g.cfg.ClientID)
	params.Set("redirect_uri", g.cfg.RedirectURL)
	params.Set("scope", strings.Join(g.cfg.Scopes, " "))
	params.Set("state", state)
	params.Set("response_type", "code")
	return "https://accounts.google.com/o/oauth2/v2/auth?" + params.Encode(), nil
}

type googleTokenResponse struct {
	AccessToken string `json:"access_token"`
}

type googleUserResponse struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
}

func (g *googleExchanger) ExchangeCode(ctx context.Context, code string) (*Profile, error) {
	if g.cfg.ClientID == "" || g.cfg.ClientSecret == "" || g.cfg.RedirectURL == "" {
		return nil, appErr.ErrInvalid
	}
	form := url.Values{}
	form.Set("code", code)
	form.Set("client_id", g.cfg.ClientID)
	form.Set("client_secret", g.cfg.ClientSecret)
	form.Set("redirect_uri", g.cfg.RedirectURL)
	form.Set("grant_type", "authorization_code")
	var token googleTokenResponse
	if err := postForm(ctx, g.client, "google token exchange", g.tokenURL, form, &token); err != nil {
		return nil, err
	}
	if token.AccessToken == "" {
		return nil, appErr.ErrInvalid
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.userURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	var user googleUserResponse
	if err := doJSON(g.client, "google userinfo", req, &user); err != nil {
		return nil, err
	}
	email := strings.TrimSpace(user.Email)
	if user.Sub == "" || email == "" || !user.EmailVerified {
		return nil, appErr.ErrInvalid
	}
	return &Profile{Provider: Google, ProviderUserID: user.Sub, Email: email}, nil
}
