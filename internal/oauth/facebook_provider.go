package oauth

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	appErr "github.com/xxxsen/rentdesk/internal/pkg/errors"
)

const facebookGraph = "https://graph.facebook.com/v19.0"

type facebookExchanger struct {
	cfg      ProviderConfig
	client   *http.Client
	tokenURL string
	userURL  string
}

func newFacebookExchanger(cfg ProviderConfig, client *http.Client) *facebookExchanger {
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = []string{"email"}
	}
	return &facebookExchanger{
		cfg:      cfg,
		client:   client,
		tokenURL: facebookGraph + "/oauth/access_token",
		userURL:  facebookGraph + "/me",
	}
}

func (f *facebookExchanger) Provider() Provider {
	return Facebook
}

func (f *facebookExchanger) AuthURL(state string) (string, error) {
	if f.cfg.ClientID == "" || f.cfg.RedirectURL == "" {
		return "", appErr.ErrInvalid
	}
	params := url.Values{}
	params.Set("client_id", f.cfg.ClientID)
	params.Set("redirect_uri", f.cfg.RedirectURL)
	params.Set("scope", strings.Join(f.cfg.Scopes, ","))
	params.Set("state", state)
	params.Set("response_type", "code")
	return "https://www.facebook.com/v19.0/dialog/oauth?" + params.Encode(), nil
}

type facebookTokenResponse struct {
	AccessToken string `json:"access_token"`
}

type facebookUserResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

func (f *facebookExchanger) ExchangeCode(ctx context.Context, code string) (*Profile, error) {
	if f.cfg.ClientID == "" || f.cfg.ClientSecret == "" || f.cfg.RedirectURL == "" {
		return nil, appErr.ErrInvalid
	}
	params := url.Values{}
	params.Set("client_id", f.cfg.ClientID)
	params.Set("client_secret", f.cfg.ClientSecret)
	params.Set("redirect_uri", f.cfg.RedirectURL)
	params.Set("code", code)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.tokenURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	var token facebookTokenResponse
	if err := doJSON(f.client, "facebook token exchange", req, &token); err != nil {
		return nil, err
	}
	if token.AccessToken == "" {
		return nil, appErr.ErrInvalid
	}
	query := url.Values{}
	query.Set("fields", "id,email")
	query.Set("access_token", token.AccessToken)
	req, err = http.NewRequestWithContext(ctx, http.MethodGet, f.userURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	var user facebookUserResponse
	if err := doJSON(f.client, "facebook profile", req, &user); err != nil {
		return nil, err
	}
	email := strings.TrimSpace(user.Email)
	if user.ID == "" || email == "" {
		return nil, appErr.ErrInvalid
	}
	return &Profile{Provider: Facebook, ProviderUserID: user.ID, Email: email}, nil
}
