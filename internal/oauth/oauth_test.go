package oauth

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/xxxsen/rentdesk/internal/model"
	appErr "github.com/xxxsen/rentdesk/internal/pkg/errors"
)

func TestParseProvider(t *testing.T) {
	for _, p := range Providers {
		parsed, err := ParseProvider(" " + p.String() + " ")
		require.NoError(t, err)
		require.Equal(t, p, parsed)
	}
	_, err := ParseProvider("github")
	require.Error(t, err)

	require.Equal(t, model.IdentityProviderGoogle, Google.ExternalIdentity())
	require.Equal(t, model.IdentityProviderFacebook, Facebook.ExternalIdentity())
	require.Equal(t, model.IdentityProviderApple, Apple.ExternalIdentity())
}

func TestStateStoreSingleUse(t *testing.T) {
	store := NewStateStore()
	state, err := store.Create(Apple)
	require.NoError(t, err)

	p, ok := store.Consume(state)
	require.True(t, ok)
	require.Equal(t, Apple, p)

	_, ok = store.Consume(state)
	require.False(t, ok)
	_, ok = store.Consume("unknown")
	require.False(t, ok)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestGoogleExchange(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		require.Equal(t, "the-code", r.PostForm.Get("code"))
		writeJSON(w, map[string]string{"access_token": "at"})
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer at", r.Header.Get("Authorization"))
		writeJSON(w, map[string]interface{}{"sub": "g-1", "email": "a@example.com", "email_verified": true})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	g := newGoogleExchanger(ProviderConfig{ClientID: "id", ClientSecret: "secret", RedirectURL: "https://app/cb"}, srv.Client())
	g.tokenURL = srv.URL + "/token"
	g.userURL = srv.URL + "/userinfo"

	profile, err := g.ExchangeCode(context.Background(), "the-code")
	require.NoError(t, err)
	require.Equal(t, &Profile{Provider: Google, ProviderUserID: "g-1", Email: "a@example.com"}, profile)

	authURL, err := g.AuthURL("st")
	require.NoError(t, err)
	require.Contains(t, authURL, "state=st")
}

func TestFacebookExchangeRequiresEmail(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"access_token": "at"})
	})
	mux.HandleFunc("/me", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "at", r.URL.Query().Get("access_token"))
		writeJSON(w, map[string]string{"id": "fb-1"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	f := newFacebookExchanger(ProviderConfig{ClientID: "id", ClientSecret: "secret", RedirectURL: "https://app/cb"}, srv.Client())
	f.tokenURL = srv.URL + "/token"
	f.userURL = srv.URL + "/me"

	_, err := f.ExchangeCode(context.Background(), "code")
	require.ErrorIs(t, err, appErr.ErrInvalid)
}

func TestAppleExchange(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		secret, err := jwtlib.Parse(r.PostForm.Get("client_secret"), func(*jwtlib.Token) (interface{}, error) {
			return &key.PublicKey, nil
		}, jwtlib.WithValidMethods([]string{"ES256"}))
		if err != nil || secret.Header["kid"] != "KEY1" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		idToken, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.MapClaims{
			"iss":            appleIssuer,
			"aud":            "com.example.rentdesk",
			"sub":            "apple-1",
			"email":          "m@example.com",
			"email_verified": "true",
			"exp":            time.Now().Add(time.Hour).Unix(),
		}).SignedString([]byte("unused"))
		require.NoError(t, err)
		writeJSON(w, map[string]string{"id_token": idToken})
	}))
	defer srv.Close()

	a, err := newAppleExchanger(AppleConfig{
		ClientID:      "com.example.rentdesk",
		TeamID:        "TEAM",
		KeyID:         "KEY1",
		PrivateKeyPEM: string(keyPEM),
		RedirectURL:   "https://app/cb",
	}, srv.Client())
	require.NoError(t, err)
	a.tokenURL = srv.URL

	profile, err := a.ExchangeCode(context.Background(), "code")
	require.NoError(t, err)
	require.Equal(t, &Profile{Provider: Apple, ProviderUserID: "apple-1", Email: "m@example.com"}, profile)
}

func TestAppleRejectsBadKey(t *testing.T) {
	_, err := newAppleExchanger(AppleConfig{ClientID: "c", TeamID: "t", KeyID: "k", PrivateKeyPEM: "nope"}, http.DefaultClient)
	require.Error(t, err)
}
