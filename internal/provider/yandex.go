package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/mzagorsky/auth-service/internal/domain"
	"github.com/mzagorsky/auth-service/pkg/httpclient"
)

const (
	yandexAuthURL     = "https://oauth.yandex.ru/authorize"
	yandexTokenURL    = "https://oauth.yandex.ru/token"
	yandexUserinfoURL = "https://login.yandex.ru/info?format=json"
)

// userinfoClient is the subset of httpclient.CircuitBreakerClient the
// provider needs. Yandex has no OIDC discovery, so the identity comes from
// a userinfo call guarded by a circuit breaker.
type userinfoClient interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Yandex authenticates users via Yandex OAuth plus the login.yandex.ru
// userinfo endpoint.
type Yandex struct {
	oauthConfig *oauth2.Config
	client      userinfoClient
	userinfoURL string
}

// NewYandex builds the Yandex provider. The circuit breaker client guards
// the userinfo endpoint.
func NewYandex(clientID, clientSecret, redirectURL string, client *httpclient.CircuitBreakerClient) (*Yandex, error) {
	if clientID == "" || clientSecret == "" || redirectURL == "" {
		return nil, errors.New("yandex oauth config missing required fields")
	}

	oauthCfg := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Endpoint: oauth2.Endpoint{
			AuthURL:  yandexAuthURL,
			TokenURL: yandexTokenURL,
		},
	}

	return &Yandex{
		oauthConfig: oauthCfg,
		client:      client,
		userinfoURL: yandexUserinfoURL,
	}, nil
}

// Name returns the provider identifier used by the registry.
func (y *Yandex) Name() string {
	return domain.ProviderYandex
}

// AuthCodeURL builds the Yandex consent page URL.
func (y *Yandex) AuthCodeURL(state string) string {
	return y.oauthConfig.AuthCodeURL(state)
}

// Exchange trades an authorization code for a Yandex identity by calling
// the userinfo endpoint with the obtained access token.
func (y *Yandex) Exchange(ctx context.Context, code string) (*Identity, error) {
	token, err := y.oauthConfig.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("yandex token exchange: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, y.userinfoURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "OAuth "+token.AccessToken)

	resp, err := y.client.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("yandex userinfo: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("yandex userinfo returned status %d: %s", resp.StatusCode, string(body))
	}

	var info struct {
		ID           string `json:"id"`
		DefaultEmail string `json:"default_email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode yandex userinfo: %w", err)
	}

	if info.ID == "" || info.DefaultEmail == "" {
		return nil, errors.New("yandex userinfo missing required fields")
	}

	return &Identity{
		Provider: domain.ProviderYandex,
		Subject:  info.ID,
		Email:    info.DefaultEmail,
	}, nil
}
