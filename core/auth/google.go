package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"moodfm/logger"

	json "github.com/goccy/go-json"
	"golang.org/x/oauth2"
)

var (
	ErrMissingCode         = errors.New("authorization code missing")
	ErrProviderUnreachable = errors.New("identity provider unreachable")
	ErrEmailNotVerified    = errors.New("email address not verified")
	ErrExchangeFailed      = errors.New("authorization code exchange failed")
)

// DefaultGivenName is used when the provider returns no given_name.
const DefaultGivenName = "User"

// Identity is a verified Google account.
type Identity struct {
	Subject   string
	Email     string
	GivenName string
	Picture   string
}

// GoogleConfig configures the Google OAuth client.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	DiscoveryURL string
	RedirectURI  string
	Timeout      time.Duration
	HTTPClient   *http.Client
}

// GoogleProvider runs the authorization code flow against Google, resolving
// its endpoints from the discovery document on every login.
type GoogleProvider struct {
	cfg        GoogleConfig
	httpClient *http.Client
}

type discoveryDocument struct {
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	UserinfoEndpoint      string `json:"userinfo_endpoint"`
}

type userInfo struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	GivenName     string `json:"given_name"`
	Picture       string `json:"picture"`
}

func NewGoogleProvider(cfg GoogleConfig) *GoogleProvider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &GoogleProvider{cfg: cfg, httpClient: httpClient}
}

func (p *GoogleProvider) discover(ctx context.Context) (*discoveryDocument, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.DiscoveryURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnreachable, err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnreachable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: discovery returned status %d", ErrProviderUnreachable, resp.StatusCode)
	}

	var doc discoveryDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: invalid discovery document: %v", ErrProviderUnreachable, err)
	}
	if doc.AuthorizationEndpoint == "" || doc.TokenEndpoint == "" || doc.UserinfoEndpoint == "" {
		return nil, fmt.Errorf("%w: discovery document is missing endpoints", ErrProviderUnreachable)
	}
	return &doc, nil
}

func (p *GoogleProvider) oauthConfig(doc *discoveryDocument) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     p.cfg.ClientID,
		ClientSecret: p.cfg.ClientSecret,
		RedirectURL:  p.cfg.RedirectURI,
		Scopes:       []string{"openid", "email", "profile"},
		Endpoint: oauth2.Endpoint{
			AuthURL:   doc.AuthorizationEndpoint,
			TokenURL:  doc.TokenEndpoint,
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}
}

// LoginURL returns the consent page URL for state, or false when the
// discovery document cannot be fetched.
func (p *GoogleProvider) LoginURL(ctx context.Context, state string) (string, bool) {
	doc, err := p.discover(ctx)
	if err != nil {
		logger.Warn("[Auth] Google discovery failed", logger.ErrorField(err))
		return "", false
	}
	return p.oauthConfig(doc).AuthCodeURL(state), true
}

// Exchange trades an authorization code for the user's verified identity.
func (p *GoogleProvider) Exchange(ctx context.Context, code string) (*Identity, error) {
	if code == "" {
		return nil, ErrMissingCode
	}
	doc, err := p.discover(ctx)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)

	conf := p.oauthConfig(doc)
	token, err := conf.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, doc.UserinfoEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}
	resp, err := conf.Client(ctx, token).Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: userinfo request: %v", ErrExchangeFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: reading userinfo: %v", ErrExchangeFailed, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: userinfo returned status %d", ErrExchangeFailed, resp.StatusCode)
	}

	var info userInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("%w: invalid userinfo: %v", ErrExchangeFailed, err)
	}
	if !info.EmailVerified {
		return nil, ErrEmailNotVerified
	}
	if info.Sub == "" {
		return nil, fmt.Errorf("%w: userinfo has no subject", ErrExchangeFailed)
	}

	id := &Identity{
		Subject:   info.Sub,
		Email:     info.Email,
		GivenName: info.GivenName,
		Picture:   info.Picture,
	}
	if id.GivenName == "" {
		id.GivenName = DefaultGivenName
	}
	return id, nil
}

// UserMessage is the text shown on the login page for a failed login.
func UserMessage(err error) string {
	switch {
	case errors.Is(err, ErrMissingCode):
		return "No authorization code was returned."
	case errors.Is(err, ErrProviderUnreachable):
		return "Cannot reach the Google authentication server."
	case errors.Is(err, ErrEmailNotVerified):
		return "Your Google email address is not verified."
	default:
		return "Google sign-in failed. Please try again."
	}
}
