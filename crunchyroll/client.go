package crunchyroll

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"crunchy-cli/internal"
)

const (
	// DefaultBaseURL is the API root
	DefaultBaseURL = "https://www.crunchyroll.com"
	// DefaultPlayURL is the root of the playback service
	DefaultPlayURL = "https://cr-play-service.prd.crunchyrollsvc.com"

	// ClientID is the public identifier of the web client
	ClientID   = "noaihdevm_6iyg0a8l0q"
	DeviceType = "crunchy-cli"

	// tokens are refreshed this long before they expire
	tokenRefreshMargin = 30 * time.Second
)

// Middleware replaces the HTTP client of a session, e.g. to throttle it
type Middleware interface {
	Client() *http.Client
}

// TokenKind identifies the token a session can be restored from
type TokenKind int

const (
	TokenAnonymous TokenKind = iota
	TokenRefresh
)

// SessionToken is the part of a session that survives the process
type SessionToken struct {
	Kind  TokenKind
	Value string
}

// Builder configures a session before logging in
type Builder struct {
	client                    *http.Client
	baseURL                   string
	playURL                   string
	deviceID                  string
	locale                    Locale
	preferredAudioLocale      Locale
	stabilizationLocales      bool
	stabilizationSeasonNumber bool
}

// NewBuilder returns a builder with the production endpoints and en-US
func NewBuilder() *Builder {
	return &Builder{
		baseURL: DefaultBaseURL,
		playURL: DefaultPlayURL,
		locale:  EnUS,
	}
}

func (b *Builder) Client(client *http.Client) *Builder {
	b.client = client
	return b
}

// Middleware routes every request of the session through m
func (b *Builder) Middleware(m Middleware) *Builder {
	b.client = m.Client()
	return b
}

func (b *Builder) BaseURL(baseURL string) *Builder {
	b.baseURL = strings.TrimSuffix(baseURL, "/")
	return b
}

func (b *Builder) PlayURL(playURL string) *Builder {
	b.playURL = strings.TrimSuffix(playURL, "/")
	return b
}

func (b *Builder) DeviceID(deviceID string) *Builder {
	b.deviceID = deviceID
	return b
}

func (b *Builder) Locale(locale Locale) *Builder {
	b.locale = locale
	return b
}

// PreferredAudioLocale is a hint for which audio version episode listings should favor
func (b *Builder) PreferredAudioLocale(locale Locale) *Builder {
	b.preferredAudioLocale = locale
	return b
}

// StabilizationLocales fills in missing or wrong audio locales of the API responses
func (b *Builder) StabilizationLocales(enabled bool) *Builder {
	b.stabilizationLocales = enabled
	return b
}

// StabilizationSeasonNumber renumbers seasons the API reports with duplicate numbers
func (b *Builder) StabilizationSeasonNumber(enabled bool) *Builder {
	b.stabilizationSeasonNumber = enabled
	return b
}

// LoginWithCredentials logs in with email and password
func (b *Builder) LoginWithCredentials(ctx context.Context, email, password string) (*Crunchyroll, error) {
	return b.login(ctx, url.Values{
		"grant_type": {"password"},
		"username":   {email},
		"password":   {password},
		"scope":      {"offline_access"},
	}, false)
}

// LoginWithRefreshToken restores a session from a stored refresh token
func (b *Builder) LoginWithRefreshToken(ctx context.Context, refreshToken string) (*Crunchyroll, error) {
	return b.login(ctx, url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"scope":         {"offline_access"},
	}, false)
}

// LoginAnonymously creates a session without an account
func (b *Builder) LoginAnonymously(ctx context.Context) (*Crunchyroll, error) {
	return b.login(ctx, url.Values{
		"grant_type": {"client_id"},
	}, true)
}

func (b *Builder) login(ctx context.Context, form url.Values, anonymous bool) (*Crunchyroll, error) {
	client := b.client
	if client == nil {
		client = http.DefaultClient
	}
	deviceID := b.deviceID
	if deviceID == "" {
		deviceID = uuid.NewString()
	}

	cr := &Crunchyroll{
		client:                    client,
		baseURL:                   b.baseURL,
		playURL:                   b.playURL,
		deviceID:                  deviceID,
		locale:                    b.locale,
		preferredAudioLocale:      b.preferredAudioLocale,
		stabilizationLocales:      b.stabilizationLocales,
		stabilizationSeasonNumber: b.stabilizationSeasonNumber,
	}

	tok, err := cr.requestToken(ctx, form)
	if err != nil {
		return nil, err
	}
	tok.anonymous = anonymous
	cr.token = tok

	internal.LogDebug("Logged in (anonymous: %t, account: %s, expires: %s)", anonymous, tok.accountID, tok.expiresAt.Format(time.RFC3339))
	return cr, nil
}

// Crunchyroll is an authenticated session. It is safe for concurrent use.
type Crunchyroll struct {
	client                    *http.Client
	baseURL                   string
	playURL                   string
	deviceID                  string
	locale                    Locale
	preferredAudioLocale      Locale
	stabilizationLocales      bool
	stabilizationSeasonNumber bool

	mutex sync.Mutex
	token *token
}

type token struct {
	accessToken  string
	refreshToken string
	tokenType    string
	accountID    string
	expiresAt    time.Time
	anonymous    bool
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope"`
	Country      string `json:"country"`
	AccountID    string `json:"account_id"`
}

func (c *Crunchyroll) Locale() Locale {
	return c.locale
}

func (c *Crunchyroll) PreferredAudioLocale() Locale {
	return c.preferredAudioLocale
}

func (c *Crunchyroll) StabilizationLocales() bool {
	return c.stabilizationLocales
}

func (c *Crunchyroll) StabilizationSeasonNumber() bool {
	return c.stabilizationSeasonNumber
}

// SessionToken returns the token the session can be restored from
func (c *Crunchyroll) SessionToken() SessionToken {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.token.anonymous || c.token.refreshToken == "" {
		return SessionToken{Kind: TokenAnonymous}
	}
	return SessionToken{Kind: TokenRefresh, Value: c.token.refreshToken}
}

// AccessTokenExpiry returns when the current access token stops being valid
func (c *Crunchyroll) AccessTokenExpiry() time.Time {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.token.expiresAt
}

func (c *Crunchyroll) requestToken(ctx context.Context, form url.Values) (*token, error) {
	form.Set("device_id", c.deviceID)
	form.Set("device_type", DeviceType)

	endpoint := c.baseURL + "/auth/v1/token"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, internal.NewCrunchyError(0, "failed to create token request", internal.ErrInternal).WithCause(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(ClientID, "")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, internal.NewNetworkError("login", err)
	}
	defer resp.Body.Close()

	if err := checkResponse(resp); err != nil {
		return nil, err
	}

	var payload tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, internal.NewCrunchyError(resp.StatusCode, "failed to decode token response", internal.ErrDecode).
			WithURL(endpoint).WithCause(err)
	}
	if payload.AccessToken == "" {
		return nil, internal.NewCrunchyError(resp.StatusCode, "token response contains no access token", internal.ErrDecode).
			WithURL(endpoint)
	}

	tokenType := payload.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}

	return &token{
		accessToken:  payload.AccessToken,
		refreshToken: payload.RefreshToken,
		tokenType:    tokenType,
		accountID:    payload.AccountID,
		expiresAt:    tokenExpiry(payload.AccessToken, payload.ExpiresIn),
	}, nil
}

// tokenExpiry reads the exp claim of the access token. The signature cannot be
// verified client side; opaque tokens fall back to expires_in.
func tokenExpiry(accessToken string, expiresIn int) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			return exp.Time
		}
	}

	if expiresIn <= 0 {
		expiresIn = 300
	}
	return time.Now().Add(time.Duration(expiresIn) * time.Second)
}

// authorization returns the Authorization header value, renewing the access token when needed
func (c *Crunchyroll) authorization(ctx context.Context) (string, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if time.Until(c.token.expiresAt) > tokenRefreshMargin {
		return c.token.tokenType + " " + c.token.accessToken, nil
	}

	form := url.Values{"grant_type": {"client_id"}}
	if !c.token.anonymous {
		form = url.Values{
			"grant_type":    {"refresh_token"},
			"refresh_token": {c.token.refreshToken},
			"scope":         {"offline_access"},
		}
	}

	internal.LogDebug("Access token expires at %s, renewing", c.token.expiresAt.Format(time.RFC3339))
	tok, err := c.requestToken(ctx, form)
	if err != nil {
		return "", err
	}
	tok.anonymous = c.token.anonymous
	if tok.refreshToken == "" {
		tok.refreshToken = c.token.refreshToken
	}
	c.token = tok

	return tok.tokenType + " " + tok.accessToken, nil
}

// request performs an authenticated API call and decodes the JSON response into out (if not nil)
func (c *Crunchyroll) request(ctx context.Context, method, endpoint string, query url.Values, out interface{}) error {
	auth, err := c.authorization(ctx)
	if err != nil {
		return err
	}

	if query == nil {
		query = url.Values{}
	}
	if method == http.MethodGet && query.Get("locale") == "" {
		query.Set("locale", string(c.locale))
	}
	if encoded := query.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return internal.NewCrunchyError(0, "failed to create request", internal.ErrInternal).WithCause(err)
	}
	req.Header.Set("Authorization", auth)

	resp, err := c.client.Do(req)
	if err != nil {
		return internal.NewNetworkError(method+" "+req.URL.Path, err)
	}
	defer resp.Body.Close()

	if err := checkResponse(resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return internal.NewCrunchyError(resp.StatusCode, "failed to decode response", internal.ErrDecode).
			WithURL(endpoint).WithCause(err)
	}
	return nil
}
