package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/five82/shelf/internal/apperr"
)

// User is an authenticated account as reported by the provider.
type User struct {
	UID          string
	Email        string
	DisplayName  string
	PhotoURL     string
	IDToken      string
	RefreshToken string
	ExpiresAt    time.Time
}

// Expired reports whether the ID token should be refreshed at now.
func (u User) Expired(now time.Time) bool {
	if u.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(u.ExpiresAt.Add(-expirySkew))
}

// Credential is an external provider token used for social sign-in.
type Credential struct {
	Provider string // e.g. "google.com"
	Token    string // the provider's OAuth ID token
}

// ProfileUpdate carries the profile fields to change. Empty fields are left
// unchanged.
type ProfileUpdate struct {
	DisplayName string
	PhotoURL    string
}

// Provider is the identity backend the session layer talks to.
type Provider interface {
	SignUp(ctx context.Context, email, password string) (User, error)
	SignIn(ctx context.Context, email, password string) (User, error)
	SignInWithIdp(ctx context.Context, cred Credential) (User, error)
	UpdateProfile(ctx context.Context, idToken string, p ProfileUpdate) (User, error)
	Refresh(ctx context.Context, refreshToken string) (User, error)
}

var _ Provider = (*Client)(nil)

const (
	defaultIdentityURL = "https://identitytoolkit.googleapis.com"
	defaultTokenURL    = "https://securetoken.googleapis.com"
	defaultUserAgent   = "shelf/0.1"
	requestTimeout     = 10 * time.Second
	expirySkew         = time.Minute
	redirectURI        = "http://localhost"
)

// Client speaks the identity-toolkit REST dialect.
type Client struct {
	identityURL *url.URL
	tokenURL    *url.URL
	apiKey      string
	http        *http.Client
	logger      *zap.Logger
	refreshes   singleflight.Group
}

// Option customizes a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithTimeout sets the request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// NewClient builds a Client. Empty URLs use the public endpoints.
func NewClient(identityURL, tokenURL, apiKey string, opts ...Option) (*Client, error) {
	idu, err := parseURL(identityURL, defaultIdentityURL)
	if err != nil {
		return nil, err
	}
	tu, err := parseURL(tokenURL, defaultTokenURL)
	if err != nil {
		return nil, err
	}
	c := &Client{
		identityURL: idu,
		tokenURL:    tu,
		apiKey:      strings.TrimSpace(apiKey),
		http:        &http.Client{Timeout: requestTimeout},
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type accountResponse struct {
	LocalID      string `json:"localId"`
	Email        string `json:"email"`
	DisplayName  string `json:"displayName"`
	PhotoURL     string `json:"photoUrl"`
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
}

func (r accountResponse) user() User {
	return User{
		UID:          r.LocalID,
		Email:        r.Email,
		DisplayName:  r.DisplayName,
		PhotoURL:     r.PhotoURL,
		IDToken:      r.IDToken,
		RefreshToken: r.RefreshToken,
		ExpiresAt:    expiresAt(r.ExpiresIn),
	}
}

// SignUp creates an email/password account. The new account is signed in.
func (c *Client) SignUp(ctx context.Context, email, password string) (User, error) {
	body := map[string]any{"email": email, "password": password, "returnSecureToken": true}
	var resp accountResponse
	if err := c.post(ctx, "sign up", "accounts:signUp", body, &resp); err != nil {
		return User{}, err
	}
	return withClaims(resp.user()), nil
}

// SignIn authenticates with email and password.
func (c *Client) SignIn(ctx context.Context, email, password string) (User, error) {
	body := map[string]any{"email": email, "password": password, "returnSecureToken": true}
	var resp accountResponse
	if err := c.post(ctx, "sign in", "accounts:signInWithPassword", body, &resp); err != nil {
		return User{}, err
	}
	return withClaims(resp.user()), nil
}

// SignInWithIdp exchanges an external provider token for a session.
func (c *Client) SignInWithIdp(ctx context.Context, cred Credential) (User, error) {
	if strings.TrimSpace(cred.Token) == "" {
		return User{}, apperr.Validation("social sign in", map[string]string{"token": "provider token is required"})
	}
	provider := cred.Provider
	if provider == "" {
		provider = "google.com"
	}
	post := url.Values{}
	post.Set("id_token", cred.Token)
	post.Set("providerId", provider)
	body := map[string]any{
		"postBody":          post.Encode(),
		"requestUri":        redirectURI,
		"returnSecureToken": true,
	}
	var resp accountResponse
	if err := c.post(ctx, "social sign in", "accounts:signInWithIdp", body, &resp); err != nil {
		return User{}, err
	}
	return withClaims(resp.user()), nil
}

// UpdateProfile changes the display name and photo of the account behind
// idToken.
func (c *Client) UpdateProfile(ctx context.Context, idToken string, p ProfileUpdate) (User, error) {
	body := map[string]any{"idToken": idToken, "returnSecureToken": true}
	if p.DisplayName != "" {
		body["displayName"] = p.DisplayName
	}
	if p.PhotoURL != "" {
		body["photoUrl"] = p.PhotoURL
	}
	var resp accountResponse
	if err := c.post(ctx, "update profile", "accounts:update", body, &resp); err != nil {
		return User{}, err
	}
	u := resp.user()
	if u.IDToken == "" {
		u.IDToken = idToken
	}
	return withClaims(u), nil
}

type tokenResponse struct {
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    string `json:"expires_in"`
	UserID       string `json:"user_id"`
}

// Refresh trades a refresh token for a fresh ID token. Concurrent refreshes
// of the same token share one request.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (User, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return User{}, apperr.Unauthorized("refresh session", "no refresh token")
	}
	v, err, _ := c.refreshes.Do(refreshToken, func() (any, error) {
		form := url.Values{}
		form.Set("grant_type", "refresh_token")
		form.Set("refresh_token", refreshToken)
		var resp tokenResponse
		if err := c.send(ctx, "refresh session", c.tokenURL, "/v1/token", "application/x-www-form-urlencoded", strings.NewReader(form.Encode()), &resp); err != nil {
			return User{}, err
		}
		return withClaims(User{
			UID:          resp.UserID,
			IDToken:      resp.IDToken,
			RefreshToken: resp.RefreshToken,
			ExpiresAt:    expiresAt(resp.ExpiresIn),
		}), nil
	})
	if err != nil {
		return User{}, err
	}
	return v.(User), nil
}

func (c *Client) post(ctx context.Context, op, method string, body any, dest any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", op, err)
	}
	return c.send(ctx, op, c.identityURL, "/v1/"+method, "application/json", bytes.NewReader(buf), dest)
}

func (c *Client) send(ctx context.Context, op string, base *url.URL, path, contentType string, body io.Reader, dest any) error {
	if c.apiKey == "" {
		return apperr.Upstream(op, 0, "identity API key not configured")
	}
	values := url.Values{}
	values.Set("key", c.apiKey)
	reqURL := base.ResolveReference(&url.URL{Path: path, RawQuery: values.Encode()})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL.String(), body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", defaultUserAgent)
	req.Header.Set("X-Request-ID", requestID)

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("identity request failed", zap.String("op", op), zap.String("request_id", requestID), zap.Error(err))
		return apperr.Network(op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	c.logger.Debug("identity request",
		zap.String("op", op),
		zap.Int("status", resp.StatusCode),
		zap.String("request_id", requestID),
	)
	if resp.StatusCode >= 400 {
		return classify(op, resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return &apperr.Error{Kind: apperr.KindUpstream, Op: op, Message: "malformed response", Status: resp.StatusCode, Err: err}
	}
	return nil
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Provider error codes and the text shown for them.
var credentialErrors = map[string]string{
	"EMAIL_NOT_FOUND":           "invalid email or password",
	"INVALID_PASSWORD":          "invalid email or password",
	"INVALID_LOGIN_CREDENTIALS": "invalid email or password",
	"USER_DISABLED":             "this account has been disabled",
	"INVALID_ID_TOKEN":          "session expired, sign in again",
	"TOKEN_EXPIRED":             "session expired, sign in again",
	"INVALID_REFRESH_TOKEN":     "session expired, sign in again",
	"INVALID_IDP_RESPONSE":      "social sign-in was rejected",
}

var accountErrors = map[string]string{
	"EMAIL_EXISTS":                "an account with this email already exists",
	"WEAK_PASSWORD":               "password is too weak",
	"INVALID_EMAIL":               "email address is invalid",
	"TOO_MANY_ATTEMPTS_TRY_LATER": "too many attempts, try again later",
}

func classify(op string, resp *http.Response) error {
	var payload errorResponse
	_ = json.NewDecoder(io.LimitReader(resp.Body, 4<<10)).Decode(&payload)
	code, _, _ := strings.Cut(payload.Error.Message, " : ")
	code = strings.TrimSpace(code)
	if msg, ok := credentialErrors[code]; ok {
		e := apperr.Unauthorized(op, msg)
		e.Status = resp.StatusCode
		return e
	}
	if msg, ok := accountErrors[code]; ok {
		return apperr.Upstream(op, resp.StatusCode, msg)
	}
	return apperr.Upstream(op, resp.StatusCode, strings.ToLower(strings.ReplaceAll(code, "_", " ")))
}

func expiresAt(expiresIn string) time.Time {
	secs, err := strconv.Atoi(strings.TrimSpace(expiresIn))
	if err != nil || secs <= 0 {
		return time.Time{}
	}
	return time.Now().Add(time.Duration(secs) * time.Second)
}

func parseURL(raw, fallback string) (*url.URL, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(raw), "/")
	if trimmed == "" {
		trimmed = fallback
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse identity url %q: %w", raw, err)
	}
	u.Path = ""
	u.RawQuery = ""
	return u, nil
}
