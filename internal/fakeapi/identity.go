package fakeapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"golang.org/x/crypto/bcrypt"

	"github.com/five82/shelf/internal/identity"
)

type account struct {
	UID          string
	Email        string
	PasswordHash []byte
	DisplayName  string
	PhotoURL     string
}

type accountReply struct {
	LocalID      string `json:"localId"`
	Email        string `json:"email"`
	DisplayName  string `json:"displayName,omitempty"`
	PhotoURL     string `json:"photoUrl,omitempty"`
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
}

type accountRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	IDToken     string `json:"idToken"`
	DisplayName string `json:"displayName"`
	PhotoURL    string `json:"photoUrl"`
	PostBody    string `json:"postBody"`
}

func (s *Server) identityAction(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if r.URL.Query().Get("key") != s.identityKey {
		writeIdentityError(w, http.StatusBadRequest, "API_KEY_INVALID")
		return
	}
	action := ps.ByName("action")
	if action == "token" {
		s.refreshToken(w, r)
		return
	}

	var in accountRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeIdentityError(w, http.StatusBadRequest, "INVALID_JSON")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		acct *account
		code string
	)
	switch action {
	case "accounts:signUp":
		acct, code = s.signUp(in)
	case "accounts:signInWithPassword":
		acct, code = s.signIn(in)
	case "accounts:signInWithIdp":
		acct, code = s.signInWithIdp(in)
	case "accounts:update":
		acct, code = s.updateAccount(in)
	default:
		writeIdentityError(w, http.StatusNotFound, "UNKNOWN_ACTION")
		return
	}
	if code != "" {
		writeIdentityError(w, http.StatusBadRequest, code)
		return
	}
	reply, err := s.replyFor(acct)
	if err != nil {
		writeIdentityError(w, http.StatusInternalServerError, "INTERNAL_ERROR")
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) signUp(in accountRequest) (*account, string) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	switch {
	case !strings.Contains(email, "@"):
		return nil, "INVALID_EMAIL"
	case len(in.Password) < 6:
		return nil, "WEAK_PASSWORD : Password should be at least 6 characters"
	case s.accounts[email] != nil:
		return nil, "EMAIL_EXISTS"
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.MinCost)
	if err != nil {
		return nil, "INTERNAL_ERROR"
	}
	acct := &account{UID: uuid.NewString(), Email: email, PasswordHash: hash}
	s.accounts[email] = acct
	return acct, ""
}

func (s *Server) signIn(in accountRequest) (*account, string) {
	acct := s.accounts[strings.ToLower(strings.TrimSpace(in.Email))]
	if acct == nil || acct.PasswordHash == nil ||
		bcrypt.CompareHashAndPassword(acct.PasswordHash, []byte(in.Password)) != nil {
		return nil, "INVALID_LOGIN_CREDENTIALS"
	}
	return acct, ""
}

// signInWithIdp trusts the provider token: a value containing "@" is taken
// as the account email and the account is created on first use.
func (s *Server) signInWithIdp(in accountRequest) (*account, string) {
	post, err := url.ParseQuery(in.PostBody)
	if err != nil {
		return nil, "INVALID_IDP_RESPONSE"
	}
	email := strings.ToLower(strings.TrimSpace(post.Get("id_token")))
	if !strings.Contains(email, "@") {
		return nil, "INVALID_IDP_RESPONSE"
	}
	acct := s.accounts[email]
	if acct == nil {
		name, _, _ := strings.Cut(email, "@")
		acct = &account{UID: uuid.NewString(), Email: email, DisplayName: name}
		s.accounts[email] = acct
	}
	return acct, ""
}

func (s *Server) updateAccount(in accountRequest) (*account, string) {
	claims, err := s.verify(in.IDToken)
	if err != nil {
		return nil, "INVALID_ID_TOKEN"
	}
	acct := s.accounts[claims.Email]
	if acct == nil {
		return nil, "USER_NOT_FOUND"
	}
	if in.DisplayName != "" {
		acct.DisplayName = in.DisplayName
	}
	if in.PhotoURL != "" {
		acct.PhotoURL = in.PhotoURL
	}
	return acct, ""
}

func (s *Server) refreshToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil || r.PostForm.Get("grant_type") != "refresh_token" {
		writeIdentityError(w, http.StatusBadRequest, "INVALID_GRANT_TYPE")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	email, ok := s.refresh[r.PostForm.Get("refresh_token")]
	acct := s.accounts[email]
	if !ok || acct == nil {
		writeIdentityError(w, http.StatusBadRequest, "INVALID_REFRESH_TOKEN")
		return
	}
	token, err := s.sign(acct)
	if err != nil {
		writeIdentityError(w, http.StatusInternalServerError, "INTERNAL_ERROR")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"id_token":      token,
		"refresh_token": r.PostForm.Get("refresh_token"),
		"expires_in":    strconv.Itoa(int(tokenTTL.Seconds())),
		"user_id":       acct.UID,
	})
}

// replyFor issues fresh tokens for acct. Callers hold s.mu.
func (s *Server) replyFor(acct *account) (accountReply, error) {
	token, err := s.sign(acct)
	if err != nil {
		return accountReply{}, err
	}
	refresh := uuid.NewString()
	s.refresh[refresh] = acct.Email
	return accountReply{
		LocalID:      acct.UID,
		Email:        acct.Email,
		DisplayName:  acct.DisplayName,
		PhotoURL:     acct.PhotoURL,
		IDToken:      token,
		RefreshToken: refresh,
		ExpiresIn:    strconv.Itoa(int(tokenTTL.Seconds())),
	}, nil
}

func (s *Server) sign(acct *account) (string, error) {
	now := s.now()
	claims := identity.Claims{
		Email:   acct.Email,
		Name:    acct.DisplayName,
		Picture: acct.PhotoURL,
		UserID:  acct.UID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   acct.UID,
			Issuer:    "shelf-fakeapi",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// IssueToken signs an ID token for email, creating the account if needed.
// Tests use it to call authenticated endpoints directly.
func (s *Server) IssueToken(email, displayName string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct := s.accounts[email]
	if acct == nil {
		acct = &account{UID: uuid.NewString(), Email: email, DisplayName: displayName}
		s.accounts[email] = acct
	}
	return s.sign(acct)
}

func (s *Server) verify(raw string) (*identity.Claims, error) {
	var claims identity.Claims
	token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, fmt.Errorf("verify token: %w", err)
	}
	if !token.Valid || claims.Email == "" {
		return nil, errors.New("verify token: missing email claim")
	}
	return &claims, nil
}

func writeIdentityError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{"code": status, "message": code},
	})
}
