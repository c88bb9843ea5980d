package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/five82/shelf/internal/apperr"
	"github.com/five82/shelf/internal/identity"
	"github.com/five82/shelf/internal/imagehost"
	"github.com/five82/shelf/internal/validation"
)

// Session is the signed-in user as the UI sees it.
type Session struct {
	// Identity is the opaque user identifier books and comments are keyed by
	// (the account email). Empty when signed out.
	Identity    string
	DisplayName string
	AvatarURL   string
	// Loading is true while an auth operation or the startup restore runs.
	Loading bool
	// ProfilePending marks an account whose profile update has not gone
	// through yet.
	ProfilePending bool
}

// SignedIn reports whether an identity is present.
func (s Session) SignedIn() bool { return s.Identity != "" }

// Profile is the profile supplied at registration.
type Profile struct {
	DisplayName string
	Avatar      imagehost.Image
}

// Patch changes the current profile. A non-empty Avatar is uploaded first;
// otherwise AvatarURL, if set, is used as is.
type Patch struct {
	DisplayName string
	Avatar      imagehost.Image
	AvatarURL   string
}

// Store persists the session between runs.
type Store interface {
	Get(bucket, key string, dest any) (bool, error)
	Put(bucket, key string, v any) error
	Delete(bucket, key string) error
}

const (
	storeBucket = "session"
	storeKey    = "current"
)

type record struct {
	UID            string    `json:"uid"`
	Email          string    `json:"email"`
	DisplayName    string    `json:"display_name"`
	PhotoURL       string    `json:"photo_url"`
	RefreshToken   string    `json:"refresh_token"`
	ProfilePending bool      `json:"profile_pending"`
	SavedAt        time.Time `json:"saved_at"`
}

// Provider owns the process-wide Session. Create one per process and pass
// it to whatever needs the current user.
type Provider struct {
	idp      identity.Provider
	images   imagehost.Uploader
	store    Store
	validate *validation.Validator
	logger   *zap.Logger
	now      func() time.Time

	opMu sync.Mutex // serializes auth operations

	mu      sync.Mutex
	session Session
	user    identity.User
	subs    map[uint64]func(Session)
	nextSub uint64
}

// Option customizes a Provider.
type Option func(*Provider)

// WithStore persists sessions in s. The session starts in the loading
// state until Restore runs.
func WithStore(s Store) Option {
	return func(p *Provider) { p.store = s }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Provider) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithValidator shares a validator.
func WithValidator(v *validation.Validator) Option {
	return func(p *Provider) {
		if v != nil {
			p.validate = v
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) {
		if now != nil {
			p.now = now
		}
	}
}

// New builds a Provider.
func New(idp identity.Provider, images imagehost.Uploader, opts ...Option) *Provider {
	p := &Provider{
		idp:    idp,
		images: images,
		logger: zap.NewNop(),
		now:    time.Now,
		subs:   make(map[uint64]func(Session)),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.validate == nil {
		p.validate = validation.New()
	}
	if p.store != nil {
		p.session.Loading = true
	}
	return p
}

// Current returns the session.
func (p *Provider) Current() Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session
}

// Subscribe calls fn on every session change, synchronously in the
// goroutine making the change. It returns an unsubscribe function.
func (p *Provider) Subscribe(fn func(Session)) (unsubscribe func()) {
	p.mu.Lock()
	p.nextSub++
	id := p.nextSub
	p.subs[id] = fn
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		delete(p.subs, id)
		p.mu.Unlock()
	}
}

// Restore reloads a persisted session and refreshes its token. A rejected
// refresh token signs the user out; a network failure keeps the stored
// profile and retries on the next authenticated request.
func (p *Provider) Restore(ctx context.Context) error {
	p.begin()
	defer p.finish()

	if p.store == nil {
		return nil
	}
	var rec record
	found, err := p.store.Get(storeBucket, storeKey, &rec)
	if err != nil {
		p.logger.Warn("session restore failed", zap.Error(err))
		return nil
	}
	if !found || rec.RefreshToken == "" {
		return nil
	}

	saved := identity.User{
		UID:          rec.UID,
		Email:        rec.Email,
		DisplayName:  rec.DisplayName,
		PhotoURL:     rec.PhotoURL,
		RefreshToken: rec.RefreshToken,
	}
	u, err := p.idp.Refresh(ctx, rec.RefreshToken)
	switch {
	case apperr.Is(err, apperr.KindAuthorization):
		p.logger.Info("stored session rejected", zap.String("identity", rec.Email))
		p.forget()
		return nil
	case err != nil:
		p.logger.Warn("session refresh failed, using stored profile", zap.Error(err))
		p.apply(saved, rec.ProfilePending)
		return nil
	}
	p.apply(merge(saved, u), rec.ProfilePending)
	p.logger.Info("session restored", zap.String("identity", rec.Email))
	return nil
}

type registration struct {
	Name     string `form:"name" validate:"required,min=3,person_name"`
	Email    string `form:"email" validate:"required,email"`
	Password string `form:"password" validate:"required,password_strength"`
}

// Register creates an account, uploads the avatar, then sets the display
// name and photo. Input is validated before any request. If a step after
// account creation fails, the user stays signed in with ProfilePending set
// and the error says to finish the profile; nothing is rolled back.
func (p *Provider) Register(ctx context.Context, email, password string, prof Profile) error {
	const op = "register"
	in := registration{Name: strings.TrimSpace(prof.DisplayName), Email: strings.TrimSpace(email), Password: password}
	extra := map[string]string{}
	if prof.Avatar.Empty() {
		extra["photo"] = "photo is required"
	} else if _, err := imagehost.Check(prof.Avatar); err != nil {
		extra["photo"] = err.Error()
	}
	if err := p.validate.Check(op, in, extra); err != nil {
		return err
	}

	p.begin()
	defer p.finish()

	u, err := p.idp.SignUp(ctx, in.Email, in.Password)
	if err != nil {
		return err
	}
	p.apply(u, true)

	photoURL, err := p.images.Upload(ctx, prof.Avatar)
	if err != nil {
		p.logger.Warn("avatar upload failed after sign up", zap.String("identity", u.Email), zap.Error(err))
		return profilePending(op, err)
	}
	updated, err := p.idp.UpdateProfile(ctx, u.IDToken, identity.ProfileUpdate{DisplayName: in.Name, PhotoURL: photoURL})
	if err != nil {
		p.logger.Warn("profile update failed after sign up", zap.String("identity", u.Email), zap.Error(err))
		return profilePending(op, err)
	}
	p.apply(merge(u, updated), false)
	p.logger.Info("registered", zap.String("identity", u.Email))
	return nil
}

type credentials struct {
	Email    string `form:"email" validate:"required,email"`
	Password string `form:"password" validate:"required"`
}

// SignIn authenticates with email and password.
func (p *Provider) SignIn(ctx context.Context, email, password string) error {
	in := credentials{Email: strings.TrimSpace(email), Password: password}
	if err := p.validate.Check("sign in", in, nil); err != nil {
		return err
	}

	p.begin()
	defer p.finish()

	u, err := p.idp.SignIn(ctx, in.Email, in.Password)
	if err != nil {
		return err
	}
	p.apply(u, false)
	p.logger.Info("signed in", zap.String("identity", u.Email))
	return nil
}

// SignInSocial authenticates with an external provider token.
func (p *Provider) SignInSocial(ctx context.Context, cred identity.Credential) error {
	p.begin()
	defer p.finish()

	u, err := p.idp.SignInWithIdp(ctx, cred)
	if err != nil {
		return err
	}
	p.apply(u, false)
	p.logger.Info("signed in", zap.String("identity", u.Email), zap.String("provider", cred.Provider))
	return nil
}

type profileInput struct {
	DisplayName string `form:"name" validate:"omitempty,min=3,person_name"`
}

// UpdateProfile changes the display name and avatar of the signed-in user.
func (p *Provider) UpdateProfile(ctx context.Context, patch Patch) error {
	const op = "update profile"
	in := profileInput{DisplayName: strings.TrimSpace(patch.DisplayName)}
	extra := map[string]string{}
	if !patch.Avatar.Empty() {
		if _, err := imagehost.Check(patch.Avatar); err != nil {
			extra["photo"] = err.Error()
		}
	}
	if err := p.validate.Check(op, in, extra); err != nil {
		return err
	}
	if !p.Current().SignedIn() {
		return apperr.Unauthorized(op, "sign in first")
	}

	p.begin()
	defer p.finish()

	photoURL := strings.TrimSpace(patch.AvatarURL)
	if !patch.Avatar.Empty() {
		var err error
		if photoURL, err = p.images.Upload(ctx, patch.Avatar); err != nil {
			return err
		}
	}
	token, err := p.Token(ctx)
	if err != nil {
		return err
	}
	updated, err := p.idp.UpdateProfile(ctx, token, identity.ProfileUpdate{DisplayName: in.DisplayName, PhotoURL: photoURL})
	if err != nil {
		return err
	}

	p.mu.Lock()
	u := merge(p.user, updated)
	p.mu.Unlock()
	p.apply(u, u.DisplayName == "" || u.PhotoURL == "")
	return nil
}

// SignOut clears the session and its persisted copy.
func (p *Provider) SignOut(ctx context.Context) error {
	p.begin()
	defer p.finish()

	who := p.Current().Identity
	p.forget()
	p.logger.Info("signed out", zap.String("identity", who))
	return nil
}

// Token returns a valid ID token for the signed-in user, refreshing it when
// it has expired. It implements catalog.TokenSource.
func (p *Provider) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	u := p.user
	p.mu.Unlock()

	if u.IDToken != "" && !u.Expired(p.now()) {
		return u.IDToken, nil
	}
	if u.RefreshToken == "" {
		return "", apperr.Unauthorized("token", "not signed in")
	}
	fresh, err := p.idp.Refresh(ctx, u.RefreshToken)
	if err != nil {
		return "", err
	}

	p.mu.Lock()
	if p.user.RefreshToken == u.RefreshToken {
		p.user = merge(p.user, fresh)
	}
	token := p.user.IDToken
	p.mu.Unlock()
	p.persist()
	return token, nil
}

func (p *Provider) begin() {
	p.opMu.Lock()
	p.update(func(s *Session) { s.Loading = true })
}

func (p *Provider) finish() {
	p.update(func(s *Session) { s.Loading = false })
	p.opMu.Unlock()
}

// apply installs u as the signed-in user.
func (p *Provider) apply(u identity.User, pending bool) {
	p.mu.Lock()
	p.user = u
	p.mu.Unlock()
	p.update(func(s *Session) {
		s.Identity = u.Email
		s.DisplayName = u.DisplayName
		s.AvatarURL = u.PhotoURL
		s.ProfilePending = pending
	})
	p.persist()
}

func (p *Provider) forget() {
	p.mu.Lock()
	p.user = identity.User{}
	p.mu.Unlock()
	p.update(func(s *Session) {
		loading := s.Loading
		*s = Session{Loading: loading}
	})
	if p.store != nil {
		if err := p.store.Delete(storeBucket, storeKey); err != nil {
			p.logger.Warn("clear stored session failed", zap.Error(err))
		}
	}
}

func (p *Provider) update(change func(*Session)) {
	p.mu.Lock()
	before := p.session
	change(&p.session)
	after := p.session
	subs := make([]func(Session), 0, len(p.subs))
	for _, fn := range p.subs {
		subs = append(subs, fn)
	}
	p.mu.Unlock()

	if before == after {
		return
	}
	for _, fn := range subs {
		fn(after)
	}
}

func (p *Provider) persist() {
	if p.store == nil {
		return
	}
	p.mu.Lock()
	u, pending := p.user, p.session.ProfilePending
	p.mu.Unlock()
	if u.RefreshToken == "" {
		return
	}
	rec := record{
		UID:            u.UID,
		Email:          u.Email,
		DisplayName:    u.DisplayName,
		PhotoURL:       u.PhotoURL,
		RefreshToken:   u.RefreshToken,
		ProfilePending: pending,
		SavedAt:        p.now(),
	}
	if err := p.store.Put(storeBucket, storeKey, rec); err != nil {
		p.logger.Warn("persist session failed", zap.Error(err))
	}
}

// merge overlays the non-empty fields of next on base.
func merge(base, next identity.User) identity.User {
	if next.UID != "" {
		base.UID = next.UID
	}
	if next.Email != "" {
		base.Email = next.Email
	}
	if next.DisplayName != "" {
		base.DisplayName = next.DisplayName
	}
	if next.PhotoURL != "" {
		base.PhotoURL = next.PhotoURL
	}
	if next.IDToken != "" {
		base.IDToken = next.IDToken
		base.ExpiresAt = next.ExpiresAt
	}
	if next.RefreshToken != "" {
		base.RefreshToken = next.RefreshToken
	}
	return base
}

// ErrProfilePending is wrapped by errors from Register when the account
// exists but its profile could not be completed.
var ErrProfilePending = errors.New("account created but profile is incomplete")

func profilePending(op string, cause error) error {
	return &apperr.Error{
		Kind:    apperr.KindUpstream,
		Op:      op,
		Message: "account created but the profile could not be saved; update your profile to finish",
		Err:     errors.Join(ErrProfilePending, cause),
	}
}
