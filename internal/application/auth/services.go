package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/bryanwahyu/codesight/internal/application"
	"github.com/bryanwahyu/codesight/internal/domain/ai"
	domain "github.com/bryanwahyu/codesight/internal/domain/auth"
)

const (
	DefaultSessionTTL = 7 * 24 * time.Hour
	DefaultCodeTTL    = time.Hour
	MinPasswordLength = 6
)

// Options configures session and confirmation lifetimes.
type Options struct {
	SessionTTL time.Duration
	CodeTTL    time.Duration
	// BaseURL is the public origin used in confirmation links.
	BaseURL string
	// AutoConfirm skips the email round trip; sign-up returns a session.
	AutoConfirm bool
}

// Service is the local auth provider: email+password accounts, opaque
// session tokens and one-time callback codes.
type Service struct {
	store    domain.Store
	notifier domain.Notifier
	clock    application.Clock
	log      *slog.Logger
	opts     Options
	validate *validator.Validate
}

func NewService(store domain.Store, notifier domain.Notifier, clock application.Clock, log *slog.Logger, opts Options) *Service {
	if clock == nil {
		clock = application.SystemClock{}
	}
	if log == nil {
		log = slog.Default()
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = DefaultSessionTTL
	}
	if opts.CodeTTL <= 0 {
		opts.CodeTTL = DefaultCodeTTL
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	return &Service{store: store, notifier: notifier, clock: clock, log: log, opts: opts, validate: validator.New()}
}

// SessionTTL is how long a new session stays valid.
func (s *Service) SessionTTL() time.Duration { return s.opts.SessionTTL }

// Credentials is the login/sign-up form.
type Credentials struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=6"`
}

func (c Credentials) normalize() Credentials {
	c.Email = strings.ToLower(strings.TrimSpace(c.Email))
	return c
}

// SignUp registers an account and sends the confirmation link. With
// AutoConfirm a session is returned right away; otherwise it is nil.
func (s *Service) SignUp(ctx context.Context, c Credentials) (*domain.Session, error) {
	c = c.normalize()
	if err := s.check(c); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(c.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	now := s.clock.Now()
	u := &domain.User{ID: uuid.NewString(), Email: c.Email, PasswordHash: string(hash), CreatedAt: now}
	if s.opts.AutoConfirm {
		u.ConfirmedAt = now
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	s.log.Info("user registered", "user_id", u.ID)

	if s.opts.AutoConfirm {
		return s.newSession(ctx, u.ID)
	}
	return nil, s.sendCode(ctx, u)
}

// ResendConfirmation issues a fresh code for an unconfirmed account.
// Unknown emails succeed silently.
func (s *Service) ResendConfirmation(ctx context.Context, email string) error {
	u, err := s.store.UserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if u.Confirmed() {
		return nil
	}
	return s.sendCode(ctx, u)
}

func (s *Service) sendCode(ctx context.Context, u *domain.User) error {
	code := &domain.Code{Code: uuid.NewString(), UserID: u.ID, ExpiresAt: s.clock.Now().Add(s.opts.CodeTTL)}
	if err := s.store.CreateCode(ctx, code); err != nil {
		return fmt.Errorf("create confirmation code: %w", err)
	}
	link := s.opts.BaseURL + "/auth/callback?code=" + url.QueryEscape(code.Code)
	if err := s.notifier.SendConfirmation(ctx, u.Email, link); err != nil {
		return fmt.Errorf("send confirmation: %w", err)
	}
	return nil
}

// SignIn checks email and password and opens a session.
func (s *Service) SignIn(ctx context.Context, c Credentials) (*domain.Session, error) {
	c = c.normalize()
	if c.Email == "" || c.Password == "" {
		return nil, domain.ErrInvalidCredentials
	}
	u, err := s.store.UserByEmail(ctx, c.Email)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(c.Password)) != nil {
		return nil, domain.ErrInvalidCredentials
	}
	if !u.Confirmed() {
		return nil, domain.ErrEmailNotConfirmed
	}
	return s.newSession(ctx, u.ID)
}

// ExchangeCode consumes a callback code, confirms its user and opens a session.
func (s *Service) ExchangeCode(ctx context.Context, code string) (*domain.Session, error) {
	if code == "" {
		return nil, domain.ErrInvalidCode
	}
	c, err := s.store.ConsumeCode(ctx, code)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrInvalidCode
	}
	if err != nil {
		return nil, err
	}
	if !s.clock.Now().Before(c.ExpiresAt) {
		return nil, domain.ErrInvalidCode
	}
	if err := s.store.ConfirmUser(ctx, c.UserID); err != nil {
		return nil, fmt.Errorf("confirm user: %w", err)
	}
	return s.newSession(ctx, c.UserID)
}

// Resolve maps a session token to its principal. Expired sessions are
// removed and reported as ErrUnauthenticated.
func (s *Service) Resolve(ctx context.Context, token string) (domain.Principal, error) {
	if token == "" {
		return domain.Principal{}, domain.ErrUnauthenticated
	}
	sess, err := s.store.SessionByToken(ctx, token)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Principal{}, domain.ErrUnauthenticated
	}
	if err != nil {
		return domain.Principal{}, err
	}
	if sess.Expired(s.clock.Now()) {
		if err := s.store.DeleteSession(ctx, token); err != nil && !errors.Is(err, domain.ErrNotFound) {
			s.log.Warn("delete expired session failed", "error", err)
		}
		return domain.Principal{}, domain.ErrUnauthenticated
	}
	u, err := s.store.UserByID(ctx, sess.UserID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Principal{}, domain.ErrUnauthenticated
	}
	if err != nil {
		return domain.Principal{}, err
	}
	return domain.Principal{UserID: u.ID, Email: u.Email, Token: token}, nil
}

// SignOut drops the session. Unknown tokens are not an error.
func (s *Service) SignOut(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	err := s.store.DeleteSession(ctx, token)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	return nil
}

func (s *Service) newSession(ctx context.Context, userID string) (*domain.Session, error) {
	now := s.clock.Now()
	sess := &domain.Session{
		Token:     uuid.NewString(),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.opts.SessionTTL),
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

func (s *Service) check(c Credentials) error {
	err := s.validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := map[string]string{}
	for _, fe := range verrs {
		switch fe.Field() {
		case "Email":
			fields["email"] = "Please enter a valid email address."
		case "Password":
			fields["password"] = fmt.Sprintf("Password must be at least %d characters.", MinPasswordLength)
		}
	}
	return &ai.ValidationError{Fields: fields}
}
