package service

// AuthService is the business logic layer for accounts and tokens:
//
//	AuthHandler (HTTP) → AuthService (business rules) → UserRepository (DB)
//	                   ↘ TokenService (JWT), PasswordService (bcrypt)
//	                   ↘ avatar.Resolver, ConfirmationSender (asynq), UserCache (Redis)
//
// The optional collaborators (avatar, email queue, cache) degrade quietly:
// their failures are logged and never fail the request that triggered them.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/sakif/contacts-api/internal/apperror"
	"github.com/sakif/contacts-api/internal/auth"
	"github.com/sakif/contacts-api/internal/avatar"
	"github.com/sakif/contacts-api/internal/model"
	"github.com/sakif/contacts-api/internal/repository"
)

// User-facing messages returned by the email confirmation flow.
const (
	MsgEmailConfirmed        = "Email confirmed"
	MsgEmailAlreadyConfirmed = "Your email is already confirmed"
	MsgCheckEmail            = "Check your email for confirmation."
)

// userLoadTimeout bounds the shared database read behind CurrentUser.
const userLoadTimeout = 5 * time.Second

// ConfirmationSender queues a confirmation email. *jobs.Client implements it.
type ConfirmationSender interface {
	SendConfirmation(ctx context.Context, email, username, link string) error
}

// UserCache is the read-through cache in front of UserRepository.GetByID.
// *cache.UserCache implements it.
type UserCache interface {
	Get(ctx context.Context, id string) (*model.User, bool, error)
	Set(ctx context.Context, u *model.User) error
	Delete(ctx context.Context, id string) error
}

// AuthServiceConfig lists the AuthService dependencies. Users, Tokens,
// Passwords and Logger are required; the rest may be nil.
type AuthServiceConfig struct {
	Users         repository.UserRepository
	Tokens        *auth.TokenService
	Passwords     *auth.PasswordService
	Avatars       avatar.Resolver
	Confirmations ConfirmationSender
	Cache         UserCache
	Logger        *slog.Logger
}

// AuthService handles registration, login, token rotation and email
// confirmation.
type AuthService struct {
	users         repository.UserRepository
	tokens        *auth.TokenService
	passwords     *auth.PasswordService
	avatars       avatar.Resolver
	confirmations ConfirmationSender
	cache         UserCache
	logger        *slog.Logger

	// loads collapses concurrent cache misses for the same user into one
	// repository read.
	loads singleflight.Group
}

// NewAuthService creates an AuthService.
func NewAuthService(cfg AuthServiceConfig) *AuthService {
	return &AuthService{
		users:         cfg.Users,
		tokens:        cfg.Tokens,
		passwords:     cfg.Passwords,
		avatars:       cfg.Avatars,
		confirmations: cfg.Confirmations,
		cache:         cfg.Cache,
		logger:        cfg.Logger,
	}
}

// Signup registers a new, unconfirmed account and queues the confirmation
// email. baseURL is the public address the confirmation link points at.
func (s *AuthService) Signup(ctx context.Context, in model.SignupInput, baseURL string) (*model.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	if _, err := s.users.GetByEmail(ctx, in.Email); err == nil {
		return nil, apperror.Conflict("Account already exists")
	} else if !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("service/auth: looking up %s: %w", in.Email, err)
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("service/auth: hashing password: %w", err)
	}

	user := &model.User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		Avatar:       s.resolveAvatar(ctx, in.Email),
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: creating user: %w", err)
	}

	s.logger.Info("user registered",
		slog.String("user_id", user.ID),
		slog.String("username", user.Username),
	)

	s.sendConfirmation(ctx, user, baseURL)
	return user, nil
}

// Login checks credentials and issues a fresh token pair. The refresh token
// is stored so it can be rotated and revoked.
func (s *AuthService) Login(ctx context.Context, email, password string) (*model.TokenPair, error) {
	user, err := s.users.GetByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, apperror.ErrNotFound) {
		return nil, apperror.Unauthorized("Invalid email")
	}
	if err != nil {
		return nil, fmt.Errorf("service/auth: looking up %s: %w", email, err)
	}
	if !user.Confirmed {
		return nil, apperror.Unauthorized("Email not confirmed")
	}
	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		return nil, apperror.Unauthorized("Invalid password")
	}

	pair, err := s.issueTokens(ctx, user)
	if err != nil {
		return nil, err
	}
	s.logger.Info("user logged in", slog.String("user_id", user.ID))
	return pair, nil
}

// Refresh trades a refresh token for a new pair.
//
// REFRESH TOKEN ROTATION:
// Only the most recently issued refresh token is accepted. Presenting any
// other (for example one that was already used) clears the stored token,
// which logs out every holder and forces a new password login.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*model.TokenPair, error) {
	userID, err := s.tokens.Validate(refreshToken, auth.ScopeRefresh)
	if err != nil {
		return nil, apperror.Unauthorized("Could not validate credentials")
	}

	user, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, apperror.ErrNotFound) {
		return nil, apperror.Unauthorized("Could not validate credentials")
	}
	if err != nil {
		return nil, fmt.Errorf("service/auth: loading user %s: %w", userID, err)
	}

	if user.RefreshToken == nil || *user.RefreshToken != refreshToken {
		if err := s.setRefreshToken(ctx, user.ID, nil); err != nil {
			return nil, err
		}
		s.logger.Warn("refresh token reuse detected", slog.String("user_id", user.ID))
		return nil, apperror.Unauthorized("Invalid refresh token")
	}

	return s.issueTokens(ctx, user)
}

// Logout revokes the stored refresh token. Access tokens already issued
// stay valid until they expire.
func (s *AuthService) Logout(ctx context.Context, userID string) error {
	if err := s.setRefreshToken(ctx, userID, nil); err != nil {
		return err
	}
	s.logger.Info("user logged out", slog.String("user_id", userID))
	return nil
}

// ConfirmEmail marks the account named by an email-scoped token as confirmed
// and returns the message to show.
func (s *AuthService) ConfirmEmail(ctx context.Context, token string) (string, error) {
	email, err := s.tokens.Validate(token, auth.ScopeEmail)
	if err != nil {
		return "", apperror.ValidationFailed("token", "Invalid token for email verification")
	}

	user, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, apperror.ErrNotFound) {
		return "", apperror.ValidationFailed("token", "Verification error")
	}
	if err != nil {
		return "", fmt.Errorf("service/auth: looking up %s: %w", email, err)
	}
	if user.Confirmed {
		return MsgEmailAlreadyConfirmed, nil
	}

	if err := s.users.ConfirmEmail(ctx, email); err != nil {
		return "", fmt.Errorf("service/auth: confirming %s: %w", email, err)
	}
	s.evict(ctx, user.ID)

	s.logger.Info("email confirmed", slog.String("user_id", user.ID))
	return MsgEmailConfirmed, nil
}

// RequestEmail re-sends the confirmation email. The reply does not reveal
// whether the address has an account.
func (s *AuthService) RequestEmail(ctx context.Context, email, baseURL string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", apperror.ValidationFailed("email", "email is required")
	}

	user, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, apperror.ErrNotFound) {
		return MsgCheckEmail, nil
	}
	if err != nil {
		return "", fmt.Errorf("service/auth: looking up %s: %w", email, err)
	}
	if user.Confirmed {
		return MsgEmailAlreadyConfirmed, nil
	}

	s.sendConfirmation(ctx, user, baseURL)
	return MsgCheckEmail, nil
}

// CurrentUser loads the account behind an access token. It implements
// auth.UserLoader for the RequireUser middleware, so it runs on every
// authenticated request: reads go through the cache, and concurrent misses
// for the same id share one database query.
func (s *AuthService) CurrentUser(ctx context.Context, userID string) (*model.User, error) {
	if userID == "" {
		return nil, apperror.Unauthorized("Could not validate credentials")
	}

	if s.cache != nil {
		user, ok, err := s.cache.Get(ctx, userID)
		if err != nil {
			s.logger.Warn("user cache read failed",
				slog.String("user_id", userID),
				slog.String("error", err.Error()),
			)
		}
		if ok {
			return user, nil
		}
	}

	v, err, _ := s.loads.Do(userID, func() (any, error) {
		// The flight is shared, so one caller going away must not fail the
		// others.
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), userLoadTimeout)
		defer cancel()

		user, err := s.users.GetByID(loadCtx, userID)
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			if err := s.cache.Set(loadCtx, user); err != nil {
				s.logger.Warn("user cache write failed",
					slog.String("user_id", userID),
					slog.String("error", err.Error()),
				)
			}
		}
		return user, nil
	})
	if err != nil {
		return nil, fmt.Errorf("service/auth: loading user %s: %w", userID, err)
	}

	// Callers sharing a flight get their own copy, without the credentials
	// a cache hit would not carry either.
	user := *v.(*model.User)
	user.PasswordHash = ""
	user.RefreshToken = nil
	return &user, nil
}

// LoginWithGitHub signs in with a GitHub profile whose email GitHub has
// verified. The first sign-in creates a confirmed account with a random
// password; later ones reuse the account with the same email.
func (s *AuthService) LoginWithGitHub(ctx context.Context, gh *auth.GitHubUser) (*model.TokenPair, error) {
	if gh == nil {
		return nil, fmt.Errorf("service/auth: GitHub user must not be nil")
	}
	if gh.Email == "" {
		return nil, apperror.ValidationFailed("email", "GitHub account has no verified email")
	}

	user, err := s.users.GetByEmail(ctx, gh.Email)
	switch {
	case errors.Is(err, apperror.ErrNotFound):
		user, err = s.createGitHubUser(ctx, gh)
		if err != nil {
			return nil, err
		}
	case err != nil:
		return nil, fmt.Errorf("service/auth: looking up %s: %w", gh.Email, err)
	case !user.Confirmed:
		// GitHub has verified the address, which is what confirmation proves.
		if err := s.users.ConfirmEmail(ctx, user.Email); err != nil {
			return nil, fmt.Errorf("service/auth: confirming %s: %w", user.Email, err)
		}
		user.Confirmed = true
	}

	s.logger.Info("user authenticated via GitHub",
		slog.String("user_id", user.ID),
		slog.String("login", gh.Login),
	)
	return s.issueTokens(ctx, user)
}

func (s *AuthService) createGitHubUser(ctx context.Context, gh *auth.GitHubUser) (*model.User, error) {
	hash, err := s.passwords.Hash(auth.RandomPassword())
	if err != nil {
		return nil, fmt.Errorf("service/auth: hashing password: %w", err)
	}

	username := gh.Login
	if _, err := s.users.GetByUsername(ctx, username); err == nil {
		username = gh.Login + "-" + strconv.FormatInt(gh.ID, 10)
	} else if !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("service/auth: looking up username %s: %w", username, err)
	}

	var avatarURL *string
	if gh.AvatarURL != "" {
		avatarURL = &gh.AvatarURL
	} else {
		avatarURL = s.resolveAvatar(ctx, gh.Email)
	}

	user := &model.User{
		Username:     username,
		Email:        gh.Email,
		PasswordHash: hash,
		Confirmed:    true,
		Avatar:       avatarURL,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: creating GitHub user: %w", err)
	}
	s.logger.Info("user registered via GitHub",
		slog.String("user_id", user.ID),
		slog.String("username", user.Username),
	)
	return user, nil
}

// issueTokens generates an access/refresh pair for user and stores the
// refresh token.
func (s *AuthService) issueTokens(ctx context.Context, user *model.User) (*model.TokenPair, error) {
	access, err := s.tokens.Generate(user.ID, auth.ScopeAccess)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating access token: %w", err)
	}
	refresh, err := s.tokens.Generate(user.ID, auth.ScopeRefresh)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating refresh token: %w", err)
	}
	if err := s.setRefreshToken(ctx, user.ID, &refresh); err != nil {
		return nil, err
	}
	return &model.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
	}, nil
}

func (s *AuthService) setRefreshToken(ctx context.Context, userID string, token *string) error {
	if err := s.users.UpdateRefreshToken(ctx, userID, token); err != nil {
		return fmt.Errorf("service/auth: storing refresh token: %w", err)
	}
	s.evict(ctx, userID)
	return nil
}

// evict drops the cached copy after a write to the user row.
func (s *AuthService) evict(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, userID); err != nil {
		s.logger.Warn("user cache eviction failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}
}

// resolveAvatar returns the default avatar URL, or nil if the resolver is
// missing or fails.
func (s *AuthService) resolveAvatar(ctx context.Context, email string) *string {
	if s.avatars == nil {
		return nil
	}
	url, err := s.avatars.Resolve(ctx, email)
	if err != nil {
		s.logger.Warn("avatar lookup failed",
			slog.String("email", email),
			slog.String("error", err.Error()),
		)
		return nil
	}
	return &url
}

// sendConfirmation queues the confirmation email. Queue failures are
// logged; the user can ask for another email through RequestEmail.
func (s *AuthService) sendConfirmation(ctx context.Context, user *model.User, baseURL string) {
	if s.confirmations == nil {
		return
	}
	token, err := s.tokens.Generate(user.Email, auth.ScopeEmail)
	if err != nil {
		s.logger.Error("failed to generate email token",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	link := strings.TrimRight(baseURL, "/") + "/api/auth/confirmed_email/" + token
	if err := s.confirmations.SendConfirmation(ctx, user.Email, user.Username, link); err != nil {
		s.logger.Warn("failed to queue confirmation email",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}
}
