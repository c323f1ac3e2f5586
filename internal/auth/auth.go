package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"golang.org/x/crypto/bcrypt"

	"stox_auth/internal/config"
	"stox_auth/internal/lib/jwt"
	sl "stox_auth/internal/lib/logger"
	"stox_auth/internal/models"
	"stox_auth/internal/storage"
)

const (
	RoleUser  = "User"
	RoleAdmin = "Admin"

	ActionRegistered = "Registered"
	ActionLoggedIn   = "Logged in"
	ActionLoggedOut  = "Logged out"
)

var (
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrUserExists          = errors.New("user already exists")
	ErrInvalidRefreshToken = errors.New("invalid or expired refresh token")
	ErrInvalidResetToken   = errors.New("invalid or expired reset token")
	ErrUserNotFound        = errors.New("user not found")
)

type UserStore interface {
	SaveUser(ctx context.Context, user models.User, defaultRole string) (int64, error)
	UserByEmail(ctx context.Context, email string) (models.User, error)
	UserByID(ctx context.Context, id int64) (models.User, error)
	UserExists(ctx context.Context, email string) (bool, error)
	RoleNames(ctx context.Context, userID int64) ([]string, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	SoftDeleteUser(ctx context.Context, userID int64) error
}

type SessionStore interface {
	SaveRefreshToken(ctx context.Context, userID int64, token string, expiresAt time.Time) error
	RevokeRefreshToken(ctx context.Context, token string) (models.RefreshToken, error)
	RevokeAllRefreshTokens(ctx context.Context, userID int64) error
}

type ResetStore interface {
	SavePasswordResetToken(ctx context.Context, userID int64, token string, expiresAt time.Time) error
	RedeemPasswordResetToken(ctx context.Context, token string, newHash []byte) (int64, error)
}

type ActivityLog interface {
	LogActivity(ctx context.Context, userID int64, action string) error
	UsersLoggedInToday(ctx context.Context) ([]models.ActivityEntry, error)
	LatestActivity(ctx context.Context, limit int) ([]models.ActivityEntry, error)
}

// Storage is what the postgres repo implements.
type Storage interface {
	UserStore
	SessionStore
	ResetStore
	ActivityLog
}

type EmailPublisher interface {
	SendMessage(ctx context.Context, msg models.EmailMessage) error
}

// SessionDenylist lets logout kill outstanding access tokens early.
// Optional; a nil denylist means access tokens simply run out their TTL.
type SessionDenylist interface {
	DenyUserTokens(ctx context.Context, userID int64, ttl time.Duration) error
}

type Auth struct {
	log             *slog.Logger
	store           Storage
	email           EmailPublisher
	denylist        SessionDenylist
	jwtCfg          config.JWT
	refreshTTL      time.Duration
	resetTTL        time.Duration
	frontendBaseURL string
}

func New(
	log *slog.Logger,
	store Storage,
	email EmailPublisher,
	denylist SessionDenylist,
	cfg *config.Config,
) *Auth {
	return &Auth{
		log:             log,
		store:           store,
		email:           email,
		denylist:        denylist,
		jwtCfg:          cfg.JWT,
		refreshTTL:      cfg.Tokens.RefreshTokenTTL,
		resetTTL:        cfg.Tokens.ResetTokenTTL,
		frontendBaseURL: cfg.FrontendBaseURL,
	}
}

type RegisterParams struct {
	BusinessName   string
	BusinessNumber string
	Email          string
	Phone          string
	Address        string
	Transit        string
	Password       string
}

type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// Register creates the account, assigns the default role, logs the event and
// returns a fresh token pair. Duplicate emails surface as ErrUserExists.
func (a *Auth) Register(ctx context.Context, p RegisterParams) (TokenPair, string, error) {
	const op = "auth.Register"

	log := a.log.With(slog.String("op", op))

	passHash, err := bcrypt.GenerateFromPassword([]byte(p.Password), bcrypt.DefaultCost)
	if err != nil {
		log.Error("failed to generate password hash", sl.Err(err))
		return TokenPair{}, "", fmt.Errorf("%s: %w", op, err)
	}

	_, err = a.store.SaveUser(ctx, models.User{
		BusinessName:   p.BusinessName,
		BusinessNumber: p.BusinessNumber,
		Email:          p.Email,
		Phone:          p.Phone,
		Address:        p.Address,
		TransitNumber:  p.Transit,
		PassHash:       passHash,
		CreatedAt:      time.Now(),
	}, RoleUser)
	if err != nil {
		if errors.Is(err, storage.ErrUserExists) {
			log.Warn("user already exists")
			return TokenPair{}, "", ErrUserExists
		}
		if errors.Is(err, storage.ErrRoleNotFound) {
			// Deployment invariant: the default role must be seeded.
			log.Error("default role missing", slog.String("role", RoleUser))
			return TokenPair{}, "", fmt.Errorf("%s: default role %q not found", op, RoleUser)
		}

		log.Error("failed to save user", sl.Err(err))
		return TokenPair{}, "", fmt.Errorf("%s: %w", op, err)
	}

	user, err := a.store.UserByEmail(ctx, p.Email)
	if err != nil {
		log.Error("failed to reload user after insert", sl.Err(err))
		return TokenPair{}, "", fmt.Errorf("%s: reload after insert: %w", op, err)
	}

	role, err := a.resolveRole(ctx, user.ID)
	if err != nil {
		log.Error("failed to resolve role", sl.Err(err))
		return TokenPair{}, "", fmt.Errorf("%s: %w", op, err)
	}

	pair, err := a.issueTokens(ctx, user, role)
	if err != nil {
		log.Error("failed to issue tokens", sl.Err(err))
		return TokenPair{}, "", fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user registered", slog.Int64("uid", user.ID))

	return pair, role, nil
}

// Login verifies credentials and returns a fresh token pair. Prior sessions
// stay valid; concurrent sessions are allowed. Unknown email and wrong
// password collapse into the same error.
func (a *Auth) Login(ctx context.Context, email, password string) (TokenPair, string, error) {
	const op = "auth.Login"

	log := a.log.With(slog.String("op", op))

	user, err := a.store.UserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Warn("user not found")
			return TokenPair{}, "", ErrInvalidCredentials
		}

		log.Error("failed to get user", sl.Err(err))
		return TokenPair{}, "", fmt.Errorf("%s: %w", op, err)
	}

	if err := bcrypt.CompareHashAndPassword(user.PassHash, []byte(password)); err != nil {
		log.Info("invalid credentials")
		return TokenPair{}, "", ErrInvalidCredentials
	}

	role, err := a.resolveRole(ctx, user.ID)
	if err != nil {
		log.Error("failed to resolve role", sl.Err(err))
		return TokenPair{}, "", fmt.Errorf("%s: %w", op, err)
	}

	if err := a.store.LogActivity(ctx, user.ID, ActionLoggedIn); err != nil {
		log.Error("failed to log activity", sl.Err(err))
		return TokenPair{}, "", fmt.Errorf("%s: %w", op, err)
	}

	pair, err := a.issueTokens(ctx, user, role)
	if err != nil {
		log.Error("failed to issue tokens", sl.Err(err))
		return TokenPair{}, "", fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user logged in", slog.Int64("uid", user.ID))

	return pair, role, nil
}

// Refresh rotates the presented refresh token: the old token is revoked in
// the same compare-and-swap that validates it, so it can never be replayed,
// and a new pair is issued. Role changes take effect here, on the next
// rotation.
func (a *Auth) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	const op = "auth.Refresh"

	log := a.log.With(slog.String("op", op))

	rt, err := a.store.RevokeRefreshToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, storage.ErrRefreshTokenNotFound) {
			log.Warn("refresh token rejected")
			return TokenPair{}, ErrInvalidRefreshToken
		}

		log.Error("failed to revoke refresh token", sl.Err(err))
		return TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	user, err := a.store.UserByID(ctx, rt.UserID)
	if err != nil {
		// Covers soft-deleted owners as well.
		log.Warn("owner of refresh token not found", sl.Err(err))
		return TokenPair{}, ErrInvalidRefreshToken
	}

	role, err := a.resolveRole(ctx, user.ID)
	if err != nil {
		log.Error("failed to resolve role", sl.Err(err))
		return TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	pair, err := a.issueTokens(ctx, user, role)
	if err != nil {
		log.Error("failed to issue tokens", sl.Err(err))
		return TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("tokens rotated", slog.Int64("uid", user.ID))

	return pair, nil
}

// Logout appends the activity entry and revokes every active refresh token
// of the user, so a stolen refresh token does not survive the logout. When a
// denylist is wired, outstanding access tokens die too; denylist failures
// are logged and swallowed so logout itself cannot fail on a cache outage.
func (a *Auth) Logout(ctx context.Context, userID int64) error {
	const op = "auth.Logout"

	log := a.log.With(slog.String("op", op))

	if err := a.store.LogActivity(ctx, userID, ActionLoggedOut); err != nil {
		log.Error("failed to log activity", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := a.store.RevokeAllRefreshTokens(ctx, userID); err != nil {
		log.Error("failed to revoke refresh tokens", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if a.denylist != nil {
		if err := a.denylist.DenyUserTokens(ctx, userID, a.jwtCfg.AccessTokenTTL); err != nil {
			log.Warn("failed to deny access tokens", sl.Err(err))
		}
	}

	log.Info("user logged out", slog.Int64("uid", userID))

	return nil
}

// CheckEmail is a pure existence query. Intentionally not enumeration-safe;
// the signup flow uses it.
func (a *Auth) CheckEmail(ctx context.Context, email string) (bool, error) {
	const op = "auth.CheckEmail"

	exists, err := a.store.UserExists(ctx, email)
	if err != nil {
		a.log.Error("failed to check email", slog.String("op", op), sl.Err(err))
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return exists, nil
}

// ForgotPassword issues a reset token and publishes the reset email when the
// account exists. The caller gets the same nil result either way; publish
// failures are logged, not surfaced, so the response stays enumeration-safe.
func (a *Auth) ForgotPassword(ctx context.Context, email string) error {
	const op = "auth.ForgotPassword"

	log := a.log.With(slog.String("op", op))

	user, err := a.store.UserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Info("reset requested for unknown email")
			return nil
		}

		log.Error("failed to get user", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	token, err := jwt.NewOpaqueToken()
	if err != nil {
		log.Error("failed to generate reset token", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := a.store.SavePasswordResetToken(ctx, user.ID, token, time.Now().Add(a.resetTTL)); err != nil {
		log.Error("failed to save reset token", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	resetURL := fmt.Sprintf("%s/reset-password?token=%s", a.frontendBaseURL, url.QueryEscape(token))

	msg := models.EmailMessage{
		Email:   user.Email,
		Subject: "Reset Your Password",
		Body: "Hello,\n\nClick below to reset your password:\n" + resetURL +
			"\n\nThis link will expire in 1 hour.",
	}

	if err := a.email.SendMessage(ctx, msg); err != nil {
		log.Error("failed to publish reset email", sl.Err(err))
	}

	log.Info("reset token issued", slog.Int64("uid", user.ID))

	return nil
}

// ResetPassword consumes the token and overwrites the password hash; both
// happen in one storage transaction. A spent or expired token yields
// ErrInvalidResetToken with no hint of which it was.
func (a *Auth) ResetPassword(ctx context.Context, token, newPassword string) error {
	const op = "auth.ResetPassword"

	log := a.log.With(slog.String("op", op))

	passHash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		log.Error("failed to generate password hash", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	userID, err := a.store.RedeemPasswordResetToken(ctx, token, passHash)
	if err != nil {
		if errors.Is(err, storage.ErrResetTokenNotFound) {
			log.Warn("reset token rejected")
			return ErrInvalidResetToken
		}

		log.Error("failed to redeem reset token", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("password reset", slog.Int64("uid", userID))

	return nil
}

type ActivityPanel struct {
	LoggedInToday []models.ActivityEntry
	Latest        []models.ActivityEntry
}

const latestActivityLimit = 10

// UserActivityPanel backs the admin dashboard: who logged in today, plus the
// ten most recent activity entries.
func (a *Auth) UserActivityPanel(ctx context.Context) (ActivityPanel, error) {
	const op = "auth.UserActivityPanel"

	today, err := a.store.UsersLoggedInToday(ctx)
	if err != nil {
		a.log.Error("failed to load today's logins", slog.String("op", op), sl.Err(err))
		return ActivityPanel{}, fmt.Errorf("%s: %w", op, err)
	}

	latest, err := a.store.LatestActivity(ctx, latestActivityLimit)
	if err != nil {
		a.log.Error("failed to load latest activity", slog.String("op", op), sl.Err(err))
		return ActivityPanel{}, fmt.Errorf("%s: %w", op, err)
	}

	return ActivityPanel{LoggedInToday: today, Latest: latest}, nil
}

func (a *Auth) Users(ctx context.Context) ([]models.User, error) {
	const op = "auth.Users"

	users, err := a.store.ListUsers(ctx)
	if err != nil {
		a.log.Error("failed to list users", slog.String("op", op), sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return users, nil
}

// RemoveUser soft-deletes the account and revokes its active sessions.
func (a *Auth) RemoveUser(ctx context.Context, userID int64) error {
	const op = "auth.RemoveUser"

	log := a.log.With(slog.String("op", op))

	if err := a.store.SoftDeleteUser(ctx, userID); err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return ErrUserNotFound
		}

		log.Error("failed to soft-delete user", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := a.store.RevokeAllRefreshTokens(ctx, userID); err != nil {
		log.Error("failed to revoke refresh tokens", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user removed", slog.Int64("uid", userID))

	return nil
}

// resolveRole picks the effective role: Admin outranks everything, otherwise
// the alphabetically first assignment wins. No role rows mean an empty role.
func (a *Auth) resolveRole(ctx context.Context, userID int64) (string, error) {
	names, err := a.store.RoleNames(ctx, userID)
	if err != nil {
		return "", err
	}

	if len(names) == 0 {
		return "", nil
	}

	for _, name := range names {
		if name == RoleAdmin {
			return RoleAdmin, nil
		}
	}

	return names[0], nil
}

func (a *Auth) issueTokens(ctx context.Context, user models.User, role string) (TokenPair, error) {
	accessToken, err := jwt.NewAccessToken(a.jwtCfg, user, role)
	if err != nil {
		return TokenPair{}, err
	}

	refreshToken, err := jwt.NewOpaqueToken()
	if err != nil {
		return TokenPair{}, err
	}

	if err := a.store.SaveRefreshToken(ctx, user.ID, refreshToken, time.Now().Add(a.refreshTTL)); err != nil {
		return TokenPair{}, err
	}

	return TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}
