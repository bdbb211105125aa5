package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"kindertrack/auth-identity/internal/auth"
	"kindertrack/auth-identity/internal/config"
	"kindertrack/auth-identity/internal/crypto"
	"kindertrack/auth-identity/internal/model"
	"kindertrack/auth-identity/internal/repository"
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

const minPasswordLength = 6

// UserStore is the credential store collaborator.
type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (model.User, error)
	GetUserByID(ctx context.Context, userID string) (model.User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	CreateUser(ctx context.Context, user model.User) error
	SchoolExists(ctx context.Context, schoolID string) (bool, error)
}

// RefreshTokenStore persists hashed refresh tokens. FindActiveRefreshToken
// must exclude revoked tokens and tokens owned by soft-deleted users;
// RevokeRefreshToken must be a conditional write that reports whether this
// caller performed the flip.
type RefreshTokenStore interface {
	CreateRefreshToken(ctx context.Context, token model.RefreshToken) error
	FindActiveRefreshToken(ctx context.Context, tokenHash string) (model.RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, tokenID string) (bool, error)
	RevokeAllUserTokens(ctx context.Context, userID string) (int64, error)
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Role      string
	SchoolID  *string
	Phone     *string
	Address   *string
}

type Auth struct {
	cfg    config.Config
	users  UserStore
	tokens RefreshTokenStore
	logger *zap.Logger
}

func NewAuth(cfg config.Config, users UserStore, tokens RefreshTokenStore, logger *zap.Logger) *Auth {
	return &Auth{cfg: cfg, users: users, tokens: tokens, logger: logger}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (a *Auth) Register(ctx context.Context, input RegisterInput) (model.User, error) {
	email := normalizeEmail(input.Email)
	if !emailPattern.MatchString(email) {
		return model.User{}, ErrInvalidEmail
	}
	if len(input.Password) < minPasswordLength {
		return model.User{}, ErrWeakPassword
	}
	role, ok := model.ParseRole(input.Role)
	if !ok {
		return model.User{}, ErrInvalidRole
	}

	taken, err := a.users.EmailExists(ctx, email)
	if err != nil {
		return model.User{}, fmt.Errorf("email lookup: %w", err)
	}
	if taken {
		a.logger.Warn("registration rejected", zap.String("email", email), zap.String("reason", "email_taken"))
		return model.User{}, ErrEmailTaken
	}

	var schoolID *string
	if role.RequiresSchool() {
		if input.SchoolID == nil || strings.TrimSpace(*input.SchoolID) == "" {
			return model.User{}, ErrSchoolRequired
		}
		id := strings.TrimSpace(*input.SchoolID)
		exists, err := a.users.SchoolExists(ctx, id)
		if err != nil {
			return model.User{}, fmt.Errorf("school lookup: %w", err)
		}
		if !exists {
			a.logger.Warn("registration rejected", zap.String("email", email), zap.String("school_id", id), zap.String("reason", "school_not_found"))
			return model.User{}, ErrSchoolNotFound
		}
		schoolID = &id
	}

	hash, err := crypto.HashPassword(input.Password)
	if err != nil {
		return model.User{}, fmt.Errorf("password hash: %w", err)
	}

	user := model.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(input.FirstName),
		LastName:     strings.TrimSpace(input.LastName),
		Role:         role,
		SchoolID:     schoolID,
		Phone:        input.Phone,
		Address:      input.Address,
		CreatedAt:    time.Now().UTC(),
	}
	if err := a.users.CreateUser(ctx, user); err != nil {
		return model.User{}, fmt.Errorf("create user: %w", err)
	}

	a.logger.Info("user registered", zap.String("user_id", user.ID), zap.String("role", role.String()))
	return user, nil
}

// Login verifies credentials and issues a token pair. An unknown email and a
// wrong password are indistinguishable to the caller; the audit log keeps the
// distinction.
func (a *Auth) Login(ctx context.Context, email, password string) (TokenPair, error) {
	email = normalizeEmail(email)

	user, err := a.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			a.logger.Warn("login failed", zap.String("email", email), zap.String("reason", "user_not_found"))
			return TokenPair{}, ErrInvalidCredentials
		}
		return TokenPair{}, fmt.Errorf("user lookup: %w", err)
	}
	if err := crypto.CheckPassword(user.PasswordHash, password); err != nil {
		a.logger.Warn("login failed", zap.String("email", email), zap.String("reason", "bad_password"))
		return TokenPair{}, ErrInvalidCredentials
	}

	pair, err := a.issuePair(ctx, user)
	if err != nil {
		return TokenPair{}, err
	}
	a.logger.Info("login successful", zap.String("user_id", user.ID))
	return pair, nil
}

// Refresh rotates a presented refresh token. The presented record is revoked
// and a replacement issued; losing the conditional revoke to a concurrent
// rotation is reported as an invalid token and logged as possible replay.
func (a *Auth) Refresh(ctx context.Context, presented string) (TokenPair, error) {
	tokenHash := crypto.HashToken(presented)

	record, err := a.tokens.FindActiveRefreshToken(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			a.logger.Warn("refresh failed", zap.String("reason", "token_not_found_or_revoked"))
			return TokenPair{}, ErrInvalidRefreshToken
		}
		return TokenPair{}, fmt.Errorf("token lookup: %w", err)
	}

	now := time.Now().UTC()
	if now.After(record.ExpiresAt) {
		// Eagerly revoke so expired rows stop matching active lookups.
		if _, err := a.tokens.RevokeRefreshToken(ctx, record.ID); err != nil {
			return TokenPair{}, fmt.Errorf("revoke expired token: %w", err)
		}
		a.logger.Warn("refresh failed", zap.String("user_id", record.UserID), zap.String("reason", "token_expired"))
		return TokenPair{}, ErrRefreshExpired
	}

	revoked, err := a.tokens.RevokeRefreshToken(ctx, record.ID)
	if err != nil {
		return TokenPair{}, fmt.Errorf("revoke token: %w", err)
	}
	if !revoked {
		a.logger.Warn("refresh failed", zap.String("user_id", record.UserID), zap.String("reason", "possible_replay"))
		return TokenPair{}, ErrInvalidRefreshToken
	}

	user, err := a.users.GetUserByID(ctx, record.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			a.logger.Warn("refresh failed", zap.String("user_id", record.UserID), zap.String("reason", "user_not_found"))
			return TokenPair{}, ErrInvalidRefreshToken
		}
		return TokenPair{}, fmt.Errorf("user lookup: %w", err)
	}

	pair, err := a.issuePair(ctx, user)
	if err != nil {
		return TokenPair{}, err
	}
	a.logger.Info("refresh successful", zap.String("user_id", user.ID))
	return pair, nil
}

// Logout revokes every outstanding refresh token for the user. Idempotent.
func (a *Auth) Logout(ctx context.Context, userID string) error {
	if _, err := a.users.GetUserByID(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("user lookup: %w", err)
	}
	count, err := a.tokens.RevokeAllUserTokens(ctx, userID)
	if err != nil {
		return fmt.Errorf("revoke tokens: %w", err)
	}
	a.logger.Info("logout", zap.String("user_id", userID), zap.Int64("revoked", count))
	return nil
}

func (a *Auth) WhoAmI(ctx context.Context, userID string) (model.User, error) {
	user, err := a.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.User{}, ErrUserNotFound
		}
		return model.User{}, fmt.Errorf("user lookup: %w", err)
	}
	return user, nil
}

func (a *Auth) issuePair(ctx context.Context, user model.User) (TokenPair, error) {
	accessToken, err := auth.NewAccessToken(a.cfg.JWTSecret, a.cfg.JWTIssuer, a.cfg.AccessTokenTTL, auth.Claims{
		UserID:   user.ID,
		Role:     user.Role,
		SchoolID: user.SchoolID,
	})
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign access token: %w", err)
	}

	refreshToken, err := crypto.NewRefreshToken(a.cfg.RefreshTokenSize)
	if err != nil {
		return TokenPair{}, fmt.Errorf("generate refresh token: %w", err)
	}

	now := time.Now().UTC()
	record := model.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		TokenHash: crypto.HashToken(refreshToken),
		CreatedAt: now,
		ExpiresAt: now.Add(a.cfg.RefreshTokenTTL),
	}
	if err := a.tokens.CreateRefreshToken(ctx, record); err != nil {
		return TokenPair{}, fmt.Errorf("persist refresh token: %w", err)
	}

	return TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "bearer",
		ExpiresIn:    int(a.cfg.AccessTokenTTL / time.Second),
	}, nil
}
