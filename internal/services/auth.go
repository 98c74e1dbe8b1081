package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/babynest/backend/internal/models"
	"github.com/babynest/backend/internal/repositories"
	"github.com/babynest/backend/pkg/logger"
	"github.com/babynest/backend/pkg/utils"
)

type RegisterInput struct {
	Email       string `json:"email" validate:"required,email,max=254"`
	Password    string `json:"password" validate:"required,min=6,max=128"`
	Username    string `json:"username" validate:"omitempty"`
	PhoneNumber string `json:"phone_number" validate:"omitempty,e164"`
}

type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type ForgotPasswordInput struct {
	Email string `json:"email" validate:"required,email"`
}

type VerifyOTPInput struct {
	Email string `json:"email" validate:"required,email"`
	OTP   string `json:"otp" validate:"required,len=6,numeric"`
}

type ResetPasswordInput struct {
	Email       string `json:"email" validate:"required,email"`
	NewPassword string `json:"new_password" validate:"required,min=6,max=128"`
}

type ChangePasswordInput struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=6,max=128"`
}

// AuthResult is returned by every successful sign-in.
type AuthResult struct {
	AccessToken string            `json:"access_token"`
	User        models.PublicUser `json:"user"`
}

// AuthService owns registration, sign-in and the password reset flow.
type AuthService struct {
	users   repositories.UserStore
	tokens  *TokenManager
	revoker TokenRevoker
	mailer  Mailer
	now     func() time.Time
}

// NewAuthService wires the auth flow. mailer may be nil, in which case
// forgot-password reports ErrMailDelivery for existing accounts.
func NewAuthService(users repositories.UserStore, tokens *TokenManager, revoker TokenRevoker, mailer Mailer) *AuthService {
	return &AuthService{
		users:   users,
		tokens:  tokens,
		revoker: revoker,
		mailer:  mailer,
		now:     time.Now,
	}
}

func (s *AuthService) issue(user *models.User) (*AuthResult, error) {
	token, _, err := s.tokens.Issue(user)
	if err != nil {
		return nil, err
	}
	return &AuthResult{AccessToken: token, User: user.Public()}, nil
}

func duplicateToService(err error) error {
	var dup *repositories.DuplicateError
	if !errors.As(err, &dup) {
		return err
	}
	switch dup.Field {
	case "username":
		return ErrUsernameTaken
	case "phone_number":
		return ErrPhoneTaken
	default:
		return ErrEmailTaken
	}
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	in.Email = utils.NormalizeEmail(in.Email)
	if err := Validate(in); err != nil {
		return nil, err
	}
	if in.Username != "" {
		if err := utils.ValidateUsername(in.Username); err != nil {
			return nil, err
		}
		in.Username = utils.NormalizeUsername(in.Username)
	}

	if _, err := s.users.FindByEmail(ctx, in.Email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return nil, err
	}

	hash, err := utils.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	now := s.now().UTC()
	user := &models.User{
		CreatedAt:   now,
		UpdatedAt:   now,
		Email:       in.Email,
		Password:    hash,
		Username:    in.Username,
		PhoneNumber: strings.TrimSpace(in.PhoneNumber),
		Role:        models.RoleUser,
		IsActive:    true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, duplicateToService(err)
	}
	logger.Info("auth: user registered", "user", user.ID.Hex())
	return s.issue(user)
}

func (s *AuthService) Login(ctx context.Context, in LoginInput) (*AuthResult, error) {
	in.Email = utils.NormalizeEmail(in.Email)
	if err := Validate(in); err != nil {
		return nil, err
	}
	user, err := s.users.FindByEmail(ctx, in.Email)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !user.HasPassword() || !user.IsActive {
		return nil, ErrInvalidCredentials
	}
	ok, err := utils.VerifyPassword(in.Password, user.Password)
	if err != nil {
		logger.Error("auth: stored password hash unreadable", "user", user.ID.Hex(), "error", err)
		return nil, ErrInvalidCredentials
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}
	return s.issue(user)
}

// Authenticate verifies a bearer token and rejects revoked ones.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*Session, error) {
	sess, err := s.tokens.Parse(token)
	if err != nil {
		return nil, err
	}
	if s.revoker != nil {
		revoked, err := s.revoker.IsRevoked(ctx, sess.TokenID)
		if err != nil {
			return nil, fmt.Errorf("failed to check token revocation: %w", err)
		}
		if revoked {
			return nil, ErrTokenRevoked
		}
	}
	return sess, nil
}

// Logout revokes the session's token for the rest of its lifetime.
func (s *AuthService) Logout(ctx context.Context, sess *Session) error {
	if s.revoker == nil {
		return nil
	}
	return s.revoker.Revoke(ctx, sess.TokenID, sess.ExpiresAt)
}

// ForgotPassword emails a fresh OTP when the account exists. Unknown
// addresses succeed silently so callers cannot discover accounts.
func (s *AuthService) ForgotPassword(ctx context.Context, in ForgotPasswordInput) error {
	in.Email = utils.NormalizeEmail(in.Email)
	if err := Validate(in); err != nil {
		return err
	}
	user, err := s.users.FindByEmail(ctx, in.Email)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	otp, err := GenerateOTP()
	if err != nil {
		return err
	}
	expiry := s.now().UTC().Add(OTPTTL)
	if err := s.users.SetResetOTP(ctx, user.ID.Hex(), HashOTP(otp), expiry); err != nil {
		return err
	}
	if s.mailer == nil {
		return ErrMailDelivery
	}
	if err := s.mailer.SendPasswordResetOTP(ctx, user.Email, otp); err != nil {
		logger.Error("auth: OTP delivery failed", "user", user.ID.Hex(), "error", err)
		return fmt.Errorf("%w: %v", ErrMailDelivery, err)
	}
	return nil
}

// VerifyOTP consumes a matching, unexpired code. A code works once, and a
// reset request is void after MaxOTPAttempts guesses.
func (s *AuthService) VerifyOTP(ctx context.Context, in VerifyOTPInput) error {
	in.Email = utils.NormalizeEmail(in.Email)
	in.OTP = strings.TrimSpace(in.OTP)
	if err := Validate(in); err != nil {
		return err
	}
	reserved, err := s.users.ReserveOTPAttempt(ctx, in.Email, MaxOTPAttempts)
	if err != nil {
		return err
	}
	if !reserved {
		return ErrInvalidOTP
	}
	ok, err := s.users.ConsumeResetOTP(ctx, in.Email, HashOTP(in.OTP), s.now().UTC())
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidOTP
	}
	return nil
}

// ResetPassword requires a verified OTP inside its validity window.
func (s *AuthService) ResetPassword(ctx context.Context, in ResetPasswordInput) error {
	in.Email = utils.NormalizeEmail(in.Email)
	if err := Validate(in); err != nil {
		return err
	}
	hash, err := utils.HashPassword(in.NewPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	ok, err := s.users.ResetPassword(ctx, in.Email, hash, s.now().UTC())
	if err != nil {
		return err
	}
	if !ok {
		return ErrOTPNotVerified
	}
	return nil
}

func (s *AuthService) ChangePassword(ctx context.Context, sess *Session, in ChangePasswordInput) error {
	if err := Validate(in); err != nil {
		return err
	}
	user, err := s.users.FindByID(ctx, sess.UserID)
	if errors.Is(err, repositories.ErrNotFound) || errors.Is(err, repositories.ErrInvalidID) {
		return ErrUserNotFound
	}
	if err != nil {
		return err
	}
	if !user.HasPassword() {
		return ErrNoPasswordSet
	}
	ok, err := utils.VerifyPassword(in.CurrentPassword, user.Password)
	if err != nil || !ok {
		return ErrInvalidCredentials
	}
	hash, err := utils.HashPassword(in.NewPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	return s.users.UpdatePassword(ctx, user.ID.Hex(), hash)
}

// GoogleProfile is the subset of Google's userinfo response we rely on.
type GoogleProfile struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	Name          string `json:"name"`
}

// LoginWithGoogle signs in by Google ID, links an existing account with the
// same verified email, or creates a password-less account.
func (s *AuthService) LoginWithGoogle(ctx context.Context, profile *GoogleProfile) (*AuthResult, error) {
	if profile == nil || profile.ID == "" || profile.Email == "" || !profile.VerifiedEmail {
		return nil, ErrOAuthFailed
	}
	user, err := s.users.FindByGoogleID(ctx, profile.ID)
	if err == nil {
		return s.issue(user)
	}
	if !errors.Is(err, repositories.ErrNotFound) {
		return nil, err
	}

	email := utils.NormalizeEmail(profile.Email)
	user, err = s.users.FindByEmail(ctx, email)
	switch {
	case err == nil:
		if err := s.users.LinkGoogleID(ctx, user.ID.Hex(), profile.ID); err != nil {
			return nil, err
		}
		user.GoogleID = profile.ID
		logger.Info("auth: linked google account", "user", user.ID.Hex())
		return s.issue(user)
	case !errors.Is(err, repositories.ErrNotFound):
		return nil, err
	}

	now := s.now().UTC()
	user = &models.User{
		CreatedAt: now,
		UpdatedAt: now,
		Email:     email,
		GoogleID:  profile.ID,
		FullName:  strings.TrimSpace(profile.Name),
		Role:      models.RoleUser,
		IsActive:  true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, duplicateToService(err)
	}
	logger.Info("auth: user registered via google", "user", user.ID.Hex())
	return s.issue(user)
}
