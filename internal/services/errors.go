package services

import "errors"

var (
	ErrEmailTaken         = errors.New("user already exists")
	ErrUsernameTaken      = errors.New("username is already taken")
	ErrPhoneTaken         = errors.New("phone number is already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrNoPasswordSet      = errors.New("this account signs in with Google and has no password to change")
	ErrInvalidOTP         = errors.New("invalid or expired OTP")
	ErrOTPNotVerified     = errors.New("OTP verification required")
	ErrMailDelivery       = errors.New("failed to send OTP email")
	ErrUserNotFound       = errors.New("user not found")
	ErrUnauthorized       = errors.New("authentication required")
	ErrTokenExpired       = errors.New("token has expired")
	ErrTokenRevoked       = errors.New("token has been revoked")
	ErrOAuthFailed        = errors.New("google sign-in failed")
	ErrOAuthDisabled      = errors.New("google sign-in is not configured")

	ErrJournalNotFound  = errors.New("journal entry not found")
	ErrInvalidJournalID = errors.New("invalid journal entry ID")

	ErrInvalidRoom        = errors.New("invalid room")
	ErrInvalidParticipant = errors.New("invalid participant id")
)
