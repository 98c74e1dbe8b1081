package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const RoleUser = "user"

type User struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time          `bson:"updated_at" json:"updated_at"`

	Email       string `bson:"email" json:"email"`
	Password    string `bson:"password,omitempty" json:"-"` // empty for OAuth-only accounts
	Username    string `bson:"username,omitempty" json:"username,omitempty"`
	PhoneNumber string `bson:"phone_number,omitempty" json:"phone_number,omitempty"`
	GoogleID    string `bson:"google_id,omitempty" json:"-"`
	Role        string `bson:"role" json:"role"`
	IsActive    bool   `bson:"is_active" json:"is_active"`

	// Profile and onboarding
	FullName            string         `bson:"full_name,omitempty" json:"full_name,omitempty"`
	WeeksPregnant       *int           `bson:"weeks_pregnant,omitempty" json:"weeks_pregnant,omitempty"`
	Symptoms            map[string]int `bson:"symptoms,omitempty" json:"symptoms"`
	OnboardingCompleted bool           `bson:"onboarding_completed" json:"onboarding_completed"`

	// Password reset. The OTP itself is never stored, only its hash.
	ResetOTPHash   string     `bson:"reset_otp_hash,omitempty" json:"-"`
	ResetOTPExpiry *time.Time `bson:"reset_otp_expiry,omitempty" json:"-"`
	OTPVerified    bool       `bson:"otp_verified" json:"-"`
	OTPAttempts    int        `bson:"otp_attempts" json:"-"`
}

// HasPassword reports whether the account can sign in with a password.
func (u *User) HasPassword() bool {
	return u.Password != ""
}

// PublicUser is the subset of a user returned alongside tokens.
type PublicUser struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	Username    string `json:"username,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
	Role        string `json:"role"`
}

func (u *User) Public() PublicUser {
	return PublicUser{
		ID:          u.ID.Hex(),
		Email:       u.Email,
		Username:    u.Username,
		PhoneNumber: u.PhoneNumber,
		Role:        u.Role,
	}
}

// Onboarding is the wizard state kept on the user document.
type Onboarding struct {
	FullName            string         `json:"full_name"`
	WeeksPregnant       *int           `json:"weeks_pregnant"`
	Symptoms            map[string]int `json:"symptoms"`
	OnboardingCompleted bool           `json:"onboarding_completed"`
}

func (u *User) Onboarding() Onboarding {
	symptoms := u.Symptoms
	if symptoms == nil {
		symptoms = map[string]int{}
	}
	return Onboarding{
		FullName:            u.FullName,
		WeeksPregnant:       u.WeeksPregnant,
		Symptoms:            symptoms,
		OnboardingCompleted: u.OnboardingCompleted,
	}
}
