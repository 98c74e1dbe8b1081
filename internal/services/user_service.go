package services

import (
	"context"
	"errors"
	"strings"

	"github.com/babynest/backend/internal/models"
	"github.com/babynest/backend/internal/repositories"
	"github.com/babynest/backend/pkg/utils"
)

const (
	maxSymptomKeyLen = 64
	maxSymptoms      = 50
)

type UpdateProfileInput struct {
	FullName      *string `json:"full_name" validate:"omitempty,max=100"`
	Username      *string `json:"username"`
	PhoneNumber   *string `json:"phone_number" validate:"omitempty,e164"`
	WeeksPregnant *int    `json:"weeks_pregnant" validate:"omitempty,min=0,max=42"`
}

// OnboardingInput is the onboarding wizard submission. Symptoms are merged
// into what is already stored; keys not sent are left alone.
type OnboardingInput struct {
	FullName            string         `json:"full_name" validate:"required,max=100"`
	WeeksPregnant       *int           `json:"weeks_pregnant" validate:"required,min=0,max=42"`
	Symptoms            map[string]int `json:"symptoms"`
	OnboardingCompleted bool           `json:"onboarding_completed"`
}

type UserService struct {
	users repositories.UserStore
}

func NewUserService(users repositories.UserStore) *UserService {
	return &UserService{users: users}
}

func userLookupError(err error) error {
	if errors.Is(err, repositories.ErrNotFound) || errors.Is(err, repositories.ErrInvalidID) {
		return ErrUserNotFound
	}
	return err
}

func (s *UserService) Profile(ctx context.Context, sess *Session) (*models.User, error) {
	user, err := s.users.FindByID(ctx, sess.UserID)
	if err != nil {
		return nil, userLookupError(err)
	}
	return user, nil
}

func (s *UserService) UpdateProfile(ctx context.Context, sess *Session, in UpdateProfileInput) (*models.User, error) {
	if err := Validate(in); err != nil {
		return nil, err
	}
	update := repositories.ProfileUpdate{WeeksPregnant: in.WeeksPregnant, PhoneNumber: in.PhoneNumber}
	if in.FullName != nil {
		name := strings.TrimSpace(*in.FullName)
		update.FullName = &name
	}
	if in.Username != nil {
		if err := utils.ValidateUsername(*in.Username); err != nil {
			return nil, err
		}
		name := utils.NormalizeUsername(*in.Username)
		update.Username = &name
	}
	user, err := s.users.UpdateProfile(ctx, sess.UserID, update)
	if err != nil {
		return nil, userLookupError(duplicateToService(err))
	}
	return user, nil
}

func (s *UserService) Onboarding(ctx context.Context, sess *Session) (models.Onboarding, error) {
	user, err := s.Profile(ctx, sess)
	if err != nil {
		return models.Onboarding{}, err
	}
	return user.Onboarding(), nil
}

func (s *UserService) UpdateOnboarding(ctx context.Context, sess *Session, in OnboardingInput) (models.Onboarding, error) {
	in.FullName = strings.TrimSpace(in.FullName)
	if err := Validate(in); err != nil {
		return models.Onboarding{}, err
	}
	if err := validateSymptoms(in.Symptoms); err != nil {
		return models.Onboarding{}, err
	}
	completed := in.OnboardingCompleted
	user, err := s.users.UpdateOnboarding(ctx, sess.UserID, repositories.OnboardingUpdate{
		FullName:            &in.FullName,
		WeeksPregnant:       in.WeeksPregnant,
		Symptoms:            in.Symptoms,
		OnboardingCompleted: &completed,
	})
	if err != nil {
		return models.Onboarding{}, userLookupError(err)
	}
	return user.Onboarding(), nil
}

// Symptom keys become document field paths, so dots and a leading $ are refused.
func validateSymptoms(symptoms map[string]int) error {
	if len(symptoms) > maxSymptoms {
		return &utils.ValidationError{Field: "symptoms", Message: "too many symptoms"}
	}
	for key, value := range symptoms {
		if key == "" || len(key) > maxSymptomKeyLen || strings.Contains(key, ".") || strings.HasPrefix(key, "$") {
			return &utils.ValidationError{Field: "symptoms", Message: "invalid symptom name: " + key}
		}
		if value < 0 {
			return &utils.ValidationError{Field: "symptoms", Message: "symptom values must not be negative"}
		}
	}
	return nil
}
