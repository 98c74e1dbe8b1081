package repositories

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/babynest/backend/internal/models"
)

// In-memory stores back local development (MONGODB_URI=memory) and tests.
// They honour the same filters and uniqueness rules as the Mongo stores. An
// empty optional unique field stands for an absent one, which the sparse
// indexes ignore.

type InMemoryUserStore struct {
	mu    sync.RWMutex
	users map[primitive.ObjectID]*models.User
}

func NewInMemoryUserStore() *InMemoryUserStore {
	return &InMemoryUserStore{users: make(map[primitive.ObjectID]*models.User)}
}

func cloneUser(u *models.User) *models.User {
	c := *u
	if u.Symptoms != nil {
		c.Symptoms = make(map[string]int, len(u.Symptoms))
		for k, v := range u.Symptoms {
			c.Symptoms[k] = v
		}
	}
	if u.WeeksPregnant != nil {
		w := *u.WeeksPregnant
		c.WeeksPregnant = &w
	}
	if u.ResetOTPExpiry != nil {
		e := *u.ResetOTPExpiry
		c.ResetOTPExpiry = &e
	}
	return &c
}

// conflict reports the first unique field of u already held by another user.
func (s *InMemoryUserStore) conflict(u *models.User) string {
	for id, other := range s.users {
		if id == u.ID {
			continue
		}
		switch {
		case other.Email == u.Email:
			return "email"
		case u.Username != "" && other.Username == u.Username:
			return "username"
		case u.PhoneNumber != "" && other.PhoneNumber == u.PhoneNumber:
			return "phone_number"
		case u.GoogleID != "" && other.GoogleID == u.GoogleID:
			return "google_id"
		}
	}
	return ""
}

func (s *InMemoryUserStore) Create(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	if field := s.conflict(user); field != "" {
		return &DuplicateError{Field: field}
	}
	s.users[user.ID] = cloneUser(user)
	return nil
}

func (s *InMemoryUserStore) find(match func(*models.User) bool) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if match(u) {
			return cloneUser(u), nil
		}
	}
	return nil, ErrNotFound
}

func (s *InMemoryUserStore) FindByID(_ context.Context, id string) (*models.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrInvalidID
	}
	return s.find(func(u *models.User) bool { return u.ID == oid })
}

func (s *InMemoryUserStore) FindByEmail(_ context.Context, email string) (*models.User, error) {
	return s.find(func(u *models.User) bool { return u.Email == email })
}

func (s *InMemoryUserStore) FindByGoogleID(_ context.Context, googleID string) (*models.User, error) {
	return s.find(func(u *models.User) bool { return u.GoogleID != "" && u.GoogleID == googleID })
}

// mutate applies fn to the stored user with the given id under the write lock.
func (s *InMemoryUserStore) mutate(id string, fn func(*models.User)) (*models.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[oid]
	if !ok {
		return nil, ErrNotFound
	}
	next := cloneUser(u)
	fn(next)
	next.UpdatedAt = time.Now().UTC()
	if field := s.conflict(next); field != "" {
		return nil, &DuplicateError{Field: field}
	}
	s.users[oid] = next
	return cloneUser(next), nil
}

func (s *InMemoryUserStore) mutateWhere(match func(*models.User) bool, fn func(*models.User)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if match(u) {
			fn(u)
			return true
		}
	}
	return false
}

func (s *InMemoryUserStore) LinkGoogleID(_ context.Context, id, googleID string) error {
	_, err := s.mutate(id, func(u *models.User) { u.GoogleID = googleID })
	return err
}

func (s *InMemoryUserStore) SetResetOTP(_ context.Context, id, otpHash string, expiry time.Time) error {
	_, err := s.mutate(id, func(u *models.User) {
		e := expiry.UTC()
		u.ResetOTPHash = otpHash
		u.ResetOTPExpiry = &e
		u.OTPVerified = false
		u.OTPAttempts = 0
	})
	return err
}

func (s *InMemoryUserStore) ReserveOTPAttempt(_ context.Context, email string, maxAttempts int) (bool, error) {
	reserved := false
	s.mutateWhere(
		func(u *models.User) bool { return u.Email == email && u.ResetOTPHash != "" },
		func(u *models.User) {
			if u.OTPAttempts >= maxAttempts {
				u.ResetOTPHash = ""
				u.ResetOTPExpiry = nil
				return
			}
			u.OTPAttempts++
			reserved = true
		},
	)
	return reserved, nil
}

func (s *InMemoryUserStore) ConsumeResetOTP(_ context.Context, email, otpHash string, now time.Time) (bool, error) {
	ok := s.mutateWhere(
		func(u *models.User) bool {
			return u.Email == email && u.ResetOTPHash != "" && u.ResetOTPHash == otpHash &&
				u.ResetOTPExpiry != nil && !u.ResetOTPExpiry.Before(now)
		},
		func(u *models.User) {
			u.ResetOTPHash = ""
			u.OTPVerified = true
			u.OTPAttempts = 0
			u.UpdatedAt = now.UTC()
		},
	)
	return ok, nil
}

func (s *InMemoryUserStore) ResetPassword(_ context.Context, email, passwordHash string, now time.Time) (bool, error) {
	ok := s.mutateWhere(
		func(u *models.User) bool {
			return u.Email == email && u.OTPVerified && u.ResetOTPExpiry != nil && !u.ResetOTPExpiry.Before(now)
		},
		func(u *models.User) {
			u.Password = passwordHash
			u.OTPVerified = false
			u.ResetOTPHash = ""
			u.ResetOTPExpiry = nil
			u.UpdatedAt = now.UTC()
		},
	)
	return ok, nil
}

func (s *InMemoryUserStore) UpdatePassword(_ context.Context, id, passwordHash string) error {
	_, err := s.mutate(id, func(u *models.User) { u.Password = passwordHash })
	return err
}

func (s *InMemoryUserStore) UpdateProfile(_ context.Context, id string, update ProfileUpdate) (*models.User, error) {
	return s.mutate(id, func(u *models.User) {
		if update.FullName != nil {
			u.FullName = *update.FullName
		}
		if update.Username != nil {
			u.Username = *update.Username
		}
		if update.PhoneNumber != nil {
			u.PhoneNumber = *update.PhoneNumber
		}
		if update.WeeksPregnant != nil {
			w := *update.WeeksPregnant
			u.WeeksPregnant = &w
		}
	})
}

func (s *InMemoryUserStore) UpdateOnboarding(_ context.Context, id string, update OnboardingUpdate) (*models.User, error) {
	return s.mutate(id, func(u *models.User) {
		if update.FullName != nil {
			u.FullName = *update.FullName
		}
		if update.WeeksPregnant != nil {
			w := *update.WeeksPregnant
			u.WeeksPregnant = &w
		}
		if update.OnboardingCompleted != nil {
			u.OnboardingCompleted = *update.OnboardingCompleted
		}
		if len(update.Symptoms) > 0 && u.Symptoms == nil {
			u.Symptoms = make(map[string]int, len(update.Symptoms))
		}
		for k, v := range update.Symptoms {
			u.Symptoms[k] = v
		}
	})
}

type InMemoryJournalStore struct {
	mu      sync.RWMutex
	entries map[primitive.ObjectID]models.JournalEntry
}

func NewInMemoryJournalStore() *InMemoryJournalStore {
	return &InMemoryJournalStore{entries: make(map[primitive.ObjectID]models.JournalEntry)}
}

func cloneEntry(e models.JournalEntry) models.JournalEntry {
	e.Todos = append([]models.Todo(nil), e.Todos...)
	e.ImageURLs = append([]string(nil), e.ImageURLs...)
	return e
}

func (s *InMemoryJournalStore) Create(_ context.Context, entry *models.JournalEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.ID.IsZero() {
		entry.ID = primitive.NewObjectID()
	}
	s.entries[entry.ID] = cloneEntry(*entry)
	return nil
}

func (s *InMemoryJournalStore) ListByUser(_ context.Context, userID string, limit, skip int64) ([]models.JournalEntry, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	owned := []models.JournalEntry{}
	for _, e := range s.entries {
		if e.UserID == userID {
			owned = append(owned, cloneEntry(e))
		}
	}
	sort.Slice(owned, func(i, j int) bool {
		if !owned[i].CreatedAt.Equal(owned[j].CreatedAt) {
			return owned[i].CreatedAt.After(owned[j].CreatedAt)
		}
		return owned[i].ID.Hex() > owned[j].ID.Hex()
	})

	total := int64(len(owned))
	if skip >= total {
		return []models.JournalEntry{}, total, nil
	}
	end := total
	if limit > 0 && skip+limit < total {
		end = skip + limit
	}
	return owned[skip:end], total, nil
}

func (s *InMemoryJournalStore) owned(id, userID string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return oid, ErrInvalidID
	}
	e, ok := s.entries[oid]
	if !ok || e.UserID != userID {
		return oid, ErrNotFound
	}
	return oid, nil
}

func (s *InMemoryJournalStore) FindOwned(_ context.Context, id, userID string) (*models.JournalEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	oid, err := s.owned(id, userID)
	if err != nil {
		return nil, err
	}
	e := cloneEntry(s.entries[oid])
	return &e, nil
}

func (s *InMemoryJournalStore) UpdateOwned(_ context.Context, id, userID string, update JournalUpdate) (*models.JournalEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	oid, err := s.owned(id, userID)
	if err != nil {
		return nil, err
	}
	e := cloneEntry(s.entries[oid])
	e.Date = update.Date
	e.Trimester = update.Trimester
	e.Notes = update.Notes
	e.Todos = append([]models.Todo(nil), update.Todos...)
	e.ImageURLs = append(e.ImageURLs, update.AppendImages...)
	e.UpdatedAt = update.UpdatedAt
	s.entries[oid] = e

	out := cloneEntry(e)
	return &out, nil
}

func (s *InMemoryJournalStore) DeleteOwned(_ context.Context, id, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	oid, err := s.owned(id, userID)
	if err != nil {
		return err
	}
	delete(s.entries, oid)
	return nil
}

type InMemoryMessageStore struct {
	mu   sync.RWMutex
	msgs []models.Message
}

func NewInMemoryMessageStore() *InMemoryMessageStore {
	return &InMemoryMessageStore{}
}

func (s *InMemoryMessageStore) Insert(_ context.Context, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.ID.IsZero() {
		msg.ID = primitive.NewObjectID()
	}
	s.msgs = append(s.msgs, *msg)
	return nil
}

func (s *InMemoryMessageStore) History(_ context.Context, room string) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []models.Message{}
	for _, m := range s.msgs {
		if m.Room == room {
			out = append(out, m)
		}
	}
	// Stable sort keeps insertion order for equal timestamps, matching the
	// (timestamp, _id) ordering of the Mongo store.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

func (s *InMemoryMessageStore) RoomsBySender(_ context.Context, sender string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := map[string]struct{}{}
	rooms := []string{}
	for _, m := range s.msgs {
		if m.Sender != sender {
			continue
		}
		if _, ok := seen[m.Room]; ok {
			continue
		}
		seen[m.Room] = struct{}{}
		rooms = append(rooms, m.Room)
	}
	return rooms, nil
}
