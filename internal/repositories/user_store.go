package repositories

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/babynest/backend/internal/models"
)

// ProfileUpdate carries optional profile fields; nil means unchanged.
type ProfileUpdate struct {
	FullName      *string
	Username      *string
	PhoneNumber   *string
	WeeksPregnant *int
}

// OnboardingUpdate merges onboarding answers. Symptoms are merged per key.
type OnboardingUpdate struct {
	FullName            *string
	WeeksPregnant       *int
	Symptoms            map[string]int
	OnboardingCompleted *bool
}

type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByGoogleID(ctx context.Context, googleID string) (*models.User, error)
	LinkGoogleID(ctx context.Context, id, googleID string) error

	// SetResetOTP stores a fresh OTP hash and clears any earlier verification.
	SetResetOTP(ctx context.Context, id, otpHash string, expiry time.Time) error
	// ReserveOTPAttempt counts one guess against the pending code. Once
	// maxAttempts guesses are used it reports false and clears the code.
	ReserveOTPAttempt(ctx context.Context, email string, maxAttempts int) (bool, error)
	// ConsumeResetOTP matches email, hash and expiry >= now in a single
	// update; on a match the hash is removed and the account marked verified.
	ConsumeResetOTP(ctx context.Context, email, otpHash string, now time.Time) (bool, error)
	// ResetPassword sets passwordHash only for a verified account whose reset
	// window has not expired, then clears all reset state.
	ResetPassword(ctx context.Context, email, passwordHash string, now time.Time) (bool, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error

	UpdateProfile(ctx context.Context, id string, update ProfileUpdate) (*models.User, error)
	UpdateOnboarding(ctx context.Context, id string, update OnboardingUpdate) (*models.User, error)
}

type MongoUserStore struct {
	col *mongo.Collection
}

func NewMongoUserStore(db *mongo.Database) *MongoUserStore {
	return &MongoUserStore{col: db.Collection(usersCollection)}
}

func (s *MongoUserStore) Create(ctx context.Context, user *models.User) error {
	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	_, err := s.col.InsertOne(ctx, user)
	return translateWriteError(err)
}

func (s *MongoUserStore) findOne(ctx context.Context, filter bson.M) (*models.User, error) {
	var user models.User
	if err := s.col.FindOne(ctx, filter).Decode(&user); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *MongoUserStore) FindByID(ctx context.Context, id string) (*models.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrInvalidID
	}
	return s.findOne(ctx, bson.M{"_id": oid})
}

func (s *MongoUserStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.findOne(ctx, bson.M{"email": email})
}

func (s *MongoUserStore) FindByGoogleID(ctx context.Context, googleID string) (*models.User, error) {
	return s.findOne(ctx, bson.M{"google_id": googleID})
}

func (s *MongoUserStore) updateByID(ctx context.Context, id string, update bson.M) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrInvalidID
	}
	res, err := s.col.UpdateOne(ctx, bson.M{"_id": oid}, update)
	if err != nil {
		return translateWriteError(err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoUserStore) LinkGoogleID(ctx context.Context, id, googleID string) error {
	return s.updateByID(ctx, id, bson.M{"$set": bson.M{"google_id": googleID, "updated_at": time.Now().UTC()}})
}

func (s *MongoUserStore) SetResetOTP(ctx context.Context, id, otpHash string, expiry time.Time) error {
	return s.updateByID(ctx, id, bson.M{"$set": bson.M{
		"reset_otp_hash":   otpHash,
		"reset_otp_expiry": expiry.UTC(),
		"otp_verified":     false,
		"otp_attempts":     0,
		"updated_at":       time.Now().UTC(),
	}})
}

func (s *MongoUserStore) ReserveOTPAttempt(ctx context.Context, email string, maxAttempts int) (bool, error) {
	res, err := s.col.UpdateOne(ctx,
		bson.M{
			"email":          email,
			"reset_otp_hash": bson.M{"$exists": true},
			"otp_attempts":   bson.M{"$not": bson.M{"$gte": maxAttempts}},
		},
		bson.M{"$inc": bson.M{"otp_attempts": 1}},
	)
	if err != nil {
		return false, err
	}
	if res.MatchedCount == 1 {
		return true, nil
	}
	_, err = s.col.UpdateOne(ctx,
		bson.M{"email": email, "reset_otp_hash": bson.M{"$exists": true}, "otp_attempts": bson.M{"$gte": maxAttempts}},
		bson.M{"$unset": bson.M{"reset_otp_hash": "", "reset_otp_expiry": ""}},
	)
	return false, err
}

func (s *MongoUserStore) ConsumeResetOTP(ctx context.Context, email, otpHash string, now time.Time) (bool, error) {
	res, err := s.col.UpdateOne(ctx,
		bson.M{
			"email":            email,
			"reset_otp_hash":   otpHash,
			"reset_otp_expiry": bson.M{"$gte": now.UTC()},
		},
		bson.M{
			"$set":   bson.M{"otp_verified": true, "otp_attempts": 0, "updated_at": now.UTC()},
			"$unset": bson.M{"reset_otp_hash": ""},
		},
	)
	if err != nil {
		return false, err
	}
	return res.MatchedCount == 1, nil
}

func (s *MongoUserStore) ResetPassword(ctx context.Context, email, passwordHash string, now time.Time) (bool, error) {
	res, err := s.col.UpdateOne(ctx,
		bson.M{
			"email":            email,
			"otp_verified":     true,
			"reset_otp_expiry": bson.M{"$gte": now.UTC()},
		},
		bson.M{
			"$set":   bson.M{"password": passwordHash, "otp_verified": false, "updated_at": now.UTC()},
			"$unset": bson.M{"reset_otp_hash": "", "reset_otp_expiry": ""},
		},
	)
	if err != nil {
		return false, err
	}
	return res.MatchedCount == 1, nil
}

func (s *MongoUserStore) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	return s.updateByID(ctx, id, bson.M{"$set": bson.M{"password": passwordHash, "updated_at": time.Now().UTC()}})
}

func (s *MongoUserStore) findOneAndSet(ctx context.Context, id string, set, unset bson.M) (*models.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrInvalidID
	}
	set["updated_at"] = time.Now().UTC()
	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var user models.User
	err = s.col.FindOneAndUpdate(ctx, bson.M{"_id": oid}, update, opts).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, translateWriteError(err)
	}
	return &user, nil
}

// profileUpdateDoc splits a profile update into $set and $unset fields.
// Cleared unique fields are removed, never stored as "": the sparse unique
// indexes would otherwise let only one user hold the empty value.
func profileUpdateDoc(update ProfileUpdate) (set, unset bson.M) {
	set, unset = bson.M{}, bson.M{}
	if update.FullName != nil {
		set["full_name"] = *update.FullName
	}
	for field, value := range map[string]*string{"username": update.Username, "phone_number": update.PhoneNumber} {
		switch {
		case value == nil:
		case *value == "":
			unset[field] = ""
		default:
			set[field] = *value
		}
	}
	if update.WeeksPregnant != nil {
		set["weeks_pregnant"] = *update.WeeksPregnant
	}
	return set, unset
}

func (s *MongoUserStore) UpdateProfile(ctx context.Context, id string, update ProfileUpdate) (*models.User, error) {
	set, unset := profileUpdateDoc(update)
	return s.findOneAndSet(ctx, id, set, unset)
}

func (s *MongoUserStore) UpdateOnboarding(ctx context.Context, id string, update OnboardingUpdate) (*models.User, error) {
	set := bson.M{}
	if update.FullName != nil {
		set["full_name"] = *update.FullName
	}
	if update.WeeksPregnant != nil {
		set["weeks_pregnant"] = *update.WeeksPregnant
	}
	if update.OnboardingCompleted != nil {
		set["onboarding_completed"] = *update.OnboardingCompleted
	}
	// Dotted paths merge keys into the existing map instead of replacing it.
	for key, severity := range update.Symptoms {
		set["symptoms."+key] = severity
	}
	return s.findOneAndSet(ctx, id, set, nil)
}
