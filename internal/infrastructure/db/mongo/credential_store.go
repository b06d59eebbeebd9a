package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/scoutnetworking/scout-auth/internal/core/domain"
)

const collectionUsers = "users"

// CredentialStore implements ports.CredentialStore on a MongoDB collection.
// Conditional updates are single-document UpdateOne calls whose filter
// carries the expected state.
type CredentialStore struct {
	col *mongo.Collection
}

func NewCredentialStore(db *mongo.Database) *CredentialStore {
	return &CredentialStore{col: db.Collection(collectionUsers)}
}

// mongoUser is the stored document. login_keys holds the normalized username
// and email under one unique index, so a username never equals another user's email.
type mongoUser struct {
	ID              primitive.ObjectID `bson:"_id,omitempty"`
	Username        string             `bson:"username"`
	Email           string             `bson:"email,omitempty"`
	LoginKeys       []string           `bson:"login_keys"`
	PasswordHash    string             `bson:"password_hash"`
	Role            string             `bson:"role"`
	LoginAttempts   int                `bson:"login_attempts"`
	LockoutUntil    *time.Time         `bson:"lockout_until"`
	LastLogin       *time.Time         `bson:"last_login,omitempty"`
	LastFailedLogin *time.Time         `bson:"last_failed_login,omitempty"`
	RefreshTokens   []string           `bson:"refresh_tokens"`
	CreatedAt       time.Time          `bson:"created_at"`
	UpdatedAt       time.Time          `bson:"updated_at"`
}

func (m *mongoUser) toDomain() *domain.User {
	return &domain.User{
		ID:              m.ID.Hex(),
		Username:        m.Username,
		Email:           m.Email,
		PasswordHash:    m.PasswordHash,
		Role:            m.Role,
		LoginAttempts:   m.LoginAttempts,
		LockoutUntil:    utc(m.LockoutUntil),
		LastLogin:       utc(m.LastLogin),
		LastFailedLogin: utc(m.LastFailedLogin),
		RefreshTokens:   m.RefreshTokens,
		CreatedAt:       m.CreatedAt.UTC(),
		UpdatedAt:       m.UpdatedAt.UTC(),
	}
}

func (s *CredentialStore) FindByUsernameOrEmail(ctx context.Context, key string) (*domain.User, error) {
	key = domain.NormalizeLoginKey(key)
	if key == "" {
		return nil, domain.ErrUserNotFound
	}
	return s.findOne(ctx, bson.M{"login_keys": key})
}

func (s *CredentialStore) FindByID(ctx context.Context, id string) (*domain.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, domain.ErrUserNotFound
	}
	return s.findOne(ctx, bson.M{"_id": oid})
}

func (s *CredentialStore) findOne(ctx context.Context, filter bson.M) (*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var doc mongoUser
	if err := s.col.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return doc.toDomain(), nil
}

func (s *CredentialStore) Create(ctx context.Context, user *domain.User) (*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	now := time.Now().UTC()
	doc := mongoUser{
		ID:            primitive.NewObjectID(),
		Username:      user.Username,
		Email:         user.Email,
		LoginKeys:     user.LoginKeys(),
		PasswordHash:  user.PasswordHash,
		Role:          user.Role,
		RefreshTokens: []string{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if _, err := s.col.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, domain.ErrUserExists
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return doc.toDomain(), nil
}

func (s *CredentialStore) ApplyLoginResult(ctx context.Context, id string, expected domain.LoginState, result domain.LoginResult) (bool, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return false, domain.ErrUserNotFound
	}
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	filter := bson.M{
		"_id":            oid,
		"login_attempts": expected.Attempts,
		"lockout_until":  expected.LockoutUntil,
	}
	set := bson.M{
		"login_attempts": result.Attempts,
		"lockout_until":  result.LockoutUntil,
		"updated_at":     time.Now().UTC(),
	}
	if result.LastLogin != nil {
		set["last_login"] = *result.LastLogin
	}
	if result.LastFailedLogin != nil {
		set["last_failed_login"] = *result.LastFailedLogin
	}

	res, err := s.col.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return false, fmt.Errorf("apply login result: %w", err)
	}
	if res.MatchedCount == 1 {
		return true, nil
	}
	return false, s.ensureExists(ctx, oid)
}

func (s *CredentialStore) AddRefreshToken(ctx context.Context, id, token string, keep int) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return domain.ErrUserNotFound
	}
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	push := bson.M{"$each": bson.A{token}}
	if keep > 0 {
		push["$slice"] = -keep
	}
	res, err := s.col.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{
		"$push": bson.M{"refresh_tokens": push},
		"$set":  bson.M{"updated_at": time.Now().UTC()},
	})
	if err != nil {
		return fmt.Errorf("add refresh token: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (s *CredentialStore) RotateRefreshToken(ctx context.Context, id, oldToken, newToken string) (bool, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return false, domain.ErrUserNotFound
	}
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	// Pipeline update: drop oldToken and append newToken in one write,
	// guarded by oldToken still being in the set.
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "refresh_tokens", Value: bson.D{{Key: "$concatArrays", Value: bson.A{
				bson.D{{Key: "$filter", Value: bson.D{
					{Key: "input", Value: "$refresh_tokens"},
					{Key: "cond", Value: bson.D{{Key: "$ne", Value: bson.A{"$$this", oldToken}}}},
				}}},
				bson.A{newToken},
			}}}},
			{Key: "updated_at", Value: "$$NOW"},
		}}},
	}

	res, err := s.col.UpdateOne(ctx, bson.M{"_id": oid, "refresh_tokens": oldToken}, update)
	if err != nil {
		return false, fmt.Errorf("rotate refresh token: %w", err)
	}
	if res.MatchedCount == 1 {
		return true, nil
	}
	return false, s.ensureExists(ctx, oid)
}

func (s *CredentialStore) RemoveRefreshToken(ctx context.Context, id, token string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if _, err := s.col.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{
		"$pull": bson.M{"refresh_tokens": token},
	}); err != nil {
		return fmt.Errorf("remove refresh token: %w", err)
	}
	return nil
}

func (s *CredentialStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	return s.col.Database().Client().Ping(ctx, nil)
}

// EnsureIndexes creates the unique login-key index on the users collection.
// It is multikey: uniqueness holds across documents for every array element.
func (s *CredentialStore) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "login_keys", Value: 1}},
			Options: options.Index().SetName("login_keys_unique").SetUnique(true),
		},
	}
	if _, err := s.col.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("ensure user indexes: %w", err)
	}
	return nil
}

// ensureExists tells a failed guard apart from a missing user.
func (s *CredentialStore) ensureExists(ctx context.Context, oid primitive.ObjectID) error {
	n, err := s.col.CountDocuments(ctx, bson.M{"_id": oid}, options.Count().SetLimit(1))
	if err != nil {
		return fmt.Errorf("count user: %w", err)
	}
	if n == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
