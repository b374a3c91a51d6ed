package repositories

import (
	"context"
	"strings"
	"time"

	"finsite/auth"
	"finsite/database"
	"finsite/models"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// UserRepository handles account records, including the records created
// and refreshed on sign-in.
type UserRepository struct {
	db   *database.DB
	gate *auth.Gate
	now  func() time.Time

	// signInRole is given to users created by StoreUser and to profiles
	// backfilled by EnsureProfile.
	signInRole string
}

func NewUserRepository(db *database.DB, signInRole string) *UserRepository {
	r := &UserRepository{db: db, now: time.Now, signInRole: signInRole}
	r.gate = auth.NewGate(r)
	return r
}

// Gate returns the role gate backed by this repository.
func (r *UserRepository) Gate() *auth.Gate {
	return r.gate
}

type CreateUserInput struct {
	Email  string `json:"email" binding:"required,email"`
	Name   string `json:"name"`
	Role   string `json:"role"`
	Avatar string `json:"avatar"`
	Bio    string `json:"bio"`
}

type UserPatch struct {
	Name   *string `json:"name"`
	Role   *string `json:"role"`
	Avatar *string `json:"avatar"`
	Bio    *string `json:"bio"`
}

// UserByEmail implements auth.UserLookup, a missing user is (nil, nil).
func (r *UserRepository) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := r.db.Users.FindOne(ctx, bson.M{"email": auth.NormalizeEmail(email)}).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "find user by email")
	}
	return &user, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	user, err := r.UserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, errors.Wrap(ErrNotFound, "user")
	}
	return user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	var user models.User
	if err := r.db.Users.FindOne(ctx, bson.M{"_id": id}).Decode(&user); err != nil {
		return nil, notFound(err, "user")
	}
	return &user, nil
}

func (r *UserRepository) ListAll(ctx context.Context) ([]models.User, error) {
	cursor, err := r.db.Users.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, errors.Wrap(err, "list users")
	}
	defer cursor.Close(ctx)

	users := []models.User{}
	if err := cursor.All(ctx, &users); err != nil {
		return nil, errors.Wrap(err, "decode users")
	}
	return users, nil
}

// Create adds an account. Only admins may create accounts directly.
func (r *UserRepository) Create(ctx context.Context, in CreateUserInput) (*models.User, error) {
	if _, err := r.gate.Admin(ctx); err != nil {
		return nil, err
	}

	email := auth.NormalizeEmail(in.Email)
	if email == "" {
		return nil, errors.Wrap(ErrInvalid, "email is required")
	}
	role := in.Role
	if role == "" {
		role = models.RoleClient
	}
	if !models.ValidRole(role) {
		return nil, errors.Wrapf(ErrInvalid, "unknown role %q", role)
	}

	existing, err := r.UserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, errors.Wrap(ErrConflict, "user already exists")
	}

	now := r.now().UnixMilli()
	user := models.User{
		ID:        primitive.NewObjectID(),
		Email:     email,
		Name:      in.Name,
		Role:      role,
		Avatar:    in.Avatar,
		Bio:       in.Bio,
		CreatedAt: &now,
	}
	if _, err := r.db.Users.InsertOne(ctx, user); err != nil {
		return nil, conflict(errors.Wrap(err, "insert user"), "user already exists")
	}
	return &user, nil
}

// Update patches a profile. Admins may change anything, users may change
// their own profile except the role.
func (r *UserRepository) Update(ctx context.Context, id primitive.ObjectID, patch UserPatch) (*models.User, error) {
	caller, err := r.gate.Viewer(ctx)
	if err != nil {
		return nil, err
	}
	if caller.Role != models.RoleAdmin {
		if caller.ID != id || patch.Role != nil {
			return nil, errors.Wrap(auth.ErrForbidden, "admin role required")
		}
	}

	set := bson.M{}
	if patch.Name != nil {
		set["name"] = *patch.Name
	}
	if patch.Role != nil {
		if !models.ValidRole(*patch.Role) {
			return nil, errors.Wrapf(ErrInvalid, "unknown role %q", *patch.Role)
		}
		set["role"] = *patch.Role
	}
	if patch.Avatar != nil {
		set["avatar"] = *patch.Avatar
	}
	if patch.Bio != nil {
		set["bio"] = *patch.Bio
	}

	if len(set) == 0 {
		return r.GetByID(ctx, id)
	}

	var user models.User
	err = r.db.Users.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&user)
	if err != nil {
		return nil, notFound(err, "user")
	}
	return &user, nil
}

func (r *UserRepository) UpdateLastLogin(ctx context.Context, id primitive.ObjectID) error {
	res, err := r.db.Users.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"lastLogin": r.now().UnixMilli()}})
	if err != nil {
		return errors.Wrap(err, "update last login")
	}
	if res.MatchedCount == 0 {
		return errors.Wrap(ErrNotFound, "user")
	}
	return nil
}

// Delete removes an account that has not authored any publication.
func (r *UserRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	if _, err := r.gate.Admin(ctx); err != nil {
		return err
	}

	if _, err := r.GetByID(ctx, id); err != nil {
		return err
	}

	n, err := r.db.Publications.CountDocuments(ctx, bson.M{"authorId": id}, options.Count().SetLimit(1))
	if err != nil {
		return errors.Wrap(err, "count authored publications")
	}
	if n > 0 {
		return errors.Wrap(ErrIntegrity, "cannot delete user with existing publications")
	}

	if _, err := r.db.Users.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return errors.Wrap(err, "delete user")
	}
	return nil
}

type SignInProfile struct {
	Email        string
	Name         string
	Avatar       string
	AuthProvider string
	PasswordHash *string
}

// StoreUser upserts the account of someone who just signed in. New accounts
// get the configured sign-in role; existing accounts get lastLogin refreshed
// and a missing name or avatar filled from the provider.
func (r *UserRepository) StoreUser(ctx context.Context, p SignInProfile) (*models.User, bool, error) {
	email := auth.NormalizeEmail(p.Email)
	if email == "" {
		return nil, false, errors.Wrap(ErrInvalid, "email is required")
	}

	existing, err := r.UserByEmail(ctx, email)
	if err != nil {
		return nil, false, err
	}

	now := r.now().UnixMilli()
	if existing == nil {
		user := models.User{
			ID:           primitive.NewObjectID(),
			Email:        email,
			Name:         p.Name,
			Role:         r.signInRole,
			Avatar:       p.Avatar,
			AuthProvider: p.AuthProvider,
			PasswordHash: p.PasswordHash,
			CreatedAt:    &now,
			LastLogin:    &now,
		}
		if _, err := r.db.Users.InsertOne(ctx, user); err != nil {
			return nil, false, conflict(errors.Wrap(err, "insert user"), "user already exists")
		}
		return &user, true, nil
	}

	set := bson.M{"lastLogin": now}
	if existing.Name == "" && p.Name != "" {
		set["name"] = p.Name
	}
	if existing.Avatar == "" && p.Avatar != "" {
		set["avatar"] = p.Avatar
	}
	if existing.AuthProvider == "" && p.AuthProvider != "" {
		set["authProvider"] = p.AuthProvider
	}

	var updated models.User
	err = r.db.Users.FindOneAndUpdate(ctx, bson.M{"_id": existing.ID}, bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&updated)
	if err != nil {
		return nil, false, notFound(err, "user")
	}
	return &updated, false, nil
}

// Current resolves the authenticated identity to its record.
func (r *UserRepository) Current(ctx context.Context) (*models.User, error) {
	email, ok := auth.EmailFromContext(ctx)
	if !ok {
		return nil, auth.ErrUnauthenticated
	}
	return r.GetByEmail(ctx, email)
}

// EnsureProfile backfills createdAt, lastLogin, name and role on the caller's
// record. It reports whether anything was written, so a second call is a
// no-op.
func (r *UserRepository) EnsureProfile(ctx context.Context) (*models.User, bool, error) {
	user, err := r.Current(ctx)
	if err != nil {
		return nil, false, err
	}

	now := r.now().UnixMilli()
	set := bson.M{}
	if user.CreatedAt == nil {
		set["createdAt"] = now
	}
	if user.LastLogin == nil {
		set["lastLogin"] = now
	}
	if user.Name == "" {
		set["name"] = nameFromEmail(user.Email)
	}
	if user.Role == "" {
		set["role"] = r.signInRole
	}

	if len(set) == 0 {
		return user, false, nil
	}

	var updated models.User
	err = r.db.Users.FindOneAndUpdate(ctx, bson.M{"_id": user.ID}, bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&updated)
	if err != nil {
		return nil, false, notFound(err, "user")
	}
	return &updated, true, nil
}

func nameFromEmail(email string) string {
	if i := strings.IndexByte(email, '@'); i > 0 {
		return email[:i]
	}
	return email
}
