package auth

import (
	"context"

	"finsite/models"

	"github.com/pkg/errors"
)

var (
	// ErrUnauthenticated means there is no identity or no user record for it.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrForbidden means the user exists but the role is too low.
	ErrForbidden = errors.New("insufficient permissions")
)

// Level is a role threshold a caller has to meet.
type Level int

const (
	LevelViewer Level = iota
	LevelEditor
	LevelAdmin
)

func (l Level) String() string {
	switch l {
	case LevelViewer:
		return "viewer"
	case LevelEditor:
		return "editor"
	case LevelAdmin:
		return "admin"
	}
	return "unknown"
}

// Allows reports whether a user with role passes the level.
func (l Level) Allows(role string) bool {
	switch l {
	case LevelViewer:
		return true
	case LevelEditor:
		return role == models.RoleAdmin || role == models.RoleEditor
	case LevelAdmin:
		return role == models.RoleAdmin
	}
	return false
}

// UserLookup finds a user by email. A missing user is (nil, nil).
type UserLookup interface {
	UserByEmail(ctx context.Context, email string) (*models.User, error)
}

// Gate resolves the caller and checks it against a Level.
type Gate struct {
	users UserLookup
}

func NewGate(users UserLookup) *Gate {
	return &Gate{users: users}
}

// Require returns the calling user when it meets level. It fails with
// ErrUnauthenticated or ErrForbidden, or with the lookup error.
func (g *Gate) Require(ctx context.Context, level Level) (*models.User, error) {
	email, ok := EmailFromContext(ctx)
	if !ok {
		return nil, ErrUnauthenticated
	}

	user, err := g.users.UserByEmail(ctx, email)
	if err != nil {
		return nil, errors.Wrap(err, "resolve caller")
	}
	if user == nil {
		return nil, ErrUnauthenticated
	}

	if !level.Allows(user.Role) {
		return nil, errors.Wrapf(ErrForbidden, "%s role required", level)
	}
	return user, nil
}

func (g *Gate) Viewer(ctx context.Context) (*models.User, error) {
	return g.Require(ctx, LevelViewer)
}

func (g *Gate) Editor(ctx context.Context) (*models.User, error) {
	return g.Require(ctx, LevelEditor)
}

func (g *Gate) Admin(ctx context.Context) (*models.User, error) {
	return g.Require(ctx, LevelAdmin)
}
