package repositories

import (
	"context"
	"testing"
	"time"

	"finsite/auth"
	"finsite/database"
	"finsite/models"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type testRepos struct {
	db           *database.DB
	users        *UserRepository
	publications *PublicationRepository
	media        *MediaRepository
	categories   *CategoryRepository
}

func newTestRepos(t *testing.T) *testRepos {
	t.Helper()
	db := database.CreateTempDB(t)
	users := NewUserRepository(db, models.RoleAdmin)
	return &testRepos{
		db:           db,
		users:        users,
		publications: NewPublicationRepository(db, users.Gate()),
		media:        NewMediaRepository(db, users.Gate()),
		categories:   NewCategoryRepository(db, users.Gate()),
	}
}

// seedUser inserts a user straight into the store and returns a context
// authenticated as that user.
func (r *testRepos) seedUser(t *testing.T, email, role string) (*models.User, context.Context) {
	t.Helper()
	now := time.Now().UnixMilli()
	user := models.User{
		ID:        primitive.NewObjectID(),
		Email:     email,
		Name:      "Test " + role,
		Role:      role,
		CreatedAt: &now,
		LastLogin: &now,
	}
	_, err := r.db.Users.InsertOne(context.Background(), user)
	require.NoError(t, err)
	return &user, auth.WithEmail(context.Background(), email)
}

func (r *testRepos) seedPublication(t *testing.T, ctx context.Context, title, category, status string) *models.Publication {
	t.Helper()
	pub, err := r.publications.Create(ctx, CreatePublicationInput{
		Title:    title,
		Content:  "Quarterly outlook for fixed income",
		Category: category,
		Status:   status,
	})
	require.NoError(t, err)
	return pub
}

func fixedClock(ms int64) func() time.Time {
	return func() time.Time { return time.UnixMilli(ms) }
}

func strPtr(s string) *string { return &s }
