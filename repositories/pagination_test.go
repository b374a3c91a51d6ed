package repositories

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestClampLimit(t *testing.T) {
	assert.Equal(t, 20, clampLimit(0, 20))
	assert.Equal(t, 50, clampLimit(-3, 50))
	assert.Equal(t, 7, clampLimit(7, 20))
	assert.Equal(t, MaxPageSize, clampLimit(1000, 20))
}

func TestCursorFilter(t *testing.T) {
	filter := bson.M{}
	require.NoError(t, cursorFilter(filter, ""))
	assert.Empty(t, filter)

	id := primitive.NewObjectID()
	require.NoError(t, cursorFilter(filter, id.Hex()))
	assert.Equal(t, bson.M{"$lt": id}, filter["_id"])

	err := cursorFilter(bson.M{}, "not-a-cursor")
	assert.True(t, errors.Is(err, ErrInvalid))
}

func TestBuildPage(t *testing.T) {
	ids := []primitive.ObjectID{primitive.NewObjectID(), primitive.NewObjectID(), primitive.NewObjectID()}
	idOf := func(id primitive.ObjectID) primitive.ObjectID { return id }

	page := buildPage(ids, 2, idOf)
	assert.Len(t, page.Items, 2)
	assert.False(t, page.IsDone)
	assert.Equal(t, ids[1].Hex(), page.ContinueCursor)

	page = buildPage(ids, 3, idOf)
	assert.Len(t, page.Items, 3)
	assert.True(t, page.IsDone)

	empty := buildPage[primitive.ObjectID](nil, 3, idOf)
	assert.NotNil(t, empty.Items)
	assert.True(t, empty.IsDone)
	assert.Empty(t, empty.ContinueCursor)
}
