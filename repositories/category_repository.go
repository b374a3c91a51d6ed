package repositories

import (
	"context"
	"strings"

	"finsite/auth"
	"finsite/database"
	"finsite/models"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type CategoryRepository struct {
	db   *database.DB
	gate *auth.Gate
}

func NewCategoryRepository(db *database.DB, gate *auth.Gate) *CategoryRepository {
	return &CategoryRepository{db: db, gate: gate}
}

type CreateCategoryInput struct {
	Slug        string              `json:"slug"`
	Name        string              `json:"name" binding:"required"`
	Description string              `json:"description"`
	Color       string              `json:"color"`
	Icon        string              `json:"icon"`
	Order       *int                `json:"order"`
	ParentID    *primitive.ObjectID `json:"parentId"`
}

type CategoryPatch struct {
	Slug        *string             `json:"slug"`
	Name        *string             `json:"name"`
	Description *string             `json:"description"`
	Color       *string             `json:"color"`
	Icon        *string             `json:"icon"`
	Order       *int                `json:"order"`
	ParentID    *primitive.ObjectID `json:"parentId"`
	IsActive    *bool               `json:"isActive"`
}

type CategoryOrder struct {
	ID    primitive.ObjectID `json:"id" binding:"required"`
	Order int                `json:"order"`
}

// List returns the active categories in display order.
func (r *CategoryRepository) List(ctx context.Context) ([]models.Category, error) {
	opts := options.Find().SetSort(bson.D{{Key: "order", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := r.db.Categories.Find(ctx, bson.M{"isActive": true}, opts)
	if err != nil {
		return nil, errors.Wrap(err, "list categories")
	}
	defer cursor.Close(ctx)

	categories := []models.Category{}
	if err := cursor.All(ctx, &categories); err != nil {
		return nil, errors.Wrap(err, "decode categories")
	}
	return categories, nil
}

func (r *CategoryRepository) GetBySlug(ctx context.Context, slug string) (*models.Category, error) {
	var category models.Category
	if err := r.db.Categories.FindOne(ctx, bson.M{"slug": slug}).Decode(&category); err != nil {
		return nil, notFound(err, "category")
	}
	return &category, nil
}

func (r *CategoryRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Category, error) {
	var category models.Category
	if err := r.db.Categories.FindOne(ctx, bson.M{"_id": id}).Decode(&category); err != nil {
		return nil, notFound(err, "category")
	}
	return &category, nil
}

// Create adds an active category. Without an explicit order it goes after
// every existing category, inactive ones included.
func (r *CategoryRepository) Create(ctx context.Context, in CreateCategoryInput) (*models.Category, error) {
	if _, err := r.gate.Editor(ctx); err != nil {
		return nil, err
	}

	slug := strings.TrimSpace(in.Slug)
	if slug == "" {
		slug = in.Name
	}
	slug = Slugify(slug)
	if slug == "" {
		return nil, errors.Wrap(ErrInvalid, "category slug must contain letters or digits")
	}

	taken, err := r.slugTaken(ctx, slug, primitive.NilObjectID)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, errors.Wrap(ErrConflict, "slug already exists")
	}

	order := 0
	if in.Order != nil {
		order = *in.Order
	} else {
		n, err := r.db.Categories.CountDocuments(ctx, bson.M{})
		if err != nil {
			return nil, errors.Wrap(err, "count categories")
		}
		order = int(n)
	}

	category := models.Category{
		ID:          primitive.NewObjectID(),
		Slug:        slug,
		Name:        in.Name,
		Description: in.Description,
		Color:       in.Color,
		Icon:        in.Icon,
		Order:       order,
		ParentID:    in.ParentID,
		IsActive:    true,
	}
	if _, err := r.db.Categories.InsertOne(ctx, category); err != nil {
		return nil, conflict(errors.Wrap(err, "insert category"), "slug already exists")
	}
	return &category, nil
}

func (r *CategoryRepository) Update(ctx context.Context, id primitive.ObjectID, patch CategoryPatch) (*models.Category, error) {
	if _, err := r.gate.Editor(ctx); err != nil {
		return nil, err
	}

	set := bson.M{}
	if patch.Slug != nil {
		slug := Slugify(*patch.Slug)
		if slug == "" {
			return nil, errors.Wrap(ErrInvalid, "category slug must contain letters or digits")
		}
		taken, err := r.slugTaken(ctx, slug, id)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, errors.Wrap(ErrConflict, "slug already exists")
		}
		set["slug"] = slug
	}
	if patch.Name != nil {
		set["name"] = *patch.Name
	}
	if patch.Description != nil {
		set["description"] = *patch.Description
	}
	if patch.Color != nil {
		set["color"] = *patch.Color
	}
	if patch.Icon != nil {
		set["icon"] = *patch.Icon
	}
	if patch.Order != nil {
		set["order"] = *patch.Order
	}
	if patch.ParentID != nil {
		set["parentId"] = *patch.ParentID
	}
	if patch.IsActive != nil {
		set["isActive"] = *patch.IsActive
	}
	if len(set) == 0 {
		return r.GetByID(ctx, id)
	}

	var category models.Category
	err := r.db.Categories.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&category)
	if err != nil {
		return nil, conflict(notFound(err, "category"), "slug already exists")
	}
	return &category, nil
}

// Delete hard deletes a category nobody references. A category still used
// by a publication is only deactivated; soft reports which one happened.
func (r *CategoryRepository) Delete(ctx context.Context, id primitive.ObjectID) (soft bool, err error) {
	if _, err := r.gate.Editor(ctx); err != nil {
		return false, err
	}

	category, err := r.GetByID(ctx, id)
	if err != nil {
		return false, err
	}

	n, err := r.db.Publications.CountDocuments(ctx, bson.M{"category": category.Slug}, options.Count().SetLimit(1))
	if err != nil {
		return false, errors.Wrap(err, "count category publications")
	}

	if n > 0 {
		if _, err := r.db.Categories.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"isActive": false}}); err != nil {
			return false, errors.Wrap(err, "deactivate category")
		}
		return true, nil
	}

	if _, err := r.db.Categories.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return false, errors.Wrap(err, "delete category")
	}
	return false, nil
}

// Reorder sets the order of each listed category independently.
func (r *CategoryRepository) Reorder(ctx context.Context, orders []CategoryOrder) error {
	if _, err := r.gate.Editor(ctx); err != nil {
		return err
	}

	for _, o := range orders {
		if _, err := r.db.Categories.UpdateOne(ctx, bson.M{"_id": o.ID}, bson.M{"$set": bson.M{"order": o.Order}}); err != nil {
			return errors.Wrapf(err, "reorder category %s", o.ID.Hex())
		}
	}
	return nil
}

func (r *CategoryRepository) slugTaken(ctx context.Context, slug string, self primitive.ObjectID) (bool, error) {
	filter := bson.M{"slug": slug}
	if !self.IsZero() {
		filter["_id"] = bson.M{"$ne": self}
	}
	n, err := r.db.Categories.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, errors.Wrap(err, "check category slug")
	}
	return n > 0, nil
}
