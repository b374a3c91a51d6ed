package repositories

import (
	"context"
	"strconv"
	"strings"
	"time"

	"finsite/auth"
	"finsite/database"
	"finsite/logging"
	"finsite/models"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const DefaultSearchLimit = 20

type PublicationRepository struct {
	db   *database.DB
	gate *auth.Gate
	now  func() time.Time
}

func NewPublicationRepository(db *database.DB, gate *auth.Gate) *PublicationRepository {
	return &PublicationRepository{db: db, gate: gate, now: time.Now}
}

type PublicationFilter struct {
	Status   string
	Category string
	Featured *bool
}

type CreatePublicationInput struct {
	Title       string   `json:"title" binding:"required"`
	Description string   `json:"description"`
	Content     string   `json:"content"`
	Excerpt     string   `json:"excerpt"`
	Category    string   `json:"category" binding:"required"`
	Status      string   `json:"status"`
	Tags        []string `json:"tags"`
	Featured    *bool    `json:"featured"`
}

// PublicationPatch only changes the fields that are set.
type PublicationPatch struct {
	Title         *string              `json:"title"`
	Description   *string              `json:"description"`
	Content       *string              `json:"content"`
	Excerpt       *string              `json:"excerpt"`
	Category      *string              `json:"category"`
	Status        *string              `json:"status"`
	Tags          []string             `json:"tags"`
	Featured      *bool                `json:"featured"`
	AttachmentIDs []primitive.ObjectID `json:"attachmentIds"`
}

func (r *PublicationRepository) List(ctx context.Context, f PublicationFilter, req PageRequest) (Page[models.Publication], error) {
	filter := bson.M{}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	if f.Category != "" {
		filter["category"] = f.Category
	}
	if f.Featured != nil {
		filter["featured"] = *f.Featured
	}
	if err := cursorFilter(filter, req.Cursor); err != nil {
		return Page[models.Publication]{}, err
	}

	limit := clampLimit(req.Limit, DefaultPageSize)
	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: -1}}).
		SetLimit(int64(limit + 1))

	cursor, err := r.db.Publications.Find(ctx, filter, opts)
	if err != nil {
		return Page[models.Publication]{}, errors.Wrap(err, "list publications")
	}
	defer cursor.Close(ctx)

	var pubs []models.Publication
	if err := cursor.All(ctx, &pubs); err != nil {
		return Page[models.Publication]{}, errors.Wrap(err, "decode publications")
	}

	return buildPage(pubs, limit, func(p models.Publication) primitive.ObjectID { return p.ID }), nil
}

func (r *PublicationRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.PublicationDetail, error) {
	return r.getDetail(ctx, bson.M{"_id": id})
}

func (r *PublicationRepository) GetBySlug(ctx context.Context, slug string) (*models.PublicationDetail, error) {
	return r.getDetail(ctx, bson.M{"slug": slug})
}

// getDetail joins the media rows and the author's name and avatar.
func (r *PublicationRepository) getDetail(ctx context.Context, match bson.M) (*models.PublicationDetail, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$limit", Value: 1}},
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: database.MediaCollection},
			{Key: "localField", Value: "_id"},
			{Key: "foreignField", Value: "publicationId"},
			{Key: "as", Value: "media"},
		}}},
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: database.UsersCollection},
			{Key: "localField", Value: "authorId"},
			{Key: "foreignField", Value: "_id"},
			{Key: "as", Value: "author"},
		}}},
		{{Key: "$unwind", Value: bson.D{
			{Key: "path", Value: "$author"},
			{Key: "preserveNullAndEmptyArrays", Value: true},
		}}},
		{{Key: "$project", Value: bson.D{
			{Key: "author.email", Value: 0},
			{Key: "author.role", Value: 0},
			{Key: "author.bio", Value: 0},
			{Key: "author.lastLogin", Value: 0},
			{Key: "author.createdAt", Value: 0},
			{Key: "author.authProvider", Value: 0},
			{Key: "author.passwordHash", Value: 0},
			{Key: "author._id", Value: 0},
		}}},
	}

	cursor, err := r.db.Publications.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, errors.Wrap(err, "aggregate publication")
	}
	defer cursor.Close(ctx)

	var details []models.PublicationDetail
	if err := cursor.All(ctx, &details); err != nil {
		return nil, errors.Wrap(err, "decode publication")
	}
	if len(details) == 0 {
		return nil, errors.Wrap(ErrNotFound, "publication")
	}

	detail := details[0]
	if detail.Media == nil {
		detail.Media = []models.Media{}
	}
	return &detail, nil
}

// Search matches query against the title text index among published
// publications, best matches first.
func (r *PublicationRepository) Search(ctx context.Context, query, category string, limit int) ([]models.Publication, error) {
	results := []models.Publication{}
	query = strings.TrimSpace(query)
	if query == "" {
		return results, nil
	}

	filter := bson.M{
		"$text":  bson.M{"$search": query},
		"status": models.StatusPublished,
	}
	if category != "" {
		filter["category"] = category
	}

	opts := options.Find().
		SetProjection(bson.M{"score": bson.M{"$meta": "textScore"}}).
		SetSort(bson.D{{Key: "score", Value: bson.M{"$meta": "textScore"}}}).
		SetLimit(int64(clampLimit(limit, DefaultSearchLimit)))

	cursor, err := r.db.Publications.Find(ctx, filter, opts)
	if err != nil {
		return nil, errors.Wrap(err, "search publications")
	}
	defer cursor.Close(ctx)

	if err := cursor.All(ctx, &results); err != nil {
		return nil, errors.Wrap(err, "decode search results")
	}
	return results, nil
}

func (r *PublicationRepository) Create(ctx context.Context, in CreatePublicationInput) (*models.Publication, error) {
	author, err := r.gate.Editor(ctx)
	if err != nil {
		return nil, err
	}

	status := in.Status
	if status == "" {
		status = models.StatusDraft
	}
	if err := validatePublication(in.Title, in.Category, status); err != nil {
		return nil, err
	}

	now := r.now().UnixMilli()
	slug, err := r.uniqueSlug(ctx, in.Title, primitive.NilObjectID, now)
	if err != nil {
		return nil, err
	}

	readingTime := ReadingTime(in.Content)
	pub := models.Publication{
		ID:            primitive.NewObjectID(),
		Title:         in.Title,
		Slug:          slug,
		Description:   in.Description,
		Content:       in.Content,
		Excerpt:       in.Excerpt,
		Category:      in.Category,
		Status:        status,
		AuthorID:      author.ID,
		MediaIDs:      []primitive.ObjectID{},
		AttachmentIDs: []primitive.ObjectID{},
		Tags:          normalizeTags(in.Tags),
		Featured:      in.Featured != nil && *in.Featured,
		ReadingTime:   &readingTime,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if status == models.StatusPublished {
		pub.PublishedAt = &now
	}

	if _, err := r.db.Publications.InsertOne(ctx, pub); err != nil {
		return nil, conflict(errors.Wrap(err, "insert publication"), "slug already exists")
	}
	return &pub, nil
}

// Update applies patch. A new title regenerates the slug; readingTime is
// kept as computed at creation.
func (r *PublicationRepository) Update(ctx context.Context, id primitive.ObjectID, patch PublicationPatch) (*models.Publication, error) {
	if _, err := r.gate.Editor(ctx); err != nil {
		return nil, err
	}

	now := r.now().UnixMilli()
	set := bson.M{"updatedAt": now}

	if patch.Title != nil {
		slug, err := r.uniqueSlug(ctx, *patch.Title, id, now)
		if err != nil {
			return nil, err
		}
		set["title"] = *patch.Title
		set["slug"] = slug
	}
	if patch.Description != nil {
		set["description"] = *patch.Description
	}
	if patch.Content != nil {
		set["content"] = *patch.Content
	}
	if patch.Excerpt != nil {
		set["excerpt"] = *patch.Excerpt
	}
	if patch.Category != nil {
		if !models.ValidPublicationCategory(*patch.Category) {
			return nil, errors.Wrapf(ErrInvalid, "unknown category %q", *patch.Category)
		}
		set["category"] = *patch.Category
	}
	if patch.Status != nil {
		if !models.ValidStatus(*patch.Status) {
			return nil, errors.Wrapf(ErrInvalid, "unknown status %q", *patch.Status)
		}
		set["status"] = *patch.Status
		if *patch.Status == models.StatusPublished {
			set["publishedAt"] = now
		}
	}
	if patch.Tags != nil {
		set["tags"] = normalizeTags(patch.Tags)
	}
	if patch.Featured != nil {
		set["featured"] = *patch.Featured
	}
	if patch.AttachmentIDs != nil {
		set["attachmentIds"] = patch.AttachmentIDs
	}

	var pub models.Publication
	err := r.db.Publications.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&pub)
	if err != nil {
		return nil, conflict(notFound(err, "publication"), "slug already exists")
	}
	return &pub, nil
}

// Delete removes the publication and every media record it lists. The
// removed media are returned so their stored files can be released.
func (r *PublicationRepository) Delete(ctx context.Context, id primitive.ObjectID) ([]models.Media, error) {
	if _, err := r.gate.Editor(ctx); err != nil {
		return nil, err
	}

	var pub models.Publication
	if err := r.db.Publications.FindOne(ctx, bson.M{"_id": id}).Decode(&pub); err != nil {
		return nil, notFound(err, "publication")
	}

	removed := []models.Media{}
	err := r.db.WithTransaction(ctx, func(ctx context.Context) error {
		if len(pub.MediaIDs) > 0 {
			mediaFilter := bson.M{"_id": bson.M{"$in": pub.MediaIDs}}
			cursor, err := r.db.Media.Find(ctx, mediaFilter)
			if err != nil {
				return errors.Wrap(err, "find publication media")
			}
			if err := cursor.All(ctx, &removed); err != nil {
				return errors.Wrap(err, "decode publication media")
			}
			if _, err := r.db.Media.DeleteMany(ctx, mediaFilter); err != nil {
				return errors.Wrap(err, "delete publication media")
			}
		}

		if _, err := r.db.Publications.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
			return errors.Wrap(err, "delete publication")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logging.Log.WithField("publication", id.Hex()).WithField("media", len(removed)).Info("publication deleted")
	return removed, nil
}

// uniqueSlug derives the slug for title. When another publication already
// owns it, the timestamp is appended. The check and the write are separate
// calls; the unique index rejects whatever slips through.
func (r *PublicationRepository) uniqueSlug(ctx context.Context, title string, self primitive.ObjectID, now int64) (string, error) {
	base := Slugify(title)
	if base == "" {
		return "", errors.Wrap(ErrInvalid, "title must contain letters or digits")
	}

	filter := bson.M{"slug": base}
	if !self.IsZero() {
		filter["_id"] = bson.M{"$ne": self}
	}
	n, err := r.db.Publications.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return "", errors.Wrap(err, "check slug")
	}
	if n == 0 {
		return base, nil
	}
	return base + "-" + strconv.FormatInt(now, 10), nil
}

func validatePublication(title, category, status string) error {
	if strings.TrimSpace(title) == "" {
		return errors.Wrap(ErrInvalid, "title is required")
	}
	if !models.ValidPublicationCategory(category) {
		return errors.Wrapf(ErrInvalid, "unknown category %q", category)
	}
	if !models.ValidStatus(status) {
		return errors.Wrapf(ErrInvalid, "unknown status %q", status)
	}
	return nil
}
