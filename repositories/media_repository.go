package repositories

import (
	"context"
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

const DefaultMediaLimit = 50

type MediaRepository struct {
	db   *database.DB
	gate *auth.Gate
	now  func() time.Time
}

func NewMediaRepository(db *database.DB, gate *auth.Gate) *MediaRepository {
	return &MediaRepository{db: db, gate: gate, now: time.Now}
}

type MediaPatch struct {
	Alt     *string  `json:"alt"`
	Caption *string  `json:"caption"`
	Tags    []string `json:"tags"`
	Order   *int     `json:"order"`
}

// MediaOrder assigns a display position to one media record.
type MediaOrder struct {
	ID    primitive.ObjectID `json:"id" binding:"required"`
	Order int                `json:"order"`
}

type ReconcileReport struct {
	OrphanedMedia   int64 `json:"orphanedMedia"`
	DanglingMediaID int64 `json:"danglingMediaIds"`
	// Removed holds the deleted orphans so their stored files can be released.
	Removed []models.Media `json:"-"`
}

// ListByPublication returns the media of a publication in store order.
// Callers that care about display order sort by Order themselves.
func (r *MediaRepository) ListByPublication(ctx context.Context, publicationID primitive.ObjectID) ([]models.Media, error) {
	return r.find(ctx, bson.M{"publicationId": publicationID}, nil)
}

func (r *MediaRepository) ListByType(ctx context.Context, fileType string, limit int) ([]models.Media, error) {
	if !models.ValidFileType(fileType) {
		return nil, errors.Wrapf(ErrInvalid, "unknown file type %q", fileType)
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: -1}}).
		SetLimit(int64(clampLimit(limit, DefaultMediaLimit)))
	return r.find(ctx, bson.M{"fileType": fileType}, opts)
}

func (r *MediaRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Media, error) {
	var media models.Media
	if err := r.db.Media.FindOne(ctx, bson.M{"_id": id}).Decode(&media); err != nil {
		return nil, notFound(err, "media")
	}
	return &media, nil
}

// LinkToPublication records a stored file and appends it to the
// publication's media list.
func (r *MediaRepository) LinkToPublication(ctx context.Context, publicationID primitive.ObjectID, file models.FileMetadata) (*models.Media, error) {
	uploader, err := r.gate.Editor(ctx)
	if err != nil {
		return nil, err
	}
	if !models.ValidFileType(file.FileType) {
		return nil, errors.Wrapf(ErrInvalid, "unknown file type %q", file.FileType)
	}
	if file.StorageKey == "" || file.URL == "" {
		return nil, errors.Wrap(ErrInvalid, "storage key and url are required")
	}

	n, err := r.db.Publications.CountDocuments(ctx, bson.M{"_id": publicationID}, options.Count().SetLimit(1))
	if err != nil {
		return nil, errors.Wrap(err, "find publication")
	}
	if n == 0 {
		return nil, errors.Wrap(ErrNotFound, "publication")
	}

	now := r.now().UnixMilli()
	media := models.Media{
		ID:            primitive.NewObjectID(),
		FileName:      file.FileName,
		FileType:      file.FileType,
		FileSize:      file.FileSize,
		StorageKey:    file.StorageKey,
		URL:           file.URL,
		Alt:           file.Alt,
		Caption:       file.Caption,
		Tags:          []string{},
		Order:         0,
		PublicationID: publicationID,
		UploadedBy:    uploader.ID,
		CreatedAt:     now,
	}

	err = r.db.WithTransaction(ctx, func(ctx context.Context) error {
		if _, err := r.db.Media.InsertOne(ctx, media); err != nil {
			return errors.Wrap(err, "insert media")
		}
		_, err := r.db.Publications.UpdateOne(ctx, bson.M{"_id": publicationID}, bson.M{
			"$push": bson.M{"mediaIds": media.ID},
			"$set":  bson.M{"updatedAt": now},
		})
		return errors.Wrap(err, "append media to publication")
	})
	if err != nil {
		return nil, err
	}
	return &media, nil
}

func (r *MediaRepository) Update(ctx context.Context, id primitive.ObjectID, patch MediaPatch) (*models.Media, error) {
	if _, err := r.gate.Editor(ctx); err != nil {
		return nil, err
	}

	set := bson.M{}
	if patch.Alt != nil {
		set["alt"] = *patch.Alt
	}
	if patch.Caption != nil {
		set["caption"] = *patch.Caption
	}
	if patch.Tags != nil {
		set["tags"] = normalizeTags(patch.Tags)
	}
	if patch.Order != nil {
		set["order"] = *patch.Order
	}
	if len(set) == 0 {
		return r.GetByID(ctx, id)
	}

	var media models.Media
	err := r.db.Media.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&media)
	if err != nil {
		return nil, notFound(err, "media")
	}
	return &media, nil
}

// Delete unlinks the media from its publication and removes it. The removed
// record is returned so its stored file can be released.
func (r *MediaRepository) Delete(ctx context.Context, id primitive.ObjectID) (*models.Media, error) {
	if _, err := r.gate.Editor(ctx); err != nil {
		return nil, err
	}

	media, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	err = r.db.WithTransaction(ctx, func(ctx context.Context) error {
		_, err := r.db.Publications.UpdateOne(ctx, bson.M{"_id": media.PublicationID}, bson.M{
			"$pull": bson.M{"mediaIds": id},
			"$set":  bson.M{"updatedAt": r.now().UnixMilli()},
		})
		if err != nil {
			return errors.Wrap(err, "unlink media from publication")
		}
		if _, err := r.db.Media.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
			return errors.Wrap(err, "delete media")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return media, nil
}

// Reorder sets the order of each listed media record. Every record is
// patched on its own and ids are not checked against publicationID.
func (r *MediaRepository) Reorder(ctx context.Context, publicationID primitive.ObjectID, orders []MediaOrder) error {
	if _, err := r.gate.Editor(ctx); err != nil {
		return err
	}

	for _, o := range orders {
		if _, err := r.db.Media.UpdateOne(ctx, bson.M{"_id": o.ID}, bson.M{"$set": bson.M{"order": o.Order}}); err != nil {
			return errors.Wrapf(err, "reorder media %s", o.ID.Hex())
		}
	}

	logging.Log.WithField("publication", publicationID.Hex()).Debugf("reordered %d media", len(orders))
	return nil
}

// ReconcileOrphans repairs what an interrupted link or delete leaves
// behind: media whose publication is gone, and media ids listed on a
// publication that no longer resolve. Both checks join live documents,
// so links written while it runs are left alone: a link inserts the media
// before listing it, and a delete unlists it before removing it.
func (r *MediaRepository) ReconcileOrphans(ctx context.Context) (*ReconcileReport, error) {
	if _, err := r.gate.Admin(ctx); err != nil {
		return nil, err
	}

	orphans, err := r.orphanedMedia(ctx)
	if err != nil {
		return nil, err
	}
	report := &ReconcileReport{Removed: orphans}
	if len(orphans) > 0 {
		orphanIDs := make([]primitive.ObjectID, 0, len(orphans))
		for _, m := range orphans {
			orphanIDs = append(orphanIDs, m.ID)
		}
		res, err := r.db.Media.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": orphanIDs}})
		if err != nil {
			return nil, errors.Wrap(err, "delete orphaned media")
		}
		report.OrphanedMedia = res.DeletedCount
	}

	dangling, err := r.danglingMediaIDs(ctx)
	if err != nil {
		return nil, err
	}
	for _, d := range dangling {
		res, err := r.db.Publications.UpdateOne(ctx, bson.M{"_id": d.ID},
			bson.M{"$pull": bson.M{"mediaIds": bson.M{"$in": d.MediaIDs}}})
		if err != nil {
			return nil, errors.Wrapf(err, "pull dangling media ids from %s", d.ID.Hex())
		}
		report.DanglingMediaID += res.ModifiedCount
	}

	logging.Log.WithField("orphaned_media", report.OrphanedMedia).
		WithField("publications_fixed", report.DanglingMediaID).
		Info("media reconciled")
	return report, nil
}

// orphanedMedia returns media whose publication no longer exists.
func (r *MediaRepository) orphanedMedia(ctx context.Context) ([]models.Media, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: database.PublicationsCollection},
			{Key: "localField", Value: "publicationId"},
			{Key: "foreignField", Value: "_id"},
			{Key: "as", Value: "owner"},
		}}},
		{{Key: "$match", Value: bson.M{"owner": bson.M{"$size": 0}}}},
		{{Key: "$project", Value: bson.M{"owner": 0}}},
	}

	cursor, err := r.db.Media.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, errors.Wrap(err, "find orphaned media")
	}
	defer cursor.Close(ctx)

	orphans := []models.Media{}
	if err := cursor.All(ctx, &orphans); err != nil {
		return nil, errors.Wrap(err, "decode orphaned media")
	}
	return orphans, nil
}

type danglingIDs struct {
	ID       primitive.ObjectID   `bson:"_id"`
	MediaIDs []primitive.ObjectID `bson:"dangling"`
}

// danglingMediaIDs returns, per publication, the listed media ids that have
// no media record.
func (r *MediaRepository) danglingMediaIDs(ctx context.Context) ([]danglingIDs, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"mediaIds.0": bson.M{"$exists": true}}}},
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: database.MediaCollection},
			{Key: "localField", Value: "mediaIds"},
			{Key: "foreignField", Value: "_id"},
			{Key: "as", Value: "linked"},
		}}},
		{{Key: "$project", Value: bson.M{
			"dangling": bson.M{"$setDifference": bson.A{"$mediaIds", "$linked._id"}},
		}}},
		{{Key: "$match", Value: bson.M{"dangling.0": bson.M{"$exists": true}}}},
	}

	cursor, err := r.db.Publications.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, errors.Wrap(err, "find dangling media ids")
	}
	defer cursor.Close(ctx)

	var dangling []danglingIDs
	if err := cursor.All(ctx, &dangling); err != nil {
		return nil, errors.Wrap(err, "decode dangling media ids")
	}
	return dangling, nil
}

func (r *MediaRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]models.Media, error) {
	cursor, err := r.db.Media.Find(ctx, filter, opts)
	if err != nil {
		return nil, errors.Wrap(err, "find media")
	}
	defer cursor.Close(ctx)

	media := []models.Media{}
	if err := cursor.All(ctx, &media); err != nil {
		return nil, errors.Wrap(err, "decode media")
	}
	return media, nil
}
