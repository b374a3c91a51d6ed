package storage

import (
	"context"
	"io"
	"path"
	"strings"
	"time"

	"finsite/logging"
	"finsite/models"
	"finsite/repositories"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Cloudinary stores media files on Cloudinary. Images and videos keep their
// own resource type, everything else is uploaded as "raw".
type Cloudinary struct {
	cld    *cloudinary.Cloudinary
	folder string
}

func NewCloudinary(cloudinaryURL, folder string) (*Cloudinary, error) {
	cld, err := cloudinary.NewFromURL(cloudinaryURL)
	if err != nil {
		return nil, errors.Wrap(err, "cloudinary configuration")
	}
	return &Cloudinary{cld: cld, folder: folder}, nil
}

func (c *Cloudinary) Upload(ctx context.Context, r io.ReadSeeker, fileName string, size int64) (*StoredFile, error) {
	mtype, err := mimetype.DetectReader(r)
	if err != nil {
		return nil, errors.Wrap(err, "detect file type")
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, errors.Wrap(err, "rewind upload")
	}

	fileType := FileTypeForMIME(mtype.String())

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	res, err := c.cld.Upload.Upload(ctx, r, uploader.UploadParams{
		Folder:       c.folder,
		PublicID:     publicID(fileName),
		ResourceType: resourceType(fileType),
	})
	if err != nil {
		return nil, errors.Wrap(err, "upload to cloudinary")
	}
	if res.Error.Message != "" {
		return nil, errors.Errorf("upload to cloudinary: %s", res.Error.Message)
	}

	if res.Bytes > 0 {
		size = int64(res.Bytes)
	}
	logging.Log.WithField("storage_key", res.PublicID).WithField("mime", mtype.String()).Info("file uploaded")

	return &StoredFile{
		StorageKey: res.PublicID,
		URL:        res.SecureURL,
		FileName:   fileName,
		FileType:   fileType,
		FileSize:   size,
	}, nil
}

func (c *Cloudinary) Delete(ctx context.Context, storageKey, fileType string) error {
	res, err := c.cld.Upload.Destroy(ctx, uploader.DestroyParams{
		PublicID:     storageKey,
		ResourceType: resourceType(fileType),
	})
	if err != nil {
		return errors.Wrapf(err, "destroy %s", storageKey)
	}
	if res.Error.Message != "" {
		return errors.Errorf("destroy %s: %s", storageKey, res.Error.Message)
	}
	return nil
}

func resourceType(fileType string) string {
	switch fileType {
	case models.FileTypeImage:
		return "image"
	case models.FileTypeVideo:
		return "video"
	}
	return "raw"
}

// publicID keeps stored names readable and unique.
func publicID(fileName string) string {
	base := repositories.Slugify(strings.TrimSuffix(path.Base(fileName), path.Ext(fileName)))
	if base == "" {
		base = "file"
	}
	return base + "_" + uuid.NewString()[:8]
}
