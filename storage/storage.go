package storage

import (
	"context"
	"io"
	"strings"

	"finsite/models"
)

// StoredFile is what the file store reports back after an upload.
type StoredFile struct {
	StorageKey string
	URL        string
	FileName   string
	FileType   string
	FileSize   int64
}

func (f StoredFile) Metadata() models.FileMetadata {
	return models.FileMetadata{
		StorageKey: f.StorageKey,
		URL:        f.URL,
		FileName:   f.FileName,
		FileType:   f.FileType,
		FileSize:   f.FileSize,
	}
}

// FileStore keeps file bytes outside of the document store.
type FileStore interface {
	Upload(ctx context.Context, r io.ReadSeeker, fileName string, size int64) (*StoredFile, error)
	Delete(ctx context.Context, storageKey, fileType string) error
}

var documentMIMEs = map[string]bool{
	"application/pdf":    true,
	"application/msword": true,
	"application/rtf":    true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         true,
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": true,
	"application/vnd.ms-excel":                true,
	"application/vnd.ms-powerpoint":           true,
	"application/vnd.oasis.opendocument.text": true,
	"text/csv": true,
}

// FileTypeForMIME maps a MIME type to the coarse media file type.
func FileTypeForMIME(mime string) string {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}

	switch {
	case strings.HasPrefix(mime, "image/"):
		return models.FileTypeImage
	case strings.HasPrefix(mime, "video/"):
		return models.FileTypeVideo
	case documentMIMEs[mime], strings.HasPrefix(mime, "text/"):
		return models.FileTypeDocument
	}
	return models.FileTypeFile
}
