package models

import "go.mongodb.org/mongo-driver/bson/primitive"

const (
	FileTypeImage    = "image"
	FileTypeVideo    = "video"
	FileTypeDocument = "document"
	FileTypeFile     = "file"
)

func ValidFileType(fileType string) bool {
	switch fileType {
	case FileTypeImage, FileTypeVideo, FileTypeDocument, FileTypeFile:
		return true
	}
	return false
}

type Media struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	FileName      string             `bson:"fileName" json:"fileName"`
	FileType      string             `bson:"fileType" json:"fileType"` // image, video, document, file
	FileSize      int64              `bson:"fileSize" json:"fileSize"`
	StorageKey    string             `bson:"storageKey" json:"storageKey"`
	URL           string             `bson:"url" json:"url"`
	Alt           string             `bson:"alt,omitempty" json:"alt,omitempty"`
	Caption       string             `bson:"caption,omitempty" json:"caption,omitempty"`
	Tags          []string           `bson:"tags" json:"tags"`
	Order         int                `bson:"order" json:"order"`
	PublicationID primitive.ObjectID `bson:"publicationId" json:"publicationId"`
	UploadedBy    primitive.ObjectID `bson:"uploadedBy" json:"uploadedBy"`
	CreatedAt     int64              `bson:"createdAt" json:"createdAt"`
}

// FileMetadata describes a file that already lives in the file store.
type FileMetadata struct {
	StorageKey string `json:"storageKey" binding:"required"`
	URL        string `json:"url" binding:"required"`
	FileName   string `json:"fileName" binding:"required"`
	FileType   string `json:"fileType" binding:"required"`
	FileSize   int64  `json:"fileSize"`
	Alt        string `json:"alt"`
	Caption    string `json:"caption"`
}
