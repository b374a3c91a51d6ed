package models

import "go.mongodb.org/mongo-driver/bson/primitive"

const (
	StatusDraft     = "draft"
	StatusPublished = "published"
	StatusArchived  = "archived"
)

// Publication categories are a closed set, the taxonomy documents in the
// categories collection carry their display data.
const (
	CategoryMarketAnalysis     = "market-analysis"
	CategoryInvestmentStrategy = "investment-strategy"
	CategoryRegulatoryUpdates  = "regulatory-updates"
	CategoryCompanyNews        = "company-news"
	CategoryResearch           = "research"
)

var PublicationCategories = []string{
	CategoryMarketAnalysis,
	CategoryInvestmentStrategy,
	CategoryRegulatoryUpdates,
	CategoryCompanyNews,
	CategoryResearch,
}

func ValidStatus(status string) bool {
	return status == StatusDraft || status == StatusPublished || status == StatusArchived
}

func ValidPublicationCategory(category string) bool {
	for _, c := range PublicationCategories {
		if c == category {
			return true
		}
	}
	return false
}

type Publication struct {
	ID            primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	Title         string               `bson:"title" json:"title"`
	Slug          string               `bson:"slug" json:"slug"`
	Description   string               `bson:"description" json:"description"`
	Content       string               `bson:"content" json:"content"`
	Excerpt       string               `bson:"excerpt" json:"excerpt"`
	Category      string               `bson:"category" json:"category"`
	Status        string               `bson:"status" json:"status"` // draft, published, archived
	AuthorID      primitive.ObjectID   `bson:"authorId" json:"authorId"`
	MediaIDs      []primitive.ObjectID `bson:"mediaIds" json:"mediaIds"`
	AttachmentIDs []primitive.ObjectID `bson:"attachmentIds" json:"attachmentIds"`
	Tags          []string             `bson:"tags" json:"tags"`
	Featured      bool                 `bson:"featured" json:"featured"`
	ReadingTime   *int                 `bson:"readingTime,omitempty" json:"readingTime,omitempty"` // minutes
	PublishedAt   *int64               `bson:"publishedAt,omitempty" json:"publishedAt,omitempty"`
	CreatedAt     int64                `bson:"createdAt" json:"createdAt"`
	UpdatedAt     int64                `bson:"updatedAt" json:"updatedAt"`
}

// PublicationDetail is a publication with its media and author joined in.
type PublicationDetail struct {
	Publication `bson:",inline"`
	Media       []Media        `bson:"media" json:"media"`
	Author      *AuthorSummary `bson:"author,omitempty" json:"author,omitempty"`
}
