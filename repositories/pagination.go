package repositories

import (
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// PageRequest asks for the page that follows Cursor. An empty cursor starts
// from the newest record.
type PageRequest struct {
	Cursor string
	Limit  int
}

type Page[T any] struct {
	Items          []T    `json:"page"`
	ContinueCursor string `json:"continueCursor"`
	IsDone         bool   `json:"isDone"`
}

func clampLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > MaxPageSize {
		return MaxPageSize
	}
	return limit
}

// cursorFilter adds the "older than cursor" condition to filter. ObjectIDs
// grow with insertion time, which gives the newest-first order.
func cursorFilter(filter bson.M, cursor string) error {
	if cursor == "" {
		return nil
	}
	id, err := primitive.ObjectIDFromHex(cursor)
	if err != nil {
		return errors.Wrapf(ErrInvalid, "bad cursor %q", cursor)
	}
	filter["_id"] = bson.M{"$lt": id}
	return nil
}

// buildPage trims the look-ahead item fetched to detect the last page.
func buildPage[T any](items []T, limit int, idOf func(T) primitive.ObjectID) Page[T] {
	page := Page[T]{Items: items, IsDone: true}
	if len(items) > limit {
		page.Items = items[:limit]
		page.IsDone = false
	}
	if page.Items == nil {
		page.Items = []T{}
	}
	if n := len(page.Items); n > 0 {
		page.ContinueCursor = idOf(page.Items[n-1]).Hex()
	}
	return page
}
