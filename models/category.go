package models

import "go.mongodb.org/mongo-driver/bson/primitive"

type Category struct {
	ID          primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	Slug        string              `bson:"slug" json:"slug"`
	Name        string              `bson:"name" json:"name"`
	Description string              `bson:"description,omitempty" json:"description,omitempty"`
	Color       string              `bson:"color,omitempty" json:"color,omitempty"`
	Icon        string              `bson:"icon,omitempty" json:"icon,omitempty"`
	Order       int                 `bson:"order" json:"order"`
	ParentID    *primitive.ObjectID `bson:"parentId,omitempty" json:"parentId,omitempty"`
	IsActive    bool                `bson:"isActive" json:"isActive"`
}
