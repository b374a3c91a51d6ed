package models

import "go.mongodb.org/mongo-driver/bson/primitive"

const (
	RoleAdmin  = "admin"
	RoleEditor = "editor"
	RoleViewer = "viewer"
	RoleClient = "client"
)

const (
	AuthProviderPassword = "password"
	AuthProviderGoogle   = "google"
)

type User struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Email        string             `bson:"email" json:"email"`
	Name         string             `bson:"name,omitempty" json:"name,omitempty"`
	Role         string             `bson:"role,omitempty" json:"role,omitempty"` // admin, editor, viewer, client
	Avatar       string             `bson:"avatar,omitempty" json:"avatar,omitempty"`
	Bio          string             `bson:"bio,omitempty" json:"bio,omitempty"`
	LastLogin    *int64             `bson:"lastLogin,omitempty" json:"lastLogin,omitempty"`
	CreatedAt    *int64             `bson:"createdAt,omitempty" json:"createdAt,omitempty"`
	AuthProvider string             `bson:"authProvider,omitempty" json:"authProvider,omitempty"`
	PasswordHash *string            `bson:"passwordHash,omitempty" json:"-"`
}

// ValidRole reports whether role is one of the known account roles.
func ValidRole(role string) bool {
	switch role {
	case RoleAdmin, RoleEditor, RoleViewer, RoleClient:
		return true
	}
	return false
}

// AuthorSummary is the projection of a User joined into publications.
type AuthorSummary struct {
	Name   string `bson:"name,omitempty" json:"name,omitempty"`
	Avatar string `bson:"avatar,omitempty" json:"avatar,omitempty"`
}
