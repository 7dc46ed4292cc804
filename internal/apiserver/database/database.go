package database

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
)

// Database defines the user and social association operations.
type Database interface {
	// Close closes the database connection.
	Close() error

	// DB exposes the underlying gorm handle so other stores can share the connection.
	DB() *gorm.DB

	// Transaction runs fn in a transaction carried by the context passed to fn.
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error

	GetUser(ctx context.Context, id uint) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	// CreateUser returns ErrDuplicate when the username or a non-empty email is taken.
	CreateUser(ctx context.Context, user *User) error
	UpdateUser(ctx context.Context, user *User) error

	GetSocialAuth(ctx context.Context, provider, uid string) (*SocialAuth, error)
	ListSocialAuths(ctx context.Context, userID uint) ([]*SocialAuth, error)
	CreateSocialAuth(ctx context.Context, auth *SocialAuth) error
	UpdateSocialAuthExtra(ctx context.Context, id uint, extra string) error
	// DeleteSocialAuth reports whether a matching association existed.
	DeleteSocialAuth(ctx context.Context, userID uint, provider string, id uint) (bool, error)
}
