package storage

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/amoylab/tokenbridge/internal/common/cnst"

	"github.com/google/uuid"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	// ErrConflict is returned when a refresh token changed state between read and write
	ErrConflict = errors.New("concurrent modification")
)

// Store defines the interface for application and token storage.
// Methods that touch more than one record are atomic.
type Store interface {
	GetApplication(ctx context.Context, clientID string) (*Application, error)
	GetApplicationByID(ctx context.Context, id string) (*Application, error)
	CreateApplication(ctx context.Context, app *Application) error

	GetAccessToken(ctx context.Context, token string) (*AccessToken, error)
	GetAccessTokenByID(ctx context.Context, id string) (*AccessToken, error)
	// GetAccessTokenBySource returns the access token minted by redeeming refreshID
	GetAccessTokenBySource(ctx context.Context, refreshID string) (*AccessToken, error)
	// LatestAccessToken returns the most recently created access token of (user, app)
	LatestAccessToken(ctx context.Context, userID uint, appID string) (*AccessToken, error)

	GetRefreshToken(ctx context.Context, token string) (*RefreshToken, error)
	GetRefreshTokenByAccessID(ctx context.Context, accessID string) (*RefreshToken, error)

	// SaveTokenPair persists a freshly minted access and refresh token together
	SaveTokenPair(ctx context.Context, access *AccessToken, refresh *RefreshToken) error
	// RotateRefreshToken stamps old revoked, deletes its access token and saves the
	// new pair. ErrConflict is returned if old was revoked or removed meanwhile.
	RotateRefreshToken(ctx context.Context, oldID string, revokedAt time.Time, access *AccessToken, refresh *RefreshToken) error
	// RelinkRefreshToken replaces the access token of refreshID with access
	RelinkRefreshToken(ctx context.Context, refreshID string, access *AccessToken) error
	// RevokeFamily revokes every active refresh token and deletes every access token of (user, app)
	RevokeFamily(ctx context.Context, userID uint, appID string, at time.Time) error
	// RevokeRefreshToken stamps a refresh token revoked and deletes its access token
	RevokeRefreshToken(ctx context.Context, id string, at time.Time) error
	// DeleteAccessToken deletes an access token and clears the link of its refresh token
	DeleteAccessToken(ctx context.Context, id string) error

	DeleteAccessTokens(ctx context.Context, userID uint, appID string) (int64, error)
	DeleteRefreshTokens(ctx context.Context, userID uint, appID string) (int64, error)

	Close() error
}

// Application is a registered OAuth2 client
type Application struct {
	ID           string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	ClientID     string    `json:"client_id" gorm:"type:varchar(100);uniqueIndex;not null"`
	ClientSecret string    `json:"client_secret" gorm:"type:varchar(255)"` // bcrypt hash
	ClientType   string    `json:"client_type" gorm:"type:varchar(32);not null"`
	GrantTypes   []string  `json:"grant_types" gorm:"serializer:json"`
	Scope        string    `json:"scope" gorm:"type:text"`
	Name         string    `json:"name" gorm:"type:varchar(255)"`
	UserID       uint      `json:"user_id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (a *Application) IsConfidential() bool {
	return a.ClientType == string(cnst.ClientConfidential)
}

func (a *Application) HasGrantType(grant cnst.GrantType) bool {
	return slices.Contains(a.GrantTypes, grant.String())
}

// Scopes returns the allowed scopes of the application
func (a *Application) Scopes() []string {
	return strings.Fields(a.Scope)
}

// AccessToken is a first-party bearer token
type AccessToken struct {
	ID              string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Token           string    `json:"token" gorm:"type:varchar(512);uniqueIndex;not null"`
	UserID          uint      `json:"user_id" gorm:"index:idx_access_owner"`
	ApplicationID   string    `json:"application_id" gorm:"type:varchar(36);index:idx_access_owner"`
	Scope           string    `json:"scope" gorm:"type:text"`
	Expires         time.Time `json:"expires"`
	SourceRefreshID string    `json:"source_refresh_id,omitempty" gorm:"type:varchar(36);index"`
	CreatedAt       time.Time `json:"created_at"`
}

// IsExpired reports whether the token is unusable at now
func (t *AccessToken) IsExpired(now time.Time) bool {
	return !now.Before(t.Expires)
}

func (t *AccessToken) Scopes() []string {
	return strings.Fields(t.Scope)
}

// RefreshToken redeems a new access token. A non-nil Revoked is final.
type RefreshToken struct {
	ID            string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Token         string     `json:"token" gorm:"type:varchar(512);uniqueIndex;not null"`
	UserID        uint       `json:"user_id" gorm:"index:idx_refresh_owner"`
	ApplicationID string     `json:"application_id" gorm:"type:varchar(36);index:idx_refresh_owner"`
	AccessTokenID string     `json:"access_token_id,omitempty" gorm:"type:varchar(36);index"`
	Revoked       *time.Time `json:"revoked,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

func (t *RefreshToken) IsRevoked() bool {
	return t.Revoked != nil
}

// prepare assigns an id to a new application
func (a *Application) prepare() {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
}
