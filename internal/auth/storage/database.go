package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amoylab/tokenbridge/internal/apiserver/database"

	"gorm.io/gorm"
)

// DatabaseStorage implements the Store interface on gorm
type DatabaseStorage struct {
	db *gorm.DB
}

// NewDatabaseStorage migrates the token tables on db and returns the store
func NewDatabaseStorage(db *gorm.DB) (*DatabaseStorage, error) {
	if err := db.AutoMigrate(&Application{}, &AccessToken{}, &RefreshToken{}); err != nil {
		return nil, fmt.Errorf("failed to migrate token tables: %w", err)
	}
	return &DatabaseStorage{db: db}, nil
}

func (s *DatabaseStorage) conn(ctx context.Context) *gorm.DB {
	return database.FromContext(ctx, s.db)
}

func (s *DatabaseStorage) tx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if tx := database.TransactionFromContext(ctx); tx != nil {
		return fn(tx)
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func duplicate(err error) error {
	if database.IsDuplicate(err) {
		return ErrAlreadyExists
	}
	return err
}

func (s *DatabaseStorage) GetApplication(ctx context.Context, clientID string) (*Application, error) {
	var app Application
	if err := s.conn(ctx).Where("client_id = ?", clientID).First(&app).Error; err != nil {
		return nil, notFound(err)
	}
	return &app, nil
}

func (s *DatabaseStorage) GetApplicationByID(ctx context.Context, id string) (*Application, error) {
	var app Application
	if err := s.conn(ctx).Where("id = ?", id).First(&app).Error; err != nil {
		return nil, notFound(err)
	}
	return &app, nil
}

func (s *DatabaseStorage) CreateApplication(ctx context.Context, app *Application) error {
	app.prepare()
	return duplicate(s.conn(ctx).Create(app).Error)
}

func (s *DatabaseStorage) GetAccessToken(ctx context.Context, token string) (*AccessToken, error) {
	var at AccessToken
	if err := s.conn(ctx).Where("token = ?", token).First(&at).Error; err != nil {
		return nil, notFound(err)
	}
	return &at, nil
}

func (s *DatabaseStorage) GetAccessTokenByID(ctx context.Context, id string) (*AccessToken, error) {
	var at AccessToken
	if err := s.conn(ctx).Where("id = ?", id).First(&at).Error; err != nil {
		return nil, notFound(err)
	}
	return &at, nil
}

func (s *DatabaseStorage) GetAccessTokenBySource(ctx context.Context, refreshID string) (*AccessToken, error) {
	var at AccessToken
	err := s.conn(ctx).
		Where("source_refresh_id = ? AND source_refresh_id <> ''", refreshID).
		Order("created_at desc").
		First(&at).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &at, nil
}

func (s *DatabaseStorage) LatestAccessToken(ctx context.Context, userID uint, appID string) (*AccessToken, error) {
	var at AccessToken
	err := s.conn(ctx).
		Where("user_id = ? AND application_id = ?", userID, appID).
		Order("created_at desc").
		First(&at).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &at, nil
}

func (s *DatabaseStorage) GetRefreshToken(ctx context.Context, token string) (*RefreshToken, error) {
	var rt RefreshToken
	if err := s.conn(ctx).Where("token = ?", token).First(&rt).Error; err != nil {
		return nil, notFound(err)
	}
	return &rt, nil
}

func (s *DatabaseStorage) GetRefreshTokenByAccessID(ctx context.Context, accessID string) (*RefreshToken, error) {
	var rt RefreshToken
	err := s.conn(ctx).
		Where("access_token_id = ? AND access_token_id <> ''", accessID).
		First(&rt).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &rt, nil
}

func (s *DatabaseStorage) SaveTokenPair(ctx context.Context, access *AccessToken, refresh *RefreshToken) error {
	return s.tx(ctx, func(tx *gorm.DB) error {
		return createPair(tx, access, refresh)
	})
}

func createPair(tx *gorm.DB, access *AccessToken, refresh *RefreshToken) error {
	if err := tx.Create(access).Error; err != nil {
		return duplicate(err)
	}
	return duplicate(tx.Create(refresh).Error)
}

func (s *DatabaseStorage) RotateRefreshToken(ctx context.Context, oldID string, revokedAt time.Time, access *AccessToken, refresh *RefreshToken) error {
	return s.tx(ctx, func(tx *gorm.DB) error {
		var old RefreshToken
		if err := tx.Where("id = ?", oldID).First(&old).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrConflict
			}
			return err
		}

		// conditional update so concurrent rotations of the same token cannot both win
		res := tx.Model(&RefreshToken{}).
			Where("id = ? AND revoked IS NULL", oldID).
			Updates(map[string]any{"revoked": revokedAt, "access_token_id": ""})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrConflict
		}

		if old.AccessTokenID != "" {
			if err := tx.Where("id = ?", old.AccessTokenID).Delete(&AccessToken{}).Error; err != nil {
				return err
			}
		}
		return createPair(tx, access, refresh)
	})
}

func (s *DatabaseStorage) RelinkRefreshToken(ctx context.Context, refreshID string, access *AccessToken) error {
	return s.tx(ctx, func(tx *gorm.DB) error {
		var rt RefreshToken
		if err := tx.Where("id = ? AND revoked IS NULL", refreshID).First(&rt).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrConflict
			}
			return err
		}
		if rt.AccessTokenID != "" {
			if err := tx.Where("id = ?", rt.AccessTokenID).Delete(&AccessToken{}).Error; err != nil {
				return err
			}
		}
		if err := tx.Create(access).Error; err != nil {
			return duplicate(err)
		}
		return tx.Model(&RefreshToken{}).
			Where("id = ?", refreshID).
			Update("access_token_id", access.ID).Error
	})
}

func (s *DatabaseStorage) RevokeFamily(ctx context.Context, userID uint, appID string, at time.Time) error {
	return s.tx(ctx, func(tx *gorm.DB) error {
		if err := tx.Model(&RefreshToken{}).
			Where("user_id = ? AND application_id = ? AND revoked IS NULL", userID, appID).
			Update("revoked", at).Error; err != nil {
			return err
		}
		if err := tx.Model(&RefreshToken{}).
			Where("user_id = ? AND application_id = ?", userID, appID).
			Update("access_token_id", "").Error; err != nil {
			return err
		}
		return tx.Where("user_id = ? AND application_id = ?", userID, appID).
			Delete(&AccessToken{}).Error
	})
}

func (s *DatabaseStorage) RevokeRefreshToken(ctx context.Context, id string, at time.Time) error {
	return s.tx(ctx, func(tx *gorm.DB) error {
		var rt RefreshToken
		if err := tx.Where("id = ?", id).First(&rt).Error; err != nil {
			return notFound(err)
		}
		updates := map[string]any{"access_token_id": ""}
		if rt.Revoked == nil {
			updates["revoked"] = at
		}
		if err := tx.Model(&RefreshToken{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return err
		}
		if rt.AccessTokenID == "" {
			return nil
		}
		return tx.Where("id = ?", rt.AccessTokenID).Delete(&AccessToken{}).Error
	})
}

func (s *DatabaseStorage) DeleteAccessToken(ctx context.Context, id string) error {
	return s.tx(ctx, func(tx *gorm.DB) error {
		res := tx.Where("id = ?", id).Delete(&AccessToken{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.Model(&RefreshToken{}).
			Where("access_token_id = ?", id).
			Update("access_token_id", "").Error
	})
}

func (s *DatabaseStorage) DeleteAccessTokens(ctx context.Context, userID uint, appID string) (int64, error) {
	var n int64
	err := s.tx(ctx, func(tx *gorm.DB) error {
		res := tx.Where("user_id = ? AND application_id = ?", userID, appID).Delete(&AccessToken{})
		if res.Error != nil {
			return res.Error
		}
		n = res.RowsAffected
		return tx.Model(&RefreshToken{}).
			Where("user_id = ? AND application_id = ?", userID, appID).
			Update("access_token_id", "").Error
	})
	return n, err
}

func (s *DatabaseStorage) DeleteRefreshTokens(ctx context.Context, userID uint, appID string) (int64, error) {
	res := s.conn(ctx).Where("user_id = ? AND application_id = ?", userID, appID).Delete(&RefreshToken{})
	return res.RowsAffected, res.Error
}

// Close is a no-op, the connection belongs to the user database
func (s *DatabaseStorage) Close() error {
	return nil
}
