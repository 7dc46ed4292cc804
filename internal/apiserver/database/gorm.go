package database

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// gormStore implements Database on any gorm dialect
type gormStore struct {
	db *gorm.DB
}

// Close closes the database connection
func (s *gormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

func (s *gormStore) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if TransactionFromContext(ctx) != nil {
		return fn(ctx)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ContextWithTransaction(ctx, tx))
	})
}

func (s *gormStore) GetUser(ctx context.Context, id uint) (*User, error) {
	var user User
	if err := FromContext(ctx, s.db).First(&user, id).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (s *gormStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	if email == "" {
		return nil, ErrNotFound
	}
	var user User
	err := FromContext(ctx, s.db).
		Where("LOWER(email) = LOWER(?)", email).
		Order("id asc").
		First(&user).Error
	if err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (s *gormStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	var user User
	if err := FromContext(ctx, s.db).Where("username = ?", username).First(&user).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (s *gormStore) CreateUser(ctx context.Context, user *User) error {
	return s.Transaction(ctx, func(ctx context.Context) error {
		if user.Email != "" {
			if _, err := s.GetUserByEmail(ctx, user.Email); err == nil {
				return ErrDuplicate
			} else if !errors.Is(err, ErrNotFound) {
				return err
			}
		}
		return translate(FromContext(ctx, s.db).Create(user).Error)
	})
}

func (s *gormStore) UpdateUser(ctx context.Context, user *User) error {
	return translate(FromContext(ctx, s.db).Save(user).Error)
}

func (s *gormStore) GetSocialAuth(ctx context.Context, provider, uid string) (*SocialAuth, error) {
	var auth SocialAuth
	err := FromContext(ctx, s.db).
		Where("provider = ? AND uid = ?", provider, uid).
		First(&auth).Error
	if err != nil {
		return nil, translate(err)
	}
	return &auth, nil
}

func (s *gormStore) ListSocialAuths(ctx context.Context, userID uint) ([]*SocialAuth, error) {
	var auths []*SocialAuth
	err := FromContext(ctx, s.db).
		Where("user_id = ?", userID).
		Order("id asc").
		Find(&auths).Error
	return auths, err
}

func (s *gormStore) CreateSocialAuth(ctx context.Context, auth *SocialAuth) error {
	return translate(FromContext(ctx, s.db).Create(auth).Error)
}

func (s *gormStore) UpdateSocialAuthExtra(ctx context.Context, id uint, extra string) error {
	res := FromContext(ctx, s.db).
		Model(&SocialAuth{}).
		Where("id = ?", id).
		Update("extra_data", extra)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *gormStore) DeleteSocialAuth(ctx context.Context, userID uint, provider string, id uint) (bool, error) {
	res := FromContext(ctx, s.db).
		Where("id = ? AND user_id = ? AND provider = ?", id, userID, provider).
		Delete(&SocialAuth{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
