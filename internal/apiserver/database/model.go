package database

import "time"

// User is a local account. Social logins resolve to one of these.
type User struct {
	ID        uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	Username  string    `json:"username" gorm:"type:varchar(150);uniqueIndex;not null"`
	Email     string    `json:"email" gorm:"type:varchar(254);index"`
	FirstName string    `json:"first_name" gorm:"type:varchar(150)"`
	LastName  string    `json:"last_name" gorm:"type:varchar(150)"`
	IsActive  bool      `json:"is_active" gorm:"not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SocialAuth links a user to an account at an identity provider
type SocialAuth struct {
	ID        uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID    uint      `json:"user_id" gorm:"not null;index"`
	Provider  string    `json:"provider" gorm:"type:varchar(32);not null;uniqueIndex:idx_social_provider_uid"`
	UID       string    `json:"uid" gorm:"type:varchar(255);not null;uniqueIndex:idx_social_provider_uid"`
	ExtraData string    `json:"extra_data" gorm:"type:text"` // JSON stored as text
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
