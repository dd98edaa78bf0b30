package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/prdbuilder/prdbuilder/app/models"
)

type userProfileRepository struct {
	db *gorm.DB
}

// NewUserProfileRepository creates a new user profile repository instance
func NewUserProfileRepository(db *gorm.DB) UserProfileRepository {
	return &userProfileRepository{db: db}
}

// GetOrCreate returns the profile, creating a non-admin one on first sight
func (r *userProfileRepository) GetOrCreate(ctx context.Context, userID, email string) (*models.UserProfile, error) {
	profile := models.UserProfile{UserID: userID, Email: email}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&profile).Error; err != nil {
		return nil, err
	}
	var stored models.UserProfile
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&stored).Error; err != nil {
		return nil, err
	}
	return &stored, nil
}

// IsAppAdmin reports whether the user is flagged as application admin
func (r *userProfileRepository) IsAppAdmin(ctx context.Context, userID string) (bool, error) {
	var profile models.UserProfile
	err := r.db.WithContext(ctx).Select("is_app_admin").Where("user_id = ?", userID).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return profile.IsAppAdmin, nil
}
