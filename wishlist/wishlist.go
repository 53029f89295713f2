// Package wishlist keeps each buyer's saved properties.
package wishlist

import (
	"context"
	"errors"
	"fmt"

	"signature-elite-server/apperror"
	"signature-elite-server/auth"
	"signature-elite-server/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Properties resolves a listing as the caller is allowed to see it.
type Properties interface {
	View(ctx context.Context, claim auth.Claim, id uint) (models.Property, error)
}

type Index struct {
	db         *gorm.DB
	properties Properties
}

func New(db *gorm.DB, properties Properties) *Index {
	return &Index{db: db, properties: properties}
}

// snapshotColumns are refreshed when an existing entry is added again.
var snapshotColumns = []string{
	"title", "location", "image", "agent_email", "agent_name",
	"min_price", "max_price", "verification_status", "updated_at",
}

// Add saves propertyID for userEmail. Adding an existing entry refreshes its
// snapshot and keeps its creation time.
func (ix *Index) Add(ctx context.Context, claim auth.Claim, userEmail string, propertyID uint) (models.WishlistEntry, error) {
	userEmail = auth.NormalizeEmail(userEmail)
	if userEmail == "" || propertyID == 0 {
		return models.WishlistEntry{}, apperror.InvalidInput("userEmail and propertyId are required")
	}
	if err := auth.Authorize(claim, auth.ManageWishlist, userEmail); err != nil {
		return models.WishlistEntry{}, err
	}
	property, err := ix.properties.View(ctx, claim, propertyID)
	if err != nil {
		return models.WishlistEntry{}, err
	}

	entry := models.WishlistEntry{
		UserEmail:          userEmail,
		PropertyID:         property.ID,
		Title:              property.Title,
		Location:           property.Location,
		Image:              property.Image,
		AgentEmail:         property.AgentEmail,
		AgentName:          property.AgentName,
		MinPrice:           property.MinPrice,
		MaxPrice:           property.MaxPrice,
		VerificationStatus: property.VerificationStatus,
	}
	err = ix.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_email"}, {Name: "property_id"}},
		DoUpdates: clause.AssignmentColumns(snapshotColumns),
	}).Create(&entry).Error
	if err != nil {
		return models.WishlistEntry{}, fmt.Errorf("save wishlist entry: %w", err)
	}
	return ix.get(ctx, userEmail, property.ID)
}

// Remove deletes the entry. A missing entry is NotFound.
func (ix *Index) Remove(ctx context.Context, claim auth.Claim, userEmail string, propertyID uint) error {
	userEmail = auth.NormalizeEmail(userEmail)
	if err := auth.Authorize(claim, auth.ManageWishlist, userEmail); err != nil {
		return err
	}
	res := ix.db.WithContext(ctx).
		Where("user_email = ? AND property_id = ?", userEmail, propertyID).
		Delete(&models.WishlistEntry{})
	if res.Error != nil {
		return fmt.Errorf("remove wishlist entry: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperror.NotFound("wishlist entry not found")
	}
	return nil
}

func (ix *Index) ListForUser(ctx context.Context, claim auth.Claim, userEmail string) ([]models.WishlistEntry, error) {
	userEmail = auth.NormalizeEmail(userEmail)
	if err := auth.Authorize(claim, auth.ManageWishlist, userEmail); err != nil {
		return nil, err
	}
	var out []models.WishlistEntry
	if err := ix.db.WithContext(ctx).Where("user_email = ?", userEmail).Order("id ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list wishlist: %w", err)
	}
	return out, nil
}

func (ix *Index) get(ctx context.Context, userEmail string, propertyID uint) (models.WishlistEntry, error) {
	var entry models.WishlistEntry
	err := ix.db.WithContext(ctx).Where("user_email = ? AND property_id = ?", userEmail, propertyID).First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.WishlistEntry{}, apperror.NotFound("wishlist entry not found")
		}
		return models.WishlistEntry{}, fmt.Errorf("get wishlist entry: %w", err)
	}
	return entry, nil
}
