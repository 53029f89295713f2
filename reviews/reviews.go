// Package reviews stores buyer reviews of listings. Reviews are append-only;
// only their author or an admin removes them.
package reviews

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"signature-elite-server/apperror"
	"signature-elite-server/auth"
	"signature-elite-server/models"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

type Properties interface {
	Get(ctx context.Context, id uint) (models.Property, error)
}

type Book struct {
	db         *gorm.DB
	properties Properties
	valid      *validator.Validate
}

func New(db *gorm.DB, properties Properties) *Book {
	return &Book{db: db, properties: properties, valid: validator.New()}
}

type AddRequest struct {
	PropertyID uint   `json:"propertyId" validate:"required"`
	Rating     int    `json:"rating" validate:"min=1,max=5"`
	Comment    string `json:"comment" validate:"max=2000"`
	UserName   string `json:"userName"`
}

func (b *Book) Add(ctx context.Context, claim auth.Claim, req AddRequest) (models.Review, error) {
	if err := b.valid.Struct(req); err != nil {
		return models.Review{}, apperror.Validation(err)
	}
	if err := auth.Authorize(claim, auth.WriteReview); err != nil {
		return models.Review{}, err
	}
	property, err := b.properties.Get(ctx, req.PropertyID)
	if err != nil {
		return models.Review{}, err
	}
	name := strings.TrimSpace(req.UserName)
	if name == "" {
		name = claim.Name
	}
	review := models.Review{
		PropertyID:    property.ID,
		PropertyTitle: property.Title,
		AgentEmail:    property.AgentEmail,
		UserEmail:     auth.NormalizeEmail(claim.Email),
		UserName:      name,
		Rating:        req.Rating,
		Comment:       strings.TrimSpace(req.Comment),
	}
	if err := b.db.WithContext(ctx).Create(&review).Error; err != nil {
		return models.Review{}, fmt.Errorf("create review: %w", err)
	}
	return review, nil
}

func (b *Book) ListForProperty(ctx context.Context, propertyID uint) ([]models.Review, error) {
	return b.list(b.db.WithContext(ctx).Where("property_id = ?", propertyID))
}

// ListByAuthor returns the reviews written by userEmail, newest first.
func (b *Book) ListByAuthor(ctx context.Context, claim auth.Claim, userEmail string) ([]models.Review, error) {
	userEmail = auth.NormalizeEmail(userEmail)
	if err := auth.Authorize(claim, auth.DeleteReview, userEmail); err != nil {
		return nil, err
	}
	return b.list(b.db.WithContext(ctx).Where("user_email = ?", userEmail))
}

func (b *Book) ListAll(ctx context.Context, claim auth.Claim) ([]models.Review, error) {
	if err := auth.Authorize(claim, auth.ListAllReviews); err != nil {
		return nil, err
	}
	return b.list(b.db.WithContext(ctx))
}

func (b *Book) Delete(ctx context.Context, claim auth.Claim, id uint) error {
	var review models.Review
	if err := b.db.WithContext(ctx).First(&review, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperror.NotFound("review not found")
		}
		return fmt.Errorf("get review: %w", err)
	}
	if err := auth.Authorize(claim, auth.DeleteReview, review.UserEmail); err != nil {
		return err
	}
	if err := b.db.WithContext(ctx).Delete(&review).Error; err != nil {
		return fmt.Errorf("delete review: %w", err)
	}
	return nil
}

func (b *Book) list(q *gorm.DB) ([]models.Review, error) {
	var out []models.Review
	if err := q.Order("id DESC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	return out, nil
}
