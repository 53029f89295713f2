// Package users keeps the marketplace principals and their role and fraud flags.
package users

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

type Directory struct {
	db *gorm.DB
}

func NewDirectory(db *gorm.DB) *Directory {
	return &Directory{db: db}
}

// RegisterIfAbsent creates the user on first sign-in. Re-registration leaves
// the stored record, including role and fraud flag, untouched.
func (d *Directory) RegisterIfAbsent(ctx context.Context, claim auth.Claim, name, image string) (models.User, bool, error) {
	if err := auth.Authorize(claimForRegistration(claim), auth.RegisterIdentity); err != nil {
		return models.User{}, false, err
	}
	email := auth.NormalizeEmail(claim.Email)
	user := models.User{Email: email, Name: name, Image: image, Role: models.RoleUser}
	res := d.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "email"}}, DoNothing: true}).
		Create(&user)
	if res.Error != nil {
		return models.User{}, false, fmt.Errorf("register user: %w", res.Error)
	}
	created := res.RowsAffected == 1
	stored, err := d.Get(ctx, email)
	if err != nil {
		return models.User{}, false, err
	}
	return stored, created, nil
}

// claimForRegistration lets an authenticated identity that has no stored
// role yet register itself.
func claimForRegistration(claim auth.Claim) auth.Claim {
	if claim.Role == "" {
		claim.Role = models.RoleUser
	}
	return claim
}

func (d *Directory) Get(ctx context.Context, email string) (models.User, error) {
	var user models.User
	err := d.db.WithContext(ctx).Where("email = ?", auth.NormalizeEmail(email)).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.User{}, apperror.NotFound("user not found")
		}
		return models.User{}, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

func (d *Directory) GetByID(ctx context.Context, id uint) (models.User, error) {
	var user models.User
	if err := d.db.WithContext(ctx).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.User{}, apperror.NotFound("user not found")
		}
		return models.User{}, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

// Role returns the stored role for email. Unknown users are reported as NotFound.
func (d *Directory) Role(ctx context.Context, email string) (models.Role, error) {
	user, err := d.Get(ctx, email)
	if err != nil {
		return "", err
	}
	return user.Role, nil
}

// IsFraud reports the fraud flag of email; unknown users are not fraudulent.
func (d *Directory) IsFraud(ctx context.Context, email string) (bool, error) {
	user, err := d.Get(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return user.IsFraud, nil
}

func (d *Directory) SetRole(ctx context.Context, claim auth.Claim, id uint, role models.Role) (models.User, error) {
	if err := auth.Authorize(claim, auth.ManageUsers); err != nil {
		return models.User{}, err
	}
	if !role.Valid() {
		return models.User{}, apperror.InvalidInput("role must be user, agent or admin")
	}
	user, err := d.GetByID(ctx, id)
	if err != nil {
		return models.User{}, err
	}
	if err := d.db.WithContext(ctx).Model(&user).Update("role", role).Error; err != nil {
		return models.User{}, fmt.Errorf("set role: %w", err)
	}
	user.Role = role
	return user, nil
}

// SetFraud writes the flag only. Cascading effects belong to the trust package.
func (d *Directory) SetFraud(ctx context.Context, id uint, isFraud bool) (models.User, error) {
	user, err := d.GetByID(ctx, id)
	if err != nil {
		return models.User{}, err
	}
	if err := d.db.WithContext(ctx).Model(&user).Update("is_fraud", isFraud).Error; err != nil {
		return models.User{}, fmt.Errorf("set fraud flag: %w", err)
	}
	user.IsFraud = isFraud
	return user, nil
}

func (d *Directory) List(ctx context.Context, claim auth.Claim) ([]models.User, error) {
	if err := auth.Authorize(claim, auth.ManageUsers); err != nil {
		return nil, err
	}
	var out []models.User
	if err := d.db.WithContext(ctx).Order("id ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return out, nil
}

// FraudAgents lists every user currently flagged as fraudulent.
func (d *Directory) FraudAgents(ctx context.Context) ([]models.User, error) {
	var out []models.User
	if err := d.db.WithContext(ctx).Where("is_fraud = ?", true).Order("id ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list fraud users: %w", err)
	}
	return out, nil
}
