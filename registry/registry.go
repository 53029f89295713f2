// Package registry owns property listings and their verification and
// advertisement state.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"signature-elite-server/apperror"
	"signature-elite-server/auth"
	"signature-elite-server/models"
	"signature-elite-server/storage"

	"github.com/go-playground/validator/v10"
	"github.com/kataras/golog"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AgentLookup resolves stored users by email.
type AgentLookup interface {
	Get(ctx context.Context, email string) (models.User, error)
}

type Registry struct {
	db     *gorm.DB
	agents AgentLookup
	log    *golog.Logger
	valid  *validator.Validate
}

func New(db *gorm.DB, agents AgentLookup, logger *golog.Logger) *Registry {
	if logger == nil {
		logger = golog.Default
	}
	return &Registry{db: db, agents: agents, log: logger, valid: validator.New()}
}

type createRequest struct {
	AgentEmail string `validate:"required,email"`
	Title      string `validate:"required"`
	Location   string `validate:"required"`
}

// verificationSources lists, per target status, the states it may be reached from.
var verificationSources = map[models.VerificationStatus][]models.VerificationStatus{
	models.VerificationVerified: {models.VerificationPending, models.VerificationRejected},
	models.VerificationRejected: {models.VerificationPending},
}

func (r *Registry) Create(ctx context.Context, claim auth.Claim, in PropertyInput) (models.Property, error) {
	in = in.normalized()
	email := auth.NormalizeEmail(claim.Email)
	if email == "" {
		return models.Property{}, apperror.InvalidInput("agentEmail is required")
	}
	agent, err := r.agents.Get(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return models.Property{}, apperror.Forbidden("unknown agent")
		}
		return models.Property{}, err
	}
	if agent.Role != models.RoleAgent {
		return models.Property{}, apperror.Forbidden("only agents may list properties")
	}
	if agent.IsFraud {
		return models.Property{}, apperror.Forbidden("agent is flagged as fraud")
	}
	if err := auth.Authorize(auth.Claim{Email: email, Role: agent.Role}, auth.CreateProperty); err != nil {
		return models.Property{}, err
	}
	req := createRequest{AgentEmail: email, Title: in.Title, Location: in.Location}
	if err := r.valid.Struct(req); err != nil {
		return models.Property{}, apperror.Validation(err)
	}
	if err := checkPriceRange(in); err != nil {
		return models.Property{}, err
	}

	facilities, err := encodeFacilities(in.Facilities)
	if err != nil {
		return models.Property{}, err
	}
	property := models.Property{
		AgentEmail:         email,
		AgentName:          agent.Name,
		Title:              in.Title,
		Location:           in.Location,
		Description:        in.Description,
		Image:              in.Image,
		MinPrice:           float64(in.MinPrice),
		MaxPrice:           float64(in.MaxPrice),
		Bedrooms:           int(in.Bedrooms),
		Bathrooms:          int(in.Bathrooms),
		Facilities:         facilities,
		VerificationStatus: models.VerificationPending,
		Advertised:         false,
	}
	if err := r.db.WithContext(ctx).Create(&property).Error; err != nil {
		return models.Property{}, fmt.Errorf("create property: %w", err)
	}
	return property, nil
}

// Get loads a property regardless of its verification state.
func (r *Registry) Get(ctx context.Context, id uint) (models.Property, error) {
	var property models.Property
	if err := r.db.WithContext(ctx).First(&property, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Property{}, apperror.NotFound("property not found")
		}
		return models.Property{}, fmt.Errorf("get property: %w", err)
	}
	return property, nil
}

// View returns a property to claim. Unverified listings are visible only to
// their agent and to admins; everyone else gets NotFound.
func (r *Registry) View(ctx context.Context, claim auth.Claim, id uint) (models.Property, error) {
	property, err := r.Get(ctx, id)
	if err != nil {
		return models.Property{}, err
	}
	if property.VerificationStatus == models.VerificationVerified {
		return property, nil
	}
	if err := auth.Authorize(claim, auth.ReadProperty, property.AgentEmail); err != nil {
		return models.Property{}, apperror.NotFound("property not found")
	}
	return property, nil
}

// Update rewrites the listing fields. Text fields left blank keep their
// stored value; numeric fields are always written, missing ones as zero.
func (r *Registry) Update(ctx context.Context, claim auth.Claim, id uint, in PropertyInput) (models.Property, error) {
	property, err := r.Get(ctx, id)
	if err != nil {
		return models.Property{}, err
	}
	if err := auth.Authorize(claim, auth.EditProperty, property.AgentEmail); err != nil {
		return models.Property{}, err
	}
	in = in.normalized()
	if err := checkPriceRange(in); err != nil {
		return models.Property{}, err
	}
	facilities, err := encodeFacilities(in.Facilities)
	if err != nil {
		return models.Property{}, err
	}

	updates := map[string]interface{}{
		"min_price":  float64(in.MinPrice),
		"max_price":  float64(in.MaxPrice),
		"bedrooms":   int(in.Bedrooms),
		"bathrooms":  int(in.Bathrooms),
		"facilities": facilities,
	}
	if in.Title != "" {
		updates["title"] = in.Title
	}
	if in.Location != "" {
		updates["location"] = in.Location
	}
	if in.Description != "" {
		updates["description"] = in.Description
	}
	if in.Image != "" {
		updates["image"] = in.Image
	}
	res := r.db.WithContext(ctx).Model(&models.Property{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return models.Property{}, fmt.Errorf("update property: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return models.Property{}, apperror.NotFound("property not found")
	}
	return r.Get(ctx, id)
}

// SetVerification moves a listing to verified or rejected. Verified listings
// never leave that state through this call.
func (r *Registry) SetVerification(ctx context.Context, claim auth.Claim, id uint, status models.VerificationStatus) (models.Property, error) {
	if err := auth.Authorize(claim, auth.VerifyProperty); err != nil {
		return models.Property{}, err
	}
	sources, ok := verificationSources[status]
	if !ok {
		return models.Property{}, apperror.InvalidInput("status must be verified or rejected")
	}
	res := r.db.WithContext(ctx).Model(&models.Property{}).
		Where("id = ? AND verification_status IN ?", id, sources).
		Update("verification_status", status)
	if res.Error != nil {
		return models.Property{}, fmt.Errorf("set verification: %w", res.Error)
	}
	property, err := r.Get(ctx, id)
	if err != nil {
		return models.Property{}, err
	}
	if res.RowsAffected == 0 {
		return models.Property{}, apperror.Conflict(fmt.Sprintf("cannot move property from %s to %s", property.VerificationStatus, status))
	}
	return property, nil
}

// SetAdvertised marks a verified listing as advertised. Repeating the call is a no-op.
func (r *Registry) SetAdvertised(ctx context.Context, claim auth.Claim, id uint) (models.Property, error) {
	if err := auth.Authorize(claim, auth.AdvertiseProp); err != nil {
		return models.Property{}, err
	}
	property, err := r.Get(ctx, id)
	if err != nil {
		return models.Property{}, err
	}
	if err := r.ensureAgentInGoodStanding(ctx, property.AgentEmail); err != nil {
		return models.Property{}, err
	}
	if property.Advertised {
		return property, nil
	}
	res := r.db.WithContext(ctx).Model(&models.Property{}).
		Where("id = ? AND verification_status = ?", id, models.VerificationVerified).
		Update("advertised", true)
	if res.Error != nil {
		return models.Property{}, fmt.Errorf("set advertised: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return models.Property{}, apperror.Conflict("only verified properties can be advertised")
	}
	property.Advertised = true
	return property, nil
}

// SetImage stores a hosted image URL on a listing owned by claim.
func (r *Registry) SetImage(ctx context.Context, claim auth.Claim, id uint, url string) (models.Property, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return models.Property{}, apperror.InvalidInput("image url is required")
	}
	property, err := r.Get(ctx, id)
	if err != nil {
		return models.Property{}, err
	}
	if err := auth.Authorize(claim, auth.EditProperty, property.AgentEmail); err != nil {
		return models.Property{}, err
	}
	if err := r.db.WithContext(ctx).Model(&property).Update("image", url).Error; err != nil {
		return models.Property{}, fmt.Errorf("set image: %w", err)
	}
	property.Image = url
	return property, nil
}

// ListPublic returns verified listings only. Search matches location as a
// case-insensitive substring; ties in price keep insertion order.
//
// Postgres folds case with ILIKE. Other dialects apply LOWER to both sides,
// which on SQLite folds ASCII letters only.
func (r *Registry) ListPublic(ctx context.Context, filter Filter) ([]models.Property, error) {
	q := r.db.WithContext(ctx).Where("verification_status = ?", models.VerificationVerified)
	if search := strings.TrimSpace(filter.SearchText); search != "" {
		pattern := "%" + storage.EscapeLike(search) + "%"
		if r.db.Dialector.Name() == "postgres" {
			q = q.Where(`location ILIKE ? ESCAPE '\'`, pattern)
		} else {
			q = q.Where(`LOWER(location) LIKE LOWER(?) ESCAPE '\'`, pattern)
		}
	}
	switch filter.Sort {
	case SortAscending:
		q = q.Order("min_price ASC").Order("id ASC")
	case SortDescending:
		q = q.Order("min_price DESC").Order("id ASC")
	default:
		q = q.Order("id ASC")
	}
	var out []models.Property
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list properties: %w", err)
	}
	return out, nil
}

func (r *Registry) ListAdvertised(ctx context.Context) ([]models.Property, error) {
	var out []models.Property
	err := r.db.WithContext(ctx).
		Where("verification_status = ? AND advertised = ?", models.VerificationVerified, true).
		Order("id ASC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list advertised properties: %w", err)
	}
	return out, nil
}

// ListByAgent returns every listing of the calling agent in any state.
func (r *Registry) ListByAgent(ctx context.Context, claim auth.Claim) ([]models.Property, error) {
	if err := auth.Authorize(claim, auth.CreateProperty); err != nil {
		return nil, err
	}
	var out []models.Property
	err := r.db.WithContext(ctx).Where("agent_email = ?", auth.NormalizeEmail(claim.Email)).Order("id ASC").Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list agent properties: %w", err)
	}
	return out, nil
}

func (r *Registry) ListAll(ctx context.Context, claim auth.Claim) ([]models.Property, error) {
	if err := auth.Authorize(claim, auth.ListAllProps); err != nil {
		return nil, err
	}
	var out []models.Property
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list all properties: %w", err)
	}
	return out, nil
}

func (r *Registry) Delete(ctx context.Context, claim auth.Claim, id uint) error {
	property, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := auth.Authorize(claim, auth.DeleteProperty, property.AgentEmail); err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Delete(&property).Error; err != nil {
		return fmt.Errorf("delete property: %w", err)
	}
	return nil
}

// DeleteAllByAgent removes every listing of agentEmail. It performs no
// ownership check and is reserved for the fraud cascade.
func (r *Registry) DeleteAllByAgent(ctx context.Context, agentEmail string) (int64, error) {
	email := auth.NormalizeEmail(agentEmail)
	if email == "" {
		return 0, apperror.InvalidInput("agent email is required")
	}
	res := r.db.WithContext(ctx).Where("agent_email = ?", email).Delete(&models.Property{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete properties of %s: %w", email, res.Error)
	}
	if res.RowsAffected > 0 {
		r.log.Infof("registry: removed %d listings of %s", res.RowsAffected, email)
	}
	return res.RowsAffected, nil
}

func (r *Registry) CountByAgent(ctx context.Context, agentEmail string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Property{}).Where("agent_email = ?", auth.NormalizeEmail(agentEmail)).Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count agent properties: %w", err)
	}
	return n, nil
}

// ExistingIDs reports which of ids still name a live listing.
func (r *Registry) ExistingIDs(ctx context.Context, ids []uint) (map[uint]bool, error) {
	out := make(map[uint]bool, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var found []uint
	if err := r.db.WithContext(ctx).Model(&models.Property{}).Where("id IN ?", ids).Pluck("id", &found).Error; err != nil {
		return nil, fmt.Errorf("lookup properties: %w", err)
	}
	for _, id := range found {
		out[id] = true
	}
	return out, nil
}

func (r *Registry) ensureAgentInGoodStanding(ctx context.Context, email string) error {
	agent, err := r.agents.Get(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil
		}
		return err
	}
	if agent.IsFraud {
		return apperror.Forbidden("agent is flagged as fraud")
	}
	return nil
}

func checkPriceRange(in PropertyInput) error {
	if in.MinPrice < 0 || in.MaxPrice < 0 {
		return apperror.InvalidInput("prices must not be negative")
	}
	if in.MaxPrice > 0 && in.MaxPrice < in.MinPrice {
		return apperror.InvalidInput("maxPrice must not be below minPrice")
	}
	return nil
}

func encodeFacilities(f Facilities) (datatypes.JSON, error) {
	if f == nil {
		f = Facilities{}
	}
	b, err := json.Marshal([]string(f))
	if err != nil {
		return nil, fmt.Errorf("encode facilities: %w", err)
	}
	return datatypes.JSON(b), nil
}
