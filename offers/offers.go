// Package offers runs the purchase offer lifecycle:
//
//	pending -> accepted -> paid
//	pending -> rejected
//
// A property holds at most one accepted or paid offer. Accepting serializes
// on the property key, applies a conditional update that only succeeds while
// no sibling is active, and the database backs both with a partial unique
// index. Accepting also rejects every still-pending sibling.
package offers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"signature-elite-server/apperror"
	"signature-elite-server/auth"
	"signature-elite-server/keylock"
	"signature-elite-server/models"
	"signature-elite-server/payment"
	"signature-elite-server/storage"

	"github.com/go-playground/validator/v10"
	"github.com/kataras/golog"
	"gorm.io/gorm"
)

// Properties is the read-only view of the registry the ledger needs.
type Properties interface {
	Get(ctx context.Context, id uint) (models.Property, error)
	ExistingIDs(ctx context.Context, ids []uint) (map[uint]bool, error)
}

type FraudLookup interface {
	IsFraud(ctx context.Context, email string) (bool, error)
}

type Payments interface {
	CreateIntent(ctx context.Context, amount float64, metadata map[string]string) (payment.Intent, error)
}

type Ledger struct {
	db         *gorm.DB
	properties Properties
	fraud      FraudLookup
	payments   Payments
	locks      keylock.Locker
	log        *golog.Logger
	valid      *validator.Validate
	now        func() time.Time
}

func NewLedger(db *gorm.DB, properties Properties, fraud FraudLookup, payments Payments, locks keylock.Locker, logger *golog.Logger) *Ledger {
	if locks == nil {
		locks = keylock.NewLocal()
	}
	if logger == nil {
		logger = golog.Default
	}
	return &Ledger{
		db:         db,
		properties: properties,
		fraud:      fraud,
		payments:   payments,
		locks:      locks,
		log:        logger,
		valid:      validator.New(),
		now:        time.Now,
	}
}

type SubmitRequest struct {
	PropertyID  uint       `json:"propertyId" validate:"required"`
	OfferAmount float64    `json:"offerAmount" validate:"required,gt=0"`
	BuyerName   string     `json:"buyerName"`
	BuyingDate  *time.Time `json:"buyingDate"`
}

// Submit records a pending offer from the calling buyer on a verified
// property whose agent is in good standing.
func (l *Ledger) Submit(ctx context.Context, claim auth.Claim, req SubmitRequest) (models.Offer, error) {
	buyer := auth.NormalizeEmail(claim.Email)
	if buyer == "" {
		return models.Offer{}, apperror.InvalidInput("buyerEmail is required")
	}
	if err := l.valid.Struct(req); err != nil {
		return models.Offer{}, apperror.Validation(err)
	}
	if err := auth.Authorize(claim, auth.SubmitOffer); err != nil {
		return models.Offer{}, err
	}
	property, err := l.properties.Get(ctx, req.PropertyID)
	if err != nil {
		return models.Offer{}, err
	}
	if err := l.ensureAgentInGoodStanding(ctx, property.AgentEmail); err != nil {
		return models.Offer{}, err
	}
	if property.VerificationStatus != models.VerificationVerified {
		return models.Offer{}, apperror.Forbidden("property is not verified")
	}

	name := strings.TrimSpace(req.BuyerName)
	if name == "" {
		name = claim.Name
	}
	offer := models.Offer{
		PropertyID:       property.ID,
		PropertyTitle:    property.Title,
		PropertyLocation: property.Location,
		PropertyImage:    property.Image,
		AgentEmail:       property.AgentEmail,
		AgentName:        property.AgentName,
		BuyerEmail:       buyer,
		BuyerName:        name,
		OfferAmount:      req.OfferAmount,
		Status:           models.OfferPending,
		BuyingDate:       req.BuyingDate,
	}
	if err := l.db.WithContext(ctx).Create(&offer).Error; err != nil {
		return models.Offer{}, fmt.Errorf("create offer: %w", err)
	}
	return offer, nil
}

// Decide accepts or rejects a pending offer on behalf of the property's agent.
func (l *Ledger) Decide(ctx context.Context, claim auth.Claim, offerID uint, decision models.OfferStatus) (models.Offer, error) {
	if decision != models.OfferAccepted && decision != models.OfferRejected {
		return models.Offer{}, apperror.InvalidInput("decision must be accepted or rejected")
	}
	offer, err := l.get(ctx, offerID)
	if err != nil {
		return models.Offer{}, err
	}
	if err := auth.Authorize(claim, auth.DecideOffer, offer.AgentEmail); err != nil {
		return models.Offer{}, err
	}

	unlock, err := l.locks.Lock(ctx, propertyKey(offer.PropertyID))
	if err != nil {
		return models.Offer{}, apperror.Wrap(apperror.CodeUnavailable, "property is busy, retry", err)
	}
	defer unlock()

	if decision == models.OfferRejected {
		return l.reject(ctx, offer)
	}
	return l.accept(ctx, offer)
}

func (l *Ledger) reject(ctx context.Context, offer models.Offer) (models.Offer, error) {
	res := l.db.WithContext(ctx).Model(&models.Offer{}).
		Where("id = ? AND status = ?", offer.ID, models.OfferPending).
		Update("status", models.OfferRejected)
	if res.Error != nil {
		return models.Offer{}, fmt.Errorf("reject offer: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return models.Offer{}, l.transitionConflict(ctx, offer.ID, models.OfferRejected)
	}
	return l.get(ctx, offer.ID)
}

func (l *Ledger) accept(ctx context.Context, offer models.Offer) (models.Offer, error) {
	property, err := l.properties.Get(ctx, offer.PropertyID)
	if err != nil {
		return models.Offer{}, err
	}
	if err := l.ensureAgentInGoodStanding(ctx, property.AgentEmail); err != nil {
		return models.Offer{}, err
	}

	db := l.db.WithContext(ctx)
	activeSibling := db.Table("offers AS siblings").Select("1").
		Where("siblings.property_id = offers.property_id").
		Where("siblings.status IN ?", models.ActiveOfferStatuses).
		Where("siblings.deleted_at IS NULL")
	res := db.Model(&models.Offer{}).
		Where("id = ? AND status = ?", offer.ID, models.OfferPending).
		Where("NOT EXISTS (?)", activeSibling).
		Update("status", models.OfferAccepted)
	if res.Error != nil {
		if storage.IsUniqueViolation(res.Error) {
			return models.Offer{}, apperror.Conflict("property already has an accepted offer")
		}
		return models.Offer{}, fmt.Errorf("accept offer: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return models.Offer{}, l.transitionConflict(ctx, offer.ID, models.OfferAccepted)
	}

	rejected := db.Model(&models.Offer{}).
		Where("property_id = ? AND id <> ? AND status = ?", offer.PropertyID, offer.ID, models.OfferPending).
		Update("status", models.OfferRejected)
	if rejected.Error != nil {
		// The accepted offer already blocks any sibling from being accepted.
		l.log.Warnf("offers: accepted offer %d but rejecting pending siblings on property %d failed: %v",
			offer.ID, offer.PropertyID, rejected.Error)
	} else if rejected.RowsAffected > 0 {
		l.log.Debugf("offers: accepting %d rejected %d sibling offers", offer.ID, rejected.RowsAffected)
	}
	return l.get(ctx, offer.ID)
}

func (l *Ledger) transitionConflict(ctx context.Context, offerID uint, target models.OfferStatus) error {
	current, err := l.get(ctx, offerID)
	if err != nil {
		return err
	}
	if current.Status != models.OfferPending {
		return apperror.Conflict(fmt.Sprintf("offer is %s, cannot become %s", current.Status, target))
	}
	return apperror.Conflict("property already has an accepted offer")
}

// RequestPayment obtains a payment handle for the buyer's accepted offer.
// A zero amount charges the offer amount; any other amount must equal it.
// The offer state is not changed.
func (l *Ledger) RequestPayment(ctx context.Context, claim auth.Claim, offerID uint, amount float64) (payment.Intent, error) {
	offer, err := l.get(ctx, offerID)
	if err != nil {
		return payment.Intent{}, err
	}
	if err := auth.Authorize(claim, auth.PayOffer, offer.BuyerEmail); err != nil {
		return payment.Intent{}, err
	}
	if offer.Status != models.OfferAccepted {
		return payment.Intent{}, apperror.Conflict(fmt.Sprintf("offer is %s, payment requires accepted", offer.Status))
	}
	if amount == 0 {
		amount = offer.OfferAmount
	}
	if payment.ToMinorUnits(amount) != payment.ToMinorUnits(offer.OfferAmount) {
		return payment.Intent{}, apperror.InvalidInput(fmt.Sprintf("amount %.2f does not match the offer amount %.2f", amount, offer.OfferAmount))
	}
	return l.payments.CreateIntent(ctx, amount, map[string]string{
		payment.MetadataOfferID: strconv.FormatUint(uint64(offer.ID), 10),
	})
}

// ConfirmPayment marks an accepted offer paid under transactionID. Repeating
// the call with the same id is a no-op; a different id is a Conflict.
func (l *Ledger) ConfirmPayment(ctx context.Context, offerID uint, transactionID string) (models.Offer, error) {
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return models.Offer{}, apperror.InvalidInput("transactionId is required")
	}
	paidAt := l.now().UTC()
	res := l.db.WithContext(ctx).Model(&models.Offer{}).
		Where("id = ? AND status = ?", offerID, models.OfferAccepted).
		Updates(map[string]interface{}{
			"status":         models.OfferPaid,
			"transaction_id": transactionID,
			"paid_at":        paidAt,
		})
	if res.Error != nil {
		return models.Offer{}, fmt.Errorf("confirm payment: %w", res.Error)
	}
	offer, err := l.get(ctx, offerID)
	if err != nil {
		return models.Offer{}, err
	}
	if res.RowsAffected == 1 {
		l.log.Infof("offers: offer %d paid with transaction %s", offerID, transactionID)
		return offer, nil
	}
	if offer.Status == models.OfferPaid {
		if offer.TransactionID == transactionID {
			return offer, nil
		}
		return models.Offer{}, apperror.Conflict("offer already paid under a different transaction")
	}
	return models.Offer{}, apperror.Conflict(fmt.Sprintf("offer is %s, payment requires accepted", offer.Status))
}

// ConfirmCharge is ConfirmPayment for a charge reported by the gateway. The
// charged amount, in minor units, must cover the offer amount exactly.
func (l *Ledger) ConfirmCharge(ctx context.Context, offerID uint, transactionID string, amountMinor int64) (models.Offer, error) {
	offer, err := l.get(ctx, offerID)
	if err != nil {
		return models.Offer{}, err
	}
	if want := payment.ToMinorUnits(offer.OfferAmount); amountMinor != want {
		return models.Offer{}, apperror.Conflict(fmt.Sprintf("charged %d minor units, offer requires %d", amountMinor, want))
	}
	return l.ConfirmPayment(ctx, offerID, transactionID)
}

// ConfirmPaymentAs is ConfirmPayment restricted to the offer's buyer.
func (l *Ledger) ConfirmPaymentAs(ctx context.Context, claim auth.Claim, offerID uint, transactionID string) (models.Offer, error) {
	offer, err := l.get(ctx, offerID)
	if err != nil {
		return models.Offer{}, err
	}
	if err := auth.Authorize(claim, auth.PayOffer, offer.BuyerEmail); err != nil {
		return models.Offer{}, err
	}
	return l.ConfirmPayment(ctx, offerID, transactionID)
}

func (l *Ledger) Get(ctx context.Context, claim auth.Claim, offerID uint) (models.Offer, error) {
	offer, err := l.get(ctx, offerID)
	if err != nil {
		return models.Offer{}, err
	}
	if err := auth.Authorize(claim, auth.ReadOffer, offer.BuyerEmail, offer.AgentEmail); err != nil {
		return models.Offer{}, err
	}
	out := []models.Offer{offer}
	if err := l.markOrphans(ctx, out); err != nil {
		return models.Offer{}, err
	}
	return out[0], nil
}

func (l *Ledger) ListForBuyer(ctx context.Context, claim auth.Claim, buyerEmail string) ([]models.Offer, error) {
	buyerEmail = auth.NormalizeEmail(buyerEmail)
	if err := auth.Authorize(claim, auth.ListBuyerOffers, buyerEmail); err != nil {
		return nil, err
	}
	return l.list(ctx, "buyer_email = ?", buyerEmail)
}

func (l *Ledger) ListForAgent(ctx context.Context, claim auth.Claim, agentEmail string) ([]models.Offer, error) {
	agentEmail = auth.NormalizeEmail(agentEmail)
	if err := auth.Authorize(claim, auth.ListAgentOffers, agentEmail); err != nil {
		return nil, err
	}
	return l.list(ctx, "agent_email = ?", agentEmail)
}

func (l *Ledger) list(ctx context.Context, where string, arg interface{}) ([]models.Offer, error) {
	var out []models.Offer
	if err := l.db.WithContext(ctx).Where(where, arg).Order("id ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list offers: %w", err)
	}
	if err := l.markOrphans(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

// markOrphans flags offers whose property has since been removed.
func (l *Ledger) markOrphans(ctx context.Context, offers []models.Offer) error {
	if len(offers) == 0 {
		return nil
	}
	ids := make([]uint, 0, len(offers))
	for _, o := range offers {
		ids = append(ids, o.PropertyID)
	}
	existing, err := l.properties.ExistingIDs(ctx, ids)
	if err != nil {
		return err
	}
	for i := range offers {
		offers[i].Orphaned = !existing[offers[i].PropertyID]
	}
	return nil
}

func (l *Ledger) get(ctx context.Context, offerID uint) (models.Offer, error) {
	var offer models.Offer
	if err := l.db.WithContext(ctx).First(&offer, offerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Offer{}, apperror.NotFound("offer not found")
		}
		return models.Offer{}, fmt.Errorf("get offer: %w", err)
	}
	return offer, nil
}

func (l *Ledger) ensureAgentInGoodStanding(ctx context.Context, agentEmail string) error {
	fraud, err := l.fraud.IsFraud(ctx, agentEmail)
	if err != nil {
		return err
	}
	if fraud {
		return apperror.Forbidden("listing agent is flagged as fraud")
	}
	return nil
}

func propertyKey(id uint) string {
	return "property:" + strconv.FormatUint(uint64(id), 10)
}
