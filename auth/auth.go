// Package auth holds the caller identity and the single authorization check
// every marketplace operation goes through.
//
// A rule names the roles allowed to exercise a capability and whether the
// caller must also own the target resource. Admins bypass ownership on rules
// that allow it.
package auth

import (
	"strings"

	"signature-elite-server/apperror"
	"signature-elite-server/models"
)

// Claim is an already-verified principal. The zero value is a guest.
type Claim struct {
	Email string
	Name  string
	Role  models.Role
}

func (c Claim) IsGuest() bool { return strings.TrimSpace(c.Email) == "" }
func (c Claim) IsAdmin() bool { return !c.IsGuest() && c.Role == models.RoleAdmin }

// Variant classifies a claim as guest, buyer, agent or admin.
func (c Claim) Variant() string {
	switch {
	case c.IsGuest():
		return "guest"
	case c.Role == models.RoleAdmin:
		return "admin"
	case c.Role == models.RoleAgent:
		return "agent"
	default:
		return "buyer"
	}
}

type Capability string

const (
	CreateProperty   Capability = "property.create"
	EditProperty     Capability = "property.edit"
	DeleteProperty   Capability = "property.delete"
	ReadProperty     Capability = "property.read"
	VerifyProperty   Capability = "property.verify"
	AdvertiseProp    Capability = "property.advertise"
	ListAllProps     Capability = "property.list_all"
	SubmitOffer      Capability = "offer.submit"
	DecideOffer      Capability = "offer.decide"
	PayOffer         Capability = "offer.pay"
	ReadOffer        Capability = "offer.read"
	ListBuyerOffers  Capability = "offer.list_buyer"
	ListAgentOffers  Capability = "offer.list_agent"
	ManageWishlist   Capability = "wishlist.manage"
	WriteReview      Capability = "review.write"
	DeleteReview     Capability = "review.delete"
	ListAllReviews   Capability = "review.list_all"
	ManageUsers      Capability = "user.manage"
	ReconcileFraud   Capability = "user.reconcile_fraud"
	RegisterIdentity Capability = "user.register"
)

type rule struct {
	roles []models.Role
	// owner requires the caller's email to equal the resource owner.
	owner bool
	// adminBypass lets admins skip the ownership predicate.
	adminBypass bool
}

var (
	anyone = []models.Role{models.RoleUser, models.RoleAgent, models.RoleAdmin}
	buyers = []models.Role{models.RoleUser}
	agents = []models.Role{models.RoleAgent}
	admins = []models.Role{models.RoleAdmin}
)

var rules = map[Capability]rule{
	CreateProperty:   {roles: agents},
	EditProperty:     {roles: agents, owner: true},
	DeleteProperty:   {roles: []models.Role{models.RoleAgent, models.RoleAdmin}, owner: true, adminBypass: true},
	ReadProperty:     {roles: anyone, owner: true, adminBypass: true},
	VerifyProperty:   {roles: admins},
	AdvertiseProp:    {roles: admins},
	ListAllProps:     {roles: admins},
	SubmitOffer:      {roles: buyers},
	DecideOffer:      {roles: []models.Role{models.RoleAgent, models.RoleAdmin}, owner: true, adminBypass: true},
	PayOffer:         {roles: buyers, owner: true},
	ReadOffer:        {roles: anyone, owner: true, adminBypass: true},
	ListBuyerOffers:  {roles: []models.Role{models.RoleUser, models.RoleAdmin}, owner: true, adminBypass: true},
	ListAgentOffers:  {roles: []models.Role{models.RoleAgent, models.RoleAdmin}, owner: true, adminBypass: true},
	ManageWishlist:   {roles: anyone, owner: true},
	WriteReview:      {roles: buyers},
	DeleteReview:     {roles: anyone, owner: true, adminBypass: true},
	ListAllReviews:   {roles: admins},
	ManageUsers:      {roles: admins},
	ReconcileFraud:   {roles: admins},
	RegisterIdentity: {roles: anyone},
}

// Authorize checks claim against capability. owners lists the emails that
// own the target resource; pass none for capabilities without ownership.
// Any one matching owner satisfies the predicate.
func Authorize(claim Claim, capability Capability, owners ...string) error {
	r, ok := rules[capability]
	if !ok {
		return apperror.Forbidden("unknown capability " + string(capability))
	}
	if claim.IsGuest() {
		return apperror.Forbidden("authentication required")
	}
	if !hasRole(r.roles, claim.Role) {
		return apperror.Forbidden(string(claim.Role) + " may not " + string(capability))
	}
	if !r.owner {
		return nil
	}
	if r.adminBypass && claim.IsAdmin() {
		return nil
	}
	for _, owner := range owners {
		if owner != "" && strings.EqualFold(owner, claim.Email) {
			return nil
		}
	}
	return apperror.Forbidden("caller does not own this resource")
}

func hasRole(roles []models.Role, role models.Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// NormalizeEmail is the canonical form used for every stored email key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
