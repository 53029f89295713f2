package models

import "time"

// WishlistEntry keeps a display snapshot of a property. Entries are hard
// deleted so the (user_email, property_id) key can be reused.
type WishlistEntry struct {
	ID                 uint               `json:"id" gorm:"primarykey"`
	UserEmail          string             `json:"userEmail" gorm:"not null;uniqueIndex:idx_wishlist_user_property"`
	PropertyID         uint               `json:"propertyId" gorm:"not null;uniqueIndex:idx_wishlist_user_property"`
	Title              string             `json:"title"`
	Location           string             `json:"location"`
	Image              string             `json:"image"`
	AgentEmail         string             `json:"agentEmail"`
	AgentName          string             `json:"agentName"`
	MinPrice           float64            `json:"minPrice"`
	MaxPrice           float64            `json:"maxPrice"`
	VerificationStatus VerificationStatus `json:"verificationStatus"`
	CreatedAt          time.Time          `json:"createdAt"`
	UpdatedAt          time.Time          `json:"updatedAt"`
}
