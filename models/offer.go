package models

import (
	"time"

	"gorm.io/gorm"
)

type OfferStatus string

const (
	OfferPending  OfferStatus = "pending"
	OfferAccepted OfferStatus = "accepted"
	OfferRejected OfferStatus = "rejected"
	OfferPaid     OfferStatus = "paid"
)

// ActiveOfferStatuses are the statuses of which a property may hold at most one offer.
var ActiveOfferStatuses = []OfferStatus{OfferAccepted, OfferPaid}

type Offer struct {
	gorm.Model
	PropertyID       uint        `json:"propertyId" gorm:"index;not null"`
	PropertyTitle    string      `json:"propertyTitle"`
	PropertyLocation string      `json:"propertyLocation"`
	PropertyImage    string      `json:"propertyImage"`
	AgentEmail       string      `json:"agentEmail" gorm:"index;not null"`
	AgentName        string      `json:"agentName"`
	BuyerEmail       string      `json:"buyerEmail" gorm:"index;not null"`
	BuyerName        string      `json:"buyerName"`
	OfferAmount      float64     `json:"offerAmount" gorm:"not null"`
	Status           OfferStatus `json:"status" gorm:"index;not null;default:'pending'"`
	TransactionID    string      `json:"transactionId,omitempty"`
	BuyingDate       *time.Time  `json:"buyingDate,omitempty"`
	PaidAt           *time.Time  `json:"paidAt,omitempty"`

	// Orphaned is computed on read: the referenced property no longer exists.
	Orphaned bool `json:"orphaned" gorm:"-"`
}
