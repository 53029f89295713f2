package models

import (
	"encoding/json"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationVerified VerificationStatus = "verified"
	VerificationRejected VerificationStatus = "rejected"
)

type Property struct {
	gorm.Model
	AgentEmail         string             `json:"agentEmail" gorm:"index;not null"`
	AgentName          string             `json:"agentName"`
	Title              string             `json:"title" gorm:"not null"`
	Location           string             `json:"location" gorm:"not null"`
	Description        string             `json:"description" gorm:"type:text"`
	Image              string             `json:"image"`
	MinPrice           float64            `json:"minPrice"`
	MaxPrice           float64            `json:"maxPrice"`
	Bedrooms           int                `json:"bedrooms"`
	Bathrooms          int                `json:"bathrooms"`
	Facilities         datatypes.JSON     `json:"facilities"`
	VerificationStatus VerificationStatus `json:"verificationStatus" gorm:"index;not null;default:'pending'"`
	Advertised         bool               `json:"advertised" gorm:"not null;default:false"`
}

// FacilityList decodes the stored facilities column.
func (p Property) FacilityList() []string {
	var out []string
	if len(p.Facilities) == 0 {
		return out
	}
	if err := json.Unmarshal(p.Facilities, &out); err != nil {
		return nil
	}
	return out
}
