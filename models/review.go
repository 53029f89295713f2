package models

import "gorm.io/gorm"

type Review struct {
	gorm.Model
	PropertyID    uint   `json:"propertyId" gorm:"index;not null"`
	PropertyTitle string `json:"propertyTitle"`
	AgentEmail    string `json:"agentEmail"`
	UserEmail     string `json:"userEmail" gorm:"index;not null"`
	UserName      string `json:"userName"`
	Rating        int    `json:"rating" gorm:"not null;check:rating >= 1 AND rating <= 5"`
	Comment       string `json:"comment" gorm:"type:text"`
}
