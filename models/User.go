package models

import (
	"gorm.io/gorm"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
	RoleAdmin Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAgent, RoleAdmin:
		return true
	}
	return false
}

type User struct {
	gorm.Model
	Email   string `json:"email" gorm:"uniqueIndex;not null"`
	Name    string `json:"name"`
	Image   string `json:"image"`
	Role    Role   `json:"role" gorm:"not null;default:'user'"`
	IsFraud bool   `json:"isFraud" gorm:"not null;default:false"`
}
