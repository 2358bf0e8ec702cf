package models

import (
	"gorm.io/gorm"
)

const (
	RoleResident = "resident"
	RoleDoorman  = "doorman"
	RoleAdmin    = "admin"
)

type User struct {
	gorm.Model
	Email       string `gorm:"uniqueIndex;not null"`
	Password    string `gorm:"not null"`
	FullName    string
	Phone       string `gorm:"size:32"`
	Role        string `gorm:"size:16;default:resident"`
	BuildingID  uint   `gorm:"index"`
	ApartmentID uint   `gorm:"index"`
	Disabled    bool   `gorm:"default:false"`
}
