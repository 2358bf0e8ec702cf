package models

import "gorm.io/gorm"

type Building struct {
	gorm.Model
	Name    string `gorm:"not null"`
	Address string
}

type Apartment struct {
	gorm.Model
	BuildingID uint   `gorm:"index;not null"`
	Number     string `gorm:"size:16;not null"`
}
