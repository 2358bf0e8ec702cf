package services

import (
	"context"
	"errors"

	"portaria-backend/models"
	"portaria-backend/utils"

	"gorm.io/gorm"
)

type AuthService struct {
	db *gorm.DB
}

func NewAuthService(db *gorm.DB) *AuthService {
	return &AuthService{db: db}
}

func (s *AuthService) RegisterUser(ctx context.Context, email, password, fullName, phone, role string, buildingID, apartmentID uint) error {
	hashed, err := utils.HashPassword(password)
	if err != nil {
		return err
	}

	user := models.User{
		Email:       email,
		Password:    hashed,
		FullName:    fullName,
		Phone:       phone,
		Role:        role,
		BuildingID:  buildingID,
		ApartmentID: apartmentID,
	}
	return s.db.WithContext(ctx).Create(&user).Error
}

func (s *AuthService) Authenticate(ctx context.Context, email, password string) (*models.User, string, error) {
	var user models.User
	result := s.db.WithContext(ctx).Where("email = ? AND disabled = ?", email, false).First(&user)
	if result.Error != nil {
		return nil, "", errors.New("user not found or disabled")
	}

	if !utils.CheckPasswordHash(password, user.Password) {
		return nil, "", errors.New("incorrect password")
	}

	token, err := utils.GenerateJWT(user.ID, user.Role)
	if err != nil {
		return nil, "", err
	}
	return &user, token, nil
}
