package services

import (
	"context"
	"time"

	"portaria-backend/models"

	"gorm.io/gorm"
)

// CallStore persists call session audit records.
type CallStore interface {
	CreateCall(ctx context.Context, call *models.CallSession) error
	FinishCall(ctx context.Context, callID, status string, answeredBy *uint, endedAt time.Time, duration int) error
}

type CallRepo struct {
	db *gorm.DB
}

func NewCallRepo(db *gorm.DB) *CallRepo {
	return &CallRepo{db: db}
}

func (r *CallRepo) CreateCall(ctx context.Context, call *models.CallSession) error {
	return r.db.WithContext(ctx).Create(call).Error
}

func (r *CallRepo) FinishCall(ctx context.Context, callID, status string, answeredBy *uint, endedAt time.Time, duration int) error {
	updates := map[string]any{
		"status":   status,
		"ended_at": endedAt,
		"duration": duration,
	}
	if answeredBy != nil {
		updates["answered_by"] = *answeredBy
	}
	return r.db.WithContext(ctx).
		Model(&models.CallSession{}).
		Where("id = ?", callID).
		Updates(updates).Error
}
