package services

import (
	"context"
	"time"

	"portaria-backend/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EndpointSource resolves fan-out targets for a set of users. An empty
// tokenClass matches every class.
type EndpointSource interface {
	ListEndpoints(ctx context.Context, userIDs []uint, tokenClass string) ([]models.DeviceEndpoint, error)
}

// TokenRegistry owns the device_endpoints table. It is the only component
// that mutates cross-user shared state: a token can move from one user to
// another when a shared device changes hands, so every write here is a
// single statement at the database, never a read-modify-write.
type TokenRegistry struct {
	db *gorm.DB
}

func NewTokenRegistry(db *gorm.DB) *TokenRegistry {
	return &TokenRegistry{db: db}
}

// Register upserts an endpoint keyed by the token string. If the token is
// already owned by a different user the row is reassigned in the same
// statement, so two logins racing on the same physical device cannot end up
// both owning it.
func (r *TokenRegistry) Register(ctx context.Context, userID uint, token, platform, tokenClass, environment, endpointARN string) (*models.DeviceEndpoint, error) {
	now := time.Now()
	dev := models.DeviceEndpoint{
		UserID:       userID,
		Token:        token,
		Platform:     platform,
		TokenClass:   tokenClass,
		Environment:  environment,
		EndpointARN:  endpointARN,
		Enabled:      true,
		RegisteredAt: now,
		UpdatedAt:    now,
	}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "token"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"user_id", "platform", "token_class", "environment",
			"endpoint_arn", "enabled", "updated_at",
		}),
	}).Create(&dev).Error
	if err != nil {
		return nil, err
	}
	return &dev, nil
}

// Invalidate removes a token the transport rejected or the user logged out
// of. Unknown tokens are a no-op.
func (r *TokenRegistry) Invalidate(ctx context.Context, token string) error {
	return r.db.WithContext(ctx).
		Where("token = ?", token).
		Delete(&models.DeviceEndpoint{}).Error
}

func (r *TokenRegistry) ListEndpoints(ctx context.Context, userIDs []uint, tokenClass string) ([]models.DeviceEndpoint, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	q := r.db.WithContext(ctx).
		Where("user_id IN ? AND enabled = ?", userIDs, true)
	if tokenClass != "" {
		q = q.Where("token_class = ?", tokenClass)
	}
	var endpoints []models.DeviceEndpoint
	if err := q.Find(&endpoints).Error; err != nil {
		return nil, err
	}
	return endpoints, nil
}

// SetEnabled toggles notification delivery for all of a user's devices.
func (r *TokenRegistry) SetEnabled(ctx context.Context, userID uint, enabled bool) error {
	return r.db.WithContext(ctx).
		Model(&models.DeviceEndpoint{}).
		Where("user_id = ?", userID).
		Update("enabled", enabled).Error
}
