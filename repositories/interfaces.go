package repositories

import (
	"context"
	"time"

	"github.com/upb/auth-gateway/models"
)

// AuthEventRepository persists the authentication audit trail
type AuthEventRepository interface {
	// Insert stores a single event
	Insert(ctx context.Context, event *models.AuthEvent) error

	// CountByOutcome counts events per outcome since the given time
	CountByOutcome(ctx context.Context, since time.Time) (map[models.AuthOutcome]int, error)

	// DeleteOlderThan removes events recorded before cutoff and reports how many were removed
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Repositories holds all repository instances
type Repositories struct {
	AuthEvents AuthEventRepository
}
