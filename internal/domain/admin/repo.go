package admin

import (
	"context"

	"github.com/google/uuid"
)

// AdminRepository defines the persistence interface for admins.
type AdminRepository interface {
	Create(ctx context.Context, a *Admin) error
	GetByID(ctx context.Context, id uuid.UUID) (*Admin, error)
	GetByUsername(ctx context.Context, username string) (*Admin, error)
	TouchLastLogin(ctx context.Context, id uuid.UUID) error
}

// ActivityRepository defines the persistence interface for the activity log.
type ActivityRepository interface {
	Record(ctx context.Context, a *Activity) error
	List(ctx context.Context, adminID *uuid.UUID, limit, offset int) ([]*Activity, int, error)
}
