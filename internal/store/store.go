package store

import (
	"context"

	"github.com/me/hibernate/pkg/model"
)

// Store defines the persistence layer for Hibernate entities.
//
// The engine only consumes the read surface (ListActiveSchedules,
// GetActiveRoleBinding); everything else serves the API layer.
type Store interface {
	// Users
	CreateUser(ctx context.Context, u *model.User) error
	GetUser(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)

	// Role bindings
	ReplaceRoleBinding(ctx context.Context, rb *model.RoleBinding) error
	GetActiveRoleBinding(ctx context.Context, userID string) (*model.RoleBinding, error)

	// Schedules
	CreateSchedule(ctx context.Context, s *model.Schedule) error
	GetSchedule(ctx context.Context, id string) (*model.Schedule, error)
	ListSchedulesByUser(ctx context.Context, userID string) ([]*model.Schedule, error)
	ListActiveSchedules(ctx context.Context) ([]*model.Schedule, error)
	SetScheduleActive(ctx context.Context, id, userID string, active bool) (bool, error)
	DeleteSchedule(ctx context.Context, id, userID string) (bool, error)

	// Sessions
	CreateSession(ctx context.Context, sess *model.Session) error
	GetSessionByToken(ctx context.Context, token string) (*model.Session, error)
	DeleteSessionByToken(ctx context.Context, token string) error
	DeleteExpiredSessions(ctx context.Context) (int64, error)

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}
