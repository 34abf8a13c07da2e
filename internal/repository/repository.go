package repository

import (
	"context"

	"membership-backend/internal/domain"
)

// MembershipRequestRepository is the single source of truth for request
// aggregates. Update and Delete are conditioned on the version last read and
// fail with domain.ErrConflict when it changed.
type MembershipRequestRepository interface {
	Create(ctx context.Context, req *domain.MembershipRequest) error
	GetByID(ctx context.Context, id string) (*domain.MembershipRequest, error)
	GetByMatricule(ctx context.Context, matricule string) (*domain.MembershipRequest, error)
	Update(ctx context.Context, req *domain.MembershipRequest, expectedVersion int64) error
	Delete(ctx context.Context, id string, expectedVersion int64) error
	List(ctx context.Context, filter domain.RequestFilter) ([]domain.MembershipRequest, int32, error)
	ListApprovedWithoutCredentials(ctx context.Context, limit int32) ([]domain.MembershipRequest, error)
	CountByStatus(ctx context.Context) (map[domain.RequestStatus]int32, error)
	NextMemberNumber(ctx context.Context) (int64, error)
}

type MemberRepository interface {
	Create(ctx context.Context, account *domain.MemberAccount) error
	GetByRequestID(ctx context.Context, requestID string) (*domain.MemberAccount, error)
	Delete(ctx context.Context, id string) error
}

type SubscriptionRepository interface {
	Create(ctx context.Context, sub *domain.Subscription) error
	GetByRequestID(ctx context.Context, requestID string) (*domain.Subscription, error)
	Delete(ctx context.Context, id string) error
}

type NotificationRepository interface {
	Create(ctx context.Context, note *domain.Notification) error
	List(ctx context.Context, memberID string, limit, offset int32) ([]domain.Notification, int32, error)
	MarkAsRead(ctx context.Context, id, memberID string) error
	ExistsForRequest(ctx context.Context, memberID, requestID string) (bool, error)
}

type ReferenceRepository interface {
	// Ensure returns the entity with the given name, creating it if unknown.
	Ensure(ctx context.Context, kind domain.ReferenceKind, name string) (*domain.ReferenceEntity, error)
}

type MembershipTypeRepository interface {
	GetByID(ctx context.Context, id string) (*domain.MembershipType, error)
	List(ctx context.Context) ([]domain.MembershipType, error)
}

type GeoRepository interface {
	ListChildren(ctx context.Context, level domain.GeoLevel, parentID string) ([]domain.GeoEntry, error)
}
