// Package memory holds in-process implementations of the repository ports,
// used by tests and by single-instance development runs.
package memory

import (
	"membership-backend/internal/repository"
)

type Store struct {
	repository.MembershipRequestRepository
	repository.MemberRepository
	repository.SubscriptionRepository
	repository.NotificationRepository
	repository.ReferenceRepository
	repository.MembershipTypeRepository
	repository.GeoRepository
}

func NewStore() *Store {
	return &Store{
		MembershipRequestRepository: NewMembershipRequestRepository(),
		MemberRepository:            NewMemberRepository(),
		SubscriptionRepository:      NewSubscriptionRepository(),
		NotificationRepository:      NewNotificationRepository(),
		ReferenceRepository:         NewReferenceRepository(),
		MembershipTypeRepository:    NewMembershipTypeRepository(),
		GeoRepository:               NewGeoRepository(),
	}
}
