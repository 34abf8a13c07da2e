package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"membership-backend/internal/logger"
	"membership-backend/internal/repository"

	_ "github.com/lib/pq"
)

//go:embed schema.sql
var schema string

type Store struct {
	db *sql.DB
	repository.MembershipRequestRepository
	repository.MemberRepository
	repository.SubscriptionRepository
	repository.NotificationRepository
	repository.ReferenceRepository
	repository.MembershipTypeRepository
	repository.GeoRepository
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		db:                          db,
		MembershipRequestRepository: NewMembershipRequestRepository(db),
		MemberRepository:            NewMemberRepository(db),
		SubscriptionRepository:      NewSubscriptionRepository(db),
		NotificationRepository:      NewNotificationRepository(db),
		ReferenceRepository:         NewReferenceRepository(db),
		MembershipTypeRepository:    NewMembershipTypeRepository(db),
		GeoRepository:               NewGeoRepository(db),
	}
}

// Migrate creates any missing tables. Statements are idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	logger.DatabaseCall("MIGRATE", "schema.sql")
	_, err := s.db.ExecContext(ctx, schema)
	logger.DatabaseResult("MIGRATE", 0, err)
	if err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func nullTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}
