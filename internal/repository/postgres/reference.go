package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/google/uuid"

	"membership-backend/internal/domain"
	"membership-backend/internal/logger"
	"membership-backend/internal/repository"
)

type referenceRepository struct {
	db *sql.DB
}

func NewReferenceRepository(db *sql.DB) repository.ReferenceRepository {
	return &referenceRepository{db: db}
}

// Ensure inserts the entity if its normalized name is unknown and returns
// whichever row owns that name afterwards.
func (r *referenceRepository) Ensure(ctx context.Context, kind domain.ReferenceKind, name string) (*domain.ReferenceEntity, error) {
	name = strings.TrimSpace(name)
	key := strings.ToLower(name)
	if key == "" {
		return nil, domain.NewValidationError(string(kind), "name is required")
	}

	query := `INSERT INTO reference_entities (id, kind, name, name_key) VALUES ($1, $2, $3, $4)
	          ON CONFLICT (kind, name_key) DO UPDATE SET name_key = EXCLUDED.name_key
	          RETURNING id, name`
	logger.DatabaseCall("UPSERT", "reference_entities", "kind", kind, "name", name)
	e := &domain.ReferenceEntity{Kind: kind}
	err := r.db.QueryRowContext(ctx, query, uuid.NewString(), kind, name, key).Scan(&e.ID, &e.Name)
	logger.DatabaseResult("UPSERT", 1, err, "kind", kind)
	if err != nil {
		return nil, err
	}
	return e, nil
}

type membershipTypeRepository struct {
	db *sql.DB
}

func NewMembershipTypeRepository(db *sql.DB) repository.MembershipTypeRepository {
	return &membershipTypeRepository{db: db}
}

func (r *membershipTypeRepository) GetByID(ctx context.Context, id string) (*domain.MembershipType, error) {
	t := &domain.MembershipType{}
	query := `SELECT id, name, fee, duration_months, active FROM membership_types WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).Scan(&t.ID, &t.Name, &t.Fee, &t.DurationMonths, &t.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (r *membershipTypeRepository) List(ctx context.Context) ([]domain.MembershipType, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, fee, duration_months, active FROM membership_types ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var types []domain.MembershipType
	for rows.Next() {
		var t domain.MembershipType
		if err := rows.Scan(&t.ID, &t.Name, &t.Fee, &t.DurationMonths, &t.Active); err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	return types, rows.Err()
}

type geoRepository struct {
	db *sql.DB
}

func NewGeoRepository(db *sql.DB) repository.GeoRepository {
	return &geoRepository{db: db}
}

func (r *geoRepository) ListChildren(ctx context.Context, level domain.GeoLevel, parentID string) ([]domain.GeoEntry, error) {
	query := `SELECT id, name, parent_id FROM geo_entries
	          WHERE level = $1 AND ($2 = '' OR parent_id = $2) ORDER BY name`
	rows, err := r.db.QueryContext(ctx, query, level, parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []domain.GeoEntry{}
	for rows.Next() {
		var e domain.GeoEntry
		if err := rows.Scan(&e.ID, &e.Name, &e.ParentID); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
