package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"membership-backend/internal/domain"
)

type NotificationRepository struct {
	mu    sync.RWMutex
	notes []domain.Notification
}

func NewNotificationRepository() *NotificationRepository {
	return &NotificationRepository{}
}

func (r *NotificationRepository) Create(_ context.Context, n *domain.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	r.notes = append(r.notes, *n)
	return nil
}

func (r *NotificationRepository) List(_ context.Context, memberID string, limit, offset int32) ([]domain.Notification, int32, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Notification
	for i := len(r.notes) - 1; i >= 0; i-- {
		if r.notes[i].MemberID == memberID {
			out = append(out, r.notes[i])
		}
	}
	total := int32(len(out))
	if int(offset) >= len(out) {
		return []domain.Notification{}, total, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > int(limit) {
		out = out[:limit]
	}
	return out, total, nil
}

func (r *NotificationRepository) MarkAsRead(_ context.Context, id, memberID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.notes {
		if r.notes[i].ID == id && r.notes[i].MemberID == memberID {
			r.notes[i].IsRead = true
			return nil
		}
	}
	return domain.ErrNotFound
}

func (r *NotificationRepository) ExistsForRequest(_ context.Context, memberID, requestID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, n := range r.notes {
		if n.MemberID == memberID && n.Attributes["request_id"] == requestID {
			return true, nil
		}
	}
	return false, nil
}

type ReferenceRepository struct {
	mu       sync.Mutex
	entities map[domain.ReferenceKind]map[string]domain.ReferenceEntity
}

func NewReferenceRepository() *ReferenceRepository {
	return &ReferenceRepository{entities: make(map[domain.ReferenceKind]map[string]domain.ReferenceEntity)}
}

func (r *ReferenceRepository) Ensure(_ context.Context, kind domain.ReferenceKind, name string) (*domain.ReferenceEntity, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return nil, domain.NewValidationError(string(kind), "name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	byName, ok := r.entities[kind]
	if !ok {
		byName = make(map[string]domain.ReferenceEntity)
		r.entities[kind] = byName
	}
	if e, ok := byName[key]; ok {
		return &e, nil
	}
	e := domain.ReferenceEntity{ID: uuid.NewString(), Kind: kind, Name: strings.TrimSpace(name)}
	byName[key] = e
	return &e, nil
}

type MembershipTypeRepository struct {
	mu    sync.RWMutex
	types map[string]domain.MembershipType
}

func NewMembershipTypeRepository(types ...domain.MembershipType) *MembershipTypeRepository {
	r := &MembershipTypeRepository{types: make(map[string]domain.MembershipType)}
	for _, t := range types {
		r.types[t.ID] = t
	}
	return r
}

// Put inserts or replaces a catalogue entry.
func (r *MembershipTypeRepository) Put(t domain.MembershipType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[t.ID] = t
}

func (r *MembershipTypeRepository) GetByID(_ context.Context, id string) (*domain.MembershipType, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &t, nil
}

func (r *MembershipTypeRepository) List(_ context.Context) ([]domain.MembershipType, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.MembershipType, 0, len(r.types))
	for _, t := range r.types {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

type GeoRepository struct {
	mu      sync.RWMutex
	entries map[domain.GeoLevel][]domain.GeoEntry
}

func NewGeoRepository() *GeoRepository {
	return &GeoRepository{entries: make(map[domain.GeoLevel][]domain.GeoEntry)}
}

func (r *GeoRepository) Add(level domain.GeoLevel, entries ...domain.GeoEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[level] = append(r.entries[level], entries...)
}

func (r *GeoRepository) ListChildren(_ context.Context, level domain.GeoLevel, parentID string) ([]domain.GeoEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []domain.GeoEntry{}
	for _, e := range r.entries[level] {
		if parentID == "" || e.ParentID == parentID {
			out = append(out, e)
		}
	}
	return out, nil
}
