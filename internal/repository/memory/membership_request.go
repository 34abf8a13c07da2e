package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"membership-backend/internal/domain"
)

type MembershipRequestRepository struct {
	mu           sync.RWMutex
	requests     map[string]*domain.MembershipRequest
	byMatricule  map[string]string
	memberNumber int64
}

func NewMembershipRequestRepository() *MembershipRequestRepository {
	return &MembershipRequestRepository{
		requests:    make(map[string]*domain.MembershipRequest),
		byMatricule: make(map[string]string),
	}
}

func (r *MembershipRequestRepository) Create(_ context.Context, req *domain.MembershipRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.requests[req.ID]; ok {
		return fmt.Errorf("request %s already exists: %w", req.ID, domain.ErrConflict)
	}
	if _, ok := r.byMatricule[req.Matricule]; ok {
		return fmt.Errorf("matricule %s already taken: %w", req.Matricule, domain.ErrConflict)
	}
	now := time.Now().UTC()
	if req.CreatedAt.IsZero() {
		req.CreatedAt = now
	}
	req.UpdatedAt = now
	req.Version = 1
	r.requests[req.ID] = req.Clone()
	r.byMatricule[req.Matricule] = req.ID
	return nil
}

func (r *MembershipRequestRepository) GetByID(_ context.Context, id string) (*domain.MembershipRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	req, ok := r.requests[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return req.Clone(), nil
}

func (r *MembershipRequestRepository) GetByMatricule(ctx context.Context, matricule string) (*domain.MembershipRequest, error) {
	r.mu.RLock()
	id, ok := r.byMatricule[matricule]
	r.mu.RUnlock()
	if !ok {
		return nil, domain.ErrNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *MembershipRequestRepository) Update(_ context.Context, req *domain.MembershipRequest, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.requests[req.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if cur.Version != expectedVersion {
		return fmt.Errorf("request %s at version %d, expected %d: %w", req.ID, cur.Version, expectedVersion, domain.ErrConflict)
	}
	if len(req.Payments) < len(cur.Payments) {
		return fmt.Errorf("payments are append-only: %w", domain.ErrConflict)
	}
	req.Matricule = cur.Matricule
	req.CreatedAt = cur.CreatedAt
	req.Version = expectedVersion + 1
	req.UpdatedAt = time.Now().UTC()
	r.requests[req.ID] = req.Clone()
	return nil
}

func (r *MembershipRequestRepository) Delete(_ context.Context, id string, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.requests[id]
	if !ok {
		return domain.ErrNotFound
	}
	if cur.Version != expectedVersion {
		return fmt.Errorf("request %s changed before delete: %w", id, domain.ErrConflict)
	}
	delete(r.byMatricule, cur.Matricule)
	delete(r.requests, id)
	return nil
}

func (r *MembershipRequestRepository) List(_ context.Context, filter domain.RequestFilter) ([]domain.MembershipRequest, int32, error) {
	filter = filter.Normalize()
	r.mu.RLock()
	var matched []domain.MembershipRequest
	for _, req := range r.requests {
		if filter.Status == "" || req.Status == filter.Status {
			matched = append(matched, *req.Clone())
		}
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	total := int32(len(matched))
	start := int(filter.Offset())
	if start >= len(matched) {
		return []domain.MembershipRequest{}, total, nil
	}
	end := start + int(filter.PageSize)
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

func (r *MembershipRequestRepository) ListApprovedWithoutCredentials(_ context.Context, limit int32) ([]domain.MembershipRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.MembershipRequest
	for _, req := range r.requests {
		if req.Status == domain.RequestStatusApproved && req.CredentialsDocURL == "" {
			out = append(out, *req.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > int(limit) {
		out = out[:limit]
	}
	return out, nil
}

func (r *MembershipRequestRepository) CountByStatus(_ context.Context) (map[domain.RequestStatus]int32, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := make(map[domain.RequestStatus]int32)
	for _, req := range r.requests {
		counts[req.Status]++
	}
	return counts, nil
}

func (r *MembershipRequestRepository) NextMemberNumber(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.memberNumber++
	return r.memberNumber, nil
}
