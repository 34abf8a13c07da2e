package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"membership-backend/internal/domain"
)

type MemberRepository struct {
	mu        sync.RWMutex
	accounts  map[string]domain.MemberAccount
	byRequest map[string]string
	byLogin   map[string]string
}

func NewMemberRepository() *MemberRepository {
	return &MemberRepository{
		accounts:  make(map[string]domain.MemberAccount),
		byRequest: make(map[string]string),
		byLogin:   make(map[string]string),
	}
}

func (r *MemberRepository) Create(_ context.Context, a *domain.MemberAccount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byRequest[a.RequestID]; ok {
		return fmt.Errorf("account for request %s already exists: %w", a.RequestID, domain.ErrConflict)
	}
	if _, ok := r.byLogin[a.Login]; ok {
		return fmt.Errorf("login %s already taken: %w", a.Login, domain.ErrConflict)
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	r.accounts[a.ID] = *a
	r.byRequest[a.RequestID] = a.ID
	r.byLogin[a.Login] = a.ID
	return nil
}

func (r *MemberRepository) GetByRequestID(_ context.Context, requestID string) (*domain.MemberAccount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byRequest[requestID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	a := r.accounts[id]
	return &a, nil
}

func (r *MemberRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return domain.ErrNotFound
	}
	delete(r.byRequest, a.RequestID)
	delete(r.byLogin, a.Login)
	delete(r.accounts, id)
	return nil
}

// Count returns the number of stored accounts.
func (r *MemberRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.accounts)
}

type SubscriptionRepository struct {
	mu        sync.RWMutex
	subs      map[string]domain.Subscription
	byRequest map[string]string
}

func NewSubscriptionRepository() *SubscriptionRepository {
	return &SubscriptionRepository{
		subs:      make(map[string]domain.Subscription),
		byRequest: make(map[string]string),
	}
}

func (r *SubscriptionRepository) Create(_ context.Context, s *domain.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byRequest[s.RequestID]; ok {
		return fmt.Errorf("subscription for request %s already exists: %w", s.RequestID, domain.ErrConflict)
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	c := *s
	c.PaymentIDs = append([]string(nil), s.PaymentIDs...)
	r.subs[s.ID] = c
	r.byRequest[s.RequestID] = s.ID
	return nil
}

func (r *SubscriptionRepository) GetByRequestID(_ context.Context, requestID string) (*domain.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byRequest[requestID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	s := r.subs[id]
	return &s, nil
}

func (r *SubscriptionRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subs[id]
	if !ok {
		return domain.ErrNotFound
	}
	delete(r.byRequest, s.RequestID)
	delete(r.subs, id)
	return nil
}

func (r *SubscriptionRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}
