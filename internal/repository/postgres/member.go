package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"membership-backend/internal/domain"
	"membership-backend/internal/logger"
	"membership-backend/internal/repository"
)

type memberRepository struct {
	db *sql.DB
}

func NewMemberRepository(db *sql.DB) repository.MemberRepository {
	return &memberRepository{db: db}
}

func (r *memberRepository) Create(ctx context.Context, a *domain.MemberAccount) error {
	logger.EnterMethod("memberRepository.Create", "requestID", a.RequestID, "memberNumber", a.MemberNumber)
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	query := `INSERT INTO member_accounts (id, request_id, member_number, login, password_hash, first_name, last_name,
	          email, phone, company_id, profession_id, status, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	logger.DatabaseCall("INSERT", "member_accounts", "requestID", a.RequestID)
	_, err := r.db.ExecContext(ctx, query, a.ID, a.RequestID, a.MemberNumber, a.Login, a.PasswordHash, a.FirstName, a.LastName,
		a.Email, a.Phone, a.CompanyID, a.ProfessionID, a.Status, a.CreatedAt)
	logger.DatabaseResult("INSERT", 1, err, "accountID", a.ID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			err = fmt.Errorf("account for request %s already exists: %w", a.RequestID, domain.ErrConflict)
		}
		logger.ExitMethodWithError("memberRepository.Create", err)
		return err
	}
	logger.ExitMethod("memberRepository.Create", "accountID", a.ID)
	return nil
}

func (r *memberRepository) GetByRequestID(ctx context.Context, requestID string) (*domain.MemberAccount, error) {
	a := &domain.MemberAccount{}
	query := `SELECT id, request_id, member_number, login, password_hash, first_name, last_name,
	          email, phone, company_id, profession_id, status, created_at
	          FROM member_accounts WHERE request_id = $1`
	err := r.db.QueryRowContext(ctx, query, requestID).Scan(&a.ID, &a.RequestID, &a.MemberNumber, &a.Login, &a.PasswordHash,
		&a.FirstName, &a.LastName, &a.Email, &a.Phone, &a.CompanyID, &a.ProfessionID, &a.Status, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (r *memberRepository) Delete(ctx context.Context, id string) error {
	logger.DatabaseCall("DELETE", "member_accounts", "accountID", id)
	result, err := r.db.ExecContext(ctx, `DELETE FROM member_accounts WHERE id = $1`, id)
	if err != nil {
		logger.DatabaseResult("DELETE", 0, err)
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	logger.DatabaseResult("DELETE", rows, nil, "accountID", id)
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

type subscriptionRepository struct {
	db *sql.DB
}

func NewSubscriptionRepository(db *sql.DB) repository.SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

func (r *subscriptionRepository) Create(ctx context.Context, s *domain.Subscription) error {
	logger.EnterMethod("subscriptionRepository.Create", "requestID", s.RequestID, "memberID", s.MemberID)
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	query := `INSERT INTO subscriptions (id, request_id, member_id, membership_type_id, payment_ids, amount_paid,
	          starts_on, expires_on, status, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	logger.DatabaseCall("INSERT", "subscriptions", "requestID", s.RequestID)
	_, err := r.db.ExecContext(ctx, query, s.ID, s.RequestID, s.MemberID, s.MembershipTypeID, pq.Array(s.PaymentIDs),
		s.AmountPaid, s.StartsOn, s.ExpiresOn, s.Status, s.CreatedAt)
	logger.DatabaseResult("INSERT", 1, err, "subscriptionID", s.ID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			err = fmt.Errorf("subscription for request %s already exists: %w", s.RequestID, domain.ErrConflict)
		}
		logger.ExitMethodWithError("subscriptionRepository.Create", err)
		return err
	}
	logger.ExitMethod("subscriptionRepository.Create", "subscriptionID", s.ID)
	return nil
}

func (r *subscriptionRepository) GetByRequestID(ctx context.Context, requestID string) (*domain.Subscription, error) {
	s := &domain.Subscription{}
	query := `SELECT id, request_id, member_id, membership_type_id, payment_ids, amount_paid,
	          starts_on, expires_on, status, created_at
	          FROM subscriptions WHERE request_id = $1`
	err := r.db.QueryRowContext(ctx, query, requestID).Scan(&s.ID, &s.RequestID, &s.MemberID, &s.MembershipTypeID,
		pq.Array(&s.PaymentIDs), &s.AmountPaid, &s.StartsOn, &s.ExpiresOn, &s.Status, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *subscriptionRepository) Delete(ctx context.Context, id string) error {
	logger.DatabaseCall("DELETE", "subscriptions", "subscriptionID", id)
	result, err := r.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE id = $1`, id)
	if err != nil {
		logger.DatabaseResult("DELETE", 0, err)
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	logger.DatabaseResult("DELETE", rows, nil, "subscriptionID", id)
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}
