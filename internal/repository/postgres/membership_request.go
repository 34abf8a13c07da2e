package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"membership-backend/internal/domain"
	"membership-backend/internal/logger"
	"membership-backend/internal/repository"
)

const requestColumns = `id, matricule, status, is_paid, identity, address, company, documents,
	membership_type_id, review_note, motif_reject, reopen_reason,
	security_code, security_code_expiry, security_code_used,
	processed_by_id, processed_by_name, processed_at,
	approval_claim, approval_claimed_at,
	COALESCE(member_number, ''), member_id, credentials_doc_url,
	version, created_at, updated_at`

const paymentColumns = `id, request_id, amount, mode, paid_at, accepted_by_id, accepted_by_name,
	proof_url, justification, is_fee, reverses_payment_id, idempotency_key, created_at`

// uniqueViolation is the postgres SQLSTATE for a unique constraint failure.
const uniqueViolation = "23505"

type membershipRequestRepository struct {
	db *sql.DB
}

func NewMembershipRequestRepository(db *sql.DB) repository.MembershipRequestRepository {
	return &membershipRequestRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

type payloadJSON struct {
	identity, address, company, documents []byte
}

func marshalPayload(req *domain.MembershipRequest) (payloadJSON, error) {
	var p payloadJSON
	var err error
	if p.identity, err = json.Marshal(req.Identity); err != nil {
		return p, err
	}
	if p.address, err = json.Marshal(req.Address); err != nil {
		return p, err
	}
	if p.company, err = json.Marshal(req.Company); err != nil {
		return p, err
	}
	p.documents, err = json.Marshal(req.Documents)
	return p, err
}

func scanRequest(row rowScanner) (*domain.MembershipRequest, error) {
	req := &domain.MembershipRequest{}
	var p payloadJSON
	var codeExpiry, processedAt, claimedAt sql.NullTime
	err := row.Scan(&req.ID, &req.Matricule, &req.Status, &req.IsPaid,
		&p.identity, &p.address, &p.company, &p.documents,
		&req.MembershipTypeID, &req.ReviewNote, &req.MotifReject, &req.ReopenReason,
		&req.SecurityCode, &codeExpiry, &req.SecurityCodeUsed,
		&req.ProcessedByID, &req.ProcessedByName, &processedAt,
		&req.ApprovalClaim, &claimedAt,
		&req.MemberNumber, &req.MemberID, &req.CredentialsDocURL,
		&req.Version, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		return nil, err
	}
	req.SecurityCodeExpiry = nullTime(codeExpiry)
	req.ProcessedAt = nullTime(processedAt)
	req.ApprovalClaimedAt = nullTime(claimedAt)

	for _, f := range []struct {
		raw []byte
		dst any
	}{
		{p.identity, &req.Identity},
		{p.address, &req.Address},
		{p.company, &req.Company},
		{p.documents, &req.Documents},
	} {
		if len(f.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(f.raw, f.dst); err != nil {
			return nil, fmt.Errorf("failed to decode request %s: %w", req.ID, err)
		}
	}
	return req, nil
}

func (r *membershipRequestRepository) Create(ctx context.Context, req *domain.MembershipRequest) error {
	logger.EnterMethod("membershipRequestRepository.Create", "requestID", req.ID, "matricule", req.Matricule)

	p, err := marshalPayload(req)
	if err != nil {
		logger.ExitMethodWithError("membershipRequestRepository.Create", err, "reason", "failed to marshal payload")
		return err
	}
	now := time.Now().UTC()
	if req.CreatedAt.IsZero() {
		req.CreatedAt = now
	}
	req.UpdatedAt = now

	query := `INSERT INTO membership_requests (id, matricule, status, is_paid, identity, address, company, documents,
	          membership_type_id, version, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 1, $10, $11)`
	logger.DatabaseCall("INSERT", "membership_requests", "requestID", req.ID)
	_, err = r.db.ExecContext(ctx, query, req.ID, req.Matricule, req.Status, req.IsPaid,
		p.identity, p.address, p.company, p.documents, req.MembershipTypeID, req.CreatedAt, req.UpdatedAt)
	logger.DatabaseResult("INSERT", 1, err, "requestID", req.ID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			err = fmt.Errorf("request %s or matricule %s already exists: %w", req.ID, req.Matricule, domain.ErrConflict)
		}
		logger.ExitMethodWithError("membershipRequestRepository.Create", err)
		return err
	}
	req.Version = 1
	logger.ExitMethod("membershipRequestRepository.Create", "requestID", req.ID)
	return nil
}

func (r *membershipRequestRepository) GetByID(ctx context.Context, id string) (*domain.MembershipRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM membership_requests WHERE id = $1`
	return r.getOne(ctx, query, id)
}

func (r *membershipRequestRepository) GetByMatricule(ctx context.Context, matricule string) (*domain.MembershipRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM membership_requests WHERE matricule = $1`
	return r.getOne(ctx, query, matricule)
}

func (r *membershipRequestRepository) getOne(ctx context.Context, query string, arg any) (*domain.MembershipRequest, error) {
	req, err := scanRequest(r.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	payments, err := r.loadPayments(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	req.Payments = payments[req.ID]
	return req, nil
}

func (r *membershipRequestRepository) loadPayments(ctx context.Context, ids ...string) (map[string][]domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM request_payments WHERE request_id = ANY($1) ORDER BY request_id, position`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to load payments: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]domain.Payment)
	for rows.Next() {
		var p domain.Payment
		if err := rows.Scan(&p.ID, &p.RequestID, &p.Amount, &p.Mode, &p.PaidAt, &p.AcceptedByID, &p.AcceptedByName,
			&p.ProofURL, &p.Justification, &p.IsFee, &p.ReversesPaymentID, &p.IdempotencyKey, &p.CreatedAt); err != nil {
			return nil, err
		}
		out[p.RequestID] = append(out[p.RequestID], p)
	}
	return out, rows.Err()
}

// Update writes the aggregate if its stored version still equals
// expectedVersion. New payments are inserted in the same transaction;
// existing ones are never touched.
func (r *membershipRequestRepository) Update(ctx context.Context, req *domain.MembershipRequest, expectedVersion int64) error {
	logger.EnterMethod("membershipRequestRepository.Update", "requestID", req.ID, "expectedVersion", expectedVersion)

	p, err := marshalPayload(req)
	if err != nil {
		logger.ExitMethodWithError("membershipRequestRepository.Update", err, "reason", "failed to marshal payload")
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		logger.ExitMethodWithError("membershipRequestRepository.Update", err, "reason", "failed to begin transaction")
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	query := `UPDATE membership_requests SET status = $1, is_paid = $2,
	          identity = $3, address = $4, company = $5, documents = $6,
	          membership_type_id = $7, review_note = $8, motif_reject = $9, reopen_reason = $10,
	          security_code = $11, security_code_expiry = $12, security_code_used = $13,
	          processed_by_id = $14, processed_by_name = $15, processed_at = $16,
	          approval_claim = $17, approval_claimed_at = $18,
	          member_number = NULLIF($19, ''), member_id = $20, credentials_doc_url = $21,
	          version = version + 1, updated_at = $22
	          WHERE id = $23 AND version = $24`
	logger.DatabaseCall("UPDATE", "membership_requests", "requestID", req.ID)
	result, err := tx.ExecContext(ctx, query, req.Status, req.IsPaid,
		p.identity, p.address, p.company, p.documents,
		req.MembershipTypeID, req.ReviewNote, req.MotifReject, req.ReopenReason,
		req.SecurityCode, req.SecurityCodeExpiry, req.SecurityCodeUsed,
		req.ProcessedByID, req.ProcessedByName, req.ProcessedAt,
		req.ApprovalClaim, req.ApprovalClaimedAt,
		req.MemberNumber, req.MemberID, req.CredentialsDocURL,
		now, req.ID, expectedVersion)
	if err != nil {
		logger.DatabaseResult("UPDATE", 0, err)
		logger.ExitMethodWithError("membershipRequestRepository.Update", err)
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	logger.DatabaseResult("UPDATE", affected, nil, "requestID", req.ID)
	if affected == 0 {
		err := r.missingOrStale(ctx, tx, req.ID, expectedVersion)
		logger.ExitMethod("membershipRequestRepository.Update", "requestID", req.ID, "outcome", err.Error())
		return err
	}

	insert := `INSERT INTO request_payments (id, request_id, position, amount, mode, paid_at, accepted_by_id, accepted_by_name,
	           proof_url, justification, is_fee, reverses_payment_id, idempotency_key, created_at)
	           VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	           ON CONFLICT (id) DO NOTHING`
	for i, pay := range req.Payments {
		if _, err := tx.ExecContext(ctx, insert, pay.ID, req.ID, i, pay.Amount, pay.Mode, pay.PaidAt,
			pay.AcceptedByID, pay.AcceptedByName, pay.ProofURL, pay.Justification, pay.IsFee,
			pay.ReversesPaymentID, pay.IdempotencyKey, pay.CreatedAt); err != nil {
			logger.ExitMethodWithError("membershipRequestRepository.Update", err, "paymentID", pay.ID)
			return fmt.Errorf("failed to append payment %s: %w", pay.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		logger.ExitMethodWithError("membershipRequestRepository.Update", err, "reason", "commit failed")
		return err
	}
	req.Version = expectedVersion + 1
	req.UpdatedAt = now
	logger.ExitMethod("membershipRequestRepository.Update", "requestID", req.ID, "version", req.Version)
	return nil
}

func (r *membershipRequestRepository) missingOrStale(ctx context.Context, tx *sql.Tx, id string, expectedVersion int64) error {
	var version int64
	err := tx.QueryRowContext(ctx, `SELECT version FROM membership_requests WHERE id = $1`, id).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("request %s at version %d, expected %d: %w", id, version, expectedVersion, domain.ErrConflict)
}

func (r *membershipRequestRepository) Delete(ctx context.Context, id string, expectedVersion int64) error {
	logger.EnterMethod("membershipRequestRepository.Delete", "requestID", id)
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	logger.DatabaseCall("DELETE", "membership_requests", "requestID", id)
	result, err := tx.ExecContext(ctx, `DELETE FROM membership_requests WHERE id = $1 AND version = $2`, id, expectedVersion)
	if err != nil {
		logger.DatabaseResult("DELETE", 0, err)
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	logger.DatabaseResult("DELETE", affected, nil, "requestID", id)
	if affected == 0 {
		return r.missingOrStale(ctx, tx, id, expectedVersion)
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	logger.ExitMethod("membershipRequestRepository.Delete", "requestID", id)
	return nil
}

func (r *membershipRequestRepository) List(ctx context.Context, filter domain.RequestFilter) ([]domain.MembershipRequest, int32, error) {
	filter = filter.Normalize()
	query := `SELECT ` + requestColumns + ` FROM membership_requests
	          WHERE ($1 = '' OR status = $1) ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	rows, err := r.db.QueryContext(ctx, query, string(filter.Status), filter.PageSize, filter.Offset())
	if err != nil {
		return nil, 0, err
	}
	reqs, ids, err := collectRequests(rows)
	if err != nil {
		return nil, 0, err
	}

	var count int32
	countQuery := `SELECT count(*) FROM membership_requests WHERE ($1 = '' OR status = $1)`
	if err := r.db.QueryRowContext(ctx, countQuery, string(filter.Status)).Scan(&count); err != nil {
		return nil, 0, err
	}

	if err := r.attachPayments(ctx, reqs, ids); err != nil {
		return nil, 0, err
	}
	return reqs, count, nil
}

func (r *membershipRequestRepository) ListApprovedWithoutCredentials(ctx context.Context, limit int32) ([]domain.MembershipRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM membership_requests
	          WHERE status = $1 AND credentials_doc_url = '' ORDER BY updated_at LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, domain.RequestStatusApproved, limit)
	if err != nil {
		return nil, err
	}
	reqs, ids, err := collectRequests(rows)
	if err != nil {
		return nil, err
	}
	if err := r.attachPayments(ctx, reqs, ids); err != nil {
		return nil, err
	}
	return reqs, nil
}

func collectRequests(rows *sql.Rows) ([]domain.MembershipRequest, []string, error) {
	defer rows.Close()
	var reqs []domain.MembershipRequest
	var ids []string
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, nil, err
		}
		reqs = append(reqs, *req)
		ids = append(ids, req.ID)
	}
	return reqs, ids, rows.Err()
}

func (r *membershipRequestRepository) attachPayments(ctx context.Context, reqs []domain.MembershipRequest, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	payments, err := r.loadPayments(ctx, ids...)
	if err != nil {
		return err
	}
	for i := range reqs {
		reqs[i].Payments = payments[reqs[i].ID]
	}
	return nil
}

func (r *membershipRequestRepository) CountByStatus(ctx context.Context) (map[domain.RequestStatus]int32, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, count(*) FROM membership_requests GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.RequestStatus]int32)
	for rows.Next() {
		var status domain.RequestStatus
		var n int32
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func (r *membershipRequestRepository) NextMemberNumber(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `SELECT nextval('member_number_seq')`).Scan(&n)
	return n, err
}
