package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"membership-backend/internal/domain"
	"membership-backend/internal/logger"
	"membership-backend/internal/message"
	"membership-backend/internal/metrics"
	"membership-backend/internal/repository"
	"membership-backend/internal/security"
	"membership-backend/internal/storage"

	"github.com/google/uuid"
)

const maxMatriculeAttempts = 5

// errNoChange lets a mutation report that the stored aggregate already
// reflects the requested change.
var errNoChange = errors.New("no change")

// LifecycleDeps are the collaborators of the request lifecycle. Limiter,
// Blobs, Emails and Metrics may be nil.
type LifecycleDeps struct {
	Requests      repository.MembershipRequestRepository
	Types         repository.MembershipTypeRepository
	Members       repository.MemberRepository
	Subscriptions repository.SubscriptionRepository
	Ledger        PaymentLedger
	Orchestrator  ApprovalOrchestrator
	Codes         *security.SecurityCodeIssuer
	Limiter       security.AttemptLimiter
	Composer      *message.Composer
	Blobs         storage.BlobStore
	Emails        EmailDispatcher
	Metrics       *metrics.Metrics
}

type LifecycleSettings struct {
	ClaimTTL        time.Duration
	MatriculePrefix string
	Region          string
	PortalURL       string
	Clock           func() time.Time
}

type requestLifecycle struct {
	LifecycleDeps
	settings LifecycleSettings
}

func NewRequestLifecycle(deps LifecycleDeps, settings LifecycleSettings) RequestLifecycle {
	if settings.Clock == nil {
		settings.Clock = time.Now
	}
	if deps.Emails == nil {
		deps.Emails = NopEmailDispatcher{}
	}
	return &requestLifecycle{LifecycleDeps: deps, settings: settings}
}

func (s *requestLifecycle) now() time.Time {
	return s.settings.Clock().UTC()
}

// exit logs the end of a method at the level its outcome deserves.
func (s *requestLifecycle) exit(method string, err error, args ...any) {
	switch {
	case err == nil:
		logger.ExitMethod(method, args...)
	case errors.Is(err, domain.ErrSecurityInvariant):
		s.Metrics.IncSecurityViolation()
		logger.SecurityViolation(method, err, args...)
	case domain.IsCorrectable(err),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrConflict),
		errors.Is(err, domain.ErrNotFound):
		logger.ExitMethodRejected(method, err, args...)
	default:
		logger.ExitMethodWithError(method, err, args...)
	}
}

// persist checks invariants and writes next conditioned on expectedVersion.
func (s *requestLifecycle) persist(ctx context.Context, next *domain.MembershipRequest, expectedVersion int64) error {
	if err := domain.CheckInvariants(next); err != nil {
		return err
	}
	if err := s.Requests.Update(ctx, next, expectedVersion); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			s.Metrics.IncConflict()
		}
		return err
	}
	next.Version = expectedVersion + 1
	return nil
}

// mutate runs one optimistic read-modify-write for transition t. The legality
// check runs before fn, and fn works on a copy, so a rejected transition
// never writes.
func (s *requestLifecycle) mutate(ctx context.Context, id string, t domain.Transition, fn func(next *domain.MembershipRequest) error) (*domain.MembershipRequest, error) {
	current, err := s.Requests.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := current.EnsureTransition(t); err != nil {
		return nil, err
	}
	if current.Status == domain.RequestStatusPending && current.HasLiveClaim(s.now(), s.settings.ClaimTTL) {
		return nil, fmt.Errorf("request is being approved: %w", domain.ErrConflict)
	}

	next := current.Clone()
	if err := fn(next); err != nil {
		if errors.Is(err, errNoChange) {
			return current, nil
		}
		return nil, err
	}
	next.UpdatedAt = s.now()
	if err := s.persist(ctx, next, current.Version); err != nil {
		return nil, err
	}

	s.Metrics.IncTransition(string(t))
	logger.Transition(id, string(t), string(current.Status), string(next.Status))
	return next, nil
}

// deliver builds the WhatsApp link for text and queues the same text by email.
func (s *requestLifecycle) deliver(req *domain.MembershipRequest, subject, text string) string {
	if text == "" {
		return ""
	}
	link, err := message.WhatsAppLink(req.Identity.Phone, s.settings.Region, text)
	if err != nil {
		logger.Warn("WhatsApp link not built", "requestID", req.ID, "error", err)
	}
	s.Emails.Enqueue(EmailMessage{
		To:      req.Identity.Email,
		ToName:  req.Identity.FullName(),
		Subject: subject,
		Body:    text,
	})
	return link
}

func (s *requestLifecycle) render(req *domain.MembershipRequest, tpl string, vars map[string]any) string {
	vars["first_name"] = req.Identity.FirstName
	vars["matricule"] = req.Matricule
	vars["portal_url"] = s.settings.PortalURL
	text, err := s.Composer.Render(tpl, vars)
	if err != nil {
		logger.Warn("Applicant message not rendered", "requestID", req.ID, "template", tpl, "error", err)
		return ""
	}
	return text
}

func (s *requestLifecycle) checkMembershipType(ctx context.Context, id string) (*domain.MembershipType, error) {
	mt, err := s.Types.GetByID(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.NewValidationError("membership_type_id", "unknown membership type")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load membership type: %w", err)
	}
	if !mt.Active {
		return nil, domain.NewValidationError("membership_type_id", "membership type is not open for new members")
	}
	return mt, nil
}

func (s *requestLifecycle) Submit(ctx context.Context, payload domain.RequestPayload) (*domain.MembershipRequest, error) {
	logger.EnterMethod("requestLifecycle.Submit", "lastName", payload.Identity.LastName)

	now := s.now()
	if err := domain.ValidatePayload(&payload, s.settings.Region, now); err != nil {
		s.exit("requestLifecycle.Submit", err)
		return nil, err
	}
	if payload.MembershipTypeID != "" {
		if _, err := s.checkMembershipType(ctx, payload.MembershipTypeID); err != nil {
			s.exit("requestLifecycle.Submit", err)
			return nil, err
		}
	}

	req := &domain.MembershipRequest{
		ID:        uuid.New().String(),
		Status:    domain.RequestStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	req.ApplyPayload(payload)

	for attempt := 1; ; attempt++ {
		matricule, err := security.GenerateMatricule(s.settings.MatriculePrefix, now)
		if err != nil {
			s.exit("requestLifecycle.Submit", err)
			return nil, err
		}
		req.Matricule = matricule
		if err := domain.CheckInvariants(req); err != nil {
			s.exit("requestLifecycle.Submit", err)
			return nil, err
		}
		err = s.Requests.Create(ctx, req)
		if err == nil {
			break
		}
		if !errors.Is(err, domain.ErrConflict) || attempt == maxMatriculeAttempts {
			err = fmt.Errorf("failed to create membership request: %w", err)
			s.exit("requestLifecycle.Submit", err)
			return nil, err
		}
		logger.Debug("Matricule collision, retrying", "matricule", matricule, "attempt", attempt)
	}

	s.Metrics.IncTransition("submit")
	s.exit("requestLifecycle.Submit", nil, "requestID", req.ID, "matricule", req.Matricule)
	return req, nil
}

func (s *requestLifecycle) Get(ctx context.Context, id string) (*domain.MembershipRequest, error) {
	return s.Requests.GetByID(ctx, id)
}

func (s *requestLifecycle) GetByMatricule(ctx context.Context, matricule string) (*domain.MembershipRequest, error) {
	return s.Requests.GetByMatricule(ctx, matricule)
}

func (s *requestLifecycle) List(ctx context.Context, filter domain.RequestFilter) ([]domain.MembershipRequest, int32, error) {
	return s.Requests.List(ctx, filter.Normalize())
}

func (s *requestLifecycle) ListMembershipTypes(ctx context.Context) ([]domain.MembershipType, error) {
	return s.Types.List(ctx)
}

func (s *requestLifecycle) Pay(ctx context.Context, id string, admin domain.AdminIdentity, in domain.PaymentInput) (*domain.MembershipRequest, error) {
	logger.EnterMethod("requestLifecycle.Pay", "requestID", id, "adminID", admin.ID, "amount", in.Amount, "mode", in.Mode)

	if err := admin.Validate("accepted_by"); err != nil {
		s.exit("requestLifecycle.Pay", err, "requestID", id)
		return nil, err
	}

	// A replayed key returns the stored aggregate whatever its status now is.
	if in.IdempotencyKey != "" {
		if current, err := s.Requests.GetByID(ctx, id); err == nil {
			if _, ok := domain.FindByIdempotencyKey(current.Payments, in.IdempotencyKey); ok {
				s.exit("requestLifecycle.Pay", nil, "requestID", id, "replayed", true)
				return current, nil
			}
		}
	}

	req, err := s.mutate(ctx, id, domain.TransitionPay, func(next *domain.MembershipRequest) error {
		if _, ok := domain.FindByIdempotencyKey(next.Payments, in.IdempotencyKey); ok {
			return errNoChange
		}
		updated, err := s.Ledger.Append(next, in, admin, s.now())
		if err != nil {
			return err
		}
		*next = *updated
		return nil
	})
	if err != nil {
		s.exit("requestLifecycle.Pay", err, "requestID", id)
		return nil, err
	}

	s.exit("requestLifecycle.Pay", nil, "requestID", id, "isPaid", req.IsPaid, "total", domain.TotalPaid(req.Payments))
	return req, nil
}

func (s *requestLifecycle) Approve(ctx context.Context, id string, admin domain.AdminIdentity, decision domain.ApprovalDecision) (*domain.ApprovalArtifacts, error) {
	logger.EnterMethod("requestLifecycle.Approve", "requestID", id, "adminID", admin.ID, "membershipTypeID", decision.MembershipTypeID)
	start := time.Now()
	defer s.Metrics.ObserveApproval(start)

	artifacts, err := s.approve(ctx, id, admin, decision)
	switch {
	case err == nil:
		s.Metrics.IncApproval(metrics.ApprovalSuccess)
	case errors.Is(err, domain.ErrApprovalFailure):
		s.Metrics.IncApproval(metrics.ApprovalFailure)
	case errors.Is(err, domain.ErrConflict):
		s.Metrics.IncApproval(metrics.ApprovalConflict)
	default:
		s.Metrics.IncApproval(metrics.ApprovalRefused)
	}
	if err != nil {
		s.exit("requestLifecycle.Approve", err, "requestID", id)
		return nil, err
	}
	s.exit("requestLifecycle.Approve", nil, "requestID", id, "memberNumber", artifacts.Request.MemberNumber, "warnings", len(artifacts.Warnings))
	return artifacts, nil
}

func (s *requestLifecycle) approve(ctx context.Context, id string, admin domain.AdminIdentity, decision domain.ApprovalDecision) (*domain.ApprovalArtifacts, error) {
	if err := admin.Validate("processed_by"); err != nil {
		return nil, err
	}
	if decision.IdentityArtifactURL == "" {
		return nil, domain.NewValidationError("identity_artifact_url", "an identity document is required to approve")
	}

	current, err := s.Requests.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := current.EnsureTransition(domain.TransitionApprove); err != nil {
		return nil, err
	}
	if !current.IsPaid {
		return nil, domain.NewValidationError("payments", "the membership fee has not been paid")
	}
	typeID := decision.MembershipTypeID
	if typeID == "" {
		typeID = current.MembershipTypeID
	}
	if typeID == "" {
		return nil, domain.NewValidationError("membership_type_id", "select a membership type")
	}
	mt, err := s.checkMembershipType(ctx, typeID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if current.HasLiveClaim(now, s.settings.ClaimTTL) {
		return nil, fmt.Errorf("request is being approved: %w", domain.ErrConflict)
	}

	// Claim the request so concurrent approvals lose before any entity exists.
	claimed := current.Clone()
	claimed.ApprovalClaim = uuid.New().String()
	claimed.ApprovalClaimedAt = &now
	claimed.UpdatedAt = now
	if err := s.persist(ctx, claimed, current.Version); err != nil {
		return nil, err
	}

	prov, err := s.Orchestrator.Provision(ctx, claimed, mt)
	if err != nil {
		s.releaseClaim(ctx, id, claimed.ApprovalClaim)
		return nil, err
	}

	final := claimed.Clone()
	final.Status = domain.RequestStatusApproved
	final.MembershipTypeID = mt.ID
	final.MemberNumber = prov.Account.MemberNumber
	final.MemberID = prov.Account.ID
	final.RecordDecision(admin, s.now())
	final.ReleaseClaim()
	final.UpdatedAt = s.now()
	if err := s.persist(ctx, final, claimed.Version); err != nil {
		aerr := &domain.ApprovalError{Step: StepCommit, Err: err}
		if cerr := s.Orchestrator.Compensate(ctx, prov); cerr != nil {
			logger.Error("Compensation after failed commit left entities behind", "requestID", id, "error", cerr)
		} else {
			aerr.Compensated = true
		}
		s.releaseClaim(ctx, id, claimed.ApprovalClaim)
		return nil, aerr
	}
	s.Metrics.IncTransition(string(domain.TransitionApprove))
	logger.Transition(id, string(domain.TransitionApprove), string(current.Status), string(final.Status), "adminID", admin.ID)

	artifacts := &domain.ApprovalArtifacts{
		Request:           final,
		Account:           prov.Account,
		Subscription:      prov.Subscription,
		TemporaryPassword: prov.TemporaryPassword,
		Warnings:          prov.Warnings,
	}
	s.publish(ctx, artifacts, mt, decision.IdentityArtifactURL)
	return artifacts, nil
}

// publish runs the best-effort steps for an approved request and attaches the
// credentials URL to it. Every failure ends up in artifacts.Warnings.
func (s *requestLifecycle) publish(ctx context.Context, artifacts *domain.ApprovalArtifacts, mt *domain.MembershipType, identityArtifactURL string) {
	req := artifacts.Request
	out := s.Orchestrator.Publish(ctx, PublishInput{
		Request:             req,
		Account:             artifacts.Account,
		Subscription:        artifacts.Subscription,
		MembershipType:      mt,
		IdentityArtifactURL: identityArtifactURL,
	})
	artifacts.Warnings = append(artifacts.Warnings, out.Warnings...)
	artifacts.NotificationID = out.NotificationID
	artifacts.CredentialsDocURL = out.CredentialsDocURL

	if out.CredentialsDocURL != "" && req.CredentialsDocURL == "" {
		updated, err := s.attachCredentials(ctx, req.ID, out.CredentialsDocURL)
		if err != nil {
			logger.Warn("Credentials URL not attached", "requestID", req.ID, "error", err)
			s.Metrics.IncArtifactFailure(StepAttachCredentials)
			artifacts.Warnings = append(artifacts.Warnings, &domain.ArtifactError{Step: StepAttachCredentials, Err: err})
		} else {
			artifacts.Request = updated
		}
	}

	if out.Message != "" {
		artifacts.Message = out.Message
		artifacts.WhatsAppLink = s.deliver(artifacts.Request, "Votre adhésion est validée", out.Message)
	}
}

// attachCredentials records url on the request, re-reading once on conflict.
func (s *requestLifecycle) attachCredentials(ctx context.Context, id, url string) (*domain.MembershipRequest, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		current, err := s.Requests.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if current.CredentialsDocURL != "" {
			return current, nil
		}
		next := current.Clone()
		next.CredentialsDocURL = url
		next.UpdatedAt = s.now()
		lastErr = s.persist(ctx, next, current.Version)
		if lastErr == nil {
			return next, nil
		}
		if !errors.Is(lastErr, domain.ErrConflict) {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

// releaseClaim drops the approval claim if it is still ours. Failure only
// delays other transitions until the claim expires.
func (s *requestLifecycle) releaseClaim(ctx context.Context, id, claim string) {
	current, err := s.Requests.GetByID(ctx, id)
	if err != nil || current.ApprovalClaim != claim {
		return
	}
	next := current.Clone()
	next.ReleaseClaim()
	next.UpdatedAt = s.now()
	if err := s.persist(ctx, next, current.Version); err != nil {
		logger.Warn("Approval claim not released", "requestID", id, "error", err)
	}
}

func (s *requestLifecycle) Reject(ctx context.Context, id string, admin domain.AdminIdentity, reason string) (*Outcome, error) {
	logger.EnterMethod("requestLifecycle.Reject", "requestID", id, "adminID", admin.ID)

	if err := admin.Validate("processed_by"); err != nil {
		s.exit("requestLifecycle.Reject", err, "requestID", id)
		return nil, err
	}
	reason, err := domain.ValidateReason("reason", reason, domain.MaxReasonLength)
	if err != nil {
		s.exit("requestLifecycle.Reject", err, "requestID", id)
		return nil, err
	}

	req, err := s.mutate(ctx, id, domain.TransitionReject, func(next *domain.MembershipRequest) error {
		next.Status = domain.RequestStatusRejected
		next.MotifReject = reason
		next.RecordDecision(admin, s.now())
		next.ClearSecurityCode()
		return nil
	})
	if err != nil {
		s.exit("requestLifecycle.Reject", err, "requestID", id)
		return nil, err
	}

	text := s.render(req, message.TemplateRequestRejected, map[string]any{"reason": reason})
	out := &Outcome{Request: req, Message: text, WhatsAppLink: s.deliver(req, "Votre demande d'adhésion", text)}
	s.exit("requestLifecycle.Reject", nil, "requestID", id)
	return out, nil
}

func (s *requestLifecycle) RequestCorrections(ctx context.Context, id string, admin domain.AdminIdentity, lines []string) (*domain.IssuedCode, error) {
	logger.EnterMethod("requestLifecycle.RequestCorrections", "requestID", id, "adminID", admin.ID, "lines", len(lines))

	if err := admin.Validate("requested_by"); err != nil {
		s.exit("requestLifecycle.RequestCorrections", err, "requestID", id)
		return nil, err
	}
	note, err := domain.JoinCorrectionLines(lines)
	if err != nil {
		s.exit("requestLifecycle.RequestCorrections", err, "requestID", id)
		return nil, err
	}

	var issued domain.IssuedCode
	req, err := s.mutate(ctx, id, domain.TransitionRequestCorrections, func(next *domain.MembershipRequest) error {
		code, expiry, err := s.Codes.Issue(s.now())
		if err != nil {
			return err
		}
		issued = domain.IssuedCode{Code: code, Expiry: expiry}
		next.Status = domain.RequestStatusUnderReview
		next.ReviewNote = note
		next.SecurityCode = code
		next.SecurityCodeExpiry = &expiry
		next.SecurityCodeUsed = false
		return nil
	})
	if err != nil {
		s.exit("requestLifecycle.RequestCorrections", err, "requestID", id)
		return nil, err
	}

	issued.Message = s.render(req, message.TemplateCorrectionsRequested, map[string]any{
		"lines":  strings.Split(note, "\n"),
		"code":   issued.Code,
		"expiry": issued.Expiry,
	})
	issued.WhatsAppLink = s.deliver(req, "Corrections demandées sur votre dossier", issued.Message)
	s.exit("requestLifecycle.RequestCorrections", nil, "requestID", id, "expiry", issued.Expiry)
	return &issued, nil
}

func (s *requestLifecycle) RegenerateCode(ctx context.Context, id string, admin domain.AdminIdentity, confirmed bool) (*domain.IssuedCode, error) {
	logger.EnterMethod("requestLifecycle.RegenerateCode", "requestID", id, "adminID", admin.ID)

	if err := admin.Validate("requested_by"); err != nil {
		s.exit("requestLifecycle.RegenerateCode", err, "requestID", id)
		return nil, err
	}
	if !confirmed {
		err := domain.NewValidationError("confirm", "regenerating invalidates the current code and must be confirmed")
		s.exit("requestLifecycle.RegenerateCode", err, "requestID", id)
		return nil, err
	}

	var issued domain.IssuedCode
	req, err := s.mutate(ctx, id, domain.TransitionRegenerateCode, func(next *domain.MembershipRequest) error {
		code, expiry, err := s.Codes.Issue(s.now())
		if err != nil {
			return err
		}
		issued = domain.IssuedCode{Code: code, Expiry: expiry}
		next.SecurityCode = code
		next.SecurityCodeExpiry = &expiry
		next.SecurityCodeUsed = false
		return nil
	})
	if err != nil {
		s.exit("requestLifecycle.RegenerateCode", err, "requestID", id)
		return nil, err
	}
	if s.Limiter != nil {
		if err := s.Limiter.Reset(ctx, attemptKey(id)); err != nil {
			logger.Warn("Attempt counter not reset", "requestID", id, "error", err)
		}
	}

	issued.Message = s.render(req, message.TemplateCodeRegenerated, map[string]any{
		"code":   issued.Code,
		"expiry": issued.Expiry,
	})
	issued.WhatsAppLink = s.deliver(req, "Nouveau code de correction", issued.Message)
	s.exit("requestLifecycle.RegenerateCode", nil, "requestID", id, "expiry", issued.Expiry)
	return &issued, nil
}

func attemptKey(id string) string {
	return "verify:" + id
}

// VerifyCode checks candidate against the stored code. Incorrect, expired and
// used codes are reported through the result, not the error. It never marks
// the code used.
func (s *requestLifecycle) VerifyCode(ctx context.Context, id, candidate string) (domain.VerifyResult, error) {
	logger.EnterMethod("requestLifecycle.VerifyCode", "requestID", id)

	if s.Limiter != nil {
		allowed, err := s.Limiter.Attempt(ctx, attemptKey(id))
		if err != nil {
			logger.Warn("Attempt limiter unavailable", "requestID", id, "error", err)
		} else if !allowed {
			s.Metrics.IncCodeVerification("limited")
			s.exit("requestLifecycle.VerifyCode", domain.ErrTooManyAttempts, "requestID", id)
			return "", domain.ErrTooManyAttempts
		}
	}

	req, err := s.Requests.GetByID(ctx, id)
	if err != nil {
		s.exit("requestLifecycle.VerifyCode", err, "requestID", id)
		return "", err
	}

	result := s.Codes.Verify(req.SecurityCode, req.SecurityCodeExpiry, req.SecurityCodeUsed, candidate, s.now())
	s.Metrics.IncCodeVerification(string(result))
	if s.Limiter != nil && result == domain.VerifyValid {
		if err := s.Limiter.Reset(ctx, attemptKey(id)); err != nil {
			logger.Warn("Attempt limiter not reset", "requestID", id, "error", err)
		}
	}

	s.exit("requestLifecycle.VerifyCode", result.Err(), "requestID", id, "result", result)
	return result, nil
}

// SubmitCorrections replaces the applicant sections. The code is verified
// again inside the write so that a code used or regenerated after the
// session was opened is refused.
func (s *requestLifecycle) SubmitCorrections(ctx context.Context, id, code string, payload domain.RequestPayload) (*domain.MembershipRequest, error) {
	logger.EnterMethod("requestLifecycle.SubmitCorrections", "requestID", id)

	if err := domain.ValidatePayload(&payload, s.settings.Region, s.now()); err != nil {
		s.exit("requestLifecycle.SubmitCorrections", err, "requestID", id)
		return nil, err
	}
	if payload.MembershipTypeID != "" {
		if _, err := s.checkMembershipType(ctx, payload.MembershipTypeID); err != nil {
			s.exit("requestLifecycle.SubmitCorrections", err, "requestID", id)
			return nil, err
		}
	}

	req, err := s.mutate(ctx, id, domain.TransitionSubmitCorrections, func(next *domain.MembershipRequest) error {
		result := s.Codes.Verify(next.SecurityCode, next.SecurityCodeExpiry, next.SecurityCodeUsed, code, s.now())
		if err := result.Err(); err != nil {
			return err
		}
		next.ApplyPayload(payload)
		next.ReviewNote = ""
		next.SecurityCodeUsed = true
		next.Status = domain.RequestStatusPending
		return nil
	})
	if err != nil {
		s.exit("requestLifecycle.SubmitCorrections", err, "requestID", id)
		return nil, err
	}

	s.exit("requestLifecycle.SubmitCorrections", nil, "requestID", id)
	return req, nil
}

func (s *requestLifecycle) Reopen(ctx context.Context, id string, admin domain.AdminIdentity, reason string) (*domain.MembershipRequest, error) {
	logger.EnterMethod("requestLifecycle.Reopen", "requestID", id, "adminID", admin.ID)

	if err := admin.Validate("processed_by"); err != nil {
		s.exit("requestLifecycle.Reopen", err, "requestID", id)
		return nil, err
	}
	reason, err := domain.ValidateReason("reason", reason, domain.MaxReasonLength)
	if err != nil {
		s.exit("requestLifecycle.Reopen", err, "requestID", id)
		return nil, err
	}

	req, err := s.mutate(ctx, id, domain.TransitionReopen, func(next *domain.MembershipRequest) error {
		next.Status = domain.RequestStatusPending
		next.MotifReject = ""
		next.ReopenReason = reason
		next.RecordDecision(admin, s.now())
		next.ClearSecurityCode()
		return nil
	})
	if err != nil {
		s.exit("requestLifecycle.Reopen", err, "requestID", id)
		return nil, err
	}

	s.exit("requestLifecycle.Reopen", nil, "requestID", id)
	return req, nil
}

// Delete permanently removes a rejected request once the admin has typed its
// matricule back exactly. Stored documents are removed afterwards, best effort.
func (s *requestLifecycle) Delete(ctx context.Context, id string, admin domain.AdminIdentity, typedMatricule string) error {
	logger.EnterMethod("requestLifecycle.Delete", "requestID", id, "adminID", admin.ID)

	if err := admin.Validate("deleted_by"); err != nil {
		s.exit("requestLifecycle.Delete", err, "requestID", id)
		return err
	}

	current, err := s.Requests.GetByID(ctx, id)
	if err != nil {
		s.exit("requestLifecycle.Delete", err, "requestID", id)
		return err
	}
	if err := current.EnsureTransition(domain.TransitionDelete); err != nil {
		s.exit("requestLifecycle.Delete", err, "requestID", id)
		return err
	}
	if typedMatricule != current.Matricule {
		err := domain.NewValidationError("matricule", "the typed matricule does not match this request")
		s.exit("requestLifecycle.Delete", err, "requestID", id)
		return err
	}

	if err := s.Requests.Delete(ctx, id, current.Version); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			s.Metrics.IncConflict()
		}
		s.exit("requestLifecycle.Delete", err, "requestID", id)
		return err
	}
	s.Metrics.IncTransition(string(domain.TransitionDelete))
	logger.Transition(id, string(domain.TransitionDelete), string(current.Status), "deleted", "adminID", admin.ID, "matricule", current.Matricule)

	if s.Blobs != nil {
		urls := current.Documents.URLs()
		if current.CredentialsDocURL != "" {
			urls = append(urls, current.CredentialsDocURL)
		}
		for _, u := range urls {
			if err := s.Blobs.Delete(ctx, u); err != nil {
				logger.Warn("Document not removed after deletion", "requestID", id, "url", u, "error", err)
			}
		}
	}

	s.exit("requestLifecycle.Delete", nil, "requestID", id)
	return nil
}

// RetryArtifacts re-runs the best-effort approval steps for an approved
// request. No temporary password is available any more, so a regenerated
// credentials document omits it.
func (s *requestLifecycle) RetryArtifacts(ctx context.Context, id string) (*domain.ApprovalArtifacts, error) {
	logger.EnterMethod("requestLifecycle.RetryArtifacts", "requestID", id)

	artifacts, err := s.retryArtifacts(ctx, id)
	if err != nil {
		s.exit("requestLifecycle.RetryArtifacts", err, "requestID", id)
		return nil, err
	}
	s.exit("requestLifecycle.RetryArtifacts", nil, "requestID", id, "credentialsURL", artifacts.CredentialsDocURL, "warnings", len(artifacts.Warnings))
	return artifacts, nil
}

func (s *requestLifecycle) retryArtifacts(ctx context.Context, id string) (*domain.ApprovalArtifacts, error) {
	req, err := s.Requests.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := req.EnsureTransition(domain.TransitionRetryArtifacts); err != nil {
		return nil, err
	}
	account, err := s.Members.GetByRequestID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load member account: %w", err)
	}
	sub, err := s.Subscriptions.GetByRequestID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load subscription: %w", err)
	}
	mt, err := s.Types.GetByID(ctx, sub.MembershipTypeID)
	if err != nil {
		logger.Warn("Membership type not found for retry", "requestID", id, "membershipTypeID", sub.MembershipTypeID, "error", err)
		mt = nil
	}

	artifacts := &domain.ApprovalArtifacts{
		Request:           req,
		Account:           account,
		Subscription:      sub,
		CredentialsDocURL: req.CredentialsDocURL,
	}
	s.publish(ctx, artifacts, mt, "")
	return artifacts, nil
}
