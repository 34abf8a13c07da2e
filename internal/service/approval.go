package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"membership-backend/internal/domain"
	"membership-backend/internal/logger"
	"membership-backend/internal/message"
	"membership-backend/internal/metrics"
	"membership-backend/internal/repository"
	"membership-backend/internal/security"
	"membership-backend/internal/storage"
	"membership-backend/internal/utils"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	StepReferences          = "resolve_references"
	StepAccount             = "create_account"
	StepSubscription        = "create_subscription"
	StepCommit              = "commit"
	StepCredentialsDocument = "credentials_document"
	StepNotification        = "notification"
	StepAttachCredentials   = "attach_credentials"
	StepPublish             = "publish"
)

// MemberNumberSource hands out the next member sequence value.
type MemberNumberSource interface {
	NextMemberNumber(ctx context.Context) (int64, error)
}

// Provisioned holds the mandatory approval entities. The created flags record
// which of them this run inserted, so Compensate never removes entities left
// by an earlier run.
type Provisioned struct {
	Account           *domain.MemberAccount
	Subscription      *domain.Subscription
	TemporaryPassword string
	Warnings          []error

	createdAccount      bool
	createdSubscription bool
}

// PublishInput is what the best-effort steps need once the request is approved.
// It never carries the temporary password: stored documents are served without
// authentication.
type PublishInput struct {
	Request             *domain.MembershipRequest
	Account             *domain.MemberAccount
	Subscription        *domain.Subscription
	MembershipType      *domain.MembershipType
	IdentityArtifactURL string
}

type Published struct {
	CredentialsDocURL string
	NotificationID    string
	Message           string
	Warnings          []error
}

type approvalOrchestrator struct {
	members       repository.MemberRepository
	subscriptions repository.SubscriptionRepository
	references    repository.ReferenceRepository
	notifications repository.NotificationRepository
	numbers       MemberNumberSource
	blobs         storage.BlobStore
	composer      *message.Composer
	metrics       *metrics.Metrics
	numberPrefix  string
	timeout       time.Duration
	now           func() time.Time
}

func NewApprovalOrchestrator(
	members repository.MemberRepository,
	subscriptions repository.SubscriptionRepository,
	references repository.ReferenceRepository,
	notifications repository.NotificationRepository,
	numbers MemberNumberSource,
	blobs storage.BlobStore,
	composer *message.Composer,
	m *metrics.Metrics,
	numberPrefix string,
	timeout time.Duration,
) ApprovalOrchestrator {
	return &approvalOrchestrator{
		members:       members,
		subscriptions: subscriptions,
		references:    references,
		notifications: notifications,
		numbers:       numbers,
		blobs:         blobs,
		composer:      composer,
		metrics:       m,
		numberPrefix:  numberPrefix,
		timeout:       timeout,
		now:           time.Now,
	}
}

// Provision resolves references, then creates the account and the
// subscription. Entities already created for this request by an earlier run
// are reused. If the subscription cannot be created, an account created by
// this run is deleted before the error is returned.
func (o *approvalOrchestrator) Provision(ctx context.Context, req *domain.MembershipRequest, mt *domain.MembershipType) (*Provisioned, error) {
	logger.EnterMethod("approvalOrchestrator.Provision", "requestID", req.ID, "membershipTypeID", mt.ID)

	p := &Provisioned{}
	companyID, professionID, warnings := o.resolveReferences(ctx, req)
	p.Warnings = append(p.Warnings, warnings...)

	account, err := o.ensureAccount(ctx, req, companyID, professionID, p)
	if err != nil {
		aerr := &domain.ApprovalError{Step: StepAccount, Err: err}
		logger.ExitMethodWithError("approvalOrchestrator.Provision", aerr, "requestID", req.ID)
		return nil, aerr
	}
	p.Account = account

	sub, err := o.ensureSubscription(ctx, req, account, mt, p)
	if err != nil {
		aerr := &domain.ApprovalError{Step: StepSubscription, Err: err}
		if cerr := o.Compensate(ctx, p); cerr != nil {
			logger.Error("Compensation after failed subscription left entities behind", "requestID", req.ID, "error", cerr)
		} else {
			aerr.Compensated = true
		}
		logger.ExitMethodWithError("approvalOrchestrator.Provision", aerr, "requestID", req.ID, "compensated", aerr.Compensated)
		return nil, aerr
	}
	p.Subscription = sub

	logger.ExitMethod("approvalOrchestrator.Provision", "requestID", req.ID, "memberID", account.ID, "memberNumber", account.MemberNumber)
	return p, nil
}

// resolveReferences looks up or creates the company and profession entities
// in parallel. Failures only produce warnings.
func (o *approvalOrchestrator) resolveReferences(ctx context.Context, req *domain.MembershipRequest) (string, string, []error) {
	var (
		mu           sync.Mutex
		companyID    string
		professionID string
		warnings     []error
	)
	resolve := func(kind domain.ReferenceKind, name string, dst *string) func() error {
		return func() error {
			name = strings.TrimSpace(name)
			if name == "" {
				return nil
			}
			entity, err := o.references.Ensure(ctx, kind, name)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				logger.Warn("Reference resolution skipped", "requestID", req.ID, "kind", kind, "name", name, "error", err)
				warnings = append(warnings, &domain.ArtifactError{Step: StepReferences, Err: err})
				return nil
			}
			*dst = entity.ID
			return nil
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(resolve(domain.ReferenceCompany, req.Company.Name, &companyID))
	g.Go(resolve(domain.ReferenceProfession, req.Identity.Profession, &professionID))
	_ = g.Wait()

	return companyID, professionID, warnings
}

func (o *approvalOrchestrator) ensureAccount(ctx context.Context, req *domain.MembershipRequest, companyID, professionID string, p *Provisioned) (*domain.MemberAccount, error) {
	existing, err := o.members.GetByRequestID(ctx, req.ID)
	if err == nil {
		logger.Info("Reusing member account from earlier approval run", "requestID", req.ID, "memberID", existing.ID)
		return existing, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up member account: %w", err)
	}

	seq, err := o.numbers.NextMemberNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate member number: %w", err)
	}
	password, err := security.GenerateTemporaryPassword()
	if err != nil {
		return nil, err
	}
	hash, err := security.HashPassword(password)
	if err != nil {
		return nil, err
	}

	number := security.FormatMemberNumber(o.numberPrefix, seq)
	account := &domain.MemberAccount{
		ID:           uuid.New().String(),
		RequestID:    req.ID,
		MemberNumber: number,
		Login:        number,
		PasswordHash: hash,
		FirstName:    req.Identity.FirstName,
		LastName:     req.Identity.LastName,
		Email:        req.Identity.Email,
		Phone:        req.Identity.Phone,
		CompanyID:    companyID,
		ProfessionID: professionID,
		Status:       domain.MemberStatusActive,
		CreatedAt:    o.now().UTC(),
	}
	if err := o.members.Create(ctx, account); err != nil {
		return nil, fmt.Errorf("failed to create member account: %w", err)
	}
	p.createdAccount = true
	p.TemporaryPassword = password
	return account, nil
}

func (o *approvalOrchestrator) ensureSubscription(ctx context.Context, req *domain.MembershipRequest, account *domain.MemberAccount, mt *domain.MembershipType, p *Provisioned) (*domain.Subscription, error) {
	existing, err := o.subscriptions.GetByRequestID(ctx, req.ID)
	if err == nil {
		logger.Info("Reusing subscription from earlier approval run", "requestID", req.ID, "subscriptionID", existing.ID)
		return existing, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up subscription: %w", err)
	}

	now := o.now().UTC()
	from, to := utils.SubscriptionPeriod(now, mt.DurationMonths)

	var paymentIDs []string
	for _, pay := range req.Payments {
		paymentIDs = append(paymentIDs, pay.ID)
	}

	sub := &domain.Subscription{
		ID:               uuid.New().String(),
		RequestID:        req.ID,
		MemberID:         account.ID,
		MembershipTypeID: mt.ID,
		PaymentIDs:       paymentIDs,
		AmountPaid:       domain.TotalPaid(req.Payments),
		StartsOn:         from,
		ExpiresOn:        to,
		Status:           domain.SubscriptionStatusActive,
		CreatedAt:        now,
	}
	if err := o.subscriptions.Create(ctx, sub); err != nil {
		return nil, fmt.Errorf("failed to create subscription: %w", err)
	}
	p.createdSubscription = true
	return sub, nil
}

// Compensate hard-deletes the entities this run created, subscription first.
func (o *approvalOrchestrator) Compensate(ctx context.Context, p *Provisioned) error {
	if p == nil {
		return nil
	}
	var errs []error
	if p.createdSubscription && p.Subscription != nil {
		if err := o.subscriptions.Delete(ctx, p.Subscription.ID); err != nil && !errors.Is(err, domain.ErrNotFound) {
			errs = append(errs, fmt.Errorf("failed to delete subscription %s: %w", p.Subscription.ID, err))
		} else {
			p.createdSubscription = false
		}
	}
	if p.createdAccount && p.Account != nil {
		if err := o.members.Delete(ctx, p.Account.ID); err != nil && !errors.Is(err, domain.ErrNotFound) {
			errs = append(errs, fmt.Errorf("failed to delete member account %s: %w", p.Account.ID, err))
		} else {
			p.createdAccount = false
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	logger.Info("Compensated approval entities", "requestID", requestIDOf(p))
	return nil
}

func requestIDOf(p *Provisioned) string {
	if p.Account != nil {
		return p.Account.RequestID
	}
	if p.Subscription != nil {
		return p.Subscription.RequestID
	}
	return ""
}

// Publish renders and stores the credentials document, then notifies the new
// member. Both steps share one timeout; whatever has not finished when it
// fires is reported as a warning.
func (o *approvalOrchestrator) Publish(ctx context.Context, in PublishInput) *Published {
	logger.EnterMethod("approvalOrchestrator.Publish", "requestID", in.Request.ID)

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	done := make(chan *Published, 1)
	go func() { done <- o.publish(ctx, in) }()

	var out *Published
	select {
	case out = <-done:
	case <-ctx.Done():
		out = &Published{Warnings: []error{&domain.ArtifactError{Step: StepPublish, Err: ctx.Err()}}}
	}

	for _, w := range out.Warnings {
		var aerr *domain.ArtifactError
		if errors.As(w, &aerr) {
			o.metrics.IncArtifactFailure(aerr.Step)
		}
	}
	logger.ExitMethod("approvalOrchestrator.Publish", "requestID", in.Request.ID, "credentialsURL", out.CredentialsDocURL, "warnings", len(out.Warnings))
	return out
}

func (o *approvalOrchestrator) publish(ctx context.Context, in PublishInput) *Published {
	out := &Published{CredentialsDocURL: in.Request.CredentialsDocURL}

	if out.CredentialsDocURL == "" {
		url, err := o.storeCredentials(ctx, in)
		if err != nil {
			logger.Warn("Credentials document not generated", "requestID", in.Request.ID, "error", err)
			out.Warnings = append(out.Warnings, &domain.ArtifactError{Step: StepCredentialsDocument, Err: err})
		} else {
			out.CredentialsDocURL = url
		}
	}

	msg, err := o.composer.Render(message.TemplateRequestApproved, map[string]any{
		"first_name":      in.Request.Identity.FirstName,
		"member_number":   in.Account.MemberNumber,
		"login":           in.Account.Login,
		"credentials_url": out.CredentialsDocURL,
	})
	if err != nil {
		out.Warnings = append(out.Warnings, &domain.ArtifactError{Step: StepNotification, Err: err})
		return out
	}
	out.Message = msg

	id, err := o.notify(ctx, in, msg, out.CredentialsDocURL)
	if err != nil {
		logger.Warn("Approval notification not created", "requestID", in.Request.ID, "error", err)
		out.Warnings = append(out.Warnings, &domain.ArtifactError{Step: StepNotification, Err: err})
	}
	out.NotificationID = id
	return out
}

func (o *approvalOrchestrator) storeCredentials(ctx context.Context, in PublishInput) (string, error) {
	typeName := ""
	if in.MembershipType != nil {
		typeName = in.MembershipType.Name
	}
	identity := in.IdentityArtifactURL
	if identity == "" {
		identity = in.Request.Documents.IDFrontURL
	}
	doc, err := o.composer.Render(message.TemplateCredentialsDocument, map[string]any{
		"full_name":             in.Request.Identity.FullName(),
		"member_number":         in.Account.MemberNumber,
		"matricule":             in.Request.Matricule,
		"membership_type":       typeName,
		"starts_on":             in.Subscription.StartsOn,
		"expires_on":            in.Subscription.ExpiresOn,
		"login":                 in.Account.Login,
		"photo_url":             in.Request.Documents.PhotoURL,
		"identity_document_url": identity,
	})
	if err != nil {
		return "", err
	}

	logger.ExternalServiceCall("BlobStore", "Store", "requestID", in.Request.ID)
	url, err := o.blobs.Store(ctx, []byte(doc), "text/html; charset=utf-8")
	logger.ExternalServiceResult("BlobStore", "Store", err, "requestID", in.Request.ID)
	if err != nil {
		return "", fmt.Errorf("failed to store credentials document: %w", err)
	}
	return url, nil
}

// notify creates the approval notification unless one already exists for
// this request, which keeps artifact retries from duplicating it.
func (o *approvalOrchestrator) notify(ctx context.Context, in PublishInput, msg, credentialsURL string) (string, error) {
	exists, err := o.notifications.ExistsForRequest(ctx, in.Account.ID, in.Request.ID)
	if err != nil {
		return "", fmt.Errorf("failed to check existing notification: %w", err)
	}
	if exists {
		return "", nil
	}

	attrs := map[string]string{
		"request_id":    in.Request.ID,
		"member_number": in.Account.MemberNumber,
	}
	if credentialsURL != "" {
		attrs["credentials_url"] = credentialsURL
	}
	note := &domain.Notification{
		MemberID:   in.Account.ID,
		Title:      "Adhésion validée",
		Message:    msg,
		Attributes: attrs,
		CreatedAt:  o.now().UTC(),
	}
	if err := o.notifications.Create(ctx, note); err != nil {
		return "", fmt.Errorf("failed to create notification: %w", err)
	}
	return note.ID, nil
}
