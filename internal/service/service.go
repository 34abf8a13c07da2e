package service

import (
	"context"
	"time"

	"membership-backend/internal/domain"
)

// RequestLifecycle drives every legal transition of a membership request.
// Admin identities are passed explicitly and validated before any write.
type RequestLifecycle interface {
	Submit(ctx context.Context, payload domain.RequestPayload) (*domain.MembershipRequest, error)
	Get(ctx context.Context, id string) (*domain.MembershipRequest, error)
	GetByMatricule(ctx context.Context, matricule string) (*domain.MembershipRequest, error)
	List(ctx context.Context, filter domain.RequestFilter) ([]domain.MembershipRequest, int32, error)
	ListMembershipTypes(ctx context.Context) ([]domain.MembershipType, error)

	Pay(ctx context.Context, id string, admin domain.AdminIdentity, in domain.PaymentInput) (*domain.MembershipRequest, error)
	Approve(ctx context.Context, id string, admin domain.AdminIdentity, decision domain.ApprovalDecision) (*domain.ApprovalArtifacts, error)
	Reject(ctx context.Context, id string, admin domain.AdminIdentity, reason string) (*Outcome, error)
	RequestCorrections(ctx context.Context, id string, admin domain.AdminIdentity, lines []string) (*domain.IssuedCode, error)
	Reopen(ctx context.Context, id string, admin domain.AdminIdentity, reason string) (*domain.MembershipRequest, error)
	RegenerateCode(ctx context.Context, id string, admin domain.AdminIdentity, confirmed bool) (*domain.IssuedCode, error)
	Delete(ctx context.Context, id string, admin domain.AdminIdentity, typedMatricule string) error
	RetryArtifacts(ctx context.Context, id string) (*domain.ApprovalArtifacts, error)

	// Applicant side
	VerifyCode(ctx context.Context, id, candidate string) (domain.VerifyResult, error)
	SubmitCorrections(ctx context.Context, id, code string, payload domain.RequestPayload) (*domain.MembershipRequest, error)
}

// Outcome is a transition result together with the applicant message it produced.
type Outcome struct {
	Request      *domain.MembershipRequest `json:"request"`
	Message      string                    `json:"message,omitempty"`
	WhatsAppLink string                    `json:"whatsapp_link,omitempty"`
}

// PaymentLedger validates payments and derives the paid predicate. It never
// touches storage.
type PaymentLedger interface {
	Append(req *domain.MembershipRequest, in domain.PaymentInput, admin domain.AdminIdentity, now time.Time) (*domain.MembershipRequest, error)
	IsPaid(payments []domain.Payment) bool
	Fee() int64
}

// ApprovalOrchestrator performs the side effects of an approval. Provision
// covers the mandatory steps and compensates its own partial work on failure;
// Publish covers the best-effort steps and only reports failures.
type ApprovalOrchestrator interface {
	Provision(ctx context.Context, req *domain.MembershipRequest, mt *domain.MembershipType) (*Provisioned, error)
	Compensate(ctx context.Context, p *Provisioned) error
	Publish(ctx context.Context, in PublishInput) *Published
}

type NotificationService interface {
	GetNotifications(ctx context.Context, memberID string, page, pageSize int32) ([]domain.Notification, int32, error)
	MarkAsRead(ctx context.Context, memberID, notificationID string) error
}

// EmailService sends a single plain-text message.
type EmailService interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// EmailDispatcher accepts messages for asynchronous, best-effort delivery.
type EmailDispatcher interface {
	Enqueue(msg EmailMessage) bool
}

type EmailMessage struct {
	To      string
	ToName  string
	Subject string
	Body    string
}
