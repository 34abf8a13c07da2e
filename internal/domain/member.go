package domain

import "time"

type MemberStatus string

const (
	MemberStatusActive   MemberStatus = "ACTIVE"
	MemberStatusDisabled MemberStatus = "DISABLED"
)

// MemberAccount is the login identity created when a request is approved.
// RequestID is unique: it is the idempotency key of account creation.
type MemberAccount struct {
	ID           string       `json:"id"`
	RequestID    string       `json:"request_id"`
	MemberNumber string       `json:"member_number"`
	Login        string       `json:"login"`
	PasswordHash string       `json:"-"`
	FirstName    string       `json:"first_name"`
	LastName     string       `json:"last_name"`
	Email        string       `json:"email"`
	Phone        string       `json:"phone"`
	CompanyID    string       `json:"company_id,omitempty"`
	ProfessionID string       `json:"profession_id,omitempty"`
	Status       MemberStatus `json:"status"`
	CreatedAt    time.Time    `json:"created_at"`
}

type SubscriptionStatus string

const (
	SubscriptionStatusActive  SubscriptionStatus = "ACTIVE"
	SubscriptionStatusExpired SubscriptionStatus = "EXPIRED"
)

// Subscription links an account to a membership type and the payments that
// funded it. RequestID is unique, like on MemberAccount.
type Subscription struct {
	ID               string             `json:"id"`
	RequestID        string             `json:"request_id"`
	MemberID         string             `json:"member_id"`
	MembershipTypeID string             `json:"membership_type_id"`
	PaymentIDs       []string           `json:"payment_ids"`
	AmountPaid       int64              `json:"amount_paid"`
	StartsOn         time.Time          `json:"starts_on"`
	ExpiresOn        time.Time          `json:"expires_on"`
	Status           SubscriptionStatus `json:"status"`
	CreatedAt        time.Time          `json:"created_at"`
}

type MembershipType struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Fee            int64  `json:"fee"`
	DurationMonths int    `json:"duration_months"`
	Active         bool   `json:"active"`
}

// ApprovalDecision is the admin input to the approve transition.
type ApprovalDecision struct {
	MembershipTypeID    string `json:"membership_type_id"`
	IdentityArtifactURL string `json:"identity_artifact_url"`
}

// ApprovalArtifacts is everything produced by a successful approval. Warnings
// carries non-fatal *ArtifactError values from best-effort steps.
type ApprovalArtifacts struct {
	Request           *MembershipRequest `json:"request"`
	Account           *MemberAccount     `json:"account"`
	Subscription      *Subscription      `json:"subscription"`
	TemporaryPassword string             `json:"-"`
	CredentialsDocURL string             `json:"credentials_doc_url,omitempty"`
	NotificationID    string             `json:"notification_id,omitempty"`
	Message           string             `json:"message,omitempty"`
	WhatsAppLink      string             `json:"whatsapp_link,omitempty"`
	Warnings          []error            `json:"-"`
}
