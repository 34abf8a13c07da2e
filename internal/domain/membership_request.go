package domain

import (
	"strings"
	"time"
)

type RequestStatus string

const (
	RequestStatusPending     RequestStatus = "pending"
	RequestStatusUnderReview RequestStatus = "under_review"
	RequestStatusApproved    RequestStatus = "approved"
	RequestStatusRejected    RequestStatus = "rejected"
)

func (s RequestStatus) Valid() bool {
	switch s {
	case RequestStatusPending, RequestStatusUnderReview, RequestStatusApproved, RequestStatusRejected:
		return true
	}
	return false
}

type Transition string

const (
	TransitionPay                Transition = "pay"
	TransitionApprove            Transition = "approve"
	TransitionReject             Transition = "reject"
	TransitionRequestCorrections Transition = "request_corrections"
	TransitionSubmitCorrections  Transition = "submit_corrections"
	TransitionReopen             Transition = "reopen"
	TransitionRegenerateCode     Transition = "regenerate_code"
	TransitionDelete             Transition = "delete"

	// TransitionRetryArtifacts re-runs the publish phase of an approval.
	// It does not change the status.
	TransitionRetryArtifacts Transition = "retry_artifacts"
)

// transitionSources lists, per transition, the statuses it may start from.
var transitionSources = map[Transition][]RequestStatus{
	TransitionPay:                {RequestStatusPending},
	TransitionApprove:            {RequestStatusPending},
	TransitionReject:             {RequestStatusPending, RequestStatusUnderReview},
	TransitionRequestCorrections: {RequestStatusPending},
	TransitionSubmitCorrections:  {RequestStatusUnderReview},
	TransitionReopen:             {RequestStatusRejected},
	TransitionRegenerateCode:     {RequestStatusUnderReview},
	TransitionDelete:             {RequestStatusRejected},
	TransitionRetryArtifacts:     {RequestStatusApproved},
}

// CanTransition reports whether t is legal from the given status.
func CanTransition(t Transition, from RequestStatus) bool {
	for _, s := range transitionSources[t] {
		if s == from {
			return true
		}
	}
	return false
}

// EnsureTransition returns a *TransitionError when t is not legal from req's status.
func (r *MembershipRequest) EnsureTransition(t Transition) error {
	if !CanTransition(t, r.Status) {
		return &TransitionError{Transition: t, From: r.Status}
	}
	return nil
}

type Identity struct {
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	MiddleName     string `json:"middle_name,omitempty"`
	Gender         string `json:"gender"`
	BirthDate      string `json:"birth_date"` // yyyy-mm-dd
	BirthPlace     string `json:"birth_place"`
	Nationality    string `json:"nationality"`
	IDDocumentType string `json:"id_document_type"`
	IDDocumentNo   string `json:"id_document_number"`
	Phone          string `json:"phone"`
	Email          string `json:"email"`
	Profession     string `json:"profession,omitempty"`
}

func (i Identity) FullName() string {
	parts := []string{i.FirstName, i.MiddleName, i.LastName}
	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}

type Address struct {
	ProvinceID string `json:"province_id"`
	Province   string `json:"province"`
	CityID     string `json:"city_id"`
	City       string `json:"city"`
	DistrictID string `json:"district_id,omitempty"`
	District   string `json:"district,omitempty"`
	QuarterID  string `json:"quarter_id,omitempty"`
	Quarter    string `json:"quarter,omitempty"`
	Street     string `json:"street"`
}

type Company struct {
	Name     string `json:"name,omitempty"`
	Sector   string `json:"sector,omitempty"`
	Position string `json:"position,omitempty"`
	Phone    string `json:"phone,omitempty"`
}

type Documents struct {
	PhotoURL     string `json:"photo_url"`
	IDFrontURL   string `json:"id_front_url,omitempty"`
	IDBackURL    string `json:"id_back_url,omitempty"`
	SignatureURL string `json:"signature_url,omitempty"`
}

// URLs returns every non-empty document reference.
func (d Documents) URLs() []string {
	var urls []string
	for _, u := range []string{d.PhotoURL, d.IDFrontURL, d.IDBackURL, d.SignatureURL} {
		if u != "" {
			urls = append(urls, u)
		}
	}
	return urls
}

// RequestPayload is the applicant-submitted part of a request. It is set at
// submission and only overwritten by a verified correction submission.
type RequestPayload struct {
	Identity         Identity  `json:"identity"`
	Address          Address   `json:"address"`
	Company          Company   `json:"company"`
	Documents        Documents `json:"documents"`
	MembershipTypeID string    `json:"membership_type_id,omitempty"`
}

type MembershipRequest struct {
	ID        string        `json:"id"`
	Matricule string        `json:"matricule"`
	Status    RequestStatus `json:"status"`
	IsPaid    bool          `json:"is_paid"`
	Payments  []Payment     `json:"payments"`

	Identity         Identity  `json:"identity"`
	Address          Address   `json:"address"`
	Company          Company   `json:"company"`
	Documents        Documents `json:"documents"`
	MembershipTypeID string    `json:"membership_type_id,omitempty"`

	ReviewNote   string `json:"review_note,omitempty"`
	MotifReject  string `json:"motif_reject,omitempty"`
	ReopenReason string `json:"reopen_reason,omitempty"`

	SecurityCode       string     `json:"-"`
	SecurityCodeExpiry *time.Time `json:"security_code_expiry,omitempty"`
	SecurityCodeUsed   bool       `json:"security_code_used"`

	ProcessedByID   string     `json:"processed_by_id,omitempty"`
	ProcessedByName string     `json:"processed_by_name,omitempty"`
	ProcessedAt     *time.Time `json:"processed_at,omitempty"`

	ApprovalClaim     string     `json:"-"`
	ApprovalClaimedAt *time.Time `json:"-"`

	MemberNumber      string `json:"member_number,omitempty"`
	MemberID          string `json:"member_id,omitempty"`
	CredentialsDocURL string `json:"credentials_doc_url,omitempty"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ApplyPayload overwrites the applicant-owned sections.
func (r *MembershipRequest) ApplyPayload(p RequestPayload) {
	r.Identity = p.Identity
	r.Address = p.Address
	r.Company = p.Company
	r.Documents = p.Documents
	if p.MembershipTypeID != "" {
		r.MembershipTypeID = p.MembershipTypeID
	}
}

// Payload returns the applicant-owned sections as a payload value.
func (r *MembershipRequest) Payload() RequestPayload {
	return RequestPayload{
		Identity:         r.Identity,
		Address:          r.Address,
		Company:          r.Company,
		Documents:        r.Documents,
		MembershipTypeID: r.MembershipTypeID,
	}
}

// RecordDecision stamps the admin decision fields.
func (r *MembershipRequest) RecordDecision(admin AdminIdentity, at time.Time) {
	r.ProcessedByID = admin.ID
	r.ProcessedByName = admin.Name
	t := at
	r.ProcessedAt = &t
}

// ClearSecurityCode removes the correction credential triple.
func (r *MembershipRequest) ClearSecurityCode() {
	r.SecurityCode = ""
	r.SecurityCodeExpiry = nil
	r.SecurityCodeUsed = false
}

// HasLiveClaim reports whether another approval currently holds the request.
func (r *MembershipRequest) HasLiveClaim(now time.Time, ttl time.Duration) bool {
	if r.ApprovalClaim == "" || r.ApprovalClaimedAt == nil {
		return false
	}
	return now.Before(r.ApprovalClaimedAt.Add(ttl))
}

func (r *MembershipRequest) ReleaseClaim() {
	r.ApprovalClaim = ""
	r.ApprovalClaimedAt = nil
}

// Clone returns a deep copy so stores never share slices with callers.
func (r *MembershipRequest) Clone() *MembershipRequest {
	if r == nil {
		return nil
	}
	c := *r
	c.Payments = append([]Payment(nil), r.Payments...)
	if r.SecurityCodeExpiry != nil {
		t := *r.SecurityCodeExpiry
		c.SecurityCodeExpiry = &t
	}
	if r.ProcessedAt != nil {
		t := *r.ProcessedAt
		c.ProcessedAt = &t
	}
	if r.ApprovalClaimedAt != nil {
		t := *r.ApprovalClaimedAt
		c.ApprovalClaimedAt = &t
	}
	return &c
}

// RequestFilter narrows admin listings.
type RequestFilter struct {
	Status   RequestStatus
	Page     int32
	PageSize int32
}

func (f RequestFilter) Normalize() RequestFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 || f.PageSize > 100 {
		f.PageSize = 20
	}
	return f
}

func (f RequestFilter) Offset() int32 {
	return (f.Page - 1) * f.PageSize
}
