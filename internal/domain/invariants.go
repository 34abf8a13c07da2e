package domain

import (
	"fmt"
	"unicode/utf8"
)

// CheckInvariants verifies the cross-field rules every persisted request must
// satisfy. Lifecycle writes call it before handing the aggregate to storage.
func CheckInvariants(r *MembershipRequest) error {
	if !r.Status.Valid() {
		return &InvariantError{Field: "status", Value: string(r.Status)}
	}

	if r.ProcessedAt != nil {
		if err := (AdminIdentity{ID: r.ProcessedByID, Name: r.ProcessedByName}).Validate("processed_by"); err != nil {
			return err
		}
	}
	for _, p := range r.Payments {
		if err := (AdminIdentity{ID: p.AcceptedByID, Name: p.AcceptedByName}).Validate("accepted_by"); err != nil {
			return err
		}
	}

	switch r.Status {
	case RequestStatusApproved:
		if !r.IsPaid {
			return &InvariantError{Field: "is_paid", Value: "false"}
		}
		if r.MemberNumber == "" {
			return &InvariantError{Field: "member_number", Value: ""}
		}
		if r.ProcessedAt == nil {
			return &InvariantError{Field: "processed_at", Value: ""}
		}
	case RequestStatusUnderReview:
		if r.SecurityCode == "" || r.SecurityCodeExpiry == nil {
			return &InvariantError{Field: "security_code", Value: ""}
		}
		if r.SecurityCodeUsed {
			return &InvariantError{Field: "security_code_used", Value: "true"}
		}
		if r.ReviewNote == "" {
			return &InvariantError{Field: "review_note", Value: ""}
		}
	case RequestStatusRejected:
		if n := utf8.RuneCountInString(r.MotifReject); n < MinReasonLength || n > MaxReasonLength {
			return &InvariantError{Field: "motif_reject", Value: fmt.Sprintf("%d chars", n)}
		}
		if r.ProcessedAt == nil {
			return &InvariantError{Field: "processed_at", Value: ""}
		}
	}

	if r.Status != RequestStatusUnderReview && r.SecurityCode != "" && !r.SecurityCodeUsed {
		return &InvariantError{Field: "security_code", Value: "outstanding"}
	}
	return nil
}
