package domain

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validPayload() RequestPayload {
	return RequestPayload{
		Identity: Identity{
			FirstName:   "Grace",
			LastName:    "Mukendi",
			Gender:      "F",
			BirthDate:   "1991-04-12",
			Nationality: "Congolaise",
			Phone:       "0812345678",
			Email:       "grace@example.org",
		},
		Address: Address{
			Province: "Kinshasa",
			City:     "Kinshasa",
			Street:   "12 avenue de la Paix",
		},
		Documents: Documents{PhotoURL: "/files/photo.jpg"},
	}
}

func TestValidatePayload(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("Success normalizes phone", func(t *testing.T) {
		p := validPayload()
		require.NoError(t, ValidatePayload(&p, "CD", now))
		assert.Equal(t, "+243812345678", p.Identity.Phone)
	})

	cases := []struct {
		name  string
		mut   func(p *RequestPayload)
		field string
	}{
		{"missing first name", func(p *RequestPayload) { p.Identity.FirstName = "" }, "identity.first_name"},
		{"bad gender", func(p *RequestPayload) { p.Identity.Gender = "X" }, "identity.gender"},
		{"malformed birth date", func(p *RequestPayload) { p.Identity.BirthDate = "12/04/1991" }, "identity.birth_date"},
		{"future birth date", func(p *RequestPayload) { p.Identity.BirthDate = "2030-01-01" }, "identity.birth_date"},
		{"bad email", func(p *RequestPayload) { p.Identity.Email = "not-an-email" }, "identity.email"},
		{"bad phone", func(p *RequestPayload) { p.Identity.Phone = "12" }, "identity.phone"},
		{"missing city", func(p *RequestPayload) { p.Address.City = "" }, "address.city"},
		{"missing photo", func(p *RequestPayload) { p.Documents.PhotoURL = "" }, "documents.photo_url"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := validPayload()
			tc.mut(&p)
			err := ValidatePayload(&p, "CD", now)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrValidation))
			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tc.field, ve.Field)
		})
	}
}

func TestValidateReason(t *testing.T) {
	_, err := ValidateReason("reason", "  court  ", MaxReasonLength)
	assert.True(t, errors.Is(err, ErrValidation))

	_, err = ValidateReason("reason", strings.Repeat("a", 501), MaxReasonLength)
	assert.True(t, errors.Is(err, ErrValidation))

	r, err := ValidateReason("reason", " Document d'identité invalide ", MaxReasonLength)
	require.NoError(t, err)
	assert.Equal(t, "Document d'identité invalide", r)

	// 10 runes, 12 bytes
	_, err = ValidateReason("reason", "éééééééééé", MaxReasonLength)
	assert.NoError(t, err)
}

func TestJoinCorrectionLines(t *testing.T) {
	note, err := JoinCorrectionLines([]string{"Photo floue", "  ", "Adresse incomplète"})
	require.NoError(t, err)
	assert.Equal(t, "Photo floue\nAdresse incomplète", note)

	_, err = JoinCorrectionLines([]string{"", " \t"})
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestCheckInvariants(t *testing.T) {
	now := time.Now()
	future := now.Add(time.Hour)

	t.Run("Approved requires paid and member number", func(t *testing.T) {
		r := &MembershipRequest{Status: RequestStatusApproved, ProcessedByID: "a1", ProcessedByName: "Alice", ProcessedAt: &now}
		assert.Error(t, CheckInvariants(r))
		r.IsPaid = true
		assert.Error(t, CheckInvariants(r))
		r.MemberNumber = "M-000001"
		assert.NoError(t, CheckInvariants(r))
	})

	t.Run("Under review requires live code and note", func(t *testing.T) {
		r := &MembershipRequest{Status: RequestStatusUnderReview, SecurityCode: "012345", SecurityCodeExpiry: &future}
		assert.Error(t, CheckInvariants(r))
		r.ReviewNote = "Photo floue"
		assert.NoError(t, CheckInvariants(r))
		r.SecurityCodeUsed = true
		assert.Error(t, CheckInvariants(r))
	})

	t.Run("Rejected requires motif", func(t *testing.T) {
		r := &MembershipRequest{Status: RequestStatusRejected, ProcessedByID: "a1", ProcessedByName: "Alice", ProcessedAt: &now}
		assert.Error(t, CheckInvariants(r))
		r.MotifReject = "Document d'identité invalide"
		assert.NoError(t, CheckInvariants(r))
	})

	t.Run("Placeholder identity is fatal", func(t *testing.T) {
		r := &MembershipRequest{Status: RequestStatusPending, ProcessedByID: "a1", ProcessedByName: "unknown", ProcessedAt: &now}
		assert.True(t, errors.Is(CheckInvariants(r), ErrSecurityInvariant))

		r = &MembershipRequest{Status: RequestStatusPending, Payments: []Payment{{AcceptedByID: "", AcceptedByName: "Alice"}}}
		assert.True(t, errors.Is(CheckInvariants(r), ErrSecurityInvariant))
	})

	t.Run("Outstanding code outside review", func(t *testing.T) {
		r := &MembershipRequest{Status: RequestStatusPending, SecurityCode: "123456", SecurityCodeExpiry: &future}
		assert.Error(t, CheckInvariants(r))
		r.SecurityCodeUsed = true
		assert.NoError(t, CheckInvariants(r))
	})
}
