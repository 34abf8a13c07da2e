package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/nyaruka/phonenumbers"

	"membership-backend/internal/utils"
)

const (
	MinReasonLength = 10
	MaxReasonLength = 500
)

var genders = []interface{}{"M", "F"}

// NormalizePhone parses raw in the given default region and returns it in
// E.164 form.
func NormalizePhone(raw, region string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", NewValidationError("phone", "phone number is required")
	}
	num, err := phonenumbers.Parse(raw, region)
	if err != nil {
		return "", NewValidationError("phone", fmt.Sprintf("cannot parse phone number: %v", err))
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", NewValidationError("phone", "phone number is not valid")
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

func birthDateRule(now time.Time) validation.Rule {
	return validation.By(func(value interface{}) error {
		s, _ := value.(string)
		if s == "" {
			return nil
		}
		d, err := utils.ParseDate(s)
		if err != nil {
			return err
		}
		if !d.Time().Before(now) {
			return errors.New("must be in the past")
		}
		if utils.AgeOn(d, now) > 120 {
			return errors.New("is not plausible")
		}
		return nil
	})
}

// ValidatePayload checks an applicant payload and normalizes its phone
// numbers in place. region is the default region for numbers given without
// an international prefix.
func ValidatePayload(p *RequestPayload, region string, now time.Time) error {
	id := &p.Identity
	err := validation.ValidateStruct(id,
		validation.Field(&id.FirstName, validation.Required, validation.RuneLength(1, 100)),
		validation.Field(&id.LastName, validation.Required, validation.RuneLength(1, 100)),
		validation.Field(&id.MiddleName, validation.RuneLength(0, 100)),
		validation.Field(&id.Gender, validation.Required, validation.In(genders...)),
		validation.Field(&id.BirthDate, validation.Required, birthDateRule(now)),
		validation.Field(&id.Nationality, validation.Required),
		validation.Field(&id.IDDocumentNo, validation.RuneLength(0, 64)),
		validation.Field(&id.Email, is.EmailFormat),
	)
	if err != nil {
		return fieldError("identity", err)
	}
	phone, err := NormalizePhone(id.Phone, region)
	if err != nil {
		return prefixed("identity", err)
	}
	id.Phone = phone

	addr := &p.Address
	err = validation.ValidateStruct(addr,
		validation.Field(&addr.Province, validation.Required),
		validation.Field(&addr.City, validation.Required),
		validation.Field(&addr.Street, validation.Required, validation.RuneLength(1, 255)),
	)
	if err != nil {
		return fieldError("address", err)
	}

	if strings.TrimSpace(p.Company.Phone) != "" {
		phone, err := NormalizePhone(p.Company.Phone, region)
		if err != nil {
			return prefixed("company", err)
		}
		p.Company.Phone = phone
	}

	docs := &p.Documents
	err = validation.ValidateStruct(docs,
		validation.Field(&docs.PhotoURL, validation.Required),
	)
	if err != nil {
		return fieldError("documents", err)
	}
	return nil
}

// ValidateReason checks a rejection or reopen reason and returns it trimmed.
func ValidateReason(field, reason string, maxLen int) (string, error) {
	reason = strings.TrimSpace(reason)
	n := utf8.RuneCountInString(reason)
	if n < MinReasonLength {
		return "", NewValidationError(field, fmt.Sprintf("must be at least %d characters", MinReasonLength))
	}
	if maxLen > 0 && n > maxLen {
		return "", NewValidationError(field, fmt.Sprintf("must be at most %d characters", maxLen))
	}
	return reason, nil
}

// JoinCorrectionLines drops blank lines and joins the rest with newlines.
func JoinCorrectionLines(lines []string) (string, error) {
	var kept []string
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			kept = append(kept, l)
		}
	}
	if len(kept) == 0 {
		return "", NewValidationError("lines", "at least one correction line is required")
	}
	return strings.Join(kept, "\n"), nil
}

func fieldError(section string, err error) error {
	var errs validation.Errors
	if errors.As(err, &errs) {
		keys := make([]string, 0, len(errs))
		for k := range errs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if errs[k] != nil {
				return NewValidationError(section+"."+k, errs[k].Error())
			}
		}
	}
	return NewValidationError(section, err.Error())
}

func prefixed(section string, err error) error {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return NewValidationError(section+"."+ve.Field, ve.Reason)
	}
	return err
}
