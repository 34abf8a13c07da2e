package security

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"io"
	"math/big"
	"strings"
	"time"

	"membership-backend/internal/domain"
)

// CodeLength is the number of digits in a correction code.
const CodeLength = 6

var codeSpace = big.NewInt(1_000_000)

// SecurityCodeIssuer generates and checks one-time correction codes. It never
// touches storage: callers persist the triple it produces.
type SecurityCodeIssuer struct {
	ttl    time.Duration
	random io.Reader
}

func NewSecurityCodeIssuer(ttl time.Duration) *SecurityCodeIssuer {
	return &SecurityCodeIssuer{ttl: ttl, random: rand.Reader}
}

func (s *SecurityCodeIssuer) TTL() time.Duration { return s.ttl }

// Issue returns a uniformly random 6-digit code and its expiry.
func (s *SecurityCodeIssuer) Issue(now time.Time) (string, time.Time, error) {
	n, err := rand.Int(s.random, codeSpace)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to generate security code: %w", err)
	}
	return fmt.Sprintf("%0*d", CodeLength, n.Int64()), now.Add(s.ttl), nil
}

// Verify checks candidate against the stored triple. The used check runs
// first, then expiry, then equality.
func (s *SecurityCodeIssuer) Verify(storedCode string, storedExpiry *time.Time, storedUsed bool, candidate string, now time.Time) domain.VerifyResult {
	if storedUsed {
		return domain.VerifyCodeAlreadyUsed
	}
	if storedCode == "" {
		return domain.VerifyCodeIncorrect
	}
	if storedExpiry == nil || !now.Before(*storedExpiry) {
		return domain.VerifyCodeExpired
	}
	c := NormalizeCode(candidate)
	if subtle.ConstantTimeCompare([]byte(c), []byte(storedCode)) != 1 {
		return domain.VerifyCodeIncorrect
	}
	return domain.VerifyValid
}

// NormalizeCode strips the display separators an applicant may type back.
func NormalizeCode(candidate string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '\t':
			return -1
		}
		return r
	}, candidate)
}
