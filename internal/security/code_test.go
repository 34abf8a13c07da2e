package security

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"membership-backend/internal/domain"
)

func TestSecurityCodeIssuer_Issue(t *testing.T) {
	issuer := NewSecurityCodeIssuer(72 * time.Hour)
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		code, exp, err := issuer.Issue(now)
		require.NoError(t, err)
		assert.Len(t, code, CodeLength)
		assert.Regexp(t, `^[0-9]{6}$`, code)
		assert.Equal(t, now.Add(72*time.Hour), exp)
		seen[code] = true
	}
	assert.Greater(t, len(seen), 150)

	t.Run("Leading zeros are kept", func(t *testing.T) {
		// big-endian zero bytes make rand.Int return 0
		zero := &SecurityCodeIssuer{ttl: time.Hour, random: bytes.NewReader(make([]byte, 64))}
		code, _, err := zero.Issue(now)
		require.NoError(t, err)
		assert.Equal(t, "000000", code)
	})
}

func TestSecurityCodeIssuer_Verify(t *testing.T) {
	issuer := NewSecurityCodeIssuer(time.Hour)
	now := time.Now()
	future := now.Add(time.Hour)
	past := now.Add(-time.Minute)

	cases := []struct {
		name      string
		code      string
		expiry    *time.Time
		used      bool
		candidate string
		want      domain.VerifyResult
	}{
		{"valid", "012345", &future, false, "012345", domain.VerifyValid},
		{"valid with display separators", "012345", &future, false, "01-23-45", domain.VerifyValid},
		{"incorrect", "012345", &future, false, "999999", domain.VerifyCodeIncorrect},
		{"expired", "012345", &past, false, "012345", domain.VerifyCodeExpired},
		{"used", "012345", &future, true, "012345", domain.VerifyCodeAlreadyUsed},
		{"used and expired reports used", "012345", &past, true, "012345", domain.VerifyCodeAlreadyUsed},
		{"expired and wrong reports expired", "012345", &past, false, "111111", domain.VerifyCodeExpired},
		{"no code issued", "", nil, false, "012345", domain.VerifyCodeIncorrect},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, issuer.Verify(tc.code, tc.expiry, tc.used, tc.candidate, now))
		})
	}
}

func TestGenerators(t *testing.T) {
	m, err := GenerateMatricule("ADH", time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Regexp(t, `^ADH-2026-[A-Z0-9]{6}$`, m)

	assert.Equal(t, "MBR-000042", FormatMemberNumber("MBR", 42))

	pw, err := GenerateTemporaryPassword()
	require.NoError(t, err)
	assert.Len(t, pw, TemporaryPasswordLength)

	hash, err := HashPassword(pw)
	require.NoError(t, err)
	assert.True(t, CheckPassword(hash, pw))
	assert.False(t, CheckPassword(hash, pw+"x"))
}
