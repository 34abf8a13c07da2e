package message

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatCode(t *testing.T) {
	assert.Equal(t, "01-23-45", FormatCode("012345"))
	assert.Equal(t, "123", FormatCode("123"))
}

func TestComposer_Render(t *testing.T) {
	c, err := NewComposer()
	require.NoError(t, err)

	t.Run("Corrections requested", func(t *testing.T) {
		out, err := c.Render(TemplateCorrectionsRequested, map[string]any{
			"first_name": "Grace",
			"matricule":  "ADH-2026-ABC123",
			"lines":      []string{"Photo floue", "Adresse incomplète"},
			"code":       "012345",
			"expiry":     time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC),
			"portal_url": "https://portail.example.org",
		})
		require.NoError(t, err)
		assert.Contains(t, out, "- Photo floue")
		assert.Contains(t, out, "- Adresse incomplète")
		assert.Contains(t, out, "01-23-45")
		assert.NotContains(t, out, "012345")
		assert.Contains(t, out, "04/05/2026")
	})

	t.Run("Credentials document escapes input", func(t *testing.T) {
		out, err := c.Render(TemplateCredentialsDocument, map[string]any{
			"full_name":     "<script>x</script>",
			"member_number": "MBR-000001",
		})
		require.NoError(t, err)
		assert.Contains(t, out, "MBR-000001")
		assert.False(t, strings.Contains(out, "<script>"))
	})

	t.Run("Plain text is not HTML escaped", func(t *testing.T) {
		out, err := c.Render(TemplateRequestRejected, map[string]any{
			"first_name": "Grace",
			"matricule":  "ADH-2026-ABC123",
			"reason":     "Document d'identité invalide",
		})
		require.NoError(t, err)
		assert.Contains(t, out, "Motif : Document d'identité invalide")
	})

	t.Run("Unknown template", func(t *testing.T) {
		_, err := c.Render("nope", nil)
		assert.Error(t, err)
	})
}

func TestWhatsAppLink(t *testing.T) {
	link, err := WhatsAppLink("0812345678", "CD", "Code: 01-23-45 & merci")
	require.NoError(t, err)
	assert.Equal(t, "https://wa.me/243812345678?text=Code%3A%2001-23-45%20%26%20merci", link)

	_, err = WhatsAppLink("abc", "CD", "x")
	assert.Error(t, err)
}
