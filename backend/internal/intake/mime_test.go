package intake

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildRawMessage(boundary string, messageID string, parts []string) string {
	var sb strings.Builder
	sb.WriteString("From: buyer@example.com\r\n")
	sb.WriteString("To: orders+acme@orders.orderflow.example.com\r\n")
	if messageID != "" {
		sb.WriteString("Message-ID: <" + messageID + ">\r\n")
	}
	sb.WriteString("Content-Type: multipart/mixed; boundary=" + boundary + "\r\n\r\n")
	for _, p := range parts {
		sb.WriteString("--" + boundary + "\r\n")
		sb.WriteString(p)
		sb.WriteString("\r\n")
	}
	sb.WriteString("--" + boundary + "--\r\n")
	return sb.String()
}

func TestWalkMIME_ExtractsAttachmentsOnly(t *testing.T) {
	raw := buildRawMessage("BOUND1", "abc123@example.com", []string{
		"Content-Type: text/plain\r\n\r\nPlease see attached PO.\r\n",
		"Content-Type: application/pdf\r\nContent-Disposition: attachment; filename=\"PO-100.pdf\"\r\n\r\n%PDF-fake-bytes\r\n",
	})

	parsed, err := WalkMIME([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, "abc123@example.com", parsed.MessageID)
	require.Len(t, parsed.Attachments, 1)
	assert.Equal(t, "PO-100.pdf", parsed.Attachments[0].Filename)
}

func TestWalkMIME_SyntheticMessageIDWhenAbsent(t *testing.T) {
	raw := buildRawMessage("BOUND2", "", []string{
		"Content-Type: application/pdf\r\nContent-Disposition: attachment; filename=\"PO.pdf\"\r\n\r\nbytes\r\n",
	})

	parsed, err := WalkMIME([]byte(raw))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(parsed.MessageID, "urn:sha256:"))
}

func TestWalkMIME_SkipsSoleAttachmentRuleForInlineImages(t *testing.T) {
	// An inline logo alongside a real attachment is dropped.
	raw := buildRawMessage("BOUND3", "m1@example.com", []string{
		"Content-Type: image/png\r\nContent-Disposition: inline; filename=\"logo.png\"\r\n\r\nimgbytes\r\n",
		"Content-Type: text/csv\r\nContent-Disposition: attachment; filename=\"order.csv\"\r\n\r\nsku,qty\r\n",
	})
	parsed, err := WalkMIME([]byte(raw))
	require.NoError(t, err)
	require.Len(t, parsed.Attachments, 1)
	assert.Equal(t, "order.csv", parsed.Attachments[0].Filename)

	// An inline logo with no other attachment is kept (sole-attachment rule).
	rawSolo := buildRawMessage("BOUND4", "m2@example.com", []string{
		"Content-Type: image/png\r\nContent-Disposition: inline; filename=\"logo.png\"\r\n\r\nimgbytes\r\n",
	})
	parsedSolo, err := WalkMIME([]byte(rawSolo))
	require.NoError(t, err)
	require.Len(t, parsedSolo.Attachments, 1)
	assert.Equal(t, "logo.png", parsedSolo.Attachments[0].Filename)
}

func TestWalkMIME_SyntheticFilenameFallback(t *testing.T) {
	raw := buildRawMessage("BOUND5", "m3@example.com", []string{
		"Content-Type: application/pdf\r\n\r\nbytes\r\n",
	})
	parsed, err := WalkMIME([]byte(raw))
	require.NoError(t, err)
	require.Len(t, parsed.Attachments, 1)
	assert.Equal(t, "part-0.pdf", parsed.Attachments[0].Filename)
}

func TestSlugFromLocalPart(t *testing.T) {
	slug, ok := slugFromLocalPart("orders+acme@orders.orderflow.example.com", "orders.orderflow.example.com")
	require.True(t, ok)
	assert.Equal(t, "acme", slug)

	_, ok = slugFromLocalPart("sales@orders.orderflow.example.com", "orders.orderflow.example.com")
	assert.False(t, ok)

	_, ok = slugFromLocalPart("orders+acme@wrong-domain.com", "orders.orderflow.example.com")
	assert.False(t, ok)
}
