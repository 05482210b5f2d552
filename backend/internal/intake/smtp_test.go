package intake

import (
	"bufio"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractAddress_ParsesAngleBracketedAddress(t *testing.T) {
	got := extractAddress("RCPT TO:<orders+acme@orders.orderflow.example.com>")
	assert.Equal(t, "orders+acme@orders.orderflow.example.com", got)
}

func TestExtractAddress_MissingBracketsReturnsEmpty(t *testing.T) {
	assert.Equal(t, "", extractAddress("RCPT TO:orders+acme@orders.orderflow.example.com"))
}

func TestSlugFromLocalPart_ParsesOrdersPlusSlugConvention(t *testing.T) {
	slug, ok := slugFromLocalPart("orders+acme@orders.orderflow.example.com", "orders.orderflow.example.com")
	require.True(t, ok)
	assert.Equal(t, "acme", slug)
}

func TestSlugFromLocalPart_WrongDomainRejected(t *testing.T) {
	_, ok := slugFromLocalPart("orders+acme@evil.example.com", "orders.orderflow.example.com")
	assert.False(t, ok)
}

func TestSlugFromLocalPart_MissingPrefixRejected(t *testing.T) {
	_, ok := slugFromLocalPart("acme@orders.orderflow.example.com", "orders.orderflow.example.com")
	assert.False(t, ok)
}

func TestSlugFromLocalPart_EmptySlugRejected(t *testing.T) {
	_, ok := slugFromLocalPart("orders+@orders.orderflow.example.com", "orders.orderflow.example.com")
	assert.False(t, ok)
}

func TestSlugFromLocalPart_DomainCaseInsensitive(t *testing.T) {
	slug, ok := slugFromLocalPart("orders+acme@ORDERS.orderflow.example.com", "orders.orderflow.example.com")
	require.True(t, ok)
	assert.Equal(t, "acme", slug)
}

func TestReadDotTerminated_UnescapesLeadingDotAndStopsAtTerminator(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("Subject: test\r\n..hidden leading dot\r\nbody\r\n.\r\nIGNORED AFTER TERMINATOR"))
	got, err := readDotTerminated(r, 1<<20)
	require.NoError(t, err)
	assert.Equal(t, "Subject: test\n.hidden leading dot\nbody\n", string(got))
}

func TestReadDotTerminated_RejectsOversizedMessage(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("a very long line that exceeds the tiny limit\r\n.\r\n"))
	_, err := readDotTerminated(r, 5)
	require.Error(t, err)
}
