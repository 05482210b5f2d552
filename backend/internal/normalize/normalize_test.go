package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCustomerSKU_Idempotent(t *testing.T) {
	inputs := []string{"AB-12", "  ab 12 ", "cd_34!", "AB12"}
	for _, in := range inputs {
		once := CustomerSKU(in)
		twice := CustomerSKU(once)
		assert.Equal(t, once, twice, "idempotence failed for %q", in)
	}
}

func TestCustomerSKU_Examples(t *testing.T) {
	assert.Equal(t, "AB12", CustomerSKU("AB-12"))
	assert.Equal(t, "CD34", CustomerSKU("CD-34"))
}

func TestCanonicalUoM_Defaults(t *testing.T) {
	canon, ok := CanonicalUoM("Stk", nil)
	assert.True(t, ok)
	assert.Equal(t, "ST", canon)

	canon, ok = CanonicalUoM("Meter", nil)
	assert.True(t, ok)
	assert.Equal(t, "M", canon)
}

func TestCanonicalUoM_TenantSynonymOverridesDefault(t *testing.T) {
	canon, ok := CanonicalUoM("EACH", map[string]string{"EACH": "ST"})
	assert.True(t, ok)
	assert.Equal(t, "ST", canon)
}

func TestCanonicalUoM_UnknownReturnsFalse(t *testing.T) {
	_, ok := CanonicalUoM("FURLONGS", nil)
	assert.False(t, ok)
}
