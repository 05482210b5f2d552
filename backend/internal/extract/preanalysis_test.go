package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLayoutFingerprint_StableAcrossWhitespaceDifferences(t *testing.T) {
	a := LayoutFingerprint("Purchase   Order\n\n  123")
	b := LayoutFingerprint("Purchase Order 123")
	assert.Equal(t, a, b)
}

func TestLayoutFingerprint_DifferentTextDifferentHash(t *testing.T) {
	a := LayoutFingerprint("Purchase Order 123")
	b := LayoutFingerprint("Purchase Order 456")
	assert.NotEqual(t, a, b)
}

func TestLayoutFingerprint_IsHex64(t *testing.T) {
	h := LayoutFingerprint("anything")
	assert.Len(t, h, 64)
}
