package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"AlreadyCanonical", "989121234567", "989121234567"},
		{"LeadingPlus", "+989121234567", "989121234567"},
		{"SpacesAndDashes", " +98 912-123-4567 ", "989121234567"},
		{"Parentheses", "(98) 935 000 1122", "989350001122"},
		{"Empty", "", ""},
		{"NoDigits", "+- ()", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizePhone(tt.input))
		})
	}
}

func TestNormalizeText(t *testing.T) {
	assert.Equal(t, "pricing", NormalizeText("  Pricing "))
	assert.Equal(t, "start", NormalizeText("START"))
	assert.Equal(t, "", NormalizeText("   "))
}
