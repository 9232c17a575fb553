package limits

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/penwyp/claudequota/errors"
)

func TestParseReportedPercent(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want float64
	}{
		{"bare number", "30", 30},
		{"with percent sign", " 42% ", 42},
		{"decimal", "12.5", 12.5},
		{"screen text", "Settings\nCurrent session\n███▌  37% used\nResets 5pm", 37},
		{"session line wins", "Current week (all models) 80% used\nCurrent session 12% used", 12},
		{"fallback", "Weekly limit 64% used", 64},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseReportedPercent(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseReportedPercent_Errors(t *testing.T) {
	_, err := ParseReportedPercent("nothing here")
	assert.True(t, apperrors.IsType(err, apperrors.TypeParse))

	_, err = ParseReportedPercent("0")
	assert.ErrorIs(t, err, apperrors.ErrInvalidPercent)

	_, err = ParseReportedPercent("150%")
	assert.True(t, apperrors.IsType(err, apperrors.TypeValidation))
}
