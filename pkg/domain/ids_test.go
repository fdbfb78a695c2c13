package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "gigsafe/pkg/domain-errors"
)

func TestParseWorkerID(t *testing.T) {
	t.Run("accepts delivery and banking agent ids", func(t *testing.T) {
		for _, raw := range []string{"DRV00009", "BC000123", " DRV1 "} {
			id, err := ParseWorkerID(raw)
			require.NoError(t, err, raw)
			assert.NotEmpty(t, id)
		}
	})

	t.Run("rejects ids that cannot travel in a payload", func(t *testing.T) {
		for _, raw := range []string{"", "DRV|0009", "drv00009", "00009", "DRV", "DRV00A9"} {
			_, err := ParseWorkerID(raw)
			require.Error(t, err, raw)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput), raw)
		}
	})
}

func TestParseNationalID(t *testing.T) {
	id, err := ParseNationalID("144935348744")
	require.NoError(t, err)
	assert.Equal(t, "XXXXXXXX8744", id.Masked())

	for _, raw := range []string{"", "14493534874", "1449353487441", "14493534874a", "١٤٤٩٣٥٣٤٨٧٤٤"} {
		_, err := ParseNationalID(raw)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput), raw)
	}
}

func TestParseAlertID(t *testing.T) {
	_, err := ParseAlertID(uuid.Nil.String())
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))

	_, err = ParseAlertID("not-a-uuid")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))

	want := NewAlertID()
	got, err := ParseAlertID(want.String())
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestNormalizeRegion(t *testing.T) {
	assert.Equal(t, Region("andhra pradesh"), NormalizeRegion("  Andhra   Pradesh "))
}
