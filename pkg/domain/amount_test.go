package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "sanad/pkg/domain-errors"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		input   string
		want    Amount
		wantErr bool
	}{
		{"1,000,000", 1000000, false},
		{"  300000 ", 300000, false},
		{"0", 0, false},
		{"-5", -5, false},
		{"", 0, true},
		{"12.5", 0, true},
		{"ten", 0, true},
		{"1_000", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseAmount(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAmount_UnmarshalJSON(t *testing.T) {
	var body struct {
		Value Amount `json:"value"`
	}

	require.NoError(t, json.Unmarshal([]byte(`{"value": 700000}`), &body))
	assert.Equal(t, Amount(700000), body.Value)

	require.NoError(t, json.Unmarshal([]byte(`{"value": "1,000,000"}`), &body))
	assert.Equal(t, Amount(1000000), body.Value)

	err := json.Unmarshal([]byte(`{"value": "abc"}`), &body)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}
