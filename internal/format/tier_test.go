package format

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTier(t *testing.T) {
	tests := []struct {
		in      string
		want    Tier
		wantErr bool
	}{
		{"best", Best, false},
		{"", Best, false},
		{"BEST", Best, false},
		{"720p", P720, false},
		{"1080", P1080, false},
		{"audio", AudioOnly, false},
		{"audio-only", AudioOnly, false},
		{"hd", Tier{}, true},
		{"-5p", Tier{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTier(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidTier)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTierString(t *testing.T) {
	assert.Equal(t, "best", Best.String())
	assert.Equal(t, "480p", P480.String())
	assert.Equal(t, "audio", AudioOnly.String())
}

func TestTierJSON(t *testing.T) {
	data, err := json.Marshal(struct {
		Tier Tier `json:"tier"`
	}{P720})
	require.NoError(t, err)
	assert.JSONEq(t, `{"tier":"720p"}`, string(data))

	var got struct {
		Tier Tier `json:"tier"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"tier":"audio"}`), &got))
	assert.Equal(t, AudioOnly, got.Tier)
}
