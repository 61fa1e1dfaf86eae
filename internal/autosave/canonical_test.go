package autosave

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/storysync/internal/models"
)

func TestCanonical(t *testing.T) {
	tests := []struct {
		input any
		name  string
		want  string
	}{
		{
			name:  "keys sorted recursively",
			input: models.Document{"b": 1.0, "a": map[string]any{"z": true, "y": nil}},
			want:  `{"a":{"y":null,"z":true},"b":1}`,
		},
		{
			name:  "no html escaping",
			input: map[string]any{"text": "<a & b>"},
			want:  `{"text":"<a & b>"}`,
		},
		{
			name:  "strings normalized to NFC",
			input: map[string]any{"title": "Cafe\u0301"},
			want:  "{\"title\":\"Caf\u00e9\"}",
		},
		{
			name:  "arrays keep order",
			input: []any{"b", "a", 2.5},
			want:  `["b","a",2.5]`,
		},
		{
			name:  "go ints match json numbers",
			input: map[string]any{"n": 3, "list": []int{1, 2}},
			want:  `{"list":[1,2],"n":3}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Canonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestFingerprint(t *testing.T) {
	a := models.Document{"title": "Caf\u00e9", "count": 1, "tags": []any{"x"}}
	b := models.Document{"tags": []any{"x"}, "count": float64(1), "title": "Cafe\u0301"}
	c := models.Document{"title": "Cafe"}

	fa, err := Fingerprint(a)
	require.NoError(t, err)
	fb, err := Fingerprint(b)
	require.NoError(t, err)
	fc, err := Fingerprint(c)
	require.NoError(t, err)

	assert.Equal(t, fa, fb, "equivalent documents share a fingerprint")
	assert.NotEqual(t, fa, fc)
}
