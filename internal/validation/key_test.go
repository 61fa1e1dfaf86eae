package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		errMsg  string
		wantErr bool
	}{
		{name: "valid - simple", key: "story-1"},
		{name: "valid - dots and underscores", key: "story_2.local-ab12cd34"},
		{name: "valid - max length", key: strings.Repeat("a", MaxKeyLen)},
		{name: "invalid - empty", key: "", wantErr: true, errMsg: "key cannot be empty"},
		{name: "invalid - too long", key: strings.Repeat("a", MaxKeyLen+1), wantErr: true, errMsg: "must not exceed"},
		{name: "invalid - leading dot", key: ".hidden", wantErr: true, errMsg: "cannot start with a dot"},
		{name: "invalid - path separator", key: "a/b", wantErr: true, errMsg: "can only contain"},
		{name: "invalid - parent dir", key: "..", wantErr: true, errMsg: "cannot start with a dot"},
		{name: "invalid - space", key: "my story", wantErr: true, errMsg: "can only contain"},
		{name: "invalid - reserved prefix", key: "__sync_state__", wantErr: true, errMsg: "reserved prefix"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateKey(tt.key)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestValidateInternalKey(t *testing.T) {
	assert.NoError(t, ValidateInternalKey("__sync_state__"))
	assert.Error(t, ValidateInternalKey("__bad key"))
	assert.True(t, IsReserved("__sync_state__"))
	assert.False(t, IsReserved("story"))
}
