package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDigest(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{name: "document bytes", data: []byte(`{"title":"Cave"}`)},
		{name: "empty", data: []byte{}},
		{name: "nil", data: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			digest := Digest(tt.data)

			// SHA256 хеш всегда 64 символа (hex-encoded, 32 bytes * 2)
			assert.Len(t, digest, 64)
			assert.Regexp(t, "^[a-f0-9]{64}$", digest)
			assert.Equal(t, digest, Digest(tt.data), "digest должен быть детерминированным")
		})
	}
}

func TestDigest_KnownVector(t *testing.T) {
	assert.Equal(t,
		"ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad",
		Digest([]byte("abc")))
	assert.Equal(t, Digest(nil), Digest([]byte{}))
}

func TestVerifyDigest(t *testing.T) {
	data := []byte(`{"title":"Lighthouse"}`)
	digest := Digest(data)

	tests := []struct {
		name    string
		errMsg  string
		digest  string
		data    []byte
		wantErr bool
	}{
		{name: "match", data: data, digest: digest},
		{name: "different data", data: []byte(`{"title":"Tower"}`), digest: digest, wantErr: true, errMsg: "digest mismatch"},
		{name: "empty digest", data: data, digest: "", wantErr: true, errMsg: "digest cannot be empty"},
		{name: "truncated digest", data: data, digest: digest[:10], wantErr: true, errMsg: "digest mismatch"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifyDigest(tt.data, tt.digest)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				return
			}
			assert.NoError(t, err)
		})
	}
}
