package crypto

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, KeySize)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return key
}

func TestSeal(t *testing.T) {
	key := testKey(t)

	tests := []struct {
		name      string
		errMsg    string
		plaintext []byte
		key       []byte
		wantErr   bool
	}{
		{name: "successful encryption", plaintext: []byte("token-123"), key: key},
		{name: "empty plaintext", plaintext: []byte{}, key: key, wantErr: true, errMsg: "plaintext cannot be empty"},
		{name: "short key", plaintext: []byte("x"), key: make([]byte, 16), wantErr: true, errMsg: "encryption key must be 32 bytes"},
		{name: "long key", plaintext: []byte("x"), key: make([]byte, 64), wantErr: true, errMsg: "encryption key must be 32 bytes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sealed, err := Seal(tt.plaintext, tt.key, []byte("name"))
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				assert.Nil(t, sealed)
				return
			}
			require.NoError(t, err)

			// Минимум: NonceSize (12) + len(plaintext) + auth_tag (16)
			assert.Len(t, sealed, NonceSize+len(tt.plaintext)+16)
			assert.NotContains(t, string(sealed), string(tt.plaintext))
		})
	}
}

func TestSealOpen(t *testing.T) {
	key := testKey(t)
	plaintext := []byte("cloud account token")

	sealed, err := Seal(plaintext, key, []byte("dropbox"))
	require.NoError(t, err)

	opened, err := Open(sealed, key, []byte("dropbox"))
	require.NoError(t, err)
	assert.Equal(t, plaintext, opened)

	tampered := append([]byte(nil), sealed...)
	tampered[len(tampered)-1] ^= 0xff

	tests := []struct {
		name       string
		errMsg     string
		sealed     []byte
		key        []byte
		additional []byte
	}{
		{name: "wrong key", sealed: sealed, key: testKey(t), additional: []byte("dropbox"), errMsg: "authentication failed"},
		{name: "wrong additional data", sealed: sealed, key: key, additional: []byte("gdrive"), errMsg: "authentication failed"},
		{name: "tampered", sealed: tampered, key: key, additional: []byte("dropbox"), errMsg: "authentication failed"},
		{name: "too short", sealed: make([]byte, 5), key: key, errMsg: "encrypted data too short"},
		{name: "bad key length", sealed: sealed, key: make([]byte, 8), errMsg: "encryption key must be 32 bytes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Open(tt.sealed, tt.key, tt.additional)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestSeal_Randomness(t *testing.T) {
	key := testKey(t)
	plaintext := []byte("same input")

	a, err := Seal(plaintext, key, nil)
	require.NoError(t, err)
	b, err := Seal(plaintext, key, nil)
	require.NoError(t, err)

	// Разные nonce дают разные шифротексты
	assert.NotEqual(t, a, b)
}
