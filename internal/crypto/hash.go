package crypto

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

// Digest возвращает hex-encoded SHA256 от data.
// Используется для сравнения канонических сериализаций документов.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// VerifyDigest проверяет, что data соответствует сохраненному digest
func VerifyDigest(data []byte, digest string) error {
	if digest == "" {
		return fmt.Errorf("digest cannot be empty")
	}

	computed := Digest(data)
	if subtle.ConstantTimeCompare([]byte(computed), []byte(digest)) != 1 {
		return fmt.Errorf("digest mismatch")
	}
	return nil
}
