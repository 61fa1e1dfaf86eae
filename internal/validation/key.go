package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// KeyPattern определяет допустимый формат ключа документа.
// Латинские буквы, цифры, точка, дефис и нижнее подчеркивание.
// Ключ используется как имя файла во file backend, поэтому разделители путей запрещены.
var KeyPattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,128}$`)

const (
	// MaxKeyLen максимальная длина ключа
	MaxKeyLen = 128

	// ReservedPrefix помечает служебные документы (например, состояние синхронизации)
	ReservedPrefix = "__"
)

// ValidateKey проверяет ключ документа, сохраняемого приложением.
// Служебный префикс "__" запрещен.
func ValidateKey(key string) error {
	if err := validateKeyFormat(key); err != nil {
		return err
	}
	if strings.HasPrefix(key, ReservedPrefix) {
		return fmt.Errorf("key %q uses reserved prefix %q", key, ReservedPrefix)
	}
	return nil
}

// ValidateInternalKey проверяет ключ служебного документа.
// Допускает зарезервированный префикс.
func ValidateInternalKey(key string) error {
	return validateKeyFormat(key)
}

// IsReserved reports whether key belongs to the internal namespace.
func IsReserved(key string) bool {
	return strings.HasPrefix(key, ReservedPrefix)
}

func validateKeyFormat(key string) error {
	if key == "" {
		return fmt.Errorf("key cannot be empty")
	}

	if len(key) > MaxKeyLen {
		return fmt.Errorf("key must not exceed %d characters", MaxKeyLen)
	}

	if strings.HasPrefix(key, ".") {
		return fmt.Errorf("key cannot start with a dot")
	}

	if !KeyPattern.MatchString(key) {
		return fmt.Errorf("key can only contain letters, numbers, dots, dashes and underscores")
	}

	return nil
}
