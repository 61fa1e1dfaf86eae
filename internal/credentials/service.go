// Package credentials keeps secrets for external sync transports (account
// tokens and the like) encrypted at rest in a backend with the credentials
// capability.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/iudanet/storysync/internal/crypto"
	"github.com/iudanet/storysync/internal/storage"
	"github.com/iudanet/storysync/internal/validation"
)

// ErrWrongPassphrase is returned when a credential cannot be decrypted
var ErrWrongPassphrase = errors.New("wrong passphrase or corrupted credential")

// recordVersion версия формата зашифрованной записи
const recordVersion = 1

// record хранится в бэкенде как непрозрачный blob
type record struct {
	Salt    []byte `json:"salt"`   // соль Argon2id, своя для каждой записи
	Sealed  []byte `json:"sealed"` // nonce || ciphertext || tag
	Version int    `json:"version"`
}

// payload шифруется целиком
type payload struct {
	CreatedAt time.Time `json:"created_at"`
	Secret    string    `json:"secret"`
}

// Credential is a decrypted secret
type Credential struct {
	CreatedAt time.Time
	Name      string
	Secret    string
}

// Service encrypts credentials with a key derived from a passphrase
type Service struct {
	store storage.CredentialStore
	now   func() time.Time
}

// New creates a service over b. Returns ErrUnsupported if b cannot hold
// credentials.
func New(b storage.Backend) (*Service, error) {
	store, err := storage.Credentials(b)
	if err != nil {
		return nil, err
	}
	return &Service{store: store, now: storage.Now}, nil
}

// Put encrypts secret under passphrase and stores it as name, replacing any
// previous value
func (s *Service) Put(ctx context.Context, name, secret, passphrase string) error {
	if err := validation.ValidateKey(name); err != nil {
		return storage.InvalidKey("put_credential", name, err)
	}
	if secret == "" {
		return fmt.Errorf("secret cannot be empty")
	}

	salt, err := crypto.GenerateSalt()
	if err != nil {
		return err
	}
	key, err := crypto.DeriveKey(passphrase, salt)
	if err != nil {
		return fmt.Errorf("failed to derive key: %w", err)
	}

	plain, err := json.Marshal(payload{Secret: secret, CreatedAt: s.now()})
	if err != nil {
		return storage.SerializationError("put_credential", name, err)
	}

	// Имя участвует в аутентификации: blob нельзя подложить под другое имя
	sealed, err := crypto.Seal(plain, key, []byte(name))
	if err != nil {
		return fmt.Errorf("failed to encrypt credential: %w", err)
	}

	blob, err := json.Marshal(record{Version: recordVersion, Salt: salt, Sealed: sealed})
	if err != nil {
		return storage.SerializationError("put_credential", name, err)
	}
	return s.store.SaveCredential(ctx, name, blob)
}

// Get decrypts the credential stored as name
func (s *Service) Get(ctx context.Context, name, passphrase string) (*Credential, error) {
	blob, err := s.store.GetCredential(ctx, name)
	if err != nil {
		return nil, err
	}

	var rec record
	if err := json.Unmarshal(blob, &rec); err != nil {
		return nil, storage.SerializationError("get_credential", name, err)
	}
	if rec.Version != recordVersion {
		return nil, storage.SerializationError("get_credential", name,
			fmt.Errorf("unsupported credential version %d", rec.Version))
	}

	key, err := crypto.DeriveKey(passphrase, rec.Salt)
	if err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}

	plain, err := crypto.Open(rec.Sealed, key, []byte(name))
	if err != nil {
		return nil, fmt.Errorf("credential %q: %w", name, ErrWrongPassphrase)
	}

	var p payload
	if err := json.Unmarshal(plain, &p); err != nil {
		return nil, storage.SerializationError("get_credential", name, err)
	}

	return &Credential{Name: name, Secret: p.Secret, CreatedAt: p.CreatedAt}, nil
}

// Delete removes name. Deleting an unknown name is not an error.
func (s *Service) Delete(ctx context.Context, name string) error {
	return s.store.DeleteCredential(ctx, name)
}

// List returns the stored credential names
func (s *Service) List(ctx context.Context) ([]string, error) {
	return s.store.ListCredentials(ctx)
}
