// Package securestore is the platform-keychain analog for a plain Go
// process: a single record sealed with AES-256-GCM under a key derived from
// a passphrase with argon2id. The salt and derivation parameters live beside
// the ciphertext, so a record is self-describing; a wrong key or a tampered
// file surfaces as a decode error.
package securestore

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/jrsteele09/go-auth-client/credential"
	interrors "github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/pkg/errors"
	"golang.org/x/crypto/argon2"
)

// argon2id parameters, stored with each record so they can change without
// invalidating existing files.
const (
	defaultMemory      = 64 * 1024
	defaultIterations  = 3
	defaultParallelism = 4
	saltLength         = 16
	keyLength          = 32
)

// envelope is the on-disk layout of a sealed record.
type envelope struct {
	Name        string                  `json:"name"`
	KDF         string                  `json:"kdf"`
	Salt        []byte                  `json:"salt"`
	Memory      uint32                  `json:"memory"`
	Iterations  uint32                  `json:"iterations"`
	Parallelism uint8                   `json:"parallelism"`
	Nonce       []byte                  `json:"nonce"`
	Ciphertext  []byte                  `json:"ciphertext"`
	Policy      credential.AccessPolicy `json:"policy"`
}

// FileStore implements credential.SecureStore over a single sealed file.
// The access policy is recorded with the record; the biometric gate itself
// belongs to the platform and cannot be enforced by a file.
type FileStore struct {
	path       string
	passphrase []byte
}

var _ credential.SecureStore = (*FileStore)(nil)

// NewFileStore creates a store sealing records at the given path.
func NewFileStore(path string, passphrase []byte) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("[NewFileStore] path is required")
	}
	if len(passphrase) == 0 {
		return nil, errors.New("[NewFileStore] passphrase is required")
	}

	secret := make([]byte, len(passphrase))
	copy(secret, passphrase)
	return &FileStore{path: path, passphrase: secret}, nil
}

// Set seals the blob under a freshly derived key and writes it atomically.
func (s *FileStore) Set(ctx context.Context, name string, blob []byte, policy credential.AccessPolicy) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return errors.Wrap(err, "[Set] generating salt")
	}

	key := argon2.IDKey(s.passphrase, salt, defaultIterations, defaultMemory, defaultParallelism, keyLength)
	gcm, err := newGCM(key)
	if err != nil {
		return errors.Wrap(err, "[Set] initializing cipher")
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return errors.Wrap(err, "[Set] generating nonce")
	}

	// The record name is authenticated with the ciphertext, so a sealed
	// record cannot be replayed under another name.
	sealed := envelope{
		Name:        name,
		KDF:         "argon2id",
		Salt:        salt,
		Memory:      defaultMemory,
		Iterations:  defaultIterations,
		Parallelism: defaultParallelism,
		Nonce:       nonce,
		Ciphertext:  gcm.Seal(nil, nonce, blob, []byte(name)),
		Policy:      policy,
	}

	encoded, err := json.Marshal(sealed)
	if err != nil {
		return errors.Wrap(err, "[Set] encoding envelope")
	}
	return writeAtomic(s.path, encoded)
}

// Get opens the sealed record. A missing file is (nil, nil); an undecodable
// or tampered record is an error the caller converts to absence.
func (s *FileStore) Get(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	encoded, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "[Get] reading sealed record")
	}

	var sealed envelope
	if err := json.Unmarshal(encoded, &sealed); err != nil {
		return nil, interrors.Wrapf(interrors.ErrBlobCorrupt, "[Get] decoding envelope: %v", err)
	}
	if sealed.Name != name {
		return nil, nil
	}

	key := argon2.IDKey(s.passphrase, sealed.Salt, sealed.Iterations, sealed.Memory, sealed.Parallelism, keyLength)
	gcm, err := newGCM(key)
	if err != nil {
		return nil, errors.Wrap(err, "[Get] initializing cipher")
	}
	if len(sealed.Nonce) != gcm.NonceSize() {
		return nil, interrors.Wrapf(interrors.ErrBlobCorrupt, "[Get] bad nonce length %d", len(sealed.Nonce))
	}

	blob, err := gcm.Open(nil, sealed.Nonce, sealed.Ciphertext, []byte(name))
	if err != nil {
		return nil, interrors.Wrapf(interrors.ErrDecryptFailed, "[Get] opening record: %v", err)
	}
	return blob, nil
}

// Delete removes the sealed file. A missing file is not an error.
func (s *FileStore) Delete(ctx context.Context, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "[Delete] removing sealed record")
	}
	return nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// writeAtomic writes via a temp file and rename so a crash mid-write leaves
// either the old record or the new one, never a truncated file.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".sealed-*")
	if err != nil {
		return errors.Wrap(err, "[writeAtomic] creating temp file")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return errors.Wrap(err, "[writeAtomic] restricting permissions")
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "[writeAtomic] writing temp file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "[writeAtomic] closing temp file")
	}
	return errors.Wrap(os.Rename(tmpName, path), "[writeAtomic] renaming into place")
}
