package config

import "path/filepath"

type StorageConfig interface {
	GetKeyValuePath() string
	GetSecureBlobPath() string
	GetSecurePassphrase() string
}

type Storage struct{}

var _ StorageConfig = Storage{}

// GetKeyValuePath returns the SQLite file backing the plain key-value store.
func (s Storage) GetKeyValuePath() string {
	return GetEnv("KV_PATH", filepath.Join(EnvVars{}.GetDataFolder(), "auth.db"))
}

// GetSecureBlobPath returns the file holding the encrypted credential record.
func (s Storage) GetSecureBlobPath() string {
	return GetEnv("SECURE_BLOB_PATH", filepath.Join(EnvVars{}.GetDataFolder(), "credentials.sealed"))
}

// GetSecurePassphrase is the unlock secret for the sealed credential file.
// On device builds this comes from the platform keystore; in development it
// falls back to an env var.
func (s Storage) GetSecurePassphrase() string {
	return GetEnv("SECURE_PASSPHRASE", "")
}
