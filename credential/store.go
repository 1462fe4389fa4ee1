package credential

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Logical names of the persisted records. One secure record holds the token
// blob; two plain entries hold the expiry instants as decimal epoch
// milliseconds so lifecycle checks never unlock the secure store.
const (
	secureRecordName = "auth.credentials"
	accessExpiryKey  = "auth.accessTokenExpiresAt"
	refreshExpiryKey = "auth.refreshTokenExpiresAt"
)

// unknownExpiry is stored for a refresh lifetime the provider did not declare.
const unknownExpiry = "0"

// AccessPolicy carries the platform-level protection settings for the secure
// record. The store passes it through to the SecureStore untouched.
type AccessPolicy struct {
	// RequireUnlock gates reads behind the platform's user-presence check
	// (biometric or passcode) where the backing store supports one.
	RequireUnlock bool

	// Accessibility names the at-rest protection class. Interpreted by the
	// store implementation, opaque here.
	Accessibility string
}

// SecureStore persists a single small blob with platform-backed encryption.
// Get returns (nil, nil) when no record exists. Reads may block on a platform
// unlock prompt, so every operation takes a context.
type SecureStore interface {
	Set(ctx context.Context, name string, blob []byte, policy AccessPolicy) error
	Get(ctx context.Context, name string) ([]byte, error)
	Delete(ctx context.Context, name string) error
}

// KeyValueStore persists small plain strings. Get reports presence
// explicitly; Remove of a missing key is not an error.
type KeyValueStore interface {
	Set(ctx context.Context, key, value string) error
	Get(ctx context.Context, key string) (string, bool, error)
	Remove(ctx context.Context, key string) error
}

// Store is the single-slot durable home of the active Credential.
type Store struct {
	secure SecureStore
	kv     KeyValueStore
	policy AccessPolicy
	logger zerolog.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithAccessPolicy sets the protection policy passed to the secure store on
// every write.
func WithAccessPolicy(policy AccessPolicy) StoreOption {
	return func(s *Store) {
		s.policy = policy
	}
}

// WithStoreLogger sets the logger. Token values are never logged.
func WithStoreLogger(logger zerolog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

// NewStore creates a Store over the given secure and plain backends.
func NewStore(secure SecureStore, kv KeyValueStore, opts ...StoreOption) (*Store, error) {
	if secure == nil {
		return nil, errors.New("[NewStore] secure store is required")
	}
	if kv == nil {
		return nil, errors.New("[NewStore] key-value store is required")
	}

	s := &Store{
		secure: secure,
		kv:     kv,
		policy: AccessPolicy{RequireUnlock: true},
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Save persists the credential: the token blob into the secure store first,
// then both expiry entries into the plain store. Any failed write reports an
// error; the write order guarantees that a partial save is rejected by the
// next Load rather than surfacing stale fields.
func (s *Store) Save(ctx context.Context, cred Credential) error {
	if cred.AccessToken == "" {
		return errors.New("[Save] access token is required")
	}
	if cred.AccessTokenExpiresAt.IsZero() {
		return errors.New("[Save] access token expiry is required")
	}

	blob, err := json.Marshal(cred)
	if err != nil {
		return errors.Wrap(err, "[Save] serializing credential blob")
	}

	if err := s.secure.Set(ctx, secureRecordName, blob, s.policy); err != nil {
		return errors.Wrap(err, "[Save] writing secure record")
	}
	if err := s.kv.Set(ctx, accessExpiryKey, formatEpochMillis(cred.AccessTokenExpiresAt)); err != nil {
		return errors.Wrap(err, "[Save] writing access token expiry")
	}
	if err := s.kv.Set(ctx, refreshExpiryKey, formatEpochMillis(cred.RefreshTokenExpiresAt)); err != nil {
		return errors.Wrap(err, "[Save] writing refresh token expiry")
	}

	s.logger.Debug().
		Time("accessTokenExpiresAt", cred.AccessTokenExpiresAt).
		Bool("hasRefreshToken", cred.RefreshToken != "").
		Bool("hasIdentityToken", cred.IdentityToken != "").
		Msg("credential saved")
	return nil
}

// Load returns the persisted credential, or nil when no intact session
// exists. Both expiry entries are read first; if either is missing the secure
// store is never touched. Undecodable or partially written state is reported
// as absent, never as an error — only context cancellation propagates.
func (s *Store) Load(ctx context.Context) (*Credential, error) {
	accessExpiry, ok, err := s.loadExpiry(ctx, accessExpiryKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	refreshExpiry, ok, err := s.loadExpiry(ctx, refreshExpiryKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	blob, err := s.secure.Get(ctx, secureRecordName)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Warn().Err(err).Msg("secure record unreadable, treating session as absent")
		return nil, nil
	}
	if blob == nil {
		return nil, nil
	}

	var cred Credential
	if err := json.Unmarshal(blob, &cred); err != nil {
		s.logger.Warn().Err(err).Msg("credential blob undecodable, treating session as absent")
		return nil, nil
	}
	if cred.AccessToken == "" {
		s.logger.Warn().Msg("credential blob missing access token, treating session as absent")
		return nil, nil
	}

	cred.AccessTokenExpiresAt = accessExpiry
	cred.RefreshTokenExpiresAt = refreshExpiry
	return &cred, nil
}

// Clear removes the secure record and both expiry entries. Best-effort: a
// failure on one part still attempts the others, and the first error is
// reported.
func (s *Store) Clear(ctx context.Context) error {
	var firstErr error
	if err := s.secure.Delete(ctx, secureRecordName); err != nil {
		firstErr = errors.Wrap(err, "[Clear] deleting secure record")
	}
	if err := s.kv.Remove(ctx, accessExpiryKey); err != nil && firstErr == nil {
		firstErr = errors.Wrap(err, "[Clear] removing access token expiry")
	}
	if err := s.kv.Remove(ctx, refreshExpiryKey); err != nil && firstErr == nil {
		firstErr = errors.Wrap(err, "[Clear] removing refresh token expiry")
	}
	return firstErr
}

// loadExpiry reads one expiry entry. A malformed value counts as missing.
func (s *Store) loadExpiry(ctx context.Context, key string) (time.Time, bool, error) {
	value, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		if ctx.Err() != nil {
			return time.Time{}, false, ctx.Err()
		}
		s.logger.Warn().Err(err).Str("key", key).Msg("expiry entry unreadable, treating session as absent")
		return time.Time{}, false, nil
	}
	if !ok {
		return time.Time{}, false, nil
	}
	t, err := parseEpochMillis(value)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("expiry entry malformed, treating session as absent")
		return time.Time{}, false, nil
	}
	return t, true, nil
}

// formatEpochMillis serializes an instant as a decimal epoch-millisecond
// string. The zero instant (unknown refresh lifetime) serializes to "0".
func formatEpochMillis(t time.Time) string {
	if t.IsZero() {
		return unknownExpiry
	}
	return strconv.FormatInt(t.UnixMilli(), 10)
}

// parseEpochMillis is the inverse of formatEpochMillis.
func parseEpochMillis(value string) (time.Time, error) {
	ms, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	if ms == 0 {
		return time.Time{}, nil
	}
	return time.UnixMilli(ms), nil
}
