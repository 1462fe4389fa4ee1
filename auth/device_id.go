package auth

import (
	"context"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-auth-client/credential"
	"github.com/pkg/errors"
)

// deviceIDKey is the plain-store entry holding the per-installation identifier.
const deviceIDKey = "auth.deviceId"

// DeviceIDParameter is the additional-parameter name under which the
// identifier is sent on authorize and refresh calls.
const DeviceIDParameter = "device_id"

// EnsureDeviceID returns the per-installation device identifier, minting and
// persisting one on first use. The identifier is stable across restarts and
// is sent to the provider as a provider-specific additional parameter.
func EnsureDeviceID(ctx context.Context, kv credential.KeyValueStore) (string, error) {
	if kv == nil {
		return "", errors.New("[EnsureDeviceID] key-value store is required")
	}

	id, ok, err := kv.Get(ctx, deviceIDKey)
	if err != nil {
		return "", errors.Wrap(err, "[EnsureDeviceID] reading device identifier")
	}
	if ok && id != "" {
		return id, nil
	}

	id = uuid.New().String()
	if err := kv.Set(ctx, deviceIDKey, id); err != nil {
		return "", errors.Wrap(err, "[EnsureDeviceID] persisting device identifier")
	}
	return id, nil
}
