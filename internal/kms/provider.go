package kms

import "context"

// Provider is the capability set every KMS backend exposes. All variants
// (Local, AWS, GCP) satisfy this interface identically so the status-list
// store and audit log can depend on it without caring which backend is
// configured.
type Provider interface {
	// CreateKey returns a key in state enabled. If Alias is supplied it must
	// be unique within the provider, or ErrAliasInUse is returned.
	CreateKey(ctx context.Context, params CreateKeyParams) (*KeyMetadata, error)

	// GetKey returns the metadata of a previously created key.
	GetKey(ctx context.Context, keyID string) (*KeyMetadata, error)

	// ListKeys returns metadata for every key known to the provider.
	// GCPProvider does not implement listing and always returns an error.
	ListKeys(ctx context.Context) ([]*KeyMetadata, error)

	// DisableKey transitions a key to disabled. Disabled keys fail Sign and
	// Encrypt with ErrKeyDisabled; Verify and Decrypt remain available.
	DisableKey(ctx context.Context, keyID string) error

	// EnableKey transitions a disabled or pending-deletion key back to
	// enabled.
	EnableKey(ctx context.Context, keyID string) error

	// ScheduleKeyDeletion transitions a key to pending_deletion.
	// pendingWindowDays must be >= MinimumPendingDeletionWindow; 0 selects
	// DefaultPendingDeletionWindow. During the window EnableKey reverts the
	// key to enabled; after the window the provider may advance it to
	// destroyed.
	ScheduleKeyDeletion(ctx context.Context, keyID string, pendingWindowDays int) error

	// Sign produces a provider-native signature over data (or, if
	// opts.MessageType is MessageTypeDigest, over an already-computed
	// digest). Fails with ErrKeyDisabled, ErrKeyNotFound, or
	// ErrAlgorithmMismatch.
	Sign(ctx context.Context, keyID string, data []byte, opts SignOptions) ([]byte, error)

	// Verify checks a signature produced by Sign. Implementations must not
	// leak timing information correlated with the boolean result.
	Verify(ctx context.Context, keyID string, data, signature []byte, opts SignOptions) (bool, error)

	// GetPublicKey returns the DER-encoded public key for an asymmetric
	// signing key, so verification can happen without provider access.
	GetPublicKey(ctx context.Context, keyID string) ([]byte, error)

	// Encrypt envelope-encrypts plaintext: a fresh data-encryption key is
	// generated, plaintext is sealed with AES-256-GCM, and the DEK is
	// wrapped by the provider's key-encryption key.
	Encrypt(ctx context.Context, keyID string, plaintext []byte) ([]byte, error)

	// Decrypt reverses Encrypt: unwraps the DEK via the provider, then opens
	// the AES-256-GCM envelope.
	Decrypt(ctx context.Context, keyID string, ciphertext []byte) ([]byte, error)

	// RotateKey rotates the key and returns its metadata; what happens to
	// the earlier key material differs by provider. LocalProvider replaces
	// the key material in place and keeps no earlier version, so signatures
	// made before rotation no longer verify. GCPProvider creates a new key
	// version and makes it primary. AWSProvider creates no new version and
	// returns the current metadata with a refreshed CreatedAt.
	RotateKey(ctx context.Context, keyID string) (*KeyMetadata, error)

	// Close releases provider-held resources (network clients, file
	// handles).
	Close() error
}
