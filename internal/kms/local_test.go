package kms

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocalProvider(t *testing.T) *LocalProvider {
	t.Helper()
	path := filepath.Join(t.TempDir(), "keys.json")
	p, err := NewLocalProvider(path, logr.Discard())
	require.NoError(t, err)
	return p
}

func TestLocalProvider_CreateAndGetKey(t *testing.T) {
	p := newTestLocalProvider(t)
	ctx := context.Background()

	meta, err := p.CreateKey(ctx, CreateKeyParams{
		Algorithm: AlgorithmEd25519,
		Usage:     UsageSignVerify,
		Alias:     "audit-signing",
	})
	require.NoError(t, err)
	assert.Equal(t, KeyStateEnabled, meta.State)
	assert.NotEmpty(t, meta.KeyID)

	got, err := p.GetKey(ctx, meta.KeyID)
	require.NoError(t, err)
	assert.Equal(t, meta.KeyID, got.KeyID)
	assert.Equal(t, "audit-signing", got.Alias)
}

func TestLocalProvider_DuplicateAliasRejected(t *testing.T) {
	p := newTestLocalProvider(t)
	ctx := context.Background()

	_, err := p.CreateKey(ctx, CreateKeyParams{Algorithm: AlgorithmEd25519, Usage: UsageSignVerify, Alias: "dup"})
	require.NoError(t, err)

	_, err = p.CreateKey(ctx, CreateKeyParams{Algorithm: AlgorithmEd25519, Usage: UsageSignVerify, Alias: "dup"})
	assert.ErrorIs(t, err, ErrAliasInUse)
}

func TestLocalProvider_WeakAlgorithmRejected(t *testing.T) {
	p := newTestLocalProvider(t)
	_, err := p.CreateKey(context.Background(), CreateKeyParams{Algorithm: "RSA_1024", Usage: UsageSignVerify})
	assert.ErrorIs(t, err, ErrWeakAlgorithm)
}

func TestLocalProvider_SignVerifyRoundTrip_AllAlgorithms(t *testing.T) {
	ctx := context.Background()
	algorithms := []Algorithm{AlgorithmEd25519, AlgorithmECP256, AlgorithmECP384, AlgorithmRSA2048}

	for _, alg := range algorithms {
		alg := alg
		t.Run(string(alg), func(t *testing.T) {
			p := newTestLocalProvider(t)
			meta, err := p.CreateKey(ctx, CreateKeyParams{Algorithm: alg, Usage: UsageSignVerify})
			require.NoError(t, err)

			msg := []byte("evaluate(ctx) must be reproducible")
			sig, err := p.Sign(ctx, meta.KeyID, msg, SignOptions{MessageType: MessageTypeRaw})
			require.NoError(t, err)

			ok, err := p.Verify(ctx, meta.KeyID, msg, sig, SignOptions{MessageType: MessageTypeRaw})
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = p.Verify(ctx, meta.KeyID, []byte("tampered"), sig, SignOptions{MessageType: MessageTypeRaw})
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestLocalProvider_SignFailsWhenDisabled(t *testing.T) {
	p := newTestLocalProvider(t)
	ctx := context.Background()

	meta, err := p.CreateKey(ctx, CreateKeyParams{Algorithm: AlgorithmEd25519, Usage: UsageSignVerify})
	require.NoError(t, err)
	require.NoError(t, p.DisableKey(ctx, meta.KeyID))

	_, err = p.Sign(ctx, meta.KeyID, []byte("x"), SignOptions{})
	assert.ErrorIs(t, err, ErrKeyDisabled)
}

func TestLocalProvider_SignFailsOnUsageMismatch(t *testing.T) {
	p := newTestLocalProvider(t)
	ctx := context.Background()

	meta, err := p.CreateKey(ctx, CreateKeyParams{Algorithm: AlgorithmAES256, Usage: UsageEncryptDecrypt})
	require.NoError(t, err)

	_, err = p.Sign(ctx, meta.KeyID, []byte("x"), SignOptions{})
	assert.ErrorIs(t, err, ErrAlgorithmMismatch)
}

func TestLocalProvider_EncryptDecryptRoundTrip(t *testing.T) {
	p := newTestLocalProvider(t)
	ctx := context.Background()

	meta, err := p.CreateKey(ctx, CreateKeyParams{Algorithm: AlgorithmAES256, Usage: UsageEncryptDecrypt})
	require.NoError(t, err)

	plaintext := []byte("status list bitstring payload")
	ciphertext, err := p.Encrypt(ctx, meta.KeyID, plaintext)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, ciphertext)

	decrypted, err := p.Decrypt(ctx, meta.KeyID, ciphertext)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestLocalProvider_DecryptFailsOnMalformedEnvelope(t *testing.T) {
	p := newTestLocalProvider(t)
	ctx := context.Background()
	meta, err := p.CreateKey(ctx, CreateKeyParams{Algorithm: AlgorithmAES256, Usage: UsageEncryptDecrypt})
	require.NoError(t, err)

	_, err = p.Decrypt(ctx, meta.KeyID, []byte("not json"))
	assert.ErrorIs(t, err, ErrMalformedEnvelope)
}

func TestLocalProvider_ScheduleDeletionThenEnableReverts(t *testing.T) {
	p := newTestLocalProvider(t)
	ctx := context.Background()
	meta, err := p.CreateKey(ctx, CreateKeyParams{Algorithm: AlgorithmEd25519, Usage: UsageSignVerify})
	require.NoError(t, err)

	require.NoError(t, p.ScheduleKeyDeletion(ctx, meta.KeyID, 7))
	got, err := p.GetKey(ctx, meta.KeyID)
	require.NoError(t, err)
	assert.Equal(t, KeyStatePendingDeletion, got.State)
	require.NotNil(t, got.PendingDeletionAt)

	require.NoError(t, p.EnableKey(ctx, meta.KeyID))
	got, err = p.GetKey(ctx, meta.KeyID)
	require.NoError(t, err)
	assert.Equal(t, KeyStateEnabled, got.State)
	assert.Nil(t, got.PendingDeletionAt)
}

func TestLocalProvider_ScheduleDeletionRejectsWindowBelowMinimum(t *testing.T) {
	p := newTestLocalProvider(t)
	ctx := context.Background()
	meta, err := p.CreateKey(ctx, CreateKeyParams{Algorithm: AlgorithmEd25519, Usage: UsageSignVerify})
	require.NoError(t, err)

	err = p.ScheduleKeyDeletion(ctx, meta.KeyID, -1)
	assert.ErrorIs(t, err, ErrInvalidWindow)
}

func TestLocalProvider_RotateKeyInvalidatesOldSignature(t *testing.T) {
	// The local provider's rotation swaps key material in place and keeps
	// no earlier version, so signatures made before rotation no longer
	// verify against the rotated key.
	p := newTestLocalProvider(t)
	ctx := context.Background()
	meta, err := p.CreateKey(ctx, CreateKeyParams{Algorithm: AlgorithmEd25519, Usage: UsageSignVerify})
	require.NoError(t, err)

	msg := []byte("pre-rotation message")
	sig, err := p.Sign(ctx, meta.KeyID, msg, SignOptions{})
	require.NoError(t, err)

	_, err = p.RotateKey(ctx, meta.KeyID)
	require.NoError(t, err)

	ok, err := p.Verify(ctx, meta.KeyID, msg, sig, SignOptions{})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLocalProvider_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.json")
	ctx := context.Background()

	p1, err := NewLocalProvider(path, logr.Discard())
	require.NoError(t, err)
	meta, err := p1.CreateKey(ctx, CreateKeyParams{Algorithm: AlgorithmEd25519, Usage: UsageSignVerify, Alias: "reopen"})
	require.NoError(t, err)

	p2, err := NewLocalProvider(path, logr.Discard())
	require.NoError(t, err)
	got, err := p2.GetKey(ctx, meta.KeyID)
	require.NoError(t, err)
	assert.Equal(t, "reopen", got.Alias)
}

func TestLocalProvider_GetKeyNotFound(t *testing.T) {
	p := newTestLocalProvider(t)
	_, err := p.GetKey(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}
