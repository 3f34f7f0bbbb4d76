package statuslist

import (
	"context"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/altairalabs/trustcore/internal/kms"
)

func newTestStore(t *testing.T) (*Store, kms.Provider) {
	t.Helper()
	prov, err := kms.NewLocalProvider(t.TempDir()+"/keys.json", logr.Discard())
	require.NoError(t, err)
	return NewStore(NewMemoryStorage(), prov, logr.Discard()), prov
}

func TestInitializeList_IdempotentAndValidatesLength(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	list, err := store.InitializeList(ctx, InitListParams{ID: "L", Purpose: PurposeRevocation, Length: 8192, Issuer: "did:example:issuer", BaseURL: "https://example.test/status"})
	require.NoError(t, err)
	assert.Equal(t, 8192, list.Length)
	assert.Equal(t, 0, list.AllocationCursor)

	again, err := store.InitializeList(ctx, InitListParams{ID: "L", Purpose: PurposeRevocation, Length: 8192})
	require.NoError(t, err)
	assert.Equal(t, list.CreatedAt, again.CreatedAt)

	_, err = store.InitializeList(ctx, InitListParams{ID: "bad", Length: 1000})
	assert.ErrorIs(t, err, ErrInvalidLength)
}

func TestAllocateIndex_StrictlyIncreasingAndExhausts(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	_, err := store.InitializeList(ctx, InitListParams{ID: "L", Purpose: PurposeRevocation, Length: 1024})
	require.NoError(t, err)

	for want := 0; want < 1024; want++ {
		entry, err := store.AllocateIndex(ctx, "L")
		require.NoError(t, err)
		assert.Equal(t, want, entry.StatusListIndex)
		assert.Equal(t, "StatusList2021Entry", entry.Type)
	}

	_, err = store.AllocateIndex(ctx, "L")
	assert.ErrorIs(t, err, ErrListExhausted)
}

func TestSetStatus_RevokeRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	_, err := store.InitializeList(ctx, InitListParams{ID: "L", Purpose: PurposeRevocation, Length: 8192})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := store.AllocateIndex(ctx, "L")
		require.NoError(t, err)
	}

	require.NoError(t, store.SetStatus(ctx, "L", 1, true, "operator-1", "fraud"))

	status, _, err := store.CheckStatus(ctx, "L", 0)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, status)

	status, meta, err := store.CheckStatus(ctx, "L", 1)
	require.NoError(t, err)
	assert.Equal(t, StatusRevoked, status)
	assert.Equal(t, "fraud", meta.Reason)
	assert.Equal(t, "operator-1", meta.RevokedBy)

	status, _, err = store.CheckStatus(ctx, "L", 2)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, status)

	// Un-revoke clears metadata.
	require.NoError(t, store.SetStatus(ctx, "L", 1, false, "operator-1", ""))
	status, _, err = store.CheckStatus(ctx, "L", 1)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, status)
}

func TestSetStatus_UnrevokeNeverRevokedIsNoop(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	_, err := store.InitializeList(ctx, InitListParams{ID: "L", Purpose: PurposeRevocation, Length: 1024})
	require.NoError(t, err)

	assert.NoError(t, store.SetStatus(ctx, "L", 5, false, "op", ""))
	status, _, err := store.CheckStatus(ctx, "L", 5)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, status)
}

func TestSetStatus_OutOfRange(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	_, err := store.InitializeList(ctx, InitListParams{ID: "L", Purpose: PurposeRevocation, Length: 1024})
	require.NoError(t, err)

	err = store.SetStatus(ctx, "L", 1024, true, "op", "")
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestCheckStatus_SuspensionPurposeReportsSuspended(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	_, err := store.InitializeList(ctx, InitListParams{ID: "S", Purpose: PurposeSuspension, Length: 1024})
	require.NoError(t, err)

	require.NoError(t, store.SetStatus(ctx, "S", 3, true, "op", "review"))
	status, _, err := store.CheckStatus(ctx, "S", 3)
	require.NoError(t, err)
	assert.Equal(t, StatusSuspended, status)
}
