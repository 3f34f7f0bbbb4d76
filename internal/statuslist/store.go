package statuslist

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/altairalabs/trustcore/internal/bitstring"
	"github.com/altairalabs/trustcore/internal/kms"
)

func observeOpDuration(op string, start time.Time) {
	OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// listLock is a single RW lock per list: AllocateIndex and SetStatus take
// the exclusive (writer) side, CheckStatus and GenerateCredential take the
// shared (reader) side. Readers proceed in parallel with each other; while
// a writer holds the lock, readers wait until it is released.
type listLock struct {
	mu sync.RWMutex
}

// Store owns the set of lists, their persistence, and signed-credential
// emission. One Store instance is meant to be shared across all callers in
// a process; locks are per-list, so unrelated lists never contend.
type Store struct {
	storage Storage
	kmsProv kms.Provider
	log     logr.Logger

	locksMu sync.Mutex
	locks   map[string]*listLock
}

// NewStore builds a Store over the given Storage backend and KMS provider.
// The KMS provider is used only by GenerateCredential, to sign the
// credential-without-proof.
func NewStore(storage Storage, kmsProv kms.Provider, log logr.Logger) *Store {
	return &Store{
		storage: storage,
		kmsProv: kmsProv,
		log:     log,
		locks:   make(map[string]*listLock),
	}
}

func (s *Store) lockFor(id string) *listLock {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &listLock{}
		s.locks[id] = l
	}
	return l
}

// InitializeList is idempotent: loads the list from storage if it already
// exists, otherwise creates it with all bits zero.
func (s *Store) InitializeList(ctx context.Context, p InitListParams) (*List, error) {
	defer observeOpDuration("initializeList", time.Now())
	if p.Length == 0 {
		p.Length = DefaultLength
	}
	if !validLength(p.Length) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLength, p.Length)
	}

	lock := s.lockFor(p.ID)
	lock.mu.Lock()
	defer lock.mu.Unlock()

	existing, err := s.storage.LoadList(ctx, p.ID)
	if err == nil {
		return existing, nil
	}
	if err != ErrListNotFound {
		return nil, fmt.Errorf("statuslist: load list %s: %w", p.ID, err)
	}

	bits, err := bitstring.New(p.Length)
	if err != nil {
		return nil, err
	}
	encoded, err := bits.Encode()
	if err != nil {
		return nil, fmt.Errorf("statuslist: encode new list: %w", err)
	}

	list := &List{
		ID:          p.ID,
		Purpose:     p.Purpose,
		Issuer:      p.Issuer,
		BaseURL:     p.BaseURL,
		Length:      p.Length,
		EncodedBits: encoded,
		Metadata:    make(map[int]EntryMetadata),
		KeyID:       p.KeyID,
		CreatedAt:   time.Now().UTC(),
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.storage.SaveList(ctx, list); err != nil {
		return nil, fmt.Errorf("statuslist: save new list %s: %w", p.ID, err)
	}
	return list, nil
}

// AllocateIndex atomically returns the current cursor and increments it.
func (s *Store) AllocateIndex(ctx context.Context, id string) (*StatusEntry, error) {
	defer observeOpDuration("allocateIndex", time.Now())
	lock := s.lockFor(id)
	lock.mu.Lock()
	defer lock.mu.Unlock()

	list, err := s.storage.LoadList(ctx, id)
	if err != nil {
		return nil, err
	}
	if list.AllocationCursor >= list.Length {
		return nil, ErrListExhausted
	}

	index := list.AllocationCursor
	list.AllocationCursor++

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.storage.SaveList(ctx, list); err != nil {
		return nil, fmt.Errorf("statuslist: persist allocation for %s: %w", id, err)
	}
	AllocationsTotal.WithLabelValues(string(list.Purpose)).Inc()

	return &StatusEntry{
		Type:                 "StatusList2021Entry",
		StatusPurpose:        list.Purpose,
		StatusListCredential: list.BaseURL + "/" + list.ID,
		StatusListIndex:      index,
	}, nil
}

// SetStatus atomically mutates the bit at index, recording or clearing
// revocation/suspension metadata on a 0->1 or 1->0 transition respectively.
func (s *Store) SetStatus(ctx context.Context, id string, index int, revoked bool, actor, reason string) error {
	defer observeOpDuration("setStatus", time.Now())
	lock := s.lockFor(id)
	lock.mu.Lock()
	defer lock.mu.Unlock()

	list, err := s.storage.LoadList(ctx, id)
	if err != nil {
		return err
	}
	if index < 0 || index >= list.Length {
		return fmt.Errorf("%w: %d", ErrOutOfRange, index)
	}

	bits, err := bitstring.Decode(list.EncodedBits, list.Length)
	if err != nil {
		return fmt.Errorf("statuslist: decode list %s: %w", id, err)
	}
	was, err := bits.Get(index)
	if err != nil {
		return err
	}

	if err := bits.Set(index, revoked); err != nil {
		return err
	}

	if !was && revoked {
		list.Metadata[index] = EntryMetadata{RevokedAt: time.Now().UTC(), RevokedBy: actor, Reason: reason}
	} else if was && !revoked {
		delete(list.Metadata, index)
	}
	// was == revoked: no transition, metadata (if any) is left as-is.

	encoded, err := bits.Encode()
	if err != nil {
		return fmt.Errorf("statuslist: encode list %s: %w", id, err)
	}
	list.EncodedBits = encoded

	if err := ctx.Err(); err != nil {
		// Roll back: the in-memory bits value is local to this call, so
		// there is nothing to undo beyond simply not persisting.
		return err
	}
	if err := s.storage.SaveList(ctx, list); err != nil {
		return fmt.Errorf("statuslist: persist setStatus for %s: %w", id, err)
	}
	StatusMutationsTotal.WithLabelValues(string(list.Purpose)).Inc()
	return nil
}

// CheckStatus is a pure read; it may run concurrently with other readers,
// and waits while a writer holds the list's lock.
func (s *Store) CheckStatus(ctx context.Context, id string, index int) (Status, *EntryMetadata, error) {
	defer observeOpDuration("checkStatus", time.Now())
	lock := s.lockFor(id)
	lock.mu.RLock()
	defer lock.mu.RUnlock()

	list, err := s.storage.LoadList(ctx, id)
	if err != nil {
		return "", nil, err
	}
	if index < 0 || index >= list.Length {
		return "", nil, fmt.Errorf("%w: %d", ErrOutOfRange, index)
	}

	bits, err := bitstring.Decode(list.EncodedBits, list.Length)
	if err != nil {
		return "", nil, fmt.Errorf("statuslist: decode list %s: %w", id, err)
	}
	set, err := bits.Get(index)
	if err != nil {
		return "", nil, err
	}
	if !set {
		return StatusActive, nil, nil
	}

	meta := list.Metadata[index]
	if list.Purpose == PurposeSuspension {
		return StatusSuspended, &meta, nil
	}
	return StatusRevoked, &meta, nil
}

// GetList returns a snapshot of a list's metadata, without decoding its
// bitstring.
func (s *Store) GetList(ctx context.Context, id string) (*List, error) {
	lock := s.lockFor(id)
	lock.mu.RLock()
	defer lock.mu.RUnlock()
	return s.storage.LoadList(ctx, id)
}
