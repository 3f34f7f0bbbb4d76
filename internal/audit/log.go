package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/altairalabs/trustcore/internal/canonical"
	"github.com/altairalabs/trustcore/internal/kms"
)

// Log is the append-only, hash-chained audit log. A single append lock
// serializes all writers so the chain remains totally ordered; readers
// (Query, VerifyIntegrity) take a storage snapshot and may run concurrently
// with a writer, observing only entries whose append has completed, per
// spec.md §5.
type Log struct {
	storage  Storage
	kmsProv  kms.Provider // nil selects hash-only mode
	signKeyID string
	enabled  bool
	log      logr.Logger

	appendMu sync.Mutex
	lastHash string
}

// Config configures a Log.
type Config struct {
	Enabled   bool
	SignKeyID string // empty selects hash-only mode even if kmsProv is non-nil
}

// NewLog builds a Log over storage. If kmsProv is nil or cfg.SignKeyID is
// empty, the log runs in hash-only mode.
func NewLog(ctx context.Context, storage Storage, kmsProv kms.Provider, cfg Config, log logr.Logger) (*Log, error) {
	l := &Log{
		storage:   storage,
		kmsProv:   kmsProv,
		signKeyID: cfg.SignKeyID,
		enabled:   cfg.Enabled,
		log:       log,
		lastHash:  GenesisHash,
	}

	last, err := storage.LastEntry(ctx)
	if err != nil && err != ErrNoEntries {
		return nil, fmt.Errorf("audit: load last entry: %w", err)
	}
	if err == nil {
		l.lastHash = last.Signature
	}
	return l, nil
}

// signingMode reports whether l signs with a KMS key or falls back to
// hashing.
func (l *Log) signingMode() bool {
	return l.kmsProv != nil && l.signKeyID != ""
}

// Log assembles an unsigned entry, signs or hashes it, appends it, and
// advances the chain's head. Fails ErrAuditDisabled if logging is off;
// fails with a wrapped ErrKMSError if signing fails, leaving the chain
// unchanged.
func (l *Log) Log(ctx context.Context, eventType string, severity Severity, actor Actor, action string, result Result, opts ...EntryOption) (*SignedEntry, error) {
	if !l.enabled {
		return nil, ErrAuditDisabled
	}

	entry := Entry{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Severity:  severity,
		Actor:     actor,
		Action:    action,
		Result:    result,
	}
	for _, opt := range opts {
		opt(&entry)
	}

	l.appendMu.Lock()
	defer l.appendMu.Unlock()

	entry.PreviousHash = l.lastHash

	signature, signedBy, err := l.sealEntry(ctx, &entry)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKMSError, err)
	}

	signed := &SignedEntry{
		Entry:     entry,
		Signature: signature,
		SignedBy:  signedBy,
		SignedAt:  time.Now().UTC(),
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := l.storage.Append(ctx, signed); err != nil {
		AppendErrorsTotal.WithLabelValues(eventType).Inc()
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	l.lastHash = signature
	EntriesTotal.WithLabelValues(eventType).Inc()
	return signed, nil
}

// EntryOption sets an optional field on an Entry being assembled by Log.
type EntryOption func(*Entry)

// WithTarget attaches a Target to the entry.
func WithTarget(t Target) EntryOption {
	return func(e *Entry) { e.Target = &t }
}

// WithDetails attaches a details map to the entry.
func WithDetails(details map[string]any) EntryOption {
	return func(e *Entry) { e.Details = details }
}

// WithMetadata attaches a metadata map to the entry.
func WithMetadata(metadata map[string]any) EntryOption {
	return func(e *Entry) { e.Metadata = metadata }
}

// signingPreimage returns the canonicalized bytes over which the signature
// or hash is computed: every Entry field except the signature envelope.
func signingPreimage(e *Entry) ([]byte, error) {
	return canonical.Canonicalize(e)
}

// sealEntry produces entry's signature (KMS mode) or hash (hash-only mode).
func (l *Log) sealEntry(ctx context.Context, entry *Entry) (signature, signedBy string, err error) {
	preimage, err := signingPreimage(entry)
	if err != nil {
		return "", "", fmt.Errorf("audit: canonicalize entry: %w", err)
	}

	if !l.signingMode() {
		return hashOnlySignature(preimage, entry.PreviousHash), HashOnlySignedBy, nil
	}

	sig, err := l.kmsProv.Sign(ctx, l.signKeyID, preimage, kms.SignOptions{MessageType: kms.MessageTypeRaw})
	if err != nil {
		return "", "", err
	}
	return hex.EncodeToString(sig), l.signKeyID, nil
}

// hashOnlySignature computes SHA-256(canonical(entry)) as hex, with
// previousHash included exactly once: it already appears inside the
// canonicalized entry (as the PreviousHash field), so it is not
// concatenated a second time and the previousHash argument is not used.
// See spec.md §9 Open Question 2.
func hashOnlySignature(preimage []byte, previousHash string) string {
	sum := sha256.Sum256(preimage)
	return hex.EncodeToString(sum[:])
}
