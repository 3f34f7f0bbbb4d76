// Package kms abstracts cryptographic key management behind a single
// capability set — create, get, list, enable, disable, schedule-deletion,
// sign, verify, encrypt, decrypt, get-public-key, rotate — implemented by a
// Local file-backed provider and thin wrappers over AWS KMS and GCP Cloud
// KMS. Callers (the status-list store, the audit log) depend only on the
// Provider interface and never see provider-specific types.
package kms

import (
	"errors"
	"time"
)

// Algorithm identifies a key's cryptographic algorithm.
type Algorithm string

const (
	AlgorithmRSA2048  Algorithm = "RSA_2048"
	AlgorithmRSA4096  Algorithm = "RSA_4096"
	AlgorithmECP256   Algorithm = "EC_P256"
	AlgorithmECP384   Algorithm = "EC_P384"
	AlgorithmEd25519  Algorithm = "ED25519"
	AlgorithmAES256   Algorithm = "AES_256"
)

// Usage constrains what operations a key may perform.
type Usage string

const (
	UsageSignVerify   Usage = "sign_verify"
	UsageEncryptDecrypt Usage = "encrypt_decrypt"
	UsageWrapUnwrap   Usage = "wrap_unwrap"
)

// KeyState is a key's lifecycle state.
type KeyState string

const (
	KeyStateEnabled        KeyState = "enabled"
	KeyStateDisabled       KeyState = "disabled"
	KeyStatePendingDeletion KeyState = "pending_deletion"
	KeyStateDestroyed      KeyState = "destroyed"
)

// MessageType tells Sign/Verify whether the input bytes are the raw message
// or an already-computed digest.
type MessageType string

const (
	MessageTypeRaw    MessageType = "raw"
	MessageTypeDigest MessageType = "digest"
)

// Sentinel errors, classified per the error taxonomy: callers use
// errors.Is against these to branch on failure kind rather than parsing
// messages.
var (
	ErrKeyNotFound        = errors.New("kms: key not found")
	ErrKeyDisabled        = errors.New("kms: key is disabled")
	ErrAlgorithmMismatch  = errors.New("kms: usage does not permit this operation")
	ErrAliasInUse         = errors.New("kms: alias already in use")
	ErrInvalidWindow      = errors.New("kms: pending deletion window out of range")
	ErrWeakAlgorithm      = errors.New("kms: algorithm below minimum strength")
	ErrMalformedEnvelope  = errors.New("kms: malformed encryption envelope")
	ErrProviderUnavailable = errors.New("kms: provider unavailable")
)

// MinimumPendingDeletionWindow and DefaultPendingDeletionWindow bound
// scheduleKeyDeletion's pendingWindowDays argument.
const (
	MinimumPendingDeletionWindow = 1
	DefaultPendingDeletionWindow = 30
)

// KeyMetadata describes a key without exposing key material.
type KeyMetadata struct {
	KeyID             string
	Alias             string
	Algorithm         Algorithm
	Usage             Usage
	State             KeyState
	CreatedAt         time.Time
	Provider          string
	ProviderResourceRef string
	PendingDeletionAt *time.Time
}

// CreateKeyParams are the inputs to Provider.CreateKey.
type CreateKeyParams struct {
	Algorithm Algorithm
	Usage     Usage
	Alias     string
	Tags      map[string]string
}

// SignOptions modifies Sign/Verify behavior.
type SignOptions struct {
	MessageType MessageType
}

// validAlgorithms lists algorithms CreateKey accepts; anything else (e.g.
// RSA_1024) is rejected as below minimum strength.
var validAlgorithms = map[Algorithm]bool{
	AlgorithmRSA2048: true,
	AlgorithmRSA4096: true,
	AlgorithmECP256:  true,
	AlgorithmECP384:  true,
	AlgorithmEd25519: true,
	AlgorithmAES256:  true,
}

// ValidateAlgorithm reports whether alg is one of the supported,
// minimum-strength algorithms.
func ValidateAlgorithm(alg Algorithm) bool {
	return validAlgorithms[alg]
}
