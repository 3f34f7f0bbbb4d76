package kms

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
)

const (
	aesKeySize      = 32
	envelopeVersion = 1
)

// envelope is the on-disk/over-the-wire shape of an Encrypt output: a DEK
// wrapped by the provider's key-encryption key, plus the AES-256-GCM nonce
// and ciphertext it protected locally.
type envelope struct {
	Version    int    `json:"version"`
	WrappedDEK []byte `json:"wrappedDek"`
	// WrapNonce is the AES-GCM nonce used to wrap the DEK. It is only set
	// when the provider wraps the DEK locally (LocalProvider); AWS/GCP
	// providers return an opaque WrappedDEK from their own KMS call and
	// leave this empty.
	WrapNonce  []byte `json:"wrapNonce,omitempty"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

func generateDEK() ([]byte, error) {
	dek := make([]byte, aesKeySize)
	if _, err := io.ReadFull(rand.Reader, dek); err != nil {
		return nil, fmt.Errorf("kms: generate DEK: %w", err)
	}
	return dek, nil
}

func aesGCMEncrypt(dek, plaintext []byte) (nonce, ciphertext []byte, err error) {
	block, err := aes.NewCipher(dek)
	if err != nil {
		return nil, nil, fmt.Errorf("kms: AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, fmt.Errorf("kms: GCM mode: %w", err)
	}
	nonce = make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, fmt.Errorf("kms: generate nonce: %w", err)
	}
	ciphertext = gcm.Seal(nil, nonce, plaintext, nil)
	return nonce, ciphertext, nil
}

func aesGCMDecrypt(dek, nonce, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(dek)
	if err != nil {
		return nil, fmt.Errorf("kms: AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("kms: GCM mode: %w", err)
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("kms: AES-GCM open: %w", err)
	}
	return plaintext, nil
}

func sealEnvelope(wrappedDEK, wrapNonce, nonce, ciphertext []byte) ([]byte, error) {
	env := envelope{
		Version:    envelopeVersion,
		WrappedDEK: wrappedDEK,
		WrapNonce:  wrapNonce,
		Nonce:      nonce,
		Ciphertext: ciphertext,
	}
	out, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("kms: marshal envelope: %w", err)
	}
	return out, nil
}

func openEnvelope(data []byte) (*envelope, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if env.Version != envelopeVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrMalformedEnvelope, env.Version)
	}
	return &env, nil
}
