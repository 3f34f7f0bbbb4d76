package kms

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"fmt"
)

// pemToDER converts a PEM-encoded public key (as Cloud KMS's GetPublicKey
// returns) to the DER bytes used throughout this package's Provider
// contract.
func pemToDER(pemBytes string) ([]byte, error) {
	block, _ := pem.Decode([]byte(pemBytes))
	if block == nil {
		return nil, fmt.Errorf("kms: failed to decode PEM public key")
	}
	return block.Bytes, nil
}

// verifyWithDERPublicKey verifies signature over data using a DER-encoded
// SubjectPublicKeyInfo, used by providers (GCP) that have no server-side
// verify call.
func verifyWithDERPublicKey(der, data, signature []byte, opts SignOptions) (bool, error) {
	pub, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return false, fmt.Errorf("kms: parse public key: %w", err)
	}

	digest := data
	if opts.MessageType != MessageTypeDigest {
		sum := sha256.Sum256(data)
		digest = sum[:]
	}

	switch key := pub.(type) {
	case ed25519.PublicKey:
		return ed25519.Verify(key, data, signature), nil
	case *ecdsa.PublicKey:
		return ecdsa.VerifyASN1(key, digest, signature), nil
	case *rsa.PublicKey:
		err := rsa.VerifyPSS(key, crypto.SHA256, digest, signature, nil)
		return err == nil, nil
	default:
		return false, fmt.Errorf("kms: unsupported public key type")
	}
}
