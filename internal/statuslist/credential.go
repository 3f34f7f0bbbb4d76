package statuslist

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/altairalabs/trustcore/internal/canonical"
	"github.com/altairalabs/trustcore/internal/kms"
)

// VerifiableCredential is a W3C StatusList2021 credential, the shape
// GenerateCredential emits and the shape the transport forwards verbatim to
// whoever resolves a StatusEntry.
type VerifiableCredential struct {
	Context           []string          `json:"@context"`
	ID                string            `json:"id"`
	Type              []string          `json:"type"`
	Issuer            string            `json:"issuer"`
	IssuanceDate      string            `json:"issuanceDate"`
	CredentialSubject CredentialSubject `json:"credentialSubject"`
	Proof             *Proof            `json:"proof,omitempty"`
}

// CredentialSubject carries the encoded bitstring and the purpose it
// represents.
type CredentialSubject struct {
	ID            string  `json:"id"`
	Type          string  `json:"type"`
	StatusPurpose Purpose `json:"statusPurpose"`
	EncodedList   string  `json:"encodedList"`
}

// Proof is the detached signature over the credential-without-proof.
type Proof struct {
	Type               string `json:"type"`
	Created            string `json:"created"`
	VerificationMethod string `json:"verificationMethod"`
	ProofPurpose       string `json:"proofPurpose"`
	ProofValue         string `json:"proofValue"`
}

var vcContext = []string{
	"https://www.w3.org/2018/credentials/v1",
	"https://w3id.org/vc/status-list/2021/v1",
}

// proofTypeForAlgorithm maps a KMS signing algorithm to the VC proof type
// whose signature shape it matches, per spec.md §4.3 ("The proof type
// matches the key algorithm").
func proofTypeForAlgorithm(alg kms.Algorithm) (string, error) {
	switch alg {
	case kms.AlgorithmEd25519:
		return "Ed25519Signature2020", nil
	case kms.AlgorithmECP256, kms.AlgorithmECP384:
		return "EcdsaSecp256r1Signature2019", nil
	case kms.AlgorithmRSA2048, kms.AlgorithmRSA4096:
		return "RsaSignature2018", nil
	default:
		return "", fmt.Errorf("statuslist: no proof type for algorithm %s", alg)
	}
}

// GenerateCredential builds a signed W3C StatusList2021 credential for list
// id, using the list's configured issuer/baseUrl and its KMS signing key.
// The proof is produced over the canonicalized credential-without-proof, so
// verification must canonicalize the same subset of fields before calling
// kms.Provider.Verify.
func (s *Store) GenerateCredential(ctx context.Context, id string) (*VerifiableCredential, error) {
	defer observeOpDuration("generateCredential", time.Now())
	lock := s.lockFor(id)
	lock.mu.RLock()
	defer lock.mu.RUnlock()

	list, err := s.storage.LoadList(ctx, id)
	if err != nil {
		return nil, err
	}
	if list.KeyID == "" {
		return nil, fmt.Errorf("statuslist: list %s has no signing key configured", id)
	}

	key, err := s.kmsProv.GetKey(ctx, list.KeyID)
	if err != nil {
		return nil, fmt.Errorf("statuslist: resolve signing key for %s: %w", id, err)
	}
	proofType, err := proofTypeForAlgorithm(key.Algorithm)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC().Format(time.RFC3339)
	vc := &VerifiableCredential{
		Context:      vcContext,
		ID:           list.BaseURL + "/" + list.ID,
		Type:         []string{"VerifiableCredential", "StatusList2021Credential"},
		Issuer:       list.Issuer,
		IssuanceDate: now,
		CredentialSubject: CredentialSubject{
			ID:            list.BaseURL + "/" + list.ID + "#list",
			Type:          "StatusList2021",
			StatusPurpose: list.Purpose,
			EncodedList:   list.EncodedBits,
		},
	}

	preimage, err := canonical.Canonicalize(vc)
	if err != nil {
		return nil, fmt.Errorf("statuslist: canonicalize credential %s: %w", id, err)
	}

	sig, err := s.kmsProv.Sign(ctx, list.KeyID, preimage, kms.SignOptions{MessageType: kms.MessageTypeRaw})
	if err != nil {
		return nil, fmt.Errorf("statuslist: sign credential %s: %w", id, err)
	}

	vc.Proof = &Proof{
		Type:               proofType,
		Created:            now,
		VerificationMethod: list.Issuer + "#" + list.KeyID,
		ProofPurpose:       "assertionMethod",
		ProofValue:         base64.StdEncoding.EncodeToString(sig),
	}
	s.log.V(1).Info("generated status list credential", "listId", id, "keyId", list.KeyID)
	return vc, nil
}

// VerifyCredential checks vc.Proof against the issuer's public key through
// the KMS, re-canonicalizing the credential with its proof stripped so the
// verification pre-image matches what GenerateCredential signed.
func (s *Store) VerifyCredential(ctx context.Context, keyID string, vc *VerifiableCredential) (bool, error) {
	if vc.Proof == nil {
		return false, fmt.Errorf("statuslist: credential has no proof")
	}
	sig, err := base64.StdEncoding.DecodeString(vc.Proof.ProofValue)
	if err != nil {
		return false, fmt.Errorf("statuslist: decode proof value: %w", err)
	}

	unsigned := *vc
	unsigned.Proof = nil
	preimage, err := canonical.Canonicalize(&unsigned)
	if err != nil {
		return false, fmt.Errorf("statuslist: canonicalize credential: %w", err)
	}

	return s.kmsProv.Verify(ctx, keyID, preimage, sig, kms.SignOptions{MessageType: kms.MessageTypeRaw})
}
