package kms

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
)

// localKey is the persisted representation of one key. Private/symmetric
// material is stored as PKCS#8 DER (asymmetric) or raw bytes (AES), never
// exposed through the Provider interface.
type localKey struct {
	Meta       KeyMetadata
	PrivateDER []byte
	SymmetricKey []byte
}

// LocalProvider is a file-backed KMS provider: every key lives in one JSON
// file under a base directory, guarded by an in-process mutex. It is meant
// for development, testing, and single-node deployments — the AWS and GCP
// providers are the production path.
//
// Grounded on the teacher's file-store idiom (a single mutex-guarded map
// flushed to disk on every mutation) rather than the teacher's AWS/GCP
// providers directly, since the teacher has no local/file-backed provider
// of its own; see DESIGN.md.
type LocalProvider struct {
	mu       sync.RWMutex
	path     string
	keys     map[string]*localKey
	byAlias  map[string]string
	log      logr.Logger
	now      func() time.Time
}

// NewLocalProvider opens (creating if absent) a local key store at path.
func NewLocalProvider(path string, log logr.Logger) (*LocalProvider, error) {
	p := &LocalProvider{
		path:    path,
		keys:    make(map[string]*localKey),
		byAlias: make(map[string]string),
		log:     log,
		now:     time.Now,
	}
	if err := p.load(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *LocalProvider) load() error {
	data, err := os.ReadFile(p.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("kms: load local store: %w", err)
	}
	var keys []*localKey
	if err := json.Unmarshal(data, &keys); err != nil {
		return fmt.Errorf("kms: parse local store: %w", err)
	}
	for _, k := range keys {
		p.keys[k.Meta.KeyID] = k
		if k.Meta.Alias != "" {
			p.byAlias[k.Meta.Alias] = k.Meta.KeyID
		}
	}
	return nil
}

// persist must be called with p.mu held.
func (p *LocalProvider) persist() error {
	keys := make([]*localKey, 0, len(p.keys))
	for _, k := range p.keys {
		keys = append(keys, k)
	}
	data, err := json.MarshalIndent(keys, "", "  ")
	if err != nil {
		return fmt.Errorf("kms: marshal local store: %w", err)
	}
	if dir := filepath.Dir(p.path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("kms: create local store dir: %w", err)
		}
	}
	if err := os.WriteFile(p.path, data, 0o600); err != nil {
		return fmt.Errorf("kms: write local store: %w", err)
	}
	return nil
}

func (p *LocalProvider) CreateKey(ctx context.Context, params CreateKeyParams) (meta *KeyMetadata, err error) {
	defer func() { observe("local", "create_key", err) }()

	if !ValidateAlgorithm(params.Algorithm) {
		return nil, fmt.Errorf("%w: %s", ErrWeakAlgorithm, params.Algorithm)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if params.Alias != "" {
		if _, exists := p.byAlias[params.Alias]; exists {
			return nil, fmt.Errorf("%w: %s", ErrAliasInUse, params.Alias)
		}
	}

	priv, sym, err := generateKeyMaterial(params.Algorithm)
	if err != nil {
		return nil, err
	}

	keyID := uuid.NewString()
	km := KeyMetadata{
		KeyID:               keyID,
		Alias:                params.Alias,
		Algorithm:            params.Algorithm,
		Usage:                params.Usage,
		State:                KeyStateEnabled,
		CreatedAt:            p.now(),
		Provider:             "local",
		ProviderResourceRef: keyID,
	}
	p.keys[keyID] = &localKey{Meta: km, PrivateDER: priv, SymmetricKey: sym}
	if params.Alias != "" {
		p.byAlias[params.Alias] = keyID
	}
	if err := p.persist(); err != nil {
		return nil, err
	}
	p.log.V(1).Info("created key", "keyId", keyID, "algorithm", params.Algorithm)
	metaCopy := km
	return &metaCopy, nil
}

func (p *LocalProvider) GetKey(ctx context.Context, keyID string) (*KeyMetadata, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	k, ok := p.keys[keyID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, keyID)
	}
	meta := k.Meta
	return &meta, nil
}

func (p *LocalProvider) ListKeys(ctx context.Context) ([]*KeyMetadata, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*KeyMetadata, 0, len(p.keys))
	for _, k := range p.keys {
		meta := k.Meta
		out = append(out, &meta)
	}
	return out, nil
}

func (p *LocalProvider) DisableKey(ctx context.Context, keyID string) error {
	return p.transition(keyID, KeyStateDisabled)
}

func (p *LocalProvider) EnableKey(ctx context.Context, keyID string) error {
	return p.transition(keyID, KeyStateEnabled)
}

func (p *LocalProvider) transition(keyID string, state KeyState) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	k, ok := p.keys[keyID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrKeyNotFound, keyID)
	}
	if k.Meta.State == KeyStateDestroyed {
		return fmt.Errorf("kms: key %s is destroyed and cannot change state", keyID)
	}
	k.Meta.State = state
	if state == KeyStateEnabled {
		k.Meta.PendingDeletionAt = nil
	}
	return p.persist()
}

func (p *LocalProvider) ScheduleKeyDeletion(ctx context.Context, keyID string, pendingWindowDays int) error {
	if pendingWindowDays == 0 {
		pendingWindowDays = DefaultPendingDeletionWindow
	}
	if pendingWindowDays < MinimumPendingDeletionWindow {
		return fmt.Errorf("%w: %d days", ErrInvalidWindow, pendingWindowDays)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	k, ok := p.keys[keyID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrKeyNotFound, keyID)
	}
	at := p.now().AddDate(0, 0, pendingWindowDays)
	k.Meta.State = KeyStatePendingDeletion
	k.Meta.PendingDeletionAt = &at
	return p.persist()
}

func (p *LocalProvider) Sign(ctx context.Context, keyID string, data []byte, opts SignOptions) (sig []byte, err error) {
	defer func() { observe("local", "sign", err) }()

	p.mu.RLock()
	k, ok := p.keys[keyID]
	p.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, keyID)
	}
	if k.Meta.State != KeyStateEnabled {
		return nil, fmt.Errorf("%w: %s", ErrKeyDisabled, keyID)
	}
	if k.Meta.Usage != UsageSignVerify {
		return nil, fmt.Errorf("%w: key usage is %s", ErrAlgorithmMismatch, k.Meta.Usage)
	}

	priv, err := x509.ParsePKCS8PrivateKey(k.PrivateDER)
	if err != nil {
		return nil, fmt.Errorf("kms: parse private key: %w", err)
	}

	digest := data
	if opts.MessageType != MessageTypeDigest {
		sum := sha256.Sum256(data)
		digest = sum[:]
	}

	switch key := priv.(type) {
	case ed25519.PrivateKey:
		// Ed25519 signs the message itself, not a digest, per RFC 8032.
		return ed25519.Sign(key, data), nil
	case *ecdsa.PrivateKey:
		return ecdsa.SignASN1(rand.Reader, key, digest)
	case *rsa.PrivateKey:
		return rsa.SignPSS(rand.Reader, key, crypto.SHA256, digest, nil)
	default:
		return nil, fmt.Errorf("kms: unsupported key type for %s", keyID)
	}
}

func (p *LocalProvider) Verify(ctx context.Context, keyID string, data, signature []byte, opts SignOptions) (ok bool, err error) {
	defer func() { observe("local", "verify", err) }()

	pub, err := p.GetPublicKey(ctx, keyID)
	if err != nil {
		return false, err
	}
	pk, err := x509.ParsePKIXPublicKey(pub)
	if err != nil {
		return false, fmt.Errorf("kms: parse public key: %w", err)
	}

	digest := data
	if opts.MessageType != MessageTypeDigest {
		sum := sha256.Sum256(data)
		digest = sum[:]
	}

	switch key := pk.(type) {
	case ed25519.PublicKey:
		return ed25519.Verify(key, data, signature), nil
	case *ecdsa.PublicKey:
		return ecdsa.VerifyASN1(key, digest, signature), nil
	case *rsa.PublicKey:
		err := rsa.VerifyPSS(key, crypto.SHA256, digest, signature, nil)
		return err == nil, nil
	default:
		return false, fmt.Errorf("kms: unsupported key type for %s", keyID)
	}
}

func (p *LocalProvider) GetPublicKey(ctx context.Context, keyID string) ([]byte, error) {
	p.mu.RLock()
	k, ok := p.keys[keyID]
	p.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, keyID)
	}
	priv, err := x509.ParsePKCS8PrivateKey(k.PrivateDER)
	if err != nil {
		return nil, fmt.Errorf("kms: parse private key: %w", err)
	}
	var pub interface{}
	switch key := priv.(type) {
	case ed25519.PrivateKey:
		pub = key.Public()
	case *ecdsa.PrivateKey:
		pub = &key.PublicKey
	case *rsa.PrivateKey:
		pub = &key.PublicKey
	default:
		return nil, fmt.Errorf("kms: unsupported key type for %s", keyID)
	}
	return x509.MarshalPKIXPublicKey(pub)
}

func (p *LocalProvider) Encrypt(ctx context.Context, keyID string, plaintext []byte) ([]byte, error) {
	p.mu.RLock()
	k, ok := p.keys[keyID]
	p.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, keyID)
	}
	if k.Meta.State != KeyStateEnabled {
		return nil, fmt.Errorf("%w: %s", ErrKeyDisabled, keyID)
	}
	if k.Meta.Usage != UsageEncryptDecrypt && k.Meta.Usage != UsageWrapUnwrap {
		return nil, fmt.Errorf("%w: key usage is %s", ErrAlgorithmMismatch, k.Meta.Usage)
	}

	dek, err := generateDEK()
	if err != nil {
		return nil, err
	}
	nonce, ciphertext, err := aesGCMEncrypt(dek, plaintext)
	if err != nil {
		return nil, err
	}
	wrapNonce, wrappedDEK, err := aesGCMEncrypt(k.SymmetricKey, dek)
	if err != nil {
		return nil, err
	}
	return sealEnvelope(wrappedDEK, wrapNonce, nonce, ciphertext)
}

func (p *LocalProvider) Decrypt(ctx context.Context, keyID string, ciphertext []byte) ([]byte, error) {
	p.mu.RLock()
	k, ok := p.keys[keyID]
	p.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, keyID)
	}

	env, err := openEnvelope(ciphertext)
	if err != nil {
		return nil, err
	}
	dek, err := aesGCMDecrypt(k.SymmetricKey, env.WrapNonce, env.WrappedDEK)
	if err != nil {
		return nil, fmt.Errorf("kms: unwrap DEK: %w", err)
	}
	return aesGCMDecrypt(dek, env.Nonce, env.Ciphertext)
}

func (p *LocalProvider) RotateKey(ctx context.Context, keyID string) (*KeyMetadata, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	k, ok := p.keys[keyID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, keyID)
	}
	priv, sym, err := generateKeyMaterial(k.Meta.Algorithm)
	if err != nil {
		return nil, err
	}
	k.PrivateDER = priv
	k.SymmetricKey = sym
	k.Meta.ProviderResourceRef = fmt.Sprintf("%s-%d", k.Meta.KeyID, p.now().UnixNano())
	if err := p.persist(); err != nil {
		return nil, err
	}
	meta := k.Meta
	return &meta, nil
}

func (p *LocalProvider) Close() error { return nil }

func generateKeyMaterial(alg Algorithm) (privateDER, symmetric []byte, err error) {
	switch alg {
	case AlgorithmEd25519:
		_, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, nil, fmt.Errorf("kms: generate ed25519 key: %w", err)
		}
		der, err := x509.MarshalPKCS8PrivateKey(priv)
		return der, nil, err
	case AlgorithmECP256:
		priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			return nil, nil, fmt.Errorf("kms: generate P256 key: %w", err)
		}
		der, err := x509.MarshalPKCS8PrivateKey(priv)
		return der, nil, err
	case AlgorithmECP384:
		priv, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
		if err != nil {
			return nil, nil, fmt.Errorf("kms: generate P384 key: %w", err)
		}
		der, err := x509.MarshalPKCS8PrivateKey(priv)
		return der, nil, err
	case AlgorithmRSA2048:
		priv, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			return nil, nil, fmt.Errorf("kms: generate RSA-2048 key: %w", err)
		}
		der, err := x509.MarshalPKCS8PrivateKey(priv)
		return der, nil, err
	case AlgorithmRSA4096:
		priv, err := rsa.GenerateKey(rand.Reader, 4096)
		if err != nil {
			return nil, nil, fmt.Errorf("kms: generate RSA-4096 key: %w", err)
		}
		der, err := x509.MarshalPKCS8PrivateKey(priv)
		return der, nil, err
	case AlgorithmAES256:
		sym, err := generateDEK()
		return nil, sym, err
	default:
		return nil, nil, fmt.Errorf("%w: %s", ErrWeakAlgorithm, alg)
	}
}
