package kms

import (
	"context"
	"crypto/ed25519"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"cloud.google.com/go/kms/apiv1/kmspb"
	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/timestamppb"
)

type fakeGCPKMSClient struct {
	pubPEM     string
	signature  []byte
	wrappedDEK []byte
	dek        []byte
}

func (f *fakeGCPKMSClient) CreateCryptoKey(ctx context.Context, req *kmspb.CreateCryptoKeyRequest) (*kmspb.CryptoKey, error) {
	return &kmspb.CryptoKey{
		Name:       req.Parent + "/cryptoKeys/" + req.CryptoKeyId,
		CreateTime: timestamppb.New(time.Now()),
	}, nil
}

func (f *fakeGCPKMSClient) GetCryptoKey(ctx context.Context, req *kmspb.GetCryptoKeyRequest) (*kmspb.CryptoKey, error) {
	return &kmspb.CryptoKey{
		Name:       req.Name,
		CreateTime: timestamppb.New(time.Now()),
		Primary: &kmspb.CryptoKeyVersion{
			Name:  req.Name + "/cryptoKeyVersions/1",
			State: kmspb.CryptoKeyVersion_ENABLED,
		},
	}, nil
}

func (f *fakeGCPKMSClient) AsymmetricSign(ctx context.Context, req *kmspb.AsymmetricSignRequest) (*kmspb.AsymmetricSignResponse, error) {
	return &kmspb.AsymmetricSignResponse{Signature: f.signature}, nil
}

func (f *fakeGCPKMSClient) GetPublicKey(ctx context.Context, req *kmspb.GetPublicKeyRequest) (*kmspb.PublicKey, error) {
	return &kmspb.PublicKey{Pem: f.pubPEM}, nil
}

func (f *fakeGCPKMSClient) Encrypt(ctx context.Context, req *kmspb.EncryptRequest) (*kmspb.EncryptResponse, error) {
	return &kmspb.EncryptResponse{Ciphertext: f.wrappedDEK}, nil
}

func (f *fakeGCPKMSClient) Decrypt(ctx context.Context, req *kmspb.DecryptRequest) (*kmspb.DecryptResponse, error) {
	return &kmspb.DecryptResponse{Plaintext: f.dek}, nil
}

func (f *fakeGCPKMSClient) CreateCryptoKeyVersion(ctx context.Context, req *kmspb.CreateCryptoKeyVersionRequest) (*kmspb.CryptoKeyVersion, error) {
	return &kmspb.CryptoKeyVersion{Name: req.Parent + "/cryptoKeyVersions/2"}, nil
}

func (f *fakeGCPKMSClient) UpdateCryptoKeyPrimaryVersion(ctx context.Context, req *kmspb.UpdateCryptoKeyPrimaryVersionRequest) (*kmspb.CryptoKey, error) {
	return &kmspb.CryptoKey{Name: req.Name}, nil
}

func (f *fakeGCPKMSClient) DestroyCryptoKeyVersion(ctx context.Context, req *kmspb.DestroyCryptoKeyVersionRequest) (*kmspb.CryptoKeyVersion, error) {
	return &kmspb.CryptoKeyVersion{Name: req.Name, State: kmspb.CryptoKeyVersion_DESTROY_SCHEDULED}, nil
}

func (f *fakeGCPKMSClient) Close() error { return nil }

func TestGCPProvider_CreateKey(t *testing.T) {
	fake := &fakeGCPKMSClient{}
	p := newGCPProviderWithClient(fake, "projects/p/locations/global/keyRings/trustcore", logr.Discard())

	meta, err := p.CreateKey(context.Background(), CreateKeyParams{Algorithm: AlgorithmECP256, Usage: UsageSignVerify, Alias: "audit"})
	require.NoError(t, err)
	assert.Contains(t, meta.KeyID, "cryptoKeys/audit")
}

func TestGCPProvider_VerifyUsesLocalPublicKey(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(pub)
	require.NoError(t, err)
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})

	msg := []byte("status list credential payload")
	sig := ed25519.Sign(priv, msg)

	fake := &fakeGCPKMSClient{pubPEM: string(pemBytes)}
	p := newGCPProviderWithClient(fake, "projects/p/locations/global/keyRings/trustcore", logr.Discard())

	ok, err := p.Verify(context.Background(), "key-name", msg, sig, SignOptions{MessageType: MessageTypeRaw})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGCPProvider_EncryptDecryptRoundTrip(t *testing.T) {
	dek := make([]byte, 32)
	fake := &fakeGCPKMSClient{dek: dek, wrappedDEK: []byte("wrapped-dek")}
	p := newGCPProviderWithClient(fake, "projects/p/locations/global/keyRings/trustcore", logr.Discard())

	plaintext := []byte("status list bitstring")
	ciphertext, err := p.Encrypt(context.Background(), "key-name", plaintext)
	require.NoError(t, err)

	decrypted, err := p.Decrypt(context.Background(), "key-name", ciphertext)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestGCPProvider_ListKeysUnimplemented(t *testing.T) {
	fake := &fakeGCPKMSClient{}
	p := newGCPProviderWithClient(fake, "projects/p/locations/global/keyRings/trustcore", logr.Discard())
	_, err := p.ListKeys(context.Background())
	assert.Error(t, err)
}
