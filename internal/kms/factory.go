package kms

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"
)

// ProviderType selects which KMS backend NewProvider constructs.
type ProviderType string

const (
	ProviderLocal ProviderType = "local"
	ProviderAWS   ProviderType = "aws"
	ProviderGCP   ProviderType = "gcp"
)

// Config configures whichever provider ProviderType selects. Fields unused
// by the selected provider are ignored, following the teacher's
// encryption.ProviderConfig shape (a single struct with provider-specific
// fields rather than one config type per provider).
type Config struct {
	ProviderType ProviderType

	// Local
	LocalStorePath string

	// AWS
	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string

	// GCP
	GCPKeyRing         string
	GCPCredentialsJSON string
}

// NewProvider constructs a Provider per cfg.ProviderType.
func NewProvider(ctx context.Context, cfg Config, log logr.Logger) (Provider, error) {
	switch cfg.ProviderType {
	case ProviderLocal:
		return NewLocalProvider(cfg.LocalStorePath, log)
	case ProviderAWS:
		return NewAWSProvider(ctx, cfg.AWSRegion, cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, log)
	case ProviderGCP:
		return NewGCPProvider(ctx, cfg.GCPKeyRing, cfg.GCPCredentialsJSON, log)
	default:
		return nil, fmt.Errorf("kms: unknown provider type %q", cfg.ProviderType)
	}
}
