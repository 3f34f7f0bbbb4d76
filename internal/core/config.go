package core

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/altairalabs/trustcore/internal/audit"
	"github.com/altairalabs/trustcore/internal/kms"
	"github.com/altairalabs/trustcore/internal/statuslist"
)

// StorageBackend selects a pluggable storage implementation, per spec.md
// §6's "in-memory, file, or database-shaped" persistence options.
type StorageBackend string

const (
	StorageMemory   StorageBackend = "memory"
	StorageFile     StorageBackend = "file"
	StorageDatabase StorageBackend = "database"
)

// StatusListConfig configures the status-list storage backend and default
// issuance parameters.
type StatusListConfig struct {
	Backend       StorageBackend
	FilePath      string
	DatabaseURL   string
	DefaultLength int
	Issuer        string
	BaseURL       string
}

// AuditConfig configures the audit log: master switch, signing, and
// storage backend.
type AuditConfig struct {
	Enabled        bool
	SignEntries    bool
	SigningKeyID   string
	StorageBackend StorageBackend
	StoragePath    string
	DatabaseURL    string
	RetentionDays  int
}

// OracleConfig configures the Trust Oracle's one tunable parameter.
type OracleConfig struct {
	TrustScoreThresholdWrite int
}

// Config is the flat configuration struct for Build, covering every option
// enumerated in spec.md §6.
type Config struct {
	KMS        kms.Config
	StatusList StatusListConfig
	Audit      AuditConfig
	Oracle     OracleConfig
	// MetricsRegisterer receives every subsystem's Prometheus collectors when
	// set. Build registers nothing when it is nil, which is the correct
	// behavior for tests that construct multiple Facades against the default
	// registry and would otherwise collide on duplicate registration.
	MetricsRegisterer prometheus.Registerer
}

// buildStatusStorage selects a statuslist.Storage implementation per
// cfg.Backend.
func buildStatusStorage(cfg StatusListConfig) (statuslist.Storage, error) {
	switch cfg.Backend {
	case "", StorageMemory:
		return statuslist.NewMemoryStorage(), nil
	case StorageFile:
		if cfg.FilePath == "" {
			return nil, fmt.Errorf("core: statuslist.storagePath is required for file backend")
		}
		return statuslist.NewFileStorage(cfg.FilePath)
	case StorageDatabase:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("core: statuslist.databaseUrl is required for database backend")
		}
		return statuslist.NewPostgresStorage(cfg.DatabaseURL)
	default:
		return nil, fmt.Errorf("core: unknown statuslist storage backend %q", cfg.Backend)
	}
}

// buildAuditArchiveStorage selects an archive-target audit.Storage
// implementation for entries moved out of the live chain by
// ArchiveExpiredAuditEntries, when cfg.RetentionDays is positive. The
// database backend has no archive counterpart yet (PostgresStorage targets
// a single fixed table), so archiving is only available for memory and file
// backends; it returns (nil, nil) for database, leaving retention a no-op.
func buildAuditArchiveStorage(cfg AuditConfig) (audit.Storage, error) {
	switch cfg.StorageBackend {
	case "", StorageMemory:
		return audit.NewMemoryStorage(), nil
	case StorageFile:
		if cfg.StoragePath == "" {
			return nil, fmt.Errorf("core: audit.storagePath is required for file backend")
		}
		return audit.NewFileStorage(cfg.StoragePath + ".archive")
	case StorageDatabase:
		return nil, nil
	default:
		return nil, fmt.Errorf("core: unknown audit storage backend %q", cfg.StorageBackend)
	}
}

// buildAuditStorage selects an audit.Storage implementation per
// cfg.StorageBackend.
func buildAuditStorage(cfg AuditConfig) (audit.Storage, error) {
	switch cfg.StorageBackend {
	case "", StorageMemory:
		return audit.NewMemoryStorage(), nil
	case StorageFile:
		if cfg.StoragePath == "" {
			return nil, fmt.Errorf("core: audit.storagePath is required for file backend")
		}
		return audit.NewFileStorage(cfg.StoragePath)
	case StorageDatabase:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("core: audit.databaseUrl is required for database backend")
		}
		return audit.NewPostgresStorage(cfg.DatabaseURL)
	default:
		return nil, fmt.Errorf("core: unknown audit storage backend %q", cfg.StorageBackend)
	}
}
