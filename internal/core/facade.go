// Package core wires the Trust Oracle, Status-List Store, Audit Log, and
// KMS Provider behind the small surface spec.md §2 calls the Core Façade:
// evaluate, issueStatus, setStatus, checkStatus, emitStatusCredential, log,
// query, verifyIntegrity. It is the only package the surrounding transport
// (HTTP handlers, gateways, orchestrators — all out of scope here) is meant
// to depend on.
package core

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"

	"github.com/altairalabs/trustcore/internal/audit"
	"github.com/altairalabs/trustcore/internal/kms"
	"github.com/altairalabs/trustcore/internal/oracle"
	"github.com/altairalabs/trustcore/internal/statuslist"
	"github.com/altairalabs/trustcore/pkg/logging"
)

// Facade owns the Status List Store, the Audit Log, and a reference to the
// KMS Provider, per spec.md §3's ownership rules. Trust Bond records are
// owned by an external collaborator and are passed in by the caller as part
// of an oracle.Context; the Facade never loads them itself.
type Facade struct {
	kmsProv        kms.Provider
	status         *statuslist.Store
	auditLog       *audit.Log
	auditArchive   audit.Storage
	retentionDays  int
	oracleCfg      oracle.Config
	log            logr.Logger
}

// New builds a Facade over an already-constructed KMS provider, status
// store, and audit log. Use Build for the common case of constructing all
// three from a Config. The audit archive and retention window are unset;
// use WithRetention to enable ArchiveExpiredAuditEntries.
func New(kmsProv kms.Provider, status *statuslist.Store, auditLog *audit.Log, oracleCfg oracle.Config, log logr.Logger) *Facade {
	return &Facade{
		kmsProv:   kmsProv,
		status:    status,
		auditLog:  auditLog,
		oracleCfg: oracleCfg,
		log:       log,
	}
}

// WithRetention attaches an archive storage backend and retention window to
// f, enabling ArchiveExpiredAuditEntries. Returns f for chaining.
func (f *Facade) WithRetention(archiveStorage audit.Storage, retentionDays int) *Facade {
	f.auditArchive = archiveStorage
	f.retentionDays = retentionDays
	return f
}

// Build constructs a KMS provider, status-list store, and audit log from
// cfg and wires them into a Facade, mirroring how cmd/session-api/main.go's
// run() wires a Postgres pool and provider set before constructing its API
// server.
func Build(ctx context.Context, cfg Config) (*Facade, error) {
	log, _, err := logging.NewLogger()
	if err != nil {
		return nil, fmt.Errorf("core: create logger: %w", err)
	}

	kmsProv, err := kms.NewProvider(ctx, cfg.KMS, logging.ForComponent(log, logging.ComponentKMS))
	if err != nil {
		return nil, fmt.Errorf("core: build KMS provider: %w", err)
	}

	statusStorage, err := buildStatusStorage(cfg.StatusList)
	if err != nil {
		return nil, fmt.Errorf("core: build status storage: %w", err)
	}
	statusStore := statuslist.NewStore(statusStorage, kmsProv, logging.ForComponent(log, logging.ComponentStatusList))

	auditStorage, err := buildAuditStorage(cfg.Audit)
	if err != nil {
		return nil, fmt.Errorf("core: build audit storage: %w", err)
	}
	signKeyID := ""
	if cfg.Audit.SignEntries {
		signKeyID = cfg.Audit.SigningKeyID
	}
	auditLog, err := audit.NewLog(ctx, auditStorage, kmsProv, audit.Config{
		Enabled:   cfg.Audit.Enabled,
		SignKeyID: signKeyID,
	}, logging.ForComponent(log, logging.ComponentAudit))
	if err != nil {
		return nil, fmt.Errorf("core: build audit log: %w", err)
	}

	oracleCfg := oracle.Config{TrustScoreThresholdWrite: cfg.Oracle.TrustScoreThresholdWrite}

	if cfg.MetricsRegisterer != nil {
		kms.RegisterMetrics(cfg.MetricsRegisterer)
		statuslist.RegisterMetrics(cfg.MetricsRegisterer)
		audit.RegisterMetrics(cfg.MetricsRegisterer)
		oracle.RegisterMetrics(cfg.MetricsRegisterer)
	}

	facade := New(kmsProv, statusStore, auditLog, oracleCfg, logging.ForComponent(log, logging.ComponentCore))

	if cfg.Audit.RetentionDays > 0 {
		archiveStorage, err := buildAuditArchiveStorage(cfg.Audit)
		if err != nil {
			return nil, fmt.Errorf("core: build audit archive storage: %w", err)
		}
		if archiveStorage != nil {
			facade.WithRetention(archiveStorage, cfg.Audit.RetentionDays)
		}
	}

	return facade, nil
}

// Close releases resources held by the KMS provider.
func (f *Facade) Close() error {
	return f.kmsProv.Close()
}

// Evaluate runs the Trust Oracle over ctx. It is a pure computation: it
// does not write to the audit log or mutate status lists. The caller (this
// package's own convenience wrappers, or an external transport) is
// responsible for logging the verdict and enforcing the recommendation.
func (f *Facade) Evaluate(ctx *oracle.Context) oracle.Verdict {
	start := time.Now()
	verdict := oracle.Evaluate(ctx, f.oracleCfg)
	oracle.EvaluationDuration.WithLabelValues().Observe(time.Since(start).Seconds())
	oracle.Observe(verdict)
	return verdict
}

// EvaluateAndLog evaluates ctx and then writes a single audit entry
// recording the verdict, satisfying A7's "at least a preliminary log entry"
// requirement for the *next* evaluation against the same audit trail. The
// two steps are sequenced by the caller (this method), per spec.md §5's
// note that cross-subsystem ordering is not guaranteed unless the caller
// sequences it itself.
func (f *Facade) EvaluateAndLog(goCtx context.Context, trustCtx *oracle.Context) (oracle.Verdict, *audit.SignedEntry, error) {
	verdict := f.Evaluate(trustCtx)

	result := audit.ResultSuccess
	severity := audit.SeverityInfo
	switch verdict.Recommendation {
	case oracle.RecommendationBlock:
		result = audit.ResultFailure
		severity = audit.SeverityCritical
	case oracle.RecommendationRestrict:
		result = audit.ResultPartial
		severity = audit.SeverityHigh
	case oracle.RecommendationWarn:
		severity = audit.SeverityMedium
	}

	entry, err := f.auditLog.Log(goCtx, "trust.evaluation", severity,
		audit.Actor{ID: trustCtx.AgentID, Type: string(trustCtx.AgentKind)},
		trustCtx.Action, result,
		audit.WithDetails(map[string]any{
			"requestId":      trustCtx.RequestID,
			"score":          verdict.Score,
			"recommendation": verdict.Recommendation,
			"violations":     len(verdict.Violations),
			"warnings":       len(verdict.Warnings),
		}),
	)
	if err != nil {
		return verdict, nil, fmt.Errorf("core: log evaluation: %w", err)
	}
	return verdict, entry, nil
}

// IssueStatus allocates a fresh status-list index for id, creating the list
// first if it does not already exist.
func (f *Facade) IssueStatus(ctx context.Context, id string, params statuslist.InitListParams) (*statuslist.StatusEntry, error) {
	params.ID = id
	if _, err := f.status.InitializeList(ctx, params); err != nil {
		return nil, err
	}
	return f.status.AllocateIndex(ctx, id)
}

// SetStatus revokes or un-revokes the bit at index in list id and records
// the mutation in the audit log.
func (f *Facade) SetStatus(ctx context.Context, id string, index int, revoked bool, actor, reason string) error {
	if err := f.status.SetStatus(ctx, id, index, revoked, actor, reason); err != nil {
		return err
	}

	action := "status.revoke"
	if !revoked {
		action = "status.unrevoke"
	}
	_, logErr := f.auditLog.Log(ctx, "statuslist.mutation", audit.SeverityMedium,
		audit.Actor{ID: actor, Type: "service"},
		action, audit.ResultSuccess,
		audit.WithTarget(audit.Target{Type: "statuslist", ID: id, Attrs: map[string]any{"index": index}}),
		audit.WithDetails(map[string]any{"reason": reason}),
	)
	if logErr != nil {
		f.log.Error(logErr, "failed to audit status mutation", "listId", id, "index", index)
	}
	return nil
}

// CheckStatus reports the status of index within list id.
func (f *Facade) CheckStatus(ctx context.Context, id string, index int) (statuslist.Status, *statuslist.EntryMetadata, error) {
	return f.status.CheckStatus(ctx, id, index)
}

// EmitStatusCredential generates a KMS-signed W3C StatusList2021 credential
// for list id.
func (f *Facade) EmitStatusCredential(ctx context.Context, id string) (*statuslist.VerifiableCredential, error) {
	return f.status.GenerateCredential(ctx, id)
}

// Log writes a single audit entry.
func (f *Facade) Log(ctx context.Context, eventType string, severity audit.Severity, actor audit.Actor, action string, result audit.Result, opts ...audit.EntryOption) (*audit.SignedEntry, error) {
	return f.auditLog.Log(ctx, eventType, severity, actor, action, result, opts...)
}

// Query filters and paginates the audit log.
func (f *Facade) Query(ctx context.Context, filter audit.Filter) (*audit.Page, error) {
	return f.auditLog.Query(ctx, filter)
}

// VerifyIntegrity replays and verifies the audit chain.
func (f *Facade) VerifyIntegrity(ctx context.Context) (*audit.Report, error) {
	return f.auditLog.VerifyIntegrity(ctx)
}

// ArchiveExpiredAuditEntries moves every audit entry older than the
// configured retention window into the archive storage attached by
// WithRetention. It is a no-op if no retention window or archive storage is
// configured, per spec.md §6's audit.retentionDays option.
func (f *Facade) ArchiveExpiredAuditEntries(ctx context.Context) (int, error) {
	if f.retentionDays <= 0 || f.auditArchive == nil {
		return 0, nil
	}
	cutoff := time.Now().AddDate(0, 0, -f.retentionDays)
	return f.auditLog.Archive(ctx, cutoff, f.auditArchive)
}

// KMS exposes the underlying KMS provider for callers that need direct key
// management (creating the audit-signing key or a status-list issuer key
// before any evaluation traffic arrives).
func (f *Facade) KMS() kms.Provider {
	return f.kmsProv
}
