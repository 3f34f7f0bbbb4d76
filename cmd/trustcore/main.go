package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/altairalabs/trustcore/internal/audit"
	"github.com/altairalabs/trustcore/internal/core"
	"github.com/altairalabs/trustcore/internal/kms"
	"github.com/altairalabs/trustcore/internal/oracle"
	"github.com/altairalabs/trustcore/internal/statuslist"
	"github.com/altairalabs/trustcore/pkg/logging"
)

// flags groups all CLI flags for the trustcore demo binary.
type flags struct {
	metricsAddr string

	kmsProvider   string
	kmsLocalPath  string
	kmsAWSRegion  string
	kmsGCPKeyRing string

	statusBackend   string
	statusStorePath string
	statusDBURL     string
	statusIssuer    string
	statusBaseURL   string
	statusLength    int

	auditEnabled       bool
	auditSign          bool
	auditSignKeyID     string
	auditBackend       string
	auditStorePath     string
	auditDBURL         string
	auditRetentionDays int

	trustScoreThresholdWrite int
}

func parseFlags() *flags {
	f := &flags{}
	flag.StringVar(&f.metricsAddr, "metrics-addr", ":9090", "Metrics server listen address")

	flag.StringVar(&f.kmsProvider, "kms-provider", "local", "KMS provider: local, aws, or gcp")
	flag.StringVar(&f.kmsLocalPath, "kms-local-path", "trustcore-keys.json", "Local KMS key store path")
	flag.StringVar(&f.kmsAWSRegion, "kms-aws-region", "", "AWS region for the KMS provider")
	flag.StringVar(&f.kmsGCPKeyRing, "kms-gcp-keyring", "", "GCP Cloud KMS key ring resource name")

	flag.StringVar(&f.statusBackend, "statuslist-backend", "memory", "Status list storage backend: memory, file, or database")
	flag.StringVar(&f.statusStorePath, "statuslist-path", "trustcore-statuslists", "Status list file storage directory")
	flag.StringVar(&f.statusDBURL, "statuslist-database-url", "", "Status list Postgres connection string")
	flag.StringVar(&f.statusIssuer, "statuslist-issuer", "did:web:trustcore.example", "Default status list issuer DID")
	flag.StringVar(&f.statusBaseURL, "statuslist-base-url", "https://trustcore.example/status", "Default status list base URL")
	flag.IntVar(&f.statusLength, "statuslist-length", statuslist.DefaultLength, "Default status list bitstring length")

	flag.BoolVar(&f.auditEnabled, "audit-enabled", true, "Enable the audit log")
	flag.BoolVar(&f.auditSign, "audit-sign", false, "Sign audit entries with a KMS key instead of running hash-only")
	flag.StringVar(&f.auditSignKeyID, "audit-sign-key-id", "", "KMS key ID used to sign audit entries when --audit-sign is set")
	flag.StringVar(&f.auditBackend, "audit-backend", "memory", "Audit storage backend: memory, file, or database")
	flag.StringVar(&f.auditStorePath, "audit-path", "trustcore-audit.ndjson", "Audit file storage path")
	flag.StringVar(&f.auditDBURL, "audit-database-url", "", "Audit Postgres connection string")
	flag.IntVar(&f.auditRetentionDays, "audit-retention-days", 0, "Archive audit entries older than this many days (0 disables archiving)")

	flag.IntVar(&f.trustScoreThresholdWrite, "trust-score-threshold-write", oracle.DefaultTrustScoreThresholdWrite, "Minimum bond trust score A4 requires for write actions")
	flag.Parse()

	f.applyEnvFallbacks()
	return f
}

// applyEnvFallbacks applies environment variable overrides to flag defaults,
// following cmd/session-api/main.go's envFallback convention.
func (f *flags) applyEnvFallbacks() {
	envFallback(&f.kmsProvider, "local", "TRUSTCORE_KMS_PROVIDER")
	envFallback(&f.kmsLocalPath, "trustcore-keys.json", "TRUSTCORE_KMS_LOCAL_PATH")
	envFallback(&f.kmsAWSRegion, "", "TRUSTCORE_KMS_AWS_REGION")
	envFallback(&f.kmsGCPKeyRing, "", "TRUSTCORE_KMS_GCP_KEYRING")

	envFallback(&f.statusBackend, "memory", "TRUSTCORE_STATUSLIST_BACKEND")
	envFallback(&f.statusDBURL, "", "TRUSTCORE_STATUSLIST_DATABASE_URL")
	envFallback(&f.statusIssuer, "did:web:trustcore.example", "TRUSTCORE_STATUSLIST_ISSUER")
	envFallback(&f.statusBaseURL, "https://trustcore.example/status", "TRUSTCORE_STATUSLIST_BASE_URL")

	envFallback(&f.auditBackend, "memory", "TRUSTCORE_AUDIT_BACKEND")
	envFallback(&f.auditDBURL, "", "TRUSTCORE_AUDIT_DATABASE_URL")
	envFallback(&f.auditSignKeyID, "", "TRUSTCORE_AUDIT_SIGN_KEY_ID")
	envIntFallback(&f.auditRetentionDays, "TRUSTCORE_AUDIT_RETENTION_DAYS")

	envBoolFallback(&f.auditEnabled, "TRUSTCORE_AUDIT_ENABLED", true)
	envBoolFallback(&f.auditSign, "TRUSTCORE_AUDIT_SIGN", false)

	envIntFallback(&f.trustScoreThresholdWrite, "TRUSTCORE_TRUST_SCORE_THRESHOLD_WRITE")
}

func envFallback(dst *string, defaultVal, envKey string) {
	if *dst == defaultVal {
		if v := os.Getenv(envKey); v != "" {
			*dst = v
		}
	}
}

// envBoolFallback sets *dst from envKey ("true"/"false") when *dst is still
// at its default value.
func envBoolFallback(dst *bool, envKey string, defaultVal bool) {
	if *dst != defaultVal {
		return
	}
	switch os.Getenv(envKey) {
	case "true":
		*dst = true
	case "false":
		*dst = false
	}
}

// envIntFallback sets *dst from envKey when the variable parses as an int,
// leaving the flag-derived default untouched otherwise.
func envIntFallback(dst *int, envKey string) {
	v := os.Getenv(envKey)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return
	}
	*dst = n
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	f := parseFlags()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg := core.Config{
		KMS: kms.Config{
			ProviderType:   kms.ProviderType(f.kmsProvider),
			LocalStorePath: f.kmsLocalPath,
			AWSRegion:      f.kmsAWSRegion,
			GCPKeyRing:     f.kmsGCPKeyRing,
		},
		StatusList: core.StatusListConfig{
			Backend:       core.StorageBackend(f.statusBackend),
			FilePath:      f.statusStorePath,
			DatabaseURL:   f.statusDBURL,
			DefaultLength: f.statusLength,
			Issuer:        f.statusIssuer,
			BaseURL:       f.statusBaseURL,
		},
		Audit: core.AuditConfig{
			Enabled:        f.auditEnabled,
			SignEntries:    f.auditSign,
			SigningKeyID:   f.auditSignKeyID,
			StorageBackend: core.StorageBackend(f.auditBackend),
			StoragePath:    f.auditStorePath,
			DatabaseURL:    f.auditDBURL,
			RetentionDays:  f.auditRetentionDays,
		},
		Oracle: core.OracleConfig{
			TrustScoreThresholdWrite: f.trustScoreThresholdWrite,
		},
		MetricsRegisterer: prometheus.DefaultRegisterer,
	}

	facade, err := core.Build(ctx, cfg)
	if err != nil {
		return fmt.Errorf("building trustcore facade: %w", err)
	}
	defer func() { _ = facade.Close() }()

	log, _, err := logging.NewLogger()
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}

	metricsSrv := newMetricsServer(f.metricsAddr)
	startHTTPServer(log, "metrics", f.metricsAddr, metricsSrv)

	if err := runSmokeTest(ctx, facade, log); err != nil {
		return fmt.Errorf("smoke test: %w", err)
	}

	log.Info("trustcore ready", "metrics", f.metricsAddr)
	<-ctx.Done()
	log.Info("shutting down")
	return metricsSrv.Close()
}

// runSmokeTest exercises a subset of the façade once, equivalent to an
// operator's manual smoke test: create a signing key, issue a status-list
// entry, evaluate a Trust Context, record the verdict, revoke the entry,
// emit a signed credential, and verify the resulting audit chain. It does
// not call CheckStatus, Query, Log, a bare Evaluate, or
// ArchiveExpiredAuditEntries.
func runSmokeTest(ctx context.Context, facade *core.Facade, log logr.Logger) error {
	signingKey, err := facade.KMS().CreateKey(ctx, kms.CreateKeyParams{
		Algorithm: kms.AlgorithmEd25519,
		Usage:     kms.UsageSignVerify,
		Alias:     "trustcore-statuslist-issuer",
	})
	if err != nil {
		return fmt.Errorf("create status list signing key: %w", err)
	}

	entry, err := facade.IssueStatus(ctx, "agents", statuslist.InitListParams{
		Purpose: statuslist.PurposeRevocation,
		Length:  statuslist.DefaultLength,
		Issuer:  "did:web:trustcore.example",
		BaseURL: "https://trustcore.example/status",
		KeyID:   signingKey.KeyID,
	})
	if err != nil {
		return fmt.Errorf("issue status list entry: %w", err)
	}
	log.Info("issued status list entry", "index", entry.StatusListIndex)

	bond := &oracle.Bond{
		ID:               "bond-demo",
		ScopePermissions: map[string]bool{"chat": true},
		TrustScore:       85,
		State:            oracle.BondStateActive,
	}
	trustCtx := &oracle.Context{
		RequestID:       "demo-request-1",
		AgentID:         "agent-demo",
		AgentKind:       oracle.AgentKindAI,
		Action:          "chat.write",
		RequestedScopes: map[string]bool{"chat": true},
		Bond:            bond,
		Capabilities:    &oracle.AgentCapabilities{Declared: []string{"chat"}},
		AuditEnabled:    true,
		AuditLogged:     true,
	}

	verdict, signed, err := facade.EvaluateAndLog(ctx, trustCtx)
	if err != nil {
		return fmt.Errorf("evaluate and log: %w", err)
	}
	log.Info("evaluated trust context", "recommendation", verdict.Recommendation, "score", verdict.Score, "auditEntry", signed.ID)

	if err := facade.SetStatus(ctx, "agents", entry.StatusListIndex, true, "operator-demo", "smoke test revocation"); err != nil {
		return fmt.Errorf("set status: %w", err)
	}

	vc, err := facade.EmitStatusCredential(ctx, "agents")
	if err != nil {
		return fmt.Errorf("emit status credential: %w", err)
	}
	log.Info("emitted status credential", "id", vc.ID)

	report, err := facade.VerifyIntegrity(ctx)
	if err != nil {
		return fmt.Errorf("verify integrity: %w", err)
	}
	log.Info("verified audit chain", "valid", report.Valid, "entries", report.VerifiedEntries)
	return nil
}

func startHTTPServer(log logr.Logger, name, addr string, srv *http.Server) {
	go func() {
		log.Info("starting server", "server", name, "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(err, "server error", "server", name)
		}
	}()
}

func newMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	return &http.Server{Addr: addr, Handler: mux}
}
