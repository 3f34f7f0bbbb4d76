// Package oracle implements the Trust Oracle: a pure evaluator over a Trust
// Context that scores a candidate agent action against a fixed, versioned
// set of Trust Articles (A1-A7) and produces an allow/warn/restrict/block
// recommendation. The article table is modeled as a slice of {id, check}
// pairs rather than a switch inside one mega-function, per spec.md §9's
// "dynamic dispatch" guidance — each article's check is an ordinary function
// over a Context, so the table stays a first-class, inspectable value.
//
// Evaluate performs no I/O: it reads only the Context and Bond it is
// handed, and repeated calls on a structurally equal Context return
// byte-identical Verdicts. Logging the verdict and enforcing the
// recommendation are the caller's responsibility (internal/core).
package oracle

import "time"

// Severity classifies how serious a violation of a given article is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Status is the outcome of running a single article's check.
type Status string

const (
	StatusPass      Status = "pass"
	StatusWarning   Status = "warning"
	StatusViolation Status = "violation"
	StatusError     Status = "error"
)

// Recommendation is the Oracle's final disposition for a Context.
type Recommendation string

const (
	RecommendationAllow    Recommendation = "allow"
	RecommendationWarn     Recommendation = "warn"
	RecommendationRestrict Recommendation = "restrict"
	RecommendationBlock    Recommendation = "block"
)

// ArticleID identifies one of the seven fixed Trust Articles.
type ArticleID string

const (
	ArticleA1 ArticleID = "A1"
	ArticleA2 ArticleID = "A2"
	ArticleA3 ArticleID = "A3"
	ArticleA4 ArticleID = "A4"
	ArticleA5 ArticleID = "A5"
	ArticleA6 ArticleID = "A6"
	ArticleA7 ArticleID = "A7"
)

// AgentKind classifies the caller's agent.
type AgentKind string

const (
	AgentKindAI      AgentKind = "ai"
	AgentKindHuman   AgentKind = "human"
	AgentKindService AgentKind = "service"
)

// BondState is a Trust Bond's lifecycle state, set by the external
// bond-management collaborator that owns Bond records; the Oracle only
// reads it.
type BondState string

const (
	BondStateActive   BondState = "active"
	BondStateSuspended BondState = "suspended"
	BondStateRevoked  BondState = "revoked"
)

// Bond is a consent envelope binding a caller to an agent. Owned by an
// external collaborator; the Oracle reads it by reference within one
// evaluation and never mutates it.
type Bond struct {
	ID               string
	ScopePermissions map[string]bool
	ScopeDataClasses map[string]bool
	ExpiresAt        *time.Time
	TrustScore       int
	State            BondState
	// Permissions and DataClasses additionally gate A2's extract/export
	// check; the spec names them distinctly from ScopePermissions because a
	// bond can grant chat scopes without granting export rights.
	Permissions map[string]bool
	DataClasses map[string]bool
}

// HasScope reports whether the bond grants scope.
func (b *Bond) HasScope(scope string) bool {
	return b != nil && b.ScopePermissions[scope]
}

// Expired reports whether the bond's expiry, if set, is in the past
// relative to now.
func (b *Bond) Expired(now time.Time) bool {
	return b != nil && b.ExpiresAt != nil && now.After(*b.ExpiresAt)
}

// DataPayload carries the per-request flags A2/A5/A6 inspect.
type DataPayload struct {
	Classification string
	ContainsPII    bool
	Text           string
	Export         bool
}

// AgentCapabilities backs A3's transparency check.
type AgentCapabilities struct {
	Declared    []string
	LastUpdated time.Time
}

// Context is the input to Evaluate, assembled fresh per request. It is
// transient: it lives only for the duration of one evaluation and performs
// no I/O of its own.
type Context struct {
	RequestID       string
	UserID          string
	AgentID         string
	AgentKind       AgentKind
	Action          string // resource.verb, e.g. "chat.write"
	RequestedScopes map[string]bool
	Data            DataPayload
	Encrypted       bool
	Headers         map[string]string
	Bond            *Bond
	Capabilities    *AgentCapabilities
	AuditEnabled    bool
	AuditLogged     bool
	Now             time.Time
}

// ActionVerb returns the verb segment of an action string such as
// "chat.write" or "data.export" — the part after the last '.', which is
// what A2 and A4 key their checks on.
func (c *Context) ActionVerb() string {
	for i := len(c.Action) - 1; i >= 0; i-- {
		if c.Action[i] == '.' {
			return c.Action[i+1:]
		}
	}
	return c.Action
}

// ArticleResult is the outcome of evaluating one Trust Article against a
// Context.
type ArticleResult struct {
	ArticleID ArticleID
	Title     string
	Severity  Severity
	Status    Status
	Reason    string
	Details   map[string]any
}

// Verdict is the Oracle's structured output.
type Verdict struct {
	Passed         []ArticleResult
	Warnings       []ArticleResult
	Violations     []ArticleResult
	Score          int
	Recommendation Recommendation
}
