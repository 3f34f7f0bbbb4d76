package oracle

import (
	"strings"
	"time"
)

// checkFunc evaluates one Trust Article against ctx. It must not mutate ctx
// or perform I/O; a non-nil error is treated by Evaluate as a StatusError
// violation of the article's configured severity, per spec.md §4.4
// ("catching an unexpected error inside a check yields a violation").
type checkFunc func(ctx *Context, cfg Config) (Status, string, map[string]any, error)

// article binds a fixed Trust Article identity to its check function. The
// set is closed and ordered; Evaluate walks it top to bottom exactly once
// per call.
type article struct {
	id       ArticleID
	title    string
	severity Severity
	check    checkFunc
}

// articles is the fixed, versioned Trust Article table (A1-A7). It is not
// user-editable at runtime: extending or reordering it is a code change,
// not a configuration change.
var articles = []article{
	{ArticleA1, "Consent-First Data Use", SeverityHigh, checkA1},
	{ArticleA2, "No Unrequested Data Extraction", SeverityHigh, checkA2},
	{ArticleA3, "Transparent Capability Disclosure", SeverityMedium, checkA3},
	{ArticleA4, "Respect Boundaries", SeverityHigh, checkA4},
	{ArticleA5, "No Deceptive Practices", SeverityCritical, checkA5},
	{ArticleA6, "Secure Data Handling", SeverityHigh, checkA6},
	{ArticleA7, "Audit Trail Maintenance", SeverityMedium, checkA7},
}

// checkA1 enforces that a bond is present, covers every requested scope,
// and has not expired.
func checkA1(ctx *Context, cfg Config) (Status, string, map[string]any, error) {
	if ctx.Bond == nil {
		return StatusViolation, "no trust bond present for this caller/agent pair", nil, nil
	}
	if ctx.Bond.Expired(ctx.Now) {
		return StatusViolation, "trust bond has expired", map[string]any{"expiresAt": ctx.Bond.ExpiresAt}, nil
	}
	var missing []string
	for scope := range ctx.RequestedScopes {
		if !ctx.Bond.HasScope(scope) {
			missing = append(missing, scope)
		}
	}
	if len(missing) > 0 {
		return StatusViolation, "requested scopes exceed bond consent: " + strings.Join(missing, ", "), map[string]any{"missingScopes": missing}, nil
	}
	return StatusPass, "all requested scopes are within bond consent", nil, nil
}

// checkA2 blocks extract/export actions unless the bond explicitly permits
// export and the data's classification is within the bond's allowed
// classes.
func checkA2(ctx *Context, cfg Config) (Status, string, map[string]any, error) {
	verb := ctx.ActionVerb()
	if verb != "extract" && verb != "export" {
		return StatusPass, "action is not a data extraction verb", nil, nil
	}
	if ctx.Bond == nil || !ctx.Bond.Permissions["export"] {
		return StatusViolation, "data export is not permitted by the bond", nil, nil
	}
	if ctx.Data.Classification != "" && !ctx.Bond.DataClasses[ctx.Data.Classification] {
		return StatusViolation, "data classification is outside the bond's allowed classes", map[string]any{"classification": ctx.Data.Classification}, nil
	}
	return StatusPass, "extraction is within bond export permissions", nil, nil
}

// checkA3 requires the agent to have declared its capabilities; if the
// declaration is stale (>30 days) it degrades to a warning rather than a
// violation.
func checkA3(ctx *Context, cfg Config) (Status, string, map[string]any, error) {
	if ctx.Capabilities == nil || len(ctx.Capabilities.Declared) == 0 {
		return StatusViolation, "agent has not declared its capabilities", nil, nil
	}
	age := ctx.Now.Sub(ctx.Capabilities.LastUpdated)
	if age > 30*24*time.Hour {
		return StatusWarning, "capability declaration is more than 30 days old", map[string]any{"ageDays": int(age.Hours() / 24)}, nil
	}
	return StatusPass, "capabilities declared and current", nil, nil
}

// checkA4 enforces a minimum bond trust score for the action and requires
// overlap between requested and bond-allowed scopes.
func checkA4(ctx *Context, cfg Config) (Status, string, map[string]any, error) {
	if ctx.Bond == nil {
		return StatusViolation, "no trust bond to evaluate boundary against", nil, nil
	}
	threshold := cfg.TrustScoreThreshold(ctx.ActionVerb())
	if ctx.Bond.TrustScore < threshold {
		return StatusViolation, "bond trust score below the action's threshold", map[string]any{"trustScore": ctx.Bond.TrustScore, "threshold": threshold}, nil
	}
	if len(ctx.RequestedScopes) > 0 {
		overlap := false
		for scope := range ctx.RequestedScopes {
			if ctx.Bond.HasScope(scope) {
				overlap = true
				break
			}
		}
		if !overlap {
			return StatusViolation, "requested scopes do not intersect allowed scopes", nil, nil
		}
	}
	return StatusPass, "trust score and scope overlap satisfy the boundary", nil, nil
}

// deceptiveIdentityPatterns are substrings that, found in an AI agent's
// content, indicate it is claiming to be human or otherwise misrepresenting
// its nature. Matching is case-insensitive and intentionally simple: this
// is a fixed policy check, not a general-purpose classifier.
var deceptiveIdentityPatterns = []string{
	"i am a human",
	"i'm a human",
	"i am not an ai",
	"i'm not an ai",
	"i am not a bot",
	"trust me, i'm human",
	"this is not an ai",
}

// checkA5 flags AI agents whose content matches a known deceptive-identity
// pattern.
func checkA5(ctx *Context, cfg Config) (Status, string, map[string]any, error) {
	if ctx.AgentKind != AgentKindAI {
		return StatusPass, "agent is not AI-kind, deceptive-identity check not applicable", nil, nil
	}
	lower := strings.ToLower(ctx.Data.Text)
	for _, pattern := range deceptiveIdentityPatterns {
		if strings.Contains(lower, pattern) {
			return StatusViolation, "content matched a deceptive-identity pattern", map[string]any{"pattern": pattern}, nil
		}
	}
	return StatusPass, "no deceptive-identity pattern matched", nil, nil
}

// checkA6 requires encryption (transport or explicit flag) whenever the
// payload contains PII.
func checkA6(ctx *Context, cfg Config) (Status, string, map[string]any, error) {
	if !ctx.Data.ContainsPII {
		return StatusPass, "payload does not contain PII", nil, nil
	}
	if !ctx.Encrypted {
		return StatusViolation, "PII payload was not encrypted in transit", nil, nil
	}
	return StatusPass, "PII payload was encrypted", nil, nil
}

// checkA7 requires audit logging to be enabled and at least a preliminary
// entry to have been produced for this request.
func checkA7(ctx *Context, cfg Config) (Status, string, map[string]any, error) {
	if !ctx.AuditEnabled {
		return StatusViolation, "audit logging is disabled for this request", nil, nil
	}
	if !ctx.AuditLogged {
		return StatusWarning, "audit logging enabled but no preliminary entry recorded yet", nil, nil
	}
	return StatusPass, "audit trail maintained", nil, nil
}
