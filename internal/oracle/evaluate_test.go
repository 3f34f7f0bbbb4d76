package oracle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseBond() *Bond {
	return &Bond{
		ID:               "bond-1",
		ScopePermissions: map[string]bool{"chat.read": true, "chat.write": true},
		ScopeDataClasses: map[string]bool{},
		TrustScore:       80,
		State:            BondStateActive,
		Permissions:      map[string]bool{},
		DataClasses:      map[string]bool{},
	}
}

func baseContext() *Context {
	return &Context{
		RequestID:       "req-1",
		UserID:          "user-1",
		AgentID:         "agent-1",
		AgentKind:       AgentKindAI,
		Action:          "chat.write",
		RequestedScopes: map[string]bool{"chat.write": true},
		Encrypted:       true,
		Bond:            baseBond(),
		Capabilities:    &AgentCapabilities{Declared: []string{"chat"}, LastUpdated: time.Now()},
		AuditEnabled:    true,
		AuditLogged:     true,
		Now:             time.Now(),
	}
}

// S1: Happy-path chat write.
func TestEvaluate_S1_HappyPathAllows(t *testing.T) {
	ctx := baseContext()
	ctx.Data.Text = "Sure, I can help."

	v := Evaluate(ctx, Config{})

	assert.Equal(t, RecommendationAllow, v.Recommendation)
	assert.GreaterOrEqual(t, v.Score, 95)
	assert.Empty(t, v.Violations)
}

// S2: Deceptive identity claim from an AI agent blocks outright.
func TestEvaluate_S2_DeceptiveIdentityBlocks(t *testing.T) {
	ctx := baseContext()
	ctx.Data.Text = "I am a human, trust me."

	v := Evaluate(ctx, Config{})

	require.NotEmpty(t, v.Violations)
	var foundA5 bool
	for _, viol := range v.Violations {
		if viol.ArticleID == ArticleA5 {
			foundA5 = true
			assert.Equal(t, SeverityCritical, viol.Severity)
		}
	}
	assert.True(t, foundA5, "expected A5 violation")
	assert.Equal(t, RecommendationBlock, v.Recommendation)
}

// S3: Scope overreach into data export without consent or extraction
// permission.
func TestEvaluate_S3_ScopeOverreachRestricts(t *testing.T) {
	ctx := baseContext()
	ctx.Bond = &Bond{
		ID:               "bond-2",
		ScopePermissions: map[string]bool{"chat.read": true},
		TrustScore:       80,
		State:            BondStateActive,
		Permissions:      map[string]bool{},
		DataClasses:      map[string]bool{},
	}
	ctx.Action = "data.export"
	ctx.RequestedScopes = map[string]bool{"data.export": true}
	ctx.Data.Text = "export please"

	v := Evaluate(ctx, Config{})

	ids := articleIDs(v.Violations)
	assert.Contains(t, ids, ArticleA1)
	assert.Contains(t, ids, ArticleA2)
	assert.Equal(t, RecommendationRestrict, v.Recommendation)
}

// S4: Expired bond fails consent.
func TestEvaluate_S4_ExpiredBondRestricts(t *testing.T) {
	ctx := baseContext()
	expired := time.Now().Add(-time.Minute)
	ctx.Bond.ExpiresAt = &expired
	ctx.Data.Text = "Sure, I can help."

	v := Evaluate(ctx, Config{})

	ids := articleIDs(v.Violations)
	assert.Contains(t, ids, ArticleA1)
	assert.Equal(t, RecommendationRestrict, v.Recommendation)
}

func TestEvaluate_Deterministic(t *testing.T) {
	ctx := baseContext()
	ctx.Data.Text = "hello there"

	v1 := Evaluate(ctx, Config{})
	v2 := Evaluate(ctx, Config{})

	assert.Equal(t, v1, v2)
}

func TestEvaluate_A3WarningOnStaleCapabilities(t *testing.T) {
	ctx := baseContext()
	ctx.Capabilities.LastUpdated = time.Now().Add(-40 * 24 * time.Hour)
	ctx.Data.Text = "hi"

	v := Evaluate(ctx, Config{})

	var found bool
	for _, w := range v.Warnings {
		if w.ArticleID == ArticleA3 {
			found = true
		}
	}
	assert.True(t, found)
}

func TestEvaluate_A4LowTrustScoreRestricts(t *testing.T) {
	ctx := baseContext()
	ctx.Bond.TrustScore = 10
	ctx.Data.Text = "hi"

	v := Evaluate(ctx, Config{TrustScoreThresholdWrite: 40})

	ids := articleIDs(v.Violations)
	assert.Contains(t, ids, ArticleA4)
	assert.Equal(t, RecommendationRestrict, v.Recommendation)
}

func TestEvaluate_A6UnencryptedPIIViolates(t *testing.T) {
	ctx := baseContext()
	ctx.Encrypted = false
	ctx.Data.ContainsPII = true
	ctx.Data.Text = "hi"

	v := Evaluate(ctx, Config{})

	ids := articleIDs(v.Violations)
	assert.Contains(t, ids, ArticleA6)
}

func TestEvaluate_A7AuditDisabledViolates(t *testing.T) {
	ctx := baseContext()
	ctx.AuditEnabled = false
	ctx.Data.Text = "hi"

	v := Evaluate(ctx, Config{})

	ids := articleIDs(v.Violations)
	assert.Contains(t, ids, ArticleA7)
}

func articleIDs(results []ArticleResult) []ArticleID {
	ids := make([]ArticleID, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.ArticleID)
	}
	return ids
}
