package audit

import (
	"context"
	"fmt"
	"time"
)

// Query filters and paginates the chain by time range, event types, actor
// ids, target ids, severity, and result. Ordering is insertion order unless
// the backend overrides it. Limit defaults to DefaultQueryLimit and is
// capped at MaxQueryLimit.
func (l *Log) Query(ctx context.Context, filter Filter) (*Page, error) {
	start := time.Now()
	defer func() { QueryDuration.Observe(time.Since(start).Seconds()) }()

	entries, err := l.storage.AllEntries(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	matched := make([]*SignedEntry, 0, len(entries))
	for _, e := range entries {
		if matches(e, filter) {
			matched = append(matched, e)
		}
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}
	if limit > MaxQueryLimit {
		limit = MaxQueryLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	total := len(matched)
	var page []*SignedEntry
	if offset < total {
		end := offset + limit
		if end > total {
			end = total
		}
		page = matched[offset:end]
	}

	return &Page{
		Entries: page,
		Total:   total,
		HasMore: offset+len(page) < total,
	}, nil
}

func matches(e *SignedEntry, f Filter) bool {
	if !f.From.IsZero() && e.Timestamp.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !e.Timestamp.Before(f.To) {
		return false
	}
	if len(f.EventTypes) > 0 && !containsString(f.EventTypes, e.EventType) {
		return false
	}
	if len(f.ActorIDs) > 0 && !containsString(f.ActorIDs, e.Actor.ID) {
		return false
	}
	if len(f.TargetIDs) > 0 {
		if e.Target == nil || !containsString(f.TargetIDs, e.Target.ID) {
			return false
		}
	}
	if len(f.Severities) > 0 && !containsSeverity(f.Severities, e.Severity) {
		return false
	}
	if len(f.Results) > 0 && !containsResult(f.Results, e.Result) {
		return false
	}
	return true
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func containsSeverity(haystack []Severity, needle Severity) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func containsResult(haystack []Result, needle Result) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
