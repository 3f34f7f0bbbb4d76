package audit

import (
	"context"
	"fmt"
	"time"
)

// Archive moves every entry with a Timestamp strictly before cutoff out of
// the live chain and into archiveStorage, preserving insertion order. It
// never deletes an entry: the live chain's first remaining entry still
// carries the PreviousHash that anchors back to the archived segment's last
// entry, so VerifyIntegrity over the concatenation of archiveStorage then
// storage still replays as one unbroken chain, per spec.md §4.5's retention
// rule. Returns the number of entries archived.
func (l *Log) Archive(ctx context.Context, cutoff time.Time, archiveStorage Storage) (int, error) {
	l.appendMu.Lock()
	defer l.appendMu.Unlock()

	entries, err := l.storage.AllEntries(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	var archived, retained []*SignedEntry
	for _, e := range entries {
		if e.Timestamp.Before(cutoff) {
			archived = append(archived, e)
		} else {
			retained = append(retained, e)
		}
	}
	if len(archived) == 0 {
		return 0, nil
	}

	for _, e := range archived {
		if err := archiveStorage.Append(ctx, e); err != nil {
			return 0, fmt.Errorf("%w: archive entry %s: %v", ErrStorage, e.ID, err)
		}
	}
	if err := l.storage.Replace(ctx, retained); err != nil {
		return 0, fmt.Errorf("%w: replace live storage after archiving: %v", ErrStorage, err)
	}
	return len(archived), nil
}
