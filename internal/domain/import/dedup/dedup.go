// Package dedup collapses duplicate transaction drafts. Duplicates appear
// two ways: the same entry emitted twice within one parse pass (wrapped
// lines, merged parser outputs) and entries already imported on a previous
// run. The first half lives here; the second half goes through a store
// lookup the engine consumes but does not implement.
package dedup

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/SvetoslavVachkov/Diploma-sub000/internal/domain/statement"
)

// HistoryLookup is the persisted-history half of deduplication, implemented
// by the repository layer.
type HistoryLookup interface {
	// ExistingKeys returns the composite keys of every transaction already
	// imported for the user.
	ExistingKeys(ctx context.Context, userID uuid.UUID) (map[string]struct{}, error)
}

// Deduper tracks composite keys seen within one parse pass.
type Deduper struct {
	seen map[string]struct{}
}

// New returns an empty per-pass deduper.
func New() *Deduper {
	return &Deduper{seen: make(map[string]struct{})}
}

// Admit records the draft's key and reports whether it was seen for the
// first time. A later draft with a colliding key is dropped.
func (d *Deduper) Admit(t statement.TransactionDraft) bool {
	key := t.Key()
	if _, dup := d.seen[key]; dup {
		return false
	}
	d.seen[key] = struct{}{}
	return true
}

// Collapse filters a draft list down to first occurrences, preserving order.
func Collapse(drafts []statement.TransactionDraft) []statement.TransactionDraft {
	d := New()
	out := make([]statement.TransactionDraft, 0, len(drafts))
	for _, t := range drafts {
		if d.Admit(t) {
			out = append(out, t)
		}
	}
	return out
}

// AgainstHistory drops drafts whose key already exists in the persisted
// history. Beyond the exact key, a draft also counts as existing when a
// historical key shares its date and amount and either description contains
// the other — statements re-exported with slightly longer narrative text
// must not import twice.
func AgainstHistory(drafts []statement.TransactionDraft, existing map[string]struct{}) []statement.TransactionDraft {
	if len(existing) == 0 {
		return drafts
	}
	out := make([]statement.TransactionDraft, 0, len(drafts))
	for _, t := range drafts {
		if _, dup := existing[t.Key()]; dup {
			continue
		}
		if fuzzyExists(t, existing) {
			continue
		}
		out = append(out, t)
	}
	return out
}

func fuzzyExists(t statement.TransactionDraft, existing map[string]struct{}) bool {
	prefix := t.Date.Format("2006-01-02") + "|"
	key := t.Key()
	sep := strings.LastIndex(key, "|")
	mine := strings.ToLower(key[sep+1:])
	amountPart := key[:sep+1]

	for k := range existing {
		if !strings.HasPrefix(k, prefix) || !strings.HasPrefix(k, amountPart) {
			continue
		}
		theirs := strings.ToLower(k[sep+1:])
		if theirs == "" || mine == "" {
			continue
		}
		if strings.Contains(mine, theirs) || strings.Contains(theirs, mine) {
			return true
		}
	}
	return false
}
