package domain

import (
	"iter"
	"slices"
	"time"
)

// HistoryKind classifies a history record.
type HistoryKind string

const (
	HistoryAdd    HistoryKind = "add"
	HistoryEdit   HistoryKind = "edit"
	HistoryDelete HistoryKind = "delete"
	HistoryToggle HistoryKind = "toggle"
)

// Valid reports whether k is a known kind.
func (k HistoryKind) Valid() bool {
	switch k {
	case HistoryAdd, HistoryEdit, HistoryDelete, HistoryToggle:
		return true
	}
	return false
}

// HistoryRecord is one entry of a protocol's structural audit trail.
type HistoryRecord struct {
	ID           string      `json:"id"`
	Kind         HistoryKind `json:"type"`
	SubjectID    string      `json:"subjectId"`
	SubjectLabel string      `json:"subjectLabel"`
	Timestamp    time.Time   `json:"timestamp"`
	Detail       string      `json:"detail,omitempty"`
}

// History is an append-only log stored oldest first and consumed newest first.
type History struct {
	records []HistoryRecord
}

// Append adds a record to the log.
func (h *History) Append(rec HistoryRecord) {
	h.records = append(h.records, rec)
}

// Len returns the number of records.
func (h History) Len() int { return len(h.records) }

// Latest returns the most recent record.
func (h History) Latest() (HistoryRecord, bool) {
	if len(h.records) == 0 {
		return HistoryRecord{}, false
	}
	return h.records[len(h.records)-1], true
}

// Newest iterates records from the most recent to the oldest.
func (h History) Newest() iter.Seq[HistoryRecord] {
	return func(yield func(HistoryRecord) bool) {
		for i := len(h.records) - 1; i >= 0; i-- {
			if !yield(h.records[i]) {
				return
			}
		}
	}
}

// Recent returns up to limit records, newest first. A limit <= 0 returns all.
func (h History) Recent(limit int) []HistoryRecord {
	n := len(h.records)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]HistoryRecord, 0, n)
	for rec := range h.Newest() {
		if len(out) == n {
			break
		}
		out = append(out, rec)
	}
	return out
}

// All returns every record, oldest first.
func (h History) All() []HistoryRecord {
	return slices.Clone(h.records)
}

func (h History) clone() History {
	return History{records: slices.Clone(h.records)}
}
