// Package rules provides SQLite-backed persistence for organization rules,
// the watcher settings, and the move audit log.
package rules

import (
	"context"
	"time"

	"github.com/starford/othala/internal/tokenize"
)

// Rule maps descriptive keywords to a destination directory under the
// archive root. Embeddings holds one cached vector per effective keyword,
// regenerated whenever the descriptive text changes.
type Rule struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Keywords    []string    `json:"keywords"`
	Destination string      `json:"destination"`
	Active      bool        `json:"active"`
	Embeddings  [][]float32 `json:"-"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// EffectiveKeywords returns the keywords matching operates on: the explicit
// keyword list when present, otherwise tokens derived from the description.
func (r *Rule) EffectiveKeywords() []string {
	if len(r.Keywords) > 0 {
		return r.Keywords
	}
	return tokenize.Content(r.Description)
}

// Settings holds the two configured filesystem paths and the monitoring
// toggle, persisted alongside the rules.
type Settings struct {
	InboxPath         string `json:"inbox_path"`
	ArchivePath       string `json:"archive_path"`
	MonitoringEnabled bool   `json:"monitoring_enabled"`
}

// MoveRecord is one row of the append-only move audit log.
type MoveRecord struct {
	ID          int64     `json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	Source      string    `json:"source"`
	Destination string    `json:"destination"`
	RuleID      string    `json:"rule_id,omitempty"`
	Trigger     string    `json:"trigger"`
	Status      string    `json:"status"`
	Note        string    `json:"note,omitempty"`
}

// Move log triggers and statuses.
const (
	TriggerWatcher = "watcher"
	TriggerManual  = "manual"
	TriggerPlugin  = "plugin"
	TriggerUndo    = "undo"

	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Store defines the persistence operations consumed by the organizer and the
// API layer. Consumers should depend on this interface rather than the
// concrete *DB type to facilitate testing with fakes.
type Store interface {
	GetRule(ctx context.Context, id string) (*Rule, error)
	ListRules(ctx context.Context) ([]Rule, error)
	ActiveRules(ctx context.Context) ([]Rule, error)
	SaveRule(ctx context.Context, r *Rule) error
	DeleteRule(ctx context.Context, id string) error

	GetSettings(ctx context.Context) (*Settings, error)
	SetSettings(ctx context.Context, s *Settings) error

	RecordMove(ctx context.Context, rec MoveRecord) error
	RecentMoves(ctx context.Context, limit int) ([]MoveRecord, error)

	Close() error
}

// Verify *DB satisfies Store at compile time.
var _ Store = (*DB)(nil)
