package rules

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/starford/othala/internal/checksum"
)

// ErrNotFound is returned when no rule with the requested id exists.
var ErrNotFound = errors.New("rule not found")

// GetRule returns a single rule by id.
func (db *DB) GetRule(ctx context.Context, id string) (*Rule, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT id, name, description, keywords, destination, active, embeddings, created_at, updated_at
		FROM org_rules WHERE id = ?`, id)
	r, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("rules: %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("rules: get: %w", err)
	}
	return r, nil
}

// ListRules returns every rule ordered by creation time.
func (db *DB) ListRules(ctx context.Context) ([]Rule, error) {
	return db.queryRules(ctx, `
		SELECT id, name, description, keywords, destination, active, embeddings, created_at, updated_at
		FROM org_rules ORDER BY created_at, id`)
}

// ActiveRules returns rules with active = true, ordered by creation time.
// Matching only ever considers this set.
func (db *DB) ActiveRules(ctx context.Context) ([]Rule, error) {
	return db.queryRules(ctx, `
		SELECT id, name, description, keywords, destination, active, embeddings, created_at, updated_at
		FROM org_rules WHERE active = 1 ORDER BY created_at, id`)
}

// SaveRule upserts a rule. Keyword embeddings are regenerated through the
// embedder only when the descriptive text changed since the stored version,
// detected by comparing a digest of the effective keywords.
func (db *DB) SaveRule(ctx context.Context, r *Rule) error {
	now := time.Now().UTC()
	if r.ID == "" {
		r.ID = uuid.NewString()
		r.CreatedAt = now
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now

	hash := keywordsHash(r.EffectiveKeywords())

	var storedHash, storedEmb string
	err := db.conn.QueryRowContext(ctx,
		`SELECT keywords_hash, embeddings FROM org_rules WHERE id = ?`, r.ID).
		Scan(&storedHash, &storedEmb)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// new rule
	case err != nil:
		return fmt.Errorf("rules: read stored embeddings: %w", err)
	}

	if storedHash == hash && storedEmb != "" && storedEmb != "[]" {
		if jsonErr := json.Unmarshal([]byte(storedEmb), &r.Embeddings); jsonErr != nil {
			return fmt.Errorf("rules: decode stored embeddings: %w", jsonErr)
		}
	} else if regenErr := db.regenerate(ctx, r); regenErr != nil {
		return regenErr
	}

	keywordsJSON, _ := json.Marshal(r.Keywords)
	embJSON, _ := json.Marshal(r.Embeddings)

	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO org_rules (id, name, description, keywords, destination, active, embeddings, keywords_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name          = excluded.name,
			description   = excluded.description,
			keywords      = excluded.keywords,
			destination   = excluded.destination,
			active        = excluded.active,
			embeddings    = excluded.embeddings,
			keywords_hash = excluded.keywords_hash,
			updated_at    = excluded.updated_at
	`, r.ID, r.Name, r.Description, string(keywordsJSON), r.Destination, boolToInt(r.Active),
		string(embJSON), hash, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("rules: upsert: %w", err)
	}
	return nil
}

// DeleteRule removes a rule by id.
func (db *DB) DeleteRule(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM org_rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("rules: delete: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("rules: %s: %w", id, ErrNotFound)
	}
	return nil
}

// regenerate embeds every effective keyword of r and stores the vectors on
// the rule. An empty keyword set leaves the cache empty; such a rule can
// never match and matching logs it as a configuration problem.
func (db *DB) regenerate(ctx context.Context, r *Rule) error {
	keywords := r.EffectiveKeywords()
	r.Embeddings = make([][]float32, 0, len(keywords))
	for _, kw := range keywords {
		v, err := db.embedder.Embed(ctx, kw)
		if err != nil {
			return fmt.Errorf("rules: embed keyword %q: %w", kw, err)
		}
		r.Embeddings = append(r.Embeddings, v)
	}
	return nil
}

// --- settings ---

const (
	keyInboxPath         = "inbox_path"
	keyArchivePath       = "archive_path"
	keyMonitoringEnabled = "monitoring_enabled"
)

// GetSettings reads the persisted watcher settings. Missing keys come back
// as zero values so first-run works without seeding.
func (db *DB) GetSettings(ctx context.Context) (*Settings, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return nil, fmt.Errorf("rules: get settings: %w", err)
	}
	defer rows.Close()

	s := &Settings{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		switch k {
		case keyInboxPath:
			s.InboxPath = v
		case keyArchivePath:
			s.ArchivePath = v
		case keyMonitoringEnabled:
			s.MonitoringEnabled, _ = strconv.ParseBool(v)
		}
	}
	return s, rows.Err()
}

// SetSettings persists the watcher settings.
func (db *DB) SetSettings(ctx context.Context, s *Settings) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("rules: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	pairs := map[string]string{
		keyInboxPath:         s.InboxPath,
		keyArchivePath:       s.ArchivePath,
		keyMonitoringEnabled: strconv.FormatBool(s.MonitoringEnabled),
	}
	for k, v := range pairs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO settings (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value`, k, v); err != nil {
			return fmt.Errorf("rules: set %s: %w", k, err)
		}
	}
	return tx.Commit()
}

// --- move log ---

// RecordMove appends one row to the audit log.
func (db *DB) RecordMove(ctx context.Context, rec MoveRecord) error {
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO move_log (created_at, source, destination, rule_id, trigger_via, status, note)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		created, rec.Source, rec.Destination, rec.RuleID, rec.Trigger, rec.Status, rec.Note)
	if err != nil {
		return fmt.Errorf("rules: record move: %w", err)
	}
	return nil
}

// RecentMoves returns the newest limit rows of the audit log.
func (db *DB) RecentMoves(ctx context.Context, limit int) ([]MoveRecord, error) {
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, created_at, source, destination, rule_id, trigger_via, status, note
		FROM move_log ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("rules: recent moves: %w", err)
	}
	defer rows.Close()

	var out []MoveRecord
	for rows.Next() {
		var rec MoveRecord
		if err := rows.Scan(&rec.ID, &rec.CreatedAt, &rec.Source, &rec.Destination,
			&rec.RuleID, &rec.Trigger, &rec.Status, &rec.Note); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// --- helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*Rule, error) {
	var r Rule
	var keywordsJSON, embJSON string
	var active int
	if err := row.Scan(&r.ID, &r.Name, &r.Description, &keywordsJSON, &r.Destination,
		&active, &embJSON, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Active = active != 0
	if err := json.Unmarshal([]byte(keywordsJSON), &r.Keywords); err != nil {
		return nil, fmt.Errorf("decode keywords: %w", err)
	}
	if err := json.Unmarshal([]byte(embJSON), &r.Embeddings); err != nil {
		return nil, fmt.Errorf("decode embeddings: %w", err)
	}
	return &r, nil
}

func (db *DB) queryRules(ctx context.Context, query string) ([]Rule, error) {
	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("rules: list: %w", err)
	}
	defer rows.Close()

	var out []Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("rules: scan: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// keywordsHash digests the normalized effective keywords; SaveRule compares
// it against the stored digest to decide whether embeddings must be redone.
func keywordsHash(keywords []string) string {
	normalized := make([]string, len(keywords))
	for i, kw := range keywords {
		normalized[i] = strings.ToLower(strings.TrimSpace(kw))
	}
	return checksum.Sum([]byte(strings.Join(normalized, "\x00")))
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
