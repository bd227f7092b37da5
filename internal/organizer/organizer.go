// Package organizer coordinates the pipeline: detected files are extracted,
// matched against the rule set, and moved into their destination. Failures
// are isolated per file; a file that cannot be organized stays in the inbox.
package organizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/starford/othala/internal/extract"
	"github.com/starford/othala/internal/fileops"
	"github.com/starford/othala/internal/match"
	"github.com/starford/othala/internal/rules"
	"github.com/starford/othala/internal/sse"
)

// ErrNoMatch reports that no rule cleared the match threshold for a file.
var ErrNoMatch = errors.New("no matching rule")

// Extractor produces bounded plain text from a file. *extract.Extractor
// satisfies this.
type Extractor interface {
	Extract(path string) (*extract.Content, error)
	Supported(ext string) bool
}

// Matcher picks the best rule for extracted content. *match.Engine satisfies
// this.
type Matcher interface {
	FindBestMatch(ctx context.Context, ruleSet []rules.Rule, content *extract.Content) (*match.Result, error)
}

// Mover executes and undoes file moves. *fileops.Engine satisfies this.
type Mover interface {
	Move(ctx context.Context, req fileops.Request) (*fileops.FileOperation, error)
	UndoLast(ctx context.Context) (*fileops.FileOperation, error)
	Undo(ctx context.Context, id string) (*fileops.FileOperation, error)
	History() []fileops.FileOperation
}

// Watcher monitors the inbox directory. *watch.Watcher satisfies this.
type Watcher interface {
	Start(ctx context.Context, dir string) error
	Stop()
	Restart(ctx context.Context, dir string) error
	Active() bool
	Path() string
}

// Publisher broadcasts pipeline events. *sse.Broker satisfies this.
type Publisher interface {
	Publish(event sse.Event)
	PublishState(state interface{})
}

// State is an observable snapshot of the pipeline.
type State struct {
	Active         bool   `json:"active"`
	Processing     bool   `json:"processing"`
	CurrentFile    string `json:"current_file,omitempty"`
	ProcessedCount int    `json:"processed_count"`
}

// Organizer owns the pipeline components and the observable state.
type Organizer struct {
	store     rules.Store
	extractor Extractor
	matcher   Matcher
	mover     Mover
	watcher   Watcher
	broker    Publisher
	logger    *slog.Logger

	mu     sync.Mutex
	state  State
	runCtx context.Context
}

// New assembles an organizer. Call Start before expecting watcher dispatches.
func New(store rules.Store, extractor Extractor, matcher Matcher, mover Mover, watcher Watcher, broker Publisher, logger *slog.Logger) *Organizer {
	return &Organizer{
		store:     store,
		extractor: extractor,
		matcher:   matcher,
		mover:     mover,
		watcher:   watcher,
		broker:    broker,
		logger:    logger,
		runCtx:    context.Background(),
	}
}

// Start ensures the configured directories exist and begins monitoring when
// enabled. A missing rule set is not an error, only logged.
func (o *Organizer) Start(ctx context.Context) error {
	o.mu.Lock()
	o.runCtx = ctx
	o.mu.Unlock()

	settings, err := o.store.GetSettings(ctx)
	if err != nil {
		return fmt.Errorf("organizer: load settings: %w", err)
	}
	if err := ensureDirs(settings); err != nil {
		return err
	}

	active, err := o.store.ActiveRules(ctx)
	if err != nil {
		return fmt.Errorf("organizer: load rules: %w", err)
	}
	if len(active) == 0 {
		o.logger.Warn("organizer: no active rules configured, files will be skipped")
	}

	if settings.MonitoringEnabled && settings.InboxPath != "" {
		if err := o.watcher.Start(ctx, settings.InboxPath); err != nil {
			return fmt.Errorf("organizer: %w", err)
		}
	}
	o.publishState()
	return nil
}

// Stop halts monitoring. In-flight processing finishes on its own.
func (o *Organizer) Stop() {
	o.watcher.Stop()
	o.publishState()
}

// HandleDetected is the watcher dispatch target.
func (o *Organizer) HandleDetected(path string) {
	o.broker.Publish(sse.Event{Type: sse.EventFileDetected, Data: map[string]string{"path": path}})

	o.mu.Lock()
	ctx := o.runCtx
	o.mu.Unlock()

	if _, err := o.ProcessFile(ctx, path, rules.TriggerWatcher); err != nil {
		o.logger.Warn("organizer: file left in inbox",
			slog.String("path", path),
			slog.String("error", err.Error()))
	}
}

// ProcessFile runs the pipeline for one file: extract, match, move. The
// returned operation is nil when the file was skipped with an error.
func (o *Organizer) ProcessFile(ctx context.Context, path, trigger string) (*fileops.FileOperation, error) {
	o.setProcessing(path)
	defer o.clearProcessing()

	ruleSet, err := o.store.ActiveRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("organizer: %s: load rules: %w", path, err)
	}

	content, err := o.extractor.Extract(path)
	if err != nil {
		o.skip(path, "extraction failed: "+err.Error())
		return nil, fmt.Errorf("organizer: %s: %w", path, err)
	}

	result, err := o.matcher.FindBestMatch(ctx, ruleSet, content)
	if err != nil {
		o.skip(path, "matching failed: "+err.Error())
		return nil, fmt.Errorf("organizer: %s: %w", path, err)
	}
	if result == nil {
		o.skip(path, "no rule matched")
		return nil, fmt.Errorf("organizer: %s: %w", path, ErrNoMatch)
	}

	destDir, err := o.destinationFor(ctx, &result.Rule)
	if err != nil {
		o.skip(path, err.Error())
		return nil, err
	}

	op, err := o.mover.Move(ctx, fileops.Request{
		SourcePath:     path,
		DestinationDir: destDir,
		RuleID:         result.Rule.ID,
		RuleName:       result.Rule.Name,
		Trigger:        trigger,
	})
	if err != nil {
		o.skip(path, "move failed: "+err.Error())
		return nil, fmt.Errorf("organizer: %s: %w", path, err)
	}

	o.mu.Lock()
	o.state.ProcessedCount++
	o.mu.Unlock()

	o.logger.Info("organizer: file organized",
		slog.String("path", path),
		slog.String("destination", op.DestinationPath),
		slog.String("rule", result.Rule.Name),
		slog.Float64("score", result.Score))
	o.broker.Publish(sse.Event{Type: sse.EventFileOrganized, Data: map[string]interface{}{
		"path":        path,
		"destination": op.DestinationPath,
		"rule_id":     result.Rule.ID,
		"rule_name":   result.Rule.Name,
		"score":       result.Score,
		"stage":       result.Stage,
	}})
	return op, nil
}

// UndoLast reverses the most recent move.
func (o *Organizer) UndoLast(ctx context.Context) (*fileops.FileOperation, error) {
	op, err := o.mover.UndoLast(ctx)
	if err != nil {
		return nil, err
	}
	o.publishUndone(op)
	return op, nil
}

// Undo reverses a specific move by operation id.
func (o *Organizer) Undo(ctx context.Context, id string) (*fileops.FileOperation, error) {
	op, err := o.mover.Undo(ctx, id)
	if err != nil {
		return nil, err
	}
	o.publishUndone(op)
	return op, nil
}

// Operations returns undoable operations, newest first.
func (o *Organizer) Operations() []fileops.FileOperation {
	return o.mover.History()
}

// WatchedPath returns the directory currently monitored, or "" when idle.
func (o *Organizer) WatchedPath() string {
	return o.watcher.Path()
}

// State returns a snapshot of the pipeline state.
func (o *Organizer) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := o.state
	s.Active = o.watcher.Active()
	return s
}

// ApplySettings persists new settings and reconciles the watcher against
// them: start when monitoring turns on, stop when it turns off, restart when
// the inbox path changed.
func (o *Organizer) ApplySettings(ctx context.Context, s *rules.Settings) error {
	if err := ensureDirs(s); err != nil {
		return err
	}
	if err := o.store.SetSettings(ctx, s); err != nil {
		return fmt.Errorf("organizer: save settings: %w", err)
	}

	o.mu.Lock()
	runCtx := o.runCtx
	o.mu.Unlock()

	switch {
	case !s.MonitoringEnabled || s.InboxPath == "":
		if o.watcher.Active() {
			o.watcher.Stop()
		}
	case !o.watcher.Active():
		if err := o.watcher.Start(runCtx, s.InboxPath); err != nil {
			return fmt.Errorf("organizer: %w", err)
		}
	case o.watcher.Path() != s.InboxPath:
		if err := o.watcher.Restart(runCtx, s.InboxPath); err != nil {
			return fmt.Errorf("organizer: %w", err)
		}
	}
	o.publishState()
	return nil
}

// destinationFor resolves a rule's destination against the archive root.
// Absolute destinations are taken as-is.
func (o *Organizer) destinationFor(ctx context.Context, rule *rules.Rule) (string, error) {
	if filepath.IsAbs(rule.Destination) {
		return rule.Destination, nil
	}
	settings, err := o.store.GetSettings(ctx)
	if err != nil {
		return "", fmt.Errorf("organizer: load settings: %w", err)
	}
	if settings.ArchivePath == "" {
		return "", fmt.Errorf("organizer: rule %s: no archive path configured", rule.Name)
	}
	return filepath.Join(settings.ArchivePath, rule.Destination), nil
}

func (o *Organizer) setProcessing(path string) {
	o.mu.Lock()
	o.state.Processing = true
	o.state.CurrentFile = path
	o.mu.Unlock()
	o.publishState()
}

func (o *Organizer) clearProcessing() {
	o.mu.Lock()
	o.state.Processing = false
	o.state.CurrentFile = ""
	o.mu.Unlock()
	o.publishState()
}

func (o *Organizer) publishState() {
	o.broker.PublishState(o.State())
}

func (o *Organizer) skip(path, reason string) {
	o.logger.Info("organizer: file skipped",
		slog.String("path", path),
		slog.String("reason", reason))
	o.broker.Publish(sse.Event{Type: sse.EventFileSkipped, Data: map[string]string{
		"path":   path,
		"reason": reason,
	}})
}

func (o *Organizer) publishUndone(op *fileops.FileOperation) {
	o.logger.Info("organizer: operation undone",
		slog.String("id", op.ID),
		slog.String("restored", op.DestinationPath))
	o.broker.Publish(sse.Event{Type: sse.EventOperationUndone, Data: op})
}

// ensureDirs creates the configured inbox and archive directories.
func ensureDirs(s *rules.Settings) error {
	for _, dir := range []string{s.InboxPath, s.ArchivePath} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("organizer: create %s: %w", dir, err)
		}
	}
	return nil
}
