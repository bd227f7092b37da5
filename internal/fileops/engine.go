// Package fileops moves files into their organized destinations and can undo
// those moves. Every move runs through a single internal loop, so two
// triggers racing for the same file cannot interleave their filesystem steps.
package fileops

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/starford/othala/internal/rules"
)

const (
	// historyLimit bounds the in-memory undo history.
	historyLimit = 100
	// maxNameAttempts bounds " (n)" conflict suffix probing.
	maxNameAttempts = 1000
	// spaceHeadroom is the minimum slack required beyond the file size.
	spaceHeadroom = 1 << 20
)

// Request describes one move: put source into the destination directory.
type Request struct {
	SourcePath     string
	DestinationDir string
	RuleID         string
	RuleName       string
	Trigger        string
}

// FileOperation is one completed move, kept for undo.
type FileOperation struct {
	ID              string    `json:"id"`
	SourcePath      string    `json:"source_path"`
	DestinationPath string    `json:"destination_path"`
	RuleID          string    `json:"rule_id,omitempty"`
	RuleName        string    `json:"rule_name,omitempty"`
	Trigger         string    `json:"trigger"`
	ExecutedAt      time.Time `json:"executed_at"`
}

// MoveLogger records finished operations to the audit log. *rules.DB
// satisfies this.
type MoveLogger interface {
	RecordMove(ctx context.Context, rec rules.MoveRecord) error
}

type moveReq struct {
	ctx   context.Context
	req   Request
	reply chan moveReply
}

type moveReply struct {
	op  *FileOperation
	err error
}

type undoReq struct {
	ctx   context.Context
	id    string // empty means undo the most recent operation
	reply chan moveReply
}

// Engine executes and undoes moves.
//
// Concurrency model: a single internal loop (goroutine) owns the history and
// performs all filesystem steps. Public methods communicate with the loop
// through channels, so no mutexes are required.
type Engine struct {
	moveLog MoveLogger
	logger  *slog.Logger
	free    func(path string) (uint64, error)

	moveCh    chan moveReq
	undoCh    chan undoReq
	historyCh chan chan []FileOperation
	stopCh    chan struct{}
	stopped   chan struct{}
}

// Option configures an Engine.
type Option func(*Engine)

// WithFreeSpaceFunc replaces the free-space probe. Used by tests.
func WithFreeSpaceFunc(fn func(path string) (uint64, error)) Option {
	return func(e *Engine) { e.free = fn }
}

// New starts the engine's loop. moveLog may be nil to disable audit logging.
func New(moveLog MoveLogger, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		moveLog:   moveLog,
		logger:    logger,
		free:      diskFree,
		moveCh:    make(chan moveReq),
		undoCh:    make(chan undoReq),
		historyCh: make(chan chan []FileOperation),
		stopCh:    make(chan struct{}),
		stopped:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	go e.run()
	return e
}

// Close stops the loop. Pending calls return ErrOperationCancelled.
func (e *Engine) Close() {
	close(e.stopCh)
	<-e.stopped
}

// Move places the file at req.SourcePath into req.DestinationDir, resolving
// name conflicts with a numeric suffix. On success the operation is appended
// to the undo history.
func (e *Engine) Move(ctx context.Context, req Request) (*FileOperation, error) {
	reply := make(chan moveReply, 1)
	select {
	case e.moveCh <- moveReq{ctx: ctx, req: req, reply: reply}:
	case <-ctx.Done():
		return nil, fmt.Errorf("fileops: %s: %w", req.SourcePath, ErrOperationCancelled)
	case <-e.stopCh:
		return nil, fmt.Errorf("fileops: %s: %w", req.SourcePath, ErrOperationCancelled)
	}
	r := <-reply
	return r.op, r.err
}

// UndoLast reverses the most recent operation still in the history.
func (e *Engine) UndoLast(ctx context.Context) (*FileOperation, error) {
	return e.undo(ctx, "")
}

// Undo reverses the operation with the given id.
func (e *Engine) Undo(ctx context.Context, id string) (*FileOperation, error) {
	return e.undo(ctx, id)
}

func (e *Engine) undo(ctx context.Context, id string) (*FileOperation, error) {
	reply := make(chan moveReply, 1)
	select {
	case e.undoCh <- undoReq{ctx: ctx, id: id, reply: reply}:
	case <-ctx.Done():
		return nil, fmt.Errorf("fileops: undo: %w", ErrOperationCancelled)
	case <-e.stopCh:
		return nil, fmt.Errorf("fileops: undo: %w", ErrOperationCancelled)
	}
	r := <-reply
	return r.op, r.err
}

// History returns undoable operations, newest first.
func (e *Engine) History() []FileOperation {
	reply := make(chan []FileOperation, 1)
	select {
	case e.historyCh <- reply:
		return <-reply
	case <-e.stopCh:
		return nil
	}
}

func (e *Engine) run() {
	defer close(e.stopped)

	var history []FileOperation

	for {
		select {
		case <-e.stopCh:
			return

		case m := <-e.moveCh:
			op, err := e.execute(m.ctx, m.req)
			if err == nil {
				history = append(history, *op)
				if len(history) > historyLimit {
					history = history[len(history)-historyLimit:]
				}
			}
			e.record(m.ctx, m.req, op, err)
			m.reply <- moveReply{op: op, err: err}

		case u := <-e.undoCh:
			idx := len(history) - 1
			if u.id != "" {
				idx = -1
				for i := range history {
					if history[i].ID == u.id {
						idx = i
						break
					}
				}
				if idx < 0 {
					u.reply <- moveReply{err: fmt.Errorf("fileops: undo %s: %w", u.id, ErrOperationNotFound)}
					continue
				}
			} else if idx < 0 {
				u.reply <- moveReply{err: fmt.Errorf("fileops: undo: %w", ErrNothingToUndo)}
				continue
			}

			entry := history[idx]
			reverse := Request{
				SourcePath:     entry.DestinationPath,
				DestinationDir: filepath.Dir(entry.SourcePath),
				RuleID:         entry.RuleID,
				RuleName:       entry.RuleName,
				Trigger:        rules.TriggerUndo,
			}
			op, err := e.execute(u.ctx, reverse)
			if err == nil {
				// Only a successful reverse move consumes the entry.
				history = append(history[:idx], history[idx+1:]...)
			}
			e.record(u.ctx, reverse, op, err)
			u.reply <- moveReply{op: op, err: err}

		case reply := <-e.historyCh:
			out := make([]FileOperation, len(history))
			for i := range history {
				out[len(history)-1-i] = history[i]
			}
			reply <- out
		}
	}
}

// execute performs one move. The source is left untouched on any failure.
func (e *Engine) execute(ctx context.Context, req Request) (*FileOperation, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("fileops: %s: %w", req.SourcePath, ErrOperationCancelled)
	}

	info, err := os.Stat(req.SourcePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("fileops: %s: %w", req.SourcePath, ErrSourceNotFound)
		}
		return nil, classify(req.SourcePath, err)
	}

	if err := os.MkdirAll(req.DestinationDir, 0o755); err != nil {
		if os.IsPermission(err) {
			return nil, fmt.Errorf("fileops: %s: %w", req.DestinationDir, ErrPermissionDenied)
		}
		return nil, fmt.Errorf("fileops: %s: %v: %w", req.DestinationDir, err, ErrDestinationNotAccessible)
	}

	target, err := ResolveConflict(req.DestinationDir, filepath.Base(req.SourcePath))
	if err != nil {
		return nil, err
	}

	if err := e.checkSpace(req.DestinationDir, uint64(info.Size())); err != nil {
		return nil, err
	}

	if err := os.Rename(req.SourcePath, target); err != nil {
		if errors.Is(err, unix.EXDEV) {
			err = copyAndRemove(req.SourcePath, target, info)
		}
		if err != nil {
			return nil, classify(req.SourcePath, err)
		}
	}

	op := &FileOperation{
		ID:              uuid.NewString(),
		SourcePath:      req.SourcePath,
		DestinationPath: target,
		RuleID:          req.RuleID,
		RuleName:        req.RuleName,
		Trigger:         req.Trigger,
		ExecutedAt:      time.Now().UTC(),
	}
	e.logger.Info("fileops: moved",
		slog.String("source", req.SourcePath),
		slog.String("destination", target),
		slog.String("trigger", req.Trigger))
	return op, nil
}

// checkSpace requires the destination volume to hold the file plus headroom.
// A failed probe is logged and treated as sufficient.
func (e *Engine) checkSpace(dir string, size uint64) error {
	free, err := e.free(dir)
	if err != nil {
		e.logger.Warn("fileops: free space check failed",
			slog.String("dir", dir),
			slog.String("error", err.Error()))
		return nil
	}
	need := size + spaceHeadroom
	if margin := size / 10; margin > spaceHeadroom {
		need = size + margin
	}
	if free < need {
		return fmt.Errorf("fileops: %s: need %d bytes, %d free: %w", dir, need, free, ErrInsufficientSpace)
	}
	return nil
}

// record writes the outcome to the audit log when one is configured.
func (e *Engine) record(ctx context.Context, req Request, op *FileOperation, opErr error) {
	if e.moveLog == nil {
		return
	}
	rec := rules.MoveRecord{
		Source:  req.SourcePath,
		RuleID:  req.RuleID,
		Trigger: req.Trigger,
		Status:  rules.StatusSuccess,
	}
	if op != nil {
		rec.Destination = op.DestinationPath
	} else {
		rec.Destination = req.DestinationDir
	}
	if opErr != nil {
		rec.Status = rules.StatusFailed
		rec.Note = opErr.Error()
	}
	if err := e.moveLog.RecordMove(ctx, rec); err != nil {
		e.logger.Warn("fileops: move log write failed", slog.String("error", err.Error()))
	}
}

// ResolveConflict returns a path in dir for name, appending " (n)" before the
// extension while the plain name is taken. Also used by the upload endpoint so
// an existing inbox file is never overwritten.
func ResolveConflict(dir, name string) (string, error) {
	candidate := filepath.Join(dir, name)
	if _, err := os.Lstat(candidate); os.IsNotExist(err) {
		return candidate, nil
	}

	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for n := 1; n <= maxNameAttempts; n++ {
		candidate = filepath.Join(dir, fmt.Sprintf("%s (%d)%s", stem, n, ext))
		if _, err := os.Lstat(candidate); os.IsNotExist(err) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("fileops: %s: no conflict-free name after %d attempts: %w", name, maxNameAttempts, ErrDestinationNotAccessible)
}

// copyAndRemove handles renames across filesystem boundaries. A partial copy
// is deleted before the error is returned, and the source is removed only
// after the copy is complete.
func copyAndRemove(source, target string, info os.FileInfo) error {
	in, err := os.Open(source)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(target)
		return err
	}
	// The source is gone after the final Remove; the copy must be durable
	// before that, not merely buffered.
	if err := out.Sync(); err != nil {
		out.Close()
		os.Remove(target)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(target)
		return err
	}
	return os.Remove(source)
}

// classify maps an OS error onto the package sentinels.
func classify(path string, err error) error {
	switch {
	case os.IsPermission(err):
		return fmt.Errorf("fileops: %s: %w", path, ErrPermissionDenied)
	case errors.Is(err, unix.ETXTBSY) || errors.Is(err, unix.EBUSY):
		return fmt.Errorf("fileops: %s: %w", path, ErrFileInUse)
	default:
		return fmt.Errorf("fileops: %s: %v: %w", path, err, ErrUnknown)
	}
}

// diskFree reports available bytes on the volume holding path.
func diskFree(path string) (uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, err
	}
	return uint64(st.Bavail) * uint64(st.Bsize), nil
}
