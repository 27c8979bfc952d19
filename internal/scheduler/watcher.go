package scheduler

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/ChrisCalzaretta/memoryagent-sub010/internal/logging"
	"github.com/ChrisCalzaretta/memoryagent-sub010/internal/workspace"
)

// ErrWatcherFailed indicates the filesystem watcher failed to initialize.
var ErrWatcherFailed = errors.New("failed to initialize filesystem watcher")

// workspaceWatcher owns one workspace's fsnotify watcher, debounce timers,
// file slots and worker pool. All paths it handles are absolute.
type workspaceWatcher struct {
	ws         *workspace.Workspace
	reindexer  Reindexer
	fsw        *fsnotify.Watcher
	pool       *ants.Pool
	debounce   time.Duration
	jobTimeout time.Duration
	skip       func(path string, isDir bool) bool
	logger     *logging.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	slots  map[string]*fileSlot
	timers map[string]*time.Timer
	closed bool

	// lastActivity is the unix-nano time of the most recent event or
	// registration, read by the janitor.
	lastActivity atomic.Int64

	loopDone chan struct{}
	jobs     sync.WaitGroup
}

func newWorkspaceWatcher(ws *workspace.Workspace, reindexer Reindexer, debounce, jobTimeout time.Duration, workers int, skip func(string, bool) bool, logger *logging.Logger) (*workspaceWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Join(ErrWatcherFailed, err)
	}

	pool, err := ants.NewPool(workers)
	if err != nil {
		_ = fsw.Close()
		return nil, errors.Join(ErrWatcherFailed, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &workspaceWatcher{
		ws:         ws,
		reindexer:  reindexer,
		fsw:        fsw,
		pool:       pool,
		debounce:   debounce,
		jobTimeout: jobTimeout,
		skip:       skip,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
		slots:      make(map[string]*fileSlot),
		timers:     make(map[string]*time.Timer),
		loopDone:   make(chan struct{}),
	}
	w.touch()

	if err := w.watchTree(ws.RootPath); err != nil {
		w.cancel()
		_ = fsw.Close()
		pool.Release()
		return nil, err
	}

	go w.loop()
	return w, nil
}

// touch records activity for the janitor's TTL check.
func (w *workspaceWatcher) touch() {
	w.lastActivity.Store(time.Now().UnixNano())
}

// idleSince returns how long the watcher has seen no events.
func (w *workspaceWatcher) idleSince() time.Duration {
	return time.Since(time.Unix(0, w.lastActivity.Load()))
}

// watchTree adds root and every non-skipped subdirectory to the watcher.
// fsnotify does not recurse on its own.
func (w *workspaceWatcher) watchTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Directories vanishing mid-walk are a normal race with the
			// processes being watched.
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && w.skip != nil && w.skip(path, true) {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

// loop drains fsnotify until the watcher closes.
func (w *workspaceWatcher) loop() {
	defer close(w.loopDone)
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn(w.ctx, "watcher error",
				zap.String("workspace.id", w.ws.ID), zap.Error(err))
		case <-w.ctx.Done():
			return
		}
	}
}

// handleEvent routes one fsnotify event through the slot state machine.
func (w *workspaceWatcher) handleEvent(event fsnotify.Event) {
	w.touch()

	// Chmod-only events carry no content change worth a reindex.
	if event.Op == fsnotify.Chmod {
		return
	}

	path := filepath.Clean(event.Name)
	deleted := event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename)

	if !deleted {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			// New directories must be watched before files land in them.
			if event.Op.Has(fsnotify.Create) && (w.skip == nil || !w.skip(path, true)) {
				if err := w.watchTree(path); err != nil {
					w.logger.Warn(w.ctx, "failed to watch new directory",
						zap.String("path", path), zap.Error(err))
				}
			}
			return
		}
	}

	if w.skip != nil && w.skip(path, false) {
		return
	}

	w.noteChange(path, deleted)
}

// noteChange marks a file changed and (re)arms its debounce timer.
func (w *workspaceWatcher) noteChange(path string, deleted bool) {
	if w.slotFor(path).note(deleted) {
		w.armTimer(path)
	}
}

func (w *workspaceWatcher) slotFor(path string) *fileSlot {
	w.mu.Lock()
	defer w.mu.Unlock()

	s, ok := w.slots[path]
	if !ok {
		s = &fileSlot{}
		w.slots[path] = s
	}
	return s
}

// armTimer starts or resets the debounce timer; the file dispatches only
// after a full quiet window.
func (w *workspaceWatcher) armTimer(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	if t, ok := w.timers[path]; ok {
		t.Stop()
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.dispatch(path)
	})
}

// dispatch claims a Pending file and hands it to the worker pool. Submit
// blocks when every worker is busy, which keeps the file InFlight and
// lets further events coalesce into its redo flag instead of growing an
// unbounded queue.
func (w *workspaceWatcher) dispatch(path string) {
	deleted, ok := w.slotFor(path).claim()
	if !ok {
		return
	}

	w.jobs.Add(1)
	if err := w.pool.Submit(func() {
		defer w.jobs.Done()
		w.run(path, deleted)
	}); err != nil {
		// Pool released: shutdown is in progress, drop the job. finish
		// can still report a redo; re-arming is a no-op once the watcher
		// is closed, so this only matters if Submit ever fails earlier.
		w.jobs.Done()
		if w.slotFor(path).finish() {
			w.armTimer(path)
		}
	}
}

// run executes one pipeline invocation for a file and re-arms the slot if
// events arrived mid-run.
func (w *workspaceWatcher) run(path string, deleted bool) {
	ctx, cancel := context.WithTimeout(w.ctx, w.jobTimeout)
	defer cancel()
	ctx = logging.WithWorkspaceID(ctx, w.ws.ID)

	var err error
	if deleted {
		err = w.reindexer.RemoveFile(ctx, w.ws, path)
	} else {
		err = w.reindexer.ReindexFile(ctx, w.ws, path)
	}
	if err != nil {
		// The pipeline left the file dirty; the next event retries it.
		w.logger.Warn(ctx, "reindex failed",
			zap.String("file.path", path),
			zap.Bool("deleted", deleted),
			zap.Error(err))
	}

	if w.slotFor(path).finish() {
		w.armTimer(path)
	}
}

// close stops intake, cancels pending debounce timers and waits for
// in-flight jobs, bounded by ctx.
func (w *workspaceWatcher) close(ctx context.Context) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	for _, t := range w.timers {
		t.Stop()
	}
	w.timers = make(map[string]*time.Timer)
	w.mu.Unlock()

	err := w.fsw.Close()
	<-w.loopDone

	done := make(chan struct{})
	go func() {
		w.jobs.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		err = errors.Join(err, ctx.Err())
	}

	w.cancel()
	w.pool.Release()
	return err
}
