package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/ChrisCalzaretta/memoryagent-sub010/internal/logging"
	"github.com/ChrisCalzaretta/memoryagent-sub010/internal/workspace"
)

// tracer for OpenTelemetry instrumentation.
var tracer = otel.Tracer("memoryagent.scheduler")

// ErrSchedulerClosed is returned by Register after Shutdown.
var ErrSchedulerClosed = errors.New("scheduler is closed")

// Reindexer runs one file's reindex or tombstone. The engine implements
// it: reading and parsing the file is its business, the scheduler only
// decides when and with what concurrency.
type Reindexer interface {
	ReindexFile(ctx context.Context, ws *workspace.Workspace, path string) error
	RemoveFile(ctx context.Context, ws *workspace.Workspace, path string) error
}

// Config holds scheduler configuration.
type Config struct {
	// Debounce is the quiet window after the last change event before a
	// file dispatches. Default 750ms.
	Debounce time.Duration

	// Workers bounds concurrent pipeline runs per workspace. Default 3.
	Workers int

	// WatcherTTL stops watchers for workspaces with no events for this
	// long; negative disables the janitor. Default 15m.
	WatcherTTL time.Duration

	// JobTimeout bounds one pipeline run. Default 2m.
	JobTimeout time.Duration
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Debounce <= 0 {
		c.Debounce = 750 * time.Millisecond
	}
	if c.Workers <= 0 {
		c.Workers = 3
	}
	if c.WatcherTTL == 0 {
		c.WatcherTTL = 15 * time.Minute
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = 2 * time.Minute
	}
}

// RegisterOption overrides scheduler defaults for one workspace.
type RegisterOption func(*registerOptions)

type registerOptions struct {
	debounce time.Duration
	workers  int
	skip     func(path string, isDir bool) bool
}

// WithDebounce overrides the debounce window for one workspace.
func WithDebounce(d time.Duration) RegisterOption {
	return func(o *registerOptions) {
		if d > 0 {
			o.debounce = d
		}
	}
}

// WithWorkers overrides the worker count for one workspace.
func WithWorkers(n int) RegisterOption {
	return func(o *registerOptions) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithSkip installs the walk's skip rules so the watcher ignores the same
// paths the indexer does.
func WithSkip(skip func(path string, isDir bool) bool) RegisterOption {
	return func(o *registerOptions) {
		o.skip = skip
	}
}

// Scheduler owns one watcher per registered workspace and a janitor that
// stops watchers idle past the TTL. Safe for concurrent use.
type Scheduler struct {
	cfg       Config
	reindexer Reindexer
	logger    *logging.Logger

	mu       sync.Mutex
	watchers map[string]*workspaceWatcher
	closed   bool

	janitorStop chan struct{}
	janitorDone chan struct{}
}

// New creates a scheduler and starts its janitor.
func New(cfg Config, reindexer Reindexer, logger *logging.Logger) *Scheduler {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = logging.FromContext(context.Background())
	}

	s := &Scheduler{
		cfg:         cfg,
		reindexer:   reindexer,
		logger:      logger,
		watchers:    make(map[string]*workspaceWatcher),
		janitorStop: make(chan struct{}),
		janitorDone: make(chan struct{}),
	}

	if cfg.WatcherTTL > 0 {
		go s.janitor()
	} else {
		close(s.janitorDone)
	}
	return s
}

// Register starts watching a workspace root. Registering a workspace that
// is already watched refreshes its activity and is otherwise a no-op, so
// watchers stopped by the janitor restart transparently on the next
// request.
func (s *Scheduler) Register(ctx context.Context, ws *workspace.Workspace, opts ...RegisterOption) error {
	if ws == nil {
		return errors.New("workspace is required")
	}

	_, span := tracer.Start(ctx, "scheduler.Register")
	defer span.End()
	span.SetAttributes(attribute.String("workspace.id", ws.ID))

	o := registerOptions{debounce: s.cfg.Debounce, workers: s.cfg.Workers}
	for _, opt := range opts {
		opt(&o)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSchedulerClosed
	}
	if w, ok := s.watchers[ws.ID]; ok {
		w.touch()
		return nil
	}

	w, err := newWorkspaceWatcher(ws, s.reindexer, o.debounce, s.cfg.JobTimeout, o.workers, o.skip, s.logger)
	if err != nil {
		return fmt.Errorf("watching %s: %w", ws.RootPath, err)
	}
	s.watchers[ws.ID] = w

	s.logger.Info(ctx, "workspace watcher started",
		zap.String("workspace.id", ws.ID),
		zap.String("root", ws.RootPath),
		zap.Duration("debounce", o.debounce),
		zap.Int("workers", o.workers))
	return nil
}

// Unregister stops watching a workspace. Unknown IDs are a no-op.
func (s *Scheduler) Unregister(ctx context.Context, workspaceID string) error {
	s.mu.Lock()
	w, ok := s.watchers[workspaceID]
	delete(s.watchers, workspaceID)
	s.mu.Unlock()

	if !ok {
		return nil
	}
	err := w.close(ctx)
	s.logger.Info(ctx, "workspace watcher stopped", zap.String("workspace.id", workspaceID))
	return err
}

// Registered reports whether a workspace currently has a live watcher.
func (s *Scheduler) Registered(workspaceID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.watchers[workspaceID]
	return ok
}

// janitor periodically stops watchers for workspaces idle past the TTL.
func (s *Scheduler) janitor() {
	defer close(s.janitorDone)

	interval := s.cfg.WatcherTTL / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.reapIdle()
		case <-s.janitorStop:
			return
		}
	}
}

// reapIdle closes watchers whose last activity is older than the TTL.
func (s *Scheduler) reapIdle() {
	s.mu.Lock()
	var idle []*workspaceWatcher
	for id, w := range s.watchers {
		if w.idleSince() > s.cfg.WatcherTTL {
			idle = append(idle, w)
			delete(s.watchers, id)
		}
	}
	s.mu.Unlock()

	for _, w := range idle {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := w.close(ctx); err != nil {
			s.logger.Warn(ctx, "idle watcher close failed",
				zap.String("workspace.id", w.ws.ID), zap.Error(err))
		} else {
			s.logger.Info(ctx, "idle watcher stopped",
				zap.String("workspace.id", w.ws.ID),
				zap.Duration("ttl", s.cfg.WatcherTTL))
		}
		cancel()
	}
}

// Shutdown stops the janitor and every watcher: intake closes first, then
// in-flight jobs get until ctx's deadline to finish.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	watchers := make([]*workspaceWatcher, 0, len(s.watchers))
	for _, w := range s.watchers {
		watchers = append(watchers, w)
	}
	s.watchers = make(map[string]*workspaceWatcher)
	s.mu.Unlock()

	if s.cfg.WatcherTTL > 0 {
		close(s.janitorStop)
	}
	<-s.janitorDone

	var errs []error
	for _, w := range watchers {
		if err := w.close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("closing watcher %s: %w", w.ws.ID, err))
		}
	}
	return errors.Join(errs...)
}
