// Package engine is the top-level facade: it owns the walk-parse-index
// path over a workspace tree, answers queries through the planner, and
// connects filesystem events from the scheduler to the indexing pipeline.
//
// The engine is the only component that sees absolute filesystem paths.
// Everything below it (pipeline, stores, planner) works on paths relative
// to the workspace root, so the same repo indexed from two machines
// produces identical entity keys.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/ChrisCalzaretta/memoryagent-sub010/internal/ignore"
	"github.com/ChrisCalzaretta/memoryagent-sub010/internal/logging"
	"github.com/ChrisCalzaretta/memoryagent-sub010/internal/parser"
	"github.com/ChrisCalzaretta/memoryagent-sub010/internal/pipeline"
	"github.com/ChrisCalzaretta/memoryagent-sub010/internal/planner"
	"github.com/ChrisCalzaretta/memoryagent-sub010/internal/scheduler"
	"github.com/ChrisCalzaretta/memoryagent-sub010/internal/workspace"
)

var tracer = otel.Tracer("memoryagent.engine")

// Sentinel errors.
var (
	// ErrMissingDependency indicates Deps lacked a required component.
	ErrMissingDependency = errors.New("missing engine dependency")

	// ErrFileTooLarge is reported for files above the size limit.
	ErrFileTooLarge = errors.New("file exceeds size limit")
)

// Config holds engine settings.
type Config struct {
	// MaxFileSizeKB skips files larger than this during indexing.
	// Default 512.
	MaxFileSizeKB int

	// Concurrency bounds how many files index in parallel during a
	// directory walk. Default 4.
	Concurrency int
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.MaxFileSizeKB <= 0 {
		c.MaxFileSizeKB = 512
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
}

// PipelineFactory builds an indexing service with a per-workspace chunk
// token budget. A budget of zero means the daemon default. The engine
// calls it once per workspace that overrides the budget.
type PipelineFactory func(tokenBudget int) (*pipeline.Service, error)

// Deps are the engine's collaborators. Registry, Parsers, Pipeline,
// Tracker and Planner are required; NewPipeline and Logger are optional.
// The scheduler attaches after construction, see AttachScheduler.
type Deps struct {
	Registry    *workspace.Registry
	Parsers     *parser.Registry
	Pipeline    *pipeline.Service
	Tracker     *pipeline.Tracker
	Planner     *planner.Planner
	NewPipeline PipelineFactory
	Logger      *logging.Logger
}

// wsState is the per-workspace configuration the engine resolves lazily:
// override file, skip rules, and the pipeline variant to index with.
type wsState struct {
	overrides Overrides
	matcher   *ignore.Matcher
	pipeline  *pipeline.Service
}

// Engine ties registration, indexing, watching and querying together.
type Engine struct {
	cfg         Config
	registry    *workspace.Registry
	parsers     *parser.Registry
	pipeline    *pipeline.Service
	tracker     *pipeline.Tracker
	planner     *planner.Planner
	scheduler   *scheduler.Scheduler
	newPipeline PipelineFactory
	logger      *logging.Logger

	mu     sync.Mutex
	states map[string]*wsState

	// fileLocks serializes pipeline invocations per (workspace, file).
	// The scheduler's slots already serialize watcher traffic, but a
	// bulk walk runs outside the slots and can collide with it.
	fileLocks keyedMutex
}

// New builds an Engine. It fails fast on missing required dependencies.
func New(cfg Config, deps Deps) (*Engine, error) {
	cfg.ApplyDefaults()

	switch {
	case deps.Registry == nil:
		return nil, fmt.Errorf("%w: registry", ErrMissingDependency)
	case deps.Parsers == nil:
		return nil, fmt.Errorf("%w: parsers", ErrMissingDependency)
	case deps.Pipeline == nil:
		return nil, fmt.Errorf("%w: pipeline", ErrMissingDependency)
	case deps.Tracker == nil:
		return nil, fmt.Errorf("%w: tracker", ErrMissingDependency)
	case deps.Planner == nil:
		return nil, fmt.Errorf("%w: planner", ErrMissingDependency)
	}
	if deps.Logger == nil {
		deps.Logger = logging.FromContext(context.Background())
	}

	return &Engine{
		cfg:         cfg,
		registry:    deps.Registry,
		parsers:     deps.Parsers,
		pipeline:    deps.Pipeline,
		tracker:     deps.Tracker,
		planner:     deps.Planner,
		newPipeline: deps.NewPipeline,
		logger:      deps.Logger.Named("engine"),
	}, nil
}

// AttachScheduler wires a scheduler built around this engine as its
// Reindexer. The two reference each other, so the scheduler attaches
// after construction instead of arriving through Deps. Must be called
// before the first RegisterWorkspace.
func (e *Engine) AttachScheduler(s *scheduler.Scheduler) {
	e.scheduler = s
}

// state resolves the per-workspace overrides, skip rules and pipeline
// variant, caching the result until the workspace is evicted.
func (e *Engine) state(ctx context.Context, ws *workspace.Workspace) (*wsState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if st, ok := e.states[ws.ID]; ok {
		return st, nil
	}

	ov, err := loadOverrides(ws.RootPath)
	if err != nil {
		return nil, err
	}

	matcher, err := ignore.NewMatcher(ws.RootPath, ov.Ignore)
	if err != nil {
		return nil, fmt.Errorf("building skip rules: %w", err)
	}

	svc := e.pipeline
	if ov.ChunkTokenBudget > 0 {
		if e.newPipeline == nil {
			e.logger.Warn(ctx, "chunk_token_budget override ignored, no pipeline factory",
				zap.String("workspace.id", ws.ID))
		} else {
			svc, err = e.newPipeline(ov.ChunkTokenBudget)
			if err != nil {
				return nil, fmt.Errorf("building pipeline for budget %d: %w", ov.ChunkTokenBudget, err)
			}
		}
	}

	st := &wsState{overrides: ov, matcher: matcher, pipeline: svc}
	if e.states == nil {
		e.states = make(map[string]*wsState)
	}
	e.states[ws.ID] = st
	return st, nil
}

func (e *Engine) dropState(workspaceID string) {
	e.mu.Lock()
	delete(e.states, workspaceID)
	e.mu.Unlock()
}

// RegisterWorkspace provisions a workspace for rootPath, rebuilds the
// change tracker from the graph store, and starts a filesystem watcher
// when a scheduler is configured. Registering the same root twice is
// idempotent.
func (e *Engine) RegisterWorkspace(ctx context.Context, rootPath string) (*workspace.Workspace, error) {
	ctx, span := tracer.Start(ctx, "engine.register_workspace")
	defer span.End()

	ws, err := e.registry.GetOrCreate(ctx, rootPath)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "workspace provisioning failed")
		return nil, err
	}
	ctx = logging.WithWorkspaceID(ctx, ws.ID)
	span.SetAttributes(attribute.String("workspace.id", ws.ID))

	st, err := e.state(ctx, ws)
	if err != nil {
		return nil, err
	}

	if n, err := e.tracker.Rebuild(ctx, ws); err != nil {
		e.logger.Warn(ctx, "tracker rebuild failed, files will reindex on first touch",
			zap.Error(err))
	} else if n > 0 {
		e.logger.Info(ctx, "tracker rebuilt from graph store", zap.Int("files", n))
	}

	if e.scheduler != nil {
		opts := []scheduler.RegisterOption{scheduler.WithSkip(e.skipFunc(ws, st))}
		if d := st.overrides.Debounce.Duration(); d > 0 {
			opts = append(opts, scheduler.WithDebounce(d))
		}
		if st.overrides.Workers > 0 {
			opts = append(opts, scheduler.WithWorkers(st.overrides.Workers))
		}
		if err := e.scheduler.Register(ctx, ws, opts...); err != nil {
			return nil, fmt.Errorf("starting watcher: %w", err)
		}
	}
	return ws, nil
}

// skipFunc adapts a workspace's ignore rules to the scheduler's absolute
// path callback.
func (e *Engine) skipFunc(ws *workspace.Workspace, st *wsState) func(path string, isDir bool) bool {
	return func(path string, isDir bool) bool {
		rel, err := filepath.Rel(ws.RootPath, path)
		if err != nil {
			return false
		}
		if isDir {
			return st.matcher.SkipDir(rel)
		}
		if filepath.Base(path) == OverridesFile {
			return true
		}
		return st.matcher.SkipFile(rel)
	}
}

// UnregisterWorkspace stops watching rootPath. Indexed data stays in
// place; use EvictWorkspace to drop it.
func (e *Engine) UnregisterWorkspace(ctx context.Context, rootPath string) error {
	root, err := workspace.NormalizeRoot(rootPath)
	if err != nil {
		return err
	}
	if e.scheduler == nil {
		return nil
	}
	return e.scheduler.Unregister(ctx, workspace.DeriveID(root))
}

// EvictWorkspace stops the watcher, deletes the workspace's namespaces
// from both stores, and forgets all in-memory state for it.
func (e *Engine) EvictWorkspace(ctx context.Context, rootPath string) error {
	root, err := workspace.NormalizeRoot(rootPath)
	if err != nil {
		return err
	}
	id := workspace.DeriveID(root)

	if e.scheduler != nil {
		if err := e.scheduler.Unregister(ctx, id); err != nil {
			e.logger.Warn(ctx, "stopping watcher during eviction",
				zap.String("workspace.id", id), zap.Error(err))
		}
	}
	if err := e.registry.Evict(ctx, id); err != nil {
		return err
	}
	e.tracker.ForgetWorkspace(id)
	e.planner.Invalidate(id)
	e.dropState(id)
	return nil
}

// Search answers a query against rootPath's index. The workspace is
// created on first use; a workspace with no indexed files answers with
// planner.StatusNotIndexed rather than an error.
func (e *Engine) Search(ctx context.Context, rootPath, query string, limit int, mode planner.Mode) (planner.Response, error) {
	ws, err := e.registry.GetOrCreate(ctx, rootPath)
	if err != nil {
		return planner.Response{}, err
	}
	e.registry.Touch(ws.ID)

	// After a restart the tracker is empty even though the stores are
	// not; rebuild before deciding the workspace has no content.
	if e.tracker.FileCount(ws.ID) == 0 {
		if _, err := e.tracker.Rebuild(ctx, ws); err != nil {
			e.logger.Warn(ctx, "tracker rebuild before search failed",
				zap.String("workspace.id", ws.ID), zap.Error(err))
		}
	}
	return e.planner.Search(ctx, ws, query, limit, mode)
}

// FileError records one file that failed during a directory walk.
type FileError struct {
	Path string
	Err  error
}

func (f FileError) Error() string { return fmt.Sprintf("%s: %v", f.Path, f.Err) }

func (f FileError) Unwrap() error { return f.Err }

// IndexReport summarizes one IndexDirectory run. A run with failures
// still indexes everything else; Errors lists what was skipped.
type IndexReport struct {
	FilesIndexed     int
	FilesSkipped     int
	FilesFailed      int
	ChunksWritten    int
	RelationsWritten int
	Duration         time.Duration
	Errors           []FileError
}

// IndexDirectory walks rootPath's tree and indexes every eligible file.
// Unchanged files are skipped by content hash. Files that fail are
// recorded in the report and do not abort the walk.
func (e *Engine) IndexDirectory(ctx context.Context, rootPath string, recursive bool) (IndexReport, error) {
	ctx, span := tracer.Start(ctx, "engine.index_directory")
	defer span.End()
	start := time.Now()

	ws, err := e.registry.GetOrCreate(ctx, rootPath)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "workspace provisioning failed")
		return IndexReport{}, err
	}
	ctx = logging.WithWorkspaceID(ctx, ws.ID)
	span.SetAttributes(attribute.String("workspace.id", ws.ID))

	st, err := e.state(ctx, ws)
	if err != nil {
		return IndexReport{}, err
	}

	if e.tracker.FileCount(ws.ID) == 0 {
		if _, err := e.tracker.Rebuild(ctx, ws); err != nil {
			e.logger.Warn(ctx, "tracker rebuild failed", zap.Error(err))
		}
	}

	report, err := e.walk(ctx, ws, st, recursive)
	report.Duration = time.Since(start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "walk failed")
		return report, err
	}

	if report.FilesIndexed > 0 {
		e.planner.Invalidate(ws.ID)
	}
	e.registry.Touch(ws.ID)
	e.logger.Info(ctx, "directory indexed",
		zap.Int("indexed", report.FilesIndexed),
		zap.Int("skipped", report.FilesSkipped),
		zap.Int("failed", report.FilesFailed),
		zap.Duration("duration", report.Duration))
	return report, nil
}

// ReindexFile indexes one file in response to a change event. path is
// absolute. A path that no longer exists turns into a removal, so the
// watcher does not have to distinguish truncate-then-delete races.
func (e *Engine) ReindexFile(ctx context.Context, ws *workspace.Workspace, path string) error {
	st, err := e.state(ctx, ws)
	if err != nil {
		return err
	}

	rel, err := filepath.Rel(ws.RootPath, path)
	if err != nil {
		return fmt.Errorf("path %s outside workspace %s: %w", path, ws.ID, err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return e.RemoveFile(ctx, ws, path)
		}
		return fmt.Errorf("reading %s: %w", rel, err)
	}

	res, err := e.indexOne(ctx, ws, st, rel, content)
	if err != nil {
		return err
	}
	if !res.Skipped {
		e.planner.Invalidate(ws.ID)
		e.registry.Touch(ws.ID)
	}
	return nil
}

// RemoveFile drops a deleted file's chunks and graph rows.
func (e *Engine) RemoveFile(ctx context.Context, ws *workspace.Workspace, path string) error {
	rel, err := filepath.Rel(ws.RootPath, path)
	if err != nil {
		return fmt.Errorf("path %s outside workspace %s: %w", path, ws.ID, err)
	}

	st, err := e.state(ctx, ws)
	if err != nil {
		return err
	}
	unlock := e.fileLocks.lock(ws.ID + "\x00" + rel)
	err = st.pipeline.DeleteFile(ctx, ws, rel)
	unlock()
	if err != nil {
		return err
	}
	e.planner.Invalidate(ws.ID)
	e.registry.Touch(ws.ID)
	return nil
}

// indexOne reads nothing from disk: the caller supplies content so walk
// and watcher paths share the same skip and parse logic. Invocations for
// the same file are serialized, so a watcher event landing mid-walk
// cannot interleave two tombstone-then-replace commits.
func (e *Engine) indexOne(ctx context.Context, ws *workspace.Workspace, st *wsState, rel string, content []byte) (pipeline.IndexResult, error) {
	ctx = logging.WithFilePath(logging.WithWorkspaceID(ctx, ws.ID), rel)

	unlock := e.fileLocks.lock(ws.ID + "\x00" + rel)
	defer unlock()

	if limit := e.cfg.MaxFileSizeKB * 1024; len(content) > limit {
		return pipeline.IndexResult{}, fmt.Errorf("%w: %s is %d bytes", ErrFileTooLarge, rel, len(content))
	}
	if ignore.IsBinary(content) {
		e.logger.Debug(ctx, "skipping binary file")
		return pipeline.IndexResult{Skipped: true}, nil
	}

	p := e.parsers.ForFile(rel)
	entities, err := p.Parse(ctx, rel, content)
	if err != nil {
		if errors.Is(err, parser.ErrEmptyContent) {
			return pipeline.IndexResult{Skipped: true}, nil
		}
		return pipeline.IndexResult{}, fmt.Errorf("parsing %s: %w", rel, err)
	}
	return st.pipeline.IndexFile(ctx, ws, rel, content, entities)
}

// Close stops the scheduler's watchers. Stores are owned by the caller
// and stay open.
func (e *Engine) Close(ctx context.Context) error {
	if e.scheduler == nil {
		return nil
	}
	return e.scheduler.Shutdown(ctx)
}
