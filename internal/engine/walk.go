package engine

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ChrisCalzaretta/memoryagent-sub010/internal/pipeline"
	"github.com/ChrisCalzaretta/memoryagent-sub010/internal/workspace"
)

// walk indexes every eligible file under dir with bounded parallelism.
// Per-file failures go into the report; only walk-level failures (an
// unreadable dir, a cancelled context) abort the run.
func (e *Engine) walk(ctx context.Context, ws *workspace.Workspace, st *wsState, recursive bool) (IndexReport, error) {
	var (
		mu     sync.Mutex
		report IndexReport
	)

	concurrency := e.cfg.Concurrency
	if st.overrides.Workers > 0 {
		concurrency = st.overrides.Workers
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	walkErr := filepath.WalkDir(ws.RootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if gctx.Err() != nil {
			return gctx.Err()
		}

		rel, relErr := filepath.Rel(ws.RootPath, path)
		if relErr != nil {
			return fmt.Errorf("path %s outside workspace: %w", path, relErr)
		}

		if d.IsDir() {
			if path == ws.RootPath {
				return nil
			}
			if !recursive || st.matcher.SkipDir(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if d.Name() == OverridesFile || st.matcher.SkipFile(rel) {
			return nil
		}

		g.Go(func() error {
			res, ferr := e.walkOne(gctx, ws, st, path, rel)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case ferr != nil:
				report.FilesFailed++
				report.Errors = append(report.Errors, FileError{Path: rel, Err: ferr})
			case res.Skipped:
				report.FilesSkipped++
			default:
				report.FilesIndexed++
				report.ChunksWritten += res.ChunksWritten
				report.RelationsWritten += res.RelationsWritten
			}
			return nil
		})
		return nil
	})

	if err := g.Wait(); err != nil {
		return report, err
	}
	return report, walkErr
}

// walkOne reads and indexes one file. Oversized files count as failures
// so the report surfaces them; a file deleted mid-walk counts as skipped.
func (e *Engine) walkOne(ctx context.Context, ws *workspace.Workspace, st *wsState, path, rel string) (pipeline.IndexResult, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			e.logger.Debug(ctx, "file vanished during walk", zap.String("file.path", rel))
			return pipeline.IndexResult{Skipped: true}, nil
		}
		return pipeline.IndexResult{}, fmt.Errorf("reading: %w", err)
	}
	return e.indexOne(ctx, ws, st, rel, content)
}
