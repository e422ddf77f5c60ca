// Package spool runs job definition files dropped into a watched
// directory. Processed files are moved aside with their result written
// next to them, so a file is only ever run once.
package spool

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"taskloom/internal/jobfile"
	"taskloom/internal/orchestrator"
	"taskloom/internal/store"
	"taskloom/pkg/models"
)

// Watcher picks up job definition files from a spool directory and runs
// them through the orchestration engine.
type Watcher struct {
	dir      string
	defaults models.JobOptions
	lookup   orchestrator.HandlerLookup
	store    *store.Store
	log      zerolog.Logger
}

// New creates a watcher for the given directory, creating it and its
// processed/ subdirectory if needed. The store may be nil to skip
// persistence.
func New(dir string, defaults models.JobOptions, lookup orchestrator.HandlerLookup, st *store.Store, logger zerolog.Logger) (*Watcher, error) {
	for _, d := range []string{dir, filepath.Join(dir, "processed")} {
		if err := os.MkdirAll(d, 0755); err != nil {
			return nil, err
		}
	}
	return &Watcher{dir: dir, defaults: defaults, lookup: lookup, store: st, log: logger}, nil
}

// Run processes files already in the spool, then watches for new ones
// until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(w.dir); err != nil {
		return err
	}

	// Files dropped before startup.
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			w.process(ctx, filepath.Join(w.dir, entry.Name()))
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Rename) != 0 {
				w.process(ctx, event.Name)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Warn().Err(err).Msg("spool watcher error")
		}
	}
}

// process runs one job definition file and moves it to processed/.
func (w *Watcher) process(ctx context.Context, path string) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
	default:
		return
	}
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		return
	}

	def, err := jobfile.ParseFile(path)
	if err != nil {
		w.log.Error().Err(err).Str("file", path).Msg("invalid job definition")
		w.archive(path)
		return
	}
	job, err := def.Job(w.defaults)
	if err != nil {
		w.log.Error().Err(err).Str("file", path).Msg("invalid job")
		w.archive(path)
		return
	}

	w.log.Info().Str("file", path).Str("job", job.ID).Msg("running spooled job")
	engine := orchestrator.New(job, w.lookup)
	if err := engine.Run(ctx); err != nil {
		w.log.Error().Err(err).Str("job", job.ID).Msg("job terminated")
	}

	if w.store != nil {
		if err := w.store.SaveJob(ctx, job); err != nil {
			w.log.Error().Err(err).Str("job", job.ID).Msg("persist job")
		}
	}

	archived := w.archive(path)
	w.writeResult(archived, job)
	w.log.Info().Str("job", job.ID).Str("status", string(job.Status)).Msg("spooled job finished")
}

// archive moves a spool file into processed/ and returns the new path.
func (w *Watcher) archive(path string) string {
	dest := filepath.Join(w.dir, "processed", filepath.Base(path))
	if err := os.Rename(path, dest); err != nil {
		w.log.Warn().Err(err).Str("file", path).Msg("archive spool file")
		return path
	}
	return dest
}

// writeResult drops the final job record next to the processed file.
func (w *Watcher) writeResult(processedPath string, job *models.Job) {
	data, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		w.log.Warn().Err(err).Str("job", job.ID).Msg("marshal job result")
		return
	}
	resultPath := processedPath + ".result.json"
	if err := os.WriteFile(resultPath, data, 0644); err != nil {
		w.log.Warn().Err(err).Str("job", job.ID).Msg("write job result")
	}
}
