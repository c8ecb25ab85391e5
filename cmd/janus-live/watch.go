package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wbrown/janus-live/datalog/workspace"
)

var watchCmd = &cobra.Command{
	Use:   "watch FILE...",
	Short: "Re-evaluate programs whenever they change and print what changed",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runWatch,
}

// watcher applies settled file changes to a workspace. Events for a path
// are held until no further event arrived for the debounce interval.
type watcher struct {
	ws       *workspace.Workspace
	fsw      *fsnotify.Watcher
	out      io.Writer
	files    map[string]bool
	pending  map[string]time.Time
	debounce time.Duration
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	w, done, err := openWorkspace(ctx)
	if err != nil {
		return err
	}
	defer done()

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fsw.Close()

	wt := &watcher{
		ws:       w,
		fsw:      fsw,
		out:      cmd.OutOrStdout(),
		files:    make(map[string]bool),
		pending:  make(map[string]time.Time),
		debounce: cfg.GetDebounce(),
	}

	// Editors often replace files by rename, so watch the directories
	dirs := make(map[string]bool)
	for _, arg := range args {
		path, err := filepath.Abs(arg)
		if err != nil {
			return err
		}
		wt.files[path] = true
		dirs[filepath.Dir(path)] = true
		wt.pending[path] = time.Time{}
	}
	for dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}
	wt.flush(ctx)
	return wt.run(ctx)
}

func (wt *watcher) run(ctx context.Context) error {
	ticker := time.NewTicker(max(wt.debounce/2, 10*time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-wt.fsw.Events:
			if !ok {
				return nil
			}
			if !wt.files[event.Name] || event.Op == fsnotify.Chmod {
				continue
			}
			logger.Debug("file event", zap.String("path", event.Name), zap.Stringer("op", event.Op))
			wt.pending[event.Name] = time.Now()

		case err, ok := <-wt.fsw.Errors:
			if !ok {
				return nil
			}
			logger.Error("watch error", zap.Error(err))

		case <-ticker.C:
			wt.flush(ctx)
		}
	}
}

// flush applies every pending path that settled
func (wt *watcher) flush(ctx context.Context) {
	now := time.Now()
	for path, at := range wt.pending {
		if now.Sub(at) < wt.debounce {
			continue
		}
		delete(wt.pending, path)
		if err := wt.apply(ctx, path); err != nil {
			logger.Error("update failed", zap.String("path", path), zap.Error(err))
		}
	}
}

func (wt *watcher) apply(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	var report *workspace.Report
	switch {
	case errors.Is(err, fs.ErrNotExist):
		report, err = wt.ws.Remove(ctx, path)
	case err != nil:
		return err
	default:
		report, err = wt.ws.Update(ctx, path, string(data))
	}
	if err != nil {
		return err
	}
	if report.Added+report.Removed == 0 {
		return nil
	}

	r := renderer()
	fmt.Fprintf(wt.out, "=== %s: %d removed, %d added\n", path, report.Removed, report.Added)
	for _, c := range report.Delta {
		fmt.Fprintln(wt.out, r.RenderChange(c.Resource, c.Tuple, c.Diff))
	}
	for _, o := range report.Outcomes {
		if o.Diagnostic == nil || o.Diff < 0 {
			continue
		}
		fmt.Fprintln(wt.out, r.RenderDiagnostic(path, string(data), o.Diagnostic))
	}
	return nil
}
