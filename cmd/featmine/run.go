package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/featmine/internal/config"
	"github.com/fyrsmithlabs/featmine/internal/pipeline"
	"github.com/fyrsmithlabs/featmine/internal/run"
)

var (
	runStorePath   string
	runRetryBudget int
	runWorkers     int
	runArchive     bool
	runWatch       bool
)

var runCmd = &cobra.Command{
	Use:   "run [file|dir]...",
	Short: "Extract features from research documents",
	Long: `Run the extraction pipeline over the given documents.

Arguments may be files or directories; directories are read non-recursively
and filtered to .txt and .md files.

Examples:
  # Extract from a directory of papers
  featmine run ./papers

  # Extract from specific files
  featmine run paper1.txt paper2.md

  # Keep watching the directory for new documents
  featmine run --watch ./papers`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runStorePath, "store", "", "CSV file for the row store (default in-memory)")
	runCmd.Flags().IntVar(&runRetryBudget, "retry-budget", -1, "run-level extraction retry budget")
	runCmd.Flags().IntVar(&runWorkers, "workers", 0, "extraction worker pool size")
	runCmd.Flags().BoolVar(&runArchive, "archive", false, "archive finished run contexts")
	runCmd.Flags().BoolVar(&runWatch, "watch", false, "watch directories for new documents after the initial run")
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := bootstrap(ctx, func(cfg *config.Config) {
		if runStorePath != "" {
			cfg.Store.Path = runStorePath
		}
		if runRetryBudget >= 0 {
			cfg.Extraction.RetryBudget = runRetryBudget
		}
		if runWorkers > 0 {
			cfg.Extraction.Workers = runWorkers
		}
		if runArchive {
			cfg.Pipeline.ArchiveRuns = true
		}
	})
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	docs, err := loadDocuments(args)
	if err != nil {
		return err
	}
	if len(docs) == 0 && !runWatch {
		return fmt.Errorf("no documents found in %s", strings.Join(args, ", "))
	}

	if len(docs) > 0 {
		result, err := a.service.Run(ctx, "extract the queued documents", docs)
		if err != nil {
			return err
		}
		printResult(cmd, result)
	}

	if runWatch {
		return watchDirectories(ctx, a, args, docs)
	}
	return nil
}

func printResult(cmd *cobra.Command, result *run.Result) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, result.Response)
	if result.ReportText != "" {
		fmt.Fprintln(out)
		fmt.Fprintln(out, result.ReportText)
	}
	if result.PartialFailure {
		fmt.Fprintln(out, "\nWARNING: run finished with partial failures:")
		for _, ev := range result.Events {
			fmt.Fprintf(out, "  [%s] %s: %s\n", ev.Kind, ev.Node, ev.Message)
		}
	}
	if len(result.Unpersisted) > 0 {
		fmt.Fprintf(out, "\n%d rows could not be persisted: %s\n",
			len(result.Unpersisted), strings.Join(result.Unpersisted, ", "))
	}
	if result.ArchivePath != "" {
		fmt.Fprintf(out, "\nRun archived to %s\n", result.ArchivePath)
	}
}

// loadDocuments reads files and directory entries into pipeline documents,
// ordered by path.
func loadDocuments(paths []string) ([]pipeline.Document, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", p, err)
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, fmt.Errorf("reading directory %s: %w", p, err)
		}
		for _, e := range entries {
			if e.IsDir() || !isDocumentFile(e.Name()) {
				continue
			}
			files = append(files, filepath.Join(p, e.Name()))
		}
	}
	sort.Strings(files)

	docs := make([]pipeline.Document, 0, len(files))
	for _, f := range files {
		doc, err := readDocument(f)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func readDocument(path string) (pipeline.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return pipeline.Document{}, fmt.Errorf("reading %s: %w", path, err)
	}
	base := filepath.Base(path)
	id := strings.TrimSuffix(base, filepath.Ext(base))
	return pipeline.Document{ID: id, Path: path, Text: string(data)}, nil
}

func isDocumentFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt", ".md":
		return true
	}
	return false
}

// watchDirectories blocks until the context is cancelled, running a new
// extraction turn for every document that appears under the watched
// directories. watchSettle gives writers a moment to finish before the
// file is read.
const watchSettle = 500 * time.Millisecond

func watchDirectories(ctx context.Context, a *app, paths []string, seen []pipeline.Document) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("initializing filesystem watcher: %w", err)
	}
	defer watcher.Close()

	watched := 0
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil || !info.IsDir() {
			continue
		}
		if err := watcher.Add(p); err != nil {
			return fmt.Errorf("watching %s: %w", p, err)
		}
		watched++
	}
	if watched == 0 {
		return fmt.Errorf("--watch requires at least one directory argument")
	}

	processed := make(map[string]bool, len(seen))
	for _, d := range seen {
		processed[d.Path] = true
	}

	a.logger.Info(ctx, "watching for new documents", zap.Int("directories", watched))

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !isDocumentFile(event.Name) || processed[event.Name] {
				continue
			}
			time.Sleep(watchSettle)

			doc, err := readDocument(event.Name)
			if err != nil {
				a.logger.Warn(ctx, "skipping unreadable document",
					zap.String("path", event.Name), zap.Error(err))
				continue
			}
			processed[event.Name] = true

			result, err := a.service.Run(ctx, "extract the queued documents", []pipeline.Document{doc})
			if err != nil {
				a.logger.Error(ctx, "watch run failed",
					zap.String("path", event.Name), zap.Error(err))
				continue
			}
			a.logger.Info(ctx, "document processed",
				zap.String("path", event.Name),
				zap.Int("processed", result.Processed),
				zap.Int("failed", result.Failed))
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			a.logger.Warn(ctx, "watcher error", zap.Error(err))
		}
	}
}
