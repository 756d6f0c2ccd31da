package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/thiago-r-goveia/recordkit/internal/events"
	"github.com/thiago-r-goveia/recordkit/internal/ingestion"
)

var (
	ingestWatch    bool
	ingestDebounce time.Duration
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [directory]",
	Short: "Scan every matching file of a directory and store the aggregates",
	Long: `Walks the directory, scans every file some format matches and stores the
aggregates. Files already ingested, identified by checksum, are skipped.

With --watch the directory is ingested again whenever its files change.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().BoolVarP(&ingestWatch, "watch", "w", false, "Keep running and ingest again when files change")
	ingestCmd.Flags().DurationVar(&ingestDebounce, "debounce", 500*time.Millisecond, "Quiet period before a watched change triggers a run")
}

func newPublisher() (events.Publisher, error) {
	if cfg.AMQPURL == "" {
		return events.NopPublisher{}, nil
	}
	return events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger)
}

func runIngest(cmd *cobra.Command, args []string) error {
	root := args[0]
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbManager, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer dbManager.Close()

	registry, err := loadRegistry()
	if err != nil {
		return err
	}

	publisher, err := newPublisher()
	if err != nil {
		return err
	}
	defer publisher.Close()

	asyncWorker := ingestion.NewAsyncWorker(dbManager, registry, ingestion.AsyncWorkerConfig{
		DBBatchSize:      cfg.DBBatchSize,
		MaxErrorsPerFile: cfg.MaxErrorsPerFile,
	}, logger)
	service := ingestion.NewIngestionService(
		dbManager,
		ingestion.Setup{ResultsChanSize: cfg.ResultsChanSize},
		asyncWorker,
		ingestion.NewFileProcessor(dbManager, registry, logger),
		publisher,
		*cfg,
		logger,
	)

	run := func() error {
		summary, err := service.Execute(ctx, root)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		return enc.Encode(summary)
	}

	if err := run(); err != nil {
		return err
	}
	if !ingestWatch {
		return nil
	}
	return watch(ctx, root, ingestDebounce, run)
}

// watch calls run once the files under root stop changing for the debounce
// period. It returns when ctx is done.
func watch(ctx context.Context, root string, debounce time.Duration, run func() error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", root, err)
	}
	logger.Info("Watching for changes", zap.String("root", root))

	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	var pending time.Time
	ticker := time.NewTicker(debounce / 4)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Stopped watching", zap.String("root", root))
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := watcher.Add(event.Name); err != nil {
						logger.Warn("Failed to watch new directory", zap.String("dir", event.Name), zap.Error(err))
					}
				}
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				logger.Debug("File changed", zap.String("file", event.Name), zap.String("op", event.Op.String()))
				pending = time.Now()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Watcher error", zap.Error(err))

		case <-ticker.C:
			if pending.IsZero() || time.Since(pending) < debounce {
				continue
			}
			pending = time.Time{}
			if err := run(); err != nil {
				logger.Error("Ingestion run failed", zap.Error(err))
			}
		}
	}
}
