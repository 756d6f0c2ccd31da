package ingestion

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/thiago-r-goveia/recordkit/internal/config"
	"github.com/thiago-r-goveia/recordkit/internal/database"
	"github.com/thiago-r-goveia/recordkit/internal/events"
	"github.com/thiago-r-goveia/recordkit/internal/models"
)

// RunSummary reports how many files of a run ended in each status.
type RunSummary struct {
	RunID    string         `json:"run_id"`
	Files    int            `json:"files"`
	Statuses map[string]int `json:"statuses"`
	Duration time.Duration  `json:"duration"`
}

type IngestionService struct {
	dbManager     database.DBManager
	setupService  ISetup
	asyncWorker   Worker
	fileProcessor Processor
	publisher     events.Publisher
	config        config.Config
	logger        *zap.Logger
}

func NewIngestionService(
	dbManager database.DBManager,
	setupService ISetup,
	worker Worker,
	processor Processor,
	publisher events.Publisher,
	cfg config.Config,
	logger *zap.Logger,
) *IngestionService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IngestionService{
		dbManager:     dbManager,
		setupService:  setupService,
		asyncWorker:   worker,
		fileProcessor: processor,
		publisher:     publisher,
		config:        cfg,
		logger:        logger,
	}
}

// Execute orchestrates the file processing workflow.
func (h *IngestionService) Execute(ctx context.Context, filesPath string) (*RunSummary, error) {
	start := time.Now()
	runID := uuid.NewString()
	log := h.logger.With(zap.String("run_id", runID))

	// Step 0: Setup the extraction environment.
	environmentConfig, err := h.setupService.build()
	if err != nil {
		return nil, err
	}
	channels, waitGroups, fileMap, fileErrorsMap := environmentConfig.GetValues()

	// Step 0.1: Find the files and the format of each one.
	fileInfos, err := h.fileProcessor.ScanForFiles(filesPath)
	if err != nil {
		log.Error("Failed to scan files", zap.Error(err))
		return nil, err
	}

	// Step 0.2: Setup the async worker channels and wait groups VERY IMPORTANT: can cause panic if not done
	h.asyncWorker.WithChannels(channels).WithWaitGroups(waitGroups)

	// Step 1: Preprocess files and send jobs to the parser workers.
	// - Calculates check sum for files and checks if they are already processed
	// - Saves file record to db
	// Sharing MainWg with error worker
	dispatcherWorkerRunner, _, err := h.asyncWorker.SetupJobDispatcherWorker(ctx, runID, fileInfos, *fileMap)
	if err != nil {
		return nil, err
	}
	dispatcherWorkerRunner.Run()

	// Step 2: Setup the error worker, this worker will handle async errors from the extraction process
	errorWorkerRunner, mainWaitGroup, err := h.asyncWorker.SetupErrorWorker()
	if err != nil {
		return nil, err
	}
	errorWorkerRunner.Run(fileErrorsMap)

	// Step 3: Setup parser workers, one file at a time per worker
	parserWorkersRunner, parserWorkerWaitGroup, err := h.asyncWorker.SetupParserWorkers(h.config.NumParserWorkers)
	if err != nil {
		return nil, err
	}
	parserWorkersRunner.Run()

	// Step 4: Configure DB workers.
	dbWorkersRunner, dbWorkerWaitGroup, err := h.asyncWorker.SetupDBWorkers(h.config.NumDBWorkers)
	if err != nil {
		return nil, err
	}

	// Step 5: Start DB workers. Stored files are announced once their batch is committed
	err = dbWorkersRunner.Run(func(entries []models.AggregateEntry, files []models.ParsedFile) error {
		if len(entries) > 0 {
			if err := h.dbManager.InsertAggregateEntries(entries); err != nil {
				return err
			}
		}
		h.publishStored(ctx, runID, files)
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Step 6: Wait for all processing to complete.
	log.Debug("Waiting for parser workers to finish")
	parserWorkerWaitGroup.Wait()

	// Step 6.1: After parsers are done, close the results channel to signal DB workers to finish.
	close(channels.Results)

	// Step 6.2: Wait for DB workers to finish
	log.Debug("Waiting for DB workers to finish")
	dbWorkerWaitGroup.Wait()

	// Step 6.3: Close the errors channel after all workers that can produce errors are done.
	close(channels.Errors)

	// Step 6.4: Wait for the dispatcher and the error worker to finish
	log.Debug("Waiting for file error worker to finish")
	mainWaitGroup.Wait()

	// Step 7: Update each file record with status of operation and errors
	summary := &RunSummary{RunID: runID, Files: len(*fileMap), Statuses: make(map[string]int)}
	for fileID := range *fileMap {
		summary.Statuses[FileStatus(fileErrorsMap, fileID)]++
	}
	if err := h.fileProcessor.UpdateFileStatus(fileErrorsMap, fileMap); err != nil {
		log.Error("Failed to update some file statuses", zap.Error(err))
	}
	summary.Duration = time.Since(start)

	log.Info("Extraction process finished", zap.Int("files", summary.Files), zap.Any("statuses", summary.Statuses), zap.Duration("took", summary.Duration))
	return summary, ctx.Err()
}

func (h *IngestionService) publishStored(ctx context.Context, runID string, files []models.ParsedFile) {
	for _, f := range files {
		event := events.FileIngested{
			RunID:    runID,
			FileID:   f.FileID,
			Path:     f.Path,
			Format:   f.Format,
			Checksum: f.Checksum,
			Lines:    f.Lines,
			Accepted: f.Accepted,
			Rejected: f.Rejected,
			Entries:  len(f.Entries),
			At:       time.Now().UTC(),
		}
		if err := h.publisher.Publish(ctx, event); err != nil {
			h.logger.Warn("Failed to publish file event", zap.Int("file_id", f.FileID), zap.Error(err))
		}
	}
}
