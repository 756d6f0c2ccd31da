package ingestion

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/thiago-r-goveia/recordkit/internal/database"
	"github.com/thiago-r-goveia/recordkit/internal/formats"
	"github.com/thiago-r-goveia/recordkit/internal/models"
	"github.com/thiago-r-goveia/recordkit/internal/parser"
	"github.com/thiago-r-goveia/recordkit/pkg/checksum"
)

type Runner[T any] struct {
	Run T
}

// StoreHandler persists one batch of entries. files are the parsed files
// whose entries are all in the batch.
type StoreHandler func(entries []models.AggregateEntry, files []models.ParsedFile) error

type AsyncWorkerConfig struct {
	DBBatchSize      int
	MaxErrorsPerFile int
}

// Worker defines the interface for asynchronous processing tasks.
type Worker interface {
	WithChannels(channels *models.ExtractionChannels) Worker
	WithWaitGroups(waitGroups *models.ExtractionWaitGroups) Worker
	SetupErrorWorker() (Runner[func(*models.FileErrorMap)], *sync.WaitGroup, error)
	SetupParserWorkers(numberOfWorkers int) (Runner[func()], *sync.WaitGroup, error)
	SetupDBWorkers(numberOfWorkers int) (Runner[func(StoreHandler) error], *sync.WaitGroup, error)
	SetupJobDispatcherWorker(ctx context.Context, runID string, fileInfos []models.FileInfo, fileMap map[int]string) (Runner[func()], *sync.WaitGroup, error)
}

type AsyncWorker struct {
	config     AsyncWorkerConfig
	dbManager  database.DBManager
	registry   *formats.Registry
	logger     *zap.Logger
	channels   *models.ExtractionChannels
	waitGroups *models.ExtractionWaitGroups
}

func NewAsyncWorker(dbManager database.DBManager, registry *formats.Registry, cfg AsyncWorkerConfig, logger *zap.Logger) *AsyncWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DBBatchSize < 1 {
		cfg.DBBatchSize = 1
	}
	if cfg.MaxErrorsPerFile < 1 {
		cfg.MaxErrorsPerFile = 100
	}
	return &AsyncWorker{
		dbManager: dbManager,
		registry:  registry,
		config:    cfg,
		logger:    logger,
	}
}

func (w *AsyncWorker) WithChannels(channels *models.ExtractionChannels) Worker {
	w.channels = channels
	return w
}

func (w *AsyncWorker) WithWaitGroups(waitGroups *models.ExtractionWaitGroups) Worker {
	w.waitGroups = waitGroups
	return w
}

// ParserWorker scans every job it receives. Rejected lines and file level
// failures go to the errors channel, scanned files to the results channel.
func (w *AsyncWorker) ParserWorker() {
	defer w.waitGroups.ParserWg.Done()
	for job := range w.channels.Jobs {
		log := w.logger.With(zap.String("file", job.FilePath), zap.Int("file_id", job.FileID), zap.String("format", job.Format))
		log.Debug("Parser worker started job")

		schema, err := w.registry.Get(job.Format)
		if err != nil {
			w.channels.Errors <- models.AppError{FileID: job.FileID, Kind: models.ErrorKindFailure, Message: "Unknown format", Err: err}
			continue
		}

		out := parser.NewDriver(schema, w.logger).ScanFile(job.FilePath)
		switch out.Kind {
		case parser.ResourceNotFound:
			w.channels.Errors <- models.AppError{FileID: job.FileID, Kind: models.ErrorKindNotFound, Message: "File not found", Err: out.Err}
			continue
		case parser.OtherFailure:
			w.channels.Errors <- models.AppError{FileID: job.FileID, Kind: models.ErrorKindFailure, Message: "Failed to read file", Err: out.Err}
			continue
		}

		for _, r := range out.Rejections {
			w.channels.Errors <- models.AppError{FileID: job.FileID, Line: r.Line, Message: r.Reason, Hash: r.Hash}
		}
		w.channels.Results <- parsedFile(job, out)
		log.Debug("Parser worker finished job", zap.Int("lines", out.Lines), zap.Int("rejected", len(out.Rejections)))
	}
}

func parsedFile(job models.FileProcessingJob, out parser.Outcome) models.ParsedFile {
	pf := models.ParsedFile{
		FileID:   job.FileID,
		Path:     job.FilePath,
		Format:   job.Format,
		Checksum: job.Checksum,
		Lines:    out.Lines,
		Accepted: out.Accepted,
		Rejected: len(out.Rejections),
	}
	for _, acc := range out.Accumulators {
		for _, e := range acc.Entries() {
			pf.Entries = append(pf.Entries, models.AggregateEntry{
				FileID:      job.FileID,
				Format:      job.Format,
				Accumulator: acc.Name(),
				Key:         e.Key,
				Value:       e.Value,
			})
		}
	}
	return pf
}

func (w *AsyncWorker) SetupParserWorkers(numberOfWorkers int) (Runner[func()], *sync.WaitGroup, error) {
	if numberOfWorkers < 1 {
		return Runner[func()]{}, nil, errors.New("at least one parser worker is required")
	}
	return Runner[func()]{
		Run: func() {
			for i := 1; i <= numberOfWorkers; i++ {
				w.waitGroups.ParserWg.Add(1)
				go w.ParserWorker()
			}
		},
	}, w.waitGroups.ParserWg, nil
}

// DbWorker batches the entries of parsed files and hands them to the store
// handler. A file is never split across batches.
func (w *AsyncWorker) DbWorker(workerId int, results <-chan models.ParsedFile, errorsChan chan<- models.AppError, waitGroups *models.ExtractionWaitGroups, store StoreHandler) {
	defer waitGroups.DbWg.Done()
	log := w.logger.With(zap.Int("worker", workerId))
	log.Debug("DB worker started")

	entries := make([]models.AggregateEntry, 0, w.config.DBBatchSize)
	var files []models.ParsedFile

	flush := func() {
		log.Debug("Storing batch", zap.Int("entries", len(entries)), zap.Int("files", len(files)))
		if err := store(entries, files); err != nil {
			for _, f := range files {
				errorsChan <- models.AppError{FileID: f.FileID, Kind: models.ErrorKindStorage, Message: "Failed to store aggregates", Err: err}
			}
		}
		entries = entries[:0]
		files = files[:0]
	}

	for result := range results {
		entries = append(entries, result.Entries...)
		files = append(files, result)
		if len(entries) >= w.config.DBBatchSize {
			flush()
		}
	}

	if len(files) > 0 {
		flush()
	}
	log.Debug("DB worker finished")
}

func (w *AsyncWorker) SetupDBWorkers(numberOfWorkers int) (Runner[func(StoreHandler) error], *sync.WaitGroup, error) {
	if numberOfWorkers < 1 {
		return Runner[func(StoreHandler) error]{}, nil, errors.New("at least one db worker is required")
	}
	return Runner[func(StoreHandler) error]{
		Run: func(store StoreHandler) error {
			if store == nil {
				return errors.New("a store handler is required")
			}
			for i := 1; i <= numberOfWorkers; i++ {
				w.waitGroups.DbWg.Add(1)
				go w.DbWorker(i, w.channels.Results, w.channels.Errors, w.waitGroups, store)
			}
			return nil
		},
	}, w.waitGroups.DbWg, nil
}

// ErrorWorker collects errors per file. Line errors are capped per file,
// file level errors are always kept.
func (w *AsyncWorker) ErrorWorker(fileErrorsMap *models.FileErrorMap) {
	defer w.waitGroups.MainWg.Done()
	capped := make(map[int]bool)
	for appErr := range w.channels.Errors {
		if appErr.Fatal() {
			w.logger.Warn("File failed", zap.Int("file_id", appErr.FileID), zap.String("kind", appErr.Kind), zap.String("error", appErr.Error()))
		} else {
			w.logger.Debug("Caught error", zap.String("error", appErr.Error()))
		}

		fileErrorsMap.Mu.Lock()
		if appErr.Fatal() {
			if _, ok := fileErrorsMap.Fatal[appErr.FileID]; !ok {
				fileErrorsMap.Fatal[appErr.FileID] = appErr.Kind
			}
		}
		if appErr.Fatal() || len(fileErrorsMap.Errors[appErr.FileID]) < w.config.MaxErrorsPerFile {
			fileErrorsMap.Errors[appErr.FileID] = append(fileErrorsMap.Errors[appErr.FileID], appErr)
		} else if !capped[appErr.FileID] {
			capped[appErr.FileID] = true
			w.logger.Warn("File has too many errors, keeping the first ones", zap.Int("file_id", appErr.FileID), zap.Int("max", w.config.MaxErrorsPerFile))
		}
		fileErrorsMap.Mu.Unlock()
	}
}

func (w *AsyncWorker) PreprocessAndDispatchJobs(
	ctx context.Context,
	runID string,
	fileInfos []models.FileInfo,
	fileMap map[int]string,
) {
	defer close(w.channels.Jobs)
	defer w.waitGroups.MainWg.Done()

	for _, fileInfo := range fileInfos {
		if ctx.Err() != nil {
			w.logger.Warn("Dispatch cancelled", zap.Error(ctx.Err()))
			return
		}
		log := w.logger.With(zap.String("file", fileInfo.Path))

		sum, err := checksum.GetFileChecksum(fileInfo.Path)
		if err != nil {
			log.Error("Failed to calculate checksum, skipping file", zap.Error(err))
			continue
		}

		isProcessed, err := w.dbManager.IsFileAlreadyProcessed(sum)
		if err != nil {
			log.Error("Failed to check if file is already processed, skipping file", zap.Error(err))
			continue
		}
		if isProcessed {
			log.Info("File has already been processed, skipping", zap.String("checksum", sum))
			continue
		}

		fileID, err := w.dbManager.InsertFileRecord(fileInfo.Path, fileInfo.Format, runID, time.Now(), database.FILE_STATUS_PROCESSING, sum)
		if err != nil {
			log.Error("Failed to insert file record, skipping file", zap.Error(err))
			continue
		}

		fileMap[fileID] = fileInfo.Path

		log.Debug("Dispatching job", zap.Int("file_id", fileID), zap.String("format", fileInfo.Format))
		job := models.FileProcessingJob{FilePath: fileInfo.Path, FileID: fileID, Format: fileInfo.Format, Checksum: sum}
		select {
		case w.channels.Jobs <- job:
		case <-ctx.Done():
			w.channels.Errors <- models.AppError{FileID: fileID, Kind: models.ErrorKindFailure, Message: "Ingestion cancelled", Err: ctx.Err()}
			return
		}
	}
}

func (w *AsyncWorker) SetupJobDispatcherWorker(ctx context.Context, runID string, fileInfos []models.FileInfo, fileMap map[int]string) (Runner[func()], *sync.WaitGroup, error) {
	return Runner[func()]{
		Run: func() {
			w.waitGroups.MainWg.Add(1)
			go w.PreprocessAndDispatchJobs(ctx, runID, fileInfos, fileMap)
		},
	}, w.waitGroups.MainWg, nil
}

func (w *AsyncWorker) SetupErrorWorker() (Runner[func(*models.FileErrorMap)], *sync.WaitGroup, error) {
	return Runner[func(*models.FileErrorMap)]{
		Run: func(fileErrorsMap *models.FileErrorMap) {
			w.waitGroups.MainWg.Add(1)
			go w.ErrorWorker(fileErrorsMap)
		},
	}, w.waitGroups.MainWg, nil
}
