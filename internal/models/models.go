package models

import (
	"fmt"
	"sync"
	"time"
)

// Error kinds carried by AppError. Line rejections have no kind.
const (
	ErrorKindNotFound = "not_found"
	ErrorKindFailure  = "other_failure"
	ErrorKindStorage  = "storage"
)

type AppError struct {
	FileID  int    `json:"file_id"`
	Line    int    `json:"line,omitempty"`
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message"`
	Err     error  `json:"-"`
	Hash    string `json:"hash,omitempty"`
}

func (e *AppError) Error() string {
	prefix := fmt.Sprintf("FileID %d", e.FileID)
	if e.Line > 0 {
		prefix = fmt.Sprintf("FileID %d line %d", e.FileID, e.Line)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s - %v", prefix, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

// Fatal reports whether the error failed the whole file rather than a line.
func (e *AppError) Fatal() bool {
	return e.Kind != ""
}

type FileProcessingJob struct {
	FilePath string
	FileID   int
	Format   string
	Checksum string
}

type FileInfo struct {
	Path   string
	Format string
}

// AggregateEntry is one key of one accumulator of one ingested file.
type AggregateEntry struct {
	FileID      int    `json:"file_id"`
	Format      string `json:"format"`
	Accumulator string `json:"accumulator"`
	Key         string `json:"key"`
	Value       any    `json:"value"`
}

// ParsedFile is the result of scanning one file, on its way to storage.
type ParsedFile struct {
	FileID   int
	Path     string
	Format   string
	Checksum string
	Lines    int
	Accepted int
	Rejected int
	Entries  []AggregateEntry
}

type FileRecord struct {
	ID          int       `json:"id"`
	FileName    string    `json:"file_name"`
	Format      string    `json:"format"`
	RunID       string    `json:"run_id"`
	ProcessedAt time.Time `json:"processed_at"`
	Status      string    `json:"status"`
	Checksum    string    `json:"checksum"`
}

type FileErrorMap struct {
	Errors map[int][]AppError
	// Fatal keeps the kind of the first file level error, whatever the cap.
	Fatal map[int]string
	Mu    sync.Mutex
}

type ExtractionChannels struct {
	Results chan ParsedFile
	Errors  chan AppError
	Jobs    chan FileProcessingJob
}

type ExtractionWaitGroups struct {
	ParserWg *sync.WaitGroup
	DbWg     *sync.WaitGroup
	MainWg   *sync.WaitGroup
}

type FileMap = map[int]string

type SetupReturn struct {
	Channels      *ExtractionChannels
	WaitGroups    *ExtractionWaitGroups
	FileMap       *FileMap
	FileErrorsMap *FileErrorMap
}

func (s *SetupReturn) GetValues() (*ExtractionChannels, *ExtractionWaitGroups, *FileMap, *FileErrorMap) {
	return s.Channels, s.WaitGroups, s.FileMap, s.FileErrorsMap
}
