package ingestion

import (
	"sync"

	"github.com/thiago-r-goveia/recordkit/internal/models"
)

type ISetup interface {
	build() (models.SetupReturn, error)
}

type Setup struct {
	ResultsChanSize int
}

// Instantiate all channels and data structure we will use in the concurrent ingestion process
// Its useful to have it in a separated struct to be able to leverage DI for testing
func (h Setup) build() (models.SetupReturn, error) {
	size := h.ResultsChanSize
	if size < 1 {
		size = 100
	}

	channels := models.ExtractionChannels{
		Results: make(chan models.ParsedFile, size),
		Errors:  make(chan models.AppError, 100),
		Jobs:    make(chan models.FileProcessingJob, 100),
	}

	var parserWg, dbWg, mainWg sync.WaitGroup
	fileMap := make(models.FileMap)
	fileErrorsMap := models.FileErrorMap{
		Errors: make(map[int][]models.AppError),
		Fatal:  make(map[int]string),
	}
	return models.SetupReturn{
		Channels:      &channels,
		WaitGroups:    &models.ExtractionWaitGroups{ParserWg: &parserWg, DbWg: &dbWg, MainWg: &mainWg},
		FileMap:       &fileMap,
		FileErrorsMap: &fileErrorsMap,
	}, nil
}
