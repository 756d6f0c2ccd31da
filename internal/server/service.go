package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/thiago-r-goveia/recordkit/internal/database"
	"github.com/thiago-r-goveia/recordkit/internal/formats"
	"github.com/thiago-r-goveia/recordkit/internal/models"
	"github.com/thiago-r-goveia/recordkit/internal/parser"
)

// AggregateService serves stored aggregates and file records over HTTP.
type AggregateService struct {
	DBManager database.DBManager
	Registry  *formats.Registry
	logger    *zap.Logger
}

func NewAggregateService(dbManager database.DBManager, registry *formats.Registry, logger *zap.Logger) *AggregateService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AggregateService{DBManager: dbManager, Registry: registry, logger: logger}
}

// GetAggregate answers /aggregates/{format}. An optional accumulator query
// parameter keeps only the entries of that accumulator, and an optional merge
// parameter (first, second, sum or list) folds the entries of every file into
// one aggregate per accumulator.
func (h *AggregateService) GetAggregate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	format := strings.TrimPrefix(r.URL.Path, "/aggregates/")
	if format == "" {
		http.Error(w, "Format is required in the URL path /aggregates/{format}", http.StatusBadRequest)
		return
	}
	if _, err := h.Registry.Get(format); err != nil {
		if errors.Is(err, formats.ErrUnknownFormat) {
			http.Error(w, "Unknown format '"+format+"'", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to resolve format", http.StatusInternalServerError)
		return
	}

	entries, err := h.DBManager.GetAggregate(format)
	if err != nil {
		h.logger.Error("Failed to retrieve aggregate", zap.String("format", format), zap.Error(err))
		http.Error(w, "Failed to retrieve aggregate", http.StatusInternalServerError)
		return
	}

	if name := r.URL.Query().Get("accumulator"); name != "" {
		filtered := entries[:0:0]
		for _, e := range entries {
			if e.Accumulator == name {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}
	if strategy := r.URL.Query().Get("merge"); strategy != "" {
		entries, err = mergeFiles(entries, parser.MergeStrategy(strategy))
		if errors.Is(err, parser.ErrUnknownMergeStrategy) {
			http.Error(w, "Unknown merge strategy '"+strategy+"'", http.StatusBadRequest)
			return
		}
		if err != nil {
			http.Error(w, "Failed to merge aggregate", http.StatusInternalServerError)
			return
		}
	}
	if entries == nil {
		entries = []models.AggregateEntry{}
	}

	writeJSON(w, entries)
}

// mergeFiles folds the per file entries of each accumulator in file order.
// Merged entries carry no file id.
func mergeFiles(entries []models.AggregateEntry, strategy parser.MergeStrategy) ([]models.AggregateEntry, error) {
	type group struct {
		format string
		files  []int
		byFile map[int][]parser.Entry
	}
	var order []string
	groups := make(map[string]*group)
	for _, e := range entries {
		g, ok := groups[e.Accumulator]
		if !ok {
			g = &group{format: e.Format, byFile: make(map[int][]parser.Entry)}
			groups[e.Accumulator] = g
			order = append(order, e.Accumulator)
		}
		if _, seen := g.byFile[e.FileID]; !seen {
			g.files = append(g.files, e.FileID)
		}
		g.byFile[e.FileID] = append(g.byFile[e.FileID], parser.Entry{Key: e.Key, Value: e.Value})
	}

	merged := []models.AggregateEntry{}
	for _, name := range order {
		g := groups[name]
		var acc []parser.Entry
		for _, fileID := range g.files {
			var err error
			if acc, err = parser.MergeEntries(acc, g.byFile[fileID], strategy); err != nil {
				return nil, err
			}
		}
		for _, e := range acc {
			merged = append(merged, models.AggregateEntry{Format: g.format, Accumulator: name, Key: e.Key, Value: e.Value})
		}
	}
	return merged, nil
}

func (h *AggregateService) ListFiles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	files, err := h.DBManager.ListFiles()
	if err != nil {
		h.logger.Error("Failed to list files", zap.Error(err))
		http.Error(w, "Failed to list files", http.StatusInternalServerError)
		return
	}
	if files == nil {
		files = []models.FileRecord{}
	}

	writeJSON(w, files)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}
