package server

import (
	"net/http"
)

func SetupRoutes(aggregateHandler *AggregateService) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/aggregates/", aggregateHandler.GetAggregate)
	mux.HandleFunc("/files", aggregateHandler.ListFiles)

	return mux
}
