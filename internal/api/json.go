package api

import (
	"encoding/json"
	"net/http"

	"reliefmap/internal/model"
	"reliefmap/internal/shell"
)

// Problem represents an RFC7807 problem details response body.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

// placesResponse is a cached place listing. Stale data is still served;
// Error carries the last failed refetch.
type placesResponse struct {
	Tab         model.Tab         `json:"tab"`
	Label       string            `json:"label"`
	Total       int               `json:"total"`
	Entries     []shell.ListEntry `json:"entries"`
	HasNextPage *bool             `json:"has_next_page,omitempty"`
	Stale       bool              `json:"stale"`
	Error       string            `json:"error,omitempty"`
}

// feedResponse is one content section. HasData is false when the sheet
// is empty or could not be read as a table.
type feedResponse struct {
	Name    string `json:"name"`
	Data    any    `json:"data"`
	HasData bool   `json:"has_data"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	writeTyped(w, "application/json", status, v)
}

func writeTyped(w http.ResponseWriter, contentType string, status int, v any) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, status int, title, detail, instance string) {
	writeTyped(w, "application/problem+json", status, Problem{
		Type:     "about:blank",
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance,
	})
}
