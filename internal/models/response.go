// Package models provides the JSON shapes returned by the HTTP API
package models

import (
	appErrors "github.com/example/fileuploader/internal/errors"
	"github.com/example/fileuploader/internal/uploader"
)

// APIResponse is a generic API response structure
type APIResponse struct {
	Success bool             `json:"success"`
	Message string           `json:"message,omitempty"`
	Data    any              `json:"data,omitempty"`
	Error   *appErrors.Error `json:"error,omitempty"`
}

// UploadResponse summarises one upload batch.
type UploadResponse struct {
	BatchID string            `json:"batchId"`
	Stored  int               `json:"stored"`
	Failed  int               `json:"failed"`
	Results *uploader.Results `json:"results"`
}

// NewUploadResponse counts the outcomes of results.
func NewUploadResponse(batchID string, results *uploader.Results) UploadResponse {
	return UploadResponse{
		BatchID: batchID,
		Stored:  len(results.Files()),
		Failed:  len(results.Errors()),
		Results: results,
	}
}

// HealthStatus is returned by the health endpoint.
type HealthStatus struct {
	Status   string   `json:"status"`
	Version  string   `json:"version"`
	Policies []string `json:"policies"`
	Mirror   string   `json:"mirror,omitempty"`
	Clients  int      `json:"clients"`
}
