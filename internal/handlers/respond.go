package handlers

import (
	"encoding/json"
	"net/http"

	appErrors "github.com/example/fileuploader/internal/errors"
	"github.com/example/fileuploader/internal/models"
)

// sendJSONResponse sends a JSON response to the client
func sendJSONResponse(w http.ResponseWriter, response any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// sendJSONError maps err onto its HTTP status and sends it as an APIResponse.
func sendJSONError(w http.ResponseWriter, err error, data any) {
	appErr := appErrors.FromError(err)
	status := appErr.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}
	sendJSONResponse(w, models.APIResponse{Success: false, Data: data, Error: appErr}, status)
}
