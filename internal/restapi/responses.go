package restapi

import (
	"encoding/json"
	"net/http"

	"tempo.transitdata.org/internal/logging"
	"tempo.transitdata.org/internal/models"
)

func setJSONResponseType(w *http.ResponseWriter) {
	(*w).Header().Set("Content-Type", "application/json")
}

func (api *RestAPI) sendJSON(w http.ResponseWriter, r *http.Request, payload any) {
	setJSONResponseType(&w)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		api.serverErrorResponse(w, r, err)
	}
}

func (api *RestAPI) sendError(w http.ResponseWriter, r *http.Request, code int, message string) {
	setJSONResponseType(&w)
	w.WriteHeader(code)

	response := models.ResponseModel{
		Code:        code,
		CurrentTime: models.ResponseCurrentTime(api.Clock),
		Text:        message,
		Version:     2,
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		logging.LogError(api.Logger, "failed to encode error response", err)
	}
}

func (api *RestAPI) sendNotFound(w http.ResponseWriter, r *http.Request, message string) {
	if message == "" {
		message = "resource not found"
	}
	api.sendError(w, r, http.StatusNotFound, message)
}

func (api *RestAPI) serverErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	logging.LogError(api.Logger, "internal server error", err)
	api.sendError(w, r, http.StatusInternalServerError, "internal server error")
}

// unavailableDatasetResponse answers queries needing a schedule whose
// last build failed.
func (api *RestAPI) unavailableDatasetResponse(w http.ResponseWriter, r *http.Request, err error) {
	api.sendError(w, r, http.StatusBadGateway, "dataset currently unavailable: "+err.Error())
}
