package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/BTreeMap/ArgPipe/internal/models"
)

// MaxRequestBytes caps JSON request bodies.
const MaxRequestBytes = 1 << 20

// fallbackError is sent when a response cannot be marshaled.
const fallbackError = `{"status":"error","message":"Internal server error"}`

// writeJSONResponse writes response as JSON with the given status code.
func writeJSONResponse(w http.ResponseWriter, statusCode int, response interface{}) {
	jsonData, err := json.Marshal(response)
	if err != nil {
		slog.Error("Server.writeJSONResponse: failed to marshal JSON response", "error", err)
		jsonData = []byte(fallbackError)
		statusCode = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if _, writeErr := w.Write(jsonData); writeErr != nil {
		slog.Error("Server.writeJSONResponse: failed to write JSON response", "error", writeErr)
	}
}

// allowMethod rejects requests whose method is not method.
func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
	return false
}

// decodeJSON reads a size-limited JSON body into v, answering 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, handler string, v any) bool {
	if r.Body == nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Request body required"))
		return false
	}
	defer r.Body.Close()
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxRequestBytes)).Decode(v); err != nil {
		slog.Warn("Server."+handler+": failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return false
	}
	return true
}
