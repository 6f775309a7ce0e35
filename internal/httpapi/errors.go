package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"example.com/morghi/internal/model"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, errCode, msg string) {
	writeJSON(w, code, model.ErrorPayload{Code: errCode, Message: msg})
}

// statusOf maps a wire code to its HTTP status.
func statusOf(code string) int {
	switch code {
	case model.CodeMalformedPayload:
		return http.StatusBadRequest
	case model.CodeIllegalAction:
		return http.StatusUnprocessableEntity
	case model.CodeProtocolViolation:
		return http.StatusConflict
	case model.CodeNotFound:
		return http.StatusNotFound
	case model.CodeTimeout:
		return http.StatusGatewayTimeout
	case model.CodeUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// writeErr classifies err. Internal errors are logged and not echoed.
func writeErr(w http.ResponseWriter, log *slog.Logger, err error) {
	code := model.CodeOf(err)
	if code == model.CodeInternal {
		log.Error("request failed", "err", err)
		writeError(w, http.StatusInternalServerError, code, "internal error")
		return
	}
	writeError(w, statusOf(code), code, err.Error())
}
