package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"tableside/internal/domain"

	"github.com/rs/zerolog"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error      string         `json:"error"`
	StatusCode int            `json:"statusCode"`
	Data       map[string]any `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError renders err as the error envelope. Unknown failures are logged
// in full and reported with a generic message.
func writeError(w http.ResponseWriter, logger *zerolog.Logger, err error) {
	kind := domain.KindOf(err)
	status := domain.HTTPStatus(kind)

	resp := errorResponse{StatusCode: status}
	var de *domain.Error
	if kind != domain.KindUnknown && errors.As(err, &de) {
		resp.Error = de.Message
		resp.Data = de.Data
	} else {
		logger.Error().Err(err).Msg("request failed")
		resp.Error = "internal server error"
	}
	writeJSON(w, status, resp)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		return domain.Validation("invalid JSON body")
	}
	return nil
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.Validation("invalid %s", name)
	}
	return id, nil
}
