package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"nemprice.org/internal/dataset"
	"nemprice.org/internal/obs"
)

// Error codes returned in the "code" field of every error body.
const (
	CodeCredentialsMissing = "CREDENTIALS_MISSING"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeAuthHeaderMissing  = "AUTH_HEADER_MISSING"
	CodeInvalidToken       = "INVALID_TOKEN"
	CodeDatasetNotFound    = "DATASET_NOT_FOUND"
	CodeDatasetMalformed   = "DATASET_MALFORMED"
	CodeRegionQueryMissing = "REGION_QUERY_MISSING"
	CodeRegionNotFound     = "REGION_NOT_FOUND"
	CodeInternal           = "INTERNAL_ERROR"
	CodeInvalidRequest     = "INVALID_REQUEST"
	CodePayloadTooLarge    = "PAYLOAD_TOO_LARGE"
	CodeRateLimited        = "RATE_LIMITED"
	CodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	CodeNotFound           = "NOT_FOUND"
)

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Code:      code,
		RequestID: RequestIDFromContext(r.Context()),
	})
}

func methodNotAllowed(allowed ...string) http.Handler {
	allow := strings.Join(allowed, ", ")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Allow", allow)
		writeError(w, r, http.StatusMethodNotAllowed, CodeMethodNotAllowed, "method not allowed")
	})
}

func internalError(w http.ResponseWriter, r *http.Request, where string, err error) {
	obs.LogEvent("error", "internal_error", map[string]any{
		"request_id": RequestIDFromContext(r.Context()),
		"where":      where,
		"error":      err.Error(),
	})
	writeError(w, r, http.StatusInternalServerError, CodeInternal, "internal error")
}

// handleDatasetError maps load failures to responses. Causes other than a
// missing or malformed source are logged and hidden from the client.
func handleDatasetError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, dataset.ErrNotFound):
		obs.LogEvent("warn", "dataset_unavailable", map[string]any{
			"request_id": RequestIDFromContext(r.Context()),
			"error":      err.Error(),
		})
		writeError(w, r, http.StatusServiceUnavailable, CodeDatasetNotFound, "price dataset is not available")
	case errors.Is(err, dataset.ErrMalformed):
		obs.LogEvent("error", "dataset_malformed", map[string]any{
			"request_id": RequestIDFromContext(r.Context()),
			"error":      err.Error(),
		})
		writeError(w, r, http.StatusInternalServerError, CodeDatasetMalformed, "price dataset is malformed")
	default:
		internalError(w, r, "dataset", err)
	}
}

var (
	errBodyTooLarge = errors.New("request body too large")
	errEmptyBody    = errors.New("request body is required")
)

// decodeJSON reads exactly one JSON value. Unknown fields are ignored.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return errBodyTooLarge
		case errors.Is(err, io.EOF):
			return errEmptyBody
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errBodyTooLarge
		}
		return err
	}
	return nil
}

func writeDecodeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, errBodyTooLarge) {
		writeError(w, r, http.StatusRequestEntityTooLarge, CodePayloadTooLarge, err.Error())
		return
	}
	writeError(w, r, http.StatusBadRequest, CodeInvalidRequest, err.Error())
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
