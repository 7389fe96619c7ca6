package gateway

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/Sangrene/flexible-data-relay/errors"
)

const maxBodySize = 4 << 20 // 4 MiB

func readBody(r *http.Request) ([]byte, error) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return nil, errors.WrapInvalid(err, "gateway", "readBody", "read request body")
	}
	return raw, nil
}

func decodeBody(r *http.Request, dst any) error {
	raw, err := readBody(r)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return errors.WrapInvalid(err, "gateway", "decodeBody", "decode request body")
	}
	return nil
}

func isJSONArray(raw []byte) bool {
	for _, b := range raw {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		default:
			return b == '['
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps domain errors onto HTTP statuses. The error message is
// returned verbatim; domain errors carry no internals.
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errors.ErrWrongCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, errors.ErrNoAccess),
		errors.Is(err, errors.ErrNoPermissionToSubscribe):
		return http.StatusForbidden
	case errors.Is(err, errors.ErrTenantNotFound),
		errors.Is(err, errors.ErrEntityNotFound):
		return http.StatusNotFound
	case errors.Is(err, errors.ErrMissingIDOnEntity),
		errors.Is(err, errors.ErrQueueTransportNotConfigured),
		errors.Is(err, errors.ErrInvalidData),
		errors.IsInvalid(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
