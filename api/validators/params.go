package validators

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/payout-ledger/pkg/errors"
)

func fieldError(field, msg string, extra ...any) *pkgerrors.Error {
	details := map[string]any{"field": field}
	for i := 0; i+1 < len(extra); i += 2 {
		if k, ok := extra[i].(string); ok {
			details[k] = extra[i+1]
		}
	}
	return pkgerrors.New(pkgerrors.CodeValidation, msg).WithDetails(details)
}

// ParseUUIDParam reads a chi URL parameter that must hold a non-nil uuid.
func ParseUUIDParam(r *http.Request, key string) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, key))
	if raw == "" {
		return uuid.Nil, fieldError(key, key+" is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, fieldError(key, key+" must be a valid uuid")
	}
	return id, nil
}

// ParseQueryInt reads an optional integer query parameter bounded to
// [lo, hi]. A missing value yields def.
func ParseQueryInt(r *http.Request, key string, def, lo, hi int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return def, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fieldError(key, key+" must be an integer")
	}
	if value < lo || value > hi {
		return 0, fieldError(key, key+" is out of range", "min", lo, "max", hi)
	}
	return value, nil
}
