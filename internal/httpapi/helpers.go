package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"kars.dev/internal/asset"
	"kars.dev/internal/attest"
	"kars.dev/internal/auth"
	"kars.dev/internal/obs"
	"kars.dev/internal/passkey"
	"kars.dev/internal/settings"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func parseLimit(raw string, def, max int) (int, error) {
	if raw == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("limit must be an integer")
	}
	if val < 1 || val > max {
		return 0, errors.New("limit out of range")
	}
	return val, nil
}

// handleDomainError maps service sentinel errors onto HTTP statuses.
func handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidInput),
		errors.Is(err, attest.ErrInvalidInput),
		errors.Is(err, asset.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrUnauthorized),
		errors.Is(err, auth.ErrInvalidToken):
		writeError(w, r, http.StatusUnauthorized, err.Error())
	case errors.Is(err, auth.ErrNotFound),
		errors.Is(err, attest.ErrNotFound),
		errors.Is(err, asset.ErrNotFound),
		errors.Is(err, passkey.ErrNotFound),
		errors.Is(err, settings.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, auth.ErrConflict),
		errors.Is(err, attest.ErrInvalidTransition),
		errors.Is(err, attest.ErrAlreadyCompleted):
		writeError(w, r, http.StatusConflict, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

// systemSettings resolves the stored system document, falling back to the
// defaults when none was saved yet.
func (a *API) systemSettings(ctx context.Context) settings.SystemSettings {
	if a.settings == nil {
		return settings.DefaultSystem()
	}
	sys, err := a.settings.System(ctx)
	if err != nil {
		if !errors.Is(err, settings.ErrNotFound) {
			obs.LogError("system settings read failed", err, nil)
		}
		return settings.DefaultSystem()
	}
	return *sys
}

// sessionTTL is the access-token lifetime: the admin-set value when present,
// the server config otherwise.
func (a *API) sessionTTL(ctx context.Context) time.Duration {
	if sys := a.systemSettings(ctx); sys.SessionTTLMinutes > 0 {
		return time.Duration(sys.SessionTTLMinutes) * time.Minute
	}
	return a.accessTTL
}
