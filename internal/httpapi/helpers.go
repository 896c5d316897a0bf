package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"parley.chat/internal/store"
)

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

// parseListOptions reads the common collection query parameters:
// limit, sort, start, before, disabled.
func parseListOptions(r *http.Request) (store.ListOptions, error) {
	q := r.URL.Query()
	opts := store.ListOptions{
		Sort:   q.Get("sort"),
		Start:  strings.TrimSpace(q.Get("start")),
		Before: strings.TrimSpace(q.Get("before")),
	}
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		val, err := strconv.Atoi(raw)
		if err != nil || val < 1 || val > 100 {
			return opts, errors.New("limit must be an integer between 1 and 100")
		}
		opts.Limit = val
	}
	if raw := strings.TrimSpace(q.Get("disabled")); raw != "" {
		val, err := strconv.ParseBool(raw)
		if err != nil {
			return opts, errors.New("disabled must be a boolean")
		}
		opts.Disabled = &val
	}
	if s := strings.ToLower(strings.TrimSpace(opts.Sort)); s != "" && s != store.SortAsc && s != store.SortDesc {
		return opts, errors.New("sort must be asc or desc")
	}
	return opts.Normalize(20, 100), nil
}

// handleStoreError maps storage sentinels onto HTTP codes.
func handleStoreError(w http.ResponseWriter, r *http.Request, err error, notFoundMsg string) {
	switch {
	case errors.Is(err, store.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, strings.TrimPrefix(err.Error(), "store: invalid input: "))
	case errors.Is(err, store.ErrAlreadyExists):
		writeError(w, r, http.StatusConflict, "resource already exists")
	case errors.Is(err, store.ErrNotFound):
		writeError(w, r, http.StatusNotFound, notFoundMsg)
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
