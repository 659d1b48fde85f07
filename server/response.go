package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"mime"
	"net/http"
	"net/url"
	"slices"

	"github.com/turfbook/turf-client/auth"
)

const maxFormBytes = 64 << 10

type messageResponse struct {
	Message  string            `json:"message"`
	Location string            `json:"location,omitempty"`
	Fields   map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// redirectSuccess helper for htmx-aware success redirects
func redirectSuccess(w http.ResponseWriter, r *http.Request, path string) {
	if isHTMXRequest(r) {
		w.Header().Set("HX-Redirect", path)
		w.WriteHeader(http.StatusNoContent) // 204 - no content, just redirect instruction
		return
	}
	http.Redirect(w, r, path, http.StatusSeeOther)
}

// redirectWithError helper for htmx-aware error redirects
func redirectWithError(w http.ResponseWriter, r *http.Request, path, errorMsg string) {
	fullPath := path + "?error=" + url.QueryEscape(errorMsg)

	if isHTMXRequest(r) {
		w.Header().Set("HX-Redirect", fullPath)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, fullPath, http.StatusSeeOther)
}

// isHTMXRequest checks if the request was initiated by HTMX
func isHTMXRequest(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

// isJSONRequest reports whether the form was posted as JSON rather than form-encoded
func isJSONRequest(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "application/json"
}

// formValues reads a flat form from either a JSON object or a form-encoded body
func formValues(w http.ResponseWriter, r *http.Request) (map[string]string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)

	if isJSONRequest(r) {
		var raw map[string]json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("[formValues] decode JSON: %w", err)
		}
		// Every field must be a JSON string or null
		values := make(map[string]string, len(raw))
		var invalid auth.ValidationErrors
		for _, k := range slices.Sorted(maps.Keys(raw)) {
			var v *string
			if err := json.Unmarshal(raw[k], &v); err != nil {
				invalid = append(invalid, &auth.ValidationError{Field: k, Message: "must be a string"})
				continue
			}
			if v != nil {
				values[k] = *v
			}
		}
		if len(invalid) > 0 {
			return nil, fmt.Errorf("[formValues] %w", invalid)
		}
		return values, nil
	}

	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("[formValues] parse form: %w", err)
	}
	values := make(map[string]string, len(r.PostForm))
	for k := range r.PostForm {
		values[k] = r.PostForm.Get(k)
	}
	return values, nil
}
