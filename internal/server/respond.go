package server

import (
	"errors"
	"io"
	"net/http"

	json "github.com/goccy/go-json"
	"github.com/lazypower/newswire/internal/api"
	"github.com/lazypower/newswire/internal/logging"
	"github.com/lazypower/newswire/internal/validation"
)

// maxBodyBytes caps request bodies. Items carry full article text.
const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, api.Error{Error: msg})
}

// writeValidation reports failed field rules as a 400 with per-field
// messages.
func writeValidation(w http.ResponseWriter, verr *validation.Error) {
	fields := make(map[string]string, len(verr.Fields))
	for _, f := range verr.Fields {
		fields[f.Field] = f.Tag
	}
	writeJSON(w, http.StatusBadRequest, api.Error{Error: verr.Error(), Fields: fields})
}

// writeInternal logs err and hides it from the client.
func (s *Server) writeInternal(w http.ResponseWriter, r *http.Request, err error) {
	logging.Ctx(r.Context(), s.log).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	writeError(w, http.StatusInternalServerError, "internal error")
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	return io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
}

// decode reads a JSON body into v and validates it. It writes the error
// response itself and reports whether the handler should continue.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body failed")
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return false
	}
	if err := validation.Struct(v); err != nil {
		var verr *validation.Error
		if errors.As(err, &verr) {
			writeValidation(w, verr)
			return false
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}
