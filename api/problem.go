package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jacentio/twine/store"
)

const problemContentType = "application/problem+json"

// Problem is an RFC 7807 problem detail.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

func newProblem(r *http.Request, status int, detail string) Problem {
	return Problem{
		Type:     "about:blank",
		Title:    http.StatusText(status),
		Status:   status,
		Detail:   detail,
		Instance: r.URL.Path,
	}
}

func writeProblem(w http.ResponseWriter, p Problem) {
	w.Header().Set("Content-Type", problemContentType)
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// writeError classifies err into a problem detail. Only server errors are logged.
func (h *handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeProblem(w, newProblem(r, http.StatusNotFound, "Entity not found!"))
	case errors.Is(err, store.ErrConcurrentModification), errors.Is(err, store.ErrAlreadyExists):
		writeProblem(w, newProblem(r, http.StatusConflict, err.Error()))
	default:
		h.logger.Error("request failed", "uri", r.RequestURI, "error", err)
		writeProblem(w, newProblem(r, http.StatusInternalServerError, ""))
	}
}

func writeBadRequest(w http.ResponseWriter, r *http.Request, detail string) {
	writeProblem(w, newProblem(r, http.StatusBadRequest, detail))
}
