package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/jacentio/twine/mapper"
	"github.com/jacentio/twine/service"
)

type handler struct {
	svc    *service.Service
	logger *slog.Logger
}

func (h *handler) createCustomer(w http.ResponseWriter, r *http.Request) {
	in, ok := decodeBody(w, r)
	if !ok {
		return
	}
	if _, err := h.svc.Create(r.Context(), in); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *handler) getCustomer(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.Customer(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, view)
}

func (h *handler) listCustomers(w http.ResponseWriter, r *http.Request) {
	views, err := h.svc.Customers(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, views)
}

func (h *handler) updateCustomer(w http.ResponseWriter, r *http.Request) {
	in, ok := decodeBody(w, r)
	if !ok {
		return
	}
	if err := h.svc.Update(r.Context(), chi.URLParam(r, "id"), in); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *handler) deleteCustomer(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *handler) getCredential(w http.ResponseWriter, r *http.Request) {
	include, ok := includeCustomer(w, r)
	if !ok {
		return
	}
	view, err := h.svc.Credential(r.Context(), chi.URLParam(r, "id"), include)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, view)
}

func (h *handler) listCredentials(w http.ResponseWriter, r *http.Request) {
	include, ok := includeCustomer(w, r)
	if !ok {
		return
	}
	views, err := h.svc.Credentials(r.Context(), include)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, views)
}

// includeCustomer reads the includeCustomer query flag, false when absent.
func includeCustomer(w http.ResponseWriter, r *http.Request) (bool, bool) {
	raw := r.URL.Query().Get("includeCustomer")
	if raw == "" {
		return false, true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		writeBadRequest(w, r, "includeCustomer must be a boolean")
		return false, false
	}
	return v, true
}

func decodeBody(w http.ResponseWriter, r *http.Request) (mapper.CustomerWithCredential, bool) {
	var in mapper.CustomerWithCredential
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeBadRequest(w, r, "malformed request body: "+err.Error())
		return in, false
	}
	return in, true
}

func (h *handler) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response", "error", err)
	}
}
