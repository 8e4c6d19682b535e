package service

import (
	"encoding/json"
	"net/http"
	"slices"
	"subplan-backend/internal/components/telemetry"
	"subplan-backend/internal/plan"
)

const report_http_encode = "http.encode-response"

// Handler serves read-only projections of the given plans.
//
//	GET /plans                   status of every plan
//	GET /plans/{name}?groups=... projection, groups is a comma separated selection
//	GET /plans/{name}/status     status of one plan
type Handler struct {
	plans map[string]*Plan
	names []string
	tel   telemetry.API
	mux   *http.ServeMux
}

func NewHandler(plans []*Plan, tel telemetry.API) *Handler {
	h := &Handler{
		plans: map[string]*Plan{},
		tel:   telemetry.NewScopedAPI("plan_http", tel),
		mux:   http.NewServeMux(),
	}
	for _, p := range plans {
		h.plans[p.Name()] = p
		h.names = append(h.names, p.Name())
	}
	slices.Sort(h.names)

	h.mux.HandleFunc("GET /plans", h.listPlans)
	h.mux.HandleFunc("GET /plans/{name}", h.getPlan)
	h.mux.HandleFunc("GET /plans/{name}/status", h.getStatus)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) listPlans(w http.ResponseWriter, r *http.Request) {
	statuses := make([]Status, 0, len(h.names))
	for _, name := range h.names {
		statuses = append(statuses, h.plans[name].Status())
	}
	h.writeJSON(w, http.StatusOK, statuses)
}

func (h *Handler) getPlan(w http.ResponseWriter, r *http.Request) {
	p, ok := h.plans[r.PathValue("name")]
	if !ok {
		http.Error(w, "unknown plan", http.StatusNotFound)
		return
	}
	selection := plan.ParseSelection(r.URL.Query().Get("groups"))
	h.writeJSON(w, http.StatusOK, p.Project(selection))
}

func (h *Handler) getStatus(w http.ResponseWriter, r *http.Request) {
	p, ok := h.plans[r.PathValue("name")]
	if !ok {
		http.Error(w, "unknown plan", http.StatusNotFound)
		return
	}
	h.writeJSON(w, http.StatusOK, p.Status())
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(value)
	if err != nil {
		h.tel.ReportWarning(report_http_encode, err)
	}
}
