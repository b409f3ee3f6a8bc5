package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sells-group/referral-cli/internal/intake"
	"github.com/sells-group/referral-cli/internal/loader"
	"github.com/sells-group/referral-cli/internal/model"
)

type handlers struct {
	svc *intake.Service
}

type saveResponse struct {
	Success bool                         `json:"success"`
	Config  *model.ReferralConfiguration `json:"config"`
}

type validateResponse struct {
	Valid bool `json:"valid"`
}

func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) readConfiguration(w http.ResponseWriter, r *http.Request) (*model.ReferralConfiguration, bool) {
	data, ok := readBody(w, r)
	if !ok {
		return nil, false
	}
	cfg, err := loader.ParseConfiguration(data, bodyFormat(r))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	return cfg, true
}

func (h *handlers) saveConfiguration(w http.ResponseWriter, r *http.Request) {
	cfg, ok := h.readConfiguration(w, r)
	if !ok {
		return
	}
	saved, err := h.svc.SaveConfiguration(r.Context(), cfg)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, saveResponse{Success: true, Config: saved})
}

func (h *handlers) validateConfiguration(w http.ResponseWriter, r *http.Request) {
	cfg, ok := h.readConfiguration(w, r)
	if !ok {
		return
	}
	if err := h.svc.ValidateConfiguration(cfg); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, validateResponse{Valid: true})
}

func (h *handlers) getConfiguration(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.svc.GetConfiguration(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (h *handlers) listConfigurations(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListConfigurations(r.Context(), listFilter(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if list == nil {
		list = []model.ReferralConfiguration{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handlers) evaluate(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[intake.EvaluateRequest](w, r)
	if !ok {
		return
	}
	d, err := h.svc.Evaluate(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *handlers) evaluateBatch(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[intake.BatchRequest](w, r)
	if !ok {
		return
	}
	if len(req.Referrals) == 0 {
		writeError(w, http.StatusBadRequest, "referrals is required")
		return
	}
	out, err := h.svc.EvaluateBatch(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) listDecisions(w http.ResponseWriter, r *http.Request) {
	recs, err := h.svc.ListDecisions(r.Context(), chi.URLParam(r, "id"), listFilter(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if recs == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, recs)
}
