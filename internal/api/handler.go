// Package api provides the HTTP handlers for the provisioning control plane.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"sandboxd/internal/domain"
	"sandboxd/internal/provision"
)

// Handler exposes the orchestrator and bulk runner over REST.
type Handler struct {
	orch   *provision.Orchestrator
	runner *provision.Runner
}

// NewHandler creates a Handler.
func NewHandler(orch *provision.Orchestrator, runner *provision.Runner) *Handler {
	return &Handler{orch: orch, runner: runner}
}

// Routes mounts the v1 API onto a router. Auth middleware is applied by the
// caller.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/modules/{moduleID}", func(r chi.Router) {
		r.Get("/resources", h.listModuleResources)
		r.Post("/resources/{kind}", h.provisionModule)
		r.Delete("/resources/{kind}", h.teardownModule)
		r.Post("/accounts/{accountID}/resources/{kind}", h.recreateOne)
		r.Delete("/accounts/{accountID}/resources/{kind}", h.deleteOne)
	})
	r.Route("/resources/{resourceID}", func(r chi.Router) {
		r.Post("/lock", h.toggleLock)
		r.Get("/lock", h.lockStatus)
		r.Get("/diagnose", h.diagnose)
	})
}

// resourceView is the wire shape of a resource record. Lock metadata is
// reduced to non-secret fields; the original credential never leaves the
// store through the API.
type resourceView struct {
	ID        string `json:"id"`
	ModuleID  string `json:"module_id"`
	AccountID string `json:"account_id"`
	Kind      string `json:"kind"`
	Name      string `json:"name"`
	Server    string `json:"server"`
	Status    string `json:"status"`
	LockedAt  string `json:"locked_at,omitempty"`
	LockedBy  string `json:"locked_by,omitempty"`
	Reason    string `json:"lock_reason,omitempty"`
}

func viewOf(res *domain.Resource) resourceView {
	v := resourceView{
		ID:        res.ID,
		ModuleID:  res.ModuleID,
		AccountID: res.AccountID,
		Kind:      string(res.Kind),
		Name:      res.Name,
		Server:    res.Server,
		Status:    string(res.Status),
	}
	if res.Lock != nil {
		v.LockedAt = res.Lock.LockedAt.Format("2006-01-02T15:04:05Z07:00")
		v.LockedBy = res.Lock.LockedBy
		v.Reason = res.Lock.Reason
	}
	return v
}

func kindParam(r *http.Request) (domain.ResourceKind, error) {
	kind := domain.ResourceKind(chi.URLParam(r, "kind"))
	if !kind.Valid() {
		return "", domain.ErrValidation("unknown resource kind %q", kind)
	}
	return kind, nil
}

// POST /modules/{moduleID}/resources/{kind}
func (h *Handler) provisionModule(w http.ResponseWriter, r *http.Request) {
	kind, err := kindParam(r)
	if err != nil {
		respondError(w, err)
		return
	}
	result, err := h.runner.ProvisionModule(r.Context(), chi.URLParam(r, "moduleID"), kind)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// DELETE /modules/{moduleID}/resources/{kind}
func (h *Handler) teardownModule(w http.ResponseWriter, r *http.Request) {
	kind, err := kindParam(r)
	if err != nil {
		respondError(w, err)
		return
	}
	result, err := h.runner.TeardownModule(r.Context(), chi.URLParam(r, "moduleID"), kind)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// POST /modules/{moduleID}/accounts/{accountID}/resources/{kind}
func (h *Handler) recreateOne(w http.ResponseWriter, r *http.Request) {
	kind, err := kindParam(r)
	if err != nil {
		respondError(w, err)
		return
	}
	res, err := h.orch.Recreate(r.Context(), chi.URLParam(r, "moduleID"), chi.URLParam(r, "accountID"), kind)
	if err != nil {
		respondError(w, err)
		return
	}
	respondData(w, http.StatusOK, "resource recreated", viewOf(res))
}

// DELETE /modules/{moduleID}/accounts/{accountID}/resources/{kind}
func (h *Handler) deleteOne(w http.ResponseWriter, r *http.Request) {
	kind, err := kindParam(r)
	if err != nil {
		respondError(w, err)
		return
	}
	err = h.orch.Delete(r.Context(), chi.URLParam(r, "moduleID"), chi.URLParam(r, "accountID"), kind)
	if err != nil {
		respondError(w, err)
		return
	}
	respondData(w, http.StatusOK, "resource deleted", nil)
}

type lockRequest struct {
	Action string `json:"action"`
	Reason string `json:"reason,omitempty"`
}

// POST /resources/{resourceID}/lock
func (h *Handler) toggleLock(w http.ResponseWriter, r *http.Request) {
	var req lockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, domain.ErrValidation("invalid request body: %v", err))
		return
	}

	resourceID := chi.URLParam(r, "resourceID")
	var (
		res *domain.Resource
		err error
	)
	switch req.Action {
	case "lock":
		res, err = h.orch.Lock(r.Context(), resourceID, req.Reason)
	case "unlock":
		res, err = h.orch.Unlock(r.Context(), resourceID)
	default:
		respondError(w, domain.ErrValidation("action must be \"lock\" or \"unlock\", got %q", req.Action))
		return
	}
	if err != nil {
		respondError(w, err)
		return
	}
	respondData(w, http.StatusOK, "resource "+req.Action+"ed", viewOf(res))
}

// GET /resources/{resourceID}/lock
func (h *Handler) lockStatus(w http.ResponseWriter, r *http.Request) {
	res, err := h.orch.Resources().GetByID(r.Context(), chi.URLParam(r, "resourceID"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondData(w, http.StatusOK, "", map[string]interface{}{
		"resource_id": res.ID,
		"locked":      res.Locked(),
		"status":      string(res.Status),
	})
}

// GET /resources/{resourceID}/diagnose
func (h *Handler) diagnose(w http.ResponseWriter, r *http.Request) {
	d, err := h.orch.Diagnose(r.Context(), chi.URLParam(r, "resourceID"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondData(w, http.StatusOK, "", d)
}

// GET /modules/{moduleID}/resources
func (h *Handler) listModuleResources(w http.ResponseWriter, r *http.Request) {
	resources, err := h.orch.Resources().ListByModule(r.Context(), chi.URLParam(r, "moduleID"))
	if err != nil {
		respondError(w, err)
		return
	}
	views := make([]resourceView, 0, len(resources))
	for i := range resources {
		views = append(views, viewOf(&resources[i]))
	}
	respondData(w, http.StatusOK, "", views)
}
