package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"ragspace/internal/apperr"
	"ragspace/internal/model"
	"ragspace/internal/service"
)

type workspaceHandler struct {
	workspaces *service.WorkspaceService
	logger     *zap.Logger
}

type workspaceResponse struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Visibility  string     `json:"visibility"`
	OwnerUserID string     `json:"owner_user_id"`
	ArchivedAt  *time.Time `json:"archived_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func toWorkspaceResponse(ws *model.Workspace) workspaceResponse {
	return workspaceResponse{
		ID:          ws.ID,
		Name:        ws.Name,
		Description: ws.Description,
		Visibility:  string(ws.Visibility),
		OwnerUserID: ws.OwnerUserID,
		ArchivedAt:  ws.ArchivedAt,
		CreatedAt:   ws.CreatedAt,
		UpdatedAt:   ws.UpdatedAt,
	}
}

type workspaceRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Visibility  string `json:"visibility"`
}

func (h *workspaceHandler) create(w http.ResponseWriter, r *http.Request) {
	var req workspaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, apperr.Wrap(apperr.KindValidation, "invalid request body", err))
		return
	}
	ws, err := h.workspaces.Create(r.Context(), ActorFromRequest(r), req.Name, req.Description, model.Visibility(req.Visibility))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toWorkspaceResponse(ws))
}

func (h *workspaceHandler) list(w http.ResponseWriter, r *http.Request) {
	list, err := h.workspaces.List(r.Context(), ActorFromRequest(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	out := make([]workspaceResponse, 0, len(list))
	for i := range list {
		out = append(out, toWorkspaceResponse(&list[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *workspaceHandler) get(w http.ResponseWriter, r *http.Request) {
	ws, err := h.workspaces.Get(r.Context(), ActorFromRequest(r), chi.URLParam(r, "workspaceID"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toWorkspaceResponse(ws))
}

func (h *workspaceHandler) update(w http.ResponseWriter, r *http.Request) {
	var req workspaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, apperr.Wrap(apperr.KindValidation, "invalid request body", err))
		return
	}
	ws, err := h.workspaces.Update(r.Context(), ActorFromRequest(r), chi.URLParam(r, "workspaceID"),
		req.Name, req.Description, model.Visibility(req.Visibility))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toWorkspaceResponse(ws))
}

func (h *workspaceHandler) archive(w http.ResponseWriter, r *http.Request) {
	err := h.workspaces.Archive(r.Context(), ActorFromRequest(r), chi.URLParam(r, "workspaceID"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type aclEntryRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

type aclEntryResponse struct {
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	GrantedBy string    `json:"granted_by"`
	CreatedAt time.Time `json:"created_at"`
}

func (h *workspaceHandler) listACL(w http.ResponseWriter, r *http.Request) {
	entries, err := h.workspaces.ListACL(r.Context(), ActorFromRequest(r), chi.URLParam(r, "workspaceID"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	out := make([]aclEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, aclEntryResponse{
			UserID:    e.UserID,
			Role:      string(e.Role),
			GrantedBy: e.GrantedBy,
			CreatedAt: e.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *workspaceHandler) replaceACL(w http.ResponseWriter, r *http.Request) {
	var req []aclEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, apperr.Wrap(apperr.KindValidation, "invalid request body", err))
		return
	}
	entries := make([]model.ACLEntry, len(req))
	for i, e := range req {
		entries[i] = model.ACLEntry{UserID: e.UserID, Role: model.ACLRole(e.Role)}
	}
	err := h.workspaces.ReplaceACL(r.Context(), ActorFromRequest(r), chi.URLParam(r, "workspaceID"), entries)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *workspaceHandler) grant(w http.ResponseWriter, r *http.Request) {
	var req aclEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, apperr.Wrap(apperr.KindValidation, "invalid request body", err))
		return
	}
	err := h.workspaces.Grant(r.Context(), ActorFromRequest(r), chi.URLParam(r, "workspaceID"),
		req.UserID, model.ACLRole(req.Role))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *workspaceHandler) revoke(w http.ResponseWriter, r *http.Request) {
	err := h.workspaces.Revoke(r.Context(), ActorFromRequest(r), chi.URLParam(r, "workspaceID"),
		chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
