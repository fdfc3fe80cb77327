package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"ragspace/internal/apperr"
	"ragspace/internal/model"
	"ragspace/internal/service"
)

type documentHandler struct {
	uploads   *service.UploadService
	documents *service.DocumentService
	maxBytes  int64
	logger    *zap.Logger
}

type documentResponse struct {
	ID           string    `json:"id"`
	WorkspaceID  string    `json:"workspace_id"`
	Title        string    `json:"title"`
	FileName     string    `json:"file_name"`
	MimeType     string    `json:"mime_type"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"error_message,omitempty"`
	Tags         []string  `json:"tags,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func toDocumentResponse(doc *model.Document) documentResponse {
	return documentResponse{
		ID:           doc.ID,
		WorkspaceID:  doc.WorkspaceID,
		Title:        doc.Title,
		FileName:     doc.FileName,
		MimeType:     doc.MimeType,
		Status:       string(doc.Status),
		ErrorMessage: doc.ErrorMessage,
		Tags:         doc.Tags,
		CreatedAt:    doc.CreatedAt,
	}
}

// upload accepts multipart/form-data with a "file" part and optional
// "title" and "tags" fields.
func (h *documentHandler) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		writeError(w, h.logger, apperr.Wrap(apperr.KindValidation, "invalid multipart body", err))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, h.logger, apperr.Wrap(apperr.KindValidation, "file part is required", err))
		return
	}
	defer file.Close()

	var tags []string
	if raw := r.FormValue("tags"); raw != "" {
		for _, tag := range strings.Split(raw, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				tags = append(tags, tag)
			}
		}
	}

	res, err := h.uploads.Upload(r.Context(), ActorFromRequest(r), service.UploadRequest{
		WorkspaceID: chi.URLParam(r, "workspaceID"),
		FileName:    header.Filename,
		MimeType:    header.Header.Get("Content-Type"),
		Title:       r.FormValue("title"),
		Tags:        tags,
		Body:        file,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"document_id": res.DocumentID,
		"status":      string(res.Status),
		"file_name":   res.FileName,
		"mime_type":   res.MimeType,
	})
}

func (h *documentHandler) list(w http.ResponseWriter, r *http.Request) {
	docs, err := h.documents.List(r.Context(), ActorFromRequest(r), chi.URLParam(r, "workspaceID"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	out := make([]documentResponse, 0, len(docs))
	for i := range docs {
		out = append(out, toDocumentResponse(&docs[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *documentHandler) get(w http.ResponseWriter, r *http.Request) {
	doc, err := h.documents.Get(r.Context(), ActorFromRequest(r),
		chi.URLParam(r, "workspaceID"), chi.URLParam(r, "documentID"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toDocumentResponse(doc))
}

func (h *documentHandler) delete(w http.ResponseWriter, r *http.Request) {
	err := h.documents.Delete(r.Context(), ActorFromRequest(r),
		chi.URLParam(r, "workspaceID"), chi.URLParam(r, "documentID"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *documentHandler) download(w http.ResponseWriter, r *http.Request) {
	url, err := h.documents.DownloadURL(r.Context(), ActorFromRequest(r),
		chi.URLParam(r, "workspaceID"), chi.URLParam(r, "documentID"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

func (h *documentHandler) status(w http.ResponseWriter, r *http.Request) {
	status, errMsg, err := h.documents.Status(r.Context(), ActorFromRequest(r),
		chi.URLParam(r, "workspaceID"), chi.URLParam(r, "documentID"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":        string(status),
		"error_message": errMsg,
	})
}

func (h *documentHandler) reprocess(w http.ResponseWriter, r *http.Request) {
	err := h.documents.Reprocess(r.Context(), ActorFromRequest(r),
		chi.URLParam(r, "workspaceID"), chi.URLParam(r, "documentID"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": string(model.StatusPending)})
}

func (h *documentHandler) cancel(w http.ResponseWriter, r *http.Request) {
	err := h.documents.CancelProcessing(r.Context(), ActorFromRequest(r),
		chi.URLParam(r, "workspaceID"), chi.URLParam(r, "documentID"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(model.StatusFailed)})
}
