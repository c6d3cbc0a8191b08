package export

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

type Handler struct {
	service *Service
}

func NewHTTPHandler(service *Service) http.Handler {
	return &Handler{service: service}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodGet && strings.Contains(r.URL.Path, "/files/"):
		h.handleDownload(w, r)
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/cancel"):
		h.handleCancel(w, r)
	case r.Method == http.MethodPost:
		h.handleQueue(w, r)
	case r.Method == http.MethodGet:
		h.handleList(w, r)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

// jobView is a Job plus a signed link when the workbook is ready.
type jobView struct {
	Job
	DownloadURL *string `json:"downloadUrl,omitempty"`
}

func (h *Handler) view(job Job) jobView {
	return jobView{Job: job, DownloadURL: h.service.BuildDownloadURL(job)}
}

type queuePayload struct {
	RecordTypes []string `json:"recordTypes"`
}

func (h *Handler) handleQueue(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var payload queuePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, fmt.Sprintf("invalid payload: %v", err), http.StatusBadRequest)
		return
	}
	job, err := h.service.QueueWorkbook(r.Context(), payload.RecordTypes)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusAccepted, h.view(job))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	jobs := h.service.ListJobs()
	views := make([]jobView, len(jobs))
	for i, job := range jobs {
		views[i] = h.view(job)
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(strings.TrimSuffix(r.URL.Path, "/cancel"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	job, err := h.service.CancelJob(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusOK, h.view(job))
}

func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r.URL.Path)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	job, err := h.service.GetJob(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if err := h.service.ValidateDownloadToken(id, token); err != nil {
		http.Error(w, err.Error(), http.StatusForbidden)
		return
	}
	file, err := h.service.OpenJobFile(job)
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	defer file.Close()

	filename := filepath.Base(job.FilePath)
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
	if job.FileByteSize > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(job.FileByteSize, 10))
	}
	http.ServeContent(w, r, filename, job.UpdatedAt, file)
}

func pathID(path string) (uuid.UUID, error) {
	path = strings.TrimSuffix(path, "/")
	idx := strings.LastIndex(path, "/")
	if idx == -1 || idx == len(path)-1 {
		return uuid.Nil, fmt.Errorf("missing export identifier")
	}
	id, err := uuid.Parse(path[idx+1:])
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid export identifier: %v", err)
	}
	return id, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
