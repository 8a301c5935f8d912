// Package handlers provides HTTP request handlers for the portrisk API.
// This file implements scan job endpoints: submit, list, fetch and cancel.
package handlers

import (
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/anstrom/portrisk/internal/logging"
	"github.com/anstrom/portrisk/internal/scanning"
	"github.com/anstrom/portrisk/internal/workers"
)

// SourceAPI is the job source recorded for scans submitted over HTTP.
const SourceAPI = "api"

// ScanService is the part of workers.ScanService the handlers use.
type ScanService interface {
	Submit(target scanning.Target, source string) (workers.JobRecord, error)
	Get(id string) (workers.JobRecord, error)
	List() []workers.JobRecord
	Cancel(id string) (workers.JobRecord, error)
}

// ScanHandler handles scan-related API endpoints.
type ScanHandler struct {
	service      ScanService
	defaultPorts string
	logger       *logging.Logger
	validator    *validator.Validate
}

// NewScanHandler creates a new scan handler. defaultPorts is used when a
// request names no port range.
func NewScanHandler(service ScanService, defaultPorts string, logger *logging.Logger) *ScanHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &ScanHandler{
		service:      service,
		defaultPorts: defaultPorts,
		logger:       logger.WithFields("handler", "scan"),
		validator:    newValidator(),
	}
}

// ScanRequest represents a scan submission.
type ScanRequest struct {
	Target      string `json:"target" validate:"required,max=255,hostname_rfc1123|ip"`
	Ports       string `json:"ports,omitempty" validate:"omitempty,max=11"`
	Concurrency int    `json:"concurrency,omitempty" validate:"omitempty,min=1,max=65535"`
}

// ScanListResponse wraps the job list.
type ScanListResponse struct {
	Scans []workers.JobRecord `json:"scans"`
	Total int                 `json:"total"`
}

// ToTarget converts the request to a scan target.
func (req ScanRequest) ToTarget(defaultPorts string) (scanning.Target, error) {
	ports := req.Ports
	if ports == "" {
		ports = defaultPorts
	}
	start, end, err := scanning.ParsePortRange(ports)
	if err != nil {
		return scanning.Target{}, err
	}
	target := scanning.Target{
		Host:          req.Target,
		StartPort:     start,
		EndPort:       end,
		MaxConcurrent: req.Concurrency,
	}
	return target, target.Validate()
}

// CreateScan validates the request and queues a scan job. It answers 202
// with the queued job record.
func (h *ScanHandler) CreateScan(w http.ResponseWriter, r *http.Request) {
	var req ScanRequest
	if err := parseJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if err := validateRequest(h.validator, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	target, err := req.ToTarget(h.defaultPorts)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	rec, err := h.service.Submit(target, SourceAPI)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}

	w.Header().Set("Location", "/api/v1/scans/"+rec.ID)
	WriteJSON(w, r, http.StatusAccepted, rec)
}

// ListScans returns every known job, newest first.
func (h *ScanHandler) ListScans(w http.ResponseWriter, r *http.Request) {
	scans := h.service.List()
	WriteJSON(w, r, http.StatusOK, ScanListResponse{Scans: scans, Total: len(scans)})
}

// GetScan returns one job including its result and assessment once finished.
func (h *ScanHandler) GetScan(w http.ResponseWriter, r *http.Request) {
	id, err := extractStringFromPath(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	rec, err := h.service.Get(id)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	WriteJSON(w, r, http.StatusOK, rec)
}

// CancelScan cancels a queued or running job. A running job keeps its
// partial result once it stops.
func (h *ScanHandler) CancelScan(w http.ResponseWriter, r *http.Request) {
	id, err := extractStringFromPath(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	rec, err := h.service.Cancel(id)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}

	h.logger.Info("Scan cancel requested via API", "job_id", id, "status", rec.Status)
	WriteJSON(w, r, http.StatusOK, rec)
}
