// Package handlers provides HTTP request handlers for the portrisk API.
// This file implements risk classification endpoints.
package handlers

import (
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/anstrom/portrisk/internal/metrics"
	"github.com/anstrom/portrisk/internal/risk"
	"github.com/anstrom/portrisk/internal/scanning"
)

// RiskHandler classifies port lists and serves the known port table.
type RiskHandler struct {
	metrics   metrics.Recorder
	validator *validator.Validate
}

// NewRiskHandler creates a new risk handler.
func NewRiskHandler(recorder metrics.Recorder) *RiskHandler {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &RiskHandler{
		metrics:   recorder,
		validator: newValidator(),
	}
}

// ClassifyRequest lists the open ports to assess.
type ClassifyRequest struct {
	Ports []int `json:"ports" validate:"required,max=65535,dive,min=1,max=65535"`
}

// RiskTableResponse wraps the known port table.
type RiskTableResponse struct {
	Entries []risk.Entry `json:"entries"`
}

// Classify assesses the posted port list.
func (h *RiskHandler) Classify(w http.ResponseWriter, r *http.Request) {
	var req ClassifyRequest
	if err := parseJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if err := validateRequest(h.validator, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	assessment := risk.Classify(scanning.SortUnique(req.Ports))
	h.metrics.IncrementAssessments(assessment.Overall.String())
	WriteJSON(w, r, http.StatusOK, assessment)
}

// Table returns every known port with its service and risk level.
func (h *RiskHandler) Table(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, r, http.StatusOK, RiskTableResponse{Entries: risk.Table()})
}
